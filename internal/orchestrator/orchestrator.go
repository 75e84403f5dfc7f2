// Package orchestrator drives one capture tick at a time: poll the color
// sensor, poll the depth sensor, then render both decoded frames.
package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/junsooki/DepthCam/internal/capture"
	"github.com/junsooki/DepthCam/internal/decoder"
	"github.com/junsooki/DepthCam/internal/metrics"
	"github.com/junsooki/DepthCam/internal/v4l2"
)

// Formats the decoders accept. Pass them as capture.Options.Want so a
// device that negotiates anything else fails at start.
var (
	ColorWant = capture.Want{
		Width:         decoder.ColorWidth,
		Height:        decoder.ColorHeight,
		PixelFormat:   v4l2.PixFmtYUYV,
		BytesPerPixel: decoder.YUYVBytesPerPixel,
	}
	DepthWant = capture.Want{
		Width:         decoder.DepthWidth,
		Height:        decoder.DepthHeight,
		PixelFormat:   v4l2.PixFmtZ16Y8,
		BytesPerPixel: decoder.Z16Y8BytesPerPixel,
	}
)

// Poller yields one filled buffer per call. *capture.Session implements it.
type Poller interface {
	Name() string
	Poll(fn func(data []byte) error) error
}

// Renderer consumes the decoded frames of one tick. The frames are reused
// by the next tick and must not be retained.
type Renderer interface {
	Render(color *decoder.ColorFrame, depth *decoder.DepthFrame) error
}

// TimeoutPolicy decides what a poll timeout does to the loop.
type TimeoutPolicy string

const (
	// TimeoutFatal ends the loop with the timeout error.
	TimeoutFatal TimeoutPolicy = "fatal"
	// TimeoutSkip drops the rest of the tick and keeps going.
	TimeoutSkip TimeoutPolicy = "skip"
)

// ParseTimeoutPolicy validates a configured policy name.
func ParseTimeoutPolicy(s string) (TimeoutPolicy, error) {
	switch p := TimeoutPolicy(s); p {
	case TimeoutFatal, TimeoutSkip:
		return p, nil
	}
	return "", fmt.Errorf("unknown timeout policy %q", s)
}

// Stats counts what the loop has done so far.
type Stats struct {
	Ticks       uint64
	ColorFrames uint64
	DepthFrames uint64
	ShortFrames uint64
	Timeouts    uint64
}

type Options struct {
	TimeoutPolicy TimeoutPolicy
	Logger        *zap.SugaredLogger
	Metrics       *metrics.Collector
}

// Orchestrator owns the decoded frames and the two pollers' order.
// It is not safe for concurrent use.
type Orchestrator struct {
	color    Poller
	depth    Poller
	renderer Renderer

	colorFrame *decoder.ColorFrame
	depthFrame *decoder.DepthFrame

	policy  TimeoutPolicy
	log     *zap.SugaredLogger
	metrics *metrics.Collector
	stats   Stats
}

var errSkipTick = errors.New("tick skipped")

func New(color, depth Poller, r Renderer, opts Options) *Orchestrator {
	if opts.TimeoutPolicy == "" {
		opts.TimeoutPolicy = TimeoutFatal
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Orchestrator{
		color:      color,
		depth:      depth,
		renderer:   r,
		colorFrame: decoder.NewColorFrame(decoder.ColorWidth, decoder.ColorHeight),
		depthFrame: decoder.NewDepthFrame(decoder.DepthWidth, decoder.DepthHeight),
		policy:     opts.TimeoutPolicy,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
}

// Tick captures one frame from each sensor and renders them. A short frame
// keeps the previous decoded contents for that stream.
func (o *Orchestrator) Tick() error {
	o.stats.Ticks++

	err := o.poll(o.color, "color", &o.stats.ColorFrames, func(data []byte) error {
		return decoder.DecodeYUYV(o.colorFrame, data)
	})
	if err != nil {
		return o.tickResult(err)
	}

	err = o.poll(o.depth, "depth", &o.stats.DepthFrames, func(data []byte) error {
		return decoder.DecodeZ16Y8(o.depthFrame, data)
	})
	if err != nil {
		return o.tickResult(err)
	}

	if err := o.renderer.Render(o.colorFrame, o.depthFrame); err != nil {
		return fmt.Errorf("render: %w", err)
	}
	return nil
}

func (o *Orchestrator) tickResult(err error) error {
	if errors.Is(err, errSkipTick) {
		return nil
	}
	return err
}

func (o *Orchestrator) poll(p Poller, stream string, count *uint64, decode func([]byte) error) error {
	err := p.Poll(decode)
	switch {
	case err == nil:
		*count++
		return nil
	case errors.Is(err, decoder.ErrShortFrame):
		o.stats.ShortFrames++
		o.metrics.DecodeViolation(stream)
		o.log.Warnw("short frame skipped", "stream", stream, "device", p.Name())
		return nil
	case errors.Is(err, capture.ErrPollTimeout) && o.policy == TimeoutSkip:
		o.stats.Timeouts++
		o.log.Warnw("poll timed out, skipping tick", "stream", stream, "device", p.Name())
		return errSkipTick
	}
	return fmt.Errorf("%s: %w", stream, err)
}

// Run ticks until ctx is cancelled or a tick fails.
func (o *Orchestrator) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}
		if err := o.Tick(); err != nil {
			return err
		}
	}
}

func (o *Orchestrator) Stats() Stats { return o.stats }
