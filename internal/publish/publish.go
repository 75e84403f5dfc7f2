// Package publish sends JPEG composites of each capture tick to remote
// viewers over their frames channels.
package publish

import (
	"image"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/junsooki/DepthCam/internal/composite"
	"github.com/junsooki/DepthCam/internal/decoder"
	"github.com/junsooki/DepthCam/internal/encoder"
	"github.com/junsooki/DepthCam/internal/metrics"
	"github.com/junsooki/DepthCam/internal/transport"
)

const (
	DefaultFPS     = 15
	DefaultQuality = 70
)

// Drop reasons reported to metrics.
const (
	dropNoViewer    = "no_viewer"
	dropRateLimited = "rate_limited"
	dropEncode      = "encode_failed"
	dropNotOpen     = "channel_not_open"
	dropSend        = "send_failed"
)

type Options struct {
	FPS     int
	Quality int
	Logger  *zap.SugaredLogger
	Metrics *metrics.Collector
}

// Publisher is a renderer that never blocks capture: frames are dropped
// while nobody watches, above the frame rate or when a send fails.
type Publisher struct {
	enc     *encoder.JPEGEncoder
	limiter *rate.Limiter
	canvas  *image.RGBA
	log     *zap.SugaredLogger
	metrics *metrics.Collector

	mu      sync.Mutex
	viewers map[string]transport.FrameSender
}

func New(opts Options) *Publisher {
	if opts.FPS <= 0 {
		opts.FPS = DefaultFPS
	}
	if opts.Quality <= 0 {
		opts.Quality = DefaultQuality
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop().Sugar()
	}
	return &Publisher{
		enc:     encoder.NewJPEGEncoder(opts.Quality),
		limiter: rate.NewLimiter(rate.Limit(opts.FPS), 1),
		log:     opts.Logger,
		metrics: opts.Metrics,
		viewers: make(map[string]transport.FrameSender),
	}
}

// AddViewer starts sending to s, replacing any sender registered as id.
func (p *Publisher) AddViewer(id string, s transport.FrameSender) {
	p.mu.Lock()
	p.viewers[id] = s
	n := len(p.viewers)
	p.mu.Unlock()
	p.log.Infow("viewer attached", "viewer", id, "viewers", n)
}

func (p *Publisher) RemoveViewer(id string) {
	p.mu.Lock()
	_, ok := p.viewers[id]
	delete(p.viewers, id)
	n := len(p.viewers)
	p.mu.Unlock()
	if ok {
		p.log.Infow("viewer detached", "viewer", id, "viewers", n)
	}
}

func (p *Publisher) Viewers() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.viewers)
}

// Render composes, encodes and sends the frames to every open viewer.
// Delivery failures are counted, never returned.
func (p *Publisher) Render(color *decoder.ColorFrame, depth *decoder.DepthFrame) error {
	p.mu.Lock()
	targets := make(map[string]transport.FrameSender, len(p.viewers))
	for id, s := range p.viewers {
		targets[id] = s
	}
	p.mu.Unlock()

	if len(targets) == 0 {
		p.metrics.FrameDropped(dropNoViewer)
		return nil
	}
	if !p.limiter.Allow() {
		p.metrics.FrameDropped(dropRateLimited)
		return nil
	}

	if p.canvas == nil {
		p.canvas = composite.Canvas(color, depth)
	}
	composite.Compose(p.canvas, color, depth)
	data, err := p.enc.Encode(p.canvas)
	if err != nil {
		p.log.Warnw("encode composite", "error", err)
		p.metrics.FrameDropped(dropEncode)
		return nil
	}

	for id, s := range targets {
		if !s.Open() {
			p.metrics.FrameDropped(dropNotOpen)
			continue
		}
		if err := s.SendFrame(data); err != nil {
			p.log.Debugw("send frame", "viewer", id, "error", err)
			p.metrics.FrameDropped(dropSend)
			continue
		}
		p.metrics.FramePublished()
	}
	return nil
}
