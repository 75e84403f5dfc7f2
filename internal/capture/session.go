package capture

import (
	"errors"
	"fmt"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/junsooki/DepthCam/internal/metrics"
	"github.com/junsooki/DepthCam/internal/v4l2"
)

const (
	requestedBuffers = 4
	minBuffers       = 2

	// DefaultPollTimeout bounds a single wait for a filled buffer.
	DefaultPollTimeout = 2 * time.Second
)

// Options configures a Session.
type Options struct {
	// ForceFormat requests 640x480 YUYV interlaced instead of keeping the
	// format the device is already configured with.
	ForceFormat bool
	// Want, when its Width is set, is checked against the negotiated
	// format before any buffer is mapped.
	Want        Want
	PollTimeout time.Duration
	// Open defaults to OpenV4L2.
	Open    Opener
	Logger  *zap.SugaredLogger
	Metrics *metrics.Collector
}

func (o Options) withDefaults() Options {
	if o.PollTimeout <= 0 {
		o.PollTimeout = DefaultPollTimeout
	}
	if o.Open == nil {
		o.Open = OpenV4L2
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop().Sugar()
	}
	return o
}

// Session owns one open capture device end to end. It is not safe for
// concurrent use: buffer ownership is enforced by the strict
// wait/dequeue/callback/requeue order of Poll.
type Session struct {
	name    string
	dev     Device
	format  Format
	pool    *Pool
	timeout time.Duration
	log     *zap.SugaredLogger
	metrics *metrics.Collector

	streaming bool
	closed    bool
}

// Start opens the device at path, negotiates its format, maps the buffer
// pool and starts streaming. Anything acquired before a failure is released.
func Start(path string, opts Options) (*Session, error) {
	opts = opts.withDefaults()

	dev, err := opts.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceNotFound, err)
	}

	s := &Session{
		name:    path,
		dev:     dev,
		timeout: opts.PollTimeout,
		log:     opts.Logger.With("device", path),
		metrics: opts.Metrics,
	}
	if err := s.setup(opts.ForceFormat, opts.Want); err != nil {
		s.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Session) setup(forceFormat bool, want Want) error {
	caps, err := s.dev.QueryCapability()
	if err != nil {
		if errors.Is(err, syscall.EINVAL) {
			return fmt.Errorf("%w: not a V4L2 device", ErrNotCaptureDevice)
		}
		return fmt.Errorf("%w: VIDIOC_QUERYCAP: %w", ErrNotCaptureDevice, err)
	}
	if !caps.CanCapture() {
		return fmt.Errorf("%w: no video capture capability", ErrNotCaptureDevice)
	}
	if !caps.CanStream() {
		return fmt.Errorf("%w: no streaming I/O", ErrNotCaptureDevice)
	}

	s.resetCrop()

	format, err := s.negotiate(forceFormat)
	if err != nil {
		return err
	}
	s.format = format.applyMinimums()
	if want.Width != 0 {
		if err := s.format.check(want); err != nil {
			return fmt.Errorf("%w: %w", ErrFormatNegotiation, err)
		}
	}

	s.log.Infow("capture device opened",
		"driver", caps.Driver,
		"card", caps.Card,
		"bus", caps.BusInfo,
		"format", s.format.String(),
	)

	s.pool, err = newPool(s.dev, s.log, requestedBuffers)
	if err != nil {
		return err
	}
	if err := s.pool.queueAll(); err != nil {
		return fmt.Errorf("%w: %w", ErrStreamStart, err)
	}
	if err := s.dev.StreamOn(); err != nil {
		return fmt.Errorf("%w: VIDIOC_STREAMON: %w", ErrStreamStart, err)
	}
	s.streaming = true
	s.metrics.SetBuffersQueued(s.name, s.pool.Queued())

	s.log.Infow("streaming started", "buffers", s.pool.Len())
	return nil
}

// resetCrop restores the default cropping rectangle. Cropping is cosmetic,
// so every failure, "not supported" included, is ignored.
func (s *Session) resetCrop() {
	rect, err := s.dev.CropCapability()
	if err != nil {
		return
	}
	_ = s.dev.SetCrop(rect)
}

func (s *Session) negotiate(force bool) (Format, error) {
	if !force {
		pix, err := s.dev.Format()
		if err != nil {
			return Format{}, fmt.Errorf("%w: VIDIOC_G_FMT: %w", ErrFormatNegotiation, err)
		}
		return formatFromPix(pix), nil
	}
	// The driver may adjust the request; only the returned values count.
	pix, err := s.dev.SetFormat(v4l2.PixFormat{
		Width:       forcedWidth,
		Height:      forcedHeight,
		PixelFormat: v4l2.PixFmtYUYV,
		Field:       v4l2.FieldInterlaced,
	})
	if err != nil {
		return Format{}, fmt.Errorf("%w: VIDIOC_S_FMT: %w", ErrFormatNegotiation, err)
	}
	return formatFromPix(pix), nil
}

// Name returns the device path.
func (s *Session) Name() string { return s.name }

// Format returns the negotiated geometry after defensive minimums.
func (s *Session) Format() Format { return s.format }

// Pool returns the session's buffer ring.
func (s *Session) Pool() *Pool { return s.pool }

// Poll waits for one filled buffer, passes its produced bytes to fn and
// hands the buffer back to the driver before returning. The slice passed to
// fn is only valid for the duration of the call.
//
// A wait interrupted by a signal is restarted with the full timeout.
// The buffer is requeued even when fn fails; a requeue failure is returned
// in preference to fn's error.
func (s *Session) Poll(fn func(data []byte) error) error {
	for {
		start := time.Now()
		ready, err := s.dev.Wait(s.timeout)
		if err != nil {
			if errors.Is(err, syscall.EINTR) {
				s.metrics.PollInterrupted(s.name)
				continue
			}
			return fmt.Errorf("%w: %s: wait: %w", ErrPollFailed, s.name, err)
		}
		if !ready {
			s.metrics.PollTimeout(s.name)
			return fmt.Errorf("%w: %s: no frame within %s", ErrPollTimeout, s.name, s.timeout)
		}
		s.metrics.ObservePollWait(s.name, time.Since(start))

		buf, err := s.pool.dequeue()
		if err != nil {
			if errors.Is(err, syscall.EAGAIN) {
				continue
			}
			return fmt.Errorf("%w: %s: VIDIOC_DQBUF: %w", ErrPollFailed, s.name, err)
		}

		data := buf.Bytes()
		fnErr := fn(data)

		if err := s.pool.requeue(buf); err != nil {
			s.metrics.SetBuffersQueued(s.name, s.pool.Queued())
			return fmt.Errorf("%w: %s: VIDIOC_QBUF %d: %w", ErrRequeueFailed, s.name, buf.index, err)
		}
		s.metrics.ObserveFrame(s.name, len(data))
		return fnErr
	}
}

// Close stops streaming, unmaps every buffer and closes the device.
// Failures are logged; teardown always runs to completion.
func (s *Session) Close() {
	if s.closed {
		return
	}
	s.closed = true

	if s.streaming {
		if err := s.dev.StreamOff(); err != nil {
			s.log.Warnw("VIDIOC_STREAMOFF failed", "error", err)
		}
		s.streaming = false
	}
	if s.pool != nil {
		s.pool.release()
		s.metrics.SetBuffersQueued(s.name, 0)
	}
	if err := s.dev.Close(); err != nil {
		s.log.Warnw("close failed", "error", err)
	}
	s.log.Infow("capture device closed")
}
