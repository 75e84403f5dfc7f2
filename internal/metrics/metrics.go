// Package metrics exposes capture and preview counters to Prometheus.
//
// All methods are safe to call on a nil *Collector, so components can be
// built without metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the rig's metric families.
type Collector struct {
	registry *prometheus.Registry

	frames          *prometheus.CounterVec
	frameBytes      *prometheus.CounterVec
	pollTimeouts    *prometheus.CounterVec
	pollInterrupts  *prometheus.CounterVec
	pollWait        *prometheus.HistogramVec
	buffersQueued   *prometheus.GaugeVec
	decodeErrors    *prometheus.CounterVec
	framesPublished prometheus.Counter
	framesDropped   *prometheus.CounterVec
}

// New registers the metric families on a fresh registry.
func New() *Collector {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Collector{
		registry: reg,
		frames: f.NewCounterVec(prometheus.CounterOpts{
			Name: "depthcam_frames_total",
			Help: "Filled buffers dequeued per device",
		}, []string{"device"}),
		frameBytes: f.NewCounterVec(prometheus.CounterOpts{
			Name: "depthcam_frame_bytes_total",
			Help: "Bytes produced by the driver per device",
		}, []string{"device"}),
		pollTimeouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "depthcam_poll_timeouts_total",
			Help: "Polls that saw no ready buffer within the timeout",
		}, []string{"device"}),
		pollInterrupts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "depthcam_poll_interrupts_total",
			Help: "Waits interrupted by a signal and restarted",
		}, []string{"device"}),
		pollWait: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "depthcam_poll_wait_seconds",
			Help:    "Time spent waiting for a filled buffer",
			Buckets: []float64{.001, .005, .01, .02, .033, .05, .1, .25, .5, 1, 2},
		}, []string{"device"}),
		buffersQueued: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "depthcam_buffers_queued",
			Help: "Buffers currently owned by the driver",
		}, []string{"device"}),
		decodeErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "depthcam_decode_violations_total",
			Help: "Frames skipped because the filled buffer was too short",
		}, []string{"stream"}),
		framesPublished: f.NewCounter(prometheus.CounterOpts{
			Name: "depthcam_frames_published_total",
			Help: "Composites sent to a remote viewer",
		}),
		framesDropped: f.NewCounterVec(prometheus.CounterOpts{
			Name: "depthcam_frames_dropped_total",
			Help: "Composites not sent to a remote viewer",
		}, []string{"reason"}),
	}
}

// Registry returns the registry the families live on.
func (c *Collector) Registry() *prometheus.Registry {
	if c == nil {
		return nil
	}
	return c.registry
}

func (c *Collector) ObserveFrame(device string, bytes int) {
	if c == nil {
		return
	}
	c.frames.WithLabelValues(device).Inc()
	c.frameBytes.WithLabelValues(device).Add(float64(bytes))
}

func (c *Collector) ObservePollWait(device string, d time.Duration) {
	if c == nil {
		return
	}
	c.pollWait.WithLabelValues(device).Observe(d.Seconds())
}

func (c *Collector) PollTimeout(device string) {
	if c == nil {
		return
	}
	c.pollTimeouts.WithLabelValues(device).Inc()
}

func (c *Collector) PollInterrupted(device string) {
	if c == nil {
		return
	}
	c.pollInterrupts.WithLabelValues(device).Inc()
}

func (c *Collector) SetBuffersQueued(device string, n int) {
	if c == nil {
		return
	}
	c.buffersQueued.WithLabelValues(device).Set(float64(n))
}

func (c *Collector) DecodeViolation(stream string) {
	if c == nil {
		return
	}
	c.decodeErrors.WithLabelValues(stream).Inc()
}

func (c *Collector) FramePublished() {
	if c == nil {
		return
	}
	c.framesPublished.Inc()
}

func (c *Collector) FrameDropped(reason string) {
	if c == nil {
		return
	}
	c.framesDropped.WithLabelValues(reason).Inc()
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
