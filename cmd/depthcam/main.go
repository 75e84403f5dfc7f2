package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/junsooki/DepthCam/internal/capture"
	"github.com/junsooki/DepthCam/internal/config"
	"github.com/junsooki/DepthCam/internal/display"
	"github.com/junsooki/DepthCam/internal/logger"
	"github.com/junsooki/DepthCam/internal/metrics"
	"github.com/junsooki/DepthCam/internal/orchestrator"
	"github.com/junsooki/DepthCam/internal/peer"
	"github.com/junsooki/DepthCam/internal/publish"
	"github.com/junsooki/DepthCam/internal/signaling"
	"github.com/junsooki/DepthCam/internal/transport"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	v := config.New()
	var configFile string

	cmd := &cobra.Command{
		Use:          "depthcam",
		Short:        "Capture a color and a depth V4L2 sensor and preview them side by side",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, configFile)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file (default: depthcam.yaml in ., $HOME/.depthcam, /etc/depthcam)")
	f.String("color-device", "/dev/video0", "color sensor device node")
	f.Bool("color-force-format", true, "force 640x480 YUYV on the color sensor")
	f.String("depth-device", "/dev/video1", "depth sensor device node")
	f.Bool("depth-force-format", false, "force 640x480 YUYV on the depth sensor")
	f.Duration("poll-timeout", capture.DefaultPollTimeout, "maximum wait for one frame")
	f.String("timeout-policy", string(orchestrator.TimeoutFatal), "what a poll timeout does: fatal or skip")
	f.Bool("display", true, "show the local preview window")
	f.Bool("remote", false, "publish the preview to remote viewers")
	f.String("signaling", "ws://localhost:8080", "signaling server WebSocket URL")
	f.String("host-id", "", "host ID (auto-generated if empty)")
	f.Int("fps", publish.DefaultFPS, "remote preview frames per second")
	f.Int("quality", publish.DefaultQuality, "remote preview JPEG quality (1-100)")
	f.String("metrics-addr", "", "serve Prometheus metrics on this address")
	f.String("log-level", "info", "log level")
	f.Bool("log-dev", false, "human-readable development logging")

	bindFlags(cmd, v, map[string]string{
		"color.device":           "color-device",
		"color.force_format":     "color-force-format",
		"depth.device":           "depth-device",
		"depth.force_format":     "depth-force-format",
		"capture.poll_timeout":   "poll-timeout",
		"capture.timeout_policy": "timeout-policy",
		"display.enabled":        "display",
		"remote.enabled":         "remote",
		"remote.signaling_url":   "signaling",
		"remote.host_id":         "host-id",
		"remote.fps":             "fps",
		"remote.quality":         "quality",
		"metrics.addr":           "metrics-addr",
		"log.level":              "log-level",
		"log.development":        "log-dev",
	})
	return cmd
}

func bindFlags(cmd *cobra.Command, v *viper.Viper, keys map[string]string) {
	for key, name := range keys {
		if err := v.BindPFlag(key, cmd.Flags().Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
}

func run(parent context.Context, v *viper.Viper, configFile string) error {
	cfg, err := config.Load(v, configFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	policy, _ := orchestrator.ParseTimeoutPolicy(cfg.Capture.TimeoutPolicy)
	log.Infow("depthcam starting",
		"color", cfg.Color.Device,
		"depth", cfg.Depth.Device,
		"poll_timeout", cfg.Capture.PollTimeout,
		"timeout_policy", policy,
		"display", cfg.Display.Enabled,
		"remote", cfg.Remote.Enabled,
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)

	m := metrics.New()
	if cfg.Metrics.Addr != "" {
		g.Go(func() error { return m.Serve(gctx, cfg.Metrics.Addr) })
	}

	color, err := capture.Start(cfg.Color.Device, capture.Options{
		ForceFormat: cfg.Color.ForceFormat,
		Want:        orchestrator.ColorWant,
		PollTimeout: cfg.Capture.PollTimeout,
		Logger:      log.Named("color"),
		Metrics:     m,
	})
	if err != nil {
		stop()
		return errors.Join(err, g.Wait())
	}
	defer color.Close()

	depth, err := capture.Start(cfg.Depth.Device, capture.Options{
		ForceFormat: cfg.Depth.ForceFormat,
		Want:        orchestrator.DepthWant,
		PollTimeout: cfg.Capture.PollTimeout,
		Logger:      log.Named("depth"),
		Metrics:     m,
	})
	if err != nil {
		stop()
		return errors.Join(err, g.Wait())
	}
	defer depth.Close()

	var (
		renderers display.Multi
		orch      *orchestrator.Orchestrator
		win       *display.EbitenDisplay
	)
	if cfg.Display.Enabled {
		win = display.NewEbitenDisplay(cfg.Display.Title, func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			return orch.Tick()
		})
		renderers = append(renderers, win)
	}
	if cfg.Remote.Enabled {
		pub, closeRemote, err := startRemote(gctx, cfg.Remote, log, m)
		if err != nil {
			stop()
			return errors.Join(err, g.Wait())
		}
		defer closeRemote()
		renderers = append(renderers, pub)
	}

	orch = orchestrator.New(color, depth, renderers, orchestrator.Options{
		TimeoutPolicy: policy,
		Logger:        log,
		Metrics:       m,
	})

	if win != nil {
		// Ebitengine RunGame must be on the main goroutine.
		werr := win.Run()
		stop()
		if werr != nil && !errors.Is(werr, context.Canceled) {
			g.Go(func() error { return werr })
		}
	} else {
		g.Go(func() error {
			defer stop()
			return orch.Run(gctx)
		})
	}
	err = g.Wait()

	st := orch.Stats()
	log.Infow("capture stopped",
		"ticks", st.Ticks,
		"color_frames", st.ColorFrames,
		"depth_frames", st.DepthFrames,
		"short_frames", st.ShortFrames,
		"timeouts", st.Timeouts,
	)
	return err
}

// startRemote registers with the signaling server and publishes every tick
// to the viewers that connect.
func startRemote(ctx context.Context, cfg config.RemoteConfig, log *zap.SugaredLogger, m *metrics.Collector) (*publish.Publisher, func(), error) {
	pub := publish.New(publish.Options{
		FPS:     cfg.FPS,
		Quality: cfg.Quality,
		Logger:  log.Named("publish"),
		Metrics: m,
	})

	var host *peer.Host
	sig := signaling.NewClient(cfg.SignalingURL, cfg.HostID, signaling.ClientTypeHost, signaling.Handler{
		OnRegistered: func() {
			log.Infow("host ready, share this ID with viewers", "host_id", cfg.HostID)
		},
		OnOffer: func(from string, payload json.RawMessage) {
			log.Infow("received offer", "viewer", from)
			if err := host.HandleOffer(from, payload); err != nil {
				log.Warnw("handle offer", "viewer", from, "error", err)
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if err := host.HandleICECandidate(from, payload); err != nil {
				log.Warnw("handle ICE candidate", "viewer", from, "error", err)
			}
		},
	}, log.Named("signaling"))

	api := peer.NewAPI(log)
	host = peer.NewHost(api, sig, peer.HostEvents{
		OnViewer: func(id string, t *transport.DataChannelTransport) {
			pub.AddViewer(id, t)
		},
		OnViewerGone: pub.RemoveViewer,
	}, log.Named("peer"))

	if err := sig.Connect(ctx); err != nil {
		return nil, nil, err
	}

	closing := make(chan struct{})
	go watchSignaling(ctx, sig.Done(), closing, log.With("signaling", cfg.SignalingURL))

	return pub, func() {
		close(closing)
		host.Close()
		sig.Close()
	}, nil
}

// watchSignaling warns once if the signaling connection drops before
// shutdown. Connected viewers keep streaming; only new offers stop arriving.
func watchSignaling(ctx context.Context, lost, closing <-chan struct{}, log *zap.SugaredLogger) {
	select {
	case <-lost:
		select {
		case <-closing:
			return
		default:
		}
		log.Warnw("signaling connection lost, new viewers cannot join")
	case <-closing:
	case <-ctx.Done():
	}
}
