package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/junsooki/DepthCam/internal/config"
	"github.com/junsooki/DepthCam/internal/decoder"
	"github.com/junsooki/DepthCam/internal/display"
	"github.com/junsooki/DepthCam/internal/logger"
	"github.com/junsooki/DepthCam/internal/peer"
	"github.com/junsooki/DepthCam/internal/signaling"
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
		Use:          "depthview [--host <host-id>]",
		Short:        "Show the preview published by a depthcam host",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), v, configFile)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "config file")
	f.String("signaling", "ws://localhost:8080", "signaling server WebSocket URL")
	f.String("id", "", "viewer ID (auto-generated if empty)")
	f.String("host", "", "host ID to connect to (lists hosts if empty)")
	f.String("log-level", "info", "log level")
	f.Bool("log-dev", false, "human-readable development logging")

	for key, name := range map[string]string{
		"signaling_url":   "signaling",
		"viewer_id":       "id",
		"host_id":         "host",
		"log.level":       "log-level",
		"log.development": "log-dev",
	} {
		if err := v.BindPFlag(key, f.Lookup(name)); err != nil {
			panic(fmt.Sprintf("bind flag %s: %v", name, err))
		}
	}
	return cmd
}

func run(parent context.Context, v *viper.Viper, configFile string) error {
	cfg, err := config.LoadViewer(v, configFile)
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	log.Infow("depthview starting",
		"viewer_id", cfg.ViewerID,
		"signaling", cfg.SignalingURL,
		"host_id", cfg.HostID,
	)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.HostID == "" {
		return listHosts(ctx, cfg.SignalingURL, cfg.ViewerID, os.Stdout, log.Named("signaling"))
	}

	disp := display.NewEbitenDisplay("DepthCam "+cfg.HostID, ctx.Err)
	vs := &viewerSession{
		api:    peer.NewAPI(log),
		hostID: cfg.HostID,
		dec:    decoder.NewJPEGDecoder(),
		sink:   disp,
		stop:   stop,
		log:    log,
	}

	sig := signaling.NewClient(cfg.SignalingURL, cfg.ViewerID, signaling.ClientTypeViewer, vs.handler(), log.Named("signaling"))
	vs.sig = sig
	if err := sig.Connect(ctx); err != nil {
		return err
	}
	defer sig.Close()

	// Ebitengine RunGame must be on the main goroutine.
	err = disp.Run()
	vs.close()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
