package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/DepthCam/internal/decoder"
	"github.com/junsooki/DepthCam/internal/display"
	"github.com/junsooki/DepthCam/internal/peer"
	"github.com/junsooki/DepthCam/internal/signaling"
)

const listTimeout = 10 * time.Second

// viewerSession owns the viewer peer of one signaling connection. The
// peer is created on the signaling read goroutine and closed from main.
// sig must be set before the signaling client connects.
type viewerSession struct {
	api    *webrtc.API
	sig    peer.Signaler
	hostID string
	dec    decoder.Decoder
	sink   display.FrameSink
	stop   func()
	log    *zap.SugaredLogger

	viewer atomic.Pointer[peer.Viewer]
}

func (s *viewerSession) handler() signaling.Handler {
	return signaling.Handler{
		OnRegistered: s.connect,
		OnAnswer: func(from string, payload json.RawMessage) {
			if v := s.viewer.Load(); v != nil {
				if err := v.HandleAnswer(payload); err != nil {
					s.log.Warnw("handle answer", "error", err)
				}
			}
		},
		OnICECandidate: func(from string, payload json.RawMessage) {
			if v := s.viewer.Load(); v != nil {
				if err := v.HandleICECandidate(payload); err != nil {
					s.log.Warnw("handle ICE candidate", "error", err)
				}
			}
		},
		OnHostDisconnected: func(hostID string) {
			if hostID == s.hostID {
				s.log.Infow("host disconnected")
				s.stop()
			}
		},
	}
}

func (s *viewerSession) connect() {
	v, err := peer.NewViewer(s.api, s.sig, s.hostID, s.log.Named("peer"))
	if err != nil {
		s.log.Errorw("create viewer peer", "error", err)
		s.stop()
		return
	}

	// Frames arrive in order on one pion goroutine.
	v.Transport().OnFrame(func(data []byte) {
		img, err := s.dec.Decode(data)
		if err != nil {
			s.log.Debugw("decode frame", "error", err)
			return
		}
		s.sink.SetFrame(img)
	})

	if old := s.viewer.Swap(v); old != nil {
		old.Close()
	}
	if err := v.Connect(); err != nil {
		s.log.Errorw("viewer connect", "error", err)
	}
}

func (s *viewerSession) close() {
	if v := s.viewer.Swap(nil); v != nil {
		v.Close()
	}
}

// listHosts prints the hosts the signaling server reports and returns.
func listHosts(ctx context.Context, url, id string, out io.Writer, log *zap.SugaredLogger) error {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	ctx, cancel := context.WithTimeout(ctx, listTimeout)
	defer cancel()

	hosts := make(chan []signaling.HostInfo, 1)
	var sig *signaling.Client
	sig = signaling.NewClient(url, id, signaling.ClientTypeViewer, signaling.Handler{
		OnRegistered: func() {
			if err := sig.RequestHostList(); err != nil {
				log.Warnw("request host list", "error", err)
			}
		},
		OnHostsUpdated: func(list []signaling.HostInfo) {
			select {
			case hosts <- list:
			default:
			}
		},
	}, log)

	if err := sig.Connect(ctx); err != nil {
		return err
	}
	defer sig.Close()

	select {
	case list := <-hosts:
		if len(list) == 0 {
			_, err := fmt.Fprintln(out, "no hosts registered")
			return err
		}
		for _, h := range list {
			state := "offline"
			if h.Online {
				state = "online"
			}
			if _, err := fmt.Fprintf(out, "%s\t%s\n", h.ID, state); err != nil {
				return err
			}
		}
		return nil
	case <-sig.Done():
		return errors.New("signaling connection closed before the host list arrived")
	case <-ctx.Done():
		return fmt.Errorf("waiting for host list: %w", ctx.Err())
	}
}
