package peer

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/DepthCam/internal/transport"
)

// HostEvents is notified as viewers come and go. Callbacks run on pion's
// goroutines.
type HostEvents struct {
	OnViewer     func(viewerID string, t *transport.DataChannelTransport)
	OnViewerGone func(viewerID string)
}

// Host answers viewer offers, one peer connection per viewer, each with
// its own frames channel.
type Host struct {
	api    *webrtc.API
	sig    Signaler
	events HostEvents
	log    *zap.SugaredLogger

	mu      sync.Mutex
	viewers map[string]*webrtc.PeerConnection
}

// NewHost creates a Host peer manager.
func NewHost(api *webrtc.API, sig Signaler, events HostEvents, log *zap.SugaredLogger) *Host {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Host{
		api:     api,
		sig:     sig,
		events:  events,
		log:     log,
		viewers: make(map[string]*webrtc.PeerConnection),
	}
}

// HandleOffer processes an incoming offer from a viewer, replacing any
// previous connection from the same viewer.
func (h *Host) HandleOffer(from string, payload json.RawMessage) error {
	var offer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &offer); err != nil {
		return fmt.Errorf("decode offer: %w", err)
	}

	h.drop(from)

	log := h.log.With("viewer", from)
	var pc *webrtc.PeerConnection
	pc, err := NewPeerConnection(h.api, log, func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed, webrtc.PeerConnectionStateDisconnected:
			h.forget(from, pc)
		}
	})
	if err != nil {
		return err
	}

	framesOrdered := false
	framesMaxRetransmits := uint16(0)
	framesDC, err := pc.CreateDataChannel(transport.FramesLabel, &webrtc.DataChannelInit{
		Ordered:        &framesOrdered,
		MaxRetransmits: &framesMaxRetransmits,
	})
	if err != nil {
		pc.Close()
		return err
	}
	t := transport.NewDataChannelTransport(framesDC)
	framesDC.OnOpen(func() {
		log.Infow("frames data channel open")
		if h.events.OnViewer != nil {
			h.events.OnViewer(from, t)
		}
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		sendCandidate(h.sig, log, from, c)
	})

	h.mu.Lock()
	h.viewers[from] = pc
	h.mu.Unlock()

	if err := h.answer(pc, from, offer); err != nil {
		h.drop(from)
		return err
	}
	return nil
}

func (h *Host) answer(pc *webrtc.PeerConnection, from string, offer webrtc.SessionDescription) error {
	if err := pc.SetRemoteDescription(offer); err != nil {
		return err
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return err
	}

	if err := pc.SetLocalDescription(answer); err != nil {
		return err
	}

	answerJSON, err := json.Marshal(answer)
	if err != nil {
		return err
	}

	return h.sig.SendAnswer(from, answerJSON)
}

// HandleICECandidate adds a remote ICE candidate from a viewer.
func (h *Host) HandleICECandidate(from string, payload json.RawMessage) error {
	h.mu.Lock()
	pc := h.viewers[from]
	h.mu.Unlock()
	if pc == nil {
		return fmt.Errorf("ICE candidate from unknown viewer %q", from)
	}
	return addCandidate(pc, payload)
}

// Viewers returns the number of live peer connections.
func (h *Host) Viewers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.viewers)
}

// forget removes pc if it is still the viewer's current connection.
func (h *Host) forget(id string, pc *webrtc.PeerConnection) {
	h.mu.Lock()
	current, ok := h.viewers[id]
	if ok && current == pc {
		delete(h.viewers, id)
	}
	h.mu.Unlock()
	if ok && current == pc && h.events.OnViewerGone != nil {
		h.events.OnViewerGone(id)
	}
}

func (h *Host) drop(id string) {
	h.mu.Lock()
	pc, ok := h.viewers[id]
	delete(h.viewers, id)
	h.mu.Unlock()
	if !ok {
		return
	}
	if h.events.OnViewerGone != nil {
		h.events.OnViewerGone(id)
	}
	pc.Close()
}

// Close shuts down every viewer connection.
func (h *Host) Close() {
	h.mu.Lock()
	ids := make([]string, 0, len(h.viewers))
	for id := range h.viewers {
		ids = append(ids, id)
	}
	h.mu.Unlock()
	for _, id := range ids {
		h.drop(id)
	}
}
