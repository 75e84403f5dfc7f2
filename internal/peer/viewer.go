package peer

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/DepthCam/internal/transport"
)

// Viewer manages the viewer side of the WebRTC connection.
type Viewer struct {
	pc        *webrtc.PeerConnection
	sig       Signaler
	transport *transport.DataChannelTransport
	hostID    string
	log       *zap.SugaredLogger
}

// NewViewer creates a Viewer peer manager for hostID.
func NewViewer(api *webrtc.API, sig Signaler, hostID string, log *zap.SugaredLogger) (*Viewer, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.With("host", hostID)
	pc, err := NewPeerConnection(api, log, nil)
	if err != nil {
		return nil, err
	}

	v := &Viewer{
		pc:        pc,
		sig:       sig,
		transport: transport.NewDataChannelTransport(nil),
		hostID:    hostID,
		log:       log,
	}

	// The host announces the frames channel.
	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		log.Infow("data channel received", "label", dc.Label())
		if dc.Label() != transport.FramesLabel {
			return
		}
		dc.OnOpen(func() {
			log.Infow("frames data channel open")
		})
		v.transport.SetFramesChannel(dc)
	})

	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		sendCandidate(sig, log, hostID, c)
	})

	return v, nil
}

// Transport returns the DataChannelTransport.
func (v *Viewer) Transport() *transport.DataChannelTransport {
	return v.transport
}

// Connect initiates the WebRTC connection by creating and sending an offer.
func (v *Viewer) Connect() error {
	// The offer needs an application section for the host's frames channel.
	if _, err := v.pc.CreateDataChannel("control", nil); err != nil {
		return err
	}

	offer, err := v.pc.CreateOffer(nil)
	if err != nil {
		return err
	}

	if err := v.pc.SetLocalDescription(offer); err != nil {
		return err
	}

	offerJSON, err := json.Marshal(offer)
	if err != nil {
		return err
	}

	return v.sig.SendOffer(v.hostID, offerJSON)
}

// HandleAnswer processes an incoming SDP answer.
func (v *Viewer) HandleAnswer(payload json.RawMessage) error {
	var answer webrtc.SessionDescription
	if err := json.Unmarshal(payload, &answer); err != nil {
		return err
	}
	return v.pc.SetRemoteDescription(answer)
}

// HandleICECandidate adds a remote ICE candidate.
func (v *Viewer) HandleICECandidate(payload json.RawMessage) error {
	return addCandidate(v.pc, payload)
}

// Close shuts down the peer connection.
func (v *Viewer) Close() {
	if v.pc != nil {
		v.pc.Close()
	}
}
