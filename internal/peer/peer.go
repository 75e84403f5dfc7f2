package peer

import (
	"encoding/json"

	"github.com/pion/webrtc/v4"
	"go.uber.org/zap"

	"github.com/junsooki/DepthCam/internal/signaling"
)

// ICEServers is the default ICE server configuration.
var ICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302", "stun:stun1.l.google.com:19302"}},
}

// Signaler relays SDP and ICE messages to a remote peer.
// *signaling.Client implements it.
type Signaler interface {
	SendOffer(target string, payload json.RawMessage) error
	SendAnswer(target string, payload json.RawMessage) error
	SendICECandidate(target string, payload json.RawMessage) error
}

var _ Signaler = (*signaling.Client)(nil)

// NewAPI builds a webrtc.API whose internal logging goes to log.
func NewAPI(log *zap.SugaredLogger) *webrtc.API {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	se := webrtc.SettingEngine{LoggerFactory: zapLoggerFactory{log: log}}
	return webrtc.NewAPI(webrtc.WithSettingEngine(se))
}

// NewPeerConnection creates a configured PeerConnection. Every connection
// state change is logged and then passed to onState, which may be nil.
func NewPeerConnection(api *webrtc.API, log *zap.SugaredLogger, onState func(webrtc.PeerConnectionState)) (*webrtc.PeerConnection, error) {
	cfg := webrtc.Configuration{
		ICEServers: ICEServers,
	}
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, err
	}
	pc.OnConnectionStateChange(watchState(log, onState))
	return pc, nil
}

func watchState(log *zap.SugaredLogger, next func(webrtc.PeerConnectionState)) func(webrtc.PeerConnectionState) {
	return func(state webrtc.PeerConnectionState) {
		log.Infow("peer connection state", "state", state.String())
		if next != nil {
			next(state)
		}
	}
}

func sendCandidate(sig Signaler, log *zap.SugaredLogger, target string, c *webrtc.ICECandidate) {
	data, err := json.Marshal(c.ToJSON())
	if err != nil {
		log.Warnw("marshal ICE candidate", "error", err)
		return
	}
	if err := sig.SendICECandidate(target, data); err != nil {
		log.Warnw("send ICE candidate", "error", err)
	}
}

func addCandidate(pc *webrtc.PeerConnection, payload json.RawMessage) error {
	var candidate webrtc.ICECandidateInit
	if err := json.Unmarshal(payload, &candidate); err != nil {
		return err
	}
	return pc.AddICECandidate(candidate)
}
