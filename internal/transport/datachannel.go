package transport

import (
	"errors"
	"sync"

	"github.com/pion/webrtc/v4"
)

// FramesLabel names the data channel that carries composites.
const FramesLabel = "frames"

var ErrNoChannel = errors.New("frames data channel not set")

// DataChannelTransport carries JPEG composites over a WebRTC DataChannel.
type DataChannelTransport struct {
	mu       sync.RWMutex
	framesDC *webrtc.DataChannel
	onFrame  func(data []byte)
}

// NewDataChannelTransport wraps dc, which may be nil until the remote side
// announces its channel.
func NewDataChannelTransport(dc *webrtc.DataChannel) *DataChannelTransport {
	t := &DataChannelTransport{}
	if dc != nil {
		t.SetFramesChannel(dc)
	}
	return t
}

func (t *DataChannelTransport) SendFrame(data []byte) error {
	t.mu.RLock()
	dc := t.framesDC
	t.mu.RUnlock()
	if dc == nil {
		return ErrNoChannel
	}
	return dc.Send(data)
}

func (t *DataChannelTransport) Open() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.framesDC != nil && t.framesDC.ReadyState() == webrtc.DataChannelStateOpen
}

func (t *DataChannelTransport) OnFrame(cb func(data []byte)) {
	t.mu.Lock()
	t.onFrame = cb
	t.mu.Unlock()
}

// SetFramesChannel sets or replaces the frames DataChannel (used when receiving negotiated channels).
func (t *DataChannelTransport) SetFramesChannel(dc *webrtc.DataChannel) {
	t.mu.Lock()
	t.framesDC = dc
	t.mu.Unlock()
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		t.mu.RLock()
		cb := t.onFrame
		t.mu.RUnlock()
		if cb != nil {
			cb(msg.Data)
		}
	})
}
