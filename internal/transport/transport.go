package transport

// FrameSender sends encoded composites.
type FrameSender interface {
	SendFrame(data []byte) error
	// Open reports whether a frame sent now could be delivered.
	Open() bool
}

// FrameReceiver receives encoded composites.
type FrameReceiver interface {
	OnFrame(callback func(data []byte))
}
