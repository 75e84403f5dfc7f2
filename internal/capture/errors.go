package capture

import "errors"

// Setup failures. They abort the start of one device and are never retried.
var (
	// ErrDeviceNotFound indicates the path does not resolve to a character device.
	ErrDeviceNotFound = errors.New("device not found")
	// ErrNotCaptureDevice indicates the device lacks video capture, streaming
	// or memory-mapping support.
	ErrNotCaptureDevice = errors.New("not a streaming capture device")
	// ErrFormatNegotiation indicates the driver rejected the format request.
	ErrFormatNegotiation = errors.New("format negotiation failed")
	// ErrInsufficientBuffers indicates the driver granted fewer than two buffers.
	ErrInsufficientBuffers = errors.New("insufficient buffer memory")
	// ErrMappingFailed indicates a buffer could not be mapped into the process.
	ErrMappingFailed = errors.New("buffer mapping failed")
	// ErrStreamStart indicates the initial queueing or STREAMON was rejected.
	ErrStreamStart = errors.New("stream start failed")
)

// Poll failures.
var (
	// ErrPollTimeout indicates no buffer became ready within the poll timeout.
	ErrPollTimeout = errors.New("poll timeout")
	// ErrPollFailed indicates the wait or dequeue failed.
	ErrPollFailed = errors.New("poll failed")
	// ErrRequeueFailed indicates a consumed buffer could not be handed back to
	// the driver. The device will eventually starve, so this is fatal.
	ErrRequeueFailed = errors.New("buffer requeue failed")
)

var setupErrors = []error{
	ErrDeviceNotFound,
	ErrNotCaptureDevice,
	ErrFormatNegotiation,
	ErrInsufficientBuffers,
	ErrMappingFailed,
	ErrStreamStart,
}

// IsSetupFailure reports whether err aborted a session start.
func IsSetupFailure(err error) bool {
	for _, target := range setupErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
