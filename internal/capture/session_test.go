package capture

import (
	"errors"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/junsooki/DepthCam/internal/metrics"
	"github.com/junsooki/DepthCam/internal/v4l2"
)

func startFake(t *testing.T, dev *fakeDevice, force bool) *Session {
	t.Helper()
	s, err := Start("/dev/fake0", Options{ForceFormat: force, Open: dev.opener()})
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestStart_OpenFailure(t *testing.T) {
	_, err := Start("/dev/missing", Options{Open: func(string) (Device, error) {
		return nil, v4l2.ErrNotCharDevice
	}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceNotFound)
	assert.ErrorIs(t, err, v4l2.ErrNotCharDevice)
	assert.True(t, IsSetupFailure(err))
}

func TestStart_Capabilities(t *testing.T) {
	tests := []struct {
		name    string
		caps    v4l2.Capability
		capsErr error
	}{
		{name: "not v4l2", capsErr: syscall.EINVAL},
		{name: "querycap error", capsErr: syscall.EIO},
		{name: "no capture", caps: v4l2.Capability{Capabilities: v4l2.CapStreaming}},
		{name: "no streaming", caps: v4l2.Capability{Capabilities: v4l2.CapVideoCapture}},
		{name: "device caps lack streaming", caps: v4l2.Capability{
			Capabilities: v4l2.CapVideoCapture | v4l2.CapStreaming | v4l2.CapDeviceCaps,
			DeviceCaps:   v4l2.CapVideoCapture,
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			dev.caps = tt.caps
			dev.capsErr = tt.capsErr

			_, err := Start("/dev/fake0", Options{Open: dev.opener()})
			assert.ErrorIs(t, err, ErrNotCaptureDevice)
			assert.Equal(t, 1, dev.closed)
		})
	}
}

func TestStart_CropFailuresIgnored(t *testing.T) {
	dev := newFakeDevice()
	dev.cropErr = syscall.EINVAL
	startFake(t, dev, false)
	assert.Zero(t, dev.cropCalls)

	dev = newFakeDevice()
	dev.setCropErr = syscall.ENOTTY
	startFake(t, dev, false)
	assert.Equal(t, 1, dev.cropCalls)
}

func TestStart_ForceFormatUsesNegotiatedGeometry(t *testing.T) {
	dev := newFakeDevice()
	dev.negotiated = v4l2.PixFormat{
		Width: 424, Height: 240, PixelFormat: v4l2.PixFmtYUYV,
		BytesPerLine: 848, SizeImage: 848 * 240,
	}
	s := startFake(t, dev, true)

	require.NotNil(t, dev.setFmtReq)
	assert.Equal(t, uint32(640), dev.setFmtReq.Width)
	assert.Equal(t, uint32(480), dev.setFmtReq.Height)
	assert.Equal(t, v4l2.PixFmtYUYV, dev.setFmtReq.PixelFormat)
	assert.Equal(t, uint32(v4l2.FieldInterlaced), dev.setFmtReq.Field)

	assert.Equal(t, 424, s.Format().Width)
	assert.Equal(t, 240, s.Format().Height)
	assert.Equal(t, 848, s.Format().Stride)
}

func TestStart_KeepsActiveFormat(t *testing.T) {
	dev := newFakeDevice()
	s := startFake(t, dev, false)

	assert.Nil(t, dev.setFmtReq)
	assert.Equal(t, 320, s.Format().Width)
	assert.Equal(t, v4l2.PixFmtZ16Y8, s.Format().PixelFormat)
}

func TestStart_FormatRejected(t *testing.T) {
	for _, force := range []bool{true, false} {
		dev := newFakeDevice()
		dev.fmtErr = syscall.EBUSY

		_, err := Start("/dev/fake0", Options{ForceFormat: force, Open: dev.opener()})
		assert.ErrorIs(t, err, ErrFormatNegotiation)
		assert.ErrorIs(t, err, syscall.EBUSY)
		assert.Equal(t, 1, dev.closed)
	}
}

func TestFormat_ApplyMinimums(t *testing.T) {
	tests := []struct {
		name       string
		in         Format
		wantStride int
		wantSize   int
	}{
		{"both zero", Format{Width: 640, Height: 480}, 1280, 1280 * 480},
		{"below", Format{Width: 640, Height: 480, Stride: 1000, SizeImage: 100}, 1280, 1280 * 480},
		{"at minimum", Format{Width: 640, Height: 480, Stride: 1280, SizeImage: 1280 * 480}, 1280, 1280 * 480},
		{"above", Format{Width: 320, Height: 240, Stride: 960, SizeImage: 960*240 + 64}, 960, 960*240 + 64},
		{"stride raised lifts size", Format{Width: 4, Height: 2, Stride: 4, SizeImage: 12}, 8, 16},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.in.applyMinimums()
			assert.Equal(t, tt.wantStride, got.Stride)
			assert.Equal(t, tt.wantSize, got.SizeImage)
			assert.GreaterOrEqual(t, got.Stride, 2*got.Width)
			assert.GreaterOrEqual(t, got.SizeImage, got.Stride*got.Height)
		})
	}
}

func TestStart_AppliesMinimumsToReportedFormat(t *testing.T) {
	dev := newFakeDevice()
	dev.active.BytesPerLine = 10
	dev.active.SizeImage = 10
	s := startFake(t, dev, false)

	assert.Equal(t, 640, s.Format().Stride)
	assert.Equal(t, 640*240, s.Format().SizeImage)
}

func TestStart_BufferPoolSize(t *testing.T) {
	tests := []struct {
		granted uint32
		wantErr bool
	}{
		{0, true},
		{1, true},
		{2, false},
		{4, false},
	}

	for _, tt := range tests {
		dev := newFakeDevice()
		dev.granted = tt.granted

		s, err := Start("/dev/fake0", Options{Open: dev.opener()})
		assert.Equal(t, uint32(requestedBuffers), dev.requested)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInsufficientBuffers, "granted %d", tt.granted)
			assert.Equal(t, 1, dev.closed)
			continue
		}
		require.NoError(t, err, "granted %d", tt.granted)
		assert.Equal(t, int(tt.granted), s.Pool().Len())
		assert.Equal(t, int(tt.granted), s.Pool().Queued())
		assert.True(t, dev.streaming)
		s.Close()
	}
}

func TestStart_RequestBuffersErrors(t *testing.T) {
	dev := newFakeDevice()
	dev.reqErr = syscall.EINVAL
	_, err := Start("/dev/fake0", Options{Open: dev.opener()})
	assert.ErrorIs(t, err, ErrNotCaptureDevice)

	dev = newFakeDevice()
	dev.reqErr = syscall.ENOMEM
	_, err = Start("/dev/fake0", Options{Open: dev.opener()})
	assert.ErrorIs(t, err, ErrInsufficientBuffers)
}

func TestStart_MappingFailureReleasesMappedBuffers(t *testing.T) {
	dev := newFakeDevice()
	dev.mapFailAt = 2

	_, err := Start("/dev/fake0", Options{Open: dev.opener()})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrMappingFailed)
	assert.ElementsMatch(t, []uint32{0, 1}, dev.unmapped)
	assert.Equal(t, 1, dev.closed)
	assert.Zero(t, dev.streamOffs)
	assert.Empty(t, dev.queued)
}

func TestStart_QueryBufferFailure(t *testing.T) {
	dev := newFakeDevice()
	dev.queryErr = syscall.EINVAL

	_, err := Start("/dev/fake0", Options{Open: dev.opener()})
	assert.ErrorIs(t, err, ErrMappingFailed)
	assert.Empty(t, dev.unmapped)
	assert.Equal(t, 1, dev.closed)
}

func TestStart_StreamStartFailures(t *testing.T) {
	dev := newFakeDevice()
	dev.queueErr = syscall.EIO
	dev.queueFrom = 1
	_, err := Start("/dev/fake0", Options{Open: dev.opener()})
	assert.ErrorIs(t, err, ErrStreamStart)
	assert.Len(t, dev.unmapped, 4)
	assert.Equal(t, 1, dev.closed)

	dev = newFakeDevice()
	dev.streamOnErr = syscall.EIO
	_, err = Start("/dev/fake0", Options{Open: dev.opener()})
	assert.ErrorIs(t, err, ErrStreamStart)
	assert.Len(t, dev.unmapped, 4)
	assert.Zero(t, dev.streamOffs)
}

func TestPoll_DeliversProducedBytes(t *testing.T) {
	dev := newFakeDevice()
	dev.bytesUsed = 6
	dev.fill = func(index uint32, b []byte) {
		copy(b, []byte{byte(index), 1, 2, 3, 4, 5, 6, 7})
	}
	s := startFake(t, dev, true)

	var got []byte
	var states []State
	err := s.Poll(func(data []byte) error {
		got = append([]byte(nil), data...)
		for i := 0; i < s.Pool().Len(); i++ {
			states = append(states, s.Pool().Buffer(i).State())
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 2, 3, 4, 5}, got)
	assert.Equal(t, []State{StateFilled, StateQueued, StateQueued, StateQueued}, states)
	assert.Equal(t, 4, s.Pool().Queued())
	assert.Nil(t, s.Pool().Buffer(0).Bytes())
}

func TestPoll_RecyclesEveryBuffer(t *testing.T) {
	dev := newFakeDevice()
	dev.bytesUsed = 16
	s := startFake(t, dev, true)

	seen := map[uint32]int{}
	dev.fill = func(index uint32, _ []byte) { seen[index]++ }

	rounds := 3
	for i := 0; i < rounds*s.Pool().Len(); i++ {
		require.NoError(t, s.Poll(func([]byte) error { return nil }), "poll %d", i)
		assert.Equal(t, s.Pool().Len(), s.Pool().Queued())
	}
	assert.Len(t, seen, 4)
	for index, n := range seen {
		assert.Equal(t, rounds, n, "buffer %d", index)
	}
}

func TestPoll_InterruptedWaitRestartsTimeout(t *testing.T) {
	dev := newFakeDevice()
	dev.bytesUsed = 1
	m := metrics.New()
	s, err := Start("/dev/fake0", Options{Open: dev.opener(), PollTimeout: 750 * time.Millisecond, Metrics: m})
	require.NoError(t, err)
	defer s.Close()

	const interruptions = 5
	for i := 0; i < interruptions; i++ {
		dev.waits = append(dev.waits, waitResult{err: syscall.EINTR})
	}
	dev.waits = append(dev.waits, waitResult{ready: true})

	calls := 0
	require.NoError(t, s.Poll(func([]byte) error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	require.Len(t, dev.waitTimeouts, interruptions+1)
	for _, d := range dev.waitTimeouts {
		assert.Equal(t, 750*time.Millisecond, d)
	}
	expected := `
# HELP depthcam_poll_interrupts_total Waits interrupted by a signal and restarted
# TYPE depthcam_poll_interrupts_total counter
depthcam_poll_interrupts_total{device="/dev/fake0"} 5
`
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "depthcam_poll_interrupts_total"))
}

func TestPoll_Timeout(t *testing.T) {
	dev := newFakeDevice()
	s := startFake(t, dev, true)
	dev.waits = []waitResult{{ready: false}}

	called := false
	err := s.Poll(func([]byte) error { called = true; return nil })
	assert.ErrorIs(t, err, ErrPollTimeout)
	assert.False(t, called)
	assert.Equal(t, DefaultPollTimeout, dev.waitTimeouts[0])
}

func TestPoll_WaitFailure(t *testing.T) {
	dev := newFakeDevice()
	s := startFake(t, dev, true)
	dev.waits = []waitResult{{err: syscall.EBADF}}

	err := s.Poll(func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrPollFailed)
	assert.ErrorIs(t, err, syscall.EBADF)
}

func TestPoll_DequeueAgainWaitsAgain(t *testing.T) {
	dev := newFakeDevice()
	dev.bytesUsed = 2
	s := startFake(t, dev, true)
	dev.dqErrs = []error{syscall.EAGAIN, syscall.EAGAIN}

	calls := 0
	require.NoError(t, s.Poll(func([]byte) error { calls++; return nil }))
	assert.Equal(t, 1, calls)
	assert.Len(t, dev.waitTimeouts, 3)
}

func TestPoll_DequeueFailure(t *testing.T) {
	dev := newFakeDevice()
	s := startFake(t, dev, true)
	dev.dqErrs = []error{syscall.EIO}

	err := s.Poll(func([]byte) error { return nil })
	assert.ErrorIs(t, err, ErrPollFailed)
}

func TestPoll_RequeuesWhenCallbackFails(t *testing.T) {
	dev := newFakeDevice()
	s := startFake(t, dev, true)
	errDecode := errors.New("decode")

	err := s.Poll(func([]byte) error { return errDecode })
	assert.ErrorIs(t, err, errDecode)
	assert.Equal(t, 4, s.Pool().Queued())
}

func TestPoll_RequeueFailureIsFatal(t *testing.T) {
	dev := newFakeDevice()
	s := startFake(t, dev, true)
	dev.queueErr = syscall.EIO
	dev.queueFrom = dev.queueCalls

	err := s.Poll(func([]byte) error { return errors.New("ignored") })
	assert.ErrorIs(t, err, ErrRequeueFailed)
	assert.Equal(t, 3, s.Pool().Queued())
	assert.Equal(t, StateFree, s.Pool().Buffer(0).State())
}

func TestPoll_BytesUsedClampedToCapacity(t *testing.T) {
	dev := newFakeDevice()
	dev.bytesUsed = fakePageSize * 2
	s := startFake(t, dev, true)

	var n int
	require.NoError(t, s.Poll(func(data []byte) error { n = len(data); return nil }))
	assert.Equal(t, fakePageSize, n)
}

var (
	colorWant = Want{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtYUYV, BytesPerPixel: 2}
	depthWant = Want{Width: 320, Height: 240, PixelFormat: v4l2.PixFmtZ16Y8, BytesPerPixel: 3}
)

func TestStart_WantMatches(t *testing.T) {
	color := newFakeDevice()
	s, err := Start("/dev/fake0", Options{ForceFormat: true, Want: colorWant, Open: color.opener()})
	require.NoError(t, err)
	s.Close()

	depth := newFakeDevice()
	s, err = Start("/dev/fake1", Options{Want: depthWant, Open: depth.opener()})
	require.NoError(t, err)
	s.Close()
}

func TestStart_WantMismatch(t *testing.T) {
	tests := []struct {
		name  string
		force bool
		pix   v4l2.PixFormat
		want  Want
		msg   string
	}{
		{
			name: "driver shrank forced geometry", force: true, want: colorWant,
			pix: v4l2.PixFormat{Width: 320, Height: 240, PixelFormat: v4l2.PixFmtYUYV, BytesPerLine: 640, SizeImage: 640 * 240},
			msg: "got 320x240, want 640x480",
		},
		{
			name: "depth node configured as YUYV", want: depthWant,
			pix: v4l2.PixFormat{Width: 320, Height: 240, PixelFormat: v4l2.PixFmtYUYV, BytesPerLine: 640, SizeImage: 640 * 240},
			msg: "want Z16Y",
		},
		{
			name: "padded rows", force: true, want: colorWant,
			pix: v4l2.PixFormat{Width: 640, Height: 480, PixelFormat: v4l2.PixFmtYUYV, BytesPerLine: 1344, SizeImage: 1344 * 480},
			msg: "got stride 1344, want 1280",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dev := newFakeDevice()
			if tt.force {
				dev.negotiated = tt.pix
			} else {
				dev.active = tt.pix
			}

			_, err := Start("/dev/fake0", Options{ForceFormat: tt.force, Want: tt.want, Open: dev.opener()})
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrFormatNegotiation)
			assert.ErrorContains(t, err, tt.msg)
			assert.True(t, IsSetupFailure(err))
			assert.Zero(t, dev.requested)
			assert.False(t, dev.streaming)
			assert.Equal(t, 1, dev.closed)
		})
	}
}

func TestClose_ReleasesEverythingAndLogsFailures(t *testing.T) {
	dev := newFakeDevice()
	dev.streamOffErr = syscall.EIO
	dev.unmapErr = syscall.EINVAL
	dev.closeErr = syscall.EBADF

	s, err := Start("/dev/fake0", Options{Open: dev.opener()})
	require.NoError(t, err)

	s.Close()
	s.Close()

	assert.Equal(t, 1, dev.streamOffs)
	assert.ElementsMatch(t, []uint32{0, 1, 2, 3}, dev.unmapped)
	assert.Equal(t, 1, dev.closed)
	assert.Zero(t, s.Pool().Queued())
}
