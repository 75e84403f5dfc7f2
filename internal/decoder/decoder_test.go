package decoder

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeZ16Y8_TwoElements(t *testing.T) {
	dst := NewDepthFrame(2, 1)
	src := []byte{
		100, 0, 10,      // depth 100, intensity 10
		0xa0, 0x0f, 250, // depth 4000, intensity 250
	}

	require.NoError(t, DecodeZ16Y8(dst, src))
	assert.Equal(t, []uint16{100, 4000}, dst.Depth)
	assert.Equal(t, []uint8{10, 250}, dst.Intensity)
}

func TestDecodeZ16Y8_FullFrame(t *testing.T) {
	dst := NewDepthFrame(DepthWidth, DepthHeight)
	n := DepthWidth * DepthHeight
	src := make([]byte, n*3)
	for i := 0; i < n; i++ {
		d := uint16(i * 7)
		src[i*3] = byte(d)
		src[i*3+1] = byte(d >> 8)
		src[i*3+2] = byte(i)
	}

	require.NoError(t, DecodeZ16Y8(dst, src))
	for i := 0; i < n; i++ {
		if dst.Depth[i] != uint16(i*7) || dst.Intensity[i] != byte(i) {
			t.Fatalf("element %d: depth=%d intensity=%d", i, dst.Depth[i], dst.Intensity[i])
		}
	}
}

func TestDecodeZ16Y8_ShortInputLeavesPlanes(t *testing.T) {
	dst := NewDepthFrame(2, 2)
	copy(dst.Depth, []uint16{1, 2, 3, 4})
	copy(dst.Intensity, []uint8{5, 6, 7, 8})

	err := DecodeZ16Y8(dst, make([]byte, 11))
	assert.ErrorIs(t, err, ErrShortFrame)
	assert.Equal(t, []uint16{1, 2, 3, 4}, dst.Depth)
	assert.Equal(t, []uint8{5, 6, 7, 8}, dst.Intensity)
}

func TestDecodeZ16Y8_IgnoresTrailingBytes(t *testing.T) {
	dst := NewDepthFrame(1, 1)
	require.NoError(t, DecodeZ16Y8(dst, []byte{0x34, 0x12, 9, 0xff, 0xff}))
	assert.Equal(t, uint16(0x1234), dst.Depth[0])
	assert.Equal(t, uint8(9), dst.Intensity[0])
}

func TestDecodeYUYV_PassThrough(t *testing.T) {
	dst := NewColorFrame(ColorWidth, ColorHeight)
	src := make([]byte, ColorWidth*ColorHeight*2)
	for i := range src {
		src[i] = byte(i * 31)
	}

	require.NoError(t, DecodeYUYV(dst, src))
	assert.True(t, bytes.Equal(src, dst.Pix))
}

func TestDecodeYUYV_LongerInputTruncated(t *testing.T) {
	dst := NewColorFrame(2, 1)
	require.NoError(t, DecodeYUYV(dst, []byte{1, 2, 3, 4, 5, 6}))
	assert.Equal(t, []byte{1, 2, 3, 4}, dst.Pix)
}

func TestDecodeYUYV_ShortInput(t *testing.T) {
	dst := NewColorFrame(2, 2)
	copy(dst.Pix, []byte{9, 9, 9, 9, 9, 9, 9, 9})

	err := DecodeYUYV(dst, []byte{1, 2, 3})
	assert.ErrorIs(t, err, ErrShortFrame)
	assert.Equal(t, []byte{9, 9, 9, 9, 9, 9, 9, 9}, dst.Pix)
}

func TestJPEGDecoder_ReusesOutput(t *testing.T) {
	src := image.NewRGBA(image.Rect(0, 0, 16, 8))
	for i := range src.Pix {
		src.Pix[i] = 0xff
	}
	src.Set(0, 0, color.RGBA{A: 0xff})
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, src, &jpeg.Options{Quality: 90}))

	dec := NewJPEGDecoder()
	first, err := dec.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, src.Bounds(), first.Bounds())

	second, err := dec.Decode(buf.Bytes())
	require.NoError(t, err)
	assert.Same(t, first, second)

	_, err = dec.Decode([]byte("not a jpeg"))
	assert.Error(t, err)
}

var _ Decoder = (*JPEGDecoder)(nil)
