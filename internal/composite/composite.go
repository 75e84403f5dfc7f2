// Package composite lays the decoded planes of both sensors out on one
// RGBA canvas: the color frame on the left, the intensity plane top right
// and the depth plane bottom right.
package composite

import (
	"image"

	"github.com/junsooki/DepthCam/internal/decoder"
)

// Canvas allocates a destination large enough for Compose.
func Canvas(c *decoder.ColorFrame, d *decoder.DepthFrame) *image.RGBA {
	h := c.Height
	if 2*d.Height > h {
		h = 2 * d.Height
	}
	return image.NewRGBA(image.Rect(0, 0, c.Width+d.Width, h))
}

// Compose draws both frames onto dst, which must come from Canvas.
func Compose(dst *image.RGBA, c *decoder.ColorFrame, d *decoder.DepthFrame) {
	yuyvToRGBA(dst, image.Pt(0, 0), c)
	grayToRGBA(dst, image.Pt(c.Width, 0), d.Width, d.Height, func(i int) uint8 {
		return d.Intensity[i]
	})
	// 16-bit depth is shown by its high byte, as 16-bit luminance would
	// be quantized on an 8-bit display.
	grayToRGBA(dst, image.Pt(c.Width, d.Height), d.Width, d.Height, func(i int) uint8 {
		return uint8(d.Depth[i] >> 8)
	})
}

// yuyvToRGBA converts 4:2:2 YUYV with BT.601 limited-range coefficients.
func yuyvToRGBA(dst *image.RGBA, at image.Point, c *decoder.ColorFrame) {
	rowBytes := c.Width * 2
	for y := 0; y < c.Height; y++ {
		row := c.Pix[y*rowBytes : (y+1)*rowBytes]
		out := dst.Pix[dst.PixOffset(at.X, at.Y+y):]
		for x := 0; x+1 < c.Width; x += 2 {
			si := x * 2
			u := int(row[si+1]) - 128
			v := int(row[si+3]) - 128
			putYUV(out[x*4:], int(row[si]), u, v)
			putYUV(out[(x+1)*4:], int(row[si+2]), u, v)
		}
	}
}

func putYUV(px []byte, y, u, v int) {
	c := 298 * (y - 16)
	px[0] = clamp((c + 409*v + 128) >> 8)
	px[1] = clamp((c - 100*u - 208*v + 128) >> 8)
	px[2] = clamp((c + 516*u + 128) >> 8)
	px[3] = 0xff
}

func grayToRGBA(dst *image.RGBA, at image.Point, w, h int, sample func(i int) uint8) {
	for y := 0; y < h; y++ {
		out := dst.Pix[dst.PixOffset(at.X, at.Y+y):]
		for x := 0; x < w; x++ {
			g := sample(y*w + x)
			px := out[x*4 : x*4+4]
			px[0], px[1], px[2], px[3] = g, g, g, 0xff
		}
	}
}

func clamp(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
