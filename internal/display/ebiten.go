package display

import (
	"image"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/junsooki/DepthCam/internal/composite"
	"github.com/junsooki/DepthCam/internal/decoder"
)

// TickFunc advances capture by one tick. It runs inside the window's
// update loop, on the main goroutine.
type TickFunc func() error

// EbitenDisplay shows composited frames in a window using Ebitengine.
// Frames arrive either from Render, driven by the tick function, or from
// SetFrame on another goroutine.
type EbitenDisplay struct {
	title string
	tick  TickFunc

	mu          sync.Mutex
	frame       *image.RGBA
	canvas      *image.RGBA
	ebitenImage *ebiten.Image
}

// NewEbitenDisplay creates a window titled title. tick may be nil.
func NewEbitenDisplay(title string, tick TickFunc) *EbitenDisplay {
	return &EbitenDisplay{title: title, tick: tick}
}

// Render composes the frames and shows the result on the next draw.
func (d *EbitenDisplay) Render(color *decoder.ColorFrame, depth *decoder.DepthFrame) error {
	if d.canvas == nil {
		d.canvas = composite.Canvas(color, depth)
	}
	composite.Compose(d.canvas, color, depth)

	d.mu.Lock()
	d.frame = d.canvas
	d.mu.Unlock()
	return nil
}

// SetFrame copies img for display (called from network goroutine).
func (d *EbitenDisplay) SetFrame(img *image.RGBA) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.frame == nil || d.frame.Bounds() != img.Bounds() {
		d.frame = image.NewRGBA(img.Bounds())
	}
	copy(d.frame.Pix, img.Pix)
}

// Run starts the Ebitengine game loop. Must be called from the main goroutine.
func (d *EbitenDisplay) Run() error {
	ebiten.SetWindowSize(decoder.ColorWidth+decoder.DepthWidth, decoder.ColorHeight)
	ebiten.SetWindowTitle(d.title)
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)
	return ebiten.RunGame(d)
}

// --- ebiten.Game interface ---

func (d *EbitenDisplay) Update() error {
	if inpututil.IsKeyJustPressed(ebiten.KeyEscape) {
		return ebiten.Termination
	}
	if d.tick != nil {
		return d.tick()
	}
	return nil
}

func (d *EbitenDisplay) Draw(screen *ebiten.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	frame := d.frame
	if frame == nil {
		return
	}

	if d.ebitenImage == nil ||
		d.ebitenImage.Bounds().Dx() != frame.Bounds().Dx() ||
		d.ebitenImage.Bounds().Dy() != frame.Bounds().Dy() {
		d.ebitenImage = ebiten.NewImage(frame.Bounds().Dx(), frame.Bounds().Dy())
	}
	d.ebitenImage.WritePixels(frame.Pix)

	sw, sh := screen.Bounds().Dx(), screen.Bounds().Dy()
	fw, fh := float64(frame.Bounds().Dx()), float64(frame.Bounds().Dy())
	scale, offsetX, offsetY := aspectFitTransform(float64(sw), float64(sh), fw, fh)

	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(scale, scale)
	op.GeoM.Translate(offsetX, offsetY)
	screen.DrawImage(d.ebitenImage, op)
}

func (d *EbitenDisplay) Layout(outsideWidth, outsideHeight int) (int, int) {
	return outsideWidth, outsideHeight
}
