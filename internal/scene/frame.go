package scene

import (
	"image"
	"image/draw"
	"time"
)

// Frame is one captured screen. It is never mutated after construction.
type Frame struct {
	img        *image.RGBA
	capturedAt time.Time
}

// NewFrame wraps an RGBA image. The caller hands over ownership of img and must
// not write to it afterwards. Images whose bounds do not start at the origin are
// copied so that frame coordinates always start at (0,0).
func NewFrame(img *image.RGBA, capturedAt time.Time) *Frame {
	if img == nil {
		return nil
	}
	if img.Bounds().Min != (image.Point{}) {
		return FromImage(img, capturedAt)
	}
	return &Frame{img: img, capturedAt: capturedAt}
}

// FromImage copies any image into a new frame.
func FromImage(src image.Image, capturedAt time.Time) *Frame {
	if src == nil {
		return nil
	}
	b := src.Bounds()
	rgba := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(rgba, rgba.Bounds(), src, b.Min, draw.Src)
	return &Frame{img: rgba, capturedAt: capturedAt}
}

// Image returns the underlying pixels. Treat as read-only.
func (f *Frame) Image() *image.RGBA {
	return f.img
}

// Width returns the frame width in pixels.
func (f *Frame) Width() int {
	return f.img.Rect.Dx()
}

// Height returns the frame height in pixels.
func (f *Frame) Height() int {
	return f.img.Rect.Dy()
}

// CapturedAt returns the capture timestamp.
func (f *Frame) CapturedAt() time.Time {
	return f.capturedAt
}

// Bounds returns the whole frame as a region.
func (f *Frame) Bounds() Region {
	return Region{W: f.Width(), H: f.Height()}
}

// Center returns the middle of the frame, where the player's tank is drawn.
func (f *Frame) Center() Point {
	return f.Bounds().Center()
}

// RGB returns the colour channels at (x, y). Out-of-range coordinates read as black.
func (f *Frame) RGB(x, y int) (r, g, b uint8) {
	if x < 0 || y < 0 || x >= f.Width() || y >= f.Height() {
		return 0, 0, 0
	}
	i := f.img.PixOffset(x, y)
	return f.img.Pix[i], f.img.Pix[i+1], f.img.Pix[i+2]
}
