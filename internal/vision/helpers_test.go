package vision

import (
	"image"
	"image/color"
	"math"
	"time"

	"tankpit-bot/internal/scene"
)

var (
	black  = color.RGBA{0, 0, 0, 255}
	gray   = color.RGBA{160, 160, 160, 255}
	green  = color.RGBA{0, 255, 0, 255}
	gold   = color.RGBA{255, 215, 0, 255}
	dimmed = color.RGBA{200, 168, 0, 255}
	cyan   = color.RGBA{0, 200, 255, 255}
	slate  = color.RGBA{128, 128, 128, 255}
	rust   = color.RGBA{60, 30, 30, 255}
	murky  = color.RGBA{40, 40, 40, 255}
)

func canvas(w, h int) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	paint(img, scene.Rgn(0, 0, w, h), black)
	return img
}

func paint(img *image.RGBA, r scene.Region, c color.RGBA) {
	for y := r.Y; y < r.Y+r.H; y++ {
		for x := r.X; x < r.X+r.W; x++ {
			img.SetRGBA(x, y, c)
		}
	}
}

func outline(img *image.RGBA, r scene.Region, c color.RGBA) {
	paint(img, scene.Rgn(r.X, r.Y, r.W, 1), c)
	paint(img, scene.Rgn(r.X, r.Y+r.H-1, r.W, 1), c)
	paint(img, scene.Rgn(r.X, r.Y, 1, r.H), c)
	paint(img, scene.Rgn(r.X+r.W-1, r.Y, 1, r.H), c)
}

func frameOf(img *image.RGBA) *scene.Frame {
	return scene.NewFrame(img, time.Now())
}

// drawGauge draws an outlined gauge whose interior is filled to ratio.
func drawGauge(img *image.RGBA, bar scene.Region, ratio float64, fill color.RGBA) {
	outline(img, bar, gray)
	inner := bar.Inset(1)
	filled := int(math.Round(float64(inner.W) * ratio))
	paint(img, scene.Rgn(inner.X, inner.Y, filled, inner.H), fill)
}

func gaugeFrame(ratio float64) *scene.Frame {
	img := canvas(400, 300)
	drawGauge(img, scene.Rgn(100, 265, 200, 16), ratio, green)
	return frameOf(img)
}
