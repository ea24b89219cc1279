package main

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"time"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"tankpit-bot/internal/scene"
	"tankpit-bot/internal/vision"
)

var (
	gaugeColor = color.RGBA{R: 0, G: 255, B: 255, A: 255}
	nodeColor  = color.RGBA{R: 255, G: 215, B: 0, A: 255}
	onColor    = color.RGBA{R: 0, G: 220, B: 0, A: 255}
	offColor   = color.RGBA{R: 220, G: 30, B: 30, A: 255}
	textColor  = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

// runTraining analyzes one saved screenshot and writes an annotated copy to
// out. It is the offline way to tune the detector thresholds.
func runTraining(ctx context.Context, path, out string, cfg vision.Config) error {
	log.Info().Str("file", path).Msg("training mode")

	mat := gocv.IMRead(path, gocv.IMReadColor)
	if mat.Empty() {
		return fmt.Errorf("failed to load %s", path)
	}
	defer mat.Close()

	img, err := mat.ToImage()
	if err != nil {
		return fmt.Errorf("failed to convert %s: %w", path, err)
	}
	frame := scene.FromImage(img, time.Now())
	log.Info().Int("width", frame.Width()).Int("height", frame.Height()).Msg("image loaded")

	analyzer := vision.NewAnalyzer(cfg)
	analysis := analyzer.Analyze(ctx, frame, frame.Center())

	log.Info().
		Int("fuel", analysis.Fuel.Percentage).
		Stringer("confidence", analysis.Fuel.Confidence).
		Str("method", analysis.Fuel.Method).
		Int("nodes", len(analysis.Nodes)).
		Msg("detection")
	for i, n := range analysis.Nodes {
		log.Debug().Int("rank", i+1).Float64("value", n.Value).
			Int("x", n.Position.X).Int("y", n.Position.Y).Msg("node")
	}

	annotate(&mat, analyzer, frame, analysis)

	if !gocv.IMWrite(out, mat) {
		return fmt.Errorf("failed to write %s", out)
	}
	log.Info().Str("file", out).Msg("visualization saved")
	return nil
}

func annotate(mat *gocv.Mat, analyzer *vision.Analyzer, frame *scene.Frame, analysis scene.Analysis) {
	if bar, ok := analyzer.Gauge.Locate(frame); ok {
		gocv.Rectangle(mat, bar.Rect(), gaugeColor, 2)
		label(mat, bar.X, bar.Y-6, fmt.Sprintf("fuel %d%% (%s)", analysis.Fuel.Percentage, analysis.Fuel.Method), gaugeColor)
	}

	for i, n := range analysis.Nodes {
		gocv.Rectangle(mat, n.Box.Rect(), nodeColor, 2)
		label(mat, n.Box.X, n.Box.Y-6, fmt.Sprintf("#%d %.0f", i+1, n.Value), nodeColor)
	}

	for _, slot := range scene.Slots {
		r, ok := analyzer.Equipment.Region(slot)
		if !ok {
			continue
		}
		c := offColor
		if analysis.Equipment[slot] {
			c = onColor
		}
		gocv.Rectangle(mat, r.Rect(), c, 1)
		label(mat, r.X, r.Y-4, string(slot), c)
	}

	label(mat, 10, 20, fmt.Sprintf("fuel %d%%  %s  nodes %d",
		analysis.Fuel.Percentage, analysis.Fuel.Confidence, len(analysis.Nodes)), textColor)
}

func label(mat *gocv.Mat, x, y int, text string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	gocv.PutText(mat, text, image.Pt(x, y), gocv.FontHersheyPlain, 1, c, 1)
}
