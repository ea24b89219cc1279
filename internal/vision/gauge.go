package vision

import (
	"image"

	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"tankpit-bot/internal/scene"
)

type pixelClass uint8

const (
	pixelAmbiguous pixelClass = iota
	pixelEmpty
	pixelFilled
)

// classify sorts a pixel into empty (near black) or filled (any bright channel),
// independent of the gauge colour.
func (c GaugeConfig) classify(r, g, b uint8) pixelClass {
	if r < c.EmptyThreshold && g < c.EmptyThreshold && b < c.EmptyThreshold {
		return pixelEmpty
	}
	if r > c.FilledThreshold || g > c.FilledThreshold || b > c.FilledThreshold {
		return pixelFilled
	}
	return pixelAmbiguous
}

// gaugeStrategy is one link in the measurement chain. It reports ok=false
// when it cannot produce a confident reading and the next link should run.
type gaugeStrategy struct {
	method  string
	measure func(frame *scene.Frame, mat gocv.Mat) (scene.FuelReading, bool)
}

// FuelGauge estimates the fuel percentage from the HUD gauge.
type FuelGauge struct {
	cfg   GaugeConfig
	chain []gaugeStrategy
}

// NewFuelGauge creates the analyzer with its strategy chain:
// located bar, line scan, area ratio.
func NewFuelGauge(cfg GaugeConfig) *FuelGauge {
	g := &FuelGauge{cfg: cfg}
	g.chain = []gaugeStrategy{
		{method: scene.MethodBar, measure: g.measureBar},
		{method: scene.MethodLineScan, measure: g.measureLines},
		{method: scene.MethodArea, measure: g.measureArea},
	}
	return g
}

// Measure always returns a reading; a nil frame yields the neutral reading.
func (g *FuelGauge) Measure(frame *scene.Frame) scene.FuelReading {
	if frame == nil {
		return scene.NeutralReading()
	}
	mat, err := frameMat(frame)
	if err != nil {
		log.Debug().Err(err).Msg("Gauge: frame conversion failed, bar localization skipped")
		mat = gocv.NewMat()
	}
	defer mat.Close()
	return g.measure(frame, mat)
}

func (g *FuelGauge) measure(frame *scene.Frame, mat gocv.Mat) scene.FuelReading {
	if frame == nil {
		return scene.NeutralReading()
	}
	for _, s := range g.chain {
		if reading, ok := g.try(s, frame, mat); ok {
			if reading.Confidence != scene.Precise {
				log.Debug().Str("method", reading.Method).Stringer("confidence", reading.Confidence).
					Int("fuel", reading.Percentage).Msg("Gauge reading degraded")
			}
			return reading
		}
	}
	log.Debug().Msg("Gauge: no strategy produced a reading")
	return scene.NeutralReading()
}

func (g *FuelGauge) try(s gaugeStrategy, frame *scene.Frame, mat gocv.Mat) (reading scene.FuelReading, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Str("method", s.method).Msg("Gauge strategy panicked")
			ok = false
		}
	}()
	return s.measure(frame, mat)
}

// Locate returns the outline of the gauge bar when one is visible.
func (g *FuelGauge) Locate(frame *scene.Frame) (scene.Region, bool) {
	if frame == nil {
		return scene.Region{}, false
	}
	mat, err := frameMat(frame)
	if err != nil {
		return scene.Region{}, false
	}
	defer mat.Close()
	return g.locateBar(mat, g.strip(frame))
}

func (g *FuelGauge) strip(frame *scene.Frame) scene.Region {
	return frame.Bounds().BottomStrip(g.cfg.StripFraction)
}

// locateBar searches the strip for the widest gauge-shaped outline.
func (g *FuelGauge) locateBar(mat gocv.Mat, strip scene.Region) (scene.Region, bool) {
	if mat.Empty() || strip.Empty() {
		return scene.Region{}, false
	}

	roi := mat.Region(strip.Rect())
	defer roi.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(roi, &gray, gocv.ColorBGRToGray)

	edges := gocv.NewMat()
	defer edges.Close()
	gocv.Canny(gray, &edges, g.cfg.CannyLow, g.cfg.CannyHigh)

	contours := gocv.FindContours(edges, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	var best image.Rectangle
	for i := 0; i < contours.Size(); i++ {
		rect := gocv.BoundingRect(contours.At(i))
		w, h := rect.Dx(), rect.Dy()
		if w < g.cfg.MinBarWidth || h < g.cfg.MinBarHeight || h > g.cfg.MaxBarHeight {
			continue
		}
		if float64(w)/float64(h) < g.cfg.MinAspect {
			continue
		}
		if w > best.Dx() {
			best = rect
		}
	}
	if best.Empty() {
		return scene.Region{}, false
	}
	return scene.RegionOf(best).Offset(scene.Pt(strip.X, strip.Y)), true
}

// measureBar reads the located bar column by column. A column counts as filled
// when more of its interior pixels are filled than empty.
func (g *FuelGauge) measureBar(frame *scene.Frame, mat gocv.Mat) (scene.FuelReading, bool) {
	bar, ok := g.locateBar(mat, g.strip(frame))
	if !ok {
		return scene.FuelReading{}, false
	}
	inner := bar.Inset(g.cfg.Inset).Clip(frame.Bounds())
	if inner.Empty() {
		return scene.FuelReading{}, false
	}

	filled, total := 0, 0
	for x := inner.X; x < inner.X+inner.W; x++ {
		votesFilled, votesEmpty := 0, 0
		for y := inner.Y; y < inner.Y+inner.H; y++ {
			switch g.cfg.classify(frame.RGB(x, y)) {
			case pixelFilled:
				votesFilled++
			case pixelEmpty:
				votesEmpty++
			}
		}
		if votesFilled == 0 && votesEmpty == 0 {
			continue
		}
		total++
		if votesFilled > votesEmpty {
			filled++
		}
	}
	if total == 0 {
		return scene.FuelReading{}, false
	}

	log.Trace().Interface("bar", bar).Int("filled", filled).Int("total", total).Msg("Gauge bar measured")
	return scene.FuelReading{
		Percentage: scene.Percent(float64(filled) / float64(total)),
		Confidence: scene.Precise,
		Method:     scene.MethodBar,
	}, true
}

type pixelRun struct {
	class pixelClass
	start int
	n     int
}

// runsOf compresses one row of the region into runs of equal pixel class.
func (g *FuelGauge) runsOf(frame *scene.Frame, y int, region scene.Region) []pixelRun {
	var runs []pixelRun
	for x := region.X; x < region.X+region.W; x++ {
		c := g.cfg.classify(frame.RGB(x, y))
		if n := len(runs); n > 0 && runs[n-1].class == c {
			runs[n-1].n++
			continue
		}
		runs = append(runs, pixelRun{class: c, start: x, n: 1})
	}
	return runs
}

// measureLines looks for a filled run immediately followed by an empty run that
// is closed by a non-empty pixel (the gauge end cap). The widest such pattern wins.
func (g *FuelGauge) measureLines(frame *scene.Frame, _ gocv.Mat) (scene.FuelReading, bool) {
	strip := g.strip(frame).Clip(frame.Bounds())
	step := g.cfg.ScanStep
	if step < 1 {
		step = 1
	}

	bestSpan, bestFilled := 0, 0
	for y := strip.Y; y < strip.Y+strip.H; y += step {
		runs := g.runsOf(frame, y, strip)
		for i := 0; i+2 < len(runs); i++ {
			filled, empty := runs[i], runs[i+1]
			if filled.class != pixelFilled || empty.class != pixelEmpty {
				continue
			}
			if filled.n < g.cfg.MinSegment || empty.n < g.cfg.MinSegment {
				continue
			}
			span := filled.n + empty.n
			if span < g.cfg.MinBarWidth || span <= bestSpan {
				continue
			}
			bestSpan, bestFilled = span, filled.n
		}
	}
	if bestSpan == 0 {
		return scene.FuelReading{}, false
	}
	return scene.FuelReading{
		Percentage: scene.Percent(float64(bestFilled) / float64(bestSpan)),
		Confidence: scene.Fallback,
		Method:     scene.MethodLineScan,
	}, true
}

// measureArea is the last resort: the filled share of every classified pixel in the strip.
func (g *FuelGauge) measureArea(frame *scene.Frame, _ gocv.Mat) (scene.FuelReading, bool) {
	strip := g.strip(frame).Clip(frame.Bounds())
	filled, empty := 0, 0
	for y := strip.Y; y < strip.Y+strip.H; y++ {
		for x := strip.X; x < strip.X+strip.W; x++ {
			switch g.cfg.classify(frame.RGB(x, y)) {
			case pixelFilled:
				filled++
			case pixelEmpty:
				empty++
			}
		}
	}
	if filled+empty == 0 {
		return scene.FuelReading{}, false
	}
	return scene.FuelReading{
		Percentage: scene.Percent(float64(filled) / float64(filled+empty)),
		Confidence: scene.Degraded,
		Method:     scene.MethodArea,
	}, true
}
