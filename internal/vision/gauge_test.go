package vision

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"tankpit-bot/internal/scene"
)

func TestFuelGauge_NilFrameIsNeutral(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)

	assert.Equal(t, scene.NeutralReading(), g.Measure(nil))
}

func TestFuelGauge_FullBarReadsHundred(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)

	r := g.Measure(gaugeFrame(1))

	assert.Equal(t, scene.Precise, r.Confidence)
	assert.Equal(t, scene.MethodBar, r.Method)
	assert.InDelta(t, 100, r.Percentage, 1)
}

func TestFuelGauge_EmptyBarReadsZero(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)

	r := g.Measure(gaugeFrame(0))

	assert.Equal(t, scene.Precise, r.Confidence)
	assert.Equal(t, 0, r.Percentage)
}

func TestFuelGauge_AnyGaugeColour(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)
	img := canvas(400, 300)
	drawGauge(img, scene.Rgn(100, 265, 200, 16), 0.5, gold)

	r := g.Measure(frameOf(img))

	assert.Equal(t, scene.Precise, r.Confidence)
	assert.InDelta(t, 50, r.Percentage, 3)
}

func TestFuelGauge_Monotonic(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)

	prev := -1
	for i := 0; i <= 10; i++ {
		ratio := float64(i) / 10
		r := g.Measure(gaugeFrame(ratio))

		assert.Equal(t, scene.Precise, r.Confidence, "ratio %.1f", ratio)
		assert.GreaterOrEqual(t, r.Percentage, prev, "ratio %.1f", ratio)
		assert.InDelta(t, ratio*100, r.Percentage, 3, "ratio %.1f", ratio)
		prev = r.Percentage
	}
}

func TestFuelGauge_LineScanFallback(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)
	img := canvas(400, 300)
	// too thin to pass as a gauge outline, but the row pattern is there
	paint(img, scene.Rgn(79, 280, 1, 3), gray)
	paint(img, scene.Rgn(80, 280, 60, 3), green)
	paint(img, scene.Rgn(200, 280, 1, 3), gray)

	r := g.Measure(frameOf(img))

	assert.Equal(t, scene.Fallback, r.Confidence)
	assert.Equal(t, scene.MethodLineScan, r.Method)
	assert.InDelta(t, 50, r.Percentage, 2)
}

func TestFuelGauge_AreaFallback(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)
	img := canvas(400, 300)
	paint(img, scene.Rgn(0, 200, 120, 100), green)

	r := g.Measure(frameOf(img))

	assert.Equal(t, scene.Degraded, r.Confidence)
	assert.Equal(t, scene.MethodArea, r.Method)
	assert.InDelta(t, 30, r.Percentage, 1)
}

func TestFuelGauge_UnclassifiableStripIsNeutral(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)
	img := canvas(400, 300)
	paint(img, scene.Rgn(0, 0, 400, 300), murky)

	assert.Equal(t, scene.NeutralReading(), g.Measure(frameOf(img)))
}

func TestGaugeConfig_Classify(t *testing.T) {
	c := DefaultConfig().Gauge

	assert.Equal(t, pixelEmpty, c.classify(10, 39, 0))
	assert.Equal(t, pixelFilled, c.classify(0, 0, 41))
	assert.Equal(t, pixelAmbiguous, c.classify(40, 40, 40))
}

func TestFuelGauge_Locate(t *testing.T) {
	g := NewFuelGauge(DefaultConfig().Gauge)

	bar, ok := g.Locate(gaugeFrame(0.5))

	assert.True(t, ok)
	assert.InDelta(t, 100, bar.X, 3)
	assert.InDelta(t, 200, bar.W, 6)

	_, ok = g.Locate(frameOf(canvas(400, 300)))
	assert.False(t, ok)

	_, ok = g.Locate(nil)
	assert.False(t, ok)
}
