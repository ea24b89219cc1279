// Package vision turns a captured frame into fuel, fuel-node and equipment readings.
//
// Detection follows the usual OpenCV pipeline: region of interest, colour space
// conversion, threshold mask, morphology, contours. Every detector is a pure
// function of the frame and never returns an error; on failure it degrades to a
// neutral reading.
package vision

import (
	"image"

	"gocv.io/x/gocv"

	"tankpit-bot/internal/scene"
)

// HSVRange is an inclusive OpenCV HSV band (H 0-180, S and V 0-255).
type HSVRange struct {
	MinH float64 `mapstructure:"minH"`
	MinS float64 `mapstructure:"minS"`
	MinV float64 `mapstructure:"minV"`
	MaxH float64 `mapstructure:"maxH"`
	MaxS float64 `mapstructure:"maxS"`
	MaxV float64 `mapstructure:"maxV"`
}

func (r HSVRange) lower() gocv.Scalar {
	return gocv.NewScalar(r.MinH, r.MinS, r.MinV, 0)
}

func (r HSVRange) upper() gocv.Scalar {
	return gocv.NewScalar(r.MaxH, r.MaxS, r.MaxV, 0)
}

// ToneRange bounds the mean saturation and brightness of an icon.
type ToneRange struct {
	MinS float64 `mapstructure:"minS"`
	MaxS float64 `mapstructure:"maxS"`
	MinV float64 `mapstructure:"minV"`
	MaxV float64 `mapstructure:"maxV"`
}

func (t ToneRange) contains(s, v float64) bool {
	return s >= t.MinS && s <= t.MaxS && v >= t.MinV && v <= t.MaxV
}

// GaugeConfig tunes the fuel gauge strategies.
type GaugeConfig struct {
	StripFraction   float64 `mapstructure:"stripFraction"`   // bottom part of the frame searched for the gauge
	EmptyThreshold  uint8   `mapstructure:"emptyThreshold"`  // all channels below: empty
	FilledThreshold uint8   `mapstructure:"filledThreshold"` // any channel above: filled
	MinBarWidth     int     `mapstructure:"minBarWidth"`
	MinBarHeight    int     `mapstructure:"minBarHeight"`
	MaxBarHeight    int     `mapstructure:"maxBarHeight"`
	MinAspect       float64 `mapstructure:"minAspect"`
	CannyLow        float32 `mapstructure:"cannyLow"`
	CannyHigh       float32 `mapstructure:"cannyHigh"`
	Inset           int     `mapstructure:"inset"`      // outline pixels skipped inside a located bar
	ScanStep        int     `mapstructure:"scanStep"`   // row stride of the line scan
	MinSegment      int     `mapstructure:"minSegment"` // shortest filled/empty run accepted by the line scan
}

// NodeConfig tunes fuel node detection.
type NodeConfig struct {
	Color         HSVRange `mapstructure:"color"`
	KernelSize    int      `mapstructure:"kernelSize"`
	MinArea       float64  `mapstructure:"minArea"`
	MaxArea       float64  `mapstructure:"maxArea"`
	IgnoreHUDFrac float64  `mapstructure:"ignoreHudFraction"` // nodes centred in this bottom fraction are HUD, not world
}

// EquipmentConfig locates the loadout icons and the tones that mean on/off.
type EquipmentConfig struct {
	Regions  map[string]scene.Region `mapstructure:"regions"`
	Active   ToneRange               `mapstructure:"active"`
	Inactive ToneRange               `mapstructure:"inactive"`
}

// Config groups every detector setting.
type Config struct {
	Gauge     GaugeConfig     `mapstructure:"gauge"`
	Nodes     NodeConfig      `mapstructure:"nodes"`
	Equipment EquipmentConfig `mapstructure:"equipment"`
}

// DefaultConfig returns settings calibrated for the 800x600 game viewport.
func DefaultConfig() Config {
	return Config{
		Gauge: GaugeConfig{
			StripFraction:   0.15,
			EmptyThreshold:  40,
			FilledThreshold: 40,
			MinBarWidth:     60,
			MinBarHeight:    8,
			MaxBarHeight:    60,
			MinAspect:       4,
			CannyLow:        50,
			CannyHigh:       150,
			Inset:           3,
			ScanStep:        2,
			MinSegment:      3,
		},
		Nodes: NodeConfig{
			Color:         HSVRange{MinH: 20, MinS: 150, MinV: 150, MaxH: 30, MaxS: 255, MaxV: 255},
			KernelSize:    5,
			MinArea:       20,
			MaxArea:       5000,
			IgnoreHUDFrac: 0.15,
		},
		Equipment: EquipmentConfig{
			Regions: map[string]scene.Region{
				string(scene.SlotArmor):    scene.Rgn(560, 570, 20, 20),
				string(scene.SlotDuals):    scene.Rgn(585, 570, 20, 20),
				string(scene.SlotMissiles): scene.Rgn(610, 570, 20, 20),
				string(scene.SlotHoming):   scene.Rgn(635, 570, 20, 20),
				string(scene.SlotRadars):   scene.Rgn(660, 570, 20, 20),
			},
			Active:   ToneRange{MinS: 90, MaxS: 255, MinV: 120, MaxV: 255},
			Inactive: ToneRange{MinS: 0, MaxS: 80, MinV: 0, MaxV: 255},
		},
	}
}

// frameMat converts a frame to a BGR Mat. The caller closes it.
func frameMat(frame *scene.Frame) (gocv.Mat, error) {
	return gocv.ImageToMatRGB(frame.Image())
}

// clipRegion limits r to the frame and reports whether anything is left.
func clipRegion(r scene.Region, frame *scene.Frame) (image.Rectangle, bool) {
	c := r.Clip(frame.Bounds())
	return c.Rect(), !c.Empty()
}

// meanTone returns the mean HSV saturation and value of rect.
func meanTone(mat gocv.Mat, rect image.Rectangle) (s, v float64) {
	roi := mat.Region(rect)
	defer roi.Close()

	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(roi, &hsv, gocv.ColorBGRToHSV)

	mean := hsv.Mean()
	return mean.Val2, mean.Val3
}
