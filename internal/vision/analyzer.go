package vision

import (
	"context"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
	"gocv.io/x/gocv"

	"tankpit-bot/internal/scene"
)

// Analyzer runs the three detectors over one frame.
type Analyzer struct {
	Gauge     *FuelGauge
	Nodes     *NodeDetector
	Equipment *EquipmentDetector
}

// NewAnalyzer builds every detector from cfg.
func NewAnalyzer(cfg Config) *Analyzer {
	return &Analyzer{
		Gauge:     NewFuelGauge(cfg.Gauge),
		Nodes:     NewNodeDetector(cfg.Nodes),
		Equipment: NewEquipmentDetector(cfg.Equipment),
	}
}

// Analyze converts the frame once and runs the detectors in parallel. Each
// detector writes only its own field, and all of them finish before Analyze returns.
func (a *Analyzer) Analyze(ctx context.Context, frame *scene.Frame, origin scene.Point) scene.Analysis {
	if frame == nil {
		return scene.EmptyAnalysis()
	}

	mat, err := frameMat(frame)
	if err != nil {
		log.Warn().Err(err).Msg("Analyzer: frame conversion failed")
		mat = gocv.NewMat()
	}
	defer mat.Close()

	var out scene.Analysis
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		out.Fuel = a.Gauge.measure(frame, mat)
		return nil
	})
	g.Go(func() error {
		out.Nodes = a.Nodes.detect(frame, mat, origin)
		return nil
	})
	g.Go(func() error {
		out.Equipment = a.Equipment.detect(frame, mat)
		return nil
	})
	_ = g.Wait()

	return out
}
