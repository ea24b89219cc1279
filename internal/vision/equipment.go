package vision

import (
	"github.com/rs/zerolog/log"
	"gocv.io/x/gocv"

	"tankpit-bot/internal/scene"
)

// EquipmentDetector reads the loadout toggles from their HUD icons.
type EquipmentDetector struct {
	cfg EquipmentConfig
}

// NewEquipmentDetector creates a detector.
func NewEquipmentDetector(cfg EquipmentConfig) *EquipmentDetector {
	return &EquipmentDetector{cfg: cfg}
}

// Detect classifies every configured slot. Slots whose icon matches neither
// reference tone are left out of the result; a nil frame yields an empty state.
func (d *EquipmentDetector) Detect(frame *scene.Frame) scene.EquipmentState {
	if frame == nil {
		return scene.EquipmentState{}
	}
	mat, err := frameMat(frame)
	if err != nil {
		log.Debug().Err(err).Msg("Equipment: frame conversion failed")
		return scene.EquipmentState{}
	}
	defer mat.Close()
	return d.detect(frame, mat)
}

// Region returns the icon region of a slot.
func (d *EquipmentDetector) Region(slot scene.Slot) (scene.Region, bool) {
	r, ok := d.cfg.Regions[string(slot)]
	return r, ok
}

func (d *EquipmentDetector) detect(frame *scene.Frame, mat gocv.Mat) (state scene.EquipmentState) {
	state = scene.EquipmentState{}
	if frame == nil || mat.Empty() {
		return state
	}
	defer func() {
		if r := recover(); r != nil {
			log.Warn().Interface("panic", r).Msg("Equipment detection panicked")
			state = scene.EquipmentState{}
		}
	}()

	for _, slot := range scene.Slots {
		region, ok := d.cfg.Regions[string(slot)]
		if !ok {
			continue
		}
		rect, ok := clipRegion(region, frame)
		if !ok {
			continue
		}
		s, v := meanTone(mat, rect)
		switch {
		case d.cfg.Active.contains(s, v):
			state[slot] = true
		case d.cfg.Inactive.contains(s, v):
			state[slot] = false
		default:
			log.Trace().Str("slot", string(slot)).Float64("s", s).Float64("v", v).Msg("Equipment icon unreadable")
		}
	}
	return state
}
