package scene

import (
	"fmt"
	"math"
	"sort"
)

// Confidence tells which tier of the fuel gauge strategy chain produced a reading.
type Confidence int

const (
	Precise  Confidence = iota // gauge outline located and measured
	Fallback                   // gauge found by horizontal line scan
	Degraded                   // area ratio or neutral default
)

// String returns the string representation of the confidence tier
func (c Confidence) String() string {
	switch c {
	case Precise:
		return "precise"
	case Fallback:
		return "fallback"
	case Degraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (c Confidence) MarshalText() ([]byte, error) {
	return []byte(c.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (c *Confidence) UnmarshalText(text []byte) error {
	switch string(text) {
	case "precise":
		*c = Precise
	case "fallback":
		*c = Fallback
	case "degraded":
		*c = Degraded
	default:
		return fmt.Errorf("unknown confidence %q", text)
	}
	return nil
}

// Gauge measurement methods.
const (
	MethodBar      = "bar"
	MethodLineScan = "line_scan"
	MethodArea     = "area"
	MethodNone     = "none"
)

// NeutralFuel is reported when nothing about the gauge is known.
const NeutralFuel = 50

// FuelReading is the estimated fuel level for one frame.
type FuelReading struct {
	Percentage int        `json:"percentage"`
	Confidence Confidence `json:"confidence"`
	Method     string     `json:"method"`
}

// NeutralReading is the "unknown" reading returned without a usable frame.
func NeutralReading() FuelReading {
	return FuelReading{Percentage: NeutralFuel, Confidence: Degraded, Method: MethodNone}
}

// Percent rounds a ratio in [0,1] to an integer percentage clamped to [0,100].
func Percent(ratio float64) int {
	if math.IsNaN(ratio) {
		return NeutralFuel
	}
	p := int(math.Round(ratio * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// FuelNode is a collectible fuel item seen in one frame.
type FuelNode struct {
	Position Point   `json:"position"`
	Value    float64 `json:"value"`
	Box      Region  `json:"box"`
}

// RankNodes orders nodes by descending value; equal values are ordered by
// ascending distance from origin.
func RankNodes(nodes []FuelNode, origin Point) {
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].Value != nodes[j].Value {
			return nodes[i].Value > nodes[j].Value
		}
		return nodes[i].Position.Distance(origin) < nodes[j].Position.Distance(origin)
	})
}

// Slot names one loadout toggle on the HUD.
type Slot string

const (
	SlotArmor    Slot = "armor"
	SlotDuals    Slot = "duals"
	SlotMissiles Slot = "missiles"
	SlotHoming   Slot = "homing"
	SlotRadars   Slot = "radars"
)

// Slots lists every equipment slot in HUD order.
var Slots = []Slot{SlotArmor, SlotDuals, SlotMissiles, SlotHoming, SlotRadars}

// EquipmentState maps a slot to on/off. Slots that could not be read are absent.
type EquipmentState map[Slot]bool

// DefaultLoadout is the configuration the bot drives the HUD towards.
func DefaultLoadout() EquipmentState {
	return EquipmentState{
		SlotArmor:    false,
		SlotDuals:    true,
		SlotMissiles: false,
		SlotHoming:   false,
		SlotRadars:   true,
	}
}

// Mismatched returns, in HUD order, the readable slots whose state differs from desired.
func (e EquipmentState) Mismatched(desired EquipmentState) []Slot {
	var out []Slot
	for _, slot := range Slots {
		want, ok := desired[slot]
		if !ok {
			continue
		}
		have, ok := e[slot]
		if !ok {
			continue
		}
		if have != want {
			out = append(out, slot)
		}
	}
	return out
}

// Analysis bundles the three readings taken from one frame.
type Analysis struct {
	Fuel      FuelReading
	Nodes     []FuelNode
	Equipment EquipmentState
}

// EmptyAnalysis is the analysis of a missing frame.
func EmptyAnalysis() Analysis {
	return Analysis{Fuel: NeutralReading(), Equipment: EquipmentState{}}
}
