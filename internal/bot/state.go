// Package bot owns the decision side of the bot: the settings in effect, the
// finite-state policy that turns readings into at most one action per tick, and
// the control loop that drives capture, analysis, dispatch and status publishing.
package bot

import "fmt"

// State represents the current state of the policy
type State int

const (
	StateIdle State = iota
	StateConfiguringEquipment
	StateMonitoring
	StateShieldActive
	StateRefueling
	StateNavigating
	StateSafeHold
	StateNoSession
)

// String returns the string representation of the state
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateConfiguringEquipment:
		return "ConfiguringEquipment"
	case StateMonitoring:
		return "Monitoring"
	case StateShieldActive:
		return "ShieldActive"
	case StateRefueling:
		return "Refueling"
	case StateNavigating:
		return "Navigating"
	case StateSafeHold:
		return "SafeHold"
	case StateNoSession:
		return "NoSession"
	default:
		return "Unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	if s < StateIdle || s > StateNoSession {
		return nil, fmt.Errorf("unknown state %d", int(s))
	}
	return []byte(s.String()), nil
}
