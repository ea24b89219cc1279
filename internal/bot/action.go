package bot

import (
	"context"
	"fmt"

	"tankpit-bot/internal/scene"
)

// ActionKind selects the input dispatcher call.
type ActionKind int

const (
	ActionKey     ActionKind = iota // SendKey
	ActionClick                     // Click
	ActionOverlay                   // OpenOverlay
)

// String returns the string representation of the kind
func (k ActionKind) String() string {
	switch k {
	case ActionKey:
		return "key"
	case ActionClick:
		return "click"
	case ActionOverlay:
		return "overlay"
	default:
		return "unknown"
	}
}

// Purpose records why the policy chose an action.
type Purpose string

const (
	PurposeShield  Purpose = "shield"
	PurposeToggle  Purpose = "toggle"
	PurposeCollect Purpose = "collect"
	PurposeRoute   Purpose = "route"
)

// Action is one input the policy asks the dispatcher to perform.
type Action struct {
	Kind    ActionKind  `json:"kind"`
	Purpose Purpose     `json:"purpose"`
	Key     string      `json:"key,omitempty"`
	Point   scene.Point `json:"point"`
	Overlay string      `json:"overlay,omitempty"`
	Slot    scene.Slot  `json:"slot,omitempty"`
}

func (a Action) String() string {
	switch a.Kind {
	case ActionKey:
		return fmt.Sprintf("%s: key %q", a.Purpose, a.Key)
	case ActionClick:
		if a.Slot != "" {
			return fmt.Sprintf("%s %s: click (%d, %d)", a.Purpose, a.Slot, a.Point.X, a.Point.Y)
		}
		return fmt.Sprintf("%s: click (%d, %d)", a.Purpose, a.Point.X, a.Point.Y)
	case ActionOverlay:
		return fmt.Sprintf("%s: open %s", a.Purpose, a.Overlay)
	default:
		return string(a.Purpose)
	}
}

// movesTank reports whether the action sends the tank toward a world position.
func (a Action) movesTank() bool {
	return a.Kind == ActionClick && a.Purpose == PurposeCollect
}

// Dispatcher injects input into the game. Calls may fail; failures are
// returned, never fatal.
type Dispatcher interface {
	SendKey(ctx context.Context, key string) error
	Click(ctx context.Context, x, y int) error
	OpenOverlay(ctx context.Context, name string) error
}

// Dispatch routes a to the matching dispatcher call.
func Dispatch(ctx context.Context, d Dispatcher, a Action) error {
	switch a.Kind {
	case ActionKey:
		return d.SendKey(ctx, a.Key)
	case ActionClick:
		return d.Click(ctx, a.Point.X, a.Point.Y)
	case ActionOverlay:
		return d.OpenOverlay(ctx, a.Overlay)
	default:
		return fmt.Errorf("unknown action kind %d", a.Kind)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k ActionKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}
