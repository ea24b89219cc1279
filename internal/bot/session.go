package bot

import (
	"context"

	"tankpit-bot/internal/scene"
)

// Session is a live game session: a frame source plus an input dispatcher.
type Session interface {
	Dispatcher
	// Capture returns the current frame. A nil frame or an error means the
	// session is unavailable for this tick.
	Capture(ctx context.Context) (*scene.Frame, error)
}

// SessionProvider owns the session lifecycle outside the core.
type SessionProvider interface {
	// Session returns the current session, or nil when there is none.
	Session() Session
	// Reconnect tries to restore the session.
	Reconnect(ctx context.Context) error
	// Release is called once when the loop stops.
	Release(ctx context.Context) error
}

// Analyzer turns a frame into readings. It must not fail; a nil frame yields
// scene.EmptyAnalysis.
type Analyzer interface {
	Analyze(ctx context.Context, frame *scene.Frame, origin scene.Point) scene.Analysis
}

// Sighting is the result of looking for the protected player.
type Sighting struct {
	Name     string
	Position scene.Point // zero when the player is near but not located
	Nearby   bool
}

// Identifier looks for a named player in a frame.
type Identifier interface {
	Identify(ctx context.Context, frame *scene.Frame, name string) Sighting
}

// NoIdentifier never sees anyone.
type NoIdentifier struct{}

// Identify implements Identifier.
func (NoIdentifier) Identify(context.Context, *scene.Frame, string) Sighting {
	return Sighting{}
}

// SlotLocator returns where a loadout icon is drawn, used to click it.
type SlotLocator interface {
	Region(slot scene.Slot) (scene.Region, bool)
}
