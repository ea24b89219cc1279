package bot

import (
	"time"

	"tankpit-bot/internal/scene"
)

// Statistics counts what the bot has done since it was last started.
type Statistics struct {
	StartedAt         time.Time `json:"started_at"`
	Ticks             int       `json:"ticks"`
	ShieldActivations int       `json:"shield_activations"`
	Collects          int       `json:"collects"`
	NavigationPlans   int       `json:"navigation_plans"`
	Toggles           int       `json:"toggles"`
	DispatchFailures  int       `json:"dispatch_failures"`
	Suppressed        int       `json:"suppressed"`
}

// Uptime returns the time since start, or zero when never started.
func (s Statistics) Uptime(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// BotStatus is the bot-visible state published once per tick.
type BotStatus struct {
	Running       bool        `json:"running"`
	CurrentFuel   int         `json:"current_fuel"`
	ShieldsActive bool        `json:"shields_active"`
	Position      scene.Point `json:"position"`
	Status        string      `json:"status"`
	Settings      BotSettings `json:"settings"`
	Stats         Statistics  `json:"stats"`
}

// Report is what the loop hands to status sinks after every tick.
type Report struct {
	At          time.Time
	Status      BotStatus
	State       State
	Fuel        scene.FuelReading
	Nodes       int
	Action      *Action
	DispatchErr error
}

// StatusSink receives reports. Publish must not block the loop.
type StatusSink interface {
	Publish(Report)
}

// SinkFunc adapts a function to StatusSink.
type SinkFunc func(Report)

// Publish calls f(r).
func (f SinkFunc) Publish(r Report) {
	f(r)
}
