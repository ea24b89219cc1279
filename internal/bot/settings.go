package bot

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// PreferredMap names the arena the session joins.
type PreferredMap string

const (
	MapAuto       PreferredMap = "auto"
	MapWorld      PreferredMap = "world"
	MapTraining   PreferredMap = "training"
	MapTournament PreferredMap = "tournament"
)

// Valid reports whether m is a known map. The empty string means auto.
func (m PreferredMap) Valid() bool {
	switch m {
	case "", MapAuto, MapWorld, MapTraining, MapTournament:
		return true
	}
	return false
}

// BotSettings are the user-tunable thresholds of the policy.
type BotSettings struct {
	RefuelThreshold int          `json:"refuel_threshold" mapstructure:"refuelThreshold"`
	ShieldThreshold int          `json:"shield_threshold" mapstructure:"shieldThreshold"`
	SafeThreshold   int          `json:"safe_threshold" mapstructure:"safeThreshold"`
	TargetPlayer    string       `json:"target_player" mapstructure:"targetPlayer"`
	PreferredMap    PreferredMap `json:"preferred_map" mapstructure:"preferredMap"`
}

// DefaultSettings returns refuel 25, shield 10, safe 85.
func DefaultSettings() BotSettings {
	return BotSettings{
		RefuelThreshold: 25,
		ShieldThreshold: 10,
		SafeThreshold:   85,
		PreferredMap:    MapAuto,
	}
}

// InvalidSettingsError is returned when a settings update breaks
// 0 <= shield < refuel < safe <= 100 or names an unknown map.
type InvalidSettingsError struct {
	Field  string
	Reason string
}

func (e *InvalidSettingsError) Error() string {
	return fmt.Sprintf("invalid settings: %s %s", e.Field, e.Reason)
}

// IsInvalidSettings reports whether err is (or wraps) an InvalidSettingsError.
func IsInvalidSettings(err error) bool {
	var target *InvalidSettingsError
	return errors.As(err, &target)
}

// Validate checks ranges and threshold ordering.
func (s BotSettings) Validate() error {
	for _, t := range []struct {
		name  string
		value int
	}{
		{"shield_threshold", s.ShieldThreshold},
		{"refuel_threshold", s.RefuelThreshold},
		{"safe_threshold", s.SafeThreshold},
	} {
		if t.value < 0 || t.value > 100 {
			return &InvalidSettingsError{Field: t.name, Reason: fmt.Sprintf("must be within 0-100, got %d", t.value)}
		}
	}
	if s.ShieldThreshold >= s.RefuelThreshold {
		return &InvalidSettingsError{Field: "shield_threshold",
			Reason: fmt.Sprintf("must be below refuel_threshold (%d >= %d)", s.ShieldThreshold, s.RefuelThreshold)}
	}
	if s.RefuelThreshold >= s.SafeThreshold {
		return &InvalidSettingsError{Field: "refuel_threshold",
			Reason: fmt.Sprintf("must be below safe_threshold (%d >= %d)", s.RefuelThreshold, s.SafeThreshold)}
	}
	if !s.PreferredMap.Valid() {
		return &InvalidSettingsError{Field: "preferred_map", Reason: fmt.Sprintf("unknown map %q", s.PreferredMap)}
	}
	return nil
}

// normalized trims the target name and fills in the default map.
func (s BotSettings) normalized() BotSettings {
	s.TargetPlayer = strings.TrimSpace(s.TargetPlayer)
	if s.PreferredMap == "" {
		s.PreferredMap = MapAuto
	}
	return s
}

// Result is the outcome of a settings update: either the settings now in
// effect, or the reason the update was rejected.
type Result struct {
	Settings BotSettings
	Err      error
}

// OK reports whether the update was applied.
func (r Result) OK() bool {
	return r.Err == nil
}

// Persister stores accepted settings.
type Persister interface {
	SaveSettings(BotSettings) error
}

// SettingsStore holds the settings in effect. Updates come from the control
// surfaces while the loop reads a snapshot at the top of every tick.
type SettingsStore struct {
	mu        sync.RWMutex
	current   BotSettings
	persister Persister
}

// NewSettingsStore validates initial and returns a store holding it.
func NewSettingsStore(initial BotSettings, persister Persister) (*SettingsStore, error) {
	initial = initial.normalized()
	if err := initial.Validate(); err != nil {
		return nil, err
	}
	return &SettingsStore{current: initial, persister: persister}, nil
}

// Get returns a snapshot of the settings in effect.
func (s *SettingsStore) Get() BotSettings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current
}

// Update applies next if it is valid. A rejected update leaves the previous
// settings in effect and is reported through Result.Err.
func (s *SettingsStore) Update(next BotSettings) Result {
	next = next.normalized()
	if err := next.Validate(); err != nil {
		log.Warn().Err(err).Msg("Settings update rejected")
		return Result{Settings: s.Get(), Err: err}
	}

	s.mu.Lock()
	s.current = next
	s.mu.Unlock()

	log.Info().Int("refuel", next.RefuelThreshold).Int("shield", next.ShieldThreshold).
		Int("safe", next.SafeThreshold).Str("map", string(next.PreferredMap)).Msg("Settings updated")

	if s.persister != nil {
		if err := s.persister.SaveSettings(next); err != nil {
			log.Warn().Err(err).Msg("Failed to persist settings")
		}
	}
	return Result{Settings: next}
}
