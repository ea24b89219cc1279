package bot

import (
	"time"

	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/scene"
)

// NavigationTrigger is the fuel level below which an empty screen justifies
// opening the map to look for fuel elsewhere.
const NavigationTrigger = 35

// PolicyConfig holds the fixed tuning of the state machine.
type PolicyConfig struct {
	ReachRadius           float64         `mapstructure:"reachRadius"`
	RefuelExitMargin      int             `mapstructure:"refuelExitMargin"`
	ConfigureMaxTicks     int             `mapstructure:"configureMaxTicks"`
	NavigationTravelTicks int             `mapstructure:"navigationTravelTicks"`
	ProtectRadius         float64         `mapstructure:"protectRadius"`
	ShieldKey             string          `mapstructure:"shieldKey"`
	MapOverlay            string          `mapstructure:"mapOverlay"`
	CloseOverlayKey       string          `mapstructure:"closeOverlayKey"`
	MapGrid               int             `mapstructure:"mapGrid"`
	Loadout               map[string]bool `mapstructure:"loadout"`
}

// DefaultPolicyConfig returns the stock tuning.
func DefaultPolicyConfig() PolicyConfig {
	loadout := map[string]bool{}
	for slot, on := range scene.DefaultLoadout() {
		loadout[string(slot)] = on
	}
	return PolicyConfig{
		ReachRadius:           250,
		RefuelExitMargin:      5,
		ConfigureMaxTicks:     10,
		NavigationTravelTicks: 8,
		ProtectRadius:         150,
		ShieldKey:             "1",
		MapOverlay:            "map",
		CloseOverlayKey:       "Escape",
		MapGrid:               4,
		Loadout:               loadout,
	}
}

func (c PolicyConfig) loadout() scene.EquipmentState {
	out := scene.EquipmentState{}
	for _, slot := range scene.Slots {
		if on, ok := c.Loadout[string(slot)]; ok {
			out[slot] = on
		}
	}
	return out
}

// Observation is everything the policy sees in one tick.
type Observation struct {
	SessionAvailable bool
	Analysis         scene.Analysis
	Position         scene.Point
	Bounds           scene.Region
	Sighting         Sighting
}

// Policy is the bot state machine. It is owned by the control loop and is not
// safe for concurrent use.
type Policy struct {
	cfg     PolicyConfig
	loadout scene.EquipmentState
	slots   SlotLocator

	running       bool
	state         State
	shieldsActive bool
	overlayOpen   bool
	position      scene.Point
	fuel          int
	stats         Statistics

	// ConfiguringEquipment sub-steps
	configured     bool
	configureTicks int

	nav navigation
	now func() time.Time
}

// NewPolicy creates a stopped policy in Idle.
func NewPolicy(cfg PolicyConfig, slots SlotLocator) *Policy {
	return &Policy{
		cfg:     cfg,
		loadout: cfg.loadout(),
		slots:   slots,
		state:   StateIdle,
		fuel:    scene.NeutralFuel,
		now:     time.Now,
	}
}

// State returns the current state.
func (p *Policy) State() State {
	return p.state
}

// Running reports whether the policy was started.
func (p *Policy) Running() bool {
	return p.running
}

// Start arms the policy. The next playable tick configures equipment first.
func (p *Policy) Start() {
	p.running = true
	p.state = StateIdle
	p.shieldsActive = false
	p.overlayOpen = false
	p.configured = false
	p.configureTicks = 0
	p.nav.reset()
	p.stats = Statistics{StartedAt: p.now()}
	log.Info().Msg("Policy started")
}

// Stop returns the policy to Idle.
func (p *Policy) Stop() {
	p.running = false
	p.shieldsActive = false
	p.overlayOpen = false
	p.enter(StateIdle)
	log.Info().Msg("Policy stopped")
}

// Status snapshots the bot-visible state.
func (p *Policy) Status(settings BotSettings) BotStatus {
	return BotStatus{
		Running:       p.running,
		CurrentFuel:   p.fuel,
		ShieldsActive: p.shieldsActive,
		Position:      p.position,
		Status:        p.state.String(),
		Settings:      settings,
		Stats:         p.stats,
	}
}

func (p *Policy) enter(next State) {
	if p.state == next {
		return
	}
	log.Info().Stringer("from", p.state).Stringer("to", next).Int("fuel", p.fuel).Msg("State transition")
	p.state = next
}

// Step advances the state machine by one tick and returns the action to
// dispatch, if any.
func (p *Policy) Step(obs Observation, settings BotSettings) *Action {
	if !p.running {
		p.enter(StateIdle)
		return nil
	}
	p.stats.Ticks++

	if !obs.SessionAvailable {
		p.enter(StateNoSession)
		// the next playable screen is a fresh entry
		p.configured = false
		p.configureTicks = 0
		p.overlayOpen = false
		p.nav.reset()
		return nil
	}

	p.position = obs.Position
	p.fuel = obs.Analysis.Fuel.Percentage

	if !p.configured {
		p.enter(StateConfiguringEquipment)
		if a := p.configure(obs); a != nil {
			return a
		}
	}

	a := p.evaluate(obs, settings)
	if p.overlayOpen && !p.nav.onMap(p.state) && (a == nil || a.Purpose != PurposeShield) {
		a = p.closeOverlay()
	}
	return p.filter(a, obs)
}

// configure emits one toggle per tick until the readable slots match the loadout.
func (p *Policy) configure(obs Observation) *Action {
	mismatched := obs.Analysis.Equipment.Mismatched(p.loadout)
	if len(mismatched) == 0 {
		log.Info().Int("ticks", p.configureTicks).Msg("Equipment matches loadout")
		p.configured = true
		return nil
	}
	if p.configureTicks >= p.cfg.ConfigureMaxTicks {
		log.Warn().Interface("mismatched", mismatched).Int("ticks", p.configureTicks).
			Msg("Equipment did not converge, continuing with current loadout")
		p.configured = true
		return nil
	}

	for _, slot := range mismatched {
		if p.slots == nil {
			break
		}
		region, ok := p.slots.Region(slot)
		if !ok {
			continue
		}
		p.configureTicks++
		return &Action{Kind: ActionClick, Purpose: PurposeToggle, Point: region.Center(), Slot: slot}
	}

	log.Warn().Interface("mismatched", mismatched).Msg("No icon location for mismatched slots")
	p.configured = true
	return nil
}

// evaluate applies the fuel thresholds in priority order: shield, refuel, safe, hold.
func (p *Policy) evaluate(obs Observation, s BotSettings) *Action {
	fuel := p.fuel

	if fuel <= s.ShieldThreshold {
		p.enter(StateShieldActive)
		p.nav.reset()
		if !p.shieldsActive {
			p.shieldsActive = true
			return &Action{Kind: ActionKey, Purpose: PurposeShield, Key: p.cfg.ShieldKey}
		}
		if node, ok := p.reachableNode(obs); ok {
			return collect(node)
		}
		return nil
	}
	p.shieldsActive = false

	if fuel <= s.RefuelThreshold || (p.refueling() && fuel <= p.refuelExit(s)) {
		return p.refuel(obs, fuel)
	}

	p.nav.reset()
	if fuel >= s.SafeThreshold {
		p.enter(StateSafeHold)
		return nil
	}
	p.enter(StateMonitoring)
	return nil
}

func (p *Policy) refueling() bool {
	return p.state == StateRefueling || p.state == StateNavigating
}

// refuelExit is the level refueling must rise above before the machine
// returns to Monitoring.
func (p *Policy) refuelExit(s BotSettings) int {
	return min(s.RefuelThreshold+p.cfg.RefuelExitMargin, s.SafeThreshold-1)
}

func (p *Policy) refuel(obs Observation, fuel int) *Action {
	if p.nav.onMap(p.state) {
		return p.navigate(obs)
	}
	if node, ok := p.reachableNode(obs); ok {
		p.enter(StateRefueling)
		p.nav.reset()
		return collect(node)
	}
	if p.state == StateNavigating {
		return p.navigate(obs)
	}
	if fuel < NavigationTrigger {
		p.enter(StateNavigating)
		p.nav.reset()
		return p.navigate(obs)
	}
	p.enter(StateRefueling)
	return nil
}

// reachableNode returns the best-ranked node within reach of the tank.
func (p *Policy) reachableNode(obs Observation) (scene.FuelNode, bool) {
	for _, n := range obs.Analysis.Nodes {
		if n.Position.Distance(p.position) <= p.cfg.ReachRadius {
			return n, true
		}
	}
	return scene.FuelNode{}, false
}

func collect(node scene.FuelNode) *Action {
	return &Action{Kind: ActionClick, Purpose: PurposeCollect, Point: node.Position}
}

func (p *Policy) closeOverlay() *Action {
	p.overlayOpen = false
	return &Action{Kind: ActionKey, Purpose: PurposeRoute, Key: p.cfg.CloseOverlayKey}
}

// filter drops movement toward the protected player.
func (p *Policy) filter(a *Action, obs Observation) *Action {
	if a == nil || !a.movesTank() || !obs.Sighting.Nearby {
		return a
	}
	if obs.Sighting.Position.IsZero() || a.Point.Distance(obs.Sighting.Position) <= p.cfg.ProtectRadius {
		log.Info().Str("player", obs.Sighting.Name).Stringer("action", a).Msg("Action suppressed near protected player")
		p.stats.Suppressed++
		return nil
	}
	return a
}

// ConfirmDispatch records the dispatch outcome of an action returned by Step.
// The state is kept on failure; the shield edge and overlay sub-steps are
// re-armed so the next tick retries them.
func (p *Policy) ConfirmDispatch(a Action, err error) {
	if err != nil {
		p.stats.DispatchFailures++
		switch {
		case a.Purpose == PurposeShield:
			p.shieldsActive = false
		case a.Kind == ActionOverlay:
			p.overlayOpen = false
			p.nav.reset()
		case a.Kind == ActionKey && a.Purpose == PurposeRoute:
			p.overlayOpen = true
		}
		return
	}

	switch a.Purpose {
	case PurposeShield:
		p.stats.ShieldActivations++
	case PurposeCollect:
		p.stats.Collects++
	case PurposeToggle:
		p.stats.Toggles++
	case PurposeRoute:
		if a.Kind == ActionClick {
			p.stats.NavigationPlans++
		}
	}
}
