// tray.go is the system tray control surface: start/stop, live status,
// threshold presets and the preferred map.
package main

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/getlantern/systray"
	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/bot"
)

type thresholdKind int

const (
	thresholdRefuel thresholdKind = iota
	thresholdShield
	thresholdSafe
)

var thresholdPresets = map[thresholdKind][]int{
	thresholdRefuel: {15, 20, 25, 30, 35, 40, 50},
	thresholdShield: {5, 10, 15, 20},
	thresholdSafe:   {70, 75, 80, 85, 90, 95},
}

func (k thresholdKind) get(s bot.BotSettings) int {
	switch k {
	case thresholdShield:
		return s.ShieldThreshold
	case thresholdSafe:
		return s.SafeThreshold
	default:
		return s.RefuelThreshold
	}
}

func (k thresholdKind) set(s *bot.BotSettings, v int) {
	switch k {
	case thresholdShield:
		s.ShieldThreshold = v
	case thresholdSafe:
		s.SafeThreshold = v
	default:
		s.RefuelThreshold = v
	}
}

// Controller is what the tray needs from the control loop.
type Controller interface {
	Start(ctx context.Context) error
	Stop() error
	Running() bool
}

// TrayApp mirrors the HTTP control surface in the system tray. It is also a
// status sink so the status line follows every tick.
type TrayApp struct {
	ctx      context.Context
	ctrl     Controller
	settings *bot.SettingsStore
	onExit   func()
	ready    atomic.Bool

	statusItem *systray.MenuItem
	fuelItem   *systray.MenuItem
	startItem  *systray.MenuItem
	stopItem   *systray.MenuItem

	thresholdItems map[thresholdKind][]*systray.MenuItem
	mapItems       map[bot.PreferredMap]*systray.MenuItem
}

// NewTrayApp creates the tray. onExit runs after the tray closes.
func NewTrayApp(ctx context.Context, ctrl Controller, settings *bot.SettingsStore, onExit func()) *TrayApp {
	return &TrayApp{
		ctx:            ctx,
		ctrl:           ctrl,
		settings:       settings,
		onExit:         onExit,
		thresholdItems: make(map[thresholdKind][]*systray.MenuItem),
		mapItems:       make(map[bot.PreferredMap]*systray.MenuItem),
	}
}

// Run blocks until Quit is chosen or Quit is called.
func (t *TrayApp) Run() {
	log.Info().Msg("Starting system tray application")
	systray.Run(t.onReady, func() {
		if t.ctrl.Running() {
			if err := t.ctrl.Stop(); err != nil {
				log.Warn().Err(err).Msg("Failed to stop bot from tray exit")
			}
		}
		if t.onExit != nil {
			t.onExit()
		}
		log.Info().Msg("System tray exit complete")
	})
}

// Quit closes the tray from outside the menu.
func (t *TrayApp) Quit() {
	systray.Quit()
}

func (t *TrayApp) onReady() {
	systray.SetTitle("TankPit Bot")
	systray.SetTooltip("TankPit fuel and shield bot")

	t.statusItem = systray.AddMenuItem("Status: Idle", "Current bot state")
	t.statusItem.Disable()
	t.fuelItem = systray.AddMenuItem("Fuel: -", "Last fuel reading")
	t.fuelItem.Disable()

	systray.AddSeparator()

	t.startItem = systray.AddMenuItem("Start", "Start the control loop")
	t.stopItem = systray.AddMenuItem("Stop", "Stop the control loop")
	t.stopItem.Disable()

	systray.AddSeparator()

	thresholdMenu := systray.AddMenuItem("Thresholds", "Fuel thresholds")
	menus := map[thresholdKind]*systray.MenuItem{
		thresholdRefuel: thresholdMenu.AddSubMenuItem("Refuel", "Start collecting fuel below"),
		thresholdShield: thresholdMenu.AddSubMenuItem("Shield", "Raise shields below"),
		thresholdSafe:   thresholdMenu.AddSubMenuItem("Safe", "Hold position above"),
	}
	for kind, menu := range menus {
		for _, v := range thresholdPresets[kind] {
			item := menu.AddSubMenuItemCheckbox(fmt.Sprintf("%d%%", v), "", false)
			t.thresholdItems[kind] = append(t.thresholdItems[kind], item)
			go t.handleThresholdClick(kind, v, item)
		}
	}

	mapMenu := systray.AddMenuItem("Map", "Preferred arena")
	for _, m := range []bot.PreferredMap{bot.MapAuto, bot.MapWorld, bot.MapTraining, bot.MapTournament} {
		item := mapMenu.AddSubMenuItemCheckbox(string(m), "", false)
		t.mapItems[m] = item
		go t.handleMapClick(m, item)
	}
	t.updateCheckmarks()

	systray.AddSeparator()
	quitItem := systray.AddMenuItem("Quit", "Quit the application")

	go t.handleEvents(quitItem)
	t.ready.Store(true)
	log.Info().Msg("System tray initialized")
}

func (t *TrayApp) handleEvents(quitItem *systray.MenuItem) {
	for {
		select {
		case <-t.startItem.ClickedCh:
			if err := t.ctrl.Start(t.ctx); err != nil && !errors.Is(err, bot.ErrAlreadyRunning) {
				log.Error().Err(err).Msg("Failed to start bot from tray")
			}
			t.updateRunning()
		case <-t.stopItem.ClickedCh:
			if err := t.ctrl.Stop(); err != nil && !errors.Is(err, bot.ErrNotRunning) {
				log.Error().Err(err).Msg("Failed to stop bot from tray")
			}
			t.updateRunning()
		case <-quitItem.ClickedCh:
			log.Info().Msg("Quit requested from tray")
			systray.Quit()
			return
		case <-t.ctx.Done():
			return
		}
	}
}

func (t *TrayApp) handleThresholdClick(kind thresholdKind, value int, item *systray.MenuItem) {
	for range item.ClickedCh {
		next := t.settings.Get()
		kind.set(&next, value)
		if res := t.settings.Update(next); !res.OK() {
			t.statusItem.SetTitle("Rejected: " + res.Err.Error())
		}
		t.updateCheckmarks()
	}
}

func (t *TrayApp) handleMapClick(m bot.PreferredMap, item *systray.MenuItem) {
	for range item.ClickedCh {
		next := t.settings.Get()
		next.PreferredMap = m
		t.settings.Update(next)
		t.updateCheckmarks()
	}
}

func (t *TrayApp) updateCheckmarks() {
	s := t.settings.Get()
	for kind, items := range t.thresholdItems {
		current := kind.get(s)
		for i, item := range items {
			if thresholdPresets[kind][i] == current {
				item.Check()
			} else {
				item.Uncheck()
			}
		}
	}
	for m, item := range t.mapItems {
		if m == s.PreferredMap {
			item.Check()
		} else {
			item.Uncheck()
		}
	}
}

func (t *TrayApp) updateRunning() {
	if t.ctrl.Running() {
		t.startItem.Disable()
		t.stopItem.Enable()
	} else {
		t.startItem.Enable()
		t.stopItem.Disable()
	}
}

// Publish implements bot.StatusSink.
func (t *TrayApp) Publish(r bot.Report) {
	if !t.ready.Load() {
		return
	}
	t.statusItem.SetTitle("Status: " + r.Status.Status)
	shield := ""
	if r.Status.ShieldsActive {
		shield = ", shields up"
	}
	t.fuelItem.SetTitle(fmt.Sprintf("Fuel: %d%% (%s)%s", r.Status.CurrentFuel, r.Fuel.Confidence, shield))
}
