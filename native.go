// native.go captures the game from the screen and injects OS-level input, for
// setups where the game runs in a window (or Xvfb) not driven by chromedp.
package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-vgo/robotgo"
	"github.com/kbinani/screenshot"
	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/bot"
	"tankpit-bot/internal/config"
	"tankpit-bot/internal/scene"
)

var errNoDisplay = errors.New("no active display")

// robotgo names for the DOM key names the policy uses.
var nativeKeys = map[string]string{
	"Escape": "esc",
	"Enter":  "enter",
	" ":      "space",
}

// Display is a bot.Session over a screen rectangle. Click coordinates are
// relative to the rectangle.
type Display struct {
	rect   scene.Region
	mapKey string
	mu     sync.Mutex // serializes input
}

// NewDisplay returns a session for the configured screen rectangle.
func NewDisplay(cfg config.SessionConfig) *Display {
	return &Display{rect: cfg.Display, mapKey: cfg.MapKey}
}

// Capture implements bot.Session.
func (d *Display) Capture(ctx context.Context) (*scene.Frame, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if screenshot.NumActiveDisplays() == 0 {
		return nil, errNoDisplay
	}
	img, err := screenshot.CaptureRect(d.rect.Rect())
	if err != nil {
		return nil, fmt.Errorf("capture %v: %w", d.rect.Rect(), err)
	}
	return scene.NewFrame(img, time.Now()), nil
}

func nativeKey(key string) string {
	if k, ok := nativeKeys[key]; ok {
		return k
	}
	return strings.ToLower(key)
}

// SendKey implements bot.Dispatcher.
func (d *Display) SendKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := robotgo.KeyTap(nativeKey(key)); err != nil {
		return fmt.Errorf("send key %s: %w", key, err)
	}
	log.Debug().Str("key", key).Msg("Key sent")
	return nil
}

// Click implements bot.Dispatcher.
func (d *Display) Click(ctx context.Context, x, y int) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !d.rect.Contains(scene.Pt(d.rect.X+x, d.rect.Y+y)) {
		return fmt.Errorf("click (%d, %d) outside the game area", x, y)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	robotgo.Move(d.rect.X+x, d.rect.Y+y)
	robotgo.Click("left", false)
	log.Debug().Int("x", x).Int("y", y).Msg("Mouse click")
	return nil
}

// OpenOverlay implements bot.Dispatcher with the map key.
func (d *Display) OpenOverlay(ctx context.Context, name string) error {
	if name != "map" {
		return fmt.Errorf("unknown overlay %q", name)
	}
	return d.SendKey(ctx, d.mapKey)
}

// DisplayProvider serves a single Display. Reconnecting only probes the screen.
type DisplayProvider struct {
	display *Display
}

// NewDisplayProvider wraps d.
func NewDisplayProvider(d *Display) *DisplayProvider {
	return &DisplayProvider{display: d}
}

// Session implements bot.SessionProvider.
func (p *DisplayProvider) Session() bot.Session {
	return p.display
}

// Reconnect implements bot.SessionProvider.
func (p *DisplayProvider) Reconnect(ctx context.Context) error {
	if _, err := p.display.Capture(ctx); err != nil {
		return fmt.Errorf("%w: %w", bot.ErrSessionUnavailable, err)
	}
	return nil
}

// Release implements bot.SessionProvider.
func (p *DisplayProvider) Release(context.Context) error {
	return nil
}
