// action.go injects input into the game page. Events are dispatched on the
// canvas by a small script installed on every document load.
package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"
)

// inputScript returns the helpers evaluated on every new document. The
// canvas is looked up on each event since the script runs before the game
// creates it.
func inputScript(canvas string) string {
	return `
const CANVAS_SELECTOR = ` + jsString(canvas) + `
function client() {
    return document.querySelector(CANVAS_SELECTOR)
}
function dispatchEvent(event) {
    const c = client()
    if (!c) throw new Error('game canvas not found')
    return c.dispatchEvent(event)
}
function mouseEvent(type, x, y) {
    switch (type) {
        case 'move':
            dispatchEvent(new MouseEvent('mousemove', { clientX: x, clientY: y, bubbles: true }))
            break
        case 'moveClick':
            dispatchEvent(new MouseEvent('mousemove', { clientX: x, clientY: y, bubbles: true }))
            dispatchEvent(new MouseEvent('mousedown', { clientX: x, clientY: y, bubbles: true }))
            dispatchEvent(new MouseEvent('mouseup', { clientX: x, clientY: y, bubbles: true }))
            dispatchEvent(new MouseEvent('click', { clientX: x, clientY: y, bubbles: true }))
            break
    }
}
function keyboardEvent(keyMode, key) {
    switch (keyMode) {
        case 'press':
            dispatchEvent(new KeyboardEvent('keydown', { key, bubbles: true }))
            dispatchEvent(new KeyboardEvent('keyup', { key, bubbles: true }))
            break
        case 'hold':
            dispatchEvent(new KeyboardEvent('keydown', { key, bubbles: true }))
            break
        case 'release':
            dispatchEvent(new KeyboardEvent('keyup', { key, bubbles: true }))
            break
    }
}
function openOverlay(selector, key) {
    const button = selector ? document.querySelector(selector) : null
    if (button) {
        button.click()
        return 'button'
    }
    keyboardEvent('press', key)
    return 'key'
}
function selectMap(name) {
    const el = document.querySelector('[data-map="' + name + '"]')
    if (!el) return false
    el.click()
    return true
}
`
}

// jsString quotes s as a JavaScript string literal.
func jsString(s string) string {
	b, err := json.Marshal(s)
	if err != nil {
		return `""`
	}
	return string(b)
}

func (b *Browser) eval(ctx context.Context, js string, res any) error {
	log.Trace().Str("js", js).Msg("Injecting")
	return b.run(ctx, chromedp.Evaluate(js, res))
}

// SendKey implements bot.Dispatcher.
func (b *Browser) SendKey(ctx context.Context, key string) error {
	if err := b.eval(ctx, fmt.Sprintf("keyboardEvent('press', %s);", jsString(key)), nil); err != nil {
		return fmt.Errorf("send key %s: %w", key, err)
	}
	log.Debug().Str("key", key).Msg("Key sent")
	return nil
}

// Click implements bot.Dispatcher.
func (b *Browser) Click(ctx context.Context, x, y int) error {
	if err := b.eval(ctx, fmt.Sprintf("mouseEvent('moveClick', %d, %d);", x, y), nil); err != nil {
		return fmt.Errorf("click (%d, %d): %w", x, y, err)
	}
	log.Debug().Int("x", x).Int("y", y).Msg("Mouse click")
	return nil
}

// OpenOverlay implements bot.Dispatcher. Only the map overlay exists; it is
// opened with its button when present and with the map key otherwise.
func (b *Browser) OpenOverlay(ctx context.Context, name string) error {
	if name != "map" {
		return fmt.Errorf("unknown overlay %q", name)
	}
	var via string
	js := fmt.Sprintf("openOverlay(%s, %s);", jsString(b.cfg.MapButton), jsString(b.cfg.MapKey))
	if err := b.eval(ctx, js, &via); err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	log.Debug().Str("overlay", name).Str("via", via).Msg("Overlay opened")
	return nil
}
