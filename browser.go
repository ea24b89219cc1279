// browser.go drives the game page through chromedp: lifecycle, screen
// capture, cookie persistence and reconnection.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/bot"
	"tankpit-bot/internal/config"
	"tankpit-bot/internal/scene"
)

var (
	errBrowserClosed = errors.New("browser context is invalid")
	errNoCanvas      = errors.New("game canvas not found")
)

// CookieData is a browser cookie as stored in the cookie file.
type CookieData struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	HTTPOnly bool    `json:"httpOnly"`
	Secure   bool    `json:"secure"`
	SameSite string  `json:"sameSite"`
}

// Browser owns one Chrome tab showing the game. It implements bot.Session.
type Browser struct {
	cfg config.SessionConfig

	mu          sync.Mutex
	ctx         context.Context
	cancel      context.CancelFunc
	allocCtx    context.Context
	allocCancel context.CancelFunc
}

// NewBrowser creates a browser that is started on the first Reconnect.
func NewBrowser(cfg config.SessionConfig) *Browser {
	return &Browser{cfg: cfg}
}

func (b *Browser) tab() context.Context {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ctx
}

// alive reports whether the tab context is usable.
func (b *Browser) alive() bool {
	ctx := b.tab()
	return ctx != nil && ctx.Err() == nil
}

// run executes actions on the tab, bounded by both the tab and ctx.
func (b *Browser) run(ctx context.Context, actions ...chromedp.Action) error {
	tab := b.tab()
	if tab == nil || tab.Err() != nil {
		return errBrowserClosed
	}
	rctx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()
	if err := chromedp.Run(rctx, actions...); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return err
	}
	return nil
}

// Start launches Chrome, restores cookies, installs the input helpers and
// opens the game.
func (b *Browser) Start(ctx context.Context) error {
	b.Close()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", b.cfg.Headless),
		chromedp.Flag("disable-gpu", false),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.WindowSize(b.cfg.WindowWidth, b.cfg.WindowHeight),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	tabCtx, cancel := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(format string, args ...any) {
		log.Debug().Msgf(format, args...)
	}))
	b.mu.Lock()
	b.ctx, b.cancel, b.allocCtx, b.allocCancel = tabCtx, cancel, allocCtx, allocCancel
	b.mu.Unlock()
	// the first Run allocates the browser and must not carry a deadline
	if err := chromedp.Run(tabCtx); err != nil {
		return fmt.Errorf("start browser: %w", err)
	}
	log.Info().Bool("headless", b.cfg.Headless).Msg("Browser started")

	cookies, err := loadCookies(b.cfg.CookieFile)
	if err != nil {
		log.Warn().Err(err).Str("file", b.cfg.CookieFile).Msg("Failed to load cookies")
	}
	if len(cookies) > 0 {
		if err := b.SetCookies(ctx, cookies); err != nil {
			log.Warn().Err(err).Msg("Failed to set cookies before navigation")
		}
	}

	log.Info().Str("url", b.cfg.URL).Msg("Navigating to game")
	return b.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(inputScript(b.cfg.Canvas)).Do(ctx)
			return err
		}),
		chromedp.Navigate(b.cfg.URL),
	)
}

// Reload reloads the game page. The input helpers are installed again by the
// page itself.
func (b *Browser) Reload(ctx context.Context) error {
	log.Info().Msg("Reloading game page")
	return b.run(ctx, chromedp.Reload())
}

// CanvasExists reports whether the game canvas is on the page.
func (b *Browser) CanvasExists(ctx context.Context) bool {
	var exists bool
	err := b.run(ctx, chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(b.cfg.Canvas)), &exists))
	if err != nil {
		log.Debug().Err(err).Msg("Failed to check canvas existence")
		return false
	}
	return exists
}

// Capture implements bot.Session. A page without the game canvas counts as
// no session.
func (b *Browser) Capture(ctx context.Context) (*scene.Frame, error) {
	var (
		exists bool
		buf    []byte
	)
	err := b.run(ctx,
		chromedp.Evaluate(fmt.Sprintf(`document.querySelector(%s) !== null`, jsString(b.cfg.Canvas)), &exists),
		chromedp.ActionFunc(func(ctx context.Context) error {
			if !exists {
				return errNoCanvas
			}
			return chromedp.CaptureScreenshot(&buf).Do(ctx)
		}),
	)
	if err != nil {
		return nil, err
	}

	img, _, err := image.Decode(bytes.NewReader(buf))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	return scene.FromImage(img, time.Now()), nil
}

// JoinMap asks the lobby for the preferred arena. Auto leaves the choice to
// the game.
func (b *Browser) JoinMap(ctx context.Context, m bot.PreferredMap) error {
	if m == "" || m == bot.MapAuto {
		return nil
	}
	var joined bool
	if err := b.run(ctx, chromedp.Evaluate(fmt.Sprintf(`selectMap(%s)`, jsString(string(m))), &joined)); err != nil {
		return err
	}
	if !joined {
		log.Warn().Str("map", string(m)).Msg("Map selector not found, staying on current map")
	}
	return nil
}

// GetCookies retrieves all cookies from the browser.
func (b *Browser) GetCookies(ctx context.Context) ([]CookieData, error) {
	var cookies []*network.Cookie
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return nil, err
	}

	out := make([]CookieData, len(cookies))
	for i, c := range cookies {
		out[i] = CookieData{
			Name:     c.Name,
			Value:    c.Value,
			Domain:   c.Domain,
			Path:     c.Path,
			Expires:  c.Expires,
			HTTPOnly: c.HTTPOnly,
			Secure:   c.Secure,
			SameSite: string(c.SameSite),
		}
	}
	return out, nil
}

// SetCookies sets cookies in the browser. Individual failures are logged.
func (b *Browser) SetCookies(ctx context.Context, cookies []CookieData) error {
	err := b.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		for _, c := range cookies {
			params := network.SetCookie(c.Name, c.Value).
				WithDomain(c.Domain).
				WithPath(c.Path).
				WithHTTPOnly(c.HTTPOnly).
				WithSecure(c.Secure)
			if c.Expires > 0 {
				expires := cdp.TimeSinceEpoch(time.Unix(int64(c.Expires), 0))
				params = params.WithExpires(&expires)
			}
			if c.SameSite != "" {
				params = params.WithSameSite(network.CookieSameSite(c.SameSite))
			}
			if err := params.Do(ctx); err != nil {
				log.Warn().Err(err).Str("cookie", c.Name).Msg("Failed to set cookie")
			}
		}
		return nil
	}))
	if err != nil {
		return err
	}
	log.Info().Int("count", len(cookies)).Msg("Cookies restored")
	return nil
}

// SaveCookies writes the current cookies to the cookie file.
func (b *Browser) SaveCookies(ctx context.Context) error {
	if b.cfg.CookieFile == "" {
		return nil
	}
	cookies, err := b.GetCookies(ctx)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cookies, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(b.cfg.CookieFile, data, 0600); err != nil {
		return fmt.Errorf("write cookies: %w", err)
	}
	log.Info().Int("count", len(cookies)).Str("file", b.cfg.CookieFile).Msg("Cookies saved")
	return nil
}

func loadCookies(path string) ([]CookieData, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var cookies []CookieData
	if err := json.Unmarshal(data, &cookies); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return cookies, nil
}

// Close shuts the tab and the browser process.
func (b *Browser) Close() {
	b.mu.Lock()
	cancel, allocCancel := b.cancel, b.allocCancel
	b.ctx, b.cancel, b.allocCtx, b.allocCancel = nil, nil, nil, nil
	b.mu.Unlock()

	if cancel == nil {
		return
	}
	log.Info().Msg("Closing browser")
	cancel()
	allocCancel()
}

// BrowserProvider hands the browser to the control loop and restores it when
// the game is lost.
type BrowserProvider struct {
	browser  *Browser
	settings *bot.SettingsStore
}

// NewBrowserProvider wraps b. The preferred map is read from settings on
// every reconnect.
func NewBrowserProvider(b *Browser, settings *bot.SettingsStore) *BrowserProvider {
	return &BrowserProvider{browser: b, settings: settings}
}

// Session implements bot.SessionProvider.
func (p *BrowserProvider) Session() bot.Session {
	if !p.browser.alive() {
		return nil
	}
	return p.browser
}

// Reconnect starts Chrome when it is gone and reloads the page otherwise,
// then joins the preferred map.
func (p *BrowserProvider) Reconnect(ctx context.Context) error {
	var err error
	if p.browser.alive() {
		err = p.browser.Reload(ctx)
	} else {
		err = p.browser.Start(ctx)
	}
	if err != nil {
		return fmt.Errorf("%w: %w", bot.ErrSessionUnavailable, err)
	}
	if !p.browser.CanvasExists(ctx) {
		return fmt.Errorf("%w: %w", bot.ErrSessionUnavailable, errNoCanvas)
	}
	return p.browser.JoinMap(ctx, p.settings.Get().PreferredMap)
}

// Release saves cookies so the next start resumes the login.
func (p *BrowserProvider) Release(ctx context.Context) error {
	if !p.browser.alive() {
		return nil
	}
	return p.browser.SaveCookies(ctx)
}
