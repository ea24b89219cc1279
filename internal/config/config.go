// Package config loads tankbot.json through viper and hands typed sections to
// the rest of the bot.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/spf13/viper"

	"tankpit-bot/internal/bot"
	"tankpit-bot/internal/scene"
	"tankpit-bot/internal/vision"
)

// FileName is the config file looked up in the config directory.
const FileName = "tankbot.json"

// SessionMode selects how frames are captured and input is injected.
type SessionMode string

const (
	ModeBrowser SessionMode = "browser" // chromedp-driven Chrome
	ModeDisplay SessionMode = "display" // native screen capture and input
)

// SessionConfig describes the game session.
type SessionConfig struct {
	Mode         SessionMode  `mapstructure:"mode"`
	URL          string       `mapstructure:"url"`
	Headless     bool         `mapstructure:"headless"`
	CookieFile   string       `mapstructure:"cookieFile"`
	WindowWidth  int          `mapstructure:"windowWidth"`
	WindowHeight int          `mapstructure:"windowHeight"`
	Canvas       string       `mapstructure:"canvas"`    // CSS selector of the game canvas
	MapButton    string       `mapstructure:"mapButton"` // CSS selector of the map button
	MapKey       string       `mapstructure:"mapKey"`    // opens the map when no button exists
	Display      scene.Region `mapstructure:"display"`   // screen rect of the game in display mode
}

// StorageConfig selects the tick history database.
type StorageConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Type    string `mapstructure:"type"` // sqlite | postgres
	Path    string `mapstructure:"path"`
	DSN     string `mapstructure:"dsn"`
}

// InfluxConfig holds the time-series sink settings.
type InfluxConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Token   string `mapstructure:"token"`
	Org     string `mapstructure:"org"`
	Bucket  string `mapstructure:"bucket"`
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level   string `mapstructure:"level"`
	File    string `mapstructure:"file"`
	Graylog struct {
		Enabled bool   `mapstructure:"enabled"`
		Address string `mapstructure:"address"`
	} `mapstructure:"graylog"`
}

// Config is the decoded configuration.
type Config struct {
	Logging  LoggingConfig
	Loop     bot.RunnerConfig
	Settings bot.BotSettings
	Policy   bot.PolicyConfig
	Vision   vision.Config
	Session  SessionConfig
	Storage  StorageConfig
	Influx   InfluxConfig
	HTTPAddr string
}

func setDefaults() {
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.file", "Debug.log")
	viper.SetDefault("logging.graylog.enabled", false)
	viper.SetDefault("logging.graylog.address", "localhost:12201")

	loop := bot.DefaultRunnerConfig()
	viper.SetDefault("loop.interval", loop.Interval)
	viper.SetDefault("loop.errorInterval", loop.ErrorInterval)
	viper.SetDefault("loop.captureTimeout", loop.CaptureTimeout)
	viper.SetDefault("loop.dispatchTimeout", loop.DispatchTimeout)
	viper.SetDefault("loop.reconnectTimeout", loop.ReconnectTimeout)
	viper.SetDefault("loop.minBackoff", loop.MinBackoff)
	viper.SetDefault("loop.maxBackoff", loop.MaxBackoff)

	settings := bot.DefaultSettings()
	viper.SetDefault("settings.refuelThreshold", settings.RefuelThreshold)
	viper.SetDefault("settings.shieldThreshold", settings.ShieldThreshold)
	viper.SetDefault("settings.safeThreshold", settings.SafeThreshold)
	viper.SetDefault("settings.targetPlayer", settings.TargetPlayer)
	viper.SetDefault("settings.preferredMap", string(settings.PreferredMap))

	policy := bot.DefaultPolicyConfig()
	viper.SetDefault("policy.reachRadius", policy.ReachRadius)
	viper.SetDefault("policy.refuelExitMargin", policy.RefuelExitMargin)
	viper.SetDefault("policy.configureMaxTicks", policy.ConfigureMaxTicks)
	viper.SetDefault("policy.navigationTravelTicks", policy.NavigationTravelTicks)
	viper.SetDefault("policy.protectRadius", policy.ProtectRadius)
	viper.SetDefault("policy.shieldKey", policy.ShieldKey)
	viper.SetDefault("policy.mapOverlay", policy.MapOverlay)
	viper.SetDefault("policy.closeOverlayKey", policy.CloseOverlayKey)
	viper.SetDefault("policy.mapGrid", policy.MapGrid)
	for slot, on := range policy.Loadout {
		viper.SetDefault("equipment.desired."+slot, on)
	}

	viper.SetDefault("session.mode", string(ModeBrowser))
	viper.SetDefault("session.url", "https://www.tankpit.com/play")
	viper.SetDefault("session.headless", false)
	viper.SetDefault("session.cookieFile", "cookies.json")
	viper.SetDefault("session.windowWidth", 800)
	viper.SetDefault("session.windowHeight", 600)
	viper.SetDefault("session.canvas", "canvas")
	viper.SetDefault("session.mapButton", "button[data-action='map'], .map-button")
	viper.SetDefault("session.mapKey", "m")
	viper.SetDefault("session.display.x", 0)
	viper.SetDefault("session.display.y", 0)
	viper.SetDefault("session.display.w", 800)
	viper.SetDefault("session.display.h", 600)

	viper.SetDefault("http.addr", ":8001")

	viper.SetDefault("storage.enabled", true)
	viper.SetDefault("storage.type", "sqlite")
	viper.SetDefault("storage.path", "tankbot.db")
	viper.SetDefault("storage.dsn", "")

	viper.SetDefault("influx.enabled", false)
	viper.SetDefault("influx.url", "http://localhost:8086")
	viper.SetDefault("influx.token", "")
	viper.SetDefault("influx.org", "tankbot")
	viper.SetDefault("influx.bucket", "tankbot")
}

// Load reads tankbot.json from configDir on top of the defaults. A missing
// file is not an error.
func Load(configDir string) error {
	setDefaults()

	viper.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
	viper.SetConfigType("json")
	viper.AddConfigPath(configDir)

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}
	return nil
}

// Decode returns the typed configuration. Sections start from their
// defaults so a partial file only overrides what it names.
func Decode() (Config, error) {
	cfg := Config{
		Policy: bot.DefaultPolicyConfig(),
		Vision: vision.DefaultConfig(),
	}
	sections := []struct {
		key    string
		target any
	}{
		{"logging", &cfg.Logging},
		{"loop", &cfg.Loop},
		{"settings", &cfg.Settings},
		{"policy", &cfg.Policy},
		{"equipment.desired", &cfg.Policy.Loadout},
		{"vision", &cfg.Vision},
		{"session", &cfg.Session},
		{"storage", &cfg.Storage},
		{"influx", &cfg.Influx},
	}
	for _, s := range sections {
		if err := viper.UnmarshalKey(s.key, s.target); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", s.key, err)
		}
	}
	cfg.HTTPAddr = viper.GetString("http.addr")

	switch cfg.Session.Mode {
	case ModeBrowser, ModeDisplay:
	default:
		return Config{}, fmt.Errorf("unknown session.mode %q", cfg.Session.Mode)
	}
	return cfg, nil
}

// Store writes accepted settings back to the config file.
type Store struct {
	mu   sync.Mutex
	path string
}

// NewStore returns a Store writing to the file viper loaded, or to
// configDir/tankbot.json when none was found.
func NewStore(configDir string) *Store {
	path := viper.ConfigFileUsed()
	if path == "" {
		path = filepath.Join(configDir, FileName)
	}
	return &Store{path: path}
}

// Path returns the file the store writes.
func (s *Store) Path() string {
	return s.path
}

// SaveSettings implements bot.Persister.
func (s *Store) SaveSettings(settings bot.BotSettings) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	viper.Set("settings.refuelThreshold", settings.RefuelThreshold)
	viper.Set("settings.shieldThreshold", settings.ShieldThreshold)
	viper.Set("settings.safeThreshold", settings.SafeThreshold)
	viper.Set("settings.targetPlayer", settings.TargetPlayer)
	viper.Set("settings.preferredMap", string(settings.PreferredMap))

	if err := viper.WriteConfigAs(s.path); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}
