package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/Graylog2/go-gelf/gelf"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/config"
)

// parseLevel maps the config level name to a zerolog level, defaulting to info.
func parseLevel(name string) zerolog.Level {
	switch strings.ToUpper(name) {
	case "TRACE":
		return zerolog.TraceLevel
	case "DEBUG":
		return zerolog.DebugLevel
	case "WARN":
		return zerolog.WarnLevel
	case "ERROR":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// setupLogging points the global logger at the console, the debug file
// (truncated every run) and, when enabled, Graylog. The returned closer
// flushes the file.
func setupLogging(cfg config.LoggingConfig) (io.Closer, error) {
	file, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	writers := []io.Writer{
		zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339},
		zerolog.ConsoleWriter{Out: file, TimeFormat: time.RFC3339, NoColor: true},
	}

	var graylogErr error
	if cfg.Graylog.Enabled {
		gw, err := gelf.NewWriter(cfg.Graylog.Address)
		if err != nil {
			graylogErr = err
		} else {
			writers = append(writers, gw)
		}
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))
	zerolog.TimestampFunc = func() time.Time {
		return time.Now().UTC()
	}
	log.Logger = zerolog.New(zerolog.MultiLevelWriter(writers...)).With().Timestamp().Logger()

	if graylogErr != nil {
		log.Warn().Err(graylogErr).Str("address", cfg.Graylog.Address).Msg("Graylog unavailable, logging locally")
	}
	log.Info().Str("level", zerolog.GlobalLevel().String()).Str("file", cfg.File).Msg("Logging set up")
	return file, nil
}
