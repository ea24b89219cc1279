// Command tankpit-bot watches a tankpit game session, keeps the tank fuelled
// and shielded, and exposes its state over HTTP, websocket and the tray.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/api"
	"tankpit-bot/internal/bot"
	"tankpit-bot/internal/config"
	"tankpit-bot/internal/telemetry"
	"tankpit-bot/internal/vision"
)

var (
	configDir = flag.String("config", ".", "directory holding tankbot.json")
	withTray  = flag.Bool("tray", false, "show the system tray menu")
	trainFile = flag.String("train", "", "analyze a saved screenshot, write result.png and exit")
	noStart   = flag.Bool("no-start", false, "wait for a start command instead of starting the loop")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Error().Err(err).Msg("Exiting")
		os.Exit(1)
	}
}

func run() error {
	if err := config.Load(*configDir); err != nil {
		return err
	}
	cfg, err := config.Decode()
	if err != nil {
		return err
	}

	logFile, err := setupLogging(cfg.Logging)
	if err != nil {
		return err
	}
	defer logFile.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *trainFile != "" {
		return runTraining(ctx, *trainFile, "result.png", cfg.Vision)
	}

	store := config.NewStore(*configDir)
	settings, err := bot.NewSettingsStore(cfg.Settings, store)
	if err != nil {
		return fmt.Errorf("settings in %s: %w", store.Path(), err)
	}

	analyzer := vision.NewAnalyzer(cfg.Vision)

	var sessions bot.SessionProvider
	switch cfg.Session.Mode {
	case config.ModeDisplay:
		sessions = NewDisplayProvider(NewDisplay(cfg.Session))
	default:
		browser := NewBrowser(cfg.Session)
		defer browser.Close()
		sessions = NewBrowserProvider(browser, settings)
	}
	log.Info().Str("mode", string(cfg.Session.Mode)).Msg("Session configured")

	fanout := telemetry.NewFanout(telemetry.DefaultBuffer)
	latest := &telemetry.Latest{}
	hub := telemetry.NewHub()
	fanout.Add("latest", latest)
	fanout.Add("websocket", hub)

	metrics, err := telemetry.NewMetrics(nil)
	if err != nil {
		return err
	}
	fanout.Add("metrics", metrics)

	if cfg.Storage.Enabled {
		db, err := telemetry.OpenDB(cfg.Storage.Type, cfg.Storage.Path, cfg.Storage.DSN)
		if err != nil {
			return err
		}
		recorder, err := telemetry.NewTickRecorder(db)
		if err != nil {
			return err
		}
		defer recorder.Close()
		fanout.Add("storage", recorder)
		log.Info().Str("type", cfg.Storage.Type).Msg("Tick history enabled")
	}

	if cfg.Influx.Enabled {
		influx := telemetry.NewInfluxSink(cfg.Influx.URL, cfg.Influx.Token, cfg.Influx.Org, cfg.Influx.Bucket)
		defer influx.Close()
		fanout.Add("influx", influx)
		log.Info().Str("url", cfg.Influx.URL).Msg("InfluxDB export enabled")
	}

	runner := bot.NewRunner(cfg.Loop, bot.RunnerOptions{
		Sessions: sessions,
		Analyzer: analyzer,
		Policy:   bot.NewPolicy(cfg.Policy, analyzer.Equipment),
		Settings: settings,
		Sink:     fanout,
	})

	var tray *TrayApp
	if *withTray {
		tray = NewTrayApp(ctx, runner, settings, stop)
		fanout.Add("tray", tray)
	}

	go hub.Run(ctx, telemetry.PingInterval)

	srv := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewServer(api.Options{
			Context:    ctx,
			Controller: runner,
			Settings:   settings,
			Status:     latest,
			Socket:     hub,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
			stop()
		}
	}()

	if !*noStart {
		if err := runner.Start(ctx); err != nil {
			return err
		}
	}

	if tray != nil {
		go func() {
			<-ctx.Done()
			tray.Quit()
		}()
		tray.Run()
	} else {
		<-ctx.Done()
	}

	log.Info().Msg("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP server shutdown")
	}
	if err := runner.Stop(); err != nil && !errors.Is(err, bot.ErrNotRunning) {
		log.Warn().Err(err).Msg("Stopping control loop")
	}
	fanout.Close()
	return nil
}
