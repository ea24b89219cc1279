package bot

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/scene"
)

// RunnerConfig holds the loop timing.
type RunnerConfig struct {
	Interval         time.Duration `mapstructure:"interval"`         // time between tick starts
	ErrorInterval    time.Duration `mapstructure:"errorInterval"`    // wait after a failed tick
	CaptureTimeout   time.Duration `mapstructure:"captureTimeout"`   // frame acquisition; expiry counts as NoSession
	DispatchTimeout  time.Duration `mapstructure:"dispatchTimeout"`  // one input injection
	ReconnectTimeout time.Duration `mapstructure:"reconnectTimeout"` // one reconnection attempt
	MinBackoff       time.Duration `mapstructure:"minBackoff"`
	MaxBackoff       time.Duration `mapstructure:"maxBackoff"`
}

// DefaultRunnerConfig returns a 2s tick with 5s spacing after errors.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		Interval:         2 * time.Second,
		ErrorInterval:    5 * time.Second,
		CaptureTimeout:   5 * time.Second,
		DispatchTimeout:  2 * time.Second,
		ReconnectTimeout: 30 * time.Second,
		MinBackoff:       time.Second,
		MaxBackoff:       30 * time.Second,
	}
}

// Runner is the control loop: capture, analyze, decide, act, publish, sleep.
type Runner struct {
	cfg        RunnerConfig
	sessions   SessionProvider
	analyzer   Analyzer
	identifier Identifier
	policy     *Policy
	settings   *SettingsStore
	sink       StatusSink
	now        func() time.Time

	// Reconnection schedule while in NoSession. Loop-owned.
	nextReconnect time.Time
	backoff       time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// RunnerOptions are the collaborators of a Runner.
type RunnerOptions struct {
	Sessions   SessionProvider
	Analyzer   Analyzer
	Identifier Identifier
	Policy     *Policy
	Settings   *SettingsStore
	Sink       StatusSink
}

// NewRunner creates a stopped loop and publishes the initial Idle status.
func NewRunner(cfg RunnerConfig, opts RunnerOptions) *Runner {
	r := &Runner{
		cfg:        cfg,
		sessions:   opts.Sessions,
		analyzer:   opts.Analyzer,
		identifier: opts.Identifier,
		policy:     opts.Policy,
		settings:   opts.Settings,
		sink:       opts.Sink,
		now:        time.Now,
	}
	if r.identifier == nil {
		r.identifier = NoIdentifier{}
	}
	if r.sink == nil {
		r.sink = SinkFunc(func(Report) {})
	}
	r.publish(scene.EmptyAnalysis(), nil, nil)
	return r
}

// Start launches the loop in its own goroutine.
func (r *Runner) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		return ErrAlreadyRunning
	}

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel, r.done = cancel, done

	go r.run(ctx, done)
	return nil
}

// Stop cancels the loop and waits for the current tick to finish.
func (r *Runner) Stop() error {
	r.mu.Lock()
	cancel, done := r.cancel, r.done
	r.cancel, r.done = nil, nil
	r.mu.Unlock()

	if done == nil {
		return ErrNotRunning
	}
	cancel()
	<-done
	return nil
}

// Running reports whether the loop goroutine is active.
func (r *Runner) Running() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.done != nil
}

// Wait blocks until the loop exits or ctx is done.
func (r *Runner) Wait(ctx context.Context) {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-ctx.Done():
	}
}

func (r *Runner) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	r.policy.Start()
	r.nextReconnect, r.backoff = time.Time{}, 0
	log.Info().Dur("interval", r.cfg.Interval).Msg("Control loop started")

	for ctx.Err() == nil {
		started := r.now()
		wait := r.cfg.Interval
		if err := r.Tick(ctx); err != nil {
			log.Error().Err(err).Msg("Tick failed")
			wait = r.cfg.ErrorInterval
		}

		timer := time.NewTimer(max(wait-r.now().Sub(started), 0))
		select {
		case <-ctx.Done():
			timer.Stop()
		case <-timer.C:
		}
	}

	r.policy.Stop()
	releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.ReconnectTimeout)
	defer cancel()
	if err := r.sessions.Release(releaseCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to release session")
	}
	r.publish(scene.EmptyAnalysis(), nil, nil)
	log.Info().Msg("Control loop stopped")
}

// Tick runs one capture-analyze-decide-act-publish cycle. Only a panic inside
// the cycle is reported as an error; every other failure is absorbed.
func (r *Runner) Tick(ctx context.Context) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tick panicked: %v", rec)
		}
	}()
	if ctx.Err() != nil {
		return nil
	}

	settings := r.settings.Get()
	session, frame, capErr := r.capture(ctx)
	if frame == nil {
		if capErr != nil && !errors.Is(capErr, context.Canceled) {
			log.Debug().Err(capErr).Msg("No frame this tick")
		}
		r.policy.Step(Observation{}, settings)
		r.reconnect(ctx)
		r.publish(scene.EmptyAnalysis(), nil, nil)
		return nil
	}
	r.nextReconnect, r.backoff = time.Time{}, 0

	origin := frame.Center()
	analysis := r.analyzer.Analyze(ctx, frame, origin)
	sighting := Sighting{}
	if settings.TargetPlayer != "" {
		sighting = r.identifier.Identify(ctx, frame, settings.TargetPlayer)
	}

	action := r.policy.Step(Observation{
		SessionAvailable: true,
		Analysis:         analysis,
		Position:         origin,
		Bounds:           frame.Bounds(),
		Sighting:         sighting,
	}, settings)

	var dispatchErr error
	if action != nil {
		// dispatch is never abandoned halfway by a stop request
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DispatchTimeout)
		dispatchErr = Dispatch(dctx, session, *action)
		cancel()
		if dispatchErr != nil {
			log.Warn().Err(dispatchErr).Stringer("action", action).Msg("Action dispatch failed")
		} else {
			log.Debug().Stringer("action", action).Msg("Action dispatched")
		}
		r.policy.ConfirmDispatch(*action, dispatchErr)
	}

	r.publish(analysis, action, dispatchErr)
	return nil
}

func (r *Runner) capture(ctx context.Context) (Session, *scene.Frame, error) {
	if ctx.Err() != nil {
		return nil, nil, ctx.Err()
	}
	session := r.sessions.Session()
	if session == nil {
		return nil, nil, ErrSessionUnavailable
	}
	cctx, cancel := context.WithTimeout(ctx, r.cfg.CaptureTimeout)
	defer cancel()
	frame, err := session.Capture(cctx)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	if frame == nil {
		return nil, nil, ErrSessionUnavailable
	}
	return session, frame, nil
}

// reconnect attempts to restore the session on an exponential schedule. The
// first NoSession tick only arms the schedule.
func (r *Runner) reconnect(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	now := r.now()
	if r.nextReconnect.IsZero() {
		r.backoff = r.cfg.MinBackoff
		r.nextReconnect = now.Add(r.backoff)
		return
	}
	if now.Before(r.nextReconnect) {
		return
	}

	rctx, cancel := context.WithTimeout(ctx, r.cfg.ReconnectTimeout)
	err := r.sessions.Reconnect(rctx)
	cancel()

	if err != nil {
		r.backoff = min(r.backoff*2, r.cfg.MaxBackoff)
		log.Warn().Err(err).Dur("retryIn", r.backoff).Msg("Reconnect failed")
	} else {
		r.backoff = r.cfg.MinBackoff
		log.Info().Msg("Session reconnected")
	}
	r.nextReconnect = now.Add(r.backoff)
}

func (r *Runner) publish(analysis scene.Analysis, action *Action, dispatchErr error) {
	r.sink.Publish(Report{
		At:          r.now(),
		Status:      r.policy.Status(r.settings.Get()),
		State:       r.policy.State(),
		Fuel:        analysis.Fuel,
		Nodes:       len(analysis.Nodes),
		Action:      action,
		DispatchErr: dispatchErr,
	})
}
