package bot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tankpit-bot/internal/scene"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type fakeIdentifier struct {
	sighting Sighting
	asked    []string
}

func (f *fakeIdentifier) Identify(_ context.Context, _ *scene.Frame, name string) Sighting {
	f.asked = append(f.asked, name)
	return f.sighting
}

type harness struct {
	runner   *Runner
	policy   *Policy
	session  *fakeSession
	provider *fakeProvider
	analyzer *fakeAnalyzer
	settings *SettingsStore
	reports  *reportLog
	clock    *clock
}

func newHarness(t *testing.T, cfg RunnerConfig) *harness {
	t.Helper()
	h := &harness{
		policy:   NewPolicy(DefaultPolicyConfig(), nil),
		session:  &fakeSession{frame: testFrame()},
		analyzer: &fakeAnalyzer{},
		reports:  &reportLog{},
		clock:    &clock{t: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)},
	}
	h.provider = &fakeProvider{session: h.session}
	settings, err := NewSettingsStore(DefaultSettings(), nil)
	require.NoError(t, err)
	h.settings = settings
	h.analyzer.set(fuel(60))
	h.runner = NewRunner(cfg, RunnerOptions{
		Sessions: h.provider,
		Analyzer: h.analyzer,
		Policy:   h.policy,
		Settings: h.settings,
		Sink:     h.reports,
	})
	return h
}

// ticking returns a harness whose policy is started and whose clock is manual.
func ticking(t *testing.T) *harness {
	h := newHarness(t, DefaultRunnerConfig())
	h.runner.now = h.clock.now
	h.policy.Start()
	return h
}

func TestNewRunner_PublishesIdle(t *testing.T) {
	h := newHarness(t, DefaultRunnerConfig())

	require.Equal(t, 1, h.reports.len())
	r := h.reports.last()
	assert.Equal(t, StateIdle, r.State)
	assert.False(t, r.Status.Running)
	assert.Equal(t, DefaultSettings(), r.Status.Settings)
}

func TestRunner_ShieldDispatchedOnce(t *testing.T) {
	h := ticking(t)
	h.analyzer.set(fuel(5))

	for i := 0; i < 3; i++ {
		require.NoError(t, h.runner.Tick(context.Background()))
	}

	assert.Equal(t, []Action{{Kind: ActionKey, Key: "1"}}, h.session.recorded())
	assert.Equal(t, StateShieldActive, h.reports.last().State)
	assert.True(t, h.reports.last().Status.ShieldsActive)
	assert.Equal(t, 1, h.reports.last().Status.Stats.ShieldActivations)

	h.analyzer.set(fuel(40))
	require.NoError(t, h.runner.Tick(context.Background()))
	assert.Equal(t, StateMonitoring, h.reports.last().State)
	assert.False(t, h.reports.last().Status.ShieldsActive)
}

func TestRunner_DispatchFailureRetriedNextTick(t *testing.T) {
	h := ticking(t)
	h.analyzer.set(fuel(5))
	h.session.failNext = errInjected

	require.NoError(t, h.runner.Tick(context.Background()))
	first := h.reports.last()
	assert.ErrorIs(t, first.DispatchErr, errInjected)
	require.NotNil(t, first.Action)
	assert.Equal(t, PurposeShield, first.Action.Purpose)
	assert.Empty(t, h.session.recorded())

	require.NoError(t, h.runner.Tick(context.Background()))
	assert.NoError(t, h.reports.last().DispatchErr)
	assert.Len(t, h.session.recorded(), 1)
}

func TestRunner_NoSessionBacksOff(t *testing.T) {
	h := ticking(t)
	h.provider.session = nil
	h.provider.reconnErr = errInjected
	ctx := context.Background()

	steps := []struct {
		advance    time.Duration
		reconnects int
	}{
		{0, 0},                      // arms a 1s schedule
		{500 * time.Millisecond, 0}, // too early
		{500 * time.Millisecond, 1}, // attempt, next in 2s
		{time.Second, 1},
		{time.Second, 2}, // attempt, next in 4s
		{3 * time.Second, 2},
		{time.Second, 3},
	}
	for i, s := range steps {
		h.clock.advance(s.advance)
		require.NoError(t, h.runner.Tick(ctx))
		reconnects, _ := h.provider.counts()
		assert.Equal(t, s.reconnects, reconnects, "step %d", i)
		assert.Equal(t, StateNoSession, h.policy.State())
		assert.Nil(t, h.reports.last().Action)
	}
	assert.Empty(t, h.session.recorded())
}

func TestRunner_BackoffCapped(t *testing.T) {
	h := ticking(t)
	h.runner.cfg.MaxBackoff = 3 * time.Second
	h.provider.session = nil
	h.provider.reconnErr = errInjected
	ctx := context.Background()

	require.NoError(t, h.runner.Tick(ctx))
	for i := 0; i < 5; i++ {
		h.clock.advance(time.Minute)
		require.NoError(t, h.runner.Tick(ctx))
	}
	assert.Equal(t, 3*time.Second, h.runner.backoff)
}

func TestRunner_RecoversAfterReconnect(t *testing.T) {
	h := ticking(t)
	ctx := context.Background()
	h.session.capErr = errInjected

	require.NoError(t, h.runner.Tick(ctx))
	assert.Equal(t, StateNoSession, h.policy.State())
	assert.False(t, h.runner.nextReconnect.IsZero())

	h.session.capErr = nil
	require.NoError(t, h.runner.Tick(ctx))
	assert.Equal(t, StateMonitoring, h.policy.State())
	assert.True(t, h.runner.nextReconnect.IsZero())
}

func TestRunner_AnalyzerPanicFailsTick(t *testing.T) {
	h := ticking(t)
	h.analyzer.panics = true

	err := h.runner.Tick(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "detector exploded")
}

func TestRunner_CancelledTickIsNoop(t *testing.T) {
	h := ticking(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	before := h.reports.len()

	require.NoError(t, h.runner.Tick(ctx))

	assert.Equal(t, StateIdle, h.policy.State())
	assert.Equal(t, before, h.reports.len())
}

func TestRunner_IdentifiesTargetPlayer(t *testing.T) {
	h := ticking(t)
	id := &fakeIdentifier{sighting: Sighting{Name: "buddy", Nearby: true}}
	h.runner.identifier = id
	h.analyzer.set(withNodes(fuel(20), scene.FuelNode{Position: scene.Pt(410, 300), Value: 5}))

	require.NoError(t, h.runner.Tick(context.Background()))
	assert.Empty(t, id.asked, "no target configured")
	assert.Len(t, h.session.recorded(), 1)

	s := DefaultSettings()
	s.TargetPlayer = "buddy"
	require.True(t, h.settings.Update(s).OK())
	require.NoError(t, h.runner.Tick(context.Background()))

	assert.Equal(t, []string{"buddy"}, id.asked)
	assert.Len(t, h.session.recorded(), 1, "collect suppressed near the protected player")
	assert.Equal(t, 1, h.reports.last().Status.Stats.Suppressed)
}

func TestRunner_StartStop(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.Interval = 5 * time.Millisecond
	cfg.ErrorInterval = 5 * time.Millisecond
	h := newHarness(t, cfg)

	require.ErrorIs(t, h.runner.Stop(), ErrNotRunning)
	require.NoError(t, h.runner.Start(context.Background()))
	assert.ErrorIs(t, h.runner.Start(context.Background()), ErrAlreadyRunning)
	assert.True(t, h.runner.Running())

	require.Eventually(t, func() bool {
		return h.reports.len() > 2 && h.reports.last().Status.Running
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, h.runner.Stop())
	assert.False(t, h.runner.Running())

	_, released := h.provider.counts()
	assert.Equal(t, 1, released)
	last := h.reports.last()
	assert.False(t, last.Status.Running)
	assert.Equal(t, StateIdle, last.State)

	require.NoError(t, h.runner.Start(context.Background()), "restartable")
	require.NoError(t, h.runner.Stop())
}

func TestRunner_StopsWithParentContext(t *testing.T) {
	cfg := DefaultRunnerConfig()
	cfg.Interval = 5 * time.Millisecond
	h := newHarness(t, cfg)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, h.runner.Start(ctx))
	cancel()

	waitCtx, stop := context.WithTimeout(context.Background(), time.Second)
	defer stop()
	h.runner.Wait(waitCtx)
	require.NoError(t, waitCtx.Err())

	_, released := h.provider.counts()
	assert.Equal(t, 1, released)
}
