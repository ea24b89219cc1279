package telemetry

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"tankpit-bot/internal/bot"
	"tankpit-bot/internal/scene"
)

func sampleReport(fuel int, action *bot.Action, err error) bot.Report {
	return bot.Report{
		At: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Status: bot.BotStatus{
			Running:     true,
			CurrentFuel: fuel,
			Status:      bot.StateRefueling.String(),
			Settings:    bot.DefaultSettings(),
			Stats:       bot.Statistics{Ticks: 7},
		},
		State:       bot.StateRefueling,
		Fuel:        scene.FuelReading{Percentage: fuel, Confidence: scene.Fallback, Method: scene.MethodLineScan},
		Nodes:       2,
		Action:      action,
		DispatchErr: err,
	}
}

type collector struct {
	mu      sync.Mutex
	reports []bot.Report
	block   chan struct{}
}

func (c *collector) Publish(r bot.Report) {
	if c.block != nil {
		<-c.block
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reports = append(c.reports, r)
}

func (c *collector) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.reports)
}

func TestFanout_DeliversToEverySink(t *testing.T) {
	f := NewFanout(8)
	a, b := &collector{}, &collector{}
	f.Add("a", a)
	f.Add("b", b)

	for i := 0; i < 5; i++ {
		f.Publish(sampleReport(i, nil, nil))
	}
	f.Close()

	assert.Equal(t, 5, a.len())
	assert.Equal(t, 5, b.len())
	assert.Equal(t, 4, a.reports[4].Status.CurrentFuel)
}

func TestFanout_SlowSinkDoesNotBlock(t *testing.T) {
	f := NewFanout(1)
	slow := &collector{block: make(chan struct{})}
	fast := &collector{}
	f.Add("slow", slow)
	f.Add("fast", fast)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 20; i++ {
			f.Publish(sampleReport(i, nil, nil))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Publish blocked on a slow sink")
	}
	assert.Positive(t, f.Dropped("slow"))

	close(slow.block)
	f.Close()
	f.Publish(sampleReport(1, nil, nil))
}

func TestFanout_RecoversSinkPanic(t *testing.T) {
	f := NewFanout(4)
	after := &collector{}
	f.Add("bad", bot.SinkFunc(func(bot.Report) { panic("boom") }))
	f.Add("good", after)

	f.Publish(sampleReport(1, nil, nil))
	f.Publish(sampleReport(2, nil, nil))
	f.Close()

	assert.Equal(t, 2, after.len())
}

func TestLatest(t *testing.T) {
	var l Latest
	_, ok := l.Report()
	assert.False(t, ok)

	l.Publish(sampleReport(33, nil, nil))

	r, ok := l.Report()
	assert.True(t, ok)
	assert.Equal(t, 33, r.Status.CurrentFuel)
	assert.Equal(t, 33, l.Status().CurrentFuel)
}

func TestRecordOf(t *testing.T) {
	action := &bot.Action{Kind: bot.ActionClick, Purpose: bot.PurposeCollect, Point: scene.Pt(10, 20)}
	rec := recordOf(sampleReport(21, action, errors.New("timeout")))

	assert.Equal(t, "Refueling", rec.State)
	assert.Equal(t, 21, rec.Fuel)
	assert.Equal(t, "fallback", rec.Confidence)
	assert.Equal(t, "line_scan", rec.Method)
	assert.Equal(t, "collect", rec.Purpose)
	assert.Equal(t, "collect: click (10, 20)", rec.Action)
	assert.Equal(t, "timeout", rec.DispatchError)
	assert.JSONEq(t, `{"refuel_threshold":25,"shield_threshold":10,"safe_threshold":85,"target_player":"","preferred_map":"auto"}`, string(rec.Settings))
}

func TestTickRecorder_SQLite(t *testing.T) {
	db, err := OpenDB("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()), "")
	require.NoError(t, err)
	rec, err := NewTickRecorder(db)
	require.NoError(t, err)
	t.Cleanup(func() { rec.Close() })

	rec.Publish(sampleReport(50, nil, nil))
	rec.Publish(sampleReport(49, &bot.Action{Kind: bot.ActionKey, Purpose: bot.PurposeShield, Key: "1"}, nil))

	rows, err := rec.Recent(10)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 49, rows[0].Fuel)
	assert.Equal(t, "shield", rows[0].Purpose)
	assert.Equal(t, 50, rows[1].Fuel)
	assert.Empty(t, rows[1].Action)
}

func TestOpenDB_UnknownType(t *testing.T) {
	_, err := OpenDB("oracle", "", "")
	assert.ErrorContains(t, err, "oracle")
}

func TestPointOf(t *testing.T) {
	action := &bot.Action{Kind: bot.ActionKey, Purpose: bot.PurposeShield, Key: "1"}
	line := influxdb2_write.PointToLineProtocol(pointOf(sampleReport(42, action, nil)), time.Second)

	assert.Contains(t, line, "bot_status,")
	assert.Contains(t, line, "state=Refueling")
	assert.Contains(t, line, "method=line_scan")
	assert.Contains(t, line, "purpose=shield")
	assert.Contains(t, line, "fuel=42i")
	assert.Contains(t, line, "nodes=2i")
	assert.Contains(t, line, "dispatch_ok=true")
}

func TestMetrics_NoopMeter(t *testing.T) {
	m, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	assert.NotPanics(t, func() {
		m.Publish(sampleReport(10, nil, nil))
		m.Publish(sampleReport(10, &bot.Action{Purpose: bot.PurposeCollect}, nil))
		m.Publish(sampleReport(10, &bot.Action{Purpose: bot.PurposeCollect}, errors.New("x")))
	})
}

func TestMetrics_GlobalMeter(t *testing.T) {
	m, err := NewMetrics(nil)
	require.NoError(t, err)
	assert.NotPanics(t, func() { m.Publish(sampleReport(5, nil, nil)) })
}
