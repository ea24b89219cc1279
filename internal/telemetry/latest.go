package telemetry

import (
	"sync"

	"tankpit-bot/internal/bot"
)

// Latest keeps the most recent report for pull-style readers.
type Latest struct {
	mu     sync.RWMutex
	report bot.Report
	seen   bool
}

// Publish implements bot.StatusSink.
func (l *Latest) Publish(r bot.Report) {
	l.mu.Lock()
	l.report, l.seen = r, true
	l.mu.Unlock()
}

// Report returns the last report and whether one was published.
func (l *Latest) Report() (bot.Report, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.report, l.seen
}

// Status returns the last published status.
func (l *Latest) Status() bot.BotStatus {
	r, _ := l.Report()
	return r.Status
}
