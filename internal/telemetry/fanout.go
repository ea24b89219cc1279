// Package telemetry holds the status sinks fed by the control loop: a
// non-blocking fanout, the websocket hub, tick history, time-series and
// metrics.
package telemetry

import (
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/bot"
)

// DefaultBuffer is the per-sink queue length of a Fanout.
const DefaultBuffer = 64

type queue struct {
	name    string
	sink    bot.StatusSink
	ch      chan bot.Report
	dropped atomic.Int64
}

// Fanout delivers every report to each registered sink on its own goroutine.
// Publish never blocks; a sink whose queue is full misses the report.
type Fanout struct {
	mu     sync.RWMutex
	buffer int
	queues []*queue
	closed bool
	wg     sync.WaitGroup
}

// NewFanout returns a fanout with the given per-sink queue length.
func NewFanout(buffer int) *Fanout {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Fanout{buffer: buffer}
}

// Add registers a sink.
func (f *Fanout) Add(name string, sink bot.StatusSink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}

	q := &queue{name: name, sink: sink, ch: make(chan bot.Report, f.buffer)}
	f.queues = append(f.queues, q)
	f.wg.Add(1)
	go f.drain(q)
}

func (f *Fanout) drain(q *queue) {
	defer f.wg.Done()
	for r := range q.ch {
		deliver(q, r)
	}
}

func deliver(q *queue, r bot.Report) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Error().Str("sink", q.name).Interface("panic", rec).Msg("Status sink panicked")
		}
	}()
	q.sink.Publish(r)
}

// Publish implements bot.StatusSink.
func (f *Fanout) Publish(r bot.Report) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if f.closed {
		return
	}
	for _, q := range f.queues {
		select {
		case q.ch <- r:
		default:
			if n := q.dropped.Add(1); n == 1 || n%100 == 0 {
				log.Warn().Str("sink", q.name).Int64("dropped", n).Msg("Status sink is falling behind")
			}
		}
	}
}

// Dropped returns how many reports the named sink missed.
func (f *Fanout) Dropped(name string) int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, q := range f.queues {
		if q.name == name {
			return q.dropped.Load()
		}
	}
	return 0
}

// Close stops accepting reports and waits for queued ones to be delivered.
func (f *Fanout) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true
	for _, q := range f.queues {
		close(q.ch)
	}
	f.mu.Unlock()
	f.wg.Wait()
}
