package telemetry

import (
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2_api "github.com/influxdata/influxdb-client-go/v2/api"
	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/rs/zerolog/log"

	"tankpit-bot/internal/bot"
)

// Measurement is the InfluxDB measurement written per tick.
const Measurement = "bot_status"

// InfluxSink writes a bot_status point per report through the batching
// write API.
type InfluxSink struct {
	client influxdb2.Client
	writer influxdb2_api.WriteAPI
	done   chan struct{}
}

// NewInfluxSink connects lazily; write errors are logged, never returned.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().
			SetBatchSize(100).
			SetFlushInterval(1000),
	)
	s := &InfluxSink{
		client: client,
		writer: client.WriteAPI(org, bucket),
		done:   make(chan struct{}),
	}
	go s.logErrors()
	return s
}

func (s *InfluxSink) logErrors() {
	errs := s.writer.Errors()
	for {
		select {
		case err := <-errs:
			log.Warn().Err(err).Msg("InfluxDB write failed")
		case <-s.done:
			return
		}
	}
}

func pointOf(r bot.Report) *influxdb2_write.Point {
	tags := map[string]string{
		"state":      r.State.String(),
		"method":     r.Fuel.Method,
		"confidence": r.Fuel.Confidence.String(),
	}
	fields := map[string]any{
		"fuel":           r.Status.CurrentFuel,
		"nodes":          r.Nodes,
		"shields_active": r.Status.ShieldsActive,
		"running":        r.Status.Running,
		"ticks":          r.Status.Stats.Ticks,
	}
	if r.Action != nil {
		tags["purpose"] = string(r.Action.Purpose)
		fields["dispatch_ok"] = r.DispatchErr == nil
	}
	return influxdb2.NewPoint(Measurement, tags, fields, r.At)
}

// Publish implements bot.StatusSink.
func (s *InfluxSink) Publish(r bot.Report) {
	s.writer.WritePoint(pointOf(r))
}

// Close flushes pending points and closes the client.
func (s *InfluxSink) Close() {
	s.writer.Flush()
	close(s.done)
	s.client.Close()
}
