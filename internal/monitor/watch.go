package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
)

// Schedule wraps a parsed 5-field cron expression used to pace watch runs.
type Schedule struct {
	raw      string
	schedule cron.Schedule
}

// ParseSchedule parses a standard 5-field (minute-based) cron expression.
func ParseSchedule(expr string) (*Schedule, error) {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	schedule, err := parser.Parse(expr)
	if err != nil {
		return nil, fmt.Errorf("parse cron %q: %w", expr, err)
	}
	return &Schedule{raw: expr, schedule: schedule}, nil
}

// Next returns the next activation time after t.
func (s *Schedule) Next(t time.Time) time.Time {
	return s.schedule.Next(t)
}

// String returns the raw cron expression.
func (s *Schedule) String() string {
	return s.raw
}

// Watch runs a reconcile pass at a fixed interval until ctx is done.
// One pass runs immediately before the first wait. While watching, a
// heartbeat file in the logs directory marks this process as the
// active watcher.
func (m *Monitor) Watch(ctx context.Context, every time.Duration) error {
	if every <= 0 {
		every = 30 * time.Second
	}

	hb := newHeartbeatWriter(HeartbeatPath(m.store), m.scanLimit)
	defer hb.stop()

	for {
		hb.beat()
		if _, err := m.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("reconcile pass failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(every):
		}
	}
}

// WatchCron runs a reconcile pass on each activation of a cron schedule
// until ctx is done.
func (m *Monitor) WatchCron(ctx context.Context, s *Schedule) error {
	hb := newHeartbeatWriter(HeartbeatPath(m.store), m.scanLimit)
	defer hb.stop()
	hb.beat()

	for {
		next := s.Next(time.Now())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		hb.beat()
		if _, err := m.ReconcileAll(ctx); err != nil && ctx.Err() == nil {
			m.logger.Warn("reconcile pass failed", "cron", s, "error", err)
		}
	}
}
