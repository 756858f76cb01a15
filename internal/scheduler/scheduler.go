// Package scheduler runs periodic background jobs against the farm database.
package scheduler

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// upcomingWindow is how far ahead of its scheduled date a vaccination is
// surfaced as upcoming.
const upcomingWindow = 7 * 24 * time.Hour

type Scheduler struct {
	cron     *cron.Cron
	db       *pgxpool.Pool
	logger   *zap.Logger
	location *time.Location
}

func New(db *pgxpool.Pool, logger *zap.Logger, location *time.Location) *Scheduler {
	if location == nil {
		location = time.UTC
	}
	return &Scheduler{
		cron:     cron.New(cron.WithLocation(location)),
		db:       db,
		logger:   logger,
		location: location,
	}
}

// Start registers the vaccine status refresh on the given cron expression and
// begins running jobs. It also runs the refresh once immediately so statuses
// are correct after a restart.
func (s *Scheduler) Start(spec string) error {
	if _, err := s.cron.AddFunc(spec, s.refreshVaccineStatuses); err != nil {
		return err
	}
	s.cron.Start()
	go s.refreshVaccineStatuses()
	return nil
}

func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// NextStatus decides what a schedule's status should be on the given day.
// Completed and overdue are terminal; the rest move with the calendar.
// Days are compared by calendar date in each time's own zone, so a run near
// midnight in the app timezone cannot flip a schedule a day early or late.
func NextStatus(current string, scheduledDate, now time.Time) string {
	if current == "completed" || current == "overdue" {
		return current
	}
	today := midnightUTC(now)
	scheduled := midnightUTC(scheduledDate)
	if scheduled.Before(today) {
		return "overdue"
	}
	if scheduled.Sub(today) <= upcomingWindow {
		return "upcoming"
	}
	return "pending"
}

func midnightUTC(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func (s *Scheduler) refreshVaccineStatuses() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rows, err := s.db.Query(ctx, `
		SELECT id, status, scheduled_date
		FROM vaccine_schedules
		WHERE status IN ('pending', 'upcoming')
	`)
	if err != nil {
		s.logger.Error("load vaccine schedules failed", zap.Error(err))
		return
	}

	type change struct {
		id     int64
		status string
	}
	var changes []change
	now := time.Now().In(s.location)
	for rows.Next() {
		var id int64
		var status string
		var scheduled time.Time
		if err := rows.Scan(&id, &status, &scheduled); err != nil {
			rows.Close()
			s.logger.Error("scan vaccine schedule failed", zap.Error(err))
			return
		}
		if next := NextStatus(status, scheduled, now); next != status {
			changes = append(changes, change{id: id, status: next})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		s.logger.Error("load vaccine schedules failed", zap.Error(err))
		return
	}

	for _, c := range changes {
		if _, err := s.db.Exec(ctx, `
			UPDATE vaccine_schedules SET status = $1, updated_at = NOW() WHERE id = $2
		`, c.status, c.id); err != nil {
			s.logger.Error("update vaccine status failed", zap.Int64("id", c.id), zap.Error(err))
		}
	}

	if len(changes) > 0 {
		s.logger.Info("vaccine statuses refreshed", zap.Int("updated", len(changes)))
	}
}
