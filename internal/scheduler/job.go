// Package scheduler runs the recurring lifecycle jobs: marking yesterday's
// no-shows, rolling up daily statistics, retention cleanup and reminder
// scans.
package scheduler

import (
	"context"
	"time"

	"github.com/hackgods/hospital-appointments/internal/apperrors"
	"github.com/hackgods/hospital-appointments/internal/calendar"
)

var (
	ErrUnknownJob = apperrors.New(apperrors.KindNotFound, "unknown_job", "no such scheduled job")
	ErrJobRunning = apperrors.New(apperrors.KindConflict, "job_running", "job is already running")
)

// Result is the outcome of one run, logged and kept in the job status.
type Result map[string]any

type Task func(ctx context.Context) (Result, error)

type Job struct {
	Name string
	// Spec is a five-field cron expression evaluated in the scheduler's
	// location.
	Spec string
	Task Task
	// RunKey names the period one run covers; the run-lock is keyed on it.
	// Nil means one run per calendar day.
	RunKey func(now time.Time) string
}

// DailyRun keys a run by its date.
func DailyRun(now time.Time) string {
	return now.Format(calendar.DateLayout)
}

// HourlyRun keys a run by its date and hour.
func HourlyRun(now time.Time) string {
	return now.Format("2006-01-02T15")
}

type JobStatus struct {
	Name         string        `json:"name"`
	Schedule     string        `json:"schedule"`
	Running      bool          `json:"running"`
	Runs         int           `json:"runs"`
	LastRun      *time.Time    `json:"lastRun,omitempty"`
	LastDuration time.Duration `json:"lastDurationNs"`
	LastResult   Result        `json:"lastResult,omitempty"`
	LastError    string        `json:"lastError,omitempty"`
	NextRun      *time.Time    `json:"nextRun,omitempty"`
}
