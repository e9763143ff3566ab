package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/config"
	"github.com/hackgods/hospital-appointments/internal/stats"
)

const (
	JobAppointmentCleanup = "appointment-cleanup"
	JobDailyStats         = "daily-stats"
	JobWeeklyCleanup      = "weekly-cleanup"
	JobReminders          = "reminders"
)

type MissedMarker interface {
	MarkMissedForDate(ctx context.Context, date string) (int64, error)
}

type StatsJobs interface {
	Generate(ctx context.Context, date string) (*stats.DailySnapshot, error)
	Prune(ctx context.Context, retention time.Duration) (string, int64, error)
}

type PatientCounter interface {
	CountPatientsCreatedBefore(ctx context.Context, t time.Time) (int64, error)
}

type AppointmentQuerier interface {
	Query(ctx context.Context, f appointment.Filter) (appointment.Page, error)
}

// Deps are the services the default jobs act on.
type Deps struct {
	Appointments MissedMarker
	Ledger       AppointmentQuerier
	Stats        StatsJobs
	Patients     PatientCounter
	Sink         ReminderSink
	Clock        calendar.Clock

	StatsRetention     time.Duration
	InactivePatientAge time.Duration
}

// DefaultJobs builds the four lifecycle jobs with schedules from cfg.
func DefaultJobs(cfg *config.Config, d Deps) []Job {
	return []Job{
		{Name: JobAppointmentCleanup, Spec: cfg.CleanupSchedule, Task: CleanupTask(d)},
		{Name: JobDailyStats, Spec: cfg.DailyStatsSchedule, Task: DailyStatsTask(d)},
		{Name: JobWeeklyCleanup, Spec: cfg.WeeklyCleanupSchedule, Task: WeeklyCleanupTask(d)},
		{Name: JobReminders, Spec: cfg.ReminderSchedule, Task: ReminderTask(d), RunKey: HourlyRun},
	}
}

// CleanupTask marks yesterday's still-Booked appointments as Missed.
func CleanupTask(d Deps) Task {
	return func(ctx context.Context) (Result, error) {
		date := calendar.Yesterday(d.Clock)
		n, err := d.Appointments.MarkMissedForDate(ctx, date)
		if err != nil {
			return nil, err
		}
		return Result{"target_date": date, "updated": n}, nil
	}
}

// DailyStatsTask rolls up yesterday. An existing snapshot is a skip.
func DailyStatsTask(d Deps) Task {
	return func(ctx context.Context) (Result, error) {
		date := calendar.Yesterday(d.Clock)
		snap, err := d.Stats.Generate(ctx, date)
		if errors.Is(err, stats.ErrSnapshotExists) {
			return Result{"target_date": date, "skipped": "snapshot exists"}, nil
		}
		if err != nil {
			return nil, err
		}
		return Result{
			"target_date": date,
			"total":       snap.Total,
			"attended":    snap.Attended,
			"missed":      snap.Missed,
			"booked":      snap.Booked,
		}, nil
	}
}

// WeeklyCleanupTask prunes old snapshots and reports how many patients
// are older than the inactivity age. Patients are never deleted.
func WeeklyCleanupTask(d Deps) Task {
	return func(ctx context.Context) (Result, error) {
		cutoff, deleted, err := d.Stats.Prune(ctx, d.StatsRetention)
		if err != nil {
			return nil, err
		}
		inactive, err := d.Patients.CountPatientsCreatedBefore(ctx, d.Clock.Now().Add(-d.InactivePatientAge))
		if err != nil {
			return nil, err
		}
		return Result{
			"stats_cutoff":      cutoff,
			"stats_deleted":     deleted,
			"inactive_patients": inactive,
		}, nil
	}
}

// ReminderTask hands Booked appointments starting in the hour that begins
// 25 hours from now to the sink.
func ReminderTask(d Deps) Task {
	return func(ctx context.Context) (Result, error) {
		date, prefix := ReminderWindow(d.Clock.Now())

		var reminders []Reminder
		for page := 1; ; page++ {
			res, err := d.Ledger.Query(ctx, appointment.Filter{
				Status:     appointment.StatusBooked,
				Date:       date,
				TimePrefix: prefix,
				Page:       page,
				Limit:      appointment.MaxPageLimit,
			})
			if err != nil {
				return nil, err
			}
			for _, a := range res.Items {
				reminders = append(reminders, reminderFor(a))
			}
			if page >= res.TotalPages {
				break
			}
		}

		if len(reminders) > 0 {
			if err := d.Sink.Send(ctx, reminders); err != nil {
				return nil, err
			}
		}
		return Result{"target_date": date, "hour": prefix, "candidates": len(reminders)}, nil
	}
}

// ReminderWindow returns the date and "HH:" time prefix of the hour that
// starts 25 hours after now.
func ReminderWindow(now time.Time) (string, string) {
	t := now.Add(25 * time.Hour)
	return t.Format(calendar.DateLayout), t.Format("15") + ":"
}
