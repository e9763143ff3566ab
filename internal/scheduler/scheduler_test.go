package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/clinic"
	"github.com/hackgods/hospital-appointments/internal/config"
	redisclient "github.com/hackgods/hospital-appointments/internal/redis"
	"github.com/hackgods/hospital-appointments/internal/stats"
)

// 2025-01-10 10:15 UTC; yesterday is 2025-01-09, the reminder window is
// 2025-01-11 11:xx.
var now = time.Date(2025, 1, 10, 10, 15, 0, 0, time.UTC)

type recordingSink struct {
	mu  sync.Mutex
	got []Reminder
}

func (s *recordingSink) Send(_ context.Context, r []Reminder) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, r...)
	return nil
}

type fixture struct {
	sched  *Service
	ledger *appointment.MemoryLedger
	stats  *stats.MemoryStore
	clinic *clinic.MemoryStore
	sink   *recordingSink
}

func newFixture(t *testing.T, locker redisclient.Locker) *fixture {
	t.Helper()
	clock := calendar.FixedClock(now)

	cs := clinic.NewMemoryStore(clock)
	ledger := appointment.NewMemoryLedger()
	appts := appointment.NewService(ledger, cs, nil, nil, appointment.Options{Clock: clock, Logger: zerolog.Nop()})
	ss := stats.NewMemoryStore()
	statsSvc := stats.NewService(ss, stats.NewBuilder(ledger, cs), clock, zerolog.Nop())
	sink := &recordingSink{}

	cfg := &config.Config{
		CleanupSchedule:       "0 0 * * *",
		DailyStatsSchedule:    "0 6 * * *",
		WeeklyCleanupSchedule: "0 2 * * 0",
		ReminderSchedule:      "0 * * * *",
	}
	jobs := DefaultJobs(cfg, Deps{
		Appointments:       appts,
		Ledger:             ledger,
		Stats:              statsSvc,
		Patients:           cs,
		Sink:               sink,
		Clock:              clock,
		StatsRetention:     365 * 24 * time.Hour,
		InactivePatientAge: 30 * 24 * time.Hour,
	})

	sched, err := New(jobs, Options{Clock: clock, Locker: locker, Timeout: time.Minute, Logger: zerolog.Nop()})
	require.NoError(t, err)
	return &fixture{sched: sched, ledger: ledger, stats: ss, clinic: cs, sink: sink}
}

func (f *fixture) reserve(t *testing.T, date, tm string) *appointment.Appointment {
	t.Helper()
	a, err := f.ledger.Reserve(context.Background(), appointment.ReserveParams{
		DoctorID: uuid.New(), PatientID: uuid.New(), Date: date, Time: tm,
	})
	require.NoError(t, err)
	return a
}

func TestCleanupMarksYesterdayOnly(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	y := f.reserve(t, "2025-01-09", "09:00")
	today := f.reserve(t, "2025-01-10", "09:00")

	res, err := f.sched.RunNow(ctx, JobAppointmentCleanup)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-09", res["target_date"])
	assert.Equal(t, int64(1), res["updated"])

	got, _ := f.ledger.Get(ctx, y.ID)
	assert.Equal(t, appointment.StatusMissed, got.Status)
	got, _ = f.ledger.Get(ctx, today.ID)
	assert.Equal(t, appointment.StatusBooked, got.Status)

	res, err = f.sched.RunNow(ctx, JobAppointmentCleanup)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res["updated"])
}

func TestDailyStatsSecondRunIsSkip(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.reserve(t, "2025-01-09", "09:00")

	res, err := f.sched.RunNow(ctx, JobDailyStats)
	require.NoError(t, err)
	assert.Equal(t, 1, res["total"])

	res, err = f.sched.RunNow(ctx, JobDailyStats)
	require.NoError(t, err)
	assert.Equal(t, "snapshot exists", res["skipped"])

	n, err := f.stats.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestWeeklyCleanup(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	_, err := f.stats.Create(ctx, stats.DailySnapshot{Date: "2023-01-01"})
	require.NoError(t, err)
	_, err = f.stats.Create(ctx, stats.DailySnapshot{Date: "2025-01-01"})
	require.NoError(t, err)

	res, err := f.sched.RunNow(ctx, JobWeeklyCleanup)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res["stats_deleted"])
	assert.Equal(t, int64(0), res["inactive_patients"])
}

func TestRemindersSelectWindow(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	due := f.reserve(t, "2025-01-11", "11:30")
	f.reserve(t, "2025-01-11", "12:00")
	f.reserve(t, "2025-01-10", "11:00")
	attended := f.reserve(t, "2025-01-11", "11:00")
	_, err := f.ledger.TransitionStatus(ctx, attended.ID, appointment.StatusAttended)
	require.NoError(t, err)

	res, err := f.sched.RunNow(ctx, JobReminders)
	require.NoError(t, err)
	assert.Equal(t, 1, res["candidates"])
	require.Len(t, f.sink.got, 1)
	assert.Equal(t, due.ID, f.sink.got[0].AppointmentID)

	got, _ := f.ledger.Get(ctx, due.ID)
	assert.Equal(t, appointment.StatusBooked, got.Status)
}

func TestReminderWindowCrossesMidnight(t *testing.T) {
	date, prefix := ReminderWindow(time.Date(2025, 1, 10, 23, 40, 0, 0, time.UTC))
	assert.Equal(t, "2025-01-12", date)
	assert.Equal(t, "00:", prefix)
}

func TestRunNowUnknownJob(t *testing.T) {
	_, err := newFixture(t, nil).sched.RunNow(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrUnknownJob)
}

func TestRunRecoversPanicAndRecordsStatus(t *testing.T) {
	s, err := New([]Job{
		{Name: "boom", Spec: "@hourly", Task: func(context.Context) (Result, error) { panic("kaboom") }},
		{Name: "fails", Spec: "@daily", Task: func(context.Context) (Result, error) { return nil, errors.New("db down") }},
		{Name: "ok", Spec: "@daily", Task: func(context.Context) (Result, error) { return Result{"n": 1}, nil }},
	}, Options{Clock: calendar.FixedClock(now), Logger: zerolog.Nop()})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = s.RunNow(ctx, "boom")
	assert.ErrorContains(t, err, "kaboom")
	_, err = s.RunNow(ctx, "fails")
	assert.ErrorContains(t, err, "db down")
	_, err = s.RunNow(ctx, "ok")
	require.NoError(t, err)

	st := s.Status()
	require.Len(t, st, 3)
	assert.Equal(t, "boom", st[0].Name)
	assert.Contains(t, st[0].LastError, "kaboom")
	assert.False(t, st[0].Running)
	assert.Equal(t, 1, st[0].Runs)
	assert.Equal(t, "db down", st[1].LastError)
	assert.Empty(t, st[2].LastError)
	assert.Equal(t, Result{"n": 1}, st[2].LastResult)
	require.NotNil(t, st[2].LastRun)
	assert.Equal(t, now, *st[2].LastRun)
}

func TestRunNowWhileRunning(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	s, err := New([]Job{{Name: "slow", Spec: "@daily", Task: func(ctx context.Context) (Result, error) {
		close(started)
		<-release
		return nil, nil
	}}}, Options{Logger: zerolog.Nop()})
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		_, err := s.RunNow(context.Background(), "slow")
		done <- err
	}()
	<-started

	_, err = s.RunNow(context.Background(), "slow")
	assert.ErrorIs(t, err, ErrJobRunning)
	assert.True(t, s.Status()[0].Running)

	close(release)
	require.NoError(t, <-done)
}

func TestRunTimeout(t *testing.T) {
	s, err := New([]Job{{Name: "stuck", Spec: "@daily", Task: func(ctx context.Context) (Result, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}}, Options{Timeout: 10 * time.Millisecond, Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.RunNow(context.Background(), "stuck")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestRunSkipsWhenLockHeldElsewhere(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, mr.Set(redisclient.JobKey(JobAppointmentCleanup, "2025-01-10"), "other-replica"))

	f := newFixture(t, redisclient.NewRedisLocker(client, time.Minute))
	y := f.reserve(t, "2025-01-09", "09:00")

	res, err := f.sched.RunNow(context.Background(), JobAppointmentCleanup)
	require.NoError(t, err)
	assert.Equal(t, "run already claimed", res["skipped"])

	got, _ := f.ledger.Get(context.Background(), y.ID)
	assert.Equal(t, appointment.StatusBooked, got.Status)
}

func TestRemindersRunOncePerHourAcrossReplicas(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	first := newFixture(t, redisclient.NewRunLocker(client, time.Minute, 25*time.Hour))
	second := newFixture(t, redisclient.NewRunLocker(client, time.Minute, 25*time.Hour))
	first.reserve(t, "2025-01-11", "11:30")
	second.reserve(t, "2025-01-11", "11:30")
	ctx := context.Background()

	res, err := first.sched.RunNow(ctx, JobReminders)
	require.NoError(t, err)
	assert.Equal(t, 1, res["candidates"])

	res, err = first.sched.RunNow(ctx, JobReminders)
	require.NoError(t, err)
	assert.Equal(t, "run already claimed", res["skipped"])

	res, err = second.sched.RunNow(ctx, JobReminders)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-10T10", res["period"])

	assert.Len(t, first.sink.got, 1)
	assert.Empty(t, second.sink.got)
	assert.True(t, mr.Exists(redisclient.JobKey(JobReminders, "2025-01-10T10")))
}

func TestFailedRunCanBeRepeated(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	calls := 0
	s, err := New([]Job{{Name: "flaky", Spec: "@daily", Task: func(context.Context) (Result, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("db down")
		}
		return Result{"ok": true}, nil
	}}}, Options{Clock: calendar.FixedClock(now), Locker: redisclient.NewRunLocker(client, time.Minute, time.Hour), Logger: zerolog.Nop()})
	require.NoError(t, err)

	_, err = s.RunNow(context.Background(), "flaky")
	require.Error(t, err)

	res, err := s.RunNow(context.Background(), "flaky")
	require.NoError(t, err)
	assert.Equal(t, true, res["ok"])
	assert.Equal(t, 2, calls)
}

func TestZeroTimeoutLeavesTaskContextOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	task := func(ctx context.Context) (Result, error) {
		_, hasDeadline := ctx.Deadline()
		return Result{"deadline": hasDeadline}, ctx.Err()
	}

	for name, locker := range map[string]redisclient.Locker{
		"run lock":  redisclient.NewRunLocker(client, 0, 0),
		"slot lock": redisclient.NewRedisLocker(client, 0),
	} {
		t.Run(name, func(t *testing.T) {
			mr.FlushAll()
			s, err := New([]Job{{Name: "unbounded", Spec: "@daily", Task: task}},
				Options{Timeout: 0, Locker: locker, Clock: calendar.FixedClock(now), Logger: zerolog.Nop()})
			require.NoError(t, err)

			res, err := s.RunNow(context.Background(), "unbounded")
			require.NoError(t, err)
			assert.Equal(t, false, res["deadline"])
		})
	}
}

func TestNewRejectsBadSchedules(t *testing.T) {
	noop := func(context.Context) (Result, error) { return nil, nil }

	_, err := New([]Job{{Name: "x", Spec: "not a cron", Task: noop}}, Options{})
	assert.Error(t, err)

	_, err = New([]Job{{Name: "x", Spec: "@daily", Task: noop}, {Name: "x", Spec: "@hourly", Task: noop}}, Options{})
	assert.ErrorContains(t, err, "duplicate")
}

func TestStartStopReportsNextRun(t *testing.T) {
	f := newFixture(t, nil)
	f.sched.Start()

	for _, st := range f.sched.Status() {
		assert.NotNil(t, st.NextRun, st.Name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, f.sched.Stop(ctx))
}

func TestPublisherSink(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sub := client.Subscribe(context.Background(), "reminders:appointments")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(context.Background())
	require.NoError(t, err)

	sink := NewPublisherSink(redisclient.NewPublisher(client, "reminders:appointments"), zerolog.Nop())
	id := uuid.MustParse("7f1c6c2e-7a4b-4d7e-9f43-2b0c9a0e1d11")
	require.NoError(t, sink.Send(context.Background(), []Reminder{{AppointmentID: id, Date: "2025-01-11", Time: "11:30"}}))

	msg, err := sub.ReceiveMessage(context.Background())
	require.NoError(t, err)
	assert.Contains(t, msg.Payload, `"appointmentId":"7f1c6c2e-7a4b-4d7e-9f43-2b0c9a0e1d11"`)
	assert.Contains(t, msg.Payload, `"time":"11:30"`)
}
