package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointments/internal/calendar"
	redisclient "github.com/hackgods/hospital-appointments/internal/redis"
)

type Options struct {
	Location *time.Location
	// Timeout bounds a single run; zero means no limit.
	Timeout time.Duration
	// Locker claims each run period across replicas; nil runs unguarded.
	// With a run-once locker a period that already succeeded is skipped.
	Locker redisclient.Locker
	Clock  calendar.Clock
	Logger zerolog.Logger
}

type entry struct {
	job     Job
	cronID  cron.EntryID
	running bool
	status  JobStatus
}

type Service struct {
	cron   *cron.Cron
	opts   Options
	log    zerolog.Logger
	mu     sync.Mutex
	jobs   map[string]*entry
	order  []string
	parent context.Context
	cancel context.CancelFunc
}

// New registers jobs without starting the timers. Duplicate names and
// unparsable specs are rejected.
func New(jobs []Job, opts Options) (*Service, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Clock == nil {
		opts.Clock = calendar.SystemClock{Location: opts.Location}
	}
	if opts.Locker == nil {
		opts.Locker = redisclient.NopLocker{}
	}

	log := opts.Logger.With().Str("component", "scheduler").Logger()
	parent, cancel := context.WithCancel(context.Background())

	s := &Service{
		cron:   cron.New(cron.WithLocation(opts.Location), cron.WithLogger(cronLogger{log: log})),
		opts:   opts,
		log:    log,
		jobs:   make(map[string]*entry),
		parent: parent,
		cancel: cancel,
	}

	for _, j := range jobs {
		if _, dup := s.jobs[j.Name]; dup {
			cancel()
			return nil, fmt.Errorf("duplicate job %q", j.Name)
		}
		e := &entry{job: j, status: JobStatus{Name: j.Name, Schedule: j.Spec}}
		name := j.Name
		id, err := s.cron.AddFunc(j.Spec, func() { s.trigger(name) })
		if err != nil {
			cancel()
			return nil, fmt.Errorf("job %q: invalid schedule %q: %w", j.Name, j.Spec, err)
		}
		e.cronID = id
		s.jobs[j.Name] = e
		s.order = append(s.order, j.Name)
	}
	return s, nil
}

func (s *Service) Start() {
	s.cron.Start()
	s.log.Info().Int("jobs", len(s.order)).Str("location", s.opts.Location.String()).Msg("scheduler started")
}

// Stop halts the timers, cancels in-flight runs and waits for them until
// ctx expires.
func (s *Service) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		s.log.Info().Msg("scheduler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) Status() []JobStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]JobStatus, 0, len(s.order))
	for _, name := range s.order {
		e := s.jobs[name]
		st := e.status
		st.Running = e.running
		if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
			st.NextRun = &next
		}
		out = append(out, st)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// RunNow runs a job synchronously, outside its schedule.
func (s *Service) RunNow(ctx context.Context, name string) (Result, error) {
	e, err := s.claim(name)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, e)
}

func (s *Service) trigger(name string) {
	e, err := s.claim(name)
	if err != nil {
		s.log.Warn().Str("job", name).Err(err).Msg("scheduled run skipped")
		return
	}
	_, _ = s.run(s.parent, e)
}

func (s *Service) claim(name string) (*entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.jobs[name]
	if !ok {
		return nil, ErrUnknownJob
	}
	if e.running {
		return nil, ErrJobRunning
	}
	e.running = true
	return e, nil
}

func (s *Service) run(ctx context.Context, e *entry) (res Result, err error) {
	name := e.job.Name
	started := s.opts.Clock.Now()
	begin := time.Now()
	period := DailyRun(started)
	if e.job.RunKey != nil {
		period = e.job.RunKey(started)
	}

	if s.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", name, r)
			s.log.Error().Str("job", name).Str("stack", string(debug.Stack())).Msg("job panic recovered")
		}
		s.finish(e, started, time.Since(begin), res, err)
	}()

	err = s.opts.Locker.WithLock(ctx, redisclient.JobKey(name, period), func(ctx context.Context) error {
		var taskErr error
		res, taskErr = e.job.Task(ctx)
		return taskErr
	})
	if errors.Is(err, redisclient.ErrLockNotAcquired) {
		res, err = Result{"skipped": "run already claimed", "period": period}, nil
	}
	return res, err
}

func (s *Service) finish(e *entry, started time.Time, elapsed time.Duration, res Result, err error) {
	s.mu.Lock()
	e.running = false
	e.status.Runs++
	e.status.LastRun = &started
	e.status.LastDuration = elapsed
	e.status.LastResult = res
	e.status.LastError = ""
	if err != nil {
		e.status.LastError = err.Error()
	}
	s.mu.Unlock()

	ev := s.log.Info()
	if err != nil {
		ev = s.log.Error().Err(err)
	}
	ev.Str("job", e.job.Name).
		Str("date", started.Format(calendar.DateLayout)).
		Fields(map[string]any(res)).
		Dur("duration", elapsed).
		Msg("job finished")
}

// cronLogger routes robfig/cron's own messages into zerolog.
type cronLogger struct {
	log zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
