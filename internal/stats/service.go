package stats

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/hospital-appointments/internal/calendar"
)

type Service struct {
	store   Store
	builder *Builder
	clock   calendar.Clock
	log     zerolog.Logger
}

func NewService(store Store, builder *Builder, clock calendar.Clock, log zerolog.Logger) *Service {
	if clock == nil {
		clock = calendar.SystemClock{}
	}
	return &Service{store: store, builder: builder, clock: clock, log: log}
}

// Generate builds and stores the snapshot for date. A second call for the
// same date fails with ErrSnapshotExists and leaves the first one intact.
func (s *Service) Generate(ctx context.Context, date string) (*DailySnapshot, error) {
	if !calendar.ValidDate(date) {
		return nil, ErrInvalidRange
	}

	if _, err := s.store.GetByDate(ctx, date); err == nil {
		return nil, ErrSnapshotExists
	} else if !errors.Is(err, ErrSnapshotNotFound) {
		return nil, fmt.Errorf("check snapshot %s: %w", date, err)
	}

	snap, err := s.builder.Build(ctx, date)
	if err != nil {
		return nil, err
	}

	created, err := s.store.Create(ctx, snap)
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Str("date", date).
		Int("total", created.Total).
		Int("attended", created.Attended).
		Int("missed", created.Missed).
		Int("booked", created.Booked).
		Msg("daily stats generated")
	return created, nil
}

// GenerateYesterday is what the nightly job runs.
func (s *Service) GenerateYesterday(ctx context.Context) (*DailySnapshot, error) {
	return s.Generate(ctx, calendar.Yesterday(s.clock))
}

func (s *Service) Get(ctx context.Context, date string) (*DailySnapshot, error) {
	if !calendar.ValidDate(date) {
		return nil, ErrInvalidRange
	}
	return s.store.GetByDate(ctx, date)
}

func (s *Service) Latest(ctx context.Context) (*DailySnapshot, error) {
	return s.store.Latest(ctx)
}

func (s *Service) List(ctx context.Context, start, end string, page, limit int) (SnapshotPage, error) {
	if err := validRange(start, end); err != nil {
		return SnapshotPage{}, err
	}
	return s.store.ListByDateRange(ctx, start, end, page, limit)
}

func (s *Service) Summary(ctx context.Context, start, end string) (Summary, error) {
	if err := validRange(start, end); err != nil {
		return Summary{}, err
	}

	t, err := s.store.Totals(ctx, start, end)
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{Totals: t}
	if t.Days > 0 {
		sum.AvgDailyAppointments = round2(float64(t.Total) / float64(t.Days))
	}
	if t.Total > 0 {
		sum.OverallAttendanceRate = round2(float64(t.Attended) / float64(t.Total) * 100)
		sum.OverallMissedRate = round2(float64(t.Missed) / float64(t.Total) * 100)
	}
	return sum, nil
}

// Prune deletes snapshots dated more than retention before now and
// returns the cutoff date it used.
func (s *Service) Prune(ctx context.Context, retention time.Duration) (string, int64, error) {
	cutoff := s.clock.Now().Add(-retention).Format(calendar.DateLayout)
	n, err := s.store.DeleteBefore(ctx, cutoff)
	if err != nil {
		return cutoff, 0, err
	}
	return cutoff, n, nil
}

func validRange(start, end string) error {
	if start != "" && !calendar.ValidDate(start) {
		return ErrInvalidRange
	}
	if end != "" && !calendar.ValidDate(end) {
		return ErrInvalidRange
	}
	if start != "" && end != "" && start > end {
		return ErrInvalidRange
	}
	return nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
