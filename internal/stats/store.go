package stats

import (
	"context"

	"github.com/hackgods/hospital-appointments/internal/apperrors"
)

var (
	ErrSnapshotNotFound = apperrors.New(apperrors.KindNotFound, "snapshot_not_found", "no statistics for this date")
	ErrSnapshotExists   = apperrors.New(apperrors.KindConflict, "snapshot_exists", "statistics for this date already exist")
	ErrInvalidRange     = apperrors.New(apperrors.KindInvalidInput, "invalid_range", "start and end must be YYYY-MM-DD with start <= end")
)

// Store persists snapshots. Empty start or end leaves that side of a range
// open.
type Store interface {
	GetByDate(ctx context.Context, date string) (*DailySnapshot, error)
	// ListByDateRange returns newest first.
	ListByDateRange(ctx context.Context, start, end string, page, limit int) (SnapshotPage, error)
	// Create fails with ErrSnapshotExists when date already has one.
	Create(ctx context.Context, s DailySnapshot) (*DailySnapshot, error)
	// DeleteBefore removes snapshots with date < cutoff.
	DeleteBefore(ctx context.Context, cutoff string) (int64, error)
	Latest(ctx context.Context) (*DailySnapshot, error)
	Count(ctx context.Context) (int64, error)
	Totals(ctx context.Context, start, end string) (Totals, error)
}
