package stats

import (
	"context"
	"sort"
	"sync"
	"time"
)

type MemoryStore struct {
	mu    sync.RWMutex
	byDay map[string]DailySnapshot
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byDay: make(map[string]DailySnapshot)}
}

func (s *MemoryStore) GetByDate(_ context.Context, date string) (*DailySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.byDay[date]
	if !ok {
		return nil, ErrSnapshotNotFound
	}
	return &snap, nil
}

// inRange must be called with mu held; it returns newest first.
func (s *MemoryStore) inRange(start, end string) []DailySnapshot {
	var out []DailySnapshot
	for d, snap := range s.byDay {
		if (start == "" || d >= start) && (end == "" || d <= end) {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date > out[j].Date })
	return out
}

func (s *MemoryStore) ListByDateRange(_ context.Context, start, end string, page, limit int) (SnapshotPage, error) {
	page, limit = paging(page, limit)

	s.mu.RLock()
	all := s.inRange(start, end)
	s.mu.RUnlock()

	from := (page - 1) * limit
	if from > len(all) {
		from = len(all)
	}
	to := from + limit
	if to > len(all) {
		to = len(all)
	}
	return newSnapshotPage(all[from:to], int64(len(all)), page, limit), nil
}

func (s *MemoryStore) Create(_ context.Context, snap DailySnapshot) (*DailySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byDay[snap.Date]; ok {
		return nil, ErrSnapshotExists
	}
	if snap.CreatedAt.IsZero() {
		snap.CreatedAt = time.Now().UTC()
	}
	s.byDay[snap.Date] = snap
	return &snap, nil
}

func (s *MemoryStore) DeleteBefore(_ context.Context, cutoff string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for d := range s.byDay {
		if d < cutoff {
			delete(s.byDay, d)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Latest(_ context.Context) (*DailySnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := s.inRange("", "")
	if len(all) == 0 {
		return nil, ErrSnapshotNotFound
	}
	return &all[0], nil
}

func (s *MemoryStore) Count(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byDay)), nil
}

func (s *MemoryStore) Totals(_ context.Context, start, end string) (Totals, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var t Totals
	for _, snap := range s.inRange(start, end) {
		t.Days++
		t.Total += int64(snap.Total)
		t.Attended += int64(snap.Attended)
		t.Missed += int64(snap.Missed)
		t.Booked += int64(snap.Booked)
	}
	return t, nil
}
