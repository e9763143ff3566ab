package appointment

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryLedger serializes every mutation behind one mutex, which makes
// Reserve's check-and-insert atomic.
type MemoryLedger struct {
	mu     sync.Mutex
	rows   map[uuid.UUID]Appointment
	events []EventLog
	now    func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		rows: make(map[uuid.UUID]Appointment),
		now:  time.Now,
	}
}

func (l *MemoryLedger) Reserve(_ context.Context, p ReserveParams) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, a := range l.rows {
		if a.DoctorID == p.DoctorID && a.Date == p.Date && a.Time == p.Time && a.Status.Open() {
			return nil, ErrSlotTaken
		}
	}

	a := Appointment{
		ID:           uuid.New(),
		DoctorID:     p.DoctorID,
		PatientID:    p.PatientID,
		DepartmentID: p.DepartmentID,
		Date:         p.Date,
		Time:         p.Time,
		Status:       StatusBooked,
		CreatedBy:    p.CreatedBy,
		CreatedAt:    l.now(),
	}
	l.rows[a.ID] = a
	return &a, nil
}

func (l *MemoryLedger) Get(_ context.Context, id uuid.UUID) (*Appointment, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	return &a, nil
}

func (l *MemoryLedger) TransitionStatus(_ context.Context, id uuid.UUID, status Status) (*Appointment, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	if status.Open() && !a.Status.Open() {
		// reopening must not create a second open appointment for the slot
		for _, other := range l.rows {
			if other.ID != id && other.DoctorID == a.DoctorID && other.Date == a.Date && other.Time == a.Time && other.Status.Open() {
				return nil, ErrSlotTaken
			}
		}
	}
	a.Status = status
	l.rows[id] = a
	return &a, nil
}

func (l *MemoryLedger) Cancel(_ context.Context, id, patientID uuid.UUID, today string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	a, ok := l.rows[id]
	if !ok || a.PatientID != patientID {
		return ErrAppointmentNotFound
	}
	if a.Status != StatusBooked || a.Date <= today {
		return ErrNotCancelable
	}
	delete(l.rows, id)
	return nil
}

func (l *MemoryLedger) Query(_ context.Context, f Filter) (Page, error) {
	page, limit := f.Paging()

	l.mu.Lock()
	matched := l.match(f)
	l.mu.Unlock()

	sort.Slice(matched, func(i, j int) bool { return listedBefore(&matched[i], &matched[j]) })

	total := int64(len(matched))
	start := (page - 1) * limit
	if start > len(matched) {
		start = len(matched)
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return newPage(matched[start:end], total, page, limit), nil
}

func (l *MemoryLedger) TakenTimes(_ context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, a := range l.rows {
		if a.DoctorID == doctorID && a.Date == date && a.Status.Open() {
			out = append(out, a.Time)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (l *MemoryLedger) MarkMissed(_ context.Context, date string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var n int64
	for id, a := range l.rows {
		if a.Date == date && a.Status == StatusBooked {
			a.Status = StatusMissed
			l.rows[id] = a
			n++
		}
	}
	return n, nil
}

func (l *MemoryLedger) CountByStatus(_ context.Context, f Filter) (StatusCounts, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var c StatusCounts
	for _, a := range l.match(f) {
		c.add(a.Status, 1)
	}
	return c, nil
}

func (l *MemoryLedger) InsertEvent(_ context.Context, ev EventLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	ev.ID = int64(len(l.events) + 1)
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = l.now()
	}
	l.events = append(l.events, ev)
	return nil
}

// Events returns a copy of the recorded event log.
func (l *MemoryLedger) Events() []EventLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]EventLog(nil), l.events...)
}

// match must be called with mu held.
func (l *MemoryLedger) match(f Filter) []Appointment {
	var out []Appointment
	for _, a := range l.rows {
		if matches(a, f) {
			out = append(out, a)
		}
	}
	return out
}

func matches(a Appointment, f Filter) bool {
	switch {
	case f.Status != "" && a.Status != f.Status:
		return false
	case f.Date != "" && a.Date != f.Date:
		return false
	case f.StartDate != "" && a.Date < f.StartDate:
		return false
	case f.EndDate != "" && a.Date > f.EndDate:
		return false
	case f.Time != "" && a.Time != f.Time:
		return false
	case f.TimePrefix != "" && !strings.HasPrefix(a.Time, f.TimePrefix):
		return false
	case f.DoctorID != nil && a.DoctorID != *f.DoctorID:
		return false
	case f.PatientID != nil && a.PatientID != *f.PatientID:
		return false
	case f.DepartmentID != nil && (a.DepartmentID == nil || *a.DepartmentID != *f.DepartmentID):
		return false
	}
	return true
}

// listedBefore is the listing order shared with PgLedger: newest date first,
// then time, then creation, then id so pages never overlap.
func listedBefore(a, b *Appointment) bool {
	if a.Date != b.Date {
		return a.Date > b.Date
	}
	if a.Time != b.Time {
		return a.Time < b.Time
	}
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.String() < b.ID.String()
}
