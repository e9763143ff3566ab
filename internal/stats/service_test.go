package stats

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-appointments/internal/appointment"
	"github.com/hackgods/hospital-appointments/internal/calendar"
	"github.com/hackgods/hospital-appointments/internal/clinic"
)

const day = "2025-01-09"

type fixture struct {
	svc     *Service
	store   *MemoryStore
	ledger  *appointment.MemoryLedger
	clinic  *clinic.MemoryStore
	cardio  clinic.Department
	neuro   clinic.Department
	grey    clinic.Doctor
	shepard clinic.Doctor
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := calendar.FixedClock(time.Date(2025, 1, 10, 7, 0, 0, 0, time.UTC))

	cs := clinic.NewMemoryStore(clock)
	cardio := cs.PutDepartment(clinic.Department{Name: "Cardiology"})
	neuro := cs.PutDepartment(clinic.Department{Name: "Neurology"})
	grey := cs.PutDoctor(clinic.Doctor{Name: "Dr. Grey", Specialization: "Cardiologist", DepartmentID: cardio.ID})
	shepard := cs.PutDoctor(clinic.Doctor{Name: "Dr. Shepard", Specialization: "Neurosurgeon", DepartmentID: neuro.ID})

	ledger := appointment.NewMemoryLedger()
	store := NewMemoryStore()
	svc := NewService(store, NewBuilder(ledger, cs), clock, zerolog.Nop())

	return &fixture{svc: svc, store: store, ledger: ledger, clinic: cs, cardio: cardio, neuro: neuro, grey: grey, shepard: shepard}
}

func (f *fixture) book(t *testing.T, doc clinic.Doctor, date, tm string, status appointment.Status) {
	t.Helper()
	ctx := context.Background()
	dept := doc.DepartmentID
	a, err := f.ledger.Reserve(ctx, appointment.ReserveParams{
		DoctorID:     doc.ID,
		PatientID:    uuid.New(),
		DepartmentID: &dept,
		Date:         date,
		Time:         tm,
	})
	require.NoError(t, err)
	if status != appointment.StatusBooked {
		_, err = f.ledger.TransitionStatus(ctx, a.ID, status)
		require.NoError(t, err)
	}
}

func TestGenerateAggregatesDay(t *testing.T) {
	f := newFixture(t)
	f.book(t, f.grey, day, "09:00", appointment.StatusAttended)
	f.book(t, f.grey, day, "09:30", appointment.StatusMissed)
	f.book(t, f.shepard, day, "09:00", appointment.StatusBooked)
	f.book(t, f.shepard, day, "10:00", appointment.StatusAttended)
	f.book(t, f.grey, "2025-01-08", "09:00", appointment.StatusAttended)

	snap, err := f.svc.Generate(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, Counts{Total: 4, Attended: 2, Missed: 1, Booked: 1}, snap.Counts)
	require.Len(t, snap.Departments, 2)
	assert.Equal(t, "Cardiology", snap.Departments[0].DepartmentName)
	assert.Equal(t, Counts{Total: 2, Attended: 1, Missed: 1}, snap.Departments[0].Counts)
	assert.Equal(t, Counts{Total: 2, Attended: 1, Booked: 1}, snap.Departments[1].Counts)
	require.Len(t, snap.Doctors, 2)
	assert.Equal(t, "Dr. Shepard", snap.Doctors[1].DoctorName)
	assert.Equal(t, "Neurosurgeon", snap.Doctors[1].Specialization)

	direct, err := f.ledger.CountByStatus(context.Background(), appointment.Filter{Date: day})
	require.NoError(t, err)
	assert.Equal(t, direct.Total, snap.Total)
	assert.Equal(t, direct.Attended, snap.Attended)
	assert.Equal(t, direct.Missed, snap.Missed)
	assert.Equal(t, direct.Booked, snap.Booked)
}

func TestGenerateTwiceKeepsOneSnapshot(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.book(t, f.grey, day, "09:00", appointment.StatusAttended)

	first, err := f.svc.Generate(ctx, day)
	require.NoError(t, err)

	f.book(t, f.grey, day, "09:30", appointment.StatusMissed)
	_, err = f.svc.Generate(ctx, day)
	assert.ErrorIs(t, err, ErrSnapshotExists)

	n, err := f.store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	got, err := f.svc.Get(ctx, day)
	require.NoError(t, err)
	assert.Equal(t, first.Total, got.Total)
}

func TestGenerateEmptyDay(t *testing.T) {
	f := newFixture(t)

	snap, err := f.svc.GenerateYesterday(context.Background())
	require.NoError(t, err)
	assert.Equal(t, day, snap.Date)
	assert.Zero(t, snap.Total)
	assert.Empty(t, snap.Departments)
	assert.Empty(t, snap.Doctors)
}

func TestGenerateSkipsUnresolvedReferencesInBreakdown(t *testing.T) {
	f := newFixture(t)
	ghost := clinic.Doctor{ID: uuid.New(), DepartmentID: uuid.New()}
	f.book(t, ghost, day, "09:00", appointment.StatusAttended)
	f.book(t, f.grey, day, "09:00", appointment.StatusBooked)

	snap, err := f.svc.Generate(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, 2, snap.Total)
	require.Len(t, snap.Doctors, 1)
	assert.Equal(t, f.grey.ID, snap.Doctors[0].DoctorID)
	require.Len(t, snap.Departments, 1)
	assert.Equal(t, f.cardio.ID, snap.Departments[0].DepartmentID)
}

func TestGenerateRejectsBadDate(t *testing.T) {
	_, err := newFixture(t).svc.Generate(context.Background(), "2025-13-01")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestSummary(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, s := range []DailySnapshot{
		{Date: "2025-01-07", Counts: Counts{Total: 4, Attended: 3, Missed: 1}},
		{Date: "2025-01-08", Counts: Counts{Total: 2, Attended: 1, Missed: 0, Booked: 1}},
		{Date: "2024-12-01", Counts: Counts{Total: 10, Attended: 10}},
	} {
		_, err := f.store.Create(ctx, s)
		require.NoError(t, err)
	}

	sum, err := f.svc.Summary(ctx, "2025-01-01", "2025-01-31")
	require.NoError(t, err)
	assert.Equal(t, int64(2), sum.Days)
	assert.Equal(t, int64(6), sum.Total)
	assert.Equal(t, 3.0, sum.AvgDailyAppointments)
	assert.Equal(t, 66.67, sum.OverallAttendanceRate)
	assert.Equal(t, 16.67, sum.OverallMissedRate)

	empty, err := f.svc.Summary(ctx, "2026-01-01", "2026-01-31")
	require.NoError(t, err)
	assert.Zero(t, empty.OverallAttendanceRate)
	assert.Zero(t, empty.AvgDailyAppointments)

	_, err = f.svc.Summary(ctx, "2025-02-01", "2025-01-01")
	assert.ErrorIs(t, err, ErrInvalidRange)
}

func TestListNewestFirstAndPrune(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for _, d := range []string{"2023-06-01", "2024-12-30", "2025-01-08", "2025-01-09"} {
		_, err := f.store.Create(ctx, DailySnapshot{Date: d})
		require.NoError(t, err)
	}

	page, err := f.svc.List(ctx, "", "", 1, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(4), page.Total)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "2025-01-09", page.Items[0].Date)
	assert.Equal(t, "2025-01-08", page.Items[1].Date)

	cutoff, n, err := f.svc.Prune(ctx, 365*24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, "2024-01-11", cutoff)
	assert.Equal(t, int64(1), n)

	latest, err := f.svc.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2025-01-09", latest.Date)
}
