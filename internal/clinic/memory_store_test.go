package clinic

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hackgods/hospital-appointments/internal/calendar"
)

func fixedClock() calendar.Clock {
	return calendar.FixedClock(time.Date(2025, 1, 13, 10, 0, 0, 0, time.UTC))
}

func TestMemoryStoreCreatePatientAssignsSequentialIDs(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedClock())

	p1, err := s.CreatePatient(ctx, validProfile())
	require.NoError(t, err)
	prof := validProfile()
	prof.Email, prof.Contact = "grace@example.com", "555-0100"
	p2, err := s.CreatePatient(ctx, prof)
	require.NoError(t, err)

	assert.Equal(t, "PAT-2025-000001", p1.PatientID)
	assert.Equal(t, "PAT-2025-000002", p2.PatientID)

	got, err := s.FindPatientByHumanID(ctx, "PAT-2025-000002")
	require.NoError(t, err)
	assert.Equal(t, p2.ID, got.ID)

	got, err = s.GetPatient(ctx, p1.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", got.Name)
}

func TestMemoryStoreConcurrentPatientIDsAreUnique(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedClock())

	const n = 50
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p, err := s.CreatePatient(ctx, validProfile())
			if err == nil {
				ids <- p.PatientID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
}

func TestMemoryStoreFindByContactOrEmail(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedClock())
	p, err := s.CreatePatient(ctx, validProfile())
	require.NoError(t, err)

	got, err := s.FindPatientByContactOrEmail(ctx, "ada@example.com", "other")
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	got, err = s.FindPatientByContactOrEmail(ctx, "other@example.com", p.Contact)
	require.NoError(t, err)
	assert.Equal(t, p.ID, got.ID)

	_, err = s.FindPatientByContactOrEmail(ctx, "nobody@example.com", "000")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestMemoryStoreNotFound(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(nil)

	_, err := s.GetDoctor(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	_, err = s.GetDepartment(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrDepartmentNotFound)
	_, err = s.GetPatient(ctx, uuid.New())
	assert.ErrorIs(t, err, ErrPatientNotFound)
	_, err = s.FindPatientByHumanID(ctx, "PAT-2025-000001")
	assert.ErrorIs(t, err, ErrPatientNotFound)
}

func TestMemoryStoreRejectsInvalidProfile(t *testing.T) {
	s := NewMemoryStore(nil)
	_, err := s.CreatePatient(context.Background(), Profile{Name: "x"})
	assert.ErrorIs(t, err, ErrInvalidPatientProfile)
}

func TestMemoryStoreCountPatientsCreatedBefore(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore(fixedClock())
	_, err := s.CreatePatient(ctx, validProfile())
	require.NoError(t, err)

	n, err := s.CountPatientsCreatedBefore(ctx, time.Date(2025, 2, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	n, err = s.CountPatientsCreatedBefore(ctx, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryStorePutDoctorDefaults(t *testing.T) {
	s := NewMemoryStore(nil)
	d := s.PutDoctor(Doctor{Name: "Dr. House"})
	assert.NotEqual(t, uuid.Nil, d.ID)
	assert.Equal(t, DoctorActive, d.Status)

	got, err := s.GetDoctor(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Dr. House", got.Name)
}
