package clinic

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingStore counts GetDoctor calls that reach the backing store.
type countingStore struct {
	*MemoryStore
	doctorReads int
}

func (s *countingStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	s.doctorReads++
	return s.MemoryStore.GetDoctor(ctx, id)
}

func TestCachedStoreReadThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := &countingStore{MemoryStore: NewMemoryStore(nil)}
	doc := inner.PutDoctor(Doctor{
		Name:          "Dr. Who",
		AvailableDays: []string{"Monday"},
		TimeSlots:     []TimeSlot{{"09:00", "09:30"}},
	})

	s := NewCachedStore(inner, client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	first, err := s.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)
	second, err := s.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)

	assert.Equal(t, 1, inner.doctorReads)
	assert.Equal(t, first.TimeSlots, second.TimeSlots)
	assert.True(t, mr.Exists(doctorCacheKey(doc.ID)))

	require.NoError(t, s.InvalidateDoctor(ctx, doc.ID))
	_, err = s.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.doctorReads)
}

func TestCachedStoreDoesNotCacheMisses(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	s := NewCachedStore(NewMemoryStore(nil), client, time.Minute, zerolog.Nop())
	id := uuid.New()

	_, err := s.GetDoctor(context.Background(), id)
	assert.ErrorIs(t, err, ErrDoctorNotFound)
	assert.False(t, mr.Exists(doctorCacheKey(id)))
}

func TestCachedStoreFallsBackWhenRedisDown(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := NewMemoryStore(nil)
	dep := inner.PutDepartment(Department{Name: "Cardiology"})
	s := NewCachedStore(inner, client, time.Minute, zerolog.Nop())
	mr.Close()

	got, err := s.GetDepartment(context.Background(), dep.ID)
	require.NoError(t, err)
	assert.Equal(t, "Cardiology", got.Name)
}

func TestCachedStoreGetDoctorFresh(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	inner := NewMemoryStore(nil)
	doc := inner.PutDoctor(Doctor{Name: "Dr. Who", AvailableDays: []string{"Monday"}})
	s := NewCachedStore(inner, client, time.Minute, zerolog.Nop())
	ctx := context.Background()

	_, err := s.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)

	doc.Status = DoctorInactive
	inner.PutDoctor(doc)

	stale, err := s.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)
	assert.True(t, stale.IsActive())

	fresh, err := GetDoctorFresh(ctx, s, doc.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive())

	cached, err := s.GetDoctor(ctx, doc.ID)
	require.NoError(t, err)
	assert.False(t, cached.IsActive())

	_, err = GetDoctorFresh(ctx, s, uuid.New())
	assert.ErrorIs(t, err, ErrDoctorNotFound)
}

func TestGetDoctorFreshWithoutCache(t *testing.T) {
	inner := NewMemoryStore(nil)
	doc := inner.PutDoctor(Doctor{Name: "Dr. No"})

	got, err := GetDoctorFresh(context.Background(), inner, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, doc.ID, got.ID)
}
