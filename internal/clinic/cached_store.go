package clinic

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// CachedStore serves doctors and departments from Redis, falling back to
// the wrapped Store on a miss. Patients are never cached.
type CachedStore struct {
	Store
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

func NewCachedStore(inner Store, client *redis.Client, ttl time.Duration, log zerolog.Logger) *CachedStore {
	return &CachedStore{Store: inner, client: client, ttl: ttl, log: log}
}

func doctorCacheKey(id uuid.UUID) string {
	return "cache:doctor:" + id.String()
}

func departmentCacheKey(id uuid.UUID) string {
	return "cache:department:" + id.String()
}

func (s *CachedStore) GetDoctor(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	var d Doctor
	if s.get(ctx, doctorCacheKey(id), &d) {
		return &d, nil
	}

	doc, err := s.Store.GetDoctor(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, doctorCacheKey(id), doc)
	return doc, nil
}

func (s *CachedStore) GetDepartment(ctx context.Context, id uuid.UUID) (*Department, error) {
	var d Department
	if s.get(ctx, departmentCacheKey(id), &d) {
		return &d, nil
	}

	dep, err := s.Store.GetDepartment(ctx, id)
	if err != nil {
		return nil, err
	}
	s.set(ctx, departmentCacheKey(id), dep)
	return dep, nil
}

// GetDoctorFresh reads the doctor from the wrapped store and replaces the
// cached copy, dropping it when the doctor no longer exists.
func (s *CachedStore) GetDoctorFresh(ctx context.Context, id uuid.UUID) (*Doctor, error) {
	doc, err := s.Store.GetDoctor(ctx, id)
	if errors.Is(err, ErrDoctorNotFound) {
		if delErr := s.InvalidateDoctor(ctx, id); delErr != nil {
			s.log.Warn().Err(delErr).Msg("cache invalidation failed")
		}
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	s.set(ctx, doctorCacheKey(id), doc)
	return doc, nil
}

// InvalidateDoctor drops a cached doctor.
func (s *CachedStore) InvalidateDoctor(ctx context.Context, id uuid.UUID) error {
	if err := s.client.Del(ctx, doctorCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate doctor %s: %w", id, err)
	}
	return nil
}

// get reports a hit. Redis failures are logged and treated as a miss.
func (s *CachedStore) get(ctx context.Context, key string, dst any) bool {
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.Warn().Err(err).Str("key", key).Msg("cache read failed")
		}
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache entry undecodable")
		return false
	}
	return true
}

func (s *CachedStore) set(ctx context.Context, key string, v any) {
	raw, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := s.client.Set(ctx, key, raw, s.ttl).Err(); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("cache write failed")
	}
}
