package simulation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"tracker-api/internal/domain"
	"tracker-api/internal/observability/logger"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStore keeps simulation state in Redis so it follows the viewer across
// API replicas. Simulations and pending navigations expire after ttl; the
// navigation preference does not expire.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, ttl: ttl, now: time.Now}
}

func rolesKey(viewerID string) string   { return fmt.Sprintf("simulation:%s:roles", viewerID) }
func pendingKey(viewerID string) string { return fmt.Sprintf("simulation:%s:pending", viewerID) }
func prefKey(viewerID string) string    { return fmt.Sprintf("simulation:%s:preference", viewerID) }

func (s *RedisStore) Start(ctx context.Context, viewerID, projectID string, role domain.RoleSummary, perms []domain.Permission) (*domain.SimulatedRole, error) {
	sim := domain.SimulatedRole{
		ProjectID:   projectID,
		Role:        role,
		Permissions: copyPermissions(perms),
		StartedAt:   s.now().UTC(),
	}
	payload, err := json.Marshal(sim)
	if err != nil {
		return nil, fmt.Errorf("encode simulation: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, rolesKey(viewerID), projectID, payload)
	pipe.Expire(ctx, rolesKey(viewerID), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("store simulation: %w", err)
	}
	return &sim, nil
}

func (s *RedisStore) Stop(ctx context.Context, viewerID, projectID string) error {
	if err := s.client.HDel(ctx, rolesKey(viewerID), projectID).Err(); err != nil {
		return fmt.Errorf("delete simulation: %w", err)
	}

	pending, err := s.PendingNavigation(ctx, viewerID)
	if err != nil {
		return err
	}
	if pending != nil && pending.ProjectID == projectID {
		return s.ClearPendingNavigation(ctx, viewerID)
	}
	return nil
}

func (s *RedisStore) StopAll(ctx context.Context, viewerID string) error {
	if err := s.client.Del(ctx, rolesKey(viewerID), pendingKey(viewerID)).Err(); err != nil {
		return fmt.Errorf("delete simulations: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, viewerID, projectID string) (*domain.SimulatedRole, error) {
	raw, err := s.client.HGet(ctx, rolesKey(viewerID), projectID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load simulation: %w", err)
	}

	var sim domain.SimulatedRole
	if err := json.Unmarshal(raw, &sim); err != nil {
		// A corrupt entry only affects rendering; drop it.
		logger.GetLogger(ctx).Warn(ctx, "discarding unreadable simulation state",
			logger.Module("simulation"),
			logger.Action("get"),
			zap.Error(err),
		)
		_ = s.client.HDel(ctx, rolesKey(viewerID), projectID).Err()
		return nil, nil
	}
	sim.Permissions = domain.ParsePermissions(ctx, sim.Permissions)
	return &sim, nil
}

func (s *RedisStore) IsSimulating(ctx context.Context, viewerID, projectID string) (bool, error) {
	ok, err := s.client.HExists(ctx, rolesKey(viewerID), projectID).Result()
	if err != nil {
		return false, fmt.Errorf("check simulation: %w", err)
	}
	return ok, nil
}

func (s *RedisStore) PendingNavigation(ctx context.Context, viewerID string) (*domain.PendingNavigation, error) {
	raw, err := s.client.Get(ctx, pendingKey(viewerID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load pending navigation: %w", err)
	}

	var pending domain.PendingNavigation
	if err := json.Unmarshal(raw, &pending); err != nil {
		_ = s.client.Del(ctx, pendingKey(viewerID)).Err()
		return nil, nil
	}
	return &pending, nil
}

func (s *RedisStore) SetPendingNavigation(ctx context.Context, viewerID string, pending domain.PendingNavigation) error {
	payload, err := json.Marshal(pending)
	if err != nil {
		return fmt.Errorf("encode pending navigation: %w", err)
	}
	if err := s.client.Set(ctx, pendingKey(viewerID), payload, s.ttl).Err(); err != nil {
		return fmt.Errorf("store pending navigation: %w", err)
	}
	return nil
}

func (s *RedisStore) ClearPendingNavigation(ctx context.Context, viewerID string) error {
	if err := s.client.Del(ctx, pendingKey(viewerID)).Err(); err != nil {
		return fmt.Errorf("clear pending navigation: %w", err)
	}
	return nil
}

func (s *RedisStore) Preference(ctx context.Context, viewerID string) (domain.NavigationPreference, error) {
	raw, err := s.client.Get(ctx, prefKey(viewerID)).Result()
	if errors.Is(err, redis.Nil) {
		return domain.NavigationConfirm, nil
	}
	if err != nil {
		return "", fmt.Errorf("load preference: %w", err)
	}

	pref := domain.NavigationPreference(raw)
	if !pref.IsValid() {
		return domain.NavigationConfirm, nil
	}
	return pref, nil
}

func (s *RedisStore) SetPreference(ctx context.Context, viewerID string, pref domain.NavigationPreference) error {
	if !pref.IsValid() {
		return ErrInvalidPreference
	}
	if err := s.client.Set(ctx, prefKey(viewerID), string(pref), 0).Err(); err != nil {
		return fmt.Errorf("store preference: %w", err)
	}
	return nil
}
