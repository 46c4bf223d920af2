// Package cache provides an optional read-through cache for the active
// promotion set. The service runs without Redis when unconfigured.
package cache

import (
	"context"
	"encoding/json"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/theerakarnm/ekoe-promotion-service/internal/domain/promotion"
)

const activeKey = "ekoe:promotions:active"

// Store caches the active promotion set.
type Store interface {
	GetActive(ctx context.Context) ([]promotion.Promotion, bool, error)
	SetActive(ctx context.Context, promos []promotion.Promotion, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

// NoopStore disables caching.
type NoopStore struct{}

func (NoopStore) GetActive(context.Context) ([]promotion.Promotion, bool, error) {
	return nil, false, nil
}

func (NoopStore) SetActive(context.Context, []promotion.Promotion, time.Duration) error {
	return nil
}

func (NoopStore) Invalidate(context.Context) error { return nil }

// RedisStore caches the active promotion set in Redis as a JSON blob.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects a RedisStore to the given address.
func NewRedisStore(addr, password string, db int) *RedisStore {
	return &RedisStore{client: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) GetActive(ctx context.Context) ([]promotion.Promotion, bool, error) {
	val, err := s.client.Get(ctx, activeKey).Result()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var promos []promotion.Promotion
	if err := json.Unmarshal([]byte(val), &promos); err != nil {
		return nil, false, err
	}
	return promos, true, nil
}

func (s *RedisStore) SetActive(ctx context.Context, promos []promotion.Promotion, ttl time.Duration) error {
	data, err := json.Marshal(promos)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, activeKey, data, ttl).Err()
}

func (s *RedisStore) Invalidate(ctx context.Context) error {
	return s.client.Del(ctx, activeKey).Err()
}

// Repository decorates promotion.Repository with a read-through cache on
// ListActive. Lookups that must stay fresh (codes, usage counters) always
// pass through.
type Repository struct {
	inner promotion.Repository
	store Store
	ttl   time.Duration
}

var _ promotion.Repository = (*Repository)(nil)

// NewRepository wraps inner with the given cache store.
func NewRepository(inner promotion.Repository, store Store, ttl time.Duration) *Repository {
	return &Repository{inner: inner, store: store, ttl: ttl}
}

// ListActive serves from cache when possible. Cached entries are re-screened
// against now so a stale blob never widens a promotion's window.
func (r *Repository) ListActive(ctx context.Context, now time.Time) ([]promotion.Promotion, error) {
	if cached, ok, err := r.store.GetActive(ctx); err == nil && ok {
		fresh := make([]promotion.Promotion, 0, len(cached))
		for _, p := range cached {
			if p.ActiveAt(now) {
				fresh = append(fresh, p)
			}
		}
		return fresh, nil
	}

	promos, err := r.inner.ListActive(ctx, now)
	if err != nil {
		return nil, err
	}
	_ = r.store.SetActive(ctx, promos, r.ttl)
	return promos, nil
}

func (r *Repository) Get(ctx context.Context, id string) (*promotion.Promotion, error) {
	return r.inner.Get(ctx, id)
}

func (r *Repository) FindByCode(ctx context.Context, code string) (*promotion.Promotion, error) {
	return r.inner.FindByCode(ctx, code)
}

func (r *Repository) UsageByCustomer(ctx context.Context, customerID string, promotionIDs []string) (map[string]int, error) {
	return r.inner.UsageByCustomer(ctx, customerID, promotionIDs)
}
