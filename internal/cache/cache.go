package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"mail-chain-analyzer/internal/config"
	"mail-chain-analyzer/internal/models"
)

var errMiss = errors.New("cache miss")

// Source loads a record from durable storage
type Source interface {
	FindByID(ctx context.Context, id uint) (*models.Email, error)
}

// Store is the key/value surface the cache needs
type Store interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
}

// RecordCache is a read-through cache for single records. Records are never
// modified after ingestion so entries only expire.
type RecordCache struct {
	source Source
	store  Store
	ttl    time.Duration
}

func NewRecordCache(source Source, store Store, ttl time.Duration) *RecordCache {
	return &RecordCache{source: source, store: store, ttl: ttl}
}

// FindByID returns the cached record or loads and caches it. Errors from the
// cache itself are logged and never fail the lookup.
func (c *RecordCache) FindByID(ctx context.Context, id uint) (*models.Email, error) {
	key := recordKey(id)

	raw, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		var email models.Email
		if err := json.Unmarshal([]byte(raw), &email); err == nil {
			return &email, nil
		}
		logrus.WithField("key", key).Warn("Discarding undecodable cache entry")
	case !errors.Is(err, errMiss):
		logrus.WithError(err).WithField("key", key).Warn("Record cache read failed")
	}

	email, err := c.source.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(email)
	if err != nil {
		return email, nil
	}
	if err := c.store.Set(ctx, key, string(data), c.ttl); err != nil {
		logrus.WithError(err).WithField("key", key).Warn("Record cache write failed")
	}
	return email, nil
}

func recordKey(id uint) string {
	return fmt.Sprintf("mail-chain-analyzer:email:%d", id)
}

// RedisStore adapts a go-redis client to Store
type RedisStore struct {
	rdb *goredis.Client
}

// NewRedisStore connects to redis and verifies the connection
func NewRedisStore(cfg config.RedisConfig) (*RedisStore, error) {
	rdb := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logrus.WithFields(logrus.Fields{"addr": cfg.Addr, "db": cfg.DB}).Info("Connected to Redis")
	return &RedisStore{rdb: rdb}, nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (string, error) {
	val, err := s.rdb.Get(ctx, key).Result()
	if errors.Is(err, goredis.Nil) {
		return "", errMiss
	}
	return val, err
}

func (s *RedisStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return s.rdb.Set(ctx, key, value, ttl).Err()
}

// Ping checks the redis connection
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func (s *RedisStore) Close() error {
	return s.rdb.Close()
}
