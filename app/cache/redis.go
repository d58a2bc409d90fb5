package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/lysyi3m/listing-comb/app/feed"
)

const (
	DefaultKeyPrefix = "listing-comb"
	DefaultTTL       = 30 * time.Minute
)

// Store keeps feed snapshots and rendered section RSS in Redis so several
// instances can serve the same build.
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

func NewStore(ctx context.Context, addr string, ttl time.Duration) (*Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	slog.Info("Connected to Redis", "addr", addr)

	return NewStoreWithClient(client, DefaultKeyPrefix, ttl), nil
}

func NewStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Load returns the stored snapshot, or nil when there is none. A payload that
// cannot be decoded is deleted and treated as a miss.
func (s *Store) Load(ctx context.Context) (*feed.Snapshot, error) {
	key := s.SnapshotKey()

	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	snapshot, err := decodeSnapshot(data)
	if err != nil {
		slog.Warn("Dropping unreadable feed snapshot", "key", key, "error", err)
		if delErr := s.client.Del(ctx, key).Err(); delErr != nil {
			slog.Warn("Failed to delete feed snapshot", "key", key, "error", delErr)
		}
		return nil, nil
	}

	return snapshot, nil
}

func (s *Store) Save(ctx context.Context, snapshot *feed.Snapshot) error {
	key := s.SnapshotKey()

	data, err := encodeSnapshot(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal value for key %s: %w", key, err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}

	return nil
}

// GetSectionRSS returns rendered RSS for a section of the build at builtAt.
func (s *Store) GetSectionRSS(ctx context.Context, slug string, builtAt time.Time) (string, bool, error) {
	key := s.SectionKey(slug, builtAt)

	val, err := s.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return val, true, nil
}

func (s *Store) SetSectionRSS(ctx context.Context, slug string, builtAt time.Time, rss string) error {
	key := s.SectionKey(slug, builtAt)
	if err := s.client.Set(ctx, key, rss, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *Store) SnapshotKey() string {
	return fmt.Sprintf("%s:feed:snapshot", s.prefix)
}

// SectionKey changes with every build, so stale RSS simply expires.
func (s *Store) SectionKey(slug string, builtAt time.Time) string {
	hash := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", slug, builtAt.UnixNano())))
	return fmt.Sprintf("%s:rss:%s:%x", s.prefix, slug, hash[:8])
}

func (s *Store) Health(ctx context.Context) map[string]any {
	health := map[string]any{
		"status": "healthy",
		"type":   "redis",
	}

	if err := s.client.Ping(ctx).Err(); err != nil {
		health["status"] = "unhealthy"
		health["error"] = err.Error()
		return health
	}

	if ttl, err := s.client.TTL(ctx, s.SnapshotKey()).Result(); err == nil && ttl > 0 {
		health["snapshot_ttl"] = ttl.String()
	}

	return health
}

func (s *Store) Close() error {
	return s.client.Close()
}

func encodeSnapshot(snapshot *feed.Snapshot) ([]byte, error) {
	if snapshot == nil {
		return nil, errors.New("snapshot is nil")
	}
	return json.Marshal(snapshot)
}

func decodeSnapshot(data []byte) (*feed.Snapshot, error) {
	var snapshot feed.Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return nil, err
	}
	if snapshot.BuiltAt.IsZero() {
		return nil, errors.New("snapshot has no build time")
	}
	return &snapshot, nil
}
