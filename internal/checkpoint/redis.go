package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/true85/radio/internal/timeshift"
)

// RedisStore persists harvester configuration and dedup checkpoints in
// Redis, one key group per station.
type RedisStore struct {
	rdb *redis.Client
	log *slog.Logger
}

var _ timeshift.CheckpointStore = (*RedisStore)(nil)

// NewRedisStore creates a Redis client and verifies connectivity.
func NewRedisStore(ctx context.Context, addr, password string, db int, log *slog.Logger) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	if log != nil {
		log.Info("redis checkpoint store connected", slog.String("addr", addr))
	}
	return &RedisStore{rdb: rdb, log: log}, nil
}

func stationKey(station timeshift.StationID, field string) string {
	return "station:" + string(station) + ":" + field
}

// SaveConfig implements timeshift.CheckpointStore.SaveConfig.
func (s *RedisStore) SaveConfig(ctx context.Context, station timeshift.StationID, cfg timeshift.StationConfig) error {
	return s.rdb.HSet(ctx, stationKey(station, "config"),
		"url", cfg.DiscoveryURL,
		"prefix", cfg.Prefix,
		"interval_ms", cfg.Interval.Milliseconds(),
	).Err()
}

// LoadConfig implements timeshift.CheckpointStore.LoadConfig.
func (s *RedisStore) LoadConfig(ctx context.Context, station timeshift.StationID) (timeshift.StationConfig, bool, error) {
	m, err := s.rdb.HGetAll(ctx, stationKey(station, "config")).Result()
	if err != nil {
		return timeshift.StationConfig{}, false, err
	}
	if len(m) == 0 {
		return timeshift.StationConfig{}, false, nil
	}
	intervalMS, _ := strconv.ParseInt(m["interval_ms"], 10, 64)
	return timeshift.StationConfig{
		DiscoveryURL: m["url"],
		Prefix:       m["prefix"],
		Interval:     time.Duration(intervalMS) * time.Millisecond,
	}, true, nil
}

// SetActive implements timeshift.CheckpointStore.SetActive.
func (s *RedisStore) SetActive(ctx context.Context, station timeshift.StationID, active bool) error {
	v := "0"
	if active {
		v = "1"
	}
	return s.rdb.Set(ctx, stationKey(station, "active"), v, 0).Err()
}

// Active implements timeshift.CheckpointStore.Active.
func (s *RedisStore) Active(ctx context.Context, station timeshift.StationID) (bool, error) {
	v, err := s.rdb.Get(ctx, stationKey(station, "active")).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return v == "1", nil
}

// SaveSeen implements timeshift.CheckpointStore.SaveSeen. The list is
// replaced atomically so a crash never leaves a half-written snapshot.
func (s *RedisStore) SaveSeen(ctx context.Context, station timeshift.StationID, ids []string) error {
	key := stationKey(station, "seen")
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(ids) > 0 {
			args := make([]interface{}, len(ids))
			for i, id := range ids {
				args[i] = id
			}
			pipe.RPush(ctx, key, args...)
		}
		return nil
	})
	return err
}

// LoadSeen implements timeshift.CheckpointStore.LoadSeen.
func (s *RedisStore) LoadSeen(ctx context.Context, station timeshift.StationID) ([]string, error) {
	return s.rdb.LRange(ctx, stationKey(station, "seen"), 0, -1).Result()
}

// SaveLastCheckpoint implements timeshift.CheckpointStore.SaveLastCheckpoint.
func (s *RedisStore) SaveLastCheckpoint(ctx context.Context, station timeshift.StationID, t time.Time) error {
	return s.rdb.Set(ctx, stationKey(station, "last_checkpoint"), t.UnixMilli(), 0).Err()
}

// LastCheckpoint implements timeshift.CheckpointStore.LastCheckpoint.
func (s *RedisStore) LastCheckpoint(ctx context.Context, station timeshift.StationID) (time.Time, error) {
	v, err := s.rdb.Get(ctx, stationKey(station, "last_checkpoint")).Result()
	if errors.Is(err, redis.Nil) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}
