package alerting

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/gudangguard/sentinel/internal/logger"
)

// HashStore is the hash subset of Redis used for alert state, so tests can
// substitute an in-memory fake.
type HashStore interface {
	HSet(ctx context.Context, key, field, value string) error
	HGetAll(ctx context.Context, key string) (map[string]string, error)
}

// RedisHashStore implements HashStore with go-redis.
type RedisHashStore struct {
	client *redis.Client
}

// NewRedisHashStore wraps a go-redis client.
func NewRedisHashStore(client *redis.Client) *RedisHashStore {
	return &RedisHashStore{client: client}
}

func (r *RedisHashStore) HSet(ctx context.Context, key, field, value string) error {
	return r.client.HSet(ctx, key, field, value).Err()
}

func (r *RedisHashStore) HGetAll(ctx context.Context, key string) (map[string]string, error) {
	return r.client.HGetAll(ctx, key).Result()
}

// RedisStatePersister stores every device's state as a JSON field of a
// single hash, keyed by device id.
type RedisStatePersister struct {
	store HashStore
	key   string
	log   logger.Logger
}

// NewRedisStatePersister creates a persister writing to the hash
// <keyPrefix>devices.
func NewRedisStatePersister(store HashStore, keyPrefix string, log logger.Logger) *RedisStatePersister {
	return &RedisStatePersister{store: store, key: keyPrefix + "devices", log: log}
}

// Save writes one device's state.
func (p *RedisStatePersister) Save(ctx context.Context, state DeviceAlertState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal alert state: %w", err)
	}
	if err := p.store.HSet(ctx, p.key, state.DeviceID, string(data)); err != nil {
		return fmt.Errorf("save alert state: %w", err)
	}
	return nil
}

// LoadAll reads every stored state. Corrupt entries are skipped.
func (p *RedisStatePersister) LoadAll(ctx context.Context) ([]DeviceAlertState, error) {
	fields, err := p.store.HGetAll(ctx, p.key)
	if err != nil {
		return nil, fmt.Errorf("load alert states: %w", err)
	}
	states := make([]DeviceAlertState, 0, len(fields))
	for deviceID, raw := range fields {
		var st DeviceAlertState
		if err := json.Unmarshal([]byte(raw), &st); err != nil {
			p.log.Warn("skipping corrupt alert state",
				logger.String("device_id", deviceID),
				logger.Error(err))
			continue
		}
		st.DeviceID = deviceID
		states = append(states, st)
	}
	return states, nil
}
