package cartstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	cartField       = "cart"
	redisPingWait   = 5 * time.Second
	redisInitTries  = 30
	redisMaxBackoff = 30 * time.Second
)

// RedisPersister stores the cart as a JSON blob under a single hash field,
// keyed by cart id. It serves deployments where several instances share one
// Redis server; the key namespaces each cart.
type RedisPersister struct {
	log    logrus.FieldLogger
	client *redis.Client
	key    string
}

// NewRedisPersister creates a persister for the given address and cart key.
// The address may be a redis:// URL; anything else is treated as host:port.
func NewRedisPersister(addr, key string, log logrus.FieldLogger) *RedisPersister {
	opts, err := redis.ParseURL(addr)
	if err != nil {
		opts = &redis.Options{
			Addr:         addr,
			MinIdleConns: 1,
			DialTimeout:  30 * time.Second,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			PoolSize:     10,
			PoolTimeout:  4 * time.Second,
			IdleTimeout:  180 * time.Second,
		}
	}
	return &RedisPersister{
		log:    log,
		client: redis.NewClient(opts),
		key:    key,
	}
}

// Initialize waits for Redis to become reachable, retrying with capped
// exponential backoff. Meant to be called once at startup, before the
// persister is handed to a Store.
func (r *RedisPersister) Initialize(ctx context.Context) error {
	for i := 0; i < redisInitTries; i++ {
		if r.Ping(ctx) {
			r.log.WithField("attempt", i+1).Info("connected to redis")
			return nil
		}
		backoff := time.Duration(1<<uint(i)) * time.Second
		if backoff > redisMaxBackoff {
			backoff = redisMaxBackoff
		}
		r.log.WithFields(logrus.Fields{
			"attempt": i + 1,
			"backoff": backoff,
		}).Warn("redis not reachable, retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
	return fmt.Errorf("failed to connect to redis after %d attempts", redisInitTries)
}

// Load reads the persisted cart. A missing key is an empty cart.
func (r *RedisPersister) Load(ctx context.Context) ([]LineItem, error) {
	val, err := r.client.HGet(ctx, r.key, cartField).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "redis HGet")
	}
	var items []LineItem
	if err := json.Unmarshal([]byte(val), &items); err != nil {
		return nil, errors.Wrap(err, "decode cart data")
	}
	return items, nil
}

// Save replaces the persisted cart with the given snapshot.
func (r *RedisPersister) Save(ctx context.Context, items []LineItem) error {
	if items == nil {
		items = []LineItem{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return errors.Wrap(err, "encode cart")
	}
	if err := r.client.HSet(ctx, r.key, cartField, data).Err(); err != nil {
		return errors.Wrap(err, "redis HSet")
	}
	return nil
}

// Ping reports whether Redis answers within a bounded wait.
func (r *RedisPersister) Ping(ctx context.Context) bool {
	pingCtx, cancel := context.WithTimeout(ctx, redisPingWait)
	defer cancel()
	if err := r.client.Ping(pingCtx).Err(); err != nil {
		r.log.WithError(err).Debug("redis ping failed")
		return false
	}
	return true
}

func (r *RedisPersister) Close() error {
	return r.client.Close()
}
