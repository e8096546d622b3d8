// Package rediscache keeps balance snapshots in Redis as JSON with a TTL.
package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/MrJamesThe3rd/splitledger/internal/balance"
)

const keyPrefix = "splitledger:balances:"

// Connect builds a client from either a redis:// URL or a bare host:port.
func Connect(ctx context.Context, redisURL string) (*redis.Client, error) {
	var client *redis.Client

	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parsing redis url: %w", err)
		}

		client = redis.NewClient(opt)
	} else {
		client = redis.NewClient(&redis.Options{Addr: redisURL})
	}

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return client, nil
}

type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

func New(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func key(groupID string) string {
	return keyPrefix + groupID
}

func (c *Cache) Get(ctx context.Context, groupID string) (*balance.Snapshot, bool, error) {
	raw, err := c.client.Get(ctx, key(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("reading snapshot: %w", err)
	}

	snap, err := decode(raw)
	if err != nil {
		return nil, false, err
	}

	return snap, true, nil
}

func (c *Cache) Set(ctx context.Context, groupID string, snap *balance.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}

	if err := c.client.Set(ctx, key(groupID), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}

	return nil
}

func (c *Cache) Delete(ctx context.Context, groupID string) error {
	return c.client.Del(ctx, key(groupID)).Err()
}

func decode(raw []byte) (*balance.Snapshot, error) {
	var snap balance.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("decoding snapshot: %w", err)
	}

	return &snap, nil
}
