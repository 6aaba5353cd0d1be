// Package cache содержит кэш справочника внутренних заказов в Redis.
package cache

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "fcoaccruals:internal-order:"

// New создаёт клиент Redis и проверяет соединение.
func New(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}

	return client, nil
}

// InternalOrderCache хранит соответствие внутреннего заказа ответственному МВЗ.
type InternalOrderCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewInternalOrderCache создаёт кэш с указанным временем жизни записей.
func NewInternalOrderCache(client *redis.Client, ttl time.Duration) *InternalOrderCache {
	return &InternalOrderCache{client: client, ttl: ttl}
}

func cacheKey(id string) string {
	return keyPrefix + strings.ToLower(id)
}

// Get возвращает известные МВЗ для переданных внутренних заказов. Отсутствующие в кэше пропускаются.
func (c *InternalOrderCache) Get(ctx context.Context, ids []string) (map[string]string, error) {
	res := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return res, nil
	}

	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cacheKey(id))
	}

	values, err := c.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("cache: mget: %w", err)
	}

	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			continue
		}
		res[ids[i]] = s
	}

	return res, nil
}

// Set сохраняет МВЗ внутренних заказов.
func (c *InternalOrderCache) Set(ctx context.Context, costCenters map[string]string) error {
	if len(costCenters) == 0 {
		return nil
	}

	pipe := c.client.Pipeline()
	for id, cc := range costCenters {
		pipe.Set(ctx, cacheKey(id), cc, c.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}
