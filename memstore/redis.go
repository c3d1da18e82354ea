package memstore

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/agentgraph/agentgraph/graph"
	"github.com/agentgraph/agentgraph/types"
)

const redisKeyPrefix = "agentgraph:mem:"

// Redis is a backend over a Redis instance. Entries are stored as JSON;
// TTLs use native key expiry.
type Redis struct {
	client redis.UniversalClient
}

// NewRedis creates a Redis-backed memory backend.
func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (r *Redis) Get(ctx context.Context, key string) (*Entry, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, types.NewError(types.ErrInternal, "redis get failed").WithCause(err)
	}
	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, types.NewError(types.ErrInternal, "corrupt memory entry").WithCause(err)
	}
	return &entry, nil
}

func (r *Redis) Set(ctx context.Context, key string, entry *Entry, ttl graph.Duration) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return types.NewError(types.ErrInternal, "memory value not serializable").WithCause(err)
	}
	if err := r.client.Set(ctx, redisKeyPrefix+key, raw, ttl.Std()).Err(); err != nil {
		return types.NewError(types.ErrInternal, "redis set failed").WithCause(err)
	}
	return nil
}

func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, redisKeyPrefix+key).Err(); err != nil {
		return types.NewError(types.ErrInternal, "redis del failed").WithCause(err)
	}
	return nil
}

func (r *Redis) DeletePrefix(ctx context.Context, prefix string) error {
	iter := r.client.Scan(ctx, 0, redisKeyPrefix+prefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		if err := r.client.Del(ctx, iter.Val()).Err(); err != nil {
			return types.NewError(types.ErrInternal, "redis del failed").WithCause(err)
		}
	}
	if err := iter.Err(); err != nil {
		return types.NewError(types.ErrInternal, "redis scan failed").WithCause(err)
	}
	return nil
}
