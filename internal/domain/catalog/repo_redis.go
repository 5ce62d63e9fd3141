package catalog

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores each collection as one JSON list under
// clinic:{kind}:{clinicId} or clinic:{kind}:{clinicId}:{tpaCode} for
// TPA-scoped collections.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func collectionKey(kind Kind, clinicID, tpaCode string) string {
	if tpaCode == "" {
		return fmt.Sprintf("clinic:%s:%s", kind, clinicID)
	}
	return fmt.Sprintf("clinic:%s:%s:%s", kind, clinicID, tpaCode)
}

func (r *RedisRepository) Put(ctx context.Context, kind Kind, clinicID, tpaCode string, items []Item) error {
	data, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("marshal %s collection: %w", kind, err)
	}
	if err := r.client.Set(ctx, collectionKey(kind, clinicID, tpaCode), data, 0).Err(); err != nil {
		return fmt.Errorf("store %s collection: %w", kind, err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, kind Kind, clinicID, tpaCode string) ([]Item, error) {
	data, err := r.client.Get(ctx, collectionKey(kind, clinicID, tpaCode)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s collection: %w", kind, err)
	}

	var items []Item
	if err := json.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode %s collection: %w", kind, err)
	}
	return items, nil
}

func (r *RedisRepository) Delete(ctx context.Context, kind Kind, clinicID, tpaCode string) error {
	n, err := r.client.Del(ctx, collectionKey(kind, clinicID, tpaCode)).Result()
	if err != nil {
		return fmt.Errorf("delete %s collection: %w", kind, err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
