package planmapping

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores mappings under
// clinic:plan_mapping:{clinicId}:{tpaCode}:{mappingId}, with a per-TPA index
// set of mapping ids and a per-clinic set of TPA codes for enumeration.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func mappingKey(clinicID, tpaCode, id string) string {
	return fmt.Sprintf("clinic:plan_mapping:%s:%s:%s", clinicID, tpaCode, id)
}

func tpaIndexKey(clinicID, tpaCode string) string {
	return fmt.Sprintf("clinic:plan_mapping:%s:%s:index", clinicID, tpaCode)
}

func tpaSetKey(clinicID string) string {
	return fmt.Sprintf("clinic:plan_mapping:%s:tpas", clinicID)
}

func (r *RedisRepository) Upsert(ctx context.Context, clinicID string, m *PlanNetworkMapping) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal plan mapping: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, mappingKey(clinicID, m.TPACode, m.ID), data, 0)
	pipe.SAdd(ctx, tpaIndexKey(clinicID, m.TPACode), m.ID)
	pipe.SAdd(ctx, tpaSetKey(clinicID), m.TPACode)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store plan mapping: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, clinicID, tpaCode, id string) (*PlanNetworkMapping, error) {
	data, err := r.client.Get(ctx, mappingKey(clinicID, tpaCode, id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get plan mapping: %w", err)
	}

	var m PlanNetworkMapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("decode plan mapping: %w", err)
	}
	return &m, nil
}

func (r *RedisRepository) ListByTPA(ctx context.Context, clinicID, tpaCode string) ([]*PlanNetworkMapping, error) {
	ids, err := r.client.SMembers(ctx, tpaIndexKey(clinicID, tpaCode)).Result()
	if err != nil {
		return nil, fmt.Errorf("list plan mapping index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = mappingKey(clinicID, tpaCode, id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load plan mappings: %w", err)
	}

	mappings := make([]*PlanNetworkMapping, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			r.client.SRem(ctx, tpaIndexKey(clinicID, tpaCode), ids[i])
			continue
		}
		var m PlanNetworkMapping
		if err := json.Unmarshal([]byte(s), &m); err != nil {
			continue
		}
		mappings = append(mappings, &m)
	}
	return mappings, nil
}

func (r *RedisRepository) ListAll(ctx context.Context, clinicID string) ([]*PlanNetworkMapping, error) {
	tpas, err := r.client.SMembers(ctx, tpaSetKey(clinicID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list plan mapping tpas: %w", err)
	}

	var all []*PlanNetworkMapping
	for _, tpa := range tpas {
		mappings, err := r.ListByTPA(ctx, clinicID, tpa)
		if err != nil {
			return nil, err
		}
		all = append(all, mappings...)
	}
	return all, nil
}

func (r *RedisRepository) Delete(ctx context.Context, clinicID, tpaCode, id string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, mappingKey(clinicID, tpaCode, id))
	pipe.SRem(ctx, tpaIndexKey(clinicID, tpaCode), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete plan mapping: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}
