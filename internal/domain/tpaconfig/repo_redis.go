package tpaconfig

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisRepository stores configs as JSON values under
// clinic:tpa:{clinicId}:{ins_code}, with a per-clinic index set for
// enumeration because KEYS-style scans are not acceptable at scale.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func configKey(clinicID, insCode string) string {
	return fmt.Sprintf("clinic:tpa:%s:%s", clinicID, insCode)
}

func indexKey(clinicID string) string {
	return fmt.Sprintf("clinic:tpa:%s:index", clinicID)
}

func mappingKey(clinicID string) string {
	return fmt.Sprintf("clinic:tpa_mapping:%s", clinicID)
}

func (r *RedisRepository) Upsert(ctx context.Context, clinicID string, cfg *TPAConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal tpa config: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, configKey(clinicID, cfg.InsCode), data, 0)
	pipe.SAdd(ctx, indexKey(clinicID), cfg.InsCode)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store tpa config: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, clinicID, insCode string) (*TPAConfig, error) {
	data, err := r.client.Get(ctx, configKey(clinicID, insCode)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tpa config: %w", err)
	}

	var cfg TPAConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decode tpa config: %w", err)
	}
	return &cfg, nil
}

func (r *RedisRepository) List(ctx context.Context, clinicID string) ([]*TPAConfig, error) {
	codes, err := r.client.SMembers(ctx, indexKey(clinicID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list tpa config index: %w", err)
	}
	if len(codes) == 0 {
		return nil, nil
	}

	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = configKey(clinicID, code)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load tpa configs: %w", err)
	}

	configs := make([]*TPAConfig, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// Index entry without a value: the config was deleted out of
			// band. Clean it up opportunistically.
			r.client.SRem(ctx, indexKey(clinicID), codes[i])
			continue
		}
		var cfg TPAConfig
		if err := json.Unmarshal([]byte(s), &cfg); err != nil {
			continue
		}
		configs = append(configs, &cfg)
	}
	return configs, nil
}

func (r *RedisRepository) Delete(ctx context.Context, clinicID, insCode string) error {
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, configKey(clinicID, insCode))
	pipe.SRem(ctx, indexKey(clinicID), insCode)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete tpa config: %w", err)
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *RedisRepository) PutMapping(ctx context.Context, clinicID string, rows []MappingRow) error {
	data, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal tpa mapping: %w", err)
	}
	if err := r.client.Set(ctx, mappingKey(clinicID), data, 0).Err(); err != nil {
		return fmt.Errorf("store tpa mapping: %w", err)
	}
	return nil
}

func (r *RedisRepository) GetMapping(ctx context.Context, clinicID string) ([]MappingRow, error) {
	data, err := r.client.Get(ctx, mappingKey(clinicID)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get tpa mapping: %w", err)
	}

	var rows []MappingRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode tpa mapping: %w", err)
	}
	return rows, nil
}

func (r *RedisRepository) DeleteMapping(ctx context.Context, clinicID string) error {
	n, err := r.client.Del(ctx, mappingKey(clinicID)).Result()
	if err != nil {
		return fmt.Errorf("delete tpa mapping: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
