package history

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// pollingTTL bounds the polling ledger key; entries inside it are pruned by
// the service on read.
const pollingTTL = time.Hour

// itemTTL is the retention window for individual history items. Expired
// members left behind in the index sets are dropped by listByIndex on the
// next read.
const itemTTL = 30 * 24 * time.Hour

// RedisRepository stores items under eligibility:history:item:{id} and
// maintains the clinic/task/patient/appointment index sets alongside every
// create, update and delete.
type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func itemKey(id string) string {
	return fmt.Sprintf("eligibility:history:item:%s", id)
}

func clinicIdxKey(clinicID string) string {
	return fmt.Sprintf("eligibility:history:clinic:%s", clinicID)
}

func taskIdxKey(taskID string) string {
	return fmt.Sprintf("eligibility:history:task:%s", taskID)
}

func patientIdxKey(patientID string) string {
	return fmt.Sprintf("eligibility:history:patient:%s", patientID)
}

func appointmentIdxKey(appointmentID string) string {
	return fmt.Sprintf("eligibility:history:appointment:%s", appointmentID)
}

const pollingTasksKey = "eligibility:polling:tasks"

func addIndexes(ctx context.Context, pipe redis.Pipeliner, item *HistoryItem) {
	pipe.SAdd(ctx, clinicIdxKey(item.ClinicID), item.ID)
	if item.TaskID != "" {
		pipe.SAdd(ctx, taskIdxKey(item.TaskID), item.ID)
	}
	if item.PatientID != "" {
		pipe.SAdd(ctx, patientIdxKey(item.PatientID), item.ID)
	}
	if item.AppointmentID != "" {
		pipe.SAdd(ctx, appointmentIdxKey(item.AppointmentID), item.ID)
	}
}

func removeIndexes(ctx context.Context, pipe redis.Pipeliner, item *HistoryItem) {
	pipe.SRem(ctx, clinicIdxKey(item.ClinicID), item.ID)
	if item.TaskID != "" {
		pipe.SRem(ctx, taskIdxKey(item.TaskID), item.ID)
	}
	if item.PatientID != "" {
		pipe.SRem(ctx, patientIdxKey(item.PatientID), item.ID)
	}
	if item.AppointmentID != "" {
		pipe.SRem(ctx, appointmentIdxKey(item.AppointmentID), item.ID)
	}
}

func (r *RedisRepository) Create(ctx context.Context, item *HistoryItem) error {
	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal history item: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, itemKey(item.ID), data, itemTTL)
	addIndexes(ctx, pipe, item)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store history item: %w", err)
	}
	return nil
}

func (r *RedisRepository) Get(ctx context.Context, id string) (*HistoryItem, error) {
	data, err := r.client.Get(ctx, itemKey(id)).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get history item: %w", err)
	}

	var item HistoryItem
	if err := json.Unmarshal(data, &item); err != nil {
		return nil, fmt.Errorf("decode history item: %w", err)
	}
	return &item, nil
}

func (r *RedisRepository) GetByTaskID(ctx context.Context, taskID string) (*HistoryItem, error) {
	ids, err := r.client.SMembers(ctx, taskIdxKey(taskID)).Result()
	if err != nil {
		return nil, fmt.Errorf("resolve task index: %w", err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return r.Get(ctx, ids[0])
}

// Update rewrites the record and reconciles index sets against the stored
// version, so a taskId assigned after creation gains its index entry and a
// changed one loses the stale entry.
func (r *RedisRepository) Update(ctx context.Context, item *HistoryItem) error {
	old, err := r.Get(ctx, item.ID)
	if err != nil {
		return err
	}

	data, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("marshal history item: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.Set(ctx, itemKey(item.ID), data, itemTTL)
	if old.TaskID != item.TaskID && old.TaskID != "" {
		pipe.SRem(ctx, taskIdxKey(old.TaskID), item.ID)
	}
	addIndexes(ctx, pipe, item)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update history item: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	item, err := r.Get(ctx, id)
	if err != nil {
		return err
	}

	pipe := r.client.TxPipeline()
	pipe.Del(ctx, itemKey(id))
	removeIndexes(ctx, pipe, item)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete history item: %w", err)
	}
	return nil
}

func (r *RedisRepository) listByIndex(ctx context.Context, indexKey string) ([]*HistoryItem, error) {
	ids, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return nil, fmt.Errorf("list history index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = itemKey(id)
	}

	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load history items: %w", err)
	}

	items := make([]*HistoryItem, 0, len(values))
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			r.client.SRem(ctx, indexKey, ids[i])
			continue
		}
		var item HistoryItem
		if err := json.Unmarshal([]byte(s), &item); err != nil {
			continue
		}
		items = append(items, &item)
	}
	return items, nil
}

func (r *RedisRepository) ListByClinic(ctx context.Context, clinicID string) ([]*HistoryItem, error) {
	return r.listByIndex(ctx, clinicIdxKey(clinicID))
}

func (r *RedisRepository) ListByPatient(ctx context.Context, patientID string) ([]*HistoryItem, error) {
	return r.listByIndex(ctx, patientIdxKey(patientID))
}

func (r *RedisRepository) ListByAppointment(ctx context.Context, appointmentID string) ([]*HistoryItem, error) {
	return r.listByIndex(ctx, appointmentIdxKey(appointmentID))
}

func (r *RedisRepository) PutTasks(ctx context.Context, tasks []PollingTask) error {
	data, err := json.Marshal(tasks)
	if err != nil {
		return fmt.Errorf("marshal polling tasks: %w", err)
	}
	if err := r.client.Set(ctx, pollingTasksKey, data, pollingTTL).Err(); err != nil {
		return fmt.Errorf("store polling tasks: %w", err)
	}
	return nil
}

func (r *RedisRepository) GetTasks(ctx context.Context) ([]PollingTask, error) {
	data, err := r.client.Get(ctx, pollingTasksKey).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get polling tasks: %w", err)
	}

	var tasks []PollingTask
	if err := json.Unmarshal(data, &tasks); err != nil {
		return nil, fmt.Errorf("decode polling tasks: %w", err)
	}
	return tasks, nil
}
