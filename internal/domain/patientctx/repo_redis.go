package patientctx

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// cacheTTL is the fixed lifetime of every context key. The cache holds
// working-day state, not a durable record.
const cacheTTL = 24 * time.Hour

type RedisRepository struct {
	client *redis.Client
}

func NewRedisRepository(client *redis.Client) *RedisRepository {
	return &RedisRepository{client: client}
}

func mpiKey(mpi string) string {
	return fmt.Sprintf("patient:mpi:%s", mpi)
}

func patientKey(id string) string {
	return fmt.Sprintf("patient:id:%s", id)
}

func appointmentKey(id string) string {
	return fmt.Sprintf("appointment:%s", id)
}

func (r *RedisRepository) Put(ctx context.Context, pc *PatientContext) error {
	data, err := json.Marshal(pc)
	if err != nil {
		return fmt.Errorf("marshal patient context: %w", err)
	}

	pipe := r.client.TxPipeline()
	if pc.MPI != "" {
		pipe.Set(ctx, mpiKey(pc.MPI), data, cacheTTL)
	}
	if pc.PatientID != "" {
		pipe.Set(ctx, patientKey(pc.PatientID), data, cacheTTL)
	}
	if pc.AppointmentID != "" {
		pipe.Set(ctx, appointmentKey(pc.AppointmentID), data, cacheTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("store patient context: %w", err)
	}
	return nil
}

func (r *RedisRepository) get(ctx context.Context, key string) (*PatientContext, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get patient context: %w", err)
	}

	var pc PatientContext
	if err := json.Unmarshal(data, &pc); err != nil {
		return nil, fmt.Errorf("decode patient context: %w", err)
	}
	return &pc, nil
}

func (r *RedisRepository) GetByMPI(ctx context.Context, mpi string) (*PatientContext, error) {
	return r.get(ctx, mpiKey(mpi))
}

func (r *RedisRepository) GetByPatientID(ctx context.Context, patientID string) (*PatientContext, error) {
	return r.get(ctx, patientKey(patientID))
}

func (r *RedisRepository) GetByAppointmentID(ctx context.Context, appointmentID string) (*PatientContext, error) {
	return r.get(ctx, appointmentKey(appointmentID))
}
