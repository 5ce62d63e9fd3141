package autocheck

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	trackerKeyPrefix = "auto-check:appointment:"

	// Completed claims stick for a week. Errors expire after a day so the
	// appointment gets another attempt.
	completedTTL = 7 * 24 * time.Hour
	errorTTL     = 24 * time.Hour
)

// trackerEntry is the JSON value behind each claim key.
type trackerEntry struct {
	TaskID    string    `json:"taskId,omitempty"`
	Status    string    `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Tracker claims appointments so concurrent worker instances never double
// process one.
type Tracker interface {
	ShouldProcess(ctx context.Context, appointmentID int) (bool, error)
	Claim(ctx context.Context, appointmentID int) (bool, error)
	MarkCompleted(ctx context.Context, appointmentID int, taskID string) error
	MarkError(ctx context.Context, appointmentID int, reason string) error
}

type RedisTracker struct {
	client *redis.Client
}

func NewRedisTracker(client *redis.Client) *RedisTracker {
	return &RedisTracker{client: client}
}

func trackerKey(appointmentID int) string {
	return fmt.Sprintf("%s%d", trackerKeyPrefix, appointmentID)
}

func (t *RedisTracker) ShouldProcess(ctx context.Context, appointmentID int) (bool, error) {
	n, err := t.client.Exists(ctx, trackerKey(appointmentID)).Result()
	if err != nil {
		return false, fmt.Errorf("check appointment claim: %w", err)
	}
	return n == 0, nil
}

// Claim marks the appointment as processing via SETNX. Only one caller wins.
func (t *RedisTracker) Claim(ctx context.Context, appointmentID int) (bool, error) {
	data, err := json.Marshal(trackerEntry{Status: "processing", CreatedAt: time.Now().UTC()})
	if err != nil {
		return false, err
	}
	ok, err := t.client.SetNX(ctx, trackerKey(appointmentID), data, completedTTL).Result()
	if err != nil {
		return false, fmt.Errorf("claim appointment: %w", err)
	}
	return ok, nil
}

func (t *RedisTracker) MarkCompleted(ctx context.Context, appointmentID int, taskID string) error {
	data, err := json.Marshal(trackerEntry{TaskID: taskID, Status: "completed", CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := t.client.Set(ctx, trackerKey(appointmentID), data, completedTTL).Err(); err != nil {
		return fmt.Errorf("mark appointment completed: %w", err)
	}
	return nil
}

func (t *RedisTracker) MarkError(ctx context.Context, appointmentID int, reason string) error {
	data, err := json.Marshal(trackerEntry{Status: "error", Error: reason, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := t.client.Set(ctx, trackerKey(appointmentID), data, errorTTL).Err(); err != nil {
		return fmt.Errorf("mark appointment error: %w", err)
	}
	return nil
}
