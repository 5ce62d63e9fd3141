package history

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("history item not found")

// Repository persists items and keeps the clinic/task/patient/appointment
// index sets consistent with the primary record on every write.
type Repository interface {
	Create(ctx context.Context, item *HistoryItem) error
	Get(ctx context.Context, id string) (*HistoryItem, error)
	GetByTaskID(ctx context.Context, taskID string) (*HistoryItem, error)
	Update(ctx context.Context, item *HistoryItem) error
	Delete(ctx context.Context, id string) error

	ListByClinic(ctx context.Context, clinicID string) ([]*HistoryItem, error)
	ListByPatient(ctx context.Context, patientID string) ([]*HistoryItem, error)
	ListByAppointment(ctx context.Context, appointmentID string) ([]*HistoryItem, error)
}

// PollingRepository stores the flat polling-task list.
type PollingRepository interface {
	PutTasks(ctx context.Context, tasks []PollingTask) error
	GetTasks(ctx context.Context) ([]PollingTask, error)
}
