package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// retentionLimit caps how many items a clinic keeps. Inserting past the cap
// evicts the oldest item along with all of its index references.
const retentionLimit = 100

// stalePollAge is how long a polling task may sit on the ledger before a
// read prunes it.
const stalePollAge = 30 * time.Minute

type Service struct {
	repo    Repository
	polling PollingRepository
	logger  zerolog.Logger

	now func() time.Time
}

func NewService(repo Repository, polling PollingRepository, logger zerolog.Logger) *Service {
	return &Service{
		repo:    repo,
		polling: polling,
		logger:  logger,
		now:     time.Now,
	}
}

// Create stores a new item. The caller may leave ID, Status and CreatedAt
// empty; they default to a fresh uuid, pending and now.
func (s *Service) Create(ctx context.Context, item *HistoryItem) (*HistoryItem, error) {
	if item.ClinicID == "" {
		return nil, fmt.Errorf("clinicId is required")
	}
	if item.Status == "" {
		item.Status = StatusPending
	}
	if !validStatuses[item.Status] {
		return nil, fmt.Errorf("invalid status: %s", item.Status)
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		item.CreatedAt = s.now()
	}
	if IsTerminal(item.Status) && item.CompletedAt == nil {
		t := s.now()
		item.CompletedAt = &t
	}

	if err := s.repo.Create(ctx, item); err != nil {
		return nil, err
	}
	if err := s.enforceRetention(ctx, item.ClinicID); err != nil {
		s.logger.Warn().Err(err).Str("clinic_id", item.ClinicID).Msg("history retention sweep failed")
	}
	return item, nil
}

// enforceRetention evicts the oldest items until the clinic is back at the
// cap. Deletion goes through the repository so every index set is cleaned.
func (s *Service) enforceRetention(ctx context.Context, clinicID string) error {
	items, err := s.repo.ListByClinic(ctx, clinicID)
	if err != nil {
		return err
	}
	if len(items) <= retentionLimit {
		return nil
	}

	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.Before(items[j].CreatedAt)
	})
	for _, old := range items[:len(items)-retentionLimit] {
		if err := s.repo.Delete(ctx, old.ID); err != nil {
			return err
		}
		s.logger.Debug().Str("history_id", old.ID).Str("clinic_id", clinicID).
			Msg("evicted history item past retention cap")
	}
	return nil
}

func (s *Service) Get(ctx context.Context, id string) (*HistoryItem, error) {
	return s.repo.Get(ctx, id)
}

func (s *Service) GetByTaskID(ctx context.Context, taskID string) (*HistoryItem, error) {
	return s.repo.GetByTaskID(ctx, taskID)
}

func (s *Service) ListByClinic(ctx context.Context, clinicID string) ([]*HistoryItem, error) {
	items, err := s.repo.ListByClinic(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	return items, nil
}

func (s *Service) ListByPatient(ctx context.Context, patientID string) ([]*HistoryItem, error) {
	items, err := s.repo.ListByPatient(ctx, patientID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	return items, nil
}

func (s *Service) ListByAppointment(ctx context.Context, appointmentID string) ([]*HistoryItem, error) {
	items, err := s.repo.ListByAppointment(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	sortNewestFirst(items)
	return items, nil
}

func sortNewestFirst(items []*HistoryItem) {
	sort.Slice(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

// UpdateByID applies a partial update. Nil fields keep their stored value,
// so replaying the same update is a no-op beyond the write itself.
func (s *Service) UpdateByID(ctx context.Context, id string, upd Update) (*HistoryItem, error) {
	item, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, item, upd)
}

// UpdateByTaskID is UpdateByID keyed on the external task id, for callers
// that only hold the automation task reference.
func (s *Service) UpdateByTaskID(ctx context.Context, taskID string, upd Update) (*HistoryItem, error) {
	item, err := s.repo.GetByTaskID(ctx, taskID)
	if err != nil {
		return nil, err
	}
	return s.apply(ctx, item, upd)
}

func (s *Service) apply(ctx context.Context, item *HistoryItem, upd Update) (*HistoryItem, error) {
	if upd.Status != nil {
		if !validStatuses[*upd.Status] {
			return nil, fmt.Errorf("invalid status: %s", *upd.Status)
		}
		item.Status = *upd.Status
	}
	if upd.Result != nil {
		item.Result = upd.Result
	}
	if upd.InterimResults != nil {
		item.InterimResults = upd.InterimResults
	}
	if upd.Error != nil {
		item.Error = *upd.Error
	}
	if upd.PollingAttempts != nil {
		item.PollingAttempts = *upd.PollingAttempts
	}
	if upd.TaskID != nil {
		item.TaskID = *upd.TaskID
	}

	if IsTerminal(item.Status) {
		if item.CompletedAt == nil {
			t := s.now()
			item.CompletedAt = &t
		}
	} else {
		item.CompletedAt = nil
	}

	if err := s.repo.Update(ctx, item); err != nil {
		return nil, err
	}
	return item, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	return s.repo.Delete(ctx, id)
}

// AddPollingTask appends a task to the ledger, replacing any stale entry
// that carries the same task id.
func (s *Service) AddPollingTask(ctx context.Context, task PollingTask) error {
	tasks, err := s.polling.GetTasks(ctx)
	if err != nil {
		return err
	}
	if task.StartedAt.IsZero() {
		task.StartedAt = s.now()
	}
	kept := tasks[:0]
	for _, t := range tasks {
		if t.TaskID != task.TaskID {
			kept = append(kept, t)
		}
	}
	kept = append(kept, task)
	return s.polling.PutTasks(ctx, kept)
}

// PollingTasks returns the live ledger, pruning entries older than the
// stale-poll cutoff as a side effect.
func (s *Service) PollingTasks(ctx context.Context) ([]PollingTask, error) {
	tasks, err := s.polling.GetTasks(ctx)
	if err != nil {
		return nil, err
	}
	cutoff := s.now().Add(-stalePollAge)
	fresh := make([]PollingTask, 0, len(tasks))
	for _, t := range tasks {
		if t.StartedAt.After(cutoff) {
			fresh = append(fresh, t)
		} else {
			s.logger.Info().Str("task_id", t.TaskID).Msg("dropping stale polling task")
		}
	}
	if len(fresh) != len(tasks) {
		if err := s.polling.PutTasks(ctx, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// IncrementPollingAttempts bumps the attempt counter of one ledger entry and
// mirrors the count onto the history item.
func (s *Service) IncrementPollingAttempts(ctx context.Context, taskID string) (int, error) {
	tasks, err := s.polling.GetTasks(ctx)
	if err != nil {
		return 0, err
	}
	attempts := 0
	found := false
	for i := range tasks {
		if tasks[i].TaskID == taskID {
			tasks[i].Attempts++
			attempts = tasks[i].Attempts
			found = true
			break
		}
	}
	if !found {
		return 0, ErrNotFound
	}
	if err := s.polling.PutTasks(ctx, tasks); err != nil {
		return 0, err
	}
	if _, err := s.UpdateByTaskID(ctx, taskID, Update{PollingAttempts: &attempts}); err != nil && err != ErrNotFound {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("could not mirror polling attempts onto history")
	}
	return attempts, nil
}

// RemovePollingTask drops a task from the ledger, typically once its check
// reaches a terminal status.
func (s *Service) RemovePollingTask(ctx context.Context, taskID string) error {
	tasks, err := s.polling.GetTasks(ctx)
	if err != nil {
		return err
	}
	kept := tasks[:0]
	for _, t := range tasks {
		if t.TaskID != taskID {
			kept = append(kept, t)
		}
	}
	if len(kept) == len(tasks) {
		return nil
	}
	return s.polling.PutTasks(ctx, kept)
}
