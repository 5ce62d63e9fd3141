package eligibility

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/internal/domain/history"
	"github.com/clinicbridge/clinicbridge/internal/upstream/mantys"
)

// MantysClient is the slice of the Mantys client the service needs.
type MantysClient interface {
	CreateCheck(ctx context.Context, req mantys.CheckRequest) (*mantys.TaskCreated, error)
	CheckStatus(ctx context.Context, taskID string) (*mantys.TaskStatus, error)
}

// CheckRequest starts an eligibility check. The identifier triple plus TPA
// and visit type drive the automation; the patient fields seed the history
// record.
type CheckRequest struct {
	ClinicID  string `json:"clinicId"`
	IDValue   string `json:"id_value"`
	IDType    string `json:"id_type"`
	TPAName   string `json:"tpa_name"`
	VisitType string `json:"visit_type"`

	MPI           string `json:"mpi,omitempty"`
	PatientID     string `json:"patientId,omitempty"`
	PatientName   string `json:"patientName,omitempty"`
	PatientDOB    string `json:"patientDob,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty"`
	EncounterID   int    `json:"encounterId,omitempty"`
}

func (r *CheckRequest) missingFields() []string {
	var missing []string
	for field, value := range map[string]string{
		"clinicId":   r.ClinicID,
		"id_value":   r.IDValue,
		"id_type":    r.IDType,
		"tpa_name":   r.TPAName,
		"visit_type": r.VisitType,
	} {
		if value == "" {
			missing = append(missing, field)
		}
	}
	return missing
}

// CheckCreated is returned to the caller once the automation task and its
// history record exist.
type CheckCreated struct {
	TaskID    string `json:"task_id"`
	HistoryID string `json:"history_id"`
	Status    string `json:"status"`
}

// StatusResponse is the classified outcome of one poll.
type StatusResponse struct {
	TaskID          string                  `json:"task_id"`
	Status          string                  `json:"status"`
	Result          json.RawMessage         `json:"result,omitempty"`
	InterimResults  *history.InterimResults `json:"interimResults,omitempty"`
	Error           string                  `json:"error,omitempty"`
	PollingAttempts int                     `json:"pollingAttempts"`
}

// ValidationError carries the missing request fields.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %v", e.Missing)
}

type Service struct {
	mantys  MantysClient
	history *history.Service
	logger  zerolog.Logger
}

func NewService(client MantysClient, hist *history.Service, logger zerolog.Logger) *Service {
	return &Service{mantys: client, history: hist, logger: logger}
}

// StartCheck creates the automation task, then the pending history record
// and its polling-ledger entry. Ledger failures after a successful task
// creation are soft; the task id is already committed upstream.
func (s *Service) StartCheck(ctx context.Context, req CheckRequest) (*CheckCreated, error) {
	if missing := req.missingFields(); len(missing) > 0 {
		return nil, &ValidationError{Missing: missing}
	}

	upstream := mantys.CheckRequest{
		IDValue:     req.IDValue,
		IDType:      req.IDType,
		TPAName:     req.TPAName,
		VisitType:   req.VisitType,
		MPI:         req.MPI,
		PatientID:   req.PatientID,
		PatientName: req.PatientName,
		EncounterID: req.EncounterID,
	}
	if req.AppointmentID != "" {
		if n, err := strconv.Atoi(req.AppointmentID); err == nil {
			upstream.AppointmentID = n
		}
	}

	created, err := s.mantys.CreateCheck(ctx, upstream)
	if err != nil {
		return nil, err
	}

	// The task is already committed upstream at this point, so ledger and
	// history failures are soft: the caller still gets the task id.
	resp := &CheckCreated{TaskID: created.TaskID, Status: history.StatusPending}

	item, err := s.history.Create(ctx, &history.HistoryItem{
		ClinicID:      req.ClinicID,
		TaskID:        created.TaskID,
		PatientID:     req.PatientID,
		PatientName:   req.PatientName,
		PatientDOB:    req.PatientDOB,
		MPI:           req.MPI,
		Payer:         req.TPAName,
		AppointmentID: req.AppointmentID,
		Status:        history.StatusPending,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("task_id", created.TaskID).Msg("could not record eligibility check")
		return resp, nil
	}
	resp.HistoryID = item.ID

	if err := s.history.AddPollingTask(ctx, history.PollingTask{
		TaskID:    created.TaskID,
		HistoryID: item.ID,
	}); err != nil {
		s.logger.Warn().Err(err).Str("task_id", created.TaskID).Msg("could not register polling task")
	}

	return resp, nil
}

// Poll asks Mantys for the raw task status, classifies it and folds the
// outcome into the history record. Terminal outcomes drop the task from the
// polling ledger.
func (s *Service) Poll(ctx context.Context, taskID string) (*StatusResponse, error) {
	if taskID == "" {
		return nil, &ValidationError{Missing: []string{"task_id"}}
	}

	raw, err := s.mantys.CheckStatus(ctx, taskID)
	if err != nil {
		return nil, err
	}

	status, errMsg := Classify(raw)

	attempts, err := s.history.IncrementPollingAttempts(ctx, taskID)
	if err != nil && !errors.Is(err, history.ErrNotFound) {
		s.logger.Warn().Err(err).Str("task_id", taskID).Msg("could not bump polling attempts")
	}

	upd := history.Update{Status: &status}
	if raw.EligibilityResult != nil {
		if result, merr := json.Marshal(raw.EligibilityResult); merr == nil {
			upd.Result = result
		}
	}
	if raw.Screenshot != "" || len(raw.Documents) > 0 {
		upd.InterimResults = &history.InterimResults{
			Screenshot: raw.Screenshot,
			Documents:  raw.Documents,
		}
	}
	if errMsg != "" {
		upd.Error = &errMsg
	}

	item, err := s.history.UpdateByTaskID(ctx, taskID, upd)
	if err != nil {
		if !errors.Is(err, history.ErrNotFound) {
			return nil, err
		}
		s.logger.Warn().Str("task_id", taskID).Msg("poll result has no history record")
	}

	if history.IsTerminal(status) {
		if err := s.history.RemovePollingTask(ctx, taskID); err != nil {
			s.logger.Warn().Err(err).Str("task_id", taskID).Msg("could not drop finished polling task")
		}
	}

	resp := &StatusResponse{
		TaskID:          taskID,
		Status:          status,
		Error:           errMsg,
		PollingAttempts: attempts,
	}
	if item != nil {
		resp.Result = item.Result
		resp.InterimResults = item.InterimResults
		resp.PollingAttempts = item.PollingAttempts
	}
	return resp, nil
}

// Repoll restarts the lifecycle for a rewound history record: the task goes
// back on the polling ledger and is polled once immediately.
func (s *Service) Repoll(ctx context.Context, item *history.HistoryItem) error {
	if item.TaskID == "" {
		return fmt.Errorf("history item %s has no task id", item.ID)
	}
	if err := s.history.AddPollingTask(ctx, history.PollingTask{
		TaskID:    item.TaskID,
		HistoryID: item.ID,
	}); err != nil {
		return err
	}
	_, err := s.Poll(ctx, item.TaskID)
	return err
}
