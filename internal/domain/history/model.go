package history

import (
	"encoding/json"
	"time"
)

// Lifecycle states of one eligibility-check attempt.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusComplete   = "complete"
	StatusError      = "error"
)

var validStatuses = map[string]bool{
	StatusPending: true, StatusProcessing: true, StatusComplete: true, StatusError: true,
}

// IsTerminal reports whether a status ends the lifecycle.
func IsTerminal(status string) bool {
	return status == StatusComplete || status == StatusError
}

// InterimResults holds the artifacts an automation run produces before its
// final result: a screenshot reference and any documents gathered so far.
type InterimResults struct {
	Screenshot string   `json:"screenshot,omitempty"`
	Documents  []string `json:"documents,omitempty"`
}

// HistoryItem is one eligibility-check attempt. TaskID correlates the item
// with the external automation task; Result stays opaque because its shape
// varies per TPA.
type HistoryItem struct {
	ID       string `json:"id"`
	ClinicID string `json:"clinicId"`
	TaskID   string `json:"taskId,omitempty"`

	PatientID     string `json:"patientId,omitempty"`
	PatientName   string `json:"patientName,omitempty"`
	PatientDOB    string `json:"patientDob,omitempty"`
	MPI           string `json:"mpi,omitempty"`
	Payer         string `json:"payer,omitempty"`
	AppointmentID string `json:"appointmentId,omitempty"`

	Status          string          `json:"status"`
	Result          json.RawMessage `json:"result,omitempty"`
	InterimResults  *InterimResults `json:"interimResults,omitempty"`
	Error           string          `json:"error,omitempty"`
	PollingAttempts int             `json:"pollingAttempts"`

	CreatedAt   time.Time  `json:"createdAt"`
	CompletedAt *time.Time `json:"completedAt,omitempty"`
}

// Update carries the mutable fields of an item. Nil pointers leave the
// current value untouched, making repeated identical updates idempotent.
type Update struct {
	Status          *string          `json:"status,omitempty"`
	Result          json.RawMessage  `json:"result,omitempty"`
	InterimResults  *InterimResults  `json:"interimResults,omitempty"`
	Error           *string          `json:"error,omitempty"`
	PollingAttempts *int             `json:"pollingAttempts,omitempty"`
	TaskID          *string          `json:"taskId,omitempty"`
}

// PollingTask is the lightweight ledger entry tracking one in-flight poll.
type PollingTask struct {
	TaskID    string    `json:"taskId"`
	HistoryID string    `json:"historyId"`
	Attempts  int       `json:"attempts"`
	StartedAt time.Time `json:"startedAt"`
}
