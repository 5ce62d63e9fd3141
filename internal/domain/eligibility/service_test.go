package eligibility

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/internal/domain/history"
	"github.com/clinicbridge/clinicbridge/internal/upstream/mantys"
)

type mockMantys struct {
	created    *mantys.TaskCreated
	createErr  error
	createSeen []mantys.CheckRequest

	status    *mantys.TaskStatus
	statusErr error
	polled    []string
}

func (m *mockMantys) CreateCheck(ctx context.Context, req mantys.CheckRequest) (*mantys.TaskCreated, error) {
	m.createSeen = append(m.createSeen, req)
	if m.createErr != nil {
		return nil, m.createErr
	}
	return m.created, nil
}

func (m *mockMantys) CheckStatus(ctx context.Context, taskID string) (*mantys.TaskStatus, error) {
	m.polled = append(m.polled, taskID)
	if m.statusErr != nil {
		return nil, m.statusErr
	}
	return m.status, nil
}

// histStore backs a real history.Service with in-memory state.
type histStore struct {
	items  map[string]*history.HistoryItem
	byTask map[string]string
	tasks  []history.PollingTask
}

func newHistStore() *histStore {
	return &histStore{
		items:  make(map[string]*history.HistoryItem),
		byTask: make(map[string]string),
	}
}

func (s *histStore) Create(ctx context.Context, item *history.HistoryItem) error {
	cp := *item
	s.items[item.ID] = &cp
	if item.TaskID != "" {
		s.byTask[item.TaskID] = item.ID
	}
	return nil
}

func (s *histStore) Get(ctx context.Context, id string) (*history.HistoryItem, error) {
	item, ok := s.items[id]
	if !ok {
		return nil, history.ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (s *histStore) GetByTaskID(ctx context.Context, taskID string) (*history.HistoryItem, error) {
	id, ok := s.byTask[taskID]
	if !ok {
		return nil, history.ErrNotFound
	}
	return s.Get(ctx, id)
}

func (s *histStore) Update(ctx context.Context, item *history.HistoryItem) error {
	if _, ok := s.items[item.ID]; !ok {
		return history.ErrNotFound
	}
	cp := *item
	s.items[item.ID] = &cp
	if item.TaskID != "" {
		s.byTask[item.TaskID] = item.ID
	}
	return nil
}

func (s *histStore) Delete(ctx context.Context, id string) error {
	item, ok := s.items[id]
	if !ok {
		return history.ErrNotFound
	}
	delete(s.byTask, item.TaskID)
	delete(s.items, id)
	return nil
}

func (s *histStore) ListByClinic(ctx context.Context, clinicID string) ([]*history.HistoryItem, error) {
	var out []*history.HistoryItem
	for _, item := range s.items {
		if item.ClinicID == clinicID {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *histStore) ListByPatient(ctx context.Context, patientID string) ([]*history.HistoryItem, error) {
	return nil, nil
}

func (s *histStore) ListByAppointment(ctx context.Context, appointmentID string) ([]*history.HistoryItem, error) {
	return nil, nil
}

func (s *histStore) PutTasks(ctx context.Context, tasks []history.PollingTask) error {
	s.tasks = append([]history.PollingTask(nil), tasks...)
	return nil
}

func (s *histStore) GetTasks(ctx context.Context) ([]history.PollingTask, error) {
	return append([]history.PollingTask(nil), s.tasks...), nil
}

func newFixture(client *mockMantys) (*Service, *histStore) {
	store := newHistStore()
	hist := history.NewService(store, store, zerolog.Nop())
	return NewService(client, hist, zerolog.Nop()), store
}

func validRequest() CheckRequest {
	return CheckRequest{
		ClinicID:      "c1",
		IDValue:       "784-1990-1234567-1",
		IDType:        "EMIRATESID",
		TPAName:       "NAS",
		VisitType:     "OP",
		PatientID:     "4001",
		PatientDOB:    "1990-04-12",
		AppointmentID: "9001",
	}
}

func TestStartCheck_CreatesHistoryAndLedger(t *testing.T) {
	client := &mockMantys{created: &mantys.TaskCreated{TaskID: "task-1", Status: "queued"}}
	svc, store := newFixture(client)

	created, err := svc.StartCheck(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("StartCheck: %v", err)
	}
	if created.TaskID != "task-1" || created.Status != history.StatusPending {
		t.Errorf("created = %+v", created)
	}

	item, ok := store.items[created.HistoryID]
	if !ok {
		t.Fatal("no history record created")
	}
	if item.Status != history.StatusPending || item.TaskID != "task-1" {
		t.Errorf("history item = %+v", item)
	}
	if item.Payer != "NAS" || item.PatientDOB != "1990-04-12" {
		t.Errorf("patient header fields = %q/%q, want payer and dob seeded", item.Payer, item.PatientDOB)
	}
	if len(store.tasks) != 1 || store.tasks[0].TaskID != "task-1" {
		t.Errorf("polling ledger = %+v", store.tasks)
	}
	if got := client.createSeen[0]; got.AppointmentID != 9001 {
		t.Errorf("appointment id forwarded as %d, want 9001", got.AppointmentID)
	}
}

func TestStartCheck_ValidatesRequiredFields(t *testing.T) {
	svc, _ := newFixture(&mockMantys{})

	req := validRequest()
	req.IDValue = ""
	req.TPAName = ""
	_, err := svc.StartCheck(context.Background(), req)

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	joined := strings.Join(verr.Missing, ",")
	if !strings.Contains(joined, "id_value") || !strings.Contains(joined, "tpa_name") {
		t.Errorf("missing fields = %v", verr.Missing)
	}
}

func TestStartCheck_PropagatesUpstreamFailure(t *testing.T) {
	upstream := &mantys.UpstreamError{StatusCode: 502, RawBody: "bad gateway"}
	client := &mockMantys{createErr: upstream}
	svc, store := newFixture(client)

	_, err := svc.StartCheck(context.Background(), validRequest())
	var uerr *mantys.UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if len(store.items) != 0 {
		t.Error("history record created despite upstream failure")
	}
}

func TestPoll_CompletesAndClearsLedger(t *testing.T) {
	client := &mockMantys{
		created: &mantys.TaskCreated{TaskID: "task-1"},
		status: &mantys.TaskStatus{
			Status: "PROCESS_COMPLETE",
			EligibilityResult: &mantys.EligibilityResult{
				DataDump: mantys.DataDump{Message: "Patient is eligible"},
			},
		},
	}
	svc, store := newFixture(client)

	created, err := svc.StartCheck(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("StartCheck: %v", err)
	}

	resp, err := svc.Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if resp.Status != history.StatusComplete {
		t.Errorf("status = %q, want complete", resp.Status)
	}
	if resp.PollingAttempts != 1 {
		t.Errorf("attempts = %d, want 1", resp.PollingAttempts)
	}

	item := store.items[created.HistoryID]
	if item.Status != history.StatusComplete || item.CompletedAt == nil {
		t.Errorf("history item not finalized: %+v", item)
	}
	if len(item.Result) == 0 {
		t.Error("result not stored on history item")
	}
	if len(store.tasks) != 0 {
		t.Errorf("polling ledger still holds %+v", store.tasks)
	}
}

func TestPoll_FailureKeywordTurnsCompleteIntoError(t *testing.T) {
	client := &mockMantys{
		created: &mantys.TaskCreated{TaskID: "task-1"},
		status: &mantys.TaskStatus{
			Status: "PROCESS_COMPLETE",
			EligibilityResult: &mantys.EligibilityResult{
				DataDump: mantys.DataDump{Message: "Invalid credentials"},
			},
		},
	}
	svc, store := newFixture(client)

	created, _ := svc.StartCheck(context.Background(), validRequest())
	resp, err := svc.Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if resp.Status != history.StatusError {
		t.Errorf("status = %q, want error", resp.Status)
	}
	if resp.Error == "" {
		t.Error("expected error message in response")
	}
	if store.items[created.HistoryID].Error == "" {
		t.Error("error message not stored on history item")
	}
}

func TestPoll_ProcessingKeepsLedgerEntry(t *testing.T) {
	client := &mockMantys{
		created: &mantys.TaskCreated{TaskID: "task-1"},
		status:  &mantys.TaskStatus{Status: "EXTRACTING_DATA"},
	}
	svc, store := newFixture(client)

	if _, err := svc.StartCheck(context.Background(), validRequest()); err != nil {
		t.Fatalf("StartCheck: %v", err)
	}
	resp, err := svc.Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}
	if resp.Status != history.StatusProcessing {
		t.Errorf("status = %q, want processing", resp.Status)
	}
	if len(store.tasks) != 1 {
		t.Errorf("ledger = %+v, want the task kept", store.tasks)
	}
}

func TestPoll_StoresInterimArtifacts(t *testing.T) {
	client := &mockMantys{
		created: &mantys.TaskCreated{TaskID: "task-1"},
		status: &mantys.TaskStatus{
			Status:     "EXTRACTION_COMPLETE",
			Screenshot: "https://artifacts/task-1/portal.png",
			Documents:  []string{"https://artifacts/task-1/card.pdf"},
		},
	}
	svc, store := newFixture(client)

	created, err := svc.StartCheck(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("StartCheck: %v", err)
	}
	resp, err := svc.Poll(context.Background(), "task-1")
	if err != nil {
		t.Fatalf("Poll: %v", err)
	}

	if resp.Status != history.StatusProcessing {
		t.Errorf("status = %q, want processing", resp.Status)
	}
	if resp.InterimResults == nil || resp.InterimResults.Screenshot != "https://artifacts/task-1/portal.png" {
		t.Errorf("interim results = %+v, want the screenshot surfaced", resp.InterimResults)
	}

	item := store.items[created.HistoryID]
	if item.InterimResults == nil {
		t.Fatal("interim results not stored on history item")
	}
	if len(item.InterimResults.Documents) != 1 {
		t.Errorf("documents = %v, want one stored", item.InterimResults.Documents)
	}
}

func TestPoll_RequiresTaskID(t *testing.T) {
	svc, _ := newFixture(&mockMantys{})

	_, err := svc.Poll(context.Background(), "")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
}

func TestRepoll_ReregistersAndPolls(t *testing.T) {
	client := &mockMantys{
		created: &mantys.TaskCreated{TaskID: "task-1"},
		status:  &mantys.TaskStatus{Status: "PENDING"},
	}
	svc, store := newFixture(client)

	created, _ := svc.StartCheck(context.Background(), validRequest())
	if err := svc.history.RemovePollingTask(context.Background(), "task-1"); err != nil {
		t.Fatalf("RemovePollingTask: %v", err)
	}

	item, _ := svc.history.Get(context.Background(), created.HistoryID)
	if err := svc.Repoll(context.Background(), item); err != nil {
		t.Fatalf("Repoll: %v", err)
	}
	if len(store.tasks) != 1 {
		t.Errorf("ledger = %+v, want the task re-registered", store.tasks)
	}
	if len(client.polled) != 1 {
		t.Errorf("polled = %v, want one immediate poll", client.polled)
	}
}
