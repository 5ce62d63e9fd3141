package history

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

// mockRepo mirrors the index-set bookkeeping of the real store so tests can
// assert no lookup path keeps a reference to a deleted item.
type mockRepo struct {
	items         map[string]*HistoryItem
	byTask        map[string]map[string]bool
	byClinic      map[string]map[string]bool
	byPatient     map[string]map[string]bool
	byAppointment map[string]map[string]bool

	tasks []PollingTask
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		items:         make(map[string]*HistoryItem),
		byTask:        make(map[string]map[string]bool),
		byClinic:      make(map[string]map[string]bool),
		byPatient:     make(map[string]map[string]bool),
		byAppointment: make(map[string]map[string]bool),
	}
}

func addTo(idx map[string]map[string]bool, key, id string) {
	if key == "" {
		return
	}
	if idx[key] == nil {
		idx[key] = make(map[string]bool)
	}
	idx[key][id] = true
}

func (m *mockRepo) index(item *HistoryItem) {
	addTo(m.byClinic, item.ClinicID, item.ID)
	addTo(m.byTask, item.TaskID, item.ID)
	addTo(m.byPatient, item.PatientID, item.ID)
	addTo(m.byAppointment, item.AppointmentID, item.ID)
}

func (m *mockRepo) unindex(item *HistoryItem) {
	delete(m.byClinic[item.ClinicID], item.ID)
	delete(m.byTask[item.TaskID], item.ID)
	delete(m.byPatient[item.PatientID], item.ID)
	delete(m.byAppointment[item.AppointmentID], item.ID)
}

func (m *mockRepo) Create(ctx context.Context, item *HistoryItem) error {
	cp := *item
	m.items[item.ID] = &cp
	m.index(item)
	return nil
}

func (m *mockRepo) Get(ctx context.Context, id string) (*HistoryItem, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *item
	return &cp, nil
}

func (m *mockRepo) GetByTaskID(ctx context.Context, taskID string) (*HistoryItem, error) {
	for id := range m.byTask[taskID] {
		return m.Get(ctx, id)
	}
	return nil, ErrNotFound
}

func (m *mockRepo) Update(ctx context.Context, item *HistoryItem) error {
	old, ok := m.items[item.ID]
	if !ok {
		return ErrNotFound
	}
	if old.TaskID != item.TaskID && old.TaskID != "" {
		delete(m.byTask[old.TaskID], item.ID)
	}
	cp := *item
	m.items[item.ID] = &cp
	m.index(item)
	return nil
}

func (m *mockRepo) Delete(ctx context.Context, id string) error {
	item, ok := m.items[id]
	if !ok {
		return ErrNotFound
	}
	m.unindex(item)
	delete(m.items, id)
	return nil
}

func (m *mockRepo) listFrom(idx map[string]bool) []*HistoryItem {
	var out []*HistoryItem
	for id := range idx {
		if item, ok := m.items[id]; ok {
			cp := *item
			out = append(out, &cp)
		}
	}
	return out
}

func (m *mockRepo) ListByClinic(ctx context.Context, clinicID string) ([]*HistoryItem, error) {
	return m.listFrom(m.byClinic[clinicID]), nil
}

func (m *mockRepo) ListByPatient(ctx context.Context, patientID string) ([]*HistoryItem, error) {
	return m.listFrom(m.byPatient[patientID]), nil
}

func (m *mockRepo) ListByAppointment(ctx context.Context, appointmentID string) ([]*HistoryItem, error) {
	return m.listFrom(m.byAppointment[appointmentID]), nil
}

func (m *mockRepo) PutTasks(ctx context.Context, tasks []PollingTask) error {
	m.tasks = append([]PollingTask(nil), tasks...)
	return nil
}

func (m *mockRepo) GetTasks(ctx context.Context) ([]PollingTask, error) {
	return append([]PollingTask(nil), m.tasks...), nil
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, repo, zerolog.Nop())
}

func strPtr(s string) *string { return &s }

func TestCreate_DefaultsAndValidation(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.Create(ctx, &HistoryItem{ClinicID: "c1", PatientID: "p1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if item.ID == "" {
		t.Error("expected a generated id")
	}
	if item.Status != StatusPending {
		t.Errorf("status = %q, want %q", item.Status, StatusPending)
	}
	if item.CreatedAt.IsZero() {
		t.Error("expected createdAt to be set")
	}

	if _, err := svc.Create(ctx, &HistoryItem{Status: StatusPending}); err == nil {
		t.Error("expected error for missing clinicId")
	}
	if _, err := svc.Create(ctx, &HistoryItem{ClinicID: "c1", Status: "done"}); err == nil {
		t.Error("expected error for unknown status")
	}
}

func TestUpdate_IsIdempotent(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, err := svc.Create(ctx, &HistoryItem{ClinicID: "c1", TaskID: "task-1"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	upd := Update{
		Status: strPtr(StatusComplete),
		Result: json.RawMessage(`{"eligible":true}`),
	}
	first, err := svc.UpdateByTaskID(ctx, "task-1", upd)
	if err != nil {
		t.Fatalf("first update: %v", err)
	}
	if first.CompletedAt == nil {
		t.Fatal("expected completedAt on terminal status")
	}

	second, err := svc.UpdateByTaskID(ctx, "task-1", upd)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if second.Status != first.Status || string(second.Result) != string(first.Result) {
		t.Error("replaying the same update changed the record")
	}
	if !second.CompletedAt.Equal(*first.CompletedAt) {
		t.Error("replaying the same update moved completedAt")
	}

	got, err := svc.Get(ctx, item.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusComplete {
		t.Errorf("status = %q, want %q", got.Status, StatusComplete)
	}
}

func TestUpdate_UnknownIdentifiers(t *testing.T) {
	svc := newTestService(newMockRepo())
	ctx := context.Background()

	if _, err := svc.UpdateByID(ctx, "missing", Update{}); err != ErrNotFound {
		t.Errorf("UpdateByID error = %v, want ErrNotFound", err)
	}
	if _, err := svc.UpdateByTaskID(ctx, "missing", Update{}); err != ErrNotFound {
		t.Errorf("UpdateByTaskID error = %v, want ErrNotFound", err)
	}
}

func TestUpdate_RewindClearsCompletedAt(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, _ := svc.Create(ctx, &HistoryItem{ClinicID: "c1", TaskID: "t1", Status: StatusComplete})
	if item.CompletedAt == nil {
		t.Fatal("expected completedAt on terminal create")
	}

	got, err := svc.UpdateByID(ctx, item.ID, Update{Status: strPtr(StatusPending)})
	if err != nil {
		t.Fatalf("UpdateByID: %v", err)
	}
	if got.CompletedAt != nil {
		t.Error("expected completedAt cleared after rewind to pending")
	}
}

func TestDelete_LeavesNoIndexReferences(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	item, _ := svc.Create(ctx, &HistoryItem{
		ClinicID: "c1", TaskID: "t1", PatientID: "p1", AppointmentID: "a1",
	})
	if err := svc.Delete(ctx, item.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := svc.Get(ctx, item.ID); err != ErrNotFound {
		t.Errorf("Get after delete = %v, want ErrNotFound", err)
	}
	if _, err := svc.GetByTaskID(ctx, "t1"); err != ErrNotFound {
		t.Errorf("GetByTaskID after delete = %v, want ErrNotFound", err)
	}
	for name, list := range map[string]func() ([]*HistoryItem, error){
		"clinic":      func() ([]*HistoryItem, error) { return svc.ListByClinic(ctx, "c1") },
		"patient":     func() ([]*HistoryItem, error) { return svc.ListByPatient(ctx, "p1") },
		"appointment": func() ([]*HistoryItem, error) { return svc.ListByAppointment(ctx, "a1") },
	} {
		items, err := list()
		if err != nil {
			t.Fatalf("list by %s: %v", name, err)
		}
		if len(items) != 0 {
			t.Errorf("list by %s still references deleted item", name)
		}
	}
}

func TestRetention_EvictsOldestOnly(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < retentionLimit; i++ {
		_, err := svc.Create(ctx, &HistoryItem{
			ID:        fmt.Sprintf("item-%03d", i),
			ClinicID:  "c1",
			PatientID: fmt.Sprintf("p-%03d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Create %d: %v", i, err)
		}
	}

	if _, err := svc.Create(ctx, &HistoryItem{
		ID:        "item-new",
		ClinicID:  "c1",
		CreatedAt: base.Add(time.Duration(retentionLimit) * time.Minute),
	}); err != nil {
		t.Fatalf("Create over cap: %v", err)
	}

	items, err := svc.ListByClinic(ctx, "c1")
	if err != nil {
		t.Fatalf("ListByClinic: %v", err)
	}
	if len(items) != retentionLimit {
		t.Fatalf("clinic holds %d items, want %d", len(items), retentionLimit)
	}

	if _, err := svc.Get(ctx, "item-000"); err != ErrNotFound {
		t.Errorf("oldest item still present, Get = %v", err)
	}
	if _, err := svc.Get(ctx, "item-001"); err != nil {
		t.Errorf("second-oldest item evicted: %v", err)
	}
	if _, err := svc.Get(ctx, "item-new"); err != nil {
		t.Errorf("newest item evicted: %v", err)
	}
	if got, _ := svc.ListByPatient(ctx, "p-000"); len(got) != 0 {
		t.Error("patient index still references evicted item")
	}
}

func TestPollingLedger_Lifecycle(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Create(ctx, &HistoryItem{ID: "h1", ClinicID: "c1", TaskID: "t1"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := svc.AddPollingTask(ctx, PollingTask{TaskID: "t1", HistoryID: "h1"}); err != nil {
		t.Fatalf("AddPollingTask: %v", err)
	}

	attempts, err := svc.IncrementPollingAttempts(ctx, "t1")
	if err != nil {
		t.Fatalf("IncrementPollingAttempts: %v", err)
	}
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	item, _ := svc.Get(ctx, "h1")
	if item.PollingAttempts != 1 {
		t.Errorf("history pollingAttempts = %d, want 1", item.PollingAttempts)
	}

	if _, err := svc.IncrementPollingAttempts(ctx, "unknown"); err != ErrNotFound {
		t.Errorf("increment unknown task = %v, want ErrNotFound", err)
	}

	if err := svc.RemovePollingTask(ctx, "t1"); err != nil {
		t.Fatalf("RemovePollingTask: %v", err)
	}
	tasks, err := svc.PollingTasks(ctx)
	if err != nil {
		t.Fatalf("PollingTasks: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("ledger holds %d tasks after removal, want 0", len(tasks))
	}
}

func TestPollingLedger_PrunesStaleTasks(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	repo.tasks = []PollingTask{
		{TaskID: "stale", StartedAt: now.Add(-45 * time.Minute)},
		{TaskID: "fresh", StartedAt: now.Add(-5 * time.Minute)},
	}

	tasks, err := svc.PollingTasks(ctx)
	if err != nil {
		t.Fatalf("PollingTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].TaskID != "fresh" {
		t.Fatalf("tasks = %+v, want only the fresh entry", tasks)
	}
	if len(repo.tasks) != 1 {
		t.Error("stale entry not persisted away")
	}
}
