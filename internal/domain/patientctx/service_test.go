package patientctx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type mockRepo struct {
	mu            sync.Mutex
	byMPI         map[string]*PatientContext
	byPatient     map[string]*PatientContext
	byAppointment map[string]*PatientContext
	putErr        error
}

func newMockRepo() *mockRepo {
	return &mockRepo{
		byMPI:         make(map[string]*PatientContext),
		byPatient:     make(map[string]*PatientContext),
		byAppointment: make(map[string]*PatientContext),
	}
}

func (m *mockRepo) Put(ctx context.Context, pc *PatientContext) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	cp := *pc
	if pc.MPI != "" {
		m.byMPI[pc.MPI] = &cp
	}
	if pc.PatientID != "" {
		m.byPatient[pc.PatientID] = &cp
	}
	if pc.AppointmentID != "" {
		m.byAppointment[pc.AppointmentID] = &cp
	}
	return nil
}

func get(m map[string]*PatientContext, key string) (*PatientContext, error) {
	pc, ok := m[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *pc
	return &cp, nil
}

func (m *mockRepo) GetByMPI(ctx context.Context, mpi string) (*PatientContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return get(m.byMPI, mpi)
}

func (m *mockRepo) GetByPatientID(ctx context.Context, id string) (*PatientContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return get(m.byPatient, id)
}

func (m *mockRepo) GetByAppointmentID(ctx context.Context, id string) (*PatientContext, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return get(m.byAppointment, id)
}

// syncQueue runs submitted tasks inline so tests observe their effects
// immediately.
type syncQueue struct {
	submitErr error
}

func (q *syncQueue) Submit(name string, fn func(ctx context.Context) error) error {
	if q.submitErr != nil {
		return q.submitErr
	}
	return fn(context.Background())
}

func newTestService(repo *mockRepo) *Service {
	return NewService(repo, &syncQueue{}, zerolog.Nop())
}

func TestSaveThenLookupByEveryKey(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	in := &PatientContext{
		MPI:           "MPI-1",
		PatientID:     "4001",
		AppointmentID: "9001",
		PatientName:   "Test Patient",
		EncounterID:   77,
		PhysicianID:   12,
		InsuranceName: "Daman Enhanced",
	}
	saved, err := svc.Save(ctx, in)
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if saved.UpdatedAt.IsZero() {
		t.Error("expected updatedAt to be set")
	}

	for name, lookup := range map[string]func() (*PatientContext, error){
		"mpi":         func() (*PatientContext, error) { return svc.Lookup(ctx, "MPI-1", "", "") },
		"patient":     func() (*PatientContext, error) { return svc.Lookup(ctx, "", "4001", "") },
		"appointment": func() (*PatientContext, error) { return svc.Lookup(ctx, "", "", "9001") },
	} {
		got, err := lookup()
		if err != nil {
			t.Fatalf("lookup by %s: %v", name, err)
		}
		if got.PatientName != in.PatientName || got.EncounterID != in.EncounterID {
			t.Errorf("lookup by %s returned %+v", name, got)
		}
	}
}

func TestSaveMergesOverExisting(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	ctx := context.Background()

	if _, err := svc.Save(ctx, &PatientContext{
		MPI:         "MPI-1",
		PatientID:   "4001",
		PatientName: "Test Patient",
		EncounterID: 77,
	}); err != nil {
		t.Fatalf("initial save: %v", err)
	}

	got, err := svc.Save(ctx, &PatientContext{
		PatientID:     "4001",
		AppointmentID: "9001",
		PhysicianID:   12,
	})
	if err != nil {
		t.Fatalf("partial save: %v", err)
	}
	if got.PatientName != "Test Patient" || got.EncounterID != 77 || got.MPI != "MPI-1" {
		t.Errorf("existing fields not carried forward: %+v", got)
	}
	if got.PhysicianID != 12 || got.AppointmentID != "9001" {
		t.Errorf("new fields not applied: %+v", got)
	}

	byAppt, err := svc.Lookup(ctx, "", "", "9001")
	if err != nil {
		t.Fatalf("lookup by new appointment key: %v", err)
	}
	if byAppt.PatientName != "Test Patient" {
		t.Errorf("merged snapshot missing under new key: %+v", byAppt)
	}
}

func TestSaveRequiresIdentifier(t *testing.T) {
	svc := newTestService(newMockRepo())

	if _, err := svc.Save(context.Background(), &PatientContext{PatientName: "nameless"}); err != ErrNoIdentifier {
		t.Errorf("error = %v, want ErrNoIdentifier", err)
	}
}

func TestSaveAsyncWritesThroughQueue(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)

	svc.SaveAsync(&PatientContext{MPI: "MPI-2", PatientName: "Queued Patient"})

	got, err := svc.Lookup(context.Background(), "MPI-2", "", "")
	if err != nil {
		t.Fatalf("Lookup after async save: %v", err)
	}
	if got.PatientName != "Queued Patient" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestSaveAsyncSwallowsQueueFailure(t *testing.T) {
	repo := newMockRepo()
	svc := NewService(repo, &syncQueue{submitErr: context.Canceled}, zerolog.Nop())

	svc.SaveAsync(&PatientContext{MPI: "MPI-3"})

	if _, err := svc.Lookup(context.Background(), "MPI-3", "", ""); err != ErrNotFound {
		t.Errorf("expected nothing cached, got err = %v", err)
	}
}

func TestHandlerLookupAndUpdate(t *testing.T) {
	repo := newMockRepo()
	svc := newTestService(repo)
	h := NewHandler(svc)
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/patient/context/update",
		strings.NewReader(`{"mpi":"MPI-1","patientId":"4001","patientName":"Test Patient"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	if err := h.Update(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("update: expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	req = httptest.NewRequest(http.MethodPost, "/patient/context",
		strings.NewReader(`{"patientId":"4001"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec = httptest.NewRecorder()
	if err := h.Lookup(e.NewContext(req, rec)); err != nil {
		t.Fatalf("Lookup: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("lookup: expected 200, got %d", rec.Code)
	}
	var got PatientContext
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.PatientName != "Test Patient" {
		t.Errorf("snapshot = %+v", got)
	}
}

func TestHandlerLookupRequiresIdentifier(t *testing.T) {
	h := NewHandler(newTestService(newMockRepo()))
	e := echo.New()

	req := httptest.NewRequest(http.MethodPost, "/patient/context", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	err := h.Lookup(e.NewContext(req, rec))
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 HTTPError, got %v", err)
	}
}
