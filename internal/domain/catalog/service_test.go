package catalog

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

type mockRepo struct {
	data map[string][]Item
}

func newMockRepo() *mockRepo {
	return &mockRepo{data: make(map[string][]Item)}
}

func key(kind Kind, clinicID, tpaCode string) string {
	return string(kind) + ":" + clinicID + ":" + tpaCode
}

func (m *mockRepo) Put(ctx context.Context, kind Kind, clinicID, tpaCode string, items []Item) error {
	m.data[key(kind, clinicID, tpaCode)] = items
	return nil
}

func (m *mockRepo) Get(ctx context.Context, kind Kind, clinicID, tpaCode string) ([]Item, error) {
	items, ok := m.data[key(kind, clinicID, tpaCode)]
	if !ok {
		return nil, ErrNotFound
	}
	return items, nil
}

func (m *mockRepo) Delete(ctx context.Context, kind Kind, clinicID, tpaCode string) error {
	if _, ok := m.data[key(kind, clinicID, tpaCode)]; !ok {
		return ErrNotFound
	}
	delete(m.data, key(kind, clinicID, tpaCode))
	return nil
}

func TestKindFromPath(t *testing.T) {
	tests := []struct {
		segment string
		want    Kind
		ok      bool
	}{
		{"doctors", KindDoctors, true},
		{"networks", KindNetworks, true},
		{"plans", KindPlans, true},
		{"payers", KindPayers, true},
		{"mantys-networks", KindMantysNetworks, true},
		{"unknown", "", false},
	}
	for _, tt := range tests {
		got, ok := KindFromPath(tt.segment)
		if got != tt.want || ok != tt.ok {
			t.Errorf("KindFromPath(%q) = (%q, %v), want (%q, %v)", tt.segment, got, ok, tt.want, tt.ok)
		}
	}
}

func TestService_PutValidates(t *testing.T) {
	svc := NewService(newMockRepo())

	if err := svc.Put(context.Background(), KindPlans, "clinic-1", "TPA001", nil); err == nil {
		t.Error("expected error for empty items")
	}
	if err := svc.Put(context.Background(), KindPlans, "clinic-1", "TPA001", []Item{{Code: "no-name"}}); err == nil {
		t.Error("expected error for item without name")
	}
	if err := svc.Put(context.Background(), Kind("bogus"), "clinic-1", "", []Item{{Name: "x"}}); err == nil {
		t.Error("expected error for unknown kind")
	}
}

func TestService_RoundTrip(t *testing.T) {
	svc := NewService(newMockRepo())

	items := []Item{{Name: "Dr. Rao", ID: "d1"}, {Name: "Dr. Khan", ID: "d2"}}
	if err := svc.Put(context.Background(), KindDoctors, "clinic-1", "", items); err != nil {
		t.Fatalf("put: %v", err)
	}

	got, err := svc.Get(context.Background(), KindDoctors, "clinic-1", "")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got) != 2 || got[0].Name != "Dr. Rao" {
		t.Errorf("unexpected items: %+v", got)
	}

	if err := svc.Delete(context.Background(), KindDoctors, "clinic-1", ""); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Get(context.Background(), KindDoctors, "clinic-1", ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}
}

func TestHandlerGet_EmptyCollection(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/clinic-config/plans?clinic_id=clinic-1", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("collection")
	c.SetParamValues("plans")

	if err := h.Get(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"total":0`) {
		t.Errorf("expected empty collection response, got %s", rec.Body.String())
	}
}

func TestHandlerPut_UnknownCollection(t *testing.T) {
	h := NewHandler(NewService(newMockRepo()))

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/clinic-config/bogus?clinic_id=clinic-1", strings.NewReader(`{"items":[{"name":"x"}]}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("collection")
	c.SetParamValues("bogus")

	err := h.Put(c)
	httpErr, ok := err.(*echo.HTTPError)
	if !ok || httpErr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}
