package orders

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/internal/domain/patientctx"
	"github.com/clinicbridge/clinicbridge/internal/domain/tpaconfig"
	"github.com/clinicbridge/clinicbridge/internal/upstream/lifetrenz"
)

type mockHIS struct {
	env *lifetrenz.Envelope
	err error

	orders      []lifetrenz.OrderPayload
	attachments []lifetrenz.AttachmentPayload
	policies    []lifetrenz.PolicyPayload
}

func (m *mockHIS) respond() (*lifetrenz.Envelope, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.env, nil
}

func (m *mockHIS) SaveEligibilityOrder(ctx context.Context, payload lifetrenz.OrderPayload) (*lifetrenz.Envelope, error) {
	m.orders = append(m.orders, payload)
	return m.respond()
}

func (m *mockHIS) UploadAttachment(ctx context.Context, payload lifetrenz.AttachmentPayload) (*lifetrenz.Envelope, error) {
	m.attachments = append(m.attachments, payload)
	return m.respond()
}

func (m *mockHIS) SavePolicy(ctx context.Context, payload lifetrenz.PolicyPayload) (*lifetrenz.Envelope, error) {
	m.policies = append(m.policies, payload)
	return m.respond()
}

type mockCache struct {
	pc *patientctx.PatientContext
}

func (m *mockCache) Lookup(ctx context.Context, mpi, patientID, appointmentID string) (*patientctx.PatientContext, error) {
	if m.pc == nil {
		return nil, patientctx.ErrNotFound
	}
	cp := *m.pc
	return &cp, nil
}

type mockConfigs struct {
	cfg *tpaconfig.TPAConfig
}

func (m *mockConfigs) Get(ctx context.Context, clinicID, insCode string) (*tpaconfig.TPAConfig, error) {
	if m.cfg == nil {
		return nil, tpaconfig.ErrNotFound
	}
	return m.cfg, nil
}

func (m *mockConfigs) FindByTPAID(ctx context.Context, clinicID, tpaID string) (*tpaconfig.TPAConfig, error) {
	return m.Get(ctx, clinicID, tpaID)
}

func okEnvelope() *lifetrenz.Envelope {
	return &lifetrenz.Envelope{Head: lifetrenz.Head{StatusValue: 1, StatusText: "Success"}}
}

func newTestService(his *mockHIS, cache *mockCache, configs *mockConfigs) *Service {
	return NewService(his, cache, configs, 31, 1, zerolog.Nop())
}

func validOrder() OrderRequest {
	return OrderRequest{
		ClinicID:      "c1",
		PatientID:     100,
		AppointmentID: 200,
		EncounterID:   300,
		TPACode:       "NAS",
	}
}

func TestSaveOrder_ConfigMappingWins(t *testing.T) {
	his := &mockHIS{env: okEnvelope()}
	configs := &mockConfigs{cfg: &tpaconfig.TPAConfig{InsCode: "NAS", HospitalInsuranceMappingID: 55}}
	svc := newTestService(his, &mockCache{}, configs)

	req := validOrder()
	req.InsuranceMappingID = 99
	if _, err := svc.SaveOrder(context.Background(), req); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	payload := his.orders[0]
	if payload.InsuranceMappingID != 55 {
		t.Errorf("InsuranceMappingID = %d, want 55 from config", payload.InsuranceMappingID)
	}
	if payload.CreatedBy != orderCreatedBy || payload.VendorID != orderVendorID {
		t.Errorf("order metadata = %d/%d", payload.CreatedBy, payload.VendorID)
	}
	if payload.SiteID != 31 || payload.CustomerID != 1 {
		t.Errorf("site/customer = %d/%d", payload.SiteID, payload.CustomerID)
	}
}

func TestSaveOrder_FallbackMappingWhenNoConfig(t *testing.T) {
	his := &mockHIS{env: okEnvelope()}
	svc := newTestService(his, &mockCache{}, &mockConfigs{})

	req := validOrder()
	req.InsuranceMappingID = 99
	if _, err := svc.SaveOrder(context.Background(), req); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	if his.orders[0].InsuranceMappingID != 99 {
		t.Errorf("InsuranceMappingID = %d, want request fallback 99", his.orders[0].InsuranceMappingID)
	}
}

func TestSaveOrder_MissingMappingIsBusinessRuleError(t *testing.T) {
	svc := newTestService(&mockHIS{env: okEnvelope()}, &mockCache{}, &mockConfigs{})

	_, err := svc.SaveOrder(context.Background(), validOrder())
	var berr *BusinessRuleError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want BusinessRuleError", err)
	}
	if len(berr.FieldsChecked) == 0 {
		t.Error("expected fields_checked in diagnostic payload")
	}
}

func TestSaveOrder_ResolvesVisitFromCache(t *testing.T) {
	his := &mockHIS{env: okEnvelope()}
	cache := &mockCache{pc: &patientctx.PatientContext{EncounterID: 777, PhysicianID: 42}}
	configs := &mockConfigs{cfg: &tpaconfig.TPAConfig{HospitalInsuranceMappingID: 55}}
	svc := newTestService(his, cache, configs)

	req := validOrder()
	req.EncounterID = 0
	if _, err := svc.SaveOrder(context.Background(), req); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}
	if his.orders[0].EncounterID != 777 || his.orders[0].PhysicianID != 42 {
		t.Errorf("visit ids = %d/%d, want cache values", his.orders[0].EncounterID, his.orders[0].PhysicianID)
	}
}

func TestSaveOrder_UnresolvableEncounter(t *testing.T) {
	configs := &mockConfigs{cfg: &tpaconfig.TPAConfig{HospitalInsuranceMappingID: 55}}
	svc := newTestService(&mockHIS{env: okEnvelope()}, &mockCache{}, configs)

	req := validOrder()
	req.EncounterID = 0
	_, err := svc.SaveOrder(context.Background(), req)
	var berr *BusinessRuleError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want BusinessRuleError", err)
	}
}

func TestSaveOrder_Validation(t *testing.T) {
	svc := newTestService(&mockHIS{}, &mockCache{}, &mockConfigs{})

	_, err := svc.SaveOrder(context.Background(), OrderRequest{ClinicID: "c1"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError", err)
	}
	if len(verr.Missing) < 2 {
		t.Errorf("missing = %v, want patientId and appointmentId listed", verr.Missing)
	}
}

func TestSavePolicy_RequiresPolicyNumber(t *testing.T) {
	configs := &mockConfigs{cfg: &tpaconfig.TPAConfig{HospitalInsuranceMappingID: 55}}
	svc := newTestService(&mockHIS{env: okEnvelope()}, &mockCache{}, configs)

	_, err := svc.SavePolicy(context.Background(), PolicyRequest{
		ClinicID: "c1", PatientID: 100, AppointmentID: 200, TPACode: "NAS",
	})
	var berr *BusinessRuleError
	if !errors.As(err, &berr) {
		t.Fatalf("error = %v, want BusinessRuleError", err)
	}
	if berr.Message != "no active insurance policy" {
		t.Errorf("message = %q", berr.Message)
	}
}

func TestSavePolicy_ConfigMappingWins(t *testing.T) {
	his := &mockHIS{env: okEnvelope()}
	configs := &mockConfigs{cfg: &tpaconfig.TPAConfig{HospitalInsuranceMappingID: 55}}
	svc := newTestService(his, &mockCache{}, configs)

	_, err := svc.SavePolicy(context.Background(), PolicyRequest{
		ClinicID:           "c1",
		PatientID:          100,
		AppointmentID:      200,
		TPACode:            "NAS",
		PolicyNumber:       "POL-9",
		InsuranceMappingID: 99,
	})
	if err != nil {
		t.Fatalf("SavePolicy: %v", err)
	}
	if his.policies[0].InsuranceMappingID != 55 {
		t.Errorf("InsuranceMappingID = %d, want 55 from config", his.policies[0].InsuranceMappingID)
	}
}

func TestUploadAttachment(t *testing.T) {
	his := &mockHIS{env: okEnvelope()}
	cache := &mockCache{pc: &patientctx.PatientContext{EncounterID: 777}}
	svc := newTestService(his, cache, &mockConfigs{})

	_, err := svc.UploadAttachment(context.Background(), AttachmentRequest{
		PatientID:     100,
		AppointmentID: 200,
		FileName:      "eligibility.pdf",
		FileContent:   "JVBERi0xLjQ=",
	})
	if err != nil {
		t.Fatalf("UploadAttachment: %v", err)
	}
	if his.attachments[0].EncounterID != 777 {
		t.Errorf("EncounterID = %d, want cache value", his.attachments[0].EncounterID)
	}

	_, err = svc.UploadAttachment(context.Background(), AttachmentRequest{PatientID: 100, AppointmentID: 200})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("error = %v, want ValidationError for missing file", err)
	}
}
