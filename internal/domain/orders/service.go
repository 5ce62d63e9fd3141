package orders

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/internal/domain/patientctx"
	"github.com/clinicbridge/clinicbridge/internal/domain/tpaconfig"
	"github.com/clinicbridge/clinicbridge/internal/upstream/lifetrenz"
)

// HIS order metadata the upstream API expects on every write. The source
// system hardcodes these per deployment; they stay named here until the HIS
// team confirms whether they vary.
const (
	orderCreatedBy = 13295
	orderVendorID  = 24
)

// HISClient is the slice of the Lifetrenz client the service needs.
type HISClient interface {
	SaveEligibilityOrder(ctx context.Context, payload lifetrenz.OrderPayload) (*lifetrenz.Envelope, error)
	UploadAttachment(ctx context.Context, payload lifetrenz.AttachmentPayload) (*lifetrenz.Envelope, error)
	SavePolicy(ctx context.Context, payload lifetrenz.PolicyPayload) (*lifetrenz.Envelope, error)
}

// ContextCache resolves encounter and physician identifiers gathered by
// earlier lookups.
type ContextCache interface {
	Lookup(ctx context.Context, mpi, patientID, appointmentID string) (*patientctx.PatientContext, error)
}

// TPAConfigs resolves the clinic's insurance mapping for a TPA code.
type TPAConfigs interface {
	Get(ctx context.Context, clinicID, insCode string) (*tpaconfig.TPAConfig, error)
	FindByTPAID(ctx context.Context, clinicID, tpaID string) (*tpaconfig.TPAConfig, error)
}

// ValidationError carries the missing request fields.
type ValidationError struct {
	Missing []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("missing required fields: %v", e.Missing)
}

// BusinessRuleError reports a rule failure with the fields that were
// consulted, so the operator can see why the lookup came up empty.
type BusinessRuleError struct {
	Message       string   `json:"error"`
	FieldsChecked []string `json:"fields_checked"`
	Detail        string   `json:"detail,omitempty"`
}

func (e *BusinessRuleError) Error() string {
	return e.Message
}

type Service struct {
	his        HISClient
	cache      ContextCache
	configs    TPAConfigs
	siteID     int
	customerID int
	logger     zerolog.Logger
}

func NewService(his HISClient, cache ContextCache, configs TPAConfigs, siteID, customerID int, logger zerolog.Logger) *Service {
	return &Service{
		his:        his,
		cache:      cache,
		configs:    configs,
		siteID:     siteID,
		customerID: customerID,
		logger:     logger,
	}
}

// OrderRequest creates an eligibility order in the HIS. EncounterID,
// PhysicianID and InsuranceMappingID may be omitted; the service resolves
// them from the context cache and the TPA configuration.
type OrderRequest struct {
	ClinicID      string `json:"clinicId"`
	PatientID     int    `json:"patientId"`
	AppointmentID int    `json:"appointmentId"`
	EncounterID   int    `json:"encounterId,omitempty"`
	PhysicianID   int    `json:"physicianId,omitempty"`

	TPACode            string `json:"tpaCode"`
	InsuranceMappingID int    `json:"insuranceMappingId,omitempty"`
	Remarks            string `json:"remarks,omitempty"`
}

// AttachmentRequest uploads an eligibility document against an appointment.
type AttachmentRequest struct {
	ClinicID      string `json:"clinicId"`
	PatientID     int    `json:"patientId"`
	AppointmentID int    `json:"appointmentId"`
	EncounterID   int    `json:"encounterId,omitempty"`

	FileName     string `json:"fileName"`
	FileContent  string `json:"fileContent"`
	DocumentType string `json:"documentType,omitempty"`
}

// PolicyRequest writes the verified policy back to the HIS.
type PolicyRequest struct {
	ClinicID      string `json:"clinicId"`
	PatientID     int    `json:"patientId"`
	AppointmentID int    `json:"appointmentId"`
	EncounterID   int    `json:"encounterId,omitempty"`

	TPACode            string `json:"tpaCode"`
	InsuranceMappingID int    `json:"insuranceMappingId,omitempty"`
	PolicyNumber       string `json:"policyNumber"`
	NetworkName        string `json:"networkName,omitempty"`
	ValidFrom          string `json:"validFrom,omitempty"`
	ValidTo            string `json:"validTo,omitempty"`
}

func requireIDs(patientID, appointmentID int, extra map[string]string) error {
	var missing []string
	if patientID <= 0 {
		missing = append(missing, "patientId")
	}
	if appointmentID <= 0 {
		missing = append(missing, "appointmentId")
	}
	for field, value := range extra {
		if value == "" {
			missing = append(missing, field)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Missing: missing}
	}
	return nil
}

// resolveVisit fills encounter and physician ids from the context cache when
// the request leaves them empty. Cache misses are soft; the ids may still
// arrive on the request itself.
func (s *Service) resolveVisit(ctx context.Context, patientID, appointmentID int, encounterID, physicianID *int) {
	if *encounterID > 0 && (physicianID == nil || *physicianID > 0) {
		return
	}

	pc, err := s.cache.Lookup(ctx, "", strconv.Itoa(patientID), strconv.Itoa(appointmentID))
	if err != nil {
		if !errors.Is(err, patientctx.ErrNotFound) {
			s.logger.Warn().Err(err).Int("patient_id", patientID).Msg("context cache lookup failed")
		}
		return
	}
	if *encounterID == 0 {
		*encounterID = pc.EncounterID
	}
	if physicianID != nil && *physicianID == 0 {
		*physicianID = pc.PhysicianID
	}
}

// resolveMappingID returns the insurance mapping id for the order. The TPA
// configuration value always wins; the request's own value is only a
// fallback for codes with no stored config.
func (s *Service) resolveMappingID(ctx context.Context, clinicID, tpaCode string, fallback int) (int, error) {
	cfg, err := s.configs.Get(ctx, clinicID, tpaCode)
	if errors.Is(err, tpaconfig.ErrNotFound) {
		cfg, err = s.configs.FindByTPAID(ctx, clinicID, tpaCode)
	}
	if err != nil && !errors.Is(err, tpaconfig.ErrNotFound) {
		return 0, err
	}

	if cfg != nil && cfg.HospitalInsuranceMappingID != 0 {
		return cfg.HospitalInsuranceMappingID, nil
	}
	if fallback != 0 {
		return fallback, nil
	}
	return 0, &BusinessRuleError{
		Message:       "missing insurance mapping ID",
		FieldsChecked: []string{"tpa_config.hospital_insurance_mapping_id", "request.insuranceMappingId"},
		Detail:        fmt.Sprintf("no mapping found for clinic %s, tpa code %q", clinicID, tpaCode),
	}
}

func (s *Service) SaveOrder(ctx context.Context, req OrderRequest) (*lifetrenz.Envelope, error) {
	if err := requireIDs(req.PatientID, req.AppointmentID, map[string]string{
		"clinicId": req.ClinicID,
		"tpaCode":  req.TPACode,
	}); err != nil {
		return nil, err
	}

	s.resolveVisit(ctx, req.PatientID, req.AppointmentID, &req.EncounterID, &req.PhysicianID)
	if req.EncounterID == 0 {
		return nil, &BusinessRuleError{
			Message:       "encounter could not be resolved",
			FieldsChecked: []string{"request.encounterId", "patient_context.encounterId"},
		}
	}

	mappingID, err := s.resolveMappingID(ctx, req.ClinicID, req.TPACode, req.InsuranceMappingID)
	if err != nil {
		return nil, err
	}

	return s.his.SaveEligibilityOrder(ctx, lifetrenz.OrderPayload{
		PatientID:          req.PatientID,
		AppointmentID:      req.AppointmentID,
		EncounterID:        req.EncounterID,
		PhysicianID:        req.PhysicianID,
		InsuranceMappingID: mappingID,
		Remarks:            req.Remarks,
		CreatedBy:          orderCreatedBy,
		VendorID:           orderVendorID,
		SiteID:             s.siteID,
		CustomerID:         s.customerID,
	})
}

func (s *Service) UploadAttachment(ctx context.Context, req AttachmentRequest) (*lifetrenz.Envelope, error) {
	if err := requireIDs(req.PatientID, req.AppointmentID, map[string]string{
		"fileName":    req.FileName,
		"fileContent": req.FileContent,
	}); err != nil {
		return nil, err
	}

	s.resolveVisit(ctx, req.PatientID, req.AppointmentID, &req.EncounterID, nil)

	return s.his.UploadAttachment(ctx, lifetrenz.AttachmentPayload{
		PatientID:     req.PatientID,
		AppointmentID: req.AppointmentID,
		EncounterID:   req.EncounterID,
		FileName:      req.FileName,
		FileContent:   req.FileContent,
		DocumentType:  req.DocumentType,
		CreatedBy:     orderCreatedBy,
		SiteID:        s.siteID,
		CustomerID:    s.customerID,
	})
}

func (s *Service) SavePolicy(ctx context.Context, req PolicyRequest) (*lifetrenz.Envelope, error) {
	if err := requireIDs(req.PatientID, req.AppointmentID, map[string]string{
		"clinicId": req.ClinicID,
		"tpaCode":  req.TPACode,
	}); err != nil {
		return nil, err
	}
	if req.PolicyNumber == "" {
		return nil, &BusinessRuleError{
			Message:       "no active insurance policy",
			FieldsChecked: []string{"request.policyNumber"},
			Detail:        "a verified policy number is required before it can be saved to the HIS",
		}
	}

	s.resolveVisit(ctx, req.PatientID, req.AppointmentID, &req.EncounterID, nil)

	mappingID, err := s.resolveMappingID(ctx, req.ClinicID, req.TPACode, req.InsuranceMappingID)
	if err != nil {
		return nil, err
	}

	return s.his.SavePolicy(ctx, lifetrenz.PolicyPayload{
		PatientID:          req.PatientID,
		AppointmentID:      req.AppointmentID,
		EncounterID:        req.EncounterID,
		InsuranceMappingID: mappingID,
		PolicyNumber:       req.PolicyNumber,
		NetworkName:        req.NetworkName,
		ValidFrom:          req.ValidFrom,
		ValidTo:            req.ValidTo,
		CreatedBy:          orderCreatedBy,
		VendorID:           orderVendorID,
		SiteID:             s.siteID,
		CustomerID:         s.customerID,
	})
}
