package tpaconfig

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/internal/upstream/lifetrenz"
	"github.com/clinicbridge/clinicbridge/pkg/retry"
)

// HISClient is the slice of the Lifetrenz client the service needs.
type HISClient interface {
	TPAInsuranceMapping(ctx context.Context, customerSiteID int) (*lifetrenz.Envelope, error)
}

type Service struct {
	repo   Repository
	his    HISClient
	siteID int
	logger zerolog.Logger

	retryAttempts int
	retryDelay    time.Duration
}

func NewService(repo Repository, his HISClient, customerSiteID int, logger zerolog.Logger) *Service {
	return &Service{
		repo:          repo,
		his:           his,
		siteID:        customerSiteID,
		logger:        logger,
		retryAttempts: retry.DefaultAttempts,
		retryDelay:    retry.DefaultInitialDelay,
	}
}

// mappingFields are the four fields required before a config can back an
// eligibility order. ins_payer is useful for name matching but optional.
var mappingFields = []struct {
	name    string
	missing func(*TPAConfig) bool
}{
	{"hospital_insurance_mapping_id", func(c *TPAConfig) bool { return c.HospitalInsuranceMappingID == 0 }},
	{"insurance_id", func(c *TPAConfig) bool { return c.InsuranceID == 0 }},
	{"insurance_type", func(c *TPAConfig) bool { return c.InsuranceType == 0 }},
	{"insurance_name", func(c *TPAConfig) bool { return c.InsuranceName == "" }},
}

// Validate checks a config without throwing: Errors blocks a write, Warnings
// do not. requireMapping turns missing mapping fields into errors; otherwise
// they are reported as warnings.
func (s *Service) Validate(cfg *TPAConfig, requireMapping bool) ValidationResult {
	res := ValidationResult{IsValid: true}

	if cfg.InsCode == "" && cfg.TPAID == "" {
		res.MissingFields = append(res.MissingFields, "ins_code")
		res.Errors = append(res.Errors, "at least one of ins_code or tpa_id is required")
	}

	if cfg.InsuranceType != 0 &&
		cfg.InsuranceType != InsuranceTypeInsurance && cfg.InsuranceType != InsuranceTypeTPA {
		res.Errors = append(res.Errors, fmt.Sprintf("invalid insurance_type: %d", cfg.InsuranceType))
	}

	for _, f := range mappingFields {
		if f.missing(cfg) {
			res.MissingFields = append(res.MissingFields, f.name)
			msg := fmt.Sprintf("missing mapping field %s", f.name)
			if requireMapping {
				res.Errors = append(res.Errors, msg)
			} else {
				res.Warnings = append(res.Warnings, msg)
			}
		}
	}

	if cfg.InsPayer == "" {
		res.MissingFields = append(res.MissingFields, "ins_payer")
		res.Warnings = append(res.Warnings, "missing ins_payer")
	}

	res.IsValid = len(res.Errors) == 0
	return res
}

// Upsert validates and stores a config. The validation result is returned in
// both cases; the write happens only when no errors are present. A config
// sent with only a legacy tpa_id gets it copied into ins_code so the storage
// key is always populated.
func (s *Service) Upsert(ctx context.Context, clinicID string, cfg *TPAConfig, requireMapping bool) (ValidationResult, error) {
	res := s.Validate(cfg, requireMapping)
	if !res.IsValid {
		return res, nil
	}

	if cfg.InsCode == "" {
		cfg.InsCode = cfg.TPAID
	}

	now := time.Now().UTC()
	existing, err := s.repo.Get(ctx, clinicID, cfg.InsCode)
	switch {
	case err == nil:
		cfg.CreatedAt = existing.CreatedAt
	case errors.Is(err, ErrNotFound):
		cfg.CreatedAt = now
	default:
		return res, err
	}
	cfg.UpdatedAt = now

	if err := s.repo.Upsert(ctx, clinicID, cfg); err != nil {
		return res, err
	}
	return res, nil
}

func (s *Service) Get(ctx context.Context, clinicID, insCode string) (*TPAConfig, error) {
	return s.repo.Get(ctx, clinicID, insCode)
}

func (s *Service) List(ctx context.Context, clinicID string) ([]*TPAConfig, error) {
	return s.repo.List(ctx, clinicID)
}

// FindByTPAID resolves a config by its legacy tpa_id, falling back to
// ins_code when the identifier matches neither.
func (s *Service) FindByTPAID(ctx context.Context, clinicID, tpaID string) (*TPAConfig, error) {
	if cfg, err := s.repo.Get(ctx, clinicID, tpaID); err == nil {
		return cfg, nil
	}

	configs, err := s.repo.List(ctx, clinicID)
	if err != nil {
		return nil, err
	}
	for _, cfg := range configs {
		if cfg.TPAID == tpaID {
			return cfg, nil
		}
	}
	return nil, ErrNotFound
}

func (s *Service) Delete(ctx context.Context, clinicID, tpaID string) error {
	cfg, err := s.FindByTPAID(ctx, clinicID, tpaID)
	if err != nil {
		return err
	}
	return s.repo.Delete(ctx, clinicID, cfg.InsCode)
}

// Repair merges missing mapping fields into existing configs from a reference
// list. When reference is nil the cached HIS mapping is used. Returns how
// many configs were updated.
func (s *Service) Repair(ctx context.Context, clinicID string, reference []MappingRow) (int, error) {
	if reference == nil {
		rows, err := s.repo.GetMapping(ctx, clinicID)
		if err != nil {
			return 0, fmt.Errorf("no reference mapping available: %w", err)
		}
		reference = rows
	}

	byCode := make(map[string]MappingRow, len(reference))
	for _, row := range reference {
		if row.InsCode != "" {
			byCode[row.InsCode] = row
		}
	}

	configs, err := s.repo.List(ctx, clinicID)
	if err != nil {
		return 0, err
	}

	repaired := 0
	for _, cfg := range configs {
		row, ok := byCode[cfg.InsCode]
		if !ok {
			continue
		}

		changed := false
		if cfg.HospitalInsuranceMappingID == 0 && row.HospitalInsuranceMappingID != 0 {
			cfg.HospitalInsuranceMappingID = row.HospitalInsuranceMappingID
			changed = true
		}
		if cfg.InsuranceID == 0 && row.InsuranceID != 0 {
			cfg.InsuranceID = row.InsuranceID
			changed = true
		}
		if cfg.InsuranceType == 0 && row.InsuranceType != 0 {
			cfg.InsuranceType = row.InsuranceType
			changed = true
		}
		if cfg.InsuranceName == "" && row.InsuranceName != "" {
			cfg.InsuranceName = row.InsuranceName
			changed = true
		}
		if cfg.InsPayer == "" && row.InsPayer != "" {
			cfg.InsPayer = row.InsPayer
			changed = true
		}

		if !changed {
			continue
		}
		cfg.UpdatedAt = time.Now().UTC()
		if err := s.repo.Upsert(ctx, clinicID, cfg); err != nil {
			return repaired, err
		}
		repaired++
	}

	s.logger.Info().Str("clinic_id", clinicID).Int("repaired", repaired).Msg("tpa config repair")
	return repaired, nil
}

// Diagnose reports mapping-field completeness for every config of a clinic.
func (s *Service) Diagnose(ctx context.Context, clinicID string) ([]Diagnosis, error) {
	configs, err := s.repo.List(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	report := make([]Diagnosis, 0, len(configs))
	for _, cfg := range configs {
		d := Diagnosis{InsCode: cfg.InsCode, TPAName: cfg.TPAName}
		for _, f := range mappingFields {
			if f.missing(cfg) {
				d.MissingFields = append(d.MissingFields, f.name)
			}
		}
		d.ReadyForOrders = len(d.MissingFields) == 0
		report = append(report, d)
	}
	return report, nil
}

// InsuranceNameIndex builds a normalized insurance-name to ins_code map from
// a clinic's configs. insurance_name takes priority, then tpa_name for
// configs without one, then ins_payer for names not yet mapped.
func (s *Service) InsuranceNameIndex(ctx context.Context, clinicID string) (map[string]string, error) {
	configs, err := s.repo.List(ctx, clinicID)
	if err != nil {
		return nil, err
	}

	index := make(map[string]string)
	for _, cfg := range configs {
		if cfg.InsCode == "" {
			continue
		}

		if cfg.InsuranceName != "" {
			index[NormalizeInsuranceName(cfg.InsuranceName)] = cfg.InsCode
		} else if cfg.TPAName != "" {
			name := NormalizeInsuranceName(cfg.TPAName)
			if _, ok := index[name]; !ok {
				index[name] = cfg.InsCode
			}
		}

		if cfg.InsPayer != "" {
			name := NormalizeInsuranceName(cfg.InsPayer)
			if _, ok := index[name]; !ok {
				index[name] = cfg.InsCode
			}
		}
	}
	return index, nil
}

// NormalizeInsuranceName uppercases and trims a display name for matching.
func NormalizeInsuranceName(name string) string {
	return strings.ToUpper(strings.TrimSpace(name))
}

// FetchMapping pulls the TPA-to-insurance mapping list from the HIS and
// caches it for the clinic. This is the one upstream call with observed
// transient failures, so it is wrapped in exponential-backoff retry.
func (s *Service) FetchMapping(ctx context.Context, clinicID string) ([]MappingRow, error) {
	env, err := retry.DoWithResult(ctx, s.retryAttempts, s.retryDelay,
		func() (*lifetrenz.Envelope, error) {
			return s.his.TPAInsuranceMapping(ctx, s.siteID)
		})
	if err != nil {
		return nil, err
	}
	if !env.OK() {
		return nil, fmt.Errorf("fetch tpa mapping: his status %d: %s", env.Head.StatusValue, env.Head.StatusText)
	}

	var rows []MappingRow
	if err := json.Unmarshal(env.Body.Data, &rows); err != nil {
		return nil, fmt.Errorf("decode tpa mapping rows: %w", err)
	}

	if err := s.repo.PutMapping(ctx, clinicID, rows); err != nil {
		return nil, err
	}

	s.logger.Info().Str("clinic_id", clinicID).Int("rows", len(rows)).Msg("tpa mapping cached")
	return rows, nil
}

func (s *Service) CachedMapping(ctx context.Context, clinicID string) ([]MappingRow, error) {
	return s.repo.GetMapping(ctx, clinicID)
}

func (s *Service) DeleteMapping(ctx context.Context, clinicID string) error {
	return s.repo.DeleteMapping(ctx, clinicID)
}
