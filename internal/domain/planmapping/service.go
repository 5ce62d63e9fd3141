package planmapping

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type Service struct {
	repo   Repository
	logger zerolog.Logger
}

func NewService(repo Repository, logger zerolog.Logger) *Service {
	return &Service{repo: repo, logger: logger}
}

func validateMapping(m *PlanNetworkMapping) error {
	if m.TPACode == "" {
		return fmt.Errorf("tpa_code is required")
	}
	if m.LTPlanID == "" {
		return fmt.Errorf("lt_plan_id is required")
	}
	if m.MantysNetworkName == "" {
		return fmt.Errorf("mantys_network_name is required")
	}
	return nil
}

// Create stores a new mapping under a generated id. If the record claims the
// default slot, the previously-persisted default for the same (TPA, network)
// is demoted first. This is a read-modify-write pass with no lock; concurrent
// writers for the same network can race (see the bulk import note below).
func (s *Service) Create(ctx context.Context, clinicID string, m *PlanNetworkMapping) error {
	if err := validateMapping(m); err != nil {
		return err
	}

	m.ID = uuid.NewString()
	now := time.Now().UTC()
	m.CreatedAt = now
	m.UpdatedAt = now

	if m.IsDefault {
		if err := s.demoteExistingDefault(ctx, clinicID, m.TPACode, m.MantysNetworkName, m.ID); err != nil {
			return err
		}
	}
	return s.repo.Upsert(ctx, clinicID, m)
}

func (s *Service) Update(ctx context.Context, clinicID string, m *PlanNetworkMapping) error {
	if m.ID == "" {
		return fmt.Errorf("id is required")
	}
	if err := validateMapping(m); err != nil {
		return err
	}

	existing, err := s.repo.Get(ctx, clinicID, m.TPACode, m.ID)
	if err != nil {
		return err
	}
	m.CreatedAt = existing.CreatedAt
	m.UpdatedAt = time.Now().UTC()

	if m.IsDefault && !existing.IsDefault {
		if err := s.demoteExistingDefault(ctx, clinicID, m.TPACode, m.MantysNetworkName, m.ID); err != nil {
			return err
		}
	}
	return s.repo.Upsert(ctx, clinicID, m)
}

// SetDefault promotes one mapping to be its network's default, demoting any
// sibling that currently holds the slot.
func (s *Service) SetDefault(ctx context.Context, clinicID, tpaCode, id string) (*PlanNetworkMapping, error) {
	m, err := s.repo.Get(ctx, clinicID, tpaCode, id)
	if err != nil {
		return nil, err
	}

	if err := s.demoteExistingDefault(ctx, clinicID, tpaCode, m.MantysNetworkName, id); err != nil {
		return nil, err
	}

	m.IsDefault = true
	m.UpdatedAt = time.Now().UTC()
	if err := s.repo.Upsert(ctx, clinicID, m); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Service) demoteExistingDefault(ctx context.Context, clinicID, tpaCode, network, keepID string) error {
	siblings, err := s.repo.ListByTPA(ctx, clinicID, tpaCode)
	if err != nil {
		return err
	}
	for _, sib := range siblings {
		if sib.ID == keepID || !sib.IsDefault || sib.MantysNetworkName != network {
			continue
		}
		sib.IsDefault = false
		sib.UpdatedAt = time.Now().UTC()
		if err := s.repo.Upsert(ctx, clinicID, sib); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) Get(ctx context.Context, clinicID, tpaCode, id string) (*PlanNetworkMapping, error) {
	return s.repo.Get(ctx, clinicID, tpaCode, id)
}

func (s *Service) List(ctx context.Context, clinicID, tpaCode string) ([]*PlanNetworkMapping, error) {
	if tpaCode != "" {
		return s.repo.ListByTPA(ctx, clinicID, tpaCode)
	}
	return s.repo.ListAll(ctx, clinicID)
}

func (s *Service) Delete(ctx context.Context, clinicID, tpaCode, id string) error {
	return s.repo.Delete(ctx, clinicID, tpaCode, id)
}

// BulkImport reconciles a batch of mapping records, possibly spanning
// multiple TPAs of one clinic:
//
//  1. records missing tpa_code, lt_plan_id or mantys_network_name are
//     counted as errors and dropped;
//  2. within the batch, the first default per (TPA, network) wins and later
//     ones are demoted;
//  3. surviving records are persisted;
//  4. previously-persisted defaults that conflict with a newly-imported
//     default are demoted.
//
// External sources re-send duplicate defaults across imports, so both passes
// are needed. The cross-batch pass is read-modify-write without a lock;
// concurrent imports for the same network can both believe they hold the
// sole default. That race exists in the current deployment's data flow and
// is deliberately left as is rather than papered over with locking.
func (s *Service) BulkImport(ctx context.Context, clinicID string, records []PlanNetworkMapping) (ImportResult, error) {
	var res ImportResult

	// Pass 1 and 2: validate, then dedupe defaults within the batch.
	type groupKey struct{ tpa, network string }
	seenDefault := make(map[groupKey]bool)
	surviving := make([]*PlanNetworkMapping, 0, len(records))

	for i := range records {
		rec := records[i]
		if err := validateMapping(&rec); err != nil {
			res.Errors++
			continue
		}

		if rec.IsDefault {
			key := groupKey{rec.TPACode, rec.MantysNetworkName}
			if seenDefault[key] {
				rec.IsDefault = false
				res.DefaultsFixed++
			} else {
				seenDefault[key] = true
			}
		}
		surviving = append(surviving, &rec)
	}

	// Pass 3: persist. A storage failure aborts the whole batch; no
	// partial-commit guarantee is provided.
	now := time.Now().UTC()
	for _, rec := range surviving {
		if rec.ID == "" {
			rec.ID = uuid.NewString()
			rec.CreatedAt = now
		}
		rec.UpdatedAt = now
		if err := s.repo.Upsert(ctx, clinicID, rec); err != nil {
			return res, fmt.Errorf("bulk import aborted: %w", err)
		}
		res.Imported++
	}

	// Pass 4: demote persisted defaults that conflict with the batch.
	importedIDs := make(map[string]bool, len(surviving))
	for _, rec := range surviving {
		importedIDs[rec.ID] = true
	}
	for key := range seenDefault {
		siblings, err := s.repo.ListByTPA(ctx, clinicID, key.tpa)
		if err != nil {
			return res, fmt.Errorf("bulk import reconcile: %w", err)
		}
		for _, sib := range siblings {
			if importedIDs[sib.ID] || !sib.IsDefault || sib.MantysNetworkName != key.network {
				continue
			}
			sib.IsDefault = false
			sib.UpdatedAt = now
			if err := s.repo.Upsert(ctx, clinicID, sib); err != nil {
				return res, fmt.Errorf("bulk import reconcile: %w", err)
			}
			res.DefaultsFixed++
		}
	}

	s.logger.Info().
		Str("clinic_id", clinicID).
		Int("imported", res.Imported).
		Int("errors", res.Errors).
		Int("defaults_fixed", res.DefaultsFixed).
		Msg("plan mapping bulk import")
	return res, nil
}
