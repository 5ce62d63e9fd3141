package patient

import (
	"context"
	"fmt"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/clinicbridge/clinicbridge/internal/domain/patientctx"
	"github.com/clinicbridge/clinicbridge/internal/upstream/lifetrenz"
)

// HISClient is the slice of the Lifetrenz client the service needs.
type HISClient interface {
	PatientDetails(ctx context.Context, patientID int) (*lifetrenz.Envelope, error)
	SearchByMPI(ctx context.Context, mpi string) (*lifetrenz.Envelope, error)
	SearchByPhone(ctx context.Context, phone string) (*lifetrenz.Envelope, error)
	SearchAppointments(ctx context.Context, patientID int) (*lifetrenz.Envelope, error)
	InsuranceDetails(ctx context.Context, patientID int) (*lifetrenz.Envelope, error)
}

// ContextCache mirrors lookup results into the patient context cache.
type ContextCache interface {
	SaveAsync(in *patientctx.PatientContext)
}

// Service proxies patient lookups to the HIS and passes the {head, body}
// envelope through untouched.
type Service struct {
	his    HISClient
	cache  ContextCache
	logger zerolog.Logger
}

func NewService(his HISClient, cache ContextCache, logger zerolog.Logger) *Service {
	return &Service{his: his, cache: cache, logger: logger}
}

func (s *Service) Details(ctx context.Context, patientID int) (*lifetrenz.Envelope, error) {
	if patientID <= 0 {
		return nil, fmt.Errorf("patientId must be a positive number")
	}
	return s.his.PatientDetails(ctx, patientID)
}

func (s *Service) SearchMPI(ctx context.Context, mpi string) (*lifetrenz.Envelope, error) {
	if mpi == "" {
		return nil, fmt.Errorf("mpi is required")
	}
	return s.his.SearchByMPI(ctx, mpi)
}

func (s *Service) SearchPhone(ctx context.Context, phone string) (*lifetrenz.Envelope, error) {
	if phone == "" {
		return nil, fmt.Errorf("phone is required")
	}
	return s.his.SearchByPhone(ctx, phone)
}

func (s *Service) SearchAppointments(ctx context.Context, patientID int) (*lifetrenz.Envelope, error) {
	if patientID <= 0 {
		return nil, fmt.Errorf("patientId must be a positive number")
	}
	return s.his.SearchAppointments(ctx, patientID)
}

// InsuranceDetails fetches the patient's insurance block and, on success,
// mirrors the raw payload into the context cache off the request path.
func (s *Service) InsuranceDetails(ctx context.Context, patientID int) (*lifetrenz.Envelope, error) {
	if patientID <= 0 {
		return nil, fmt.Errorf("patientId must be a positive number")
	}

	env, err := s.his.InsuranceDetails(ctx, patientID)
	if err != nil {
		return nil, err
	}

	if env.OK() && len(env.Body.Data) > 0 {
		s.cache.SaveAsync(&patientctx.PatientContext{
			PatientID: strconv.Itoa(patientID),
			Insurance: env.Body.Data,
		})
	}
	return env, nil
}
