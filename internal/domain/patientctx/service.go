package patientctx

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"
)

var ErrNoIdentifier = errors.New("at least one of mpi, patientId or appointmentId is required")

// Enqueuer decouples cache population from the request path. The task
// runner satisfies it.
type Enqueuer interface {
	Submit(name string, fn func(ctx context.Context) error) error
}

type Service struct {
	repo   Repository
	queue  Enqueuer
	logger zerolog.Logger
}

func NewService(repo Repository, queue Enqueuer, logger zerolog.Logger) *Service {
	return &Service{repo: repo, queue: queue, logger: logger}
}

// Lookup resolves a snapshot by whichever identifier is set, trying mpi,
// then patient id, then appointment id.
func (s *Service) Lookup(ctx context.Context, mpi, patientID, appointmentID string) (*PatientContext, error) {
	if mpi != "" {
		if pc, err := s.repo.GetByMPI(ctx, mpi); err == nil {
			return pc, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if patientID != "" {
		if pc, err := s.repo.GetByPatientID(ctx, patientID); err == nil {
			return pc, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	if appointmentID != "" {
		if pc, err := s.repo.GetByAppointmentID(ctx, appointmentID); err == nil {
			return pc, nil
		} else if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Save merges the incoming snapshot over whatever the cache already holds
// for any of its identifiers, then rewrites every key. Fields the caller
// leaves empty carry forward.
func (s *Service) Save(ctx context.Context, in *PatientContext) (*PatientContext, error) {
	if !in.HasKey() {
		return nil, ErrNoIdentifier
	}

	current, err := s.Lookup(ctx, in.MPI, in.PatientID, in.AppointmentID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		current = &PatientContext{}
	}

	current.merge(in)
	current.UpdatedAt = time.Now()
	if err := s.repo.Put(ctx, current); err != nil {
		return nil, err
	}
	return current, nil
}

// SaveAsync queues the merge-and-write off the request path. Cache writes
// are soft: a full queue or a failed write is logged and dropped.
func (s *Service) SaveAsync(in *PatientContext) {
	cp := *in
	err := s.queue.Submit("patient-context-save", func(ctx context.Context) error {
		_, err := s.Save(ctx, &cp)
		return err
	})
	if err != nil {
		s.logger.Warn().Err(err).Msg("could not queue patient context write")
	}
}
