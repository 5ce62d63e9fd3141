package patientctx

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("patient context not found")

// Repository writes one snapshot under every identifier key it carries, all
// with the same fixed TTL.
type Repository interface {
	Put(ctx context.Context, pc *PatientContext) error
	GetByMPI(ctx context.Context, mpi string) (*PatientContext, error)
	GetByPatientID(ctx context.Context, patientID string) (*PatientContext, error)
	GetByAppointmentID(ctx context.Context, appointmentID string) (*PatientContext, error)
}
