package planmapping

import (
	"context"
	"errors"
)

var ErrNotFound = errors.New("plan mapping not found")

type Repository interface {
	Upsert(ctx context.Context, clinicID string, m *PlanNetworkMapping) error
	Get(ctx context.Context, clinicID, tpaCode, id string) (*PlanNetworkMapping, error)
	ListByTPA(ctx context.Context, clinicID, tpaCode string) ([]*PlanNetworkMapping, error)
	ListAll(ctx context.Context, clinicID string) ([]*PlanNetworkMapping, error)
	Delete(ctx context.Context, clinicID, tpaCode, id string) error
}
