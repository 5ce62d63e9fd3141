package catalog

import (
	"context"
	"fmt"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Put(ctx context.Context, kind Kind, clinicID, tpaCode string, items []Item) error {
	if !validKinds[kind] {
		return fmt.Errorf("unknown collection kind: %s", kind)
	}
	if len(items) == 0 {
		return fmt.Errorf("items is required")
	}
	for i, item := range items {
		if item.Name == "" {
			return fmt.Errorf("item %d: name is required", i)
		}
	}
	return s.repo.Put(ctx, kind, clinicID, tpaCode, items)
}

func (s *Service) Get(ctx context.Context, kind Kind, clinicID, tpaCode string) ([]Item, error) {
	if !validKinds[kind] {
		return nil, fmt.Errorf("unknown collection kind: %s", kind)
	}
	return s.repo.Get(ctx, kind, clinicID, tpaCode)
}

func (s *Service) Delete(ctx context.Context, kind Kind, clinicID, tpaCode string) error {
	if !validKinds[kind] {
		return fmt.Errorf("unknown collection kind: %s", kind)
	}
	return s.repo.Delete(ctx, kind, clinicID, tpaCode)
}
