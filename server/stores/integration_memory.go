package stores

import (
	"context"
	"sort"
	"sync"

	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
)

type InMemoryIntegrationStore struct {
	mu           sync.RWMutex
	integrations map[model.UserId]model.Integration
}

func NewInMemoryIntegrationStore() *InMemoryIntegrationStore {
	return &InMemoryIntegrationStore{integrations: make(map[model.UserId]model.Integration)}
}

func (s *InMemoryIntegrationStore) GetIntegration(ctx context.Context, userID model.UserId) (*model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.integrations[userID]
	if !ok {
		return nil, server.ErrIntegrationNotFound
	}
	return &i, nil
}

func (s *InMemoryIntegrationStore) UpsertIntegration(ctx context.Context, integration model.Integration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.integrations[integration.UserID]; ok && !existing.CreatedAt.IsZero() {
		integration.CreatedAt = existing.CreatedAt
	}
	s.integrations[integration.UserID] = integration
	return nil
}

func (s *InMemoryIntegrationStore) UpdateIntegration(ctx context.Context, userID model.UserId, updateFn func(model.Integration) (model.Integration, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.integrations[userID]
	if !ok {
		return server.ErrIntegrationNotFound
	}
	updated, err := updateFn(i)
	if err != nil {
		return err
	}
	if updated.UserID != userID {
		return server.ErrUserIDChanged
	}
	s.integrations[userID] = updated
	return nil
}

func (s *InMemoryIntegrationStore) DeleteIntegration(ctx context.Context, userID model.UserId) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.integrations[userID]; !ok {
		return server.ErrIntegrationNotFound
	}
	delete(s.integrations, userID)
	return nil
}

func (s *InMemoryIntegrationStore) ListIntegrations(ctx context.Context, activeOnly bool) ([]model.Integration, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []model.Integration{}
	for _, i := range s.integrations {
		if activeOnly && !i.IsActive {
			continue
		}
		out = append(out, i)
	}
	sort.Slice(out, func(a, b int) bool { return out[a].UserID < out[b].UserID })
	return out, nil
}

var _ server.IntegrationStore = (*InMemoryIntegrationStore)(nil)
