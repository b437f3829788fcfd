package stores

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
)

const integrationKind = "Integration"

type integrationEntity struct {
	UserID       string
	Username     string
	AccessToken  string `datastore:",noindex"`
	RefreshToken string `datastore:",noindex"`
	TokenType    string `datastore:",noindex"`
	Scope        string `datastore:",noindex"`
	AvatarURL    string `datastore:",noindex"`
	ProfileURL   string `datastore:",noindex"`
	Email        string `datastore:",noindex"`
	Name         string `datastore:",noindex"`
	ConnectedAt  time.Time
	LastSyncedAt time.Time
	IsActive     bool
	LastRun      []byte `datastore:",noindex"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func toIntegrationEntity(i model.Integration) (*integrationEntity, error) {
	e := &integrationEntity{
		UserID:       i.UserID.String(),
		Username:     i.Username,
		AccessToken:  i.AccessToken,
		RefreshToken: i.RefreshToken,
		TokenType:    i.TokenType,
		Scope:        i.Scope,
		AvatarURL:    i.AvatarURL,
		ProfileURL:   i.ProfileURL,
		Email:        i.Email,
		Name:         i.Name,
		ConnectedAt:  i.ConnectedAt,
		IsActive:     i.IsActive,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
	if i.LastSyncedAt != nil {
		e.LastSyncedAt = *i.LastSyncedAt
	}
	if i.LastRun != nil {
		data, err := json.Marshal(i.LastRun)
		if err != nil {
			return nil, err
		}
		e.LastRun = data
	}
	return e, nil
}

func (e *integrationEntity) model() (*model.Integration, error) {
	i := &model.Integration{
		UserID:       model.UserId(e.UserID),
		Username:     e.Username,
		AccessToken:  e.AccessToken,
		RefreshToken: e.RefreshToken,
		TokenType:    e.TokenType,
		Scope:        e.Scope,
		AvatarURL:    e.AvatarURL,
		ProfileURL:   e.ProfileURL,
		Email:        e.Email,
		Name:         e.Name,
		ConnectedAt:  e.ConnectedAt,
		IsActive:     e.IsActive,
		CreatedAt:    e.CreatedAt,
		UpdatedAt:    e.UpdatedAt,
	}
	if !e.LastSyncedAt.IsZero() {
		t := e.LastSyncedAt
		i.LastSyncedAt = &t
	}
	if len(e.LastRun) > 0 {
		var run model.RunSummary
		if err := json.Unmarshal(e.LastRun, &run); err != nil {
			return nil, err
		}
		i.LastRun = &run
	}
	return i, nil
}

type IntegrationDataStore struct {
	client *datastore.Client
}

func NewIntegrationDataStore(ctx context.Context, client *datastore.Client) *IntegrationDataStore {
	return &IntegrationDataStore{client: client}
}

// Close closes the underlying datastore client.
func (s *IntegrationDataStore) Close() error {
	return s.client.Close()
}

func (s *IntegrationDataStore) integrationKey(userID model.UserId) *datastore.Key {
	return datastore.NameKey(integrationKind, userID.String(), nil)
}

func (s *IntegrationDataStore) GetIntegration(ctx context.Context, userID model.UserId) (*model.Integration, error) {
	var e integrationEntity
	err := s.client.Get(ctx, s.integrationKey(userID), &e)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return nil, server.ErrIntegrationNotFound
	}
	if err != nil {
		return nil, err
	}
	return e.model()
}

func (s *IntegrationDataStore) UpsertIntegration(ctx context.Context, integration model.Integration) error {
	key := s.integrationKey(integration.UserID)
	_, err := s.client.RunInTransaction(ctx, func(tx *datastore.Transaction) error {
		var existing integrationEntity
		err := tx.Get(key, &existing)
		if err != nil && !errors.Is(err, datastore.ErrNoSuchEntity) {
			return err
		}
		if err == nil && !existing.CreatedAt.IsZero() {
			integration.CreatedAt = existing.CreatedAt
		}
		e, err := toIntegrationEntity(integration)
		if err != nil {
			return err
		}
		_, err = tx.Put(key, e)
		return err
	})
	return err
}

func (s *IntegrationDataStore) UpdateIntegration(ctx context.Context, userID model.UserId, updateFn func(model.Integration) (model.Integration, error)) error {
	key := s.integrationKey(userID)
	tx, err := s.client.NewTransaction(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var e integrationEntity
	err = tx.Get(key, &e)
	if errors.Is(err, datastore.ErrNoSuchEntity) {
		return server.ErrIntegrationNotFound
	}
	if err != nil {
		return err
	}
	current, err := e.model()
	if err != nil {
		return err
	}
	updated, err := updateFn(*current)
	if err != nil {
		return err
	}
	if updated.UserID != userID {
		return server.ErrUserIDChanged
	}
	ue, err := toIntegrationEntity(updated)
	if err != nil {
		return err
	}
	if _, err := tx.Put(key, ue); err != nil {
		return err
	}
	_, err = tx.Commit()
	return err
}

func (s *IntegrationDataStore) DeleteIntegration(ctx context.Context, userID model.UserId) error {
	key := s.integrationKey(userID)
	var e integrationEntity
	if err := s.client.Get(ctx, key, &e); errors.Is(err, datastore.ErrNoSuchEntity) {
		return server.ErrIntegrationNotFound
	} else if err != nil {
		return err
	}
	return s.client.Delete(ctx, key)
}

func (s *IntegrationDataStore) ListIntegrations(ctx context.Context, activeOnly bool) ([]model.Integration, error) {
	q := datastore.NewQuery(integrationKind)
	if activeOnly {
		q = q.FilterField("IsActive", "=", true)
	}
	var entities []integrationEntity
	if _, err := s.client.GetAll(ctx, q, &entities); err != nil {
		return nil, err
	}
	out := make([]model.Integration, 0, len(entities))
	for i := range entities {
		m, err := entities[i].model()
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, nil
}

var _ server.IntegrationStore = (*IntegrationDataStore)(nil)
