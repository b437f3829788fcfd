package stores

import (
	"bytes"
	"context"
	"encoding/json"

	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
	"go.etcd.io/bbolt"
)

var integrationsBucket = []byte("integrations")

type BoltIntegrationStore struct {
	db *bbolt.DB
}

func NewBoltIntegrationStore(db *bbolt.DB) *BoltIntegrationStore {
	return &BoltIntegrationStore{db: db}
}

func (s *BoltIntegrationStore) GetIntegration(ctx context.Context, userID model.UserId) (*model.Integration, error) {
	var integration model.Integration
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(integrationsBucket)
		if bucket == nil {
			return server.ErrIntegrationNotFound
		}
		val := bucket.Get([]byte(userID))
		if val == nil {
			return server.ErrIntegrationNotFound
		}
		return json.Unmarshal(val, &integration)
	})
	if err != nil {
		return nil, err
	}
	return &integration, nil
}

func (s *BoltIntegrationStore) UpsertIntegration(ctx context.Context, integration model.Integration) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket, err := tx.CreateBucketIfNotExists(integrationsBucket)
		if err != nil {
			return err
		}
		if val := bucket.Get([]byte(integration.UserID)); val != nil {
			var existing model.Integration
			if err := json.Unmarshal(val, &existing); err == nil && !existing.CreatedAt.IsZero() {
				integration.CreatedAt = existing.CreatedAt
			}
		}
		data, err := json.Marshal(integration)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(integration.UserID), data)
	})
}

func (s *BoltIntegrationStore) UpdateIntegration(ctx context.Context, userID model.UserId, updateFn func(model.Integration) (model.Integration, error)) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(integrationsBucket)
		if bucket == nil {
			return server.ErrIntegrationNotFound
		}
		val := bucket.Get([]byte(userID))
		if val == nil {
			return server.ErrIntegrationNotFound
		}
		var integration model.Integration
		if err := json.Unmarshal(val, &integration); err != nil {
			return err
		}
		updated, err := updateFn(integration)
		if err != nil {
			return err
		}
		if updated.UserID != userID {
			return server.ErrUserIDChanged
		}
		data, err := json.Marshal(updated)
		if err != nil {
			return err
		}
		return bucket.Put([]byte(userID), data)
	})
}

func (s *BoltIntegrationStore) DeleteIntegration(ctx context.Context, userID model.UserId) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(integrationsBucket)
		if bucket == nil || bucket.Get([]byte(userID)) == nil {
			return server.ErrIntegrationNotFound
		}
		return bucket.Delete([]byte(userID))
	})
}

func (s *BoltIntegrationStore) ListIntegrations(ctx context.Context, activeOnly bool) ([]model.Integration, error) {
	out := []model.Integration{}
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(integrationsBucket)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var i model.Integration
			if err := json.Unmarshal(v, &i); err != nil {
				return err
			}
			if activeOnly && !i.IsActive {
				return nil
			}
			out = append(out, i)
			return nil
		})
	})
	return out, err
}

// scanPrefix calls fn for every key in bucket starting with prefix, in key order.
func scanPrefix(bucket *bbolt.Bucket, prefix []byte, fn func(k, v []byte) error) error {
	c := bucket.Cursor()
	for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
		if err := fn(k, v); err != nil {
			return err
		}
	}
	return nil
}

var _ server.IntegrationStore = (*BoltIntegrationStore)(nil)
