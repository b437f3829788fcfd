package stores

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/datastore"
	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
)

// maxBatch is the datastore limit on entities per multi call.
const maxBatch = 500

type recordEntity struct {
	UserID   string
	Parts    []string `datastore:",noindex"`
	Payload  []byte   `datastore:",noindex"`
	SyncedAt time.Time
}

// RecordDataStore stores each collection as its own datastore kind, named by Key.ID.
type RecordDataStore struct {
	client *datastore.Client
}

func NewRecordDataStore(ctx context.Context, client *datastore.Client) *RecordDataStore {
	return &RecordDataStore{client: client}
}

// Close closes the underlying datastore client.
func (s *RecordDataStore) Close() error {
	return s.client.Close()
}

func (s *RecordDataStore) recordKey(key model.Key) *datastore.Key {
	return datastore.NameKey(key.Kind.Collection(), key.ID(), nil)
}

func toRecordEntity(r model.Record) *recordEntity {
	return &recordEntity{
		UserID:   r.Key.UserID.String(),
		Parts:    r.Key.Parts,
		Payload:  r.Payload,
		SyncedAt: r.SyncedAt,
	}
}

func (e *recordEntity) model(kind model.Kind) model.Record {
	return model.Record{
		Key:      model.Key{Kind: kind, UserID: model.UserId(e.UserID), Parts: e.Parts},
		Payload:  e.Payload,
		SyncedAt: e.SyncedAt,
	}
}

func (s *RecordDataStore) UpsertOne(ctx context.Context, record model.Record) error {
	if !record.Kind().Valid() {
		return server.ErrUnknownCollection
	}
	_, err := s.client.Put(ctx, s.recordKey(record.Key), toRecordEntity(record))
	return err
}

func (s *RecordDataStore) UpsertMany(ctx context.Context, kind model.Kind, records []model.Record) (server.BatchResult, error) {
	if !kind.Valid() {
		return server.BatchResult{}, server.ErrUnknownCollection
	}
	var res server.BatchResult
	var valid []model.Record
	for _, r := range records {
		if r.Kind() != kind {
			res.Errors = append(res.Errors, server.ItemError{Key: r.Key, Err: server.ErrUnknownCollection})
			continue
		}
		valid = append(valid, r)
	}

	for start := 0; start < len(valid); start += maxBatch {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		chunk := valid[start:min(start+maxBatch, len(valid))]
		keys := make([]*datastore.Key, len(chunk))
		entities := make([]*recordEntity, len(chunk))
		for i, r := range chunk {
			keys[i] = s.recordKey(r.Key)
			entities[i] = toRecordEntity(r)
		}

		_, err := s.client.PutMulti(ctx, keys, entities)
		var multi datastore.MultiError
		switch {
		case err == nil:
			res.Applied += len(chunk)
		case errors.As(err, &multi):
			for i, itemErr := range multi {
				if itemErr == nil {
					res.Applied++
					continue
				}
				res.Errors = append(res.Errors, server.ItemError{Key: chunk[i].Key, Err: itemErr})
			}
		default:
			for _, r := range chunk {
				res.Errors = append(res.Errors, server.ItemError{Key: r.Key, Err: err})
			}
		}
	}
	return res, nil
}

func (s *RecordDataStore) userQuery(kind model.Kind, userID model.UserId) *datastore.Query {
	return datastore.NewQuery(kind.Collection()).FilterField("UserID", "=", userID.String())
}

func (s *RecordDataStore) DeleteAllForUser(ctx context.Context, userID model.UserId) error {
	for _, kind := range model.Kinds() {
		keys, err := s.client.GetAll(ctx, s.userQuery(kind, userID).KeysOnly(), nil)
		if err != nil {
			return err
		}
		for start := 0; start < len(keys); start += maxBatch {
			if err := s.client.DeleteMulti(ctx, keys[start:min(start+maxBatch, len(keys))]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (s *RecordDataStore) CountForUser(ctx context.Context, kind model.Kind, userID model.UserId) (int, error) {
	if !kind.Valid() {
		return 0, server.ErrUnknownCollection
	}
	return s.client.Count(ctx, s.userQuery(kind, userID).KeysOnly())
}

func (s *RecordDataStore) ListForUser(ctx context.Context, kind model.Kind, userID model.UserId, offset, limit int) ([]model.Record, int, error) {
	if !kind.Valid() {
		return nil, 0, server.ErrUnknownCollection
	}
	total, err := s.CountForUser(ctx, kind, userID)
	if err != nil {
		return nil, 0, err
	}
	q := s.userQuery(kind, userID).Order("__key__")
	if offset > 0 {
		q = q.Offset(offset)
	}
	if limit > 0 {
		q = q.Limit(limit)
	}
	var entities []recordEntity
	if _, err := s.client.GetAll(ctx, q, &entities); err != nil {
		return nil, 0, err
	}
	out := make([]model.Record, 0, len(entities))
	for i := range entities {
		out = append(out, entities[i].model(kind))
	}
	return out, total, nil
}

var _ server.RecordStore = (*RecordDataStore)(nil)
