package stores

import (
	"context"
	"encoding/json"

	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
	"go.etcd.io/bbolt"
)

// BoltRecordStore keeps one bucket per collection, keyed by Key.ID.
type BoltRecordStore struct {
	db *bbolt.DB
}

func NewBoltRecordStore(db *bbolt.DB) *BoltRecordStore {
	return &BoltRecordStore{db: db}
}

func recordBucket(kind model.Kind) []byte {
	return []byte(kind.Collection())
}

func putRecord(tx *bbolt.Tx, record model.Record) error {
	bucket, err := tx.CreateBucketIfNotExists(recordBucket(record.Kind()))
	if err != nil {
		return err
	}
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return bucket.Put([]byte(record.Key.ID()), data)
}

func (s *BoltRecordStore) UpsertOne(ctx context.Context, record model.Record) error {
	if !record.Kind().Valid() {
		return server.ErrUnknownCollection
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return putRecord(tx, record)
	})
}

func (s *BoltRecordStore) UpsertMany(ctx context.Context, kind model.Kind, records []model.Record) (server.BatchResult, error) {
	if !kind.Valid() {
		return server.BatchResult{}, server.ErrUnknownCollection
	}
	if err := ctx.Err(); err != nil {
		return server.BatchResult{}, err
	}
	var res server.BatchResult
	err := s.db.Update(func(tx *bbolt.Tx) error {
		res = server.BatchResult{}
		for _, r := range records {
			if r.Kind() != kind {
				res.Errors = append(res.Errors, server.ItemError{Key: r.Key, Err: server.ErrUnknownCollection})
				continue
			}
			if err := putRecord(tx, r); err != nil {
				res.Errors = append(res.Errors, server.ItemError{Key: r.Key, Err: err})
				continue
			}
			res.Applied++
		}
		return nil
	})
	if err != nil {
		return server.BatchResult{}, err
	}
	return res, nil
}

func (s *BoltRecordStore) DeleteAllForUser(ctx context.Context, userID model.UserId) error {
	prefix := []byte(model.UserPrefix(userID))
	return s.db.Update(func(tx *bbolt.Tx) error {
		for _, kind := range model.Kinds() {
			bucket := tx.Bucket(recordBucket(kind))
			if bucket == nil {
				continue
			}
			// Deleting while iterating skips keys, so collect first.
			var keys [][]byte
			err := scanPrefix(bucket, prefix, func(k, _ []byte) error {
				keys = append(keys, append([]byte(nil), k...))
				return nil
			})
			if err != nil {
				return err
			}
			for _, k := range keys {
				if err := bucket.Delete(k); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

func (s *BoltRecordStore) CountForUser(ctx context.Context, kind model.Kind, userID model.UserId) (int, error) {
	if !kind.Valid() {
		return 0, server.ErrUnknownCollection
	}
	n := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordBucket(kind))
		if bucket == nil {
			return nil
		}
		return scanPrefix(bucket, []byte(model.UserPrefix(userID)), func(_, _ []byte) error {
			n++
			return nil
		})
	})
	return n, err
}

func (s *BoltRecordStore) ListForUser(ctx context.Context, kind model.Kind, userID model.UserId, offset, limit int) ([]model.Record, int, error) {
	if !kind.Valid() {
		return nil, 0, server.ErrUnknownCollection
	}
	if offset < 0 {
		offset = 0
	}
	out := []model.Record{}
	total := 0
	err := s.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(recordBucket(kind))
		if bucket == nil {
			return nil
		}
		return scanPrefix(bucket, []byte(model.UserPrefix(userID)), func(_, v []byte) error {
			idx := total
			total++
			if idx < offset || (limit > 0 && idx >= offset+limit) {
				return nil
			}
			var r model.Record
			if err := json.Unmarshal(v, &r); err != nil {
				return err
			}
			out = append(out, r)
			return nil
		})
	})
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

var _ server.RecordStore = (*BoltRecordStore)(nil)
