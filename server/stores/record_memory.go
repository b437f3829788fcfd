package stores

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
)

type InMemoryRecordStore struct {
	mu      sync.RWMutex
	records map[model.Kind]map[string]model.Record
}

func NewInMemoryRecordStore() *InMemoryRecordStore {
	return &InMemoryRecordStore{records: make(map[model.Kind]map[string]model.Record)}
}

func (s *InMemoryRecordStore) UpsertOne(ctx context.Context, record model.Record) error {
	if !record.Kind().Valid() {
		return server.ErrUnknownCollection
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(record)
	return nil
}

func (s *InMemoryRecordStore) put(record model.Record) {
	kind := record.Kind()
	if s.records[kind] == nil {
		s.records[kind] = make(map[string]model.Record)
	}
	s.records[kind][record.Key.ID()] = record
}

func (s *InMemoryRecordStore) UpsertMany(ctx context.Context, kind model.Kind, records []model.Record) (server.BatchResult, error) {
	if !kind.Valid() {
		return server.BatchResult{}, server.ErrUnknownCollection
	}
	if err := ctx.Err(); err != nil {
		return server.BatchResult{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var res server.BatchResult
	for _, r := range records {
		if r.Kind() != kind {
			res.Errors = append(res.Errors, server.ItemError{Key: r.Key, Err: server.ErrUnknownCollection})
			continue
		}
		s.put(r)
		res.Applied++
	}
	return res, nil
}

func (s *InMemoryRecordStore) DeleteAllForUser(ctx context.Context, userID model.UserId) error {
	prefix := model.UserPrefix(userID)
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, byID := range s.records {
		for id := range byID {
			if strings.HasPrefix(id, prefix) {
				delete(byID, id)
			}
		}
	}
	return nil
}

func (s *InMemoryRecordStore) CountForUser(ctx context.Context, kind model.Kind, userID model.UserId) (int, error) {
	if !kind.Valid() {
		return 0, server.ErrUnknownCollection
	}
	prefix := model.UserPrefix(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for id := range s.records[kind] {
		if strings.HasPrefix(id, prefix) {
			n++
		}
	}
	return n, nil
}

func (s *InMemoryRecordStore) ListForUser(ctx context.Context, kind model.Kind, userID model.UserId, offset, limit int) ([]model.Record, int, error) {
	if !kind.Valid() {
		return nil, 0, server.ErrUnknownCollection
	}
	prefix := model.UserPrefix(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []string
	for id := range s.records[kind] {
		if strings.HasPrefix(id, prefix) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	out := []model.Record{}
	for _, id := range page(ids, offset, limit) {
		out = append(out, s.records[kind][id])
	}
	return out, len(ids), nil
}

// page returns the window [offset, offset+limit) of items. limit <= 0 means no limit.
func page[T any](items []T, offset, limit int) []T {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(items) {
		return nil
	}
	end := len(items)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}
	return items[offset:end]
}

var _ server.RecordStore = (*InMemoryRecordStore)(nil)
