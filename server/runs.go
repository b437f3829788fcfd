package server

import (
	"context"
	"sync"

	"github.com/mscno/ghsync/server/model"
)

// LocalRunGuard is an in-process RunGuard. A user id is either absent or running.
type LocalRunGuard struct {
	mu      sync.Mutex
	running map[model.UserId]struct{}
}

func NewLocalRunGuard() *LocalRunGuard {
	return &LocalRunGuard{running: make(map[model.UserId]struct{})}
}

func (g *LocalRunGuard) Acquire(_ context.Context, userID model.UserId) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.running[userID]; ok {
		return nil, ErrSyncInProgress
	}
	g.running[userID] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.running, userID)
			g.mu.Unlock()
		})
	}, nil
}

func (g *LocalRunGuard) Running(_ context.Context, userID model.UserId) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.running[userID]
	return ok, nil
}

var _ RunGuard = (*LocalRunGuard)(nil)
