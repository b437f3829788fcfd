package server_test

import (
	"context"
	"testing"
	"time"

	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSchedulerRunOnce(t *testing.T) {
	gh := &fakeGitHub{orgs: []*fakeOrg{newOrg("acme", newRepo("acme", "widget", 1, 0, 0))}}
	f := newServiceFixture(t, gh, nil)
	f.seed(t, "1")
	f.seed(t, "2")
	inactive := f.seed(t, "3")
	inactive.IsActive = false
	require.NoError(t, f.integrations.UpsertIntegration(context.Background(), inactive))

	sched := server.NewScheduler(f.svc, time.Hour, nil)
	assert.Equal(t, 2, sched.RunOnce(context.Background()))
	f.svc.Wait()

	assert.Equal(t, 1, f.count(t, model.KindCommit, "1"))
	assert.Equal(t, 1, f.count(t, model.KindCommit, "2"))
	assert.Equal(t, 0, f.count(t, model.KindCommit, "3"))
}

func TestSchedulerSkipsRunning(t *testing.T) {
	gh := &fakeGitHub{gate: make(chan struct{}), started: make(chan struct{}, 2)}
	f := newServiceFixture(t, gh, nil)
	f.seed(t, "1")

	require.NoError(t, f.svc.Resync(context.Background(), "1"))
	<-gh.started

	sched := server.NewScheduler(f.svc, time.Hour, nil)
	assert.Equal(t, 0, sched.RunOnce(context.Background()))
	close(gh.gate)
	f.svc.Wait()
}

func TestSchedulerStartTicks(t *testing.T) {
	gh := &fakeGitHub{}
	f := newServiceFixture(t, gh, nil)
	f.seed(t, "1")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		server.NewScheduler(f.svc, 10*time.Millisecond, nil).Start(ctx)
		close(done)
	}()

	waitFor(t, func() bool {
		i, err := f.integrations.GetIntegration(context.Background(), "1")
		return err == nil && i.LastSyncedAt != nil
	})
	cancel()
	<-done
	f.svc.Wait()
}

func TestSchedulerDisabled(t *testing.T) {
	f := newServiceFixture(t, &fakeGitHub{}, nil)
	done := make(chan struct{})
	go func() {
		server.NewScheduler(f.svc, 0, nil).Start(context.Background())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler with zero interval should return immediately")
	}
}
