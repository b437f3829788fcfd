package stores

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/mscno/ghsync/server"
	"github.com/mscno/ghsync/server/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testTime = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func newIntegration(id string, active bool) model.Integration {
	return model.Integration{
		UserID:      model.UserId(id),
		Username:    "user-" + id,
		AccessToken: "token-" + id,
		ConnectedAt: testTime,
		IsActive:    active,
		CreatedAt:   testTime,
		UpdatedAt:   testTime,
	}
}

func mustKey(t *testing.T, kind model.Kind, user model.UserId, parts ...string) model.Key {
	t.Helper()
	key, err := kind.Key(user, parts...)
	require.NoError(t, err)
	return key
}

func newRecord(t *testing.T, key model.Key, v any) model.Record {
	t.Helper()
	r, err := model.NewRecord(key, v, testTime)
	require.NoError(t, err)
	return r
}

func testIntegrationStore(t *testing.T, store server.IntegrationStore) {
	ctx := context.Background()

	_, err := store.GetIntegration(ctx, "missing")
	assert.ErrorIs(t, err, server.ErrIntegrationNotFound)

	require.NoError(t, store.UpsertIntegration(ctx, newIntegration("1", true)))
	require.NoError(t, store.UpsertIntegration(ctx, newIntegration("2", false)))

	got, err := store.GetIntegration(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "user-1", got.Username)
	assert.True(t, got.IsActive)
	assert.Nil(t, got.LastSyncedAt)

	// Upsert replaces fields but keeps the creation time.
	replacement := newIntegration("1", true)
	replacement.Username = "renamed"
	replacement.CreatedAt = testTime.Add(time.Hour)
	require.NoError(t, store.UpsertIntegration(ctx, replacement))
	got, err = store.GetIntegration(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, "renamed", got.Username)
	assert.True(t, got.CreatedAt.Equal(testTime))

	synced := testTime.Add(2 * time.Hour)
	err = store.UpdateIntegration(ctx, "1", func(i model.Integration) (model.Integration, error) {
		i.LastSyncedAt = &synced
		i.LastRun = &model.RunSummary{Succeeded: 3, Records: map[string]int{"commits": 7}}
		return i, nil
	})
	require.NoError(t, err)
	got, err = store.GetIntegration(ctx, "1")
	require.NoError(t, err)
	require.NotNil(t, got.LastSyncedAt)
	assert.True(t, got.LastSyncedAt.Equal(synced))
	require.NotNil(t, got.LastRun)
	assert.Equal(t, 3, got.LastRun.Succeeded)
	assert.Equal(t, 7, got.LastRun.Records["commits"])

	err = store.UpdateIntegration(ctx, "missing", func(i model.Integration) (model.Integration, error) { return i, nil })
	assert.ErrorIs(t, err, server.ErrIntegrationNotFound)

	failing := fmt.Errorf("update rejected")
	err = store.UpdateIntegration(ctx, "1", func(i model.Integration) (model.Integration, error) {
		return i, failing
	})
	assert.ErrorIs(t, err, failing)

	err = store.UpdateIntegration(ctx, "1", func(i model.Integration) (model.Integration, error) {
		i.UserID = "changed"
		i.Username = "renamed"
		return i, nil
	})
	assert.ErrorIs(t, err, server.ErrUserIDChanged)
	got, err = store.GetIntegration(ctx, "1")
	require.NoError(t, err)
	assert.NotEqual(t, "renamed", got.Username)
	_, err = store.GetIntegration(ctx, "changed")
	assert.ErrorIs(t, err, server.ErrIntegrationNotFound)

	all, err := store.ListIntegrations(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	active, err := store.ListIntegrations(ctx, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, model.UserId("1"), active[0].UserID)

	require.NoError(t, store.DeleteIntegration(ctx, "1"))
	assert.ErrorIs(t, store.DeleteIntegration(ctx, "1"), server.ErrIntegrationNotFound)
	_, err = store.GetIntegration(ctx, "1")
	assert.ErrorIs(t, err, server.ErrIntegrationNotFound)
}

func testRecordStore(t *testing.T, store server.RecordStore) {
	ctx := context.Background()

	// Users whose ids share a prefix must not see each other's records.
	var commits []model.Record
	for i := 0; i < 5; i++ {
		sha := fmt.Sprintf("sha%d", i)
		commits = append(commits, newRecord(t, mustKey(t, model.KindCommit, "u1", "repo", sha), map[string]any{"sha": sha}))
	}
	res, err := store.UpsertMany(ctx, model.KindCommit, commits)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Applied)
	assert.Empty(t, res.Errors)

	require.NoError(t, store.UpsertOne(ctx, newRecord(t, mustKey(t, model.KindCommit, "u10", "repo", "other"), map[string]any{"sha": "other"})))
	require.NoError(t, store.UpsertOne(ctx, newRecord(t, mustKey(t, model.KindOrganization, "u1", "acme"), map[string]any{"login": "acme"})))

	n, err := store.CountForUser(ctx, model.KindCommit, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	// Upserting the same natural key replaces, never duplicates.
	res, err = store.UpsertMany(ctx, model.KindCommit, commits[:2])
	require.NoError(t, err)
	assert.Equal(t, 2, res.Applied)
	n, err = store.CountForUser(ctx, model.KindCommit, "u1")
	require.NoError(t, err)
	assert.Equal(t, 5, n)

	page1, total, err := store.ListForUser(ctx, model.KindCommit, "u1", 0, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "sha0", page1[0].Key.Parts[1])
	assert.Equal(t, "sha1", page1[1].Key.Parts[1])
	assert.JSONEq(t, `{"sha":"sha0","userId":"u1","repoName":"repo"}`, string(page1[0].Payload))

	page3, total, err := store.ListForUser(ctx, model.KindCommit, "u1", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page3, 1)
	assert.Equal(t, model.KindCommit, page3[0].Kind())
	assert.Equal(t, model.UserId("u1"), page3[0].Key.UserID)

	empty, total, err := store.ListForUser(ctx, model.KindIssue, "u1", 0, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, empty)

	res, err = store.UpsertMany(ctx, model.KindIssue, commits[:1])
	require.NoError(t, err)
	assert.Equal(t, 0, res.Applied)
	require.Len(t, res.Errors, 1)
	assert.ErrorIs(t, res.Errors[0], server.ErrUnknownCollection)

	require.NoError(t, store.DeleteAllForUser(ctx, "u1"))
	n, err = store.CountForUser(ctx, model.KindCommit, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = store.CountForUser(ctx, model.KindOrganization, "u1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	n, err = store.CountForUser(ctx, model.KindCommit, "u10")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = store.CountForUser(ctx, model.Kind(0), "u1")
	assert.ErrorIs(t, err, server.ErrUnknownCollection)
}
