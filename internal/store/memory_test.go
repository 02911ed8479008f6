package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadscope/pkg/models"
)

func TestMemoryStoreThreadLifecycle(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	now := time.Now()

	anchor := models.Message{ID: "t1", Author: "alice", Body: "anchor", CreatedAt: now}
	st.AddThread(anchor,
		models.Message{ID: "r1", Author: "bob", Body: "first", CreatedAt: now.Add(time.Minute)},
		models.Message{ID: "r2", Author: "carol", Body: "second", CreatedAt: now.Add(2 * time.Minute)},
	)

	thread, err := st.FetchThread(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", thread.Anchor.ID)
	require.Len(t, thread.Replies, 2)
	assert.Equal(t, "r1", thread.Replies[0].ID)

	pending, err := st.FetchPendingThreads(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"t1"}, pending)

	err = st.UpsertVerdict(ctx, "t1", models.DriftVerdict{
		HasDrift: false,
		Topics:   []models.Topic{},
		Status:   models.StatusAnalyzed,
	})
	require.NoError(t, err)

	pending, err = st.FetchPendingThreads(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	v, err := st.FetchVerdict(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, "t1", v.ThreadID)
	assert.Equal(t, models.StatusAnalyzed, v.Status)
}

func TestMemoryStoreThreadNotFound(t *testing.T) {
	st := NewMemoryStore()
	_, err := st.FetchThread(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrThreadNotFound)

	_, err = st.FetchVerdict(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrThreadNotFound)
}

func TestMemoryStorePendingOrderAndLimit(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()
	st.AddThread(models.Message{ID: "b", CreatedAt: now.Add(time.Hour)})
	st.AddThread(models.Message{ID: "a", CreatedAt: now})
	st.AddThread(models.Message{ID: "c", CreatedAt: now.Add(2 * time.Hour)})

	pending, err := st.FetchPendingThreads(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, pending)
}

func TestMemoryStoreListVerdicts(t *testing.T) {
	st := NewMemoryStore()
	ctx := context.Background()
	st.AddThread(models.Message{ID: "b"})
	st.AddThread(models.Message{ID: "a"})
	require.NoError(t, st.UpsertVerdict(ctx, "a", models.DriftVerdict{
		HasDrift: true,
		Topics:   []models.Topic{{Label: "x"}},
		Status:   models.StatusAnalyzed,
	}))

	all, err := st.ListVerdicts(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].ThreadID)
	assert.Equal(t, "b", all[1].ThreadID)

	pending, err := st.ListVerdicts(ctx, models.StatusPending)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].ThreadID)

	analyzed, err := st.ListVerdicts(ctx, models.StatusAnalyzed)
	require.NoError(t, err)
	require.Len(t, analyzed, 1)
	assert.True(t, analyzed[0].HasDrift)
}

func TestMemoryStoreFetchCorpus(t *testing.T) {
	st := NewMemoryStore()
	now := time.Now()
	st.AddMessage(models.Message{ID: "m2", ChannelID: "general", CreatedAt: now.Add(time.Minute)})
	st.AddMessage(models.Message{ID: "m1", ChannelID: "general", CreatedAt: now})
	st.AddMessage(models.Message{ID: "m3", ChannelID: "random", CreatedAt: now.Add(2 * time.Minute)})

	corpus, err := st.FetchCorpus(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, corpus, 3)
	assert.Equal(t, "m1", corpus[0].ID)

	corpus, err = st.FetchCorpus(context.Background(), "general", 0)
	require.NoError(t, err)
	assert.Len(t, corpus, 2)

	corpus, err = st.FetchCorpus(context.Background(), "", 2)
	require.NoError(t, err)
	assert.Len(t, corpus, 2)
}
