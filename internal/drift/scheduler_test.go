package drift

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadscope/internal/llm"
	"github.com/threadscope/internal/store"
	"github.com/threadscope/pkg/models"
)

// driftBackend answers drift prompts, failing for threads whose anchor body
// contains the poison marker.
type driftBackend struct {
	mu        sync.Mutex
	poison    string
	poisonErr error
	response  string
	calls     int
}

func (b *driftBackend) Name() string  { return "openai" }
func (b *driftBackend) Model() string { return "gpt-4o-mini" }

func (b *driftBackend) Generate(ctx context.Context, req llm.Request) (string, llm.TokenUsage, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if b.poison != "" && strings.Contains(req.Prompt, b.poison) {
		return "", llm.TokenUsage{}, b.poisonErr
	}
	if b.response != "" {
		return b.response, llm.TokenUsage{}, nil
	}
	return `{"has_drift": false, "topics": []}`, llm.TokenUsage{}, nil
}

func newTestScheduler(st store.Store, backend llm.Backend) *Scheduler {
	router := llm.NewRouter([]llm.Backend{backend}, nil)
	analyzer := NewAnalyzer(router, time.Second)
	return NewScheduler(st, analyzer, SchedulerConfig{BatchSize: 20})
}

func seedThread(st *store.MemoryStore, id, anchorBody string, at time.Time, replies ...string) {
	anchor := models.Message{ID: id, Author: "alice", Body: anchorBody, CreatedAt: at}
	msgs := make([]models.Message, len(replies))
	for i, body := range replies {
		msgs[i] = models.Message{
			ID:        id + "-r" + string(rune('1'+i)),
			Author:    "bob",
			Body:      body,
			CreatedAt: at.Add(time.Duration(i+1) * time.Minute),
		}
	}
	st.AddThread(anchor, msgs...)
}

func TestRunCycleAnalyzesPending(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	seedThread(st, "t1", "How do we deploy the service?", now, "Use the release pipeline.")

	backend := &driftBackend{response: `{"has_drift": true, "topics": [{"label": "lunch plans"}]}`}
	scheduler := newTestScheduler(st, backend)

	summary := scheduler.RunCycle(context.Background())
	assert.Equal(t, CycleSummary{Fetched: 1, Analyzed: 1, Failed: 0}, summary)

	v, err := st.FetchVerdict(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, v.Status)
	assert.True(t, v.HasDrift)
	require.Len(t, v.Topics, 1)
	assert.Equal(t, "openai/gpt-4o-mini", v.EvaluatedBy)
}

func TestRunCycleFailureIsolation(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	seedThread(st, "t1", "First thread", now, "on-topic reply")
	seedThread(st, "t2", "Second thread poisoned", now.Add(time.Minute), "whatever")
	seedThread(st, "t3", "Third thread", now.Add(2*time.Minute), "on-topic reply")

	backend := &driftBackend{poison: "poisoned", poisonErr: errors.New("request timed out")}
	scheduler := newTestScheduler(st, backend)

	summary := scheduler.RunCycle(context.Background())
	assert.Equal(t, CycleSummary{Fetched: 3, Analyzed: 2, Failed: 1}, summary)

	for id, want := range map[string]models.VerdictStatus{
		"t1": models.StatusAnalyzed,
		"t2": models.StatusPending,
		"t3": models.StatusAnalyzed,
	} {
		v, err := st.FetchVerdict(context.Background(), id)
		require.NoError(t, err)
		assert.Equal(t, want, v.Status, "thread %s", id)
	}

	// The failed thread is picked up again on the next cycle.
	pending, err := st.FetchPendingThreads(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"t2"}, pending)
}

func TestRunCycleEmptyThreadSkipsModel(t *testing.T) {
	st := store.NewMemoryStore()
	seedThread(st, "t1", "Anchor with no replies", time.Now())

	backend := &driftBackend{}
	scheduler := newTestScheduler(st, backend)

	summary := scheduler.RunCycle(context.Background())
	assert.Equal(t, CycleSummary{Fetched: 1, Analyzed: 1, Failed: 0}, summary)
	assert.Zero(t, backend.calls)

	v, err := st.FetchVerdict(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, v.Status)
	assert.False(t, v.HasDrift)
	assert.NotNil(t, v.Topics)
}

func TestRunCycleOldestFirst(t *testing.T) {
	st := store.NewMemoryStore()
	now := time.Now()
	seedThread(st, "newer", "Newer thread", now.Add(time.Hour), "reply")
	seedThread(st, "older", "Older thread", now, "reply")

	pending, err := st.FetchPendingThreads(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"older"}, pending)
}

func TestRunCycleNoPending(t *testing.T) {
	backend := &driftBackend{}
	scheduler := newTestScheduler(store.NewMemoryStore(), backend)

	summary := scheduler.RunCycle(context.Background())
	assert.Equal(t, CycleSummary{}, summary)
	assert.Zero(t, backend.calls)
}

func TestAnalyzeDefaultsMalformedShape(t *testing.T) {
	st := store.NewMemoryStore()
	seedThread(st, "t1", "Anchor", time.Now(), "reply")

	// Parseable JSON in the wrong shape collapses to the safe default and
	// the thread still counts as analyzed.
	backend := &driftBackend{response: `{"verdict": "looks fine to me"}`}
	scheduler := newTestScheduler(st, backend)

	summary := scheduler.RunCycle(context.Background())
	assert.Equal(t, CycleSummary{Fetched: 1, Analyzed: 1, Failed: 0}, summary)

	v, err := st.FetchVerdict(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusAnalyzed, v.Status)
	assert.False(t, v.HasDrift)
}

func TestAnalyzeUnparseableLeavesPending(t *testing.T) {
	st := store.NewMemoryStore()
	seedThread(st, "t1", "Anchor", time.Now(), "reply")

	// No recoverable JSON at all is a transport failure, not a verdict.
	backend := &driftBackend{response: "I'd rather not say."}
	scheduler := newTestScheduler(st, backend)

	summary := scheduler.RunCycle(context.Background())
	assert.Equal(t, CycleSummary{Fetched: 1, Analyzed: 0, Failed: 1}, summary)

	v, err := st.FetchVerdict(context.Background(), "t1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusPending, v.Status)
}
