package drift

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/threadscope/internal/store"
)

// SchedulerConfig tunes one scheduler instance.
type SchedulerConfig struct {
	BatchSize int           // pending threads fetched per cycle
	CallDelay time.Duration // pause between consecutive model calls
	Interval  time.Duration // gap between cycles in watch mode
}

func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		BatchSize: 20,
		CallDelay: 2 * time.Second,
		Interval:  5 * time.Minute,
	}
}

// CycleSummary reports one scheduler cycle. Failures are threads left
// pending; they are retried on a later cycle, never dead-lettered.
type CycleSummary struct {
	Fetched  int `json:"fetched"`
	Analyzed int `json:"analyzed"`
	Failed   int `json:"failed"`
}

// Scheduler walks the backlog of pending reply threads and persists one
// normalized verdict per thread. One thread's failure never aborts the batch.
type Scheduler struct {
	store    store.Store
	analyzer *Analyzer
	cfg      SchedulerConfig
	limiter  *rate.Limiter

	stopCh  chan struct{}
	doneCh  chan struct{}
	started bool
}

func NewScheduler(st store.Store, analyzer *Analyzer, cfg SchedulerConfig) *Scheduler {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultSchedulerConfig().BatchSize
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultSchedulerConfig().Interval
	}
	var limiter *rate.Limiter
	if cfg.CallDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(cfg.CallDelay), 1)
	}
	return &Scheduler{
		store:    st,
		analyzer: analyzer,
		cfg:      cfg,
		limiter:  limiter,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start launches watch mode: cycles on a ticker until Stop.
func (s *Scheduler) Start() {
	if s.started {
		return
	}
	s.started = true
	go s.loop()
}

// Stop halts watch mode after the in-flight cycle completes.
func (s *Scheduler) Stop() {
	if !s.started {
		return
	}
	close(s.stopCh)
	<-s.doneCh
}

func (s *Scheduler) loop() {
	initial := time.NewTimer(5 * time.Second)
	ticker := time.NewTicker(s.cfg.Interval)
	defer func() { ticker.Stop(); close(s.doneCh) }()
	for {
		select {
		case <-s.stopCh:
			return
		case <-initial.C:
			s.RunCycle(context.Background())
		case <-ticker.C:
			s.RunCycle(context.Background())
		}
	}
}

// RunCycle processes one batch of pending threads, oldest first, and returns
// the cycle summary. A cycle always runs its fetched batch to completion;
// per-thread errors are logged and the thread stays pending.
func (s *Scheduler) RunCycle(ctx context.Context) CycleSummary {
	var summary CycleSummary

	ids, err := s.store.FetchPendingThreads(ctx, s.cfg.BatchSize)
	if err != nil {
		log.Error().Err(err).Msg("Failed to fetch pending threads, skipping cycle")
		return summary
	}
	summary.Fetched = len(ids)
	if len(ids) == 0 {
		return summary
	}

	log.Info().Int("pending", len(ids)).Msg("Starting drift analysis cycle")

	for _, id := range ids {
		if s.analyzeOne(ctx, id) {
			summary.Analyzed++
		} else {
			summary.Failed++
		}
	}

	log.Info().
		Int("fetched", summary.Fetched).
		Int("analyzed", summary.Analyzed).
		Int("failed", summary.Failed).
		Msg("Drift analysis cycle complete")
	return summary
}

// analyzeOne handles a single thread end to end. Returns false when the
// thread must stay pending.
func (s *Scheduler) analyzeOne(ctx context.Context, id string) bool {
	logger := log.With().Str("thread_id", id).Logger()

	thread, err := s.store.FetchThread(ctx, id)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to fetch thread, leaving pending")
		return false
	}

	// Pace model calls; empty threads short-circuit without one.
	if len(thread.Replies) > 0 && s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			logger.Warn().Err(err).Msg("Cycle interrupted while pacing, leaving pending")
			return false
		}
	}

	verdict, outcome, err := s.analyzer.Analyze(ctx, thread)
	if err != nil {
		logger.Warn().Err(err).Msg("Drift analysis failed, leaving pending")
		return false
	}

	if err := s.store.UpsertVerdict(ctx, id, NormalizeVerdict(verdict)); err != nil {
		logger.Error().Err(err).Msg("Failed to persist verdict, leaving pending")
		return false
	}

	logger.Info().
		Bool("has_drift", verdict.HasDrift).
		Int("topics", len(verdict.Topics)).
		Str("evaluated_by", verdict.EvaluatedBy).
		Str("normalize_outcome", string(outcome)).
		Msg("Thread analyzed")
	return true
}
