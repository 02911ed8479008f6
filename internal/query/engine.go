package query

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/threadscope/internal/llm"
	"github.com/threadscope/pkg/models"
)

// Options configures one engine instance.
type Options struct {
	ChunkSize      int           // messages per map chunk
	MaxConcurrency int           // in-flight map calls ceiling
	EvidenceCap    int           // resolved evidence set bound
	CallTimeout    time.Duration // per-attempt wall clock on router calls
}

// Engine answers corpus-wide questions with the map/resolve/reduce pipeline,
// streaming progress events as it goes.
type Engine struct {
	router *llm.Router
	opts   Options
}

func NewEngine(router *llm.Router, opts Options) *Engine {
	return &Engine{router: router, opts: opts}
}

// Job is the transient state of one streamed query request. It lives exactly
// as long as the request and is owned by the request handler.
type Job struct {
	ID     string
	Query  string
	Corpus []models.Message
}

// NewJob builds a job for one request.
func NewJob(queryText string, corpus []models.Message) *Job {
	return &Job{
		ID:     uuid.NewString(),
		Query:  queryText,
		Corpus: corpus,
	}
}

// Run executes the pipeline and returns the ordered event stream. Events for
// one job follow the strict sequence: phase_start(map), map_progress per
// chunk, phase_complete(map), start/complete for resolve and reduce, then a
// single result — or a single terminal error after which nothing else is
// emitted. A cancelled ctx (client disconnect) stops emission; in-flight
// router calls finish and their results are discarded.
func (e *Engine) Run(ctx context.Context, job *Job) <-chan Event {
	st := newStream(ctx, 8)

	go func() {
		defer st.close()

		logger := log.With().Str("query_id", job.ID).Logger()
		logger.Info().
			Int("corpus_size", len(job.Corpus)).
			Msg("Starting query pipeline")

		chunks := PlanChunks(job.Corpus, e.opts.ChunkSize)

		st.emit(Event{Type: EventPhaseStart, Phase: PhaseMap, Total: len(chunks)})
		evidence, err := runMapStage(ctx, e.router, job.Query, chunks, e.opts.MaxConcurrency, e.opts.CallTimeout, st)
		if err != nil {
			logger.Error().Err(err).Msg("Map stage failed")
			st.fail(err.Error())
			return
		}
		st.emit(Event{Type: EventPhaseComplete, Phase: PhaseMap, Total: len(chunks)})

		st.emit(Event{Type: EventPhaseStart, Phase: PhaseResolve})
		resolved := ResolveEvidence(evidence, e.opts.EvidenceCap)
		logger.Info().
			Int("raw_evidence", len(evidence)).
			Int("resolved_evidence", len(resolved)).
			Msg("Resolved evidence set")
		st.emit(Event{Type: EventPhaseComplete, Phase: PhaseResolve})

		st.emit(Event{Type: EventPhaseStart, Phase: PhaseReduce})
		answer, err := synthesizeAnswer(ctx, e.router, job.Query, resolved, e.opts.CallTimeout)
		if err != nil {
			logger.Error().Err(err).Msg("Reduce stage failed")
			st.fail(err.Error())
			return
		}
		st.emit(Event{Type: EventPhaseComplete, Phase: PhaseReduce})

		st.emit(Event{Type: EventResult, Result: answer})
		logger.Info().
			Int("citations", len(answer.Citations)).
			Msg("Query pipeline completed")
	}()

	return st.ch
}
