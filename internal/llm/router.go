package llm

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/threadscope/internal/retry"
)

// Request is one model call routed through the hybrid router.
type Request struct {
	System      string        // optional system message
	Prompt      string        // user prompt
	Temperature float64       // 0 uses the backend default
	MaxTokens   int           // 0 uses the backend default
	Timeout     time.Duration // per-attempt wall clock; 0 means no deadline

	// Out, when non-nil, receives the decoded JSON payload of the response.
	// A response that cannot be decoded even after repair fails the call with
	// FailureUnparseable and is not retried against another provider.
	Out any
}

// Response is the result of a successful routed call.
type Response struct {
	Content    string
	Provider   string
	Model      string
	IsFallback bool
	Tokens     TokenUsage
	Repair     RepairStats
}

// Router fans a call across an ordered provider list: the first backend is
// primary, the rest are fallbacks in priority order. Retryable failures move
// to the next provider; auth failures additionally disable the provider for
// the remainder of the process. Every attempt is recorded in the shared
// accounting log.
type Router struct {
	backends []Backend
	acct     *CallLog
	backoff  retry.Config
	limiter  *rate.Limiter

	mu       sync.Mutex
	disabled map[string]bool
}

// NewRouter builds a router over backends in priority order.
func NewRouter(backends []Backend, acct *CallLog) *Router {
	if acct == nil {
		acct = NewCallLog()
	}
	return &Router{
		backends: backends,
		acct:     acct,
		backoff:  retry.LLMConfig(),
		disabled: make(map[string]bool),
	}
}

// WithLimiter sets a shared rate limiter the router waits on before every
// provider attempt, across all callers. A nil limiter leaves calls unpaced.
func (r *Router) WithLimiter(l *rate.Limiter) *Router {
	r.limiter = l
	return r
}

// Accounting returns the shared call log.
func (r *Router) Accounting() *CallLog { return r.acct }

// ProviderStatus is one row of the router's status snapshot.
type ProviderStatus struct {
	ProviderStats
	Model   string `json:"model"`
	Primary bool   `json:"primary"`
}

// Status returns the per-provider snapshot: configured order, enabled flags,
// and accounting aggregates.
func (r *Router) Status() []ProviderStatus {
	r.mu.Lock()
	disabled := make(map[string]bool, len(r.disabled))
	for k, v := range r.disabled {
		disabled[k] = v
	}
	r.mu.Unlock()

	stats := r.acct.StatsByProvider()
	out := make([]ProviderStatus, 0, len(r.backends))
	for i, b := range r.backends {
		st := ProviderStatus{Model: b.Model(), Primary: i == 0}
		if s, ok := stats[b.Name()]; ok {
			st.ProviderStats = *s
		}
		st.ProviderStats.Provider = b.Name()
		st.ProviderStats.Enabled = !disabled[b.Name()]
		out = append(out, st)
	}
	return out
}

func (r *Router) isDisabled(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.disabled[name]
}

func (r *Router) disable(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.disabled[name] = true
}

// Call routes one request. It returns the first successful response, or an
// *ExhaustedError once every enabled provider has failed, or a *CallError
// with FailureUnparseable when a provider answered but its output could not
// be decoded into req.Out.
func (r *Router) Call(ctx context.Context, req Request) (*Response, error) {
	var attempts []*CallError
	tried := 0

	for i, backend := range r.backends {
		if r.isDisabled(backend.Name()) {
			continue
		}
		if tried > 0 {
			// Brief backoff before hitting the fallback; rate-limited
			// primaries are often a symptom of global pressure.
			if err := r.backoff.Wait(ctx, tried-1); err != nil {
				break
			}
		}

		if r.limiter != nil {
			if err := r.limiter.Wait(ctx); err != nil {
				break
			}
		}

		resp, callErr := r.attempt(ctx, backend, req, i > 0)
		tried++
		if callErr == nil {
			return resp, nil
		}

		attempts = append(attempts, callErr)

		switch callErr.Kind {
		case FailureUnparseable:
			// A different provider would not reproduce the prompt contract
			// any more reliably. Surface to the caller directly.
			return nil, callErr
		case FailureAuthFailed:
			log.Warn().
				Str("provider", backend.Name()).
				Msg("Provider auth failed, disabling for process lifetime")
			r.disable(backend.Name())
		}
		// Retryable kinds and auth failures both continue down the list.
	}

	if tried == 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoProviders
	}
	return nil, &ExhaustedError{Attempts: attempts}
}

// attempt runs one provider call, records it, and classifies any failure.
func (r *Router) attempt(ctx context.Context, backend Backend, req Request, isFallback bool) (*Response, *CallError) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	start := time.Now()
	content, tokens, err := backend.Generate(ctx, req)
	latency := time.Since(start)

	rec := CallRecord{
		Provider:   backend.Name(),
		Model:      backend.Model(),
		LatencyMS:  latency.Milliseconds(),
		Tokens:     tokens,
		IsFallback: isFallback,
	}

	if err != nil {
		kind := Classify(err)
		rec.ErrorKind = kind
		r.acct.Append(rec)
		log.Warn().
			Str("provider", backend.Name()).
			Str("error_kind", string(kind)).
			Int64("latency_ms", latency.Milliseconds()).
			Err(err).
			Msg("Provider call failed")
		return nil, &CallError{Kind: kind, Provider: backend.Name(), Err: err}
	}

	resp := &Response{
		Content:    content,
		Provider:   backend.Name(),
		Model:      backend.Model(),
		IsFallback: isFallback,
		Tokens:     tokens,
	}

	if req.Out != nil {
		stats, decodeErr := DecodeJSON(content, req.Out)
		resp.Repair = stats
		if decodeErr != nil {
			rec.ErrorKind = FailureUnparseable
			r.acct.Append(rec)
			log.Warn().
				Str("provider", backend.Name()).
				Strs("repair_strategies", stats.Strategies).
				Msg("Provider output unparseable after repair")
			return nil, &CallError{Kind: FailureUnparseable, Provider: backend.Name(), Err: decodeErr}
		}
		if stats.WasRepaired {
			log.Debug().
				Str("provider", backend.Name()).
				Strs("repair_strategies", stats.Strategies).
				Msg("Repaired provider JSON output")
		}
	}

	rec.Success = true
	r.acct.Append(rec)
	log.Debug().
		Str("provider", backend.Name()).
		Str("model", backend.Model()).
		Bool("is_fallback", isFallback).
		Int64("latency_ms", latency.Milliseconds()).
		Int("total_tokens", tokens.Total).
		Msg("Provider call succeeded")
	return resp, nil
}
