package query

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/threadscope/internal/llm"
	"github.com/threadscope/pkg/models"
)

// DefaultMaxConcurrency bounds simultaneous in-flight map calls so the shared
// router stays inside upstream provider rate limits.
const DefaultMaxConcurrency = 4

// mapItem is one relevant message as scored by the model for one chunk.
type mapItem struct {
	MessageID string  `json:"message_id"`
	Relevance float64 `json:"relevance"`
	Summary   string  `json:"summary"`
}

// mapOutput is the JSON shape requested from the model per chunk.
type mapOutput struct {
	Relevant []mapItem `json:"relevant"`
}

type chunkResult struct {
	index    int
	posts    int
	evidence []models.Evidence
	err      error
}

// runMapStage scores every chunk against the query with bounded concurrency,
// emitting a map_progress event as each chunk completes. A failed chunk
// contributes zero evidence; the stage only fails when every chunk failed.
func runMapStage(ctx context.Context, router *llm.Router, queryText string, chunks [][]models.Message, maxConcurrency int, callTimeout time.Duration, st *stream) ([]models.Evidence, error) {
	if maxConcurrency <= 0 {
		maxConcurrency = DefaultMaxConcurrency
	}

	results := make(chan chunkResult, len(chunks))
	sem := make(chan struct{}, maxConcurrency)
	var wg sync.WaitGroup

	for i, chunk := range chunks {
		wg.Add(1)
		go func(index int, chunk []models.Message) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			evidence, err := scoreChunk(ctx, router, queryText, chunk, callTimeout)
			results <- chunkResult{index: index, posts: len(chunk), evidence: evidence, err: err}
		}(i, chunk)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var all []models.Evidence
	failed := 0
	completed := 0
	for res := range results {
		completed++
		if res.err != nil {
			failed++
			log.Warn().
				Int("chunk", res.index+1).
				Int("total", len(chunks)).
				Err(res.err).
				Msg("Map chunk failed, counting as zero relevant posts")
		} else {
			all = append(all, res.evidence...)
		}
		st.emit(Event{
			Type:         EventMapProgress,
			Phase:        PhaseMap,
			Chunk:        res.index + 1,
			Total:        len(chunks),
			PostsInChunk: res.posts,
		})
	}

	if failed == len(chunks) && len(chunks) > 0 {
		return nil, fmt.Errorf("map stage failed: all %d chunks errored", len(chunks))
	}
	return all, nil
}

// scoreChunk asks the model to rate each message's relevance to the query and
// summarize the relevant ones.
func scoreChunk(ctx context.Context, router *llm.Router, queryText string, chunk []models.Message, callTimeout time.Duration) ([]models.Evidence, error) {
	var out mapOutput
	if _, err := router.Call(ctx, llm.Request{
		System:      "You rate how relevant chat messages are to a research question. Respond with JSON only.",
		Prompt:      buildMapPrompt(queryText, chunk),
		Temperature: 0.2,
		Timeout:     callTimeout,
		Out:         &out,
	}); err != nil {
		return nil, err
	}

	byID := make(map[string]models.Message, len(chunk))
	for _, m := range chunk {
		byID[m.ID] = m
	}

	evidence := make([]models.Evidence, 0, len(out.Relevant))
	for _, item := range out.Relevant {
		src, ok := byID[item.MessageID]
		if !ok {
			// Hallucinated identifier; nothing to cite, drop it.
			continue
		}
		evidence = append(evidence, models.Evidence{
			MessageID: item.MessageID,
			Summary:   item.Summary,
			Relevance: item.Relevance,
			CreatedAt: src.CreatedAt,
		})
	}
	return evidence, nil
}

func buildMapPrompt(queryText string, chunk []models.Message) string {
	var prompt strings.Builder

	prompt.WriteString("Question:\n")
	prompt.WriteString(queryText)
	prompt.WriteString("\n\nMessages:\n")
	for _, m := range chunk {
		prompt.WriteString(fmt.Sprintf("[%s] %s (%s): %s\n",
			m.ID, m.Author, m.CreatedAt.Format(time.RFC3339), m.Body))
	}

	prompt.WriteString("\nFor each message that helps answer the question, rate its relevance ")
	prompt.WriteString("from 0.0 to 1.0 and write a one-sentence summary of what it contributes. ")
	prompt.WriteString("Skip irrelevant messages entirely.\n\n")
	prompt.WriteString("Respond with JSON in this exact structure:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"relevant\": [\n")
	prompt.WriteString("    {\"message_id\": \"...\", \"relevance\": 0.8, \"summary\": \"...\"}\n")
	prompt.WriteString("  ]\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n")

	return prompt.String()
}
