package drift

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/threadscope/internal/llm"
	"github.com/threadscope/pkg/models"
)

// Analyzer judges whether one reply thread drifts from its anchor by making a
// single routed model call and normalizing the result.
type Analyzer struct {
	router      *llm.Router
	callTimeout time.Duration
}

func NewAnalyzer(router *llm.Router, callTimeout time.Duration) *Analyzer {
	return &Analyzer{router: router, callTimeout: callTimeout}
}

// Analyze returns the canonical verdict for a thread. Threads with no replies
// short-circuit to a no-drift verdict without any model call. A router
// failure (exhausted providers, unparseable output) is returned as an error
// so the caller can leave the thread pending for the next cycle.
func (a *Analyzer) Analyze(ctx context.Context, thread *models.ReplyThread) (models.DriftVerdict, Outcome, error) {
	verdict := models.DriftVerdict{
		ThreadID:    thread.Anchor.ID,
		Topics:      []models.Topic{},
		EvaluatedAt: time.Now().UTC(),
		Status:      models.StatusAnalyzed,
	}

	if len(thread.Replies) == 0 {
		// Nothing can drift from nothing.
		return verdict, OutcomeCanonical, nil
	}

	var raw any
	resp, err := a.router.Call(ctx, llm.Request{
		System:      "You detect when a discussion thread drifts away from its original topic. Respond with JSON only.",
		Prompt:      buildDriftPrompt(thread),
		Temperature: 0.2,
		Timeout:     a.callTimeout,
		Out:         &raw,
	})
	if err != nil {
		return models.DriftVerdict{}, "", err
	}

	hasDrift, topics, outcome := Normalize(raw)
	verdict.HasDrift = hasDrift
	verdict.Topics = topics
	verdict.EvaluatedBy = fmt.Sprintf("%s/%s", resp.Provider, resp.Model)
	return verdict, outcome, nil
}

func buildDriftPrompt(thread *models.ReplyThread) string {
	var prompt strings.Builder

	prompt.WriteString("Original message:\n")
	prompt.WriteString(fmt.Sprintf("%s: %s\n", thread.Anchor.Author, thread.Anchor.Body))
	prompt.WriteString("\nReplies, oldest first:\n")
	for _, r := range thread.Replies {
		prompt.WriteString(fmt.Sprintf("%s: %s\n", r.Author, r.Body))
	}

	prompt.WriteString("\nDo the replies introduce topics materially different from the ")
	prompt.WriteString("original message's topic? List each such topic. If the replies stay ")
	prompt.WriteString("on topic, report no drift.\n\n")
	prompt.WriteString("Respond with JSON in this exact structure:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"has_drift\": true,\n")
	prompt.WriteString("  \"topics\": [\n")
	prompt.WriteString("    {\n")
	prompt.WriteString("      \"label\": \"short topic name\",\n")
	prompt.WriteString("      \"keywords\": [\"...\"],\n")
	prompt.WriteString("      \"key_phrases\": [\"verbatim excerpt from a reply\"],\n")
	prompt.WriteString("      \"context\": \"one sentence on how the topic entered the thread\"\n")
	prompt.WriteString("    }\n")
	prompt.WriteString("  ]\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n")
	prompt.WriteString("Use has_drift=false and an empty topics list when there is no drift. ")
	prompt.WriteString("Do not nest another has_drift object inside topics.\n")

	return prompt.String()
}
