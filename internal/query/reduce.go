package query

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/threadscope/internal/llm"
	"github.com/threadscope/pkg/models"
)

// reduceOutput is the JSON shape requested from the final synthesis call.
type reduceOutput struct {
	Answer    string `json:"answer"`
	Citations []struct {
		MessageID string `json:"message_id"`
		Excerpt   string `json:"excerpt"`
	} `json:"citations"`
}

// synthesizeAnswer makes the single reduce call over the resolved evidence.
// If the router exhausts its fallbacks here, the whole query fails; there is
// no degraded partial answer.
func synthesizeAnswer(ctx context.Context, router *llm.Router, queryText string, evidence []models.Evidence, callTimeout time.Duration) (*models.Answer, error) {
	var out reduceOutput
	if _, err := router.Call(ctx, llm.Request{
		System:      "You synthesize answers from cited message evidence. Respond with JSON only.",
		Prompt:      buildReducePrompt(queryText, evidence),
		Temperature: 0.3,
		Timeout:     callTimeout,
		Out:         &out,
	}); err != nil {
		return nil, fmt.Errorf("reduce synthesis failed: %w", err)
	}

	answer := &models.Answer{Text: out.Answer}
	for _, c := range out.Citations {
		answer.Citations = append(answer.Citations, models.Citation{
			MessageID: c.MessageID,
			Excerpt:   c.Excerpt,
		})
	}
	return answer, nil
}

func buildReducePrompt(queryText string, evidence []models.Evidence) string {
	var prompt strings.Builder

	prompt.WriteString("Question:\n")
	prompt.WriteString(queryText)
	prompt.WriteString("\n\nEvidence, strongest first:\n")
	for _, e := range evidence {
		prompt.WriteString(fmt.Sprintf("[%s] (relevance %.2f) %s\n", e.MessageID, e.Relevance, e.Summary))
	}

	prompt.WriteString("\nWrite a direct answer to the question using only the evidence above. ")
	prompt.WriteString("Every claim must cite the message it came from, with a short verbatim excerpt.\n\n")
	prompt.WriteString("Respond with JSON in this exact structure:\n")
	prompt.WriteString("```json\n")
	prompt.WriteString("{\n")
	prompt.WriteString("  \"answer\": \"...\",\n")
	prompt.WriteString("  \"citations\": [\n")
	prompt.WriteString("    {\"message_id\": \"...\", \"excerpt\": \"...\"}\n")
	prompt.WriteString("  ]\n")
	prompt.WriteString("}\n")
	prompt.WriteString("```\n")

	return prompt.String()
}
