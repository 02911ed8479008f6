package drift

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/threadscope/pkg/models"
)

// Outcome records which repair rule produced the canonical verdict. Defaulted
// outcomes are logged distinctly so a repaired garbage response is never
// mistaken for a genuine no-drift verdict.
type Outcome string

const (
	OutcomeCanonical Outcome = "canonical"
	OutcomeUnwrapped Outcome = "unwrapped"
	OutcomeWrapped   Outcome = "wrapped_sequence"
	OutcomeDefaulted Outcome = "defaulted"
)

// maxUnwrapDepth bounds how many nested {has_drift, topics} wrappers the
// normalizer will peel before giving up.
const maxUnwrapDepth = 2

// Normalize converts an arbitrary decoded model response into the canonical
// verdict shape: HasDrift true exactly when Topics is non-empty. It is the
// single boundary between untyped model JSON and the typed verdict; it is
// idempotent on its own output, and anything unrecognizable collapses to the
// safe default {false, []}.
func Normalize(raw any) (bool, []models.Topic, Outcome) {
	outcome := OutcomeCanonical

	switch v := raw.(type) {
	case map[string]any:
		topicsVal, ok := v["topics"]
		if !ok {
			// {has_drift: false} with topics absent is a valid negative.
			// A true flag with no topics is a missing-key defect and must
			// not pass as a clean verdict.
			if flag, isBool := v["has_drift"].(bool); isBool && !flag {
				return false, []models.Topic{}, OutcomeCanonical
			}
			return defaulted(raw)
		}

		// Peel doubly-wrapped verdicts: topics holding another
		// {has_drift, topics} object instead of a sequence.
		depth := 0
		for depth < maxUnwrapDepth {
			inner, isWrapper := wrapperValue(topicsVal)
			if !isWrapper {
				break
			}
			topicsVal = inner
			outcome = OutcomeUnwrapped
			depth++
		}

		seq, ok := topicsVal.([]any)
		if !ok {
			if topicsVal == nil {
				return false, []models.Topic{}, outcome
			}
			return defaulted(raw)
		}
		topics, ok := decodeTopics(seq)
		if !ok {
			return defaulted(raw)
		}
		return len(topics) > 0, topics, outcome

	case []any:
		// Bare sequence: treat as the topics list itself.
		topics, ok := decodeTopics(v)
		if !ok {
			return defaulted(raw)
		}
		if len(topics) == 0 {
			return false, []models.Topic{}, OutcomeWrapped
		}
		return true, topics, OutcomeWrapped
	}

	return defaulted(raw)
}

// NormalizeVerdict is Normalize applied to an existing typed verdict,
// re-enforcing the drift/topics equivalence. Used to keep write paths
// canonical regardless of where the verdict came from.
func NormalizeVerdict(v models.DriftVerdict) models.DriftVerdict {
	if v.Topics == nil {
		v.Topics = []models.Topic{}
	}
	v.HasDrift = len(v.Topics) > 0
	return v
}

func defaulted(raw any) (bool, []models.Topic, Outcome) {
	log.Warn().
		Interface("raw", raw).
		Str("repair", string(OutcomeDefaulted)).
		Msg("Unrecognizable drift response, using safe default verdict")
	return false, []models.Topic{}, OutcomeDefaulted
}

// wrapperValue reports whether v is a {has_drift, topics} wrapper (directly,
// or a single-element sequence holding one) and returns its inner topics.
func wrapperValue(v any) (any, bool) {
	if m, ok := v.(map[string]any); ok {
		if inner, hasTopics := m["topics"]; hasTopics {
			if _, hasDrift := m["has_drift"]; hasDrift {
				return inner, true
			}
		}
		return nil, false
	}
	if seq, ok := v.([]any); ok && len(seq) == 1 {
		if m, ok := seq[0].(map[string]any); ok {
			if inner, hasTopics := m["topics"]; hasTopics {
				if _, hasDrift := m["has_drift"]; hasDrift {
					return inner, true
				}
			}
		}
	}
	return nil, false
}

// decodeTopics converts a decoded JSON sequence into typed topics via a
// round-trip. Entries that are not topic objects fail the whole decode; the
// caller falls back to the safe default.
func decodeTopics(seq []any) ([]models.Topic, bool) {
	if len(seq) == 0 {
		return []models.Topic{}, true
	}
	for _, item := range seq {
		if _, ok := item.(map[string]any); !ok {
			return nil, false
		}
	}
	buf, err := json.Marshal(seq)
	if err != nil {
		return nil, false
	}
	var topics []models.Topic
	if err := json.Unmarshal(buf, &topics); err != nil {
		return nil, false
	}
	return topics, true
}
