package drift

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/threadscope/pkg/models"
)

func decode(t *testing.T, raw string) any {
	t.Helper()
	var v any
	require.NoError(t, json.Unmarshal([]byte(raw), &v))
	return v
}

func TestNormalizeCanonical(t *testing.T) {
	raw := decode(t, `{"has_drift": true, "topics": [{"label": "billing", "keywords": ["invoice"]}]}`)

	hasDrift, topics, outcome := Normalize(raw)
	assert.True(t, hasDrift)
	require.Len(t, topics, 1)
	assert.Equal(t, "billing", topics[0].Label)
	assert.Equal(t, OutcomeCanonical, outcome)
}

func TestNormalizeCanonicalNoDrift(t *testing.T) {
	hasDrift, topics, outcome := Normalize(decode(t, `{"has_drift": false, "topics": []}`))
	assert.False(t, hasDrift)
	assert.Empty(t, topics)
	assert.NotNil(t, topics)
	assert.Equal(t, OutcomeCanonical, outcome)
}

func TestNormalizeMissingTopicsKey(t *testing.T) {
	// A bare negative is a valid verdict.
	hasDrift, topics, outcome := Normalize(decode(t, `{"has_drift": false}`))
	assert.False(t, hasDrift)
	assert.NotNil(t, topics)
	assert.Equal(t, OutcomeCanonical, outcome)

	// A positive flag with the topics key missing is a defect, not a
	// no-drift verdict, and must be flagged as defaulted.
	_, _, outcome = Normalize(decode(t, `{"has_drift": true}`))
	assert.Equal(t, OutcomeDefaulted, outcome)

	// A non-boolean flag is equally unusable.
	_, _, outcome = Normalize(decode(t, `{"has_drift": "maybe"}`))
	assert.Equal(t, OutcomeDefaulted, outcome)
}

func TestNormalizeEnforcesEquivalence(t *testing.T) {
	// The model's has_drift flag is not trusted; topics decide.
	hasDrift, _, _ := Normalize(decode(t, `{"has_drift": false, "topics": [{"label": "off-topic"}]}`))
	assert.True(t, hasDrift)

	hasDrift, _, _ = Normalize(decode(t, `{"has_drift": true, "topics": []}`))
	assert.False(t, hasDrift)
}

func TestNormalizeDoubleWrapped(t *testing.T) {
	raw := decode(t, `{"has_drift": true, "topics": {"has_drift": true, "topics": [{"label": "hiring"}]}}`)

	hasDrift, topics, outcome := Normalize(raw)
	assert.True(t, hasDrift)
	require.Len(t, topics, 1)
	assert.Equal(t, "hiring", topics[0].Label)
	assert.Equal(t, OutcomeUnwrapped, outcome)
}

func TestNormalizeWrapperInsideSequence(t *testing.T) {
	raw := decode(t, `{"has_drift": true, "topics": [{"has_drift": true, "topics": [{"label": "hiring"}]}]}`)

	hasDrift, topics, outcome := Normalize(raw)
	assert.True(t, hasDrift)
	require.Len(t, topics, 1)
	assert.Equal(t, "hiring", topics[0].Label)
	assert.Equal(t, OutcomeUnwrapped, outcome)
}

func TestNormalizeBareSequence(t *testing.T) {
	raw := decode(t, `[{"label": "gaming", "context": "reply 3 pivots to game recommendations"}]`)

	hasDrift, topics, outcome := Normalize(raw)
	assert.True(t, hasDrift)
	require.Len(t, topics, 1)
	assert.Equal(t, "gaming", topics[0].Label)
	assert.Equal(t, OutcomeWrapped, outcome)
}

func TestNormalizeSafeDefault(t *testing.T) {
	cases := []any{
		decode(t, `"no drift detected"`),
		decode(t, `42`),
		decode(t, `{"verdict": "fine"}`),
		decode(t, `["just", "strings"]`),
		decode(t, `{"has_drift": true, "topics": "billing"}`),
		nil,
	}
	for _, raw := range cases {
		hasDrift, topics, outcome := Normalize(raw)
		assert.False(t, hasDrift, "raw: %v", raw)
		assert.Empty(t, topics)
		assert.NotNil(t, topics)
		assert.Equal(t, OutcomeDefaulted, outcome, "raw: %v", raw)
	}
}

func TestNormalizeIdempotent(t *testing.T) {
	raw := decode(t, `{"has_drift": true, "topics": [{"label": "billing"}]}`)
	hasDrift, topics, _ := Normalize(raw)

	// Round-trip the canonical output back through the normalizer.
	buf, err := json.Marshal(map[string]any{"has_drift": hasDrift, "topics": topics})
	require.NoError(t, err)
	again, topicsAgain, outcome := Normalize(decode(t, string(buf)))

	assert.Equal(t, hasDrift, again)
	assert.Equal(t, topics, topicsAgain)
	assert.Equal(t, OutcomeCanonical, outcome)
}

func TestNormalizeVerdict(t *testing.T) {
	v := NormalizeVerdict(models.DriftVerdict{HasDrift: true, Topics: nil})
	assert.False(t, v.HasDrift)
	assert.NotNil(t, v.Topics)

	v = NormalizeVerdict(models.DriftVerdict{HasDrift: false, Topics: []models.Topic{{Label: "x"}}})
	assert.True(t, v.HasDrift)
}
