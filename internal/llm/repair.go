package llm

import (
	"encoding/json"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// RepairStats records what DecodeJSON had to do to make a response parseable.
type RepairStats struct {
	OriginalBytes int      `json:"original_bytes"`
	RepairedBytes int      `json:"repaired_bytes"`
	Strategies    []string `json:"strategies,omitempty"`
	WasRepaired   bool     `json:"was_repaired"`
}

var trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)

// DecodeJSON extracts the JSON payload from a raw model response and decodes
// it into v, repairing common LLM defects (markdown fences, surrounding prose,
// trailing commas, truncated structures) along the way. It returns the repair
// stats and an error when no usable JSON could be recovered.
func DecodeJSON(raw string, v any) (RepairStats, error) {
	stats := RepairStats{OriginalBytes: len(raw)}

	payload := ExtractJSON(raw)
	if payload == "" {
		stats.Strategies = append(stats.Strategies, "no_json_found")
		return stats, errNoJSON
	}

	if json.Unmarshal([]byte(payload), v) == nil {
		stats.RepairedBytes = len(payload)
		return stats, nil
	}
	stats.WasRepaired = true

	// Cheap fixes first: trailing commas, then unclosed structures.
	if trailingCommaRe.MatchString(payload) {
		payload = trailingCommaRe.ReplaceAllString(payload, "$1")
		stats.Strategies = append(stats.Strategies, "trailing_commas")
	}
	if closed := closeOpenStructures(payload); closed != payload {
		payload = closed
		stats.Strategies = append(stats.Strategies, "completion")
	}
	if json.Unmarshal([]byte(payload), v) == nil {
		stats.RepairedBytes = len(payload)
		return stats, nil
	}

	// The jsonrepair library handles the long tail: unescaped quotes,
	// single-quoted strings, bare keys.
	repaired, err := jsonrepair.JSONRepair(payload)
	if err == nil {
		stats.Strategies = append(stats.Strategies, "jsonrepair_library")
		if json.Unmarshal([]byte(repaired), v) == nil {
			stats.RepairedBytes = len(repaired)
			return stats, nil
		}
	}

	stats.RepairedBytes = len(payload)
	return stats, errUnparseable
}

var (
	errNoJSON      = strError("no JSON found in model response")
	errUnparseable = strError("model response is not parseable JSON after repair")
)

type strError string

func (e strError) Error() string { return string(e) }

// ExtractJSON pulls the JSON object or array out of a model response that may
// wrap it in markdown fences or explanatory text.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "{") || strings.HasPrefix(raw, "[") {
		return raw
	}

	if strings.Contains(raw, "```") {
		var inBlock bool
		var block []string
		for _, line := range strings.Split(raw, "\n") {
			if strings.HasPrefix(strings.TrimSpace(line), "```") {
				inBlock = !inBlock
				continue
			}
			if inBlock {
				block = append(block, line)
			}
		}
		if len(block) > 0 {
			return strings.TrimSpace(strings.Join(block, "\n"))
		}
	}

	// Fall back to the first balanced {...} or [...] span.
	start := strings.IndexAny(raw, "{[")
	if start == -1 {
		return ""
	}
	open := raw[start]
	var close byte = '}'
	if open == '[' {
		close = ']'
	}
	depth := 0
	for i := start; i < len(raw); i++ {
		switch raw[i] {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	// Unbalanced: return the tail and let the repair pass close it.
	return raw[start:]
}

// closeOpenStructures appends the closing braces/brackets a truncated response
// is missing, innermost first.
func closeOpenStructures(s string) string {
	var stack []byte
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			escaped = true
		case '"':
			inString = !inString
		case '{':
			if !inString {
				stack = append(stack, '}')
			}
		case '[':
			if !inString {
				stack = append(stack, ']')
			}
		case '}', ']':
			if !inString && len(stack) > 0 && stack[len(stack)-1] == c {
				stack = stack[:len(stack)-1]
			}
		}
	}
	for i := len(stack) - 1; i >= 0; i-- {
		s += string(stack[i])
	}
	return s
}
