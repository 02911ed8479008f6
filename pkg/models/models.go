package models

import (
	"time"
)

// Message is one ingested platform message. The ingestion service owns these
// rows; the core only reads them.
type Message struct {
	ID        string    `json:"id" db:"id"`
	Author    string    `json:"author" db:"author"`
	Body      string    `json:"body" db:"body"`
	ChannelID string    `json:"channel_id" db:"channel_id"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// ReplyThread is an anchor message plus its replies, oldest first. Threads are
// assembled on demand from storage and are never persisted as a unit.
type ReplyThread struct {
	Anchor  Message   `json:"anchor"`
	Replies []Message `json:"replies"`
}

// VerdictStatus is the lifecycle state of a drift verdict.
type VerdictStatus string

const (
	StatusPending  VerdictStatus = "pending"
	StatusAnalyzed VerdictStatus = "analyzed"
)

// Topic is one off-topic subject the model identified in a reply thread.
type Topic struct {
	Label      string   `json:"label"`
	Keywords   []string `json:"keywords,omitempty"`
	KeyPhrases []string `json:"key_phrases,omitempty"`
	Context    string   `json:"context,omitempty"`
}

// DriftVerdict is the persisted analysis result for one reply thread.
//
// Invariant: HasDrift is true exactly when Topics is non-empty. The normalizer
// enforces this before any verdict reaches storage.
type DriftVerdict struct {
	ThreadID    string        `json:"thread_id" db:"thread_id"`
	HasDrift    bool          `json:"has_drift" db:"has_drift"`
	Topics      []Topic       `json:"topics,omitempty" db:"topics"`
	EvaluatedBy string        `json:"evaluated_by,omitempty" db:"evaluated_by"`
	EvaluatedAt time.Time     `json:"evaluated_at" db:"evaluated_at"`
	Status      VerdictStatus `json:"status" db:"status"`
}

// Evidence is one corpus message the map stage judged relevant to a query,
// with the model's summary and relevance score.
type Evidence struct {
	MessageID string    `json:"message_id"`
	Summary   string    `json:"summary"`
	Relevance float64   `json:"relevance"`
	CreatedAt time.Time `json:"created_at"`
}

// Citation ties one claim in a synthesized answer back to a source message.
type Citation struct {
	MessageID string `json:"message_id"`
	Excerpt   string `json:"excerpt"`
}

// Answer is the final output of a corpus query.
type Answer struct {
	Text      string     `json:"text"`
	Citations []Citation `json:"citations,omitempty"`
}
