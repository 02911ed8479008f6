package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/threadscope/pkg/models"
)

// PostgresStore implements Store over the schema owned by the ingestion and
// migration collaborators: a messages table keyed by platform message ID, a
// parent_id column linking replies to anchors, and a drift_verdicts table.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore { return &PostgresStore{db: db} }

func (s *PostgresStore) FetchPendingThreads(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT v.thread_id
        FROM drift_verdicts v
        JOIN messages m ON m.id = v.thread_id
        WHERE v.status = 'pending'
        ORDER BY m.created_at ASC
        LIMIT $1
    `, limit)
	if err != nil {
		return nil, fmt.Errorf("fetch pending threads: %w", err)
	}
	defer rows.Close()

	ids := make([]string, 0)
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *PostgresStore) FetchThread(ctx context.Context, id string) (*models.ReplyThread, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, author, body, coalesce(channel_id,''), created_at
        FROM messages WHERE id=$1
    `, id)

	var thread models.ReplyThread
	if err := row.Scan(&thread.Anchor.ID, &thread.Anchor.Author, &thread.Anchor.Body,
		&thread.Anchor.ChannelID, &thread.Anchor.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("fetch anchor %s: %w", id, err)
	}

	rows, err := s.db.QueryContext(ctx, `
        SELECT id, author, body, coalesce(channel_id,''), created_at
        FROM messages WHERE parent_id=$1
        ORDER BY created_at ASC, id ASC
    `, id)
	if err != nil {
		return nil, fmt.Errorf("fetch replies for %s: %w", id, err)
	}
	defer rows.Close()

	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Author, &m.Body, &m.ChannelID, &m.CreatedAt); err != nil {
			return nil, err
		}
		thread.Replies = append(thread.Replies, m)
	}
	return &thread, rows.Err()
}

func (s *PostgresStore) UpsertVerdict(ctx context.Context, id string, v models.DriftVerdict) error {
	topicsJSON, err := json.Marshal(v.Topics)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
        INSERT INTO drift_verdicts (thread_id, has_drift, topics, evaluated_by, evaluated_at, status)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (thread_id) DO UPDATE
        SET has_drift=EXCLUDED.has_drift, topics=EXCLUDED.topics,
            evaluated_by=EXCLUDED.evaluated_by, evaluated_at=EXCLUDED.evaluated_at,
            status=EXCLUDED.status
    `, id, v.HasDrift, topicsJSON, nullIfEmpty(v.EvaluatedBy), v.EvaluatedAt, string(v.Status))
	if err != nil {
		return fmt.Errorf("upsert verdict %s: %w", id, err)
	}
	return nil
}

func (s *PostgresStore) FetchVerdict(ctx context.Context, id string) (*models.DriftVerdict, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT thread_id, has_drift, topics, coalesce(evaluated_by,''), evaluated_at, status
        FROM drift_verdicts WHERE thread_id=$1
    `, id)

	var v models.DriftVerdict
	var topicsJSON []byte
	var status string
	if err := row.Scan(&v.ThreadID, &v.HasDrift, &topicsJSON, &v.EvaluatedBy, &v.EvaluatedAt, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrThreadNotFound
		}
		return nil, fmt.Errorf("fetch verdict %s: %w", id, err)
	}
	v.Status = models.VerdictStatus(status)
	if len(topicsJSON) > 0 {
		if err := json.Unmarshal(topicsJSON, &v.Topics); err != nil {
			return nil, fmt.Errorf("decode topics for %s: %w", id, err)
		}
	}
	return &v, nil
}

func (s *PostgresStore) ListVerdicts(ctx context.Context, status models.VerdictStatus) ([]models.DriftVerdict, error) {
	query := `
        SELECT thread_id, has_drift, topics, coalesce(evaluated_by,''), evaluated_at, status
        FROM drift_verdicts`
	args := []any{}
	if status != "" {
		query += ` WHERE status=$1`
		args = append(args, string(status))
	}
	query += ` ORDER BY thread_id ASC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list verdicts: %w", err)
	}
	defer rows.Close()

	out := make([]models.DriftVerdict, 0)
	for rows.Next() {
		var v models.DriftVerdict
		var topicsJSON []byte
		var st string
		if err := rows.Scan(&v.ThreadID, &v.HasDrift, &topicsJSON, &v.EvaluatedBy, &v.EvaluatedAt, &st); err != nil {
			return nil, err
		}
		v.Status = models.VerdictStatus(st)
		if len(topicsJSON) > 0 {
			if err := json.Unmarshal(topicsJSON, &v.Topics); err != nil {
				return nil, fmt.Errorf("decode topics for %s: %w", v.ThreadID, err)
			}
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

func (s *PostgresStore) FetchCorpus(ctx context.Context, channelID string, limit int) ([]models.Message, error) {
	query := `
        SELECT id, author, body, coalesce(channel_id,''), created_at
        FROM messages`
	args := []any{}
	if channelID != "" {
		query += ` WHERE channel_id=$1`
		args = append(args, channelID)
	}
	query += ` ORDER BY created_at ASC, id ASC`
	if limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, len(args)+1)
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("fetch corpus: %w", err)
	}
	defer rows.Close()

	out := make([]models.Message, 0)
	for rows.Next() {
		var m models.Message
		if err := rows.Scan(&m.ID, &m.Author, &m.Body, &m.ChannelID, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
