package thread

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	domainthread "github.com/defenseunicorns/leapfrogai-sub001/internal/domain/thread"
	portthread "github.com/defenseunicorns/leapfrogai-sub001/internal/port/thread"
)

const fkViolation = "23503"

// Repository is a thread.Remote backed by Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) CreateThread(ctx context.Context, label string) (domainthread.Thread, error) {
	query := `
		INSERT INTO threads (id, label)
		VALUES ($1, $2)
		RETURNING id, label, created_at`

	var (
		t         domainthread.Thread
		createdAt time.Time
	)
	err := r.pool.QueryRow(ctx, query, "thread_"+uuid.NewString(), label).
		Scan(&t.ID, &t.Label, &createdAt)
	if err != nil {
		return domainthread.Thread{}, fmt.Errorf("inserting thread: %w", err)
	}
	t.CreatedAt = domainthread.At(createdAt)
	return t, nil
}

func (r *Repository) DeleteThread(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM threads WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("deleting thread: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, portthread.ErrNotFound)
	}
	return nil
}

func (r *Repository) UpdateThreadLabel(ctx context.Context, id, label string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE threads SET label = $2 WHERE id = $1`, id, label)
	if err != nil {
		return fmt.Errorf("updating thread label: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("thread %s: %w", id, portthread.ErrNotFound)
	}
	return nil
}

func (r *Repository) ListThreads(ctx context.Context) ([]domainthread.Thread, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, label, created_at FROM threads ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing threads: %w", err)
	}
	defer rows.Close()

	var threads []domainthread.Thread
	for rows.Next() {
		var (
			t         domainthread.Thread
			createdAt time.Time
		)
		if err := rows.Scan(&t.ID, &t.Label, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning thread row: %w", err)
		}
		t.CreatedAt = domainthread.At(createdAt)
		threads = append(threads, t)
	}
	return threads, rows.Err()
}

func (r *Repository) CreateMessage(ctx context.Context, req portthread.CreateMessageRequest) (domainthread.Message, error) {
	if !req.Role.Valid() {
		return domainthread.Message{}, fmt.Errorf("inserting message: invalid role %q", req.Role)
	}
	content, err := json.Marshal(req.Content)
	if err != nil {
		return domainthread.Message{}, fmt.Errorf("encoding content: %w", err)
	}
	metadata := req.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	meta, err := json.Marshal(metadata)
	if err != nil {
		return domainthread.Message{}, fmt.Errorf("encoding metadata: %w", err)
	}

	query := `
		INSERT INTO messages (id, thread_id, role, content, assistant_id, metadata)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + messageColumns

	m, err := scanMessage(r.pool.QueryRow(ctx, query,
		"msg_"+uuid.NewString(), req.ThreadID, string(req.Role), content, req.AssistantID, meta,
	))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
			return domainthread.Message{}, fmt.Errorf("thread %s: %w", req.ThreadID, portthread.ErrNotFound)
		}
		return domainthread.Message{}, fmt.Errorf("inserting message: %w", err)
	}
	return m, nil
}

func (r *Repository) ListMessages(ctx context.Context, threadID string) ([]domainthread.Message, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM threads WHERE id = $1)`, threadID).Scan(&exists); err != nil {
		return nil, fmt.Errorf("checking thread: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("thread %s: %w", threadID, portthread.ErrNotFound)
	}

	query := `SELECT ` + messageColumns + `
		FROM messages WHERE thread_id = $1
		ORDER BY created_at ASC, id ASC`

	rows, err := r.pool.Query(ctx, query, threadID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	defer rows.Close()

	var messages []domainthread.Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning message row: %w", err)
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}

func (r *Repository) DeleteMessage(ctx context.Context, threadID, messageID string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE thread_id = $1 AND id = $2`, threadID, messageID)
	if err != nil {
		return fmt.Errorf("deleting message: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("message %s: %w", messageID, portthread.ErrNotFound)
	}
	return nil
}

const messageColumns = `id, thread_id, role, content, assistant_id, metadata, created_at`

func scanMessage(row pgx.Row) (domainthread.Message, error) {
	var (
		m         domainthread.Message
		role      string
		content   []byte
		meta      []byte
		createdAt time.Time
	)
	if err := row.Scan(&m.ID, &m.ThreadID, &role, &content, &m.AssistantID, &meta, &createdAt); err != nil {
		return domainthread.Message{}, err
	}
	if err := json.Unmarshal(content, &m.Content); err != nil {
		return domainthread.Message{}, fmt.Errorf("decoding content: %w", err)
	}
	if err := json.Unmarshal(meta, &m.Metadata); err != nil {
		return domainthread.Message{}, fmt.Errorf("decoding metadata: %w", err)
	}
	if len(m.Metadata) == 0 {
		m.Metadata = nil
	}
	m.Role = domainthread.Role(role)
	m.CreatedAt = domainthread.At(createdAt)
	m.State = domainthread.StatePersisted
	return m, nil
}
