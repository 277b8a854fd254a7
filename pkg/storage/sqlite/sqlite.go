// Package sqlite provides a SQLite-backed storage driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/papercomputeco/sensei/pkg/artifact"
	"github.com/papercomputeco/sensei/pkg/storage"
	"github.com/papercomputeco/sensei/pkg/storage/migrations"
)

// SQLiteDriver implements storage.Driver using SQLite.
type SQLiteDriver struct {
	db *sql.DB
}

// NewSQLiteDriver creates a new SQLite-backed store and applies the schema.
// The dbPath can be a file path or ":memory:" for an in-memory database.
func NewSQLiteDriver(dbPath string) (*SQLiteDriver, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// One writer at a time; for ":memory:" this also keeps every query on
	// the same in-memory database.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := migrations.SQLite(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &SQLiteDriver{db: db}, nil
}

// DB exposes the underlying handle for components sharing the database file.
func (d *SQLiteDriver) DB() *sql.DB {
	return d.db
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

// AppendMessage stores m and returns it with its assigned ID.
func (d *SQLiteDriver) AppendMessage(ctx context.Context, m *storage.Message) (*storage.Message, error) {
	if m == nil {
		return nil, errors.New("cannot store nil message")
	}

	attachments, err := json.Marshal(nonNilAttachments(m.Attachments))
	if err != nil {
		return nil, fmt.Errorf("encoding attachments: %w", err)
	}

	stored := *m
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now().UTC()
	}

	res, err := d.db.ExecContext(ctx,
		`INSERT INTO messages (conversation_id, role, content, attachments, created_at) VALUES (?, ?, ?, ?, ?)`,
		stored.ConversationID, stored.Role, stored.Content, string(attachments), stored.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}

	stored.ID, err = res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("reading message id: %w", err)
	}
	return &stored, nil
}

func nonNilAttachments(a []storage.Attachment) []storage.Attachment {
	if a == nil {
		return []storage.Attachment{}
	}
	return a
}

const messageColumns = `id, conversation_id, role, content, attachments, created_at`

func scanMessages(rows *sql.Rows) ([]*storage.Message, error) {
	defer rows.Close()

	var out []*storage.Message
	for rows.Next() {
		var (
			m           storage.Message
			attachments string
		)
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &attachments, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning message: %w", err)
		}
		if err := json.Unmarshal([]byte(attachments), &m.Attachments); err != nil {
			return nil, fmt.Errorf("decoding attachments: %w", err)
		}
		if len(m.Attachments) == 0 {
			m.Attachments = nil
		}
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ListMessages returns every message of a conversation in ID order.
func (d *SQLiteDriver) ListMessages(ctx context.Context, conversationID string) ([]*storage.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? ORDER BY id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return scanMessages(rows)
}

// ListMessageRange returns the inclusive ID range of a conversation.
func (d *SQLiteDriver) ListMessageRange(ctx context.Context, conversationID string, startID, endID int64) ([]*storage.Message, error) {
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE conversation_id = ? AND id BETWEEN ? AND ? ORDER BY id`,
		conversationID, startID, endID)
	if err != nil {
		return nil, fmt.Errorf("listing message range: %w", err)
	}
	return scanMessages(rows)
}

const episodeColumns = `id, session_id, status, start_message_id, end_message_id, summary, created_at, closed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (*storage.Episode, error) {
	var (
		ep       storage.Episode
		status   string
		summary  sql.NullString
		closedAt sql.NullTime
	)
	if err := row.Scan(&ep.ID, &ep.SessionID, &status, &ep.StartMessageID, &ep.EndMessageID, &summary, &ep.CreatedAt, &closedAt); err != nil {
		return nil, err
	}
	ep.Status = storage.EpisodeStatus(status)
	if summary.Valid {
		ep.Summary = &summary.String
	}
	if closedAt.Valid {
		ep.ClosedAt = &closedAt.Time
	}
	return &ep, nil
}

// GetOpenEpisode returns the session's OPEN episode.
func (d *SQLiteDriver) GetOpenEpisode(ctx context.Context, sessionID string) (*storage.Episode, error) {
	row := d.db.QueryRowContext(ctx,
		`SELECT `+episodeColumns+` FROM episodes WHERE session_id = ? AND status = ?`, sessionID, string(storage.EpisodeOpen))
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "open episode", ID: sessionID}
	}
	if err != nil {
		return nil, fmt.Errorf("getting open episode: %w", err)
	}
	return ep, nil
}

// CreateEpisode inserts an OPEN episode; the partial unique index rejects a
// second OPEN episode for the same session.
func (d *SQLiteDriver) CreateEpisode(ctx context.Context, ep *storage.Episode) error {
	if ep == nil || ep.ID == "" || ep.SessionID == "" {
		return errors.New("episode requires an id and a session id")
	}

	ep.Status = storage.EpisodeOpen
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = time.Now().UTC()
	}

	_, err := d.db.ExecContext(ctx,
		`INSERT INTO episodes (id, session_id, status, start_message_id, end_message_id, summary, created_at) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ep.ID, ep.SessionID, string(ep.Status), ep.StartMessageID, ep.EndMessageID, ep.Summary, ep.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) && strings.Contains(err.Error(), "episodes.session_id") {
			return storage.ErrOpenEpisodeExists
		}
		return fmt.Errorf("inserting episode: %w", err)
	}
	return nil
}

// GetEpisode fetches an episode by ID.
func (d *SQLiteDriver) GetEpisode(ctx context.Context, id string) (*storage.Episode, error) {
	row := d.db.QueryRowContext(ctx, `SELECT `+episodeColumns+` FROM episodes WHERE id = ?`, id)
	ep, err := scanEpisode(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "episode", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting episode: %w", err)
	}
	return ep, nil
}

// ExtendEpisode records messageID on an OPEN episode.
func (d *SQLiteDriver) ExtendEpisode(ctx context.Context, id string, messageID int64) (*storage.Episode, error) {
	res, err := d.db.ExecContext(ctx, `
		UPDATE episodes
		SET start_message_id = CASE WHEN start_message_id = 0 THEN ? ELSE start_message_id END,
		    end_message_id   = MAX(end_message_id, ?)
		WHERE id = ? AND status = ?`,
		messageID, messageID, id, string(storage.EpisodeOpen))
	if err != nil {
		return nil, fmt.Errorf("extending episode: %w", err)
	}
	if err := d.expectOneRow(ctx, res, id); err != nil {
		return nil, err
	}
	return d.GetEpisode(ctx, id)
}

// TransitionEpisode performs a status compare-and-set.
func (d *SQLiteDriver) TransitionEpisode(ctx context.Context, id string, from, to storage.EpisodeStatus, summary *string) (*storage.Episode, error) {
	var closedAt any
	if to == storage.EpisodeClosed || to == storage.EpisodeFailed {
		closedAt = time.Now().UTC()
	}

	res, err := d.db.ExecContext(ctx, `
		UPDATE episodes
		SET status    = ?,
		    summary   = COALESCE(?, summary),
		    closed_at = COALESCE(closed_at, ?)
		WHERE id = ? AND status = ?`,
		string(to), summary, closedAt, id, string(from))
	if err != nil {
		return nil, fmt.Errorf("transitioning episode: %w", err)
	}
	if err := d.expectOneRow(ctx, res, id); err != nil {
		return nil, err
	}
	return d.GetEpisode(ctx, id)
}

// expectOneRow maps a zero-row conditional update to NotFoundError or
// ErrStatusConflict.
func (d *SQLiteDriver) expectOneRow(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}
	if n == 1 {
		return nil
	}
	if _, err := d.GetEpisode(ctx, id); err != nil {
		return err
	}
	return storage.ErrStatusConflict
}

// GetSummary returns the conversation summary, zero-valued when absent.
func (d *SQLiteDriver) GetSummary(ctx context.Context, conversationID string) (*storage.Summary, error) {
	var (
		text      sql.NullString
		updatedAt time.Time
	)
	s := &storage.Summary{ConversationID: conversationID}

	err := d.db.QueryRowContext(ctx,
		`SELECT summary, last_summarized_message_id, updated_at FROM conversation_summaries WHERE conversation_id = ?`,
		conversationID).Scan(&text, &s.LastSummarizedMessageID, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return s, nil
	}
	if err != nil {
		return nil, fmt.Errorf("getting summary: %w", err)
	}
	if text.Valid {
		s.Text = &text.String
	}
	s.UpdatedAt = &updatedAt
	return s, nil
}

// AdvanceSummary writes the summary and bookmark in one transaction, only
// if the stored bookmark still equals expected.
func (d *SQLiteDriver) AdvanceSummary(ctx context.Context, conversationID string, expected int64, text string, newBookmark int64) error {
	if newBookmark < expected {
		return storage.ErrBookmarkRegression
	}

	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		UPDATE conversation_summaries
		SET summary = ?, last_summarized_message_id = ?, updated_at = ?
		WHERE conversation_id = ? AND last_summarized_message_id = ?`,
		text, newBookmark, now, conversationID, expected)
	if err != nil {
		return fmt.Errorf("updating summary: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading affected rows: %w", err)
	}

	if n == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM conversation_summaries WHERE conversation_id = ?`, conversationID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("checking summary: %w", err)
		}
		if exists > 0 || expected != 0 {
			return storage.ErrBookmarkConflict
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO conversation_summaries (conversation_id, summary, last_summarized_message_id, updated_at) VALUES (?, ?, ?, ?)`,
			conversationID, text, newBookmark, now); err != nil {
			if isUniqueViolation(err) {
				return storage.ErrBookmarkConflict
			}
			return fmt.Errorf("inserting summary: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing summary: %w", err)
	}
	return nil
}

// PendingSummaries lists conversations with more than rawBuffer messages
// past their bookmark.
func (d *SQLiteDriver) PendingSummaries(ctx context.Context, rawBuffer int) ([]string, error) {
	rows, err := d.db.QueryContext(ctx, `
		SELECT m.conversation_id
		FROM messages m
		LEFT JOIN conversation_summaries s ON s.conversation_id = m.conversation_id
		WHERE m.id > COALESCE(s.last_summarized_message_id, 0)
		GROUP BY m.conversation_id
		HAVING COUNT(*) > ?
		ORDER BY m.conversation_id`, rawBuffer)
	if err != nil {
		return nil, fmt.Errorf("listing pending summaries: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning conversation id: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CreateArtifact stores p with a fresh UUID.
func (d *SQLiteDriver) CreateArtifact(ctx context.Context, userID string, p artifact.Proposal) (*artifact.Reference, error) {
	data, err := json.Marshal(p.Data)
	if err != nil {
		return nil, fmt.Errorf("encoding artifact data: %w", err)
	}

	ref := &artifact.Reference{
		ID:        uuid.NewString(),
		UserID:    userID,
		Type:      p.Type,
		Title:     p.Title,
		Data:      p.Data,
		CreatedAt: time.Now().UTC(),
	}

	if _, err := d.db.ExecContext(ctx,
		`INSERT INTO artifacts (id, user_id, type, title, data, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		ref.ID, ref.UserID, ref.Type, ref.Title, string(data), ref.CreatedAt); err != nil {
		return nil, fmt.Errorf("inserting artifact: %w", err)
	}
	return ref, nil
}

const artifactColumns = `id, user_id, type, title, data, created_at`

func scanArtifact(row rowScanner) (*artifact.Reference, error) {
	var (
		ref  artifact.Reference
		data string
	)
	if err := row.Scan(&ref.ID, &ref.UserID, &ref.Type, &ref.Title, &data, &ref.CreatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &ref.Data); err != nil {
		return nil, fmt.Errorf("decoding artifact data: %w", err)
	}
	return &ref, nil
}

// GetArtifact fetches an artifact by ID.
func (d *SQLiteDriver) GetArtifact(ctx context.Context, id string) (*artifact.Reference, error) {
	ref, err := scanArtifact(d.db.QueryRowContext(ctx, `SELECT `+artifactColumns+` FROM artifacts WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.NotFoundError{Kind: "artifact", ID: id}
	}
	if err != nil {
		return nil, fmt.Errorf("getting artifact: %w", err)
	}
	return ref, nil
}

// RecentArtifacts returns the user's newest artifacts.
func (d *SQLiteDriver) RecentArtifacts(ctx context.Context, userID string, limit int) ([]*artifact.Reference, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := d.db.QueryContext(ctx,
		`SELECT `+artifactColumns+` FROM artifacts WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	defer rows.Close()

	var out []*artifact.Reference
	for rows.Next() {
		ref, err := scanArtifact(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning artifact: %w", err)
		}
		out = append(out, ref)
	}
	return out, rows.Err()
}

// Close closes the database.
func (d *SQLiteDriver) Close() error {
	return d.db.Close()
}
