package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// PGSessionStore implements store.SessionStore backed by Postgres.
// Turns live in a separate session_turns table; AppendTurns writes them
// in one transaction together with the parent row's turn count.
type PGSessionStore struct {
	db *sql.DB
}

func NewPGSessionStore(db *sql.DB) *PGSessionStore {
	return &PGSessionStore{db: db}
}

const sessionSelectCols = `id, scope, user_id, agent_id, title, status, turn_count, created_at, updated_at`

func (s *PGSessionStore) Load(ctx context.Context, scope, userID, sessionID string) (*store.SessionData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionSelectCols+` FROM sessions
		 WHERE id = $1 AND scope = $2 AND user_id = $3`,
		sessionID, scope, userID)
	return scanSessionRow(row)
}

func (s *PGSessionStore) Create(ctx context.Context, scope, userID, sessionID string) (*store.SessionData, error) {
	now := time.Now()
	sess := store.SessionData{
		ID:        sessionID,
		Scope:     scope,
		UserID:    userID,
		Status:    store.SessionActive,
		CreatedAt: now,
		UpdatedAt: now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, scope, user_id, status, turn_count, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, 0, $5, $6)`,
		sess.ID, sess.Scope, sess.UserID, sess.Status, now, now)
	if err != nil {
		return nil, err
	}
	return &sess, nil
}

func (s *PGSessionStore) Get(ctx context.Context, sessionID string) (*store.SessionData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sessionSelectCols+` FROM sessions WHERE id = $1`, sessionID)
	return scanSessionRow(row)
}

func (s *PGSessionStore) Turns(ctx context.Context, sessionID string, limit int) ([]store.Turn, error) {
	// Oldest first; with a limit we still want the most recent window,
	// so page from the tail and flip.
	q := `SELECT id, session_id, role, content, created_at FROM session_turns
	      WHERE session_id = $1 ORDER BY created_at, id`
	args := []any{sessionID}
	if limit > 0 {
		q = `SELECT id, session_id, role, content, created_at FROM (
		       SELECT id, session_id, role, content, created_at FROM session_turns
		       WHERE session_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2
		     ) t ORDER BY created_at, id`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []store.Turn
	for rows.Next() {
		var t store.Turn
		if err := rows.Scan(&t.ID, &t.SessionID, &t.Role, &t.Content, &t.CreatedAt); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

func (s *PGSessionStore) AppendTurns(ctx context.Context, sessionID string, turns []store.Turn) error {
	if len(turns) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	for _, t := range turns {
		id := t.ID
		if id == uuid.Nil {
			id = store.GenNewID()
		}
		created := t.CreatedAt
		if created.IsZero() {
			created = now
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO session_turns (id, session_id, role, content, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			id, sessionID, t.Role, t.Content, created); err != nil {
			return fmt.Errorf("append turn: %w", err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`UPDATE sessions SET turn_count = turn_count + $2, updated_at = $3 WHERE id = $1`,
		sessionID, len(turns), now)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}

	return tx.Commit()
}

func (s *PGSessionStore) SetMetadata(ctx context.Context, sessionID string, agentID uuid.UUID, title string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET
			agent_id = COALESCE(agent_id, $2),
			title = COALESCE(title, NULLIF($3, '')),
			updated_at = NOW()
		 WHERE id = $1`,
		sessionID, nilUUID(agentID), title)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGSessionStore) List(ctx context.Context, userID string, opts store.SessionListOpts) (*store.SessionListResult, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	where := ` WHERE user_id = $1`
	whereArgs := []any{userID}
	if opts.Status != "" {
		where += ` AND status = $2`
		whereArgs = append(whereArgs, opts.Status)
	}

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM sessions`+where, whereArgs...).Scan(&total); err != nil {
		return nil, err
	}

	args := append(whereArgs, limit, offset)
	q := fmt.Sprintf(`SELECT `+sessionSelectCols+` FROM sessions%s ORDER BY updated_at DESC LIMIT $%d OFFSET $%d`,
		where, len(whereArgs)+1, len(whereArgs)+2)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sessions := []store.SessionData{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &store.SessionListResult{Sessions: sessions, Total: total}, nil
}

func (s *PGSessionStore) Close(ctx context.Context, sessionID, userID string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET status = $3, updated_at = NOW()
		 WHERE id = $1 AND user_id = $2`,
		sessionID, userID, store.SessionClosed)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- helpers ---

func scanSession(row rowScanner) (*store.SessionData, error) {
	var sess store.SessionData
	var agentID *uuid.UUID
	var title sql.NullString
	if err := row.Scan(&sess.ID, &sess.Scope, &sess.UserID, &agentID, &title,
		&sess.Status, &sess.TurnCount, &sess.CreatedAt, &sess.UpdatedAt); err != nil {
		return nil, err
	}
	if agentID != nil {
		sess.AgentID = *agentID
	}
	sess.Title = title.String
	return &sess, nil
}

func scanSessionRow(row *sql.Row) (*store.SessionData, error) {
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return sess, err
}

func nilUUID(u uuid.UUID) *uuid.UUID {
	if u == uuid.Nil {
		return nil
	}
	return &u
}
