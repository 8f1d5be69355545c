package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// PGAgentStore implements store.AgentStore backed by Postgres.
type PGAgentStore struct {
	db *sql.DB
}

func NewPGAgentStore(db *sql.DB) *PGAgentStore {
	return &PGAgentStore{db: db}
}

const agentSelectCols = `id, agent_key, name, description, area_type, provider, model, instruction, enabled, created_at, updated_at`

func (s *PGAgentStore) List(ctx context.Context, enabledOnly bool) ([]store.AgentData, error) {
	q := `SELECT ` + agentSelectCols + ` FROM agents`
	if enabledOnly {
		q += ` WHERE enabled`
	}
	q += ` ORDER BY name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var agents []store.AgentData
	for rows.Next() {
		a, err := scanAgent(rows)
		if err != nil {
			return nil, err
		}
		agents = append(agents, *a)
	}
	return agents, rows.Err()
}

func (s *PGAgentStore) GetByID(ctx context.Context, id uuid.UUID) (*store.AgentData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentSelectCols+` FROM agents WHERE id = $1`, id)
	return scanAgentRow(row)
}

func (s *PGAgentStore) GetByKey(ctx context.Context, key string) (*store.AgentData, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+agentSelectCols+` FROM agents WHERE agent_key = $1`, key)
	return scanAgentRow(row)
}

func (s *PGAgentStore) Create(ctx context.Context, a *store.AgentData) error {
	if a.ID == uuid.Nil {
		a.ID = store.GenNewID()
	}
	now := time.Now()
	a.CreatedAt = now
	a.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO agents (id, agent_key, name, description, area_type, provider, model, instruction, enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		a.ID, a.AgentKey, a.Name, nilStr(a.Description), a.AreaType,
		a.Provider, nilStr(a.Model), nilStr(a.Instruction), a.Enabled, now, now,
	)
	return err
}

func (s *PGAgentStore) Update(ctx context.Context, a *store.AgentData) error {
	a.UpdatedAt = time.Now()
	res, err := s.db.ExecContext(ctx,
		`UPDATE agents SET
			agent_key = $2, name = $3, description = $4, area_type = $5,
			provider = $6, model = $7, instruction = $8, enabled = $9, updated_at = $10
		 WHERE id = $1`,
		a.ID, a.AgentKey, a.Name, nilStr(a.Description), a.AreaType,
		a.Provider, nilStr(a.Model), nilStr(a.Instruction), a.Enabled, a.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *PGAgentStore) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM agents WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- helpers ---

func scanAgent(row rowScanner) (*store.AgentData, error) {
	var a store.AgentData
	var desc, model, instruction sql.NullString
	if err := row.Scan(&a.ID, &a.AgentKey, &a.Name, &desc, &a.AreaType,
		&a.Provider, &model, &instruction, &a.Enabled, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return nil, err
	}
	a.Description = desc.String
	a.Model = model.String
	a.Instruction = instruction.String
	return &a, nil
}

func scanAgentRow(row *sql.Row) (*store.AgentData, error) {
	a, err := scanAgent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return a, err
}
