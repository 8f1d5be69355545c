package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// PGAreaMappingStore implements store.AreaMappingStore backed by Postgres.
type PGAreaMappingStore struct {
	db *sql.DB
}

func NewPGAreaMappingStore(db *sql.DB) *PGAreaMappingStore {
	return &PGAreaMappingStore{db: db}
}

const areaMappingSelectCols = `id, group_name, area_type, weight, description, enabled, created_by_email, created_at, updated_at`

func (s *PGAreaMappingStore) Mappings(ctx context.Context, enabledOnly bool) ([]store.AreaMapping, error) {
	q := `SELECT ` + areaMappingSelectCols + ` FROM group_area_mappings`
	if enabledOnly {
		q += ` WHERE enabled`
	}
	q += ` ORDER BY weight DESC, group_name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAreaMappings(rows)
}

func (s *PGAreaMappingStore) MappingsForGroups(ctx context.Context, groups []string) ([]store.AreaMapping, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+areaMappingSelectCols+` FROM group_area_mappings
		 WHERE enabled AND group_name = ANY($1)
		 ORDER BY group_name`,
		pq.Array(groups))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanAreaMappings(rows)
}

func (s *PGAreaMappingStore) MappingByGroup(ctx context.Context, groupName string) (*store.AreaMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+areaMappingSelectCols+` FROM group_area_mappings
		 WHERE enabled AND LOWER(group_name) = LOWER($1)`,
		groupName)
	return scanAreaMappingRow(row)
}

func (s *PGAreaMappingStore) MappingByID(ctx context.Context, id int64) (*store.AreaMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+areaMappingSelectCols+` FROM group_area_mappings WHERE id = $1`, id)
	return scanAreaMappingRow(row)
}

func (s *PGAreaMappingStore) CreateMapping(ctx context.Context, m *store.AreaMapping) (*store.AreaMapping, error) {
	created := *m
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO group_area_mappings (group_name, area_type, weight, description, enabled, created_by_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		created.GroupName, created.AreaType, created.Weight, nilStr(created.Description),
		created.Enabled, nilStr(created.CreatedByEmail), now, now,
	).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *PGAreaMappingStore) UpdateMapping(ctx context.Context, id int64, patch store.AreaMappingPatch) (*store.AreaMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE group_area_mappings SET
			area_type = COALESCE($2, area_type),
			weight = COALESCE($3, weight),
			description = COALESCE($4, description),
			enabled = COALESCE($5, enabled),
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+areaMappingSelectCols,
		id, patch.AreaType, patch.Weight, patch.Description, patch.Enabled)
	return scanAreaMappingRow(row)
}

func (s *PGAreaMappingStore) DeleteMapping(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM group_area_mappings WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// --- helpers ---

func scanAreaMapping(row rowScanner) (*store.AreaMapping, error) {
	var m store.AreaMapping
	var desc, createdBy sql.NullString
	if err := row.Scan(&m.ID, &m.GroupName, &m.AreaType, &m.Weight, &desc,
		&m.Enabled, &createdBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Description = desc.String
	m.CreatedByEmail = createdBy.String
	return &m, nil
}

func scanAreaMappingRow(row *sql.Row) (*store.AreaMapping, error) {
	m, err := scanAreaMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

func scanAreaMappings(rows *sql.Rows) ([]store.AreaMapping, error) {
	var mappings []store.AreaMapping
	for rows.Next() {
		m, err := scanAreaMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}
