package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/nextlevelbuilder/agentgate/internal/rbac"
	"github.com/nextlevelbuilder/agentgate/internal/store"
)

// PGRBACStore implements store.RBACStore backed by Postgres.
type PGRBACStore struct {
	db *sql.DB
}

func NewPGRBACStore(db *sql.DB) *PGRBACStore {
	return &PGRBACStore{db: db}
}

// --- Column constants ---

const roleSelectCols = `id, name, display_name, description, weight, permissions, enabled, created_at, updated_at`

const mappingSelectCols = `id, group_name, role_name, weight, description, enabled, created_by_email, created_at, updated_at`

const superadminSelectCols = `id, email, added_by_email, notes, enabled, added_at`

const auditSelectCols = `id, action, performed_by, target_resource, target_id, old_value, new_value, ip_address, created_at`

// ============================================================
// Roles
// ============================================================

func (s *PGRBACStore) GetRole(ctx context.Context, name string) (*rbac.Role, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+roleSelectCols+` FROM roles WHERE name = $1`, name)
	return scanRoleRow(row)
}

func (s *PGRBACStore) ListRoles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+roleSelectCols+` FROM roles ORDER BY weight DESC, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var roles []rbac.Role
	for rows.Next() {
		r, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, *r)
	}
	return roles, rows.Err()
}

// ============================================================
// Superadmin whitelist
// ============================================================

func (s *PGRBACStore) IsSuperadmin(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM superadmin_whitelist WHERE LOWER(email) = $1 AND enabled)`,
		rbac.NormalizeEmail(email),
	).Scan(&exists)
	return exists, err
}

func (s *PGRBACStore) ListSuperadmins(ctx context.Context) ([]rbac.SuperadminEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+superadminSelectCols+` FROM superadmin_whitelist ORDER BY enabled DESC, email`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []rbac.SuperadminEntry
	for rows.Next() {
		var e rbac.SuperadminEntry
		var notes sql.NullString
		if err := rows.Scan(&e.ID, &e.Email, &e.AddedByEmail, &notes, &e.Enabled, &e.AddedAt); err != nil {
			return nil, err
		}
		e.Notes = notes.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *PGRBACStore) AddSuperadmin(ctx context.Context, email, addedBy, notes string) (*rbac.SuperadminEntry, error) {
	e := rbac.SuperadminEntry{
		Email:        rbac.NormalizeEmail(email),
		AddedByEmail: rbac.NormalizeEmail(addedBy),
		Notes:        notes,
		Enabled:      true,
		AddedAt:      time.Now(),
	}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO superadmin_whitelist (email, added_by_email, notes, enabled, added_at)
		 VALUES ($1, $2, $3, TRUE, $4)
		 ON CONFLICT (email) DO UPDATE SET enabled = TRUE, notes = EXCLUDED.notes
		 RETURNING id`,
		e.Email, e.AddedByEmail, nilStr(e.Notes), e.AddedAt,
	).Scan(&e.ID)
	if err != nil {
		return nil, err
	}
	return &e, nil
}

func (s *PGRBACStore) RemoveSuperadmin(ctx context.Context, email string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM superadmin_whitelist WHERE LOWER(email) = $1`,
		rbac.NormalizeEmail(email))
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ============================================================
// Group -> role mappings
// ============================================================

func (s *PGRBACStore) RoleMappings(ctx context.Context, enabledOnly bool) ([]rbac.GroupRoleMapping, error) {
	q := `SELECT ` + mappingSelectCols + ` FROM group_role_mappings`
	if enabledOnly {
		q += ` WHERE enabled`
	}
	q += ` ORDER BY group_name`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (s *PGRBACStore) RoleMappingsForGroups(ctx context.Context, groups []string) ([]rbac.GroupRoleMapping, error) {
	if len(groups) == 0 {
		return nil, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+mappingSelectCols+` FROM group_role_mappings
		 WHERE enabled AND group_name = ANY($1)
		 ORDER BY group_name`,
		pq.Array(groups))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMappings(rows)
}

func (s *PGRBACStore) RoleMappingByGroup(ctx context.Context, groupName string) (*rbac.GroupRoleMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mappingSelectCols+` FROM group_role_mappings
		 WHERE enabled AND LOWER(group_name) = LOWER($1)`,
		groupName)
	return scanMappingRow(row)
}

func (s *PGRBACStore) RoleMappingByID(ctx context.Context, id int64) (*rbac.GroupRoleMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+mappingSelectCols+` FROM group_role_mappings WHERE id = $1`, id)
	return scanMappingRow(row)
}

func (s *PGRBACStore) CreateRoleMapping(ctx context.Context, m *rbac.GroupRoleMapping) (*rbac.GroupRoleMapping, error) {
	created := *m
	now := time.Now()
	created.CreatedAt = now
	created.UpdatedAt = now
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO group_role_mappings (group_name, role_name, weight, description, enabled, created_by_email, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 RETURNING id`,
		created.GroupName, created.RoleName, created.Weight, nilStr(created.Description),
		created.Enabled, nilStr(created.CreatedByEmail), now, now,
	).Scan(&created.ID)
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *PGRBACStore) UpdateRoleMapping(ctx context.Context, id int64, patch store.RoleMappingPatch) (*rbac.GroupRoleMapping, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE group_role_mappings SET
			role_name = COALESCE($2, role_name),
			weight = COALESCE($3, weight),
			description = COALESCE($4, description),
			enabled = COALESCE($5, enabled),
			updated_at = NOW()
		 WHERE id = $1
		 RETURNING `+mappingSelectCols,
		id, patch.RoleName, patch.Weight, patch.Description, patch.Enabled)
	return scanMappingRow(row)
}

func (s *PGRBACStore) DeleteRoleMapping(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM group_role_mappings WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ============================================================
// Audit log
// ============================================================

func (s *PGRBACStore) AppendAudit(ctx context.Context, e *rbac.AuditEntry) error {
	oldJSON, err := marshalAuditValue(e.OldValue)
	if err != nil {
		return err
	}
	newJSON, err := marshalAuditValue(e.NewValue)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO rbac_audit_log (action, performed_by, target_resource, target_id, old_value, new_value, ip_address, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())`,
		e.Action, e.PerformedBy, e.TargetResource, nilStr(e.TargetID),
		oldJSON, newJSON, nilStr(e.IPAddress))
	return err
}

func (s *PGRBACStore) ListAudit(ctx context.Context, limit, offset int) ([]rbac.AuditEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+auditSelectCols+` FROM rbac_audit_log
		 ORDER BY created_at DESC, id DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []rbac.AuditEntry
	for rows.Next() {
		var e rbac.AuditEntry
		var targetID, ip sql.NullString
		var oldJSON, newJSON []byte
		if err := rows.Scan(&e.ID, &e.Action, &e.PerformedBy, &e.TargetResource,
			&targetID, &oldJSON, &newJSON, &ip, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.TargetID = targetID.String
		e.IPAddress = ip.String
		if len(oldJSON) > 0 {
			json.Unmarshal(oldJSON, &e.OldValue)
		}
		if len(newJSON) > 0 {
			json.Unmarshal(newJSON, &e.NewValue)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// --- helpers ---

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRole(row rowScanner) (*rbac.Role, error) {
	var r rbac.Role
	var desc sql.NullString
	if err := row.Scan(&r.ID, &r.Name, &r.DisplayName, &desc, &r.Weight,
		pq.Array(&r.Permissions), &r.Enabled, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Description = desc.String
	return &r, nil
}

func scanRoleRow(row *sql.Row) (*rbac.Role, error) {
	r, err := scanRole(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return r, err
}

func scanMapping(row rowScanner) (*rbac.GroupRoleMapping, error) {
	var m rbac.GroupRoleMapping
	var desc, createdBy sql.NullString
	if err := row.Scan(&m.ID, &m.GroupName, &m.RoleName, &m.Weight, &desc,
		&m.Enabled, &createdBy, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	m.Description = desc.String
	m.CreatedByEmail = createdBy.String
	return &m, nil
}

func scanMappingRow(row *sql.Row) (*rbac.GroupRoleMapping, error) {
	m, err := scanMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	return m, err
}

func scanMappings(rows *sql.Rows) ([]rbac.GroupRoleMapping, error) {
	var mappings []rbac.GroupRoleMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, *m)
	}
	return mappings, rows.Err()
}

func marshalAuditValue(v map[string]any) ([]byte, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

func nilStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
