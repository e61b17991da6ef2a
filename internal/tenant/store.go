package tenant

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/openidx/samlgate/internal/common/database"
)

// Store persists tenants in PostgreSQL
type Store struct {
	db *database.PostgresDB
}

// NewStore creates a tenant store
func NewStore(db *database.PostgresDB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the tenants table if it doesn't exist
func (s *Store) EnsureSchema(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS tenants (
			id UUID PRIMARY KEY,
			name VARCHAR(255) UNIQUE NOT NULL,
			issuer TEXT NOT NULL,
			idp_sso_target_url TEXT NOT NULL,
			idp_cert TEXT,
			idp_cert_fingerprint VARCHAR(255),
			name_id_format VARCHAR(255) NOT NULL,
			authn_contexts TEXT,
			skip_conditions BOOLEAN NOT NULL DEFAULT FALSE,
			enabled BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_used_at TIMESTAMPTZ
		)`
	_, err := s.db.Pool.Exec(ctx, query)
	return err
}

const tenantColumns = `id, name, issuer, idp_sso_target_url,
	COALESCE(idp_cert, ''), COALESCE(idp_cert_fingerprint, ''),
	name_id_format, COALESCE(authn_contexts, ''), skip_conditions,
	enabled, created_at, updated_at, last_used_at`

func scanTenant(row interface {
	Scan(dest ...interface{}) error
}) (*Tenant, error) {
	var t Tenant
	var lastUsedAt *time.Time

	err := row.Scan(&t.ID, &t.Name, &t.Issuer, &t.IDPSSOTargetURL,
		&t.IDPCert, &t.IDPCertFingerprint,
		&t.NameIDFormat, &t.AuthnContexts, &t.SkipConditions,
		&t.Enabled, &t.CreatedAt, &t.UpdatedAt, &lastUsedAt)
	if err != nil {
		return nil, err
	}
	t.LastUsedAt = lastUsedAt
	return &t, nil
}

// GetByID retrieves a tenant by ID
func (s *Store) GetByID(ctx context.Context, id string) (*Tenant, error) {
	row := s.db.Pool.QueryRow(ctx,
		"SELECT "+tenantColumns+" FROM tenants WHERE id = $1", id)

	t, err := scanTenant(row)
	if err != nil {
		return nil, ErrNotFound
	}
	return t, nil
}

// NameExists reports whether a tenant with the given name is already
// registered
func (s *Store) NameExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.db.Pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM tenants WHERE name = $1)", name).Scan(&exists)
	return exists, err
}

// List returns a page of tenants ordered by name
func (s *Store) List(ctx context.Context, page, pageSize int, enabledOnly bool, search string) ([]Tenant, int64, error) {
	offset := (page - 1) * pageSize

	query := "SELECT " + tenantColumns + " FROM tenants"
	countQuery := "SELECT COUNT(*) FROM tenants"

	args := []interface{}{}
	whereClause := ""

	if enabledOnly {
		whereClause = " WHERE enabled = true"
	}

	if search != "" {
		if whereClause == "" {
			whereClause = " WHERE"
		} else {
			whereClause += " AND"
		}
		whereClause += " (name ILIKE $1 OR issuer ILIKE $1)"
		args = append(args, "%"+search+"%")
	}

	query += whereClause + " ORDER BY name ASC LIMIT $" + fmt.Sprint(len(args)+1) + " OFFSET $" + fmt.Sprint(len(args)+2)
	countQuery += whereClause

	var total int64
	if err := s.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count tenants: %w", err)
	}

	args = append(args, pageSize, offset)

	rows, err := s.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	tenants := make([]Tenant, 0, pageSize)
	for rows.Next() {
		t, err := scanTenant(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	return tenants, total, nil
}

// Create inserts a new tenant
func (s *Store) Create(ctx context.Context, req *CreateTenantRequest) (*Tenant, error) {
	if err := validateTrustMaterial(req.IDPCert, req.IDPCertFingerprint); err != nil {
		return nil, err
	}

	if req.NameIDFormat == "" {
		req.NameIDFormat = DefaultNameIDFormat
	}

	id := uuid.New().String()
	now := time.Now()

	_, err := s.db.Pool.Exec(ctx, `
		INSERT INTO tenants (
			id, name, issuer, idp_sso_target_url, idp_cert, idp_cert_fingerprint,
			name_id_format, authn_contexts, skip_conditions, enabled,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, id, req.Name, req.Issuer, req.IDPSSOTargetURL, req.IDPCert, req.IDPCertFingerprint,
		req.NameIDFormat, req.AuthnContexts, req.SkipConditions, req.Enabled, now, now)
	if err != nil {
		return nil, err
	}

	return &Tenant{
		ID:                 id,
		Name:               req.Name,
		Issuer:             req.Issuer,
		IDPSSOTargetURL:    req.IDPSSOTargetURL,
		IDPCert:            req.IDPCert,
		IDPCertFingerprint: req.IDPCertFingerprint,
		NameIDFormat:       req.NameIDFormat,
		AuthnContexts:      req.AuthnContexts,
		SkipConditions:     req.SkipConditions,
		Enabled:            req.Enabled,
		CreatedAt:          now,
		UpdatedAt:          now,
	}, nil
}

// Update applies the non-nil fields of req to an existing tenant
func (s *Store) Update(ctx context.Context, id string, req *UpdateTenantRequest) (*Tenant, error) {
	t, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	updates := []string{}
	args := []interface{}{}
	argIdx := 1

	if req.Name != nil {
		updates = append(updates, fmt.Sprintf("name = $%d", argIdx))
		args = append(args, *req.Name)
		argIdx++
		t.Name = *req.Name
	}
	if req.Issuer != nil {
		updates = append(updates, fmt.Sprintf("issuer = $%d", argIdx))
		args = append(args, *req.Issuer)
		argIdx++
		t.Issuer = *req.Issuer
	}
	if req.IDPSSOTargetURL != nil {
		updates = append(updates, fmt.Sprintf("idp_sso_target_url = $%d", argIdx))
		args = append(args, *req.IDPSSOTargetURL)
		argIdx++
		t.IDPSSOTargetURL = *req.IDPSSOTargetURL
	}
	if req.IDPCert != nil {
		updates = append(updates, fmt.Sprintf("idp_cert = $%d", argIdx))
		args = append(args, *req.IDPCert)
		argIdx++
		t.IDPCert = *req.IDPCert
	}
	if req.IDPCertFingerprint != nil {
		updates = append(updates, fmt.Sprintf("idp_cert_fingerprint = $%d", argIdx))
		args = append(args, *req.IDPCertFingerprint)
		argIdx++
		t.IDPCertFingerprint = *req.IDPCertFingerprint
	}
	if req.NameIDFormat != nil {
		updates = append(updates, fmt.Sprintf("name_id_format = $%d", argIdx))
		args = append(args, *req.NameIDFormat)
		argIdx++
		t.NameIDFormat = *req.NameIDFormat
	}
	if req.AuthnContexts != nil {
		updates = append(updates, fmt.Sprintf("authn_contexts = $%d", argIdx))
		args = append(args, *req.AuthnContexts)
		argIdx++
		t.AuthnContexts = *req.AuthnContexts
	}
	if req.SkipConditions != nil {
		updates = append(updates, fmt.Sprintf("skip_conditions = $%d", argIdx))
		args = append(args, *req.SkipConditions)
		argIdx++
		t.SkipConditions = *req.SkipConditions
	}
	if req.Enabled != nil {
		updates = append(updates, fmt.Sprintf("enabled = $%d", argIdx))
		args = append(args, *req.Enabled)
		argIdx++
		t.Enabled = *req.Enabled
	}

	if len(updates) == 0 {
		return t, nil
	}

	// The resulting row must still satisfy the trust-material invariant.
	if err := validateTrustMaterial(t.IDPCert, t.IDPCertFingerprint); err != nil {
		return nil, err
	}

	updates = append(updates, fmt.Sprintf("updated_at = $%d", argIdx))
	args = append(args, now)
	argIdx++

	args = append(args, id)
	query := fmt.Sprintf("UPDATE tenants SET %s WHERE id = $%d",
		strings.Join(updates, ", "), argIdx)

	if _, err := s.db.Pool.Exec(ctx, query, args...); err != nil {
		return nil, err
	}

	t.UpdatedAt = now
	return t, nil
}

// Delete removes a tenant
func (s *Store) Delete(ctx context.Context, id string) error {
	result, err := s.db.Pool.Exec(ctx, "DELETE FROM tenants WHERE id = $1", id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Touch updates the last_used_at timestamp after a completed login
func (s *Store) Touch(ctx context.Context, id string) error {
	_, err := s.db.Pool.Exec(ctx,
		"UPDATE tenants SET last_used_at = NOW() WHERE id = $1", id)
	return err
}
