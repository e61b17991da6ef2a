// Package tenant manages the per-tenant IdP trust configuration that drives
// SAML logins. Each tenant names one identity provider: where to send
// authentication requests and which certificate or fingerprint to trust on
// the way back.
package tenant

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/openidx/samlgate/internal/saml"
)

// ErrNotFound is returned when a tenant does not exist
var ErrNotFound = errors.New("tenant not found")

// Tenant is a registered identity provider configuration
type Tenant struct {
	ID              string `json:"id" db:"id"`
	Name            string `json:"name" db:"name"`
	Issuer          string `json:"issuer" db:"issuer"`
	IDPSSOTargetURL string `json:"idp_sso_target_url" db:"idp_sso_target_url"`

	// IDPCert is the IdP signing certificate in PEM form. When empty,
	// IDPCertFingerprint must be set instead.
	IDPCert            string `json:"idp_cert,omitempty" db:"idp_cert"`
	IDPCertFingerprint string `json:"idp_cert_fingerprint,omitempty" db:"idp_cert_fingerprint"`

	NameIDFormat   string `json:"name_id_format" db:"name_id_format"`
	AuthnContexts  string `json:"authn_contexts,omitempty" db:"authn_contexts"`
	SkipConditions bool   `json:"skip_conditions" db:"skip_conditions"`

	Enabled    bool       `json:"enabled" db:"enabled"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" db:"updated_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// DefaultNameIDFormat is used when a tenant does not configure one.
const DefaultNameIDFormat = "urn:oasis:names:tc:SAML:1.1:nameid-format:emailAddress"

// Settings materializes the protocol-level view of this tenant. The assertion
// consumer service URL is derived from the deployment base URL rather than
// stored, so moving the service never strands tenants.
func (t *Tenant) Settings(baseURL string) *saml.TenantSettings {
	return &saml.TenantSettings{
		Issuer:                      t.Issuer,
		AssertionConsumerServiceURL: ACSURL(baseURL, t.ID),
		IDPSSOTargetURL:             t.IDPSSOTargetURL,
		IDPCert:                     t.IDPCert,
		IDPCertFingerprint:          t.IDPCertFingerprint,
		NameIdentifierFormat:        t.NameIDFormat,
		AuthenticationContexts:      t.AuthnContexts,
		SkipConditions:              t.SkipConditions,
	}
}

// ACSURL builds the assertion consumer service URL for a tenant.
func ACSURL(baseURL, tenantID string) string {
	return strings.TrimRight(baseURL, "/") + "/saml/acs/" + tenantID
}

// CreateTenantRequest is the request to register a new tenant
type CreateTenantRequest struct {
	Name            string `json:"name" binding:"required"`
	Issuer          string `json:"issuer" binding:"required"`
	IDPSSOTargetURL string `json:"idp_sso_target_url" binding:"required"`

	IDPCert            string `json:"idp_cert"`
	IDPCertFingerprint string `json:"idp_cert_fingerprint"`

	NameIDFormat   string `json:"name_id_format"`
	AuthnContexts  string `json:"authn_contexts"`
	SkipConditions bool   `json:"skip_conditions"`
	Enabled        bool   `json:"enabled"`
}

// UpdateTenantRequest is the request to update a tenant. Nil fields are left
// unchanged.
type UpdateTenantRequest struct {
	Name            *string `json:"name"`
	Issuer          *string `json:"issuer"`
	IDPSSOTargetURL *string `json:"idp_sso_target_url"`

	IDPCert            *string `json:"idp_cert"`
	IDPCertFingerprint *string `json:"idp_cert_fingerprint"`

	NameIDFormat   *string `json:"name_id_format"`
	AuthnContexts  *string `json:"authn_contexts"`
	SkipConditions *bool   `json:"skip_conditions"`
	Enabled        *bool   `json:"enabled"`
}

// TenantListResponse is the paginated list response
type TenantListResponse struct {
	Tenants  []Tenant `json:"tenants"`
	Total    int64    `json:"total"`
	Page     int      `json:"page"`
	PageSize int      `json:"page_size"`
}

// validateTrustMaterial enforces the invariant every stored tenant satisfies:
// at least one of certificate and fingerprint is present, and a present
// certificate actually parses. Checking at write time keeps the login path
// free of configuration surprises.
func validateTrustMaterial(idpCert, fingerprint string) error {
	if idpCert == "" && fingerprint == "" {
		return fmt.Errorf("either idp_cert or idp_cert_fingerprint is required")
	}
	if idpCert != "" {
		probe := &saml.TenantSettings{IDPCert: idpCert}
		if _, err := probe.Fingerprint(); err != nil {
			return fmt.Errorf("idp_cert is not a usable certificate: %w", err)
		}
	}
	return nil
}
