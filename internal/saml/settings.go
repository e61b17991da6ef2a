package saml

import (
	"crypto/sha1"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"strings"
)

// TenantSettings is the per-tenant trust configuration supplied by the
// caller. It is read-only for the duration of a login attempt; the same value
// may be used concurrently by unrelated requests.
type TenantSettings struct {
	Issuer                      string
	AssertionConsumerServiceURL string
	IDPSSOTargetURL             string

	// IDPCert is the IdP signing certificate in PEM form. IDPCertFingerprint
	// is required when IDPCert is empty; when both are set the certificate
	// wins and the fingerprint is recomputed from it.
	IDPCert            string
	IDPCertFingerprint string

	NameIdentifierFormat string

	// AuthenticationContexts is the requested authn context class list,
	// comma-separated in configuration transport form.
	AuthenticationContexts string

	// SkipConditions disables the NotBefore/NotOnOrAfter check entirely.
	SkipConditions bool
}

// HasTrustMaterial reports whether the response signature can ever be
// verified with this configuration.
func (s *TenantSettings) HasTrustMaterial() bool {
	return s.IDPCert != "" || s.IDPCertFingerprint != ""
}

// Fingerprint returns the trusted certificate fingerprint: computed from the
// configured PEM certificate when present, otherwise the preconfigured
// string verbatim. The computed form is SHA-1 over the DER encoding rendered
// as upper-case colon-separated hex pairs, e.g. "AF:44:...".
func (s *TenantSettings) Fingerprint() (string, error) {
	if s.IDPCert == "" {
		return s.IDPCertFingerprint, nil
	}

	block, _ := pem.Decode([]byte(s.IDPCert))
	if block == nil {
		return "", fmt.Errorf("idp_cert is not valid PEM")
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return "", fmt.Errorf("failed to parse idp_cert: %w", err)
	}
	return CertFingerprint(cert), nil
}

// CertFingerprint renders the SHA-1 fingerprint of cert in the colon-hex
// form used throughout the trust configuration.
func CertFingerprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	parts := make([]string, len(sum))
	for i, b := range sum {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, ":")
}

// AuthnContextList splits the comma-separated context configuration into the
// ordered class-ref list rendered into the AuthnRequest. Empty entries are
// dropped.
func (s *TenantSettings) AuthnContextList() []string {
	var out []string
	for _, ctx := range strings.Split(s.AuthenticationContexts, ",") {
		ctx = strings.TrimSpace(ctx)
		if ctx != "" {
			out = append(out, ctx)
		}
	}
	return out
}

// normalizeFingerprint strips separators and upper-cases so configured and
// computed fingerprints compare reliably.
func normalizeFingerprint(fp string) string {
	fp = strings.ReplaceAll(fp, ":", "")
	fp = strings.ReplaceAll(fp, " ", "")
	return strings.ToUpper(fp)
}
