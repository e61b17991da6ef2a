package sp

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openidx/samlgate/internal/saml"
	"github.com/openidx/samlgate/internal/tenant"
)

// issueSessionToken mints the HS256 session JWT handed to the caller after a
// validated login. The asserted NameID becomes the subject; attribute values
// ride along as a claim so downstream services never re-parse the assertion.
func (s *Service) issueSessionToken(t *tenant.Tenant, resp *saml.ParsedResponse) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(time.Duration(s.cfg.SessionTTLMinutes) * time.Minute)

	// The IdP's SessionNotOnOrAfter bounds our session when it is tighter
	// than the configured TTL.
	if idpBound := resp.SessionExpiresAt; !idpBound.IsZero() && idpBound.Before(expiresAt) {
		expiresAt = idpBound
	}

	claims := jwt.MapClaims{
		"sub":       resp.NameID,
		"iss":       "samlgate",
		"aud":       t.Name,
		"tenant_id": t.ID,
		"iat":       now.Unix(),
		"exp":       expiresAt.Unix(),
	}
	if len(resp.Attributes) > 0 {
		claims["attrs"] = resp.Attributes
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.cfg.SessionSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
