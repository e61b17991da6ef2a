// Package saml implements the Service Provider half of the SAML 2.0 Web
// Browser SSO profile: building AuthnRequest redirect URLs and validating
// IdP responses against per-tenant trust settings.
package saml

import (
	"errors"
	"fmt"
)

// Validation failure reasons. ProtocolError wraps one of these so callers
// can match with errors.Is without parsing messages.
var (
	ErrBlankResponse        = errors.New("blank response")
	ErrMissingTrustMaterial = errors.New("missing trust material")
	ErrNoIdentity           = errors.New("no identity asserted")
	ErrNotYetValid          = errors.New("response not yet valid")
	ErrExpired              = errors.New("response expired")
	ErrSignatureInvalid     = errors.New("signature invalid")
	ErrMalformedResponse    = errors.New("malformed response")
)

// ProtocolError is the strict-mode validation failure. It carries the raw
// (still base64-encoded) response payload for operator diagnostics. The
// detailed reason is for logs only; user-facing surfaces must reduce it to a
// generic "invalid SAML response".
type ProtocolError struct {
	Reason      error  // one of the Err* sentinels
	Detail      string // operator-facing context
	RawResponse string // the payload as received, undecoded
}

func (e *ProtocolError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("saml: %s: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("saml: %s", e.Reason)
}

func (e *ProtocolError) Unwrap() error {
	return e.Reason
}

func protocolError(reason error, detail, raw string) *ProtocolError {
	return &ProtocolError{Reason: reason, Detail: detail, RawResponse: raw}
}
