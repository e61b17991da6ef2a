package saml

import "fmt"

// Verdict is the outcome of the validation pipeline. Every check reports
// through a tagged reason rather than panicking or raising, so soft callers
// get a uniform pass/fail and strict callers get a ProtocolError carrying
// the raw payload.
type Verdict struct {
	Valid  bool
	Reason error  // one of the Err* sentinels when invalid
	Detail string // operator-facing context, never shown to the end user
}

func invalid(reason error, detail string) Verdict {
	return Verdict{Reason: reason, Detail: detail}
}

// Validate runs the structural, temporal and cryptographic checks in order,
// short-circuiting at the first failure. It never returns an error: this is
// the soft calling convention. Use Strict for the fail-closed form.
//
// Check order:
//  1. response state: non-blank payload, settings present, cert or
//     fingerprint configured
//  2. conditions: NotBefore (inclusive) / NotOnOrAfter (exclusive), skipped
//     entirely when the tenant opts out or no Conditions element exists
//  3. signature: delegated to the verifier with the computed trusted
//     fingerprint
func Validate(resp *ParsedResponse, settings *TenantSettings, verifier SignatureVerifier) Verdict {
	if v := validateResponseState(resp, settings); !v.Valid {
		return v
	}
	if v := validateConditions(resp, settings); !v.Valid {
		return v
	}
	return validateSignature(resp, settings, verifier)
}

// Strict is the fail-closed calling convention: any invalid verdict comes
// back as a *ProtocolError carrying the raw response for diagnostics.
func Strict(resp *ParsedResponse, settings *TenantSettings, verifier SignatureVerifier) error {
	verdict := Validate(resp, settings, verifier)
	if verdict.Valid {
		return nil
	}
	raw := ""
	if resp != nil {
		raw = resp.Raw
	}
	return protocolError(verdict.Reason, verdict.Detail, raw)
}

func validateResponseState(resp *ParsedResponse, settings *TenantSettings) Verdict {
	if resp == nil || resp.Raw == "" {
		return invalid(ErrBlankResponse, "no response payload")
	}
	if settings == nil {
		return invalid(ErrMissingTrustMaterial, "no tenant settings on response")
	}
	if !settings.HasTrustMaterial() {
		return invalid(ErrMissingTrustMaterial, "no fingerprint or certificate configured")
	}
	return Verdict{Valid: true}
}

func validateConditions(resp *ParsedResponse, settings *TenantSettings) Verdict {
	if settings.SkipConditions || resp.Conditions == nil {
		return Verdict{Valid: true}
	}

	current := now().UTC()

	if nb := resp.Conditions.NotBefore; !nb.IsZero() && current.Before(nb) {
		return invalid(ErrNotYetValid,
			fmt.Sprintf("current time %s is earlier than NotBefore %s",
				current.Format(issueInstantFormat), nb.Format(issueInstantFormat)))
	}

	// The upper bound is exclusive: a response is already expired at exactly
	// NotOnOrAfter.
	if noa := resp.Conditions.NotOnOrAfter; !noa.IsZero() && !current.Before(noa) {
		return invalid(ErrExpired,
			fmt.Sprintf("current time %s is on or after NotOnOrAfter %s",
				current.Format(issueInstantFormat), noa.Format(issueInstantFormat)))
	}

	return Verdict{Valid: true}
}

func validateSignature(resp *ParsedResponse, settings *TenantSettings, verifier SignatureVerifier) Verdict {
	fingerprint, err := settings.Fingerprint()
	if err != nil {
		return invalid(ErrMissingTrustMaterial, err.Error())
	}
	if err := verifier.Verify(resp.Document(), fingerprint); err != nil {
		return invalid(ErrSignatureInvalid, err.Error())
	}
	return Verdict{Valid: true}
}
