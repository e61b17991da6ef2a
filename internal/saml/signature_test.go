package saml

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestXMLDSigVerifierSignedElementID(t *testing.T) {
	verifier := NewXMLDSigVerifier()

	t.Run("assertion signed", func(t *testing.T) {
		key, cert := newTestKeyAndCert(t)
		doc := buildResponseDoc(defaultFixture())
		signAssertion(t, doc, key, cert)

		require.Equal(t, "_assert-1", verifier.SignedElementID(doc))
	})

	t.Run("response signed", func(t *testing.T) {
		key, cert := newTestKeyAndCert(t)
		doc := buildResponseDoc(defaultFixture())
		signResponse(t, doc, key, cert)

		require.Equal(t, "_resp-1", verifier.SignedElementID(doc))
	})

	t.Run("unsigned document", func(t *testing.T) {
		doc := buildResponseDoc(defaultFixture())
		require.Empty(t, verifier.SignedElementID(doc))
	})
}

func TestXMLDSigVerifierEndToEnd(t *testing.T) {
	payload, fingerprint := signedResponse(t, defaultFixture())
	verifier := NewXMLDSigVerifier()

	resp, err := ParseResponse(payload, verifier)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", resp.NameID)

	settings := testSettings()
	settings.IDPCertFingerprint = fingerprint

	v := Validate(resp, settings, verifier)
	require.True(t, v.Valid, "verdict: %v / %s", v.Reason, v.Detail)
	require.NoError(t, Strict(resp, settings, verifier))
}

func TestXMLDSigVerifierResponseSigned(t *testing.T) {
	key, cert := newTestKeyAndCert(t)
	doc := buildResponseDoc(defaultFixture())
	signResponse(t, doc, key, cert)

	verifier := NewXMLDSigVerifier()
	resp, err := ParseResponse(encodeDoc(t, doc), verifier)
	require.NoError(t, err)
	require.Equal(t, "user@example.com", resp.NameID)

	settings := testSettings()
	settings.IDPCertFingerprint = CertFingerprint(cert)

	v := Validate(resp, settings, verifier)
	require.True(t, v.Valid, "verdict: %v / %s", v.Reason, v.Detail)
}

func TestXMLDSigVerifierRejectsTamperedContent(t *testing.T) {
	key, cert := newTestKeyAndCert(t)
	doc := buildResponseDoc(defaultFixture())
	signAssertion(t, doc, key, cert)

	// Change the asserted identity after signing. The digest no longer
	// matches.
	nameID := doc.FindElement("//NameID")
	require.NotNil(t, nameID)
	nameID.SetText("admin@example.com")

	verifier := NewXMLDSigVerifier()
	resp, err := ParseResponse(encodeDoc(t, doc), verifier)
	require.NoError(t, err)

	settings := testSettings()
	settings.IDPCertFingerprint = CertFingerprint(cert)

	v := Validate(resp, settings, verifier)
	require.False(t, v.Valid)
	require.ErrorIs(t, v.Reason, ErrSignatureInvalid)

	err = Strict(resp, settings, verifier)
	require.ErrorIs(t, err, ErrSignatureInvalid)
	var perr *ProtocolError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, resp.Raw, perr.RawResponse)
}

func TestXMLDSigVerifierRejectsUntrustedCertificate(t *testing.T) {
	payload, _ := signedResponse(t, defaultFixture())

	verifier := NewXMLDSigVerifier()
	resp, err := ParseResponse(payload, verifier)
	require.NoError(t, err)

	// Trust material names a different certificate than the one that signed.
	_, otherCert := newTestKeyAndCert(t)
	settings := testSettings()
	settings.IDPCertFingerprint = CertFingerprint(otherCert)

	v := Validate(resp, settings, verifier)
	require.False(t, v.Valid)
	require.ErrorIs(t, v.Reason, ErrSignatureInvalid)
	require.Contains(t, v.Detail, "fingerprint")
}

func TestXMLDSigVerifierFingerprintComparisonIsNormalized(t *testing.T) {
	key, cert := newTestKeyAndCert(t)
	doc := buildResponseDoc(defaultFixture())
	signAssertion(t, doc, key, cert)

	// Lower-case, colon-free rendition of the same fingerprint must still
	// match.
	loose := normalizeFingerprint(CertFingerprint(cert))
	require.NotContains(t, loose, ":")

	verifier := NewXMLDSigVerifier()
	err := verifier.Verify(doc, loose)
	require.NoError(t, err)
}

func TestXMLDSigVerifierRejectsUnsignedDocument(t *testing.T) {
	doc := buildResponseDoc(defaultFixture())

	verifier := NewXMLDSigVerifier()
	err := verifier.Verify(doc, "AA:BB:CC")
	require.ErrorContains(t, err, "not signed")
}

func TestXMLDSigVerifierRejectsSignatureWrapping(t *testing.T) {
	t.Run("reference does not cover the carrying element", func(t *testing.T) {
		key, cert := newTestKeyAndCert(t)
		doc := buildResponseDoc(defaultFixture())
		signAssertion(t, doc, key, cert)

		// Re-point the assertion's ID while the signature reference still
		// names the original. The signature now covers a sibling that does
		// not exist.
		assertion := doc.Root().SelectElement("Assertion")
		require.NotNil(t, assertion)
		assertion.RemoveAttr("ID")
		assertion.CreateAttr("ID", "_evil")

		verifier := NewXMLDSigVerifier()
		err := verifier.Verify(doc, CertFingerprint(cert))
		require.ErrorContains(t, err, "signature covers")
	})

	t.Run("forged sibling assertion is not the identity source", func(t *testing.T) {
		key, cert := newTestKeyAndCert(t)
		doc := buildResponseDoc(defaultFixture())
		signAssertion(t, doc, key, cert)

		// Smuggle an unsigned assertion with a forged identity and forged
		// attributes ahead of the signed one. Signature validation still
		// passes for the signed element, so extraction must stay scoped
		// to it.
		root := doc.Root()
		forged := buildResponseDoc(responseFixture{
			responseID:  "_x",
			assertionID: "_forged",
			nameID:      "admin@example.com",
			attrs: [][2]string{
				{"email", "admin@example.com"},
				{"role", "superuser"},
			},
		}).Root().SelectElement("Assertion")
		root.InsertChildAt(0, forged.Copy())

		verifier := NewXMLDSigVerifier()
		resp, err := ParseResponse(encodeDoc(t, doc), verifier)
		require.NoError(t, err)
		require.Equal(t, "user@example.com", resp.NameID,
			"identity must come from the signed assertion only")
		require.Empty(t, resp.Attributes,
			"attributes must come from the signed assertion only")

		settings := testSettings()
		settings.IDPCertFingerprint = CertFingerprint(cert)
		v := Validate(resp, settings, verifier)
		require.True(t, v.Valid, "verdict: %v / %s", v.Reason, v.Detail)
	})

	t.Run("forged assertion reusing the signed ID is rejected", func(t *testing.T) {
		key, cert := newTestKeyAndCert(t)
		f := defaultFixture()
		doc := buildResponseDoc(f)
		signAssertion(t, doc, key, cert)

		// Two assertions share the signed ID. The signature over the genuine
		// assertion still verifies in isolation, so the ambiguity itself has
		// to be fatal before anything resolves the ID.
		forged := buildResponseDoc(responseFixture{
			responseID:  "_x",
			assertionID: f.assertionID,
			nameID:      "admin@example.com",
			attrs:       [][2]string{{"role", "superuser"}},
		}).Root().SelectElement("Assertion")
		doc.Root().InsertChildAt(0, forged.Copy())

		verifier := NewXMLDSigVerifier()
		_, err := ParseResponse(encodeDoc(t, doc), verifier)
		require.ErrorIs(t, err, ErrMalformedResponse)

		err = verifier.Verify(doc, CertFingerprint(cert))
		require.ErrorContains(t, err, "more than one element")
	})
}
