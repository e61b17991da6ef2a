package saml

import (
	"bytes"
	"compress/flate"
	"encoding/base64"
	"encoding/xml"
	"fmt"
	"net/url"
	"strings"

	"github.com/google/uuid"
)

// SAML 2.0 namespace and binding URIs.
const (
	ProtocolNamespace  = "urn:oasis:names:tc:SAML:2.0:protocol"
	AssertionNamespace = "urn:oasis:names:tc:SAML:2.0:assertion"
	HTTPPostBinding    = "urn:oasis:names:tc:SAML:2.0:bindings:HTTP-POST"
)

// AuthnRequest is the outbound SSO-initiation message. One is created per
// login attempt and serialized immediately into the redirect URL; nothing is
// persisted, so there is no InResponseTo correlation on the response side.
type AuthnRequest struct {
	XMLName                     xml.Name `xml:"samlp:AuthnRequest"`
	XMLNS                       string   `xml:"xmlns:samlp,attr"`
	ID                          string   `xml:"ID,attr"`
	Version                     string   `xml:"Version,attr"`
	IssueInstant                string   `xml:"IssueInstant,attr"`
	ProtocolBinding             string   `xml:"ProtocolBinding,attr"`
	AssertionConsumerServiceURL string   `xml:"AssertionConsumerServiceURL,attr"`
	Issuer                      Issuer
	NameIDPolicy                NameIDPolicy
	RequestedAuthnContext       *RequestedAuthnContext `xml:"samlp:RequestedAuthnContext,omitempty"`
}

// Issuer is the saml:Issuer element.
type Issuer struct {
	XMLName xml.Name `xml:"saml:Issuer"`
	XMLNS   string   `xml:"xmlns:saml,attr"`
	Value   string   `xml:",chardata"`
}

// NameIDPolicy requests the identifier format the IdP should assert.
type NameIDPolicy struct {
	XMLName     xml.Name `xml:"samlp:NameIDPolicy"`
	Format      string   `xml:"Format,attr"`
	AllowCreate bool     `xml:"AllowCreate,attr"`
}

// RequestedAuthnContext lists acceptable authentication context classes,
// compared exactly by the IdP, in configuration order.
type RequestedAuthnContext struct {
	XMLName    xml.Name               `xml:"samlp:RequestedAuthnContext"`
	Comparison string                 `xml:"Comparison,attr"`
	ClassRefs  []AuthnContextClassRef `xml:"saml:AuthnContextClassRef"`
}

// AuthnContextClassRef is a single saml:AuthnContextClassRef entry.
type AuthnContextClassRef struct {
	XMLName xml.Name `xml:"saml:AuthnContextClassRef"`
	XMLNS   string   `xml:"xmlns:saml,attr"`
	Value   string   `xml:",chardata"`
}

// BuildAuthnRequest renders, compresses and encodes an AuthnRequest for the
// tenant and returns the complete IdP redirect URL. extraParams are appended
// as additional percent-encoded query pairs (e.g. RelayState). No network
// I/O happens here; the caller performs the actual redirect.
//
// A missing SSO target URL yields a syntactically valid but non-functional
// URL; settings completeness is a configuration-time concern.
func BuildAuthnRequest(settings *TenantSettings, extraParams map[string]string) (string, error) {
	req := AuthnRequest{
		XMLNS: ProtocolNamespace,
		// XML ID attributes must not start with a digit, so the random
		// token gets an underscore prefix.
		ID:                          "_" + uuid.New().String(),
		Version:                     "2.0",
		IssueInstant:                now().UTC().Format(issueInstantFormat),
		ProtocolBinding:             HTTPPostBinding,
		AssertionConsumerServiceURL: settings.AssertionConsumerServiceURL,
		Issuer: Issuer{
			XMLNS: AssertionNamespace,
			Value: settings.Issuer,
		},
		NameIDPolicy: NameIDPolicy{
			Format:      settings.NameIdentifierFormat,
			AllowCreate: true,
		},
	}

	if ctxs := settings.AuthnContextList(); len(ctxs) > 0 {
		rac := &RequestedAuthnContext{Comparison: "exact"}
		for _, ctx := range ctxs {
			rac.ClassRefs = append(rac.ClassRefs, AuthnContextClassRef{
				XMLNS: AssertionNamespace,
				Value: ctx,
			})
		}
		req.RequestedAuthnContext = rac
	}

	xmlBytes, err := xml.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("failed to marshal AuthnRequest: %w", err)
	}

	encoded, err := deflateAndEncode(xmlBytes)
	if err != nil {
		return "", fmt.Errorf("failed to encode AuthnRequest: %w", err)
	}

	query := url.Values{}
	query.Set("SAMLRequest", encoded)
	for k, v := range extraParams {
		query.Set(k, v)
	}

	target := settings.IDPSSOTargetURL
	sep := "?"
	if strings.Contains(target, "?") {
		sep = "&"
	}
	return target + sep + query.Encode(), nil
}

// deflateAndEncode produces the redirect-binding payload: raw deflate (no
// zlib header or checksum trailer) followed by standard base64.
func deflateAndEncode(data []byte) (string, error) {
	var buf bytes.Buffer
	w, err := flate.NewWriter(&buf, flate.BestCompression)
	if err != nil {
		return "", err
	}
	if _, err := w.Write(data); err != nil {
		return "", err
	}
	if err := w.Close(); err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// InflateAndDecode reverses deflateAndEncode. Exposed for tests and
// diagnostic tooling that needs to inspect an outbound request.
func InflateAndDecode(data string) ([]byte, error) {
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, err
	}
	r := flate.NewReader(bytes.NewReader(decoded))
	defer r.Close()

	var out bytes.Buffer
	if _, err := out.ReadFrom(r); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
