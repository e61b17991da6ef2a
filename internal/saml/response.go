package saml

import (
	"encoding/base64"
	"strings"
	"time"

	"github.com/beevik/etree"
)

// Conditions is the assertion's validity window. Zero times mean the bound
// was not set. The lower bound is inclusive, the upper bound exclusive.
type Conditions struct {
	NotBefore    time.Time
	NotOnOrAfter time.Time
}

// ParsedResponse wraps a decoded SAML response document. All derived fields
// are computed once at parse time and stored immutably; re-reading never
// returns stale data. A ParsedResponse is owned by the validation call that
// produced it and must not be shared across requests.
type ParsedResponse struct {
	// Raw is the payload exactly as received, still base64-encoded. It is
	// carried on validation errors for operator diagnostics.
	Raw string

	// NameID is the asserted identity, or empty when no identity was
	// asserted. Empty is a terminal validation failure downstream, not a
	// parse error.
	NameID string

	// Attributes maps attribute Name to the trimmed text of its first value
	// child. Empty (never nil) when the response carries no
	// AttributeStatement.
	Attributes map[string]string

	// Conditions is nil when the signed assertion carries no Conditions
	// element, meaning no temporal constraints apply.
	Conditions *Conditions

	// SessionExpiresAt is the AuthnStatement SessionNotOnOrAfter value, or
	// zero when the IdP did not bound the session.
	SessionExpiresAt time.Time

	doc *etree.Document
}

// Document exposes the underlying XML document for the signature check.
func (r *ParsedResponse) Document() *etree.Document {
	return r.doc
}

// ParseResponse decodes a base64 protocol response and extracts the typed
// fields. The verifier determines which element the embedded signature
// actually covers; NameID, attributes, Conditions and the session bound are
// only read from beneath that element, so unsigned content smuggled alongside
// a validly signed sibling is never trusted.
//
// Returns ErrMalformedResponse (wrapped in a ProtocolError) when the input
// is empty or does not decode to well-formed XML.
func ParseResponse(raw string, verifier SignatureVerifier) (*ParsedResponse, error) {
	if raw == "" {
		return nil, protocolError(ErrMalformedResponse, "response cannot be empty", raw)
	}

	decoded, err := decodeBase64(raw)
	if err != nil {
		return nil, protocolError(ErrMalformedResponse, "response is not valid base64: "+err.Error(), raw)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(decoded); err != nil {
		return nil, protocolError(ErrMalformedResponse, "response is not well-formed XML: "+err.Error(), raw)
	}
	root := doc.Root()
	if root == nil || root.Tag != "Response" {
		return nil, protocolError(ErrMalformedResponse, "document root is not a Response element", raw)
	}

	resp := &ParsedResponse{
		Raw:        raw,
		Attributes: map[string]string{},
		doc:        doc,
	}

	signedID := verifier.SignedElementID(doc)

	// The signed element ID must be unique in the document. A forged element
	// reusing the signed element's ID would otherwise shadow the genuine one
	// during extraction while the signature still validates.
	if signedID != "" && countElementsWithID(root, signedID) > 1 {
		return nil, protocolError(ErrMalformedResponse, "signed element ID matches more than one element", raw)
	}

	signedAssertion := findSignedAssertion(root, signedID)

	if nameID := findNameID(signedAssertion); nameID != nil {
		resp.NameID = strings.TrimSpace(nameID.Text())
	}

	// Attributes and the session bound come from the signed assertion only,
	// never from an unsigned sibling. Absence is not an error; the map just
	// stays empty. Only the first value per attribute name is retained.
	if signedAssertion != nil {
		if stmt := childByTag(signedAssertion, "AttributeStatement"); stmt != nil {
			for _, attr := range stmt.ChildElements() {
				name := attr.SelectAttrValue("Name", "")
				if name == "" {
					continue
				}
				if values := attr.ChildElements(); len(values) > 0 {
					resp.Attributes[name] = strings.TrimSpace(values[0].Text())
				}
			}
		}

		// SessionNotOnOrAfter is advisory: it only ever tightens the session
		// TTL the service would grant anyway, so an unparseable value is
		// treated as absent rather than fatal. Conditions timestamps below
		// gate validity and stay strict.
		if authn := childByTag(signedAssertion, "AuthnStatement"); authn != nil {
			if t, err := parseTimeAttr(authn, "SessionNotOnOrAfter"); err == nil {
				resp.SessionExpiresAt = t
			}
		}

		if cond := childByTag(signedAssertion, "Conditions"); cond != nil {
			notBefore, err := parseTimeAttr(cond, "NotBefore")
			if err != nil {
				return nil, protocolError(ErrMalformedResponse, "unparseable NotBefore condition: "+err.Error(), raw)
			}
			notOnOrAfter, err := parseTimeAttr(cond, "NotOnOrAfter")
			if err != nil {
				return nil, protocolError(ErrMalformedResponse, "unparseable NotOnOrAfter condition: "+err.Error(), raw)
			}
			resp.Conditions = &Conditions{NotBefore: notBefore, NotOnOrAfter: notOnOrAfter}
		}
	}

	return resp, nil
}

// decodeBase64 is tolerant of the whitespace some IdPs wrap into the form
// payload.
func decodeBase64(raw string) ([]byte, error) {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '\n', '\r', '\t', ' ':
			return -1
		}
		return r
	}, raw)
	return base64.StdEncoding.DecodeString(clean)
}

// countElementsWithID walks the whole subtree counting elements whose ID
// attribute equals id. Anything above one means the reference is ambiguous.
func countElementsWithID(el *etree.Element, id string) int {
	n := 0
	if el.SelectAttrValue("ID", "") == id {
		n++
	}
	for _, child := range el.ChildElements() {
		n += countElementsWithID(child, id)
	}
	return n
}

// findSignedAssertion returns the Assertion the signature covers: either the
// Assertion whose ID matches the signed element id, or, when the Response
// itself is the signed element, its first Assertion child. ParseResponse has
// already rejected documents where the signed ID is not unique.
func findSignedAssertion(root *etree.Element, signedID string) *etree.Element {
	if signedID == "" {
		return nil
	}
	for _, assertion := range childrenByTag(root, "Assertion") {
		if assertion.SelectAttrValue("ID", "") == signedID {
			return assertion
		}
	}
	if root.SelectAttrValue("ID", "") == signedID {
		return childByTag(root, "Assertion")
	}
	return nil
}

// findNameID resolves Subject/NameID beneath the signed assertion only.
func findNameID(assertion *etree.Element) *etree.Element {
	if assertion == nil {
		return nil
	}
	subject := childByTag(assertion, "Subject")
	if subject == nil {
		return nil
	}
	return childByTag(subject, "NameID")
}

// childByTag finds the first direct child with the given local tag name,
// ignoring namespace prefixes. Element IDs arrive attacker-controlled, so
// traversal never builds path expressions from them.
func childByTag(el *etree.Element, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			return child
		}
	}
	return nil
}

func childrenByTag(el *etree.Element, tag string) []*etree.Element {
	var out []*etree.Element
	for _, child := range el.ChildElements() {
		if child.Tag == tag {
			out = append(out, child)
		}
	}
	return out
}
