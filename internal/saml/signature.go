package saml

import (
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"github.com/beevik/etree"
	dsig "github.com/russellhaering/goxmldsig"
	"github.com/russellhaering/goxmldsig/etreeutils"
)

const dsigNamespace = "http://www.w3.org/2000/09/xmldsig#"

// SignatureVerifier is the cryptographic collaborator of the validation
// pipeline. Implementations must be wrapping-attack resistant: Verify has to
// reject documents where the embedded signature does not cover the element
// identified by SignedElementID, since that is the element identity and
// attributes are read from.
type SignatureVerifier interface {
	// SignedElementID returns the ID of the XML element the embedded
	// signature covers (the Response or one of its Assertions), or "" when
	// the document carries no usable signature reference.
	SignedElementID(doc *etree.Document) string

	// Verify checks the enveloped signature against the certificate whose
	// fingerprint matches fingerprint. A nil error means the signed subtree
	// is authentic.
	Verify(doc *etree.Document, fingerprint string) error
}

// XMLDSigVerifier verifies enveloped XML signatures using the certificate
// embedded in the response's KeyInfo, trusting it only when its fingerprint
// matches the tenant's configured trust material.
type XMLDSigVerifier struct {
	// Clock overrides signature-validity time checks in tests. Nil means
	// wall clock.
	Clock *dsig.Clock
}

// NewXMLDSigVerifier returns a verifier using the wall clock.
func NewXMLDSigVerifier() *XMLDSigVerifier {
	return &XMLDSigVerifier{}
}

// SignedElementID reads the signature's SignedInfo Reference URI and strips
// the leading "#". The reference decides which element was actually signed;
// content outside that element is never trusted.
func (v *XMLDSigVerifier) SignedElementID(doc *etree.Document) string {
	sig := findSignature(doc)
	if sig == nil {
		return ""
	}
	ref := findInNamespace(sig, dsigNamespace, "SignedInfo", "Reference")
	if ref == nil {
		return ""
	}
	return strings.TrimPrefix(ref.SelectAttrValue("URI", ""), "#")
}

// Verify validates the enveloped signature on the referenced element.
func (v *XMLDSigVerifier) Verify(doc *etree.Document, fingerprint string) error {
	root := doc.Root()
	if root == nil {
		return errors.New("document has no root element")
	}

	sig := findSignature(doc)
	if sig == nil {
		return errors.New("document is not signed")
	}

	// The element carrying the signature must be the one the reference
	// points at. A signature that covers some sibling would let an attacker
	// wrap a validly signed element next to forged content.
	signedEl := sig.Parent()
	if signedEl == nil {
		return errors.New("signature has no parent element")
	}
	signedID := v.SignedElementID(doc)
	if signedID == "" {
		return errors.New("signature reference is empty")
	}
	if signedEl.SelectAttrValue("ID", "") != signedID {
		return fmt.Errorf("signature covers %q, not the element it is embedded in", signedID)
	}
	// Reject ambiguous references outright. With two elements claiming the
	// signed ID, the element validated here and the element a consumer
	// resolves by ID can diverge.
	if countElementsWithID(root, signedID) > 1 {
		return errors.New("signed element ID matches more than one element")
	}

	cert, err := embeddedCertificate(sig)
	if err != nil {
		return err
	}

	if normalizeFingerprint(CertFingerprint(cert)) != normalizeFingerprint(fingerprint) {
		return errors.New("certificate fingerprint does not match trusted fingerprint")
	}

	certStore := &dsig.MemoryX509CertificateStore{
		Roots: []*x509.Certificate{cert},
	}
	validationCtx := dsig.NewDefaultValidationContext(certStore)
	validationCtx.IdAttribute = "ID"
	if v.Clock != nil {
		validationCtx.Clock = v.Clock
	}

	// Detach the signed element with its inherited namespace declarations so
	// canonicalization sees the same bytes the IdP signed.
	nsCtx, err := etreeutils.NSBuildParentContext(signedEl)
	if err != nil {
		return err
	}
	nsCtx, err = nsCtx.SubContext(signedEl)
	if err != nil {
		return err
	}
	detached, err := etreeutils.NSDetatch(nsCtx, signedEl)
	if err != nil {
		return err
	}

	if _, err := validationCtx.Validate(detached); err != nil {
		return err
	}
	return nil
}

// findSignature locates the ds:Signature element on the Response or, failing
// that, on one of its Assertion children.
func findSignature(doc *etree.Document) *etree.Element {
	root := doc.Root()
	if root == nil {
		return nil
	}
	if sig := childInNamespace(root, dsigNamespace, "Signature"); sig != nil {
		return sig
	}
	for _, assertion := range childrenByTag(root, "Assertion") {
		if sig := childInNamespace(assertion, dsigNamespace, "Signature"); sig != nil {
			return sig
		}
	}
	return nil
}

// embeddedCertificate extracts and parses the X509Certificate carried in the
// signature's KeyInfo.
func embeddedCertificate(sig *etree.Element) (*x509.Certificate, error) {
	certEl := findInNamespace(sig, dsigNamespace, "KeyInfo", "X509Data", "X509Certificate")
	if certEl == nil {
		return nil, errors.New("signature carries no X509Certificate")
	}

	der, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(certEl.Text()), ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode embedded certificate: %w", err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded certificate: %w", err)
	}
	return cert, nil
}

// childInNamespace finds the first direct child with the given local tag
// whose namespace resolves to ns.
func childInNamespace(el *etree.Element, ns, tag string) *etree.Element {
	for _, child := range el.ChildElements() {
		if child.Tag != tag {
			continue
		}
		if child.NamespaceURI() == ns {
			return child
		}
	}
	return nil
}

// findInNamespace descends through the given tag path, matching each step in
// the namespace ns.
func findInNamespace(el *etree.Element, ns string, path ...string) *etree.Element {
	cur := el
	for _, tag := range path {
		cur = childInNamespace(cur, ns, tag)
		if cur == nil {
			return nil
		}
	}
	return cur
}
