package tenant

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func testCertPEM(t *testing.T) string {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "idp.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	return string(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}))
}

func TestACSURL(t *testing.T) {
	require.Equal(t,
		"https://sp.example.com/saml/acs/t-1",
		ACSURL("https://sp.example.com", "t-1"))
	require.Equal(t,
		"https://sp.example.com/saml/acs/t-1",
		ACSURL("https://sp.example.com/", "t-1"),
		"trailing slash must not double up")
}

func TestTenantSettings(t *testing.T) {
	tn := &Tenant{
		ID:                 "t-1",
		Issuer:             "https://sp.example.com",
		IDPSSOTargetURL:    "https://idp.example.com/sso",
		IDPCertFingerprint: "AA:BB:CC",
		NameIDFormat:       DefaultNameIDFormat,
		AuthnContexts:      "urn:a,urn:b",
		SkipConditions:     true,
	}

	settings := tn.Settings("https://sp.example.com")
	require.Equal(t, "https://sp.example.com", settings.Issuer)
	require.Equal(t, "https://sp.example.com/saml/acs/t-1", settings.AssertionConsumerServiceURL)
	require.Equal(t, "https://idp.example.com/sso", settings.IDPSSOTargetURL)
	require.Equal(t, "AA:BB:CC", settings.IDPCertFingerprint)
	require.Equal(t, DefaultNameIDFormat, settings.NameIdentifierFormat)
	require.Equal(t, []string{"urn:a", "urn:b"}, settings.AuthnContextList())
	require.True(t, settings.SkipConditions)
}

func TestValidateTrustMaterial(t *testing.T) {
	certPEM := testCertPEM(t)

	tests := []struct {
		name        string
		cert        string
		fingerprint string
		wantErr     bool
	}{
		{"fingerprint only", "", "AA:BB:CC", false},
		{"certificate only", certPEM, "", false},
		{"both", certPEM, "AA:BB:CC", false},
		{"neither", "", "", true},
		{"garbage certificate", "not a certificate", "", true},
		{"garbage certificate with fingerprint", "not a certificate", "AA:BB:CC", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTrustMaterial(tt.cert, tt.fingerprint)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
