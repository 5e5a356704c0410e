package keystore

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/packaging"
)

func writeKeyPair(t *testing.T, dir, orgNumber string) *rsa.PrivateKey {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "TEST VIRKSOMHET", SerialNumber: orgNumber},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)

	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})

	require.NoError(t, os.WriteFile(filepath.Join(dir, orgNumber+".key"), keyPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, orgNumber+".crt"), certPEM, 0o644))
	return key
}

func TestFileProvider_GetSigner(t *testing.T) {
	dir := t.TempDir()
	writeKeyPair(t, dir, "991825827")

	p, err := NewFileProvider(dir)
	require.NoError(t, err)
	defer p.Close()

	signer, err := p.GetSigner(context.Background(), "991825827")
	require.NoError(t, err)
	assert.Equal(t, "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256", signer.Algorithm())
	require.NotNil(t, signer.Certificate())
	assert.Equal(t, "991825827", signer.Certificate().Subject.SerialNumber)

	// The signer produces verifiable signatures.
	digest := sha256.Sum256([]byte("data"))
	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.NoError(t, err)
	pub := signer.Public().(*rsa.PublicKey)
	assert.NoError(t, rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], sig))

	// Second lookup hits the cache and returns the same signer.
	again, err := p.GetSigner(context.Background(), "991825827")
	require.NoError(t, err)
	assert.Same(t, signer, again)
}

func TestFileProvider_ECDSAKey(t *testing.T) {
	dir := t.TempDir()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "TEST VIRKSOMHET", SerialNumber: "974720760"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, key.Public(), key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	require.NoError(t, os.WriteFile(filepath.Join(dir, "974720760.key"), keyPEM, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "974720760.crt"), certPEM, 0o644))

	p, err := NewFileProvider(dir)
	require.NoError(t, err)
	defer p.Close()

	signer, err := p.GetSigner(context.Background(), "974720760")
	require.NoError(t, err)

	// The algorithm URI must be one the packaging signature code accepts,
	// and the signer must produce verifiable signatures.
	assert.Equal(t, packaging.AlgorithmECDSASHA256, signer.Algorithm())
	digest := sha256.Sum256([]byte("data"))
	sig, err := signer.Sign(rand.Reader, digest[:], crypto.SHA256)
	require.NoError(t, err)
	pub := signer.Public().(*ecdsa.PublicKey)
	assert.True(t, ecdsa.VerifyASN1(pub, digest[:], sig))
}

func TestFileProvider_UnknownOrganization(t *testing.T) {
	p, err := NewFileProvider(t.TempDir())
	require.NoError(t, err)
	defer p.Close()

	_, err = p.GetSigner(context.Background(), "974720760")
	assert.ErrorIs(t, err, ErrKeyNotFound)
}

func TestFileProvider_GetCertificate(t *testing.T) {
	dir := t.TempDir()
	writeKeyPair(t, dir, "991825827")

	p, err := NewFileProvider(dir)
	require.NoError(t, err)
	defer p.Close()

	cert, err := p.GetCertificate(context.Background(), "991825827")
	require.NoError(t, err)
	assert.Equal(t, "TEST VIRKSOMHET", cert.Subject.CommonName)
}

func TestNewFileProvider_MissingDirectory(t *testing.T) {
	_, err := NewFileProvider(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
