// Package keystore provides key management for the integration point.
//
// This package defines a unified interface for signing with the
// organization's enterprise certificate that can be implemented by
// different backends:
//
//   - PKCS#11: keys stored in hardware security modules (HSM) or smart cards
//   - File-based: keys loaded from PEM files (development only)
//
// The abstraction allows document packaging to sign containers without
// knowing the underlying key storage mechanism.
package keystore

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"io"
)

// Common errors
var (
	ErrKeyNotFound = errors.New("signing key not found")
	ErrKeyLocked   = errors.New("signing key is locked")
	ErrPINRequired = errors.New("PIN required to unlock key")
)

// SignerProvider provides the signing key and enterprise certificate for an
// organization.
//
// Implementations must be safe for concurrent use.
type SignerProvider interface {
	// GetSigner returns a signer for the organization's enterprise
	// certificate key.
	GetSigner(ctx context.Context, orgNumber string) (Signer, error)

	// GetCertificate returns the organization's X.509 certificate. This
	// can be called without authentication as certificates are public.
	GetCertificate(ctx context.Context, orgNumber string) (*x509.Certificate, error)

	// Close releases any resources held by the provider.
	Close() error
}

// Signer performs cryptographic signing operations
//
// This interface is intentionally minimal - it provides just enough to sign
// document containers. The implementation handles the complexity of key
// access.
type Signer interface {
	// Sign signs the digest using the underlying private key.
	// The opts parameter specifies the signature algorithm.
	Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error)

	// Public returns the public key corresponding to the private key.
	Public() crypto.PublicKey

	// Certificate returns the X.509 certificate for this signer.
	Certificate() *x509.Certificate

	// Algorithm returns the signature algorithm URI for XML signatures.
	Algorithm() string
}
