//go:build pkcs11

// Package keystore provides the PKCS#11 signer implementation
package keystore

import (
	"context"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"sync"

	"github.com/ThalesGroup/crypto11"
)

// PKCS11Provider implements SignerProvider using a PKCS#11 token (HSM/smart card)
type PKCS11Provider struct {
	ctx      *crypto11.Context
	keyLabel string
	mu       sync.RWMutex
	signers  map[string]*pkcs11Signer
}

// PKCS11Config holds configuration for the PKCS#11 provider
type PKCS11Config struct {
	// ModulePath is the path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string

	// SlotID is the slot number to use (optional if SlotLabel is provided)
	SlotID *uint

	// SlotLabel is the token label to search for (optional if SlotID is provided)
	SlotLabel string

	// PIN is the user PIN for authentication
	PIN string

	// KeyLabel is the label of the enterprise certificate key object.
	// Empty means the organization number is used as the label.
	KeyLabel string
}

// NewPKCS11Provider creates a new PKCS#11 signer provider
func NewPKCS11Provider(cfg *PKCS11Config) (*PKCS11Provider, error) {
	config := &crypto11.Config{
		Path: cfg.ModulePath,
		Pin:  cfg.PIN,
	}

	if cfg.SlotID != nil {
		slotID := int(*cfg.SlotID)
		config.SlotNumber = &slotID
	}
	if cfg.SlotLabel != "" {
		config.TokenLabel = cfg.SlotLabel
	}

	ctx, err := crypto11.Configure(config)
	if err != nil {
		return nil, fmt.Errorf("configuring PKCS#11: %w", err)
	}

	return &PKCS11Provider{
		ctx:      ctx,
		keyLabel: cfg.KeyLabel,
		signers:  make(map[string]*pkcs11Signer),
	}, nil
}

// GetSigner returns a signer for the organization's key
func (p *PKCS11Provider) GetSigner(ctx context.Context, orgNumber string) (Signer, error) {
	label := p.label(orgNumber)

	p.mu.RLock()
	if signer, ok := p.signers[label]; ok {
		p.mu.RUnlock()
		return signer, nil
	}
	p.mu.RUnlock()

	signer, err := p.loadSigner(label)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.signers[label] = signer
	p.mu.Unlock()

	return signer, nil
}

// GetCertificate returns the organization's certificate
func (p *PKCS11Provider) GetCertificate(ctx context.Context, orgNumber string) (*x509.Certificate, error) {
	cert, err := p.ctx.FindCertificate(nil, []byte(p.label(orgNumber)), nil)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}
	if cert == nil {
		return nil, ErrKeyNotFound
	}
	return cert, nil
}

// Close releases PKCS#11 resources
func (p *PKCS11Provider) Close() error {
	return p.ctx.Close()
}

func (p *PKCS11Provider) label(orgNumber string) string {
	if p.keyLabel != "" {
		return p.keyLabel
	}
	return orgNumber
}

func (p *PKCS11Provider) loadSigner(label string) (*pkcs11Signer, error) {
	key, err := p.ctx.FindKeyPair(nil, []byte(label))
	if err != nil {
		return nil, fmt.Errorf("finding key pair: %w", err)
	}
	if key == nil {
		return nil, ErrKeyNotFound
	}

	cert, err := p.ctx.FindCertificate(nil, []byte(label), nil)
	if err != nil {
		return nil, fmt.Errorf("finding certificate: %w", err)
	}

	return &pkcs11Signer{
		key:       key,
		cert:      cert,
		algorithm: "http://www.w3.org/2001/04/xmldsig-more#rsa-sha256",
	}, nil
}

// pkcs11Signer implements Signer using a PKCS#11 key
type pkcs11Signer struct {
	key       crypto.Signer
	cert      *x509.Certificate
	algorithm string
}

func (s *pkcs11Signer) Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error) {
	return s.key.Sign(rand, digest, opts)
}

func (s *pkcs11Signer) Public() crypto.PublicKey {
	return s.key.Public()
}

func (s *pkcs11Signer) Certificate() *x509.Certificate {
	return s.cert
}

func (s *pkcs11Signer) Algorithm() string {
	return s.algorithm
}
