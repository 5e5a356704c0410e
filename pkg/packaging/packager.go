package packaging

import (
	"context"
	"crypto/sha256"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
)

// Packager builds document packages for outbound envelopes.
// It is safe for concurrent use; each call operates on its own state.
type Packager struct {
	signer     Signer
	revocation *OCSPChecker
	issuer     *x509.Certificate
	now        func() time.Time
}

// PackagerOption configures optional packager behavior.
type PackagerOption func(*Packager)

// WithRevocationCheck makes the packager query the issuer's OCSP responder
// for the receiver certificate before encrypting. The issuer is the CA that
// signed the receiver certificates this instance sends to.
func WithRevocationCheck(checker *OCSPChecker, issuer *x509.Certificate) PackagerOption {
	return func(p *Packager) {
		p.revocation = checker
		p.issuer = issuer
	}
}

// NewPackager creates a packager signing with the given key.
func NewPackager(signer Signer, opts ...PackagerOption) *Packager {
	p := &Packager{
		signer: signer,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Package derives the document package from the envelope and its files.
//
// The steps run in fixed order: manifest, detached signature, archive,
// hybrid encryption for the receiver certificate, checksum of the encrypted
// blob. The context bounds the whole operation; a context that expires
// before encryption completes aborts the attempt.
func (p *Packager) Package(ctx context.Context, env *envelope.Envelope, files []File, receiverCert *x509.Certificate) (*DocumentPackage, error) {
	if env == nil {
		return nil, &PackagingError{Step: "manifest", Err: fmt.Errorf("envelope is nil")}
	}

	manifest, err := BuildManifest(env, files)
	if err != nil {
		return nil, &PackagingError{Step: "manifest", Err: err}
	}

	signed := make([]signedFile, 0, len(files)+1)
	signed = append(signed, signedFile{name: manifestFilename, content: manifest})
	for _, f := range files {
		signed = append(signed, signedFile{name: f.Name, content: f.Content})
	}
	signature, err := buildSignature(p.signer, signed)
	if err != nil {
		return nil, &SigningError{Err: err}
	}

	archive, err := buildContainer(manifest, signature, files)
	if err != nil {
		return nil, &PackagingError{Step: "archive", Err: err}
	}

	if err := ValidateReceiverCertificate(receiverCert, p.now()); err != nil {
		return nil, &EncryptionError{Err: err}
	}
	if p.revocation != nil {
		if err := p.revocation.Check(ctx, receiverCert, p.issuer); err != nil {
			return nil, &EncryptionError{Err: err}
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, &EncryptionError{Err: err}
	}
	blob, err := encryptArchive(archive, receiverCert)
	if err != nil {
		return nil, &EncryptionError{Err: err}
	}

	return &DocumentPackage{
		Files:         files,
		Manifest:      manifest,
		Signature:     signature,
		EncryptedBlob: blob,
		Checksum:      Checksum(blob),
	}, nil
}

// Checksum computes the content hash used for retry deduplication.
func Checksum(blob []byte) string {
	sum := sha256.Sum256(blob)
	return hex.EncodeToString(sum[:])
}

// VerifyChecksum reports whether the package's blob still matches its
// recorded checksum. The retry queue calls this before every re-send.
func VerifyChecksum(pkg *DocumentPackage) bool {
	return pkg != nil && Checksum(pkg.EncryptedBlob) == pkg.Checksum
}

// VerifyContainer validates a decrypted archive end to end: manifest
// parses, the detached signature covers manifest and files, and all digests
// match. The sender's certificate comes from the container's signature
// KeyInfo in normal operation; tests pass it explicitly.
func VerifyContainer(archive []byte, senderCert *x509.Certificate) (*Container, error) {
	c, err := OpenContainer(archive)
	if err != nil {
		return nil, err
	}
	if _, err := ParseManifest(c.Manifest); err != nil {
		return nil, err
	}

	signed := make([]signedFile, 0, len(c.Files)+1)
	signed = append(signed, signedFile{name: manifestFilename, content: c.Manifest})
	for _, f := range c.Files {
		signed = append(signed, signedFile{name: f.Name, content: f.Content})
	}
	if err := verifySignature(c.Signature, signed, senderCert); err != nil {
		return nil, err
	}
	return c, nil
}
