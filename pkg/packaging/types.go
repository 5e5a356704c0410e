package packaging

import (
	"crypto"
	"crypto/x509"
	"io"
)

// File is one payload file in submission order
type File struct {
	Name     string
	Content  []byte
	MimeType string
}

// DocumentPackage is the immutable result of packaging one envelope.
// Checksum is computed over EncryptedBlob only, after encryption; any change
// to files, manifest or signature produces a different blob and therefore a
// different checksum.
type DocumentPackage struct {
	Files         []File
	Manifest      []byte
	Signature     []byte
	EncryptedBlob []byte
	Checksum      string
}

// Signer provides the sender's signing key and certificate.
// Satisfied by the keystore signer implementations.
type Signer interface {
	// Sign signs the digest using the underlying private key.
	Sign(rand io.Reader, digest []byte, opts crypto.SignerOpts) ([]byte, error)

	// Public returns the public key corresponding to the private key.
	Public() crypto.PublicKey

	// Certificate returns the X.509 certificate for this signer.
	Certificate() *x509.Certificate

	// Algorithm returns the XML signature algorithm URI for this key type.
	Algorithm() string
}
