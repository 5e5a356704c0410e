package packaging

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/binary"
	"fmt"
)

// Encrypted blob framing: magic, wrapped-key length, wrapped key, nonce
// length, nonce, ciphertext. The frame is versioned through the magic so the
// layout can evolve without breaking stored blobs.
var blobMagic = []byte("EFM1")

const contentKeySize = 32 // AES-256

// encryptArchive encrypts the archive for the receiver using hybrid
// encryption: a fresh AES-256-GCM content key sealed over the archive, the
// key wrapped with RSA-OAEP against the receiver's certificate.
func encryptArchive(archive []byte, receiverCert *x509.Certificate) ([]byte, error) {
	if receiverCert == nil {
		return nil, fmt.Errorf("receiver certificate is required")
	}
	publicKey, ok := receiverCert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("receiver certificate does not contain an RSA public key")
	}

	contentKey := make([]byte, contentKeySize)
	if _, err := rand.Read(contentKey); err != nil {
		return nil, fmt.Errorf("generating content key: %w", err)
	}

	wrappedKey, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, publicKey, contentKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping content key: %w", err)
	}

	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, archive, nil)

	blob := make([]byte, 0, len(blobMagic)+4+len(wrappedKey)+4+len(nonce)+len(ciphertext))
	blob = append(blob, blobMagic...)
	blob = binary.BigEndian.AppendUint32(blob, uint32(len(wrappedKey)))
	blob = append(blob, wrappedKey...)
	blob = binary.BigEndian.AppendUint32(blob, uint32(len(nonce)))
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)
	return blob, nil
}

// DecryptArchive reverses encryptArchive using the receiver's private key.
// Used on the receiving side and by the round-trip tests.
func DecryptArchive(blob []byte, privateKey *rsa.PrivateKey) ([]byte, error) {
	if privateKey == nil {
		return nil, fmt.Errorf("private key is required")
	}

	rest, wrappedKey, err := readFrame(blob)
	if err != nil {
		return nil, err
	}
	rest, nonce, err := readField(rest)
	if err != nil {
		return nil, err
	}
	ciphertext := rest

	contentKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, privateKey, wrappedKey, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrapping content key: %w", err)
	}

	block, err := aes.NewCipher(contentKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	if len(nonce) != gcm.NonceSize() {
		return nil, fmt.Errorf("invalid nonce size %d", len(nonce))
	}

	archive, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting archive: %w", err)
	}
	return archive, nil
}

func readFrame(blob []byte) (rest, field []byte, err error) {
	if len(blob) < len(blobMagic) || string(blob[:len(blobMagic)]) != string(blobMagic) {
		return nil, nil, fmt.Errorf("blob does not start with expected magic")
	}
	return readField(blob[len(blobMagic):])
}

func readField(data []byte) (rest, field []byte, err error) {
	if len(data) < 4 {
		return nil, nil, fmt.Errorf("truncated blob")
	}
	n := binary.BigEndian.Uint32(data[:4])
	data = data[4:]
	if uint32(len(data)) < n {
		return nil, nil, fmt.Errorf("truncated blob")
	}
	return data[n:], data[:n], nil
}
