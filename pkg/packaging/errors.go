package packaging

import "fmt"

// PackagingError indicates a fault while constructing the container
// (manifest or archive construction). Signing and encryption faults have
// their own types so callers can distinguish key problems from certificate
// problems.
type PackagingError struct {
	Step string
	Err  error
}

func (e *PackagingError) Error() string {
	return fmt.Sprintf("packaging failed at %s: %v", e.Step, e.Err)
}

func (e *PackagingError) Unwrap() error { return e.Err }

// SigningError indicates the signing key was unavailable or the signature
// computation failed.
type SigningError struct {
	Err error
}

func (e *SigningError) Error() string { return "signing failed: " + e.Err.Error() }

func (e *SigningError) Unwrap() error { return e.Err }

// EncryptionError indicates the receiver certificate was unusable or the
// hybrid encryption failed.
type EncryptionError struct {
	Err error
}

func (e *EncryptionError) Error() string { return "encryption failed: " + e.Err.Error() }

func (e *EncryptionError) Unwrap() error { return e.Err }
