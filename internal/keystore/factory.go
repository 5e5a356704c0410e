// Package keystore provides the factory for creating signer providers
package keystore

import (
	"fmt"

	"github.com/janhelge/efm-integrasjonspunkt/internal/config"
)

// NewProvider creates a SignerProvider based on the configuration
func NewProvider(cfg *config.SigningConfig) (SignerProvider, error) {
	switch cfg.Mode {
	case "pkcs11":
		return newPKCS11Provider(cfg)
	case "file":
		return newFileProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown signing mode: %s", cfg.Mode)
	}
}

func newPKCS11Provider(cfg *config.SigningConfig) (SignerProvider, error) {
	p11cfg := &PKCS11Config{
		ModulePath: cfg.PKCS11.ModulePath,
		SlotLabel:  cfg.PKCS11.SlotLabel,
		PIN:        cfg.PKCS11.PIN,
		KeyLabel:   cfg.PKCS11.KeyLabel,
	}
	if cfg.PKCS11.SlotID > 0 {
		slotID := cfg.PKCS11.SlotID
		p11cfg.SlotID = &slotID
	}
	return NewPKCS11Provider(p11cfg)
}

func newFileProvider(cfg *config.SigningConfig) (SignerProvider, error) {
	keyDir := cfg.File.KeyDir
	if keyDir == "" {
		keyDir = "./keys"
	}
	return NewFileProvider(keyDir)
}
