// Package config handles configuration loading for the integration point.
//
// Configuration is loaded from a YAML file with support for environment
// variable expansion (${VAR} or $VAR syntax). This allows sensitive values
// like database credentials and keystore PINs to be injected at runtime.
//
// # Configuration Sections
//
//   - organization: own org number, fallback sender, noark system type
//   - channels: per-channel enable toggles and service endpoints
//   - queue: retry scheduler settings (poll interval, workers, backoff)
//   - reconciler: receipt polling cadence
//   - storage: database connection (MongoDB URI, database name)
//   - signing: key management mode (file or pkcs11)
//   - registry: ELMA registry domain for endpoint discovery
//
// # Example Configuration
//
//	organization:
//	  number: "991825827"
//	  fallbackSender: "974720760"
//	  noarkType: p360
//
//	channels:
//	  dpo:
//	    enabled: true
//	  dpf:
//	    enabled: true
//	    endpoint: https://svarut.example.no/tjenester/forsendelseservice
//
//	storage:
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: integrasjonspunkt
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
)

// Config is the root configuration structure
type Config struct {
	Organization OrganizationConfig `yaml:"organization"`
	Channels     ChannelsConfig     `yaml:"channels"`
	Queue        QueueConfig        `yaml:"queue"`
	Reconciler   ReconcilerConfig   `yaml:"reconciler"`
	Storage      StorageConfig      `yaml:"storage"`
	Signing      SigningConfig      `yaml:"signing"`
	Registry     RegistryConfig     `yaml:"registry"`
}

// OrganizationConfig identifies the organization this instance sends for
type OrganizationConfig struct {
	// Number is the own 9-digit organization number.
	Number string `yaml:"number"`
	// FallbackSender is used as sender for receivers whose sender has no
	// registration of its own; receipts addressed to it are discarded.
	FallbackSender string `yaml:"fallbackSender"`
	// NoarkType is the local case-management system type (p360, ephorte,
	// websak). Controls whether application receipts are acknowledged
	// locally.
	NoarkType string `yaml:"noarkType"`
	// ReturnOKOnEmptyPayload accepts submissions without payload files and
	// reports success instead of rejecting them.
	ReturnOKOnEmptyPayload bool `yaml:"returnOkOnEmptyPayload"`
}

// ChannelsConfig holds the per-channel settings
type ChannelsConfig struct {
	DPO        ChannelConfig `yaml:"dpo"`
	DPF        ChannelConfig `yaml:"dpf"`
	DPV        ChannelConfig `yaml:"dpv"`
	DPIDigital ChannelConfig `yaml:"dpiDigital"`
	DPIPrint   ChannelConfig `yaml:"dpiPrint"`
}

// ChannelConfig holds one channel's toggle and service endpoint
type ChannelConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the channel service URL. Unused for DPO, whose endpoints
	// are resolved through the registry per receiver.
	Endpoint string `yaml:"endpoint"`
}

// QueueConfig holds retry scheduler settings
type QueueConfig struct {
	PollInterval   time.Duration `yaml:"pollInterval"`
	BatchSize      int           `yaml:"batchSize"`
	Workers        int           `yaml:"workers"`
	AttemptTimeout time.Duration `yaml:"attemptTimeout"`
	MaxAttempts    int           `yaml:"maxAttempts"`
	InitialBackoff time.Duration `yaml:"initialBackoff"`
	MaxBackoff     time.Duration `yaml:"maxBackoff"`
}

// ReconcilerConfig holds receipt polling settings
type ReconcilerConfig struct {
	PollInterval time.Duration `yaml:"pollInterval"`
}

// StorageConfig holds database settings
type StorageConfig struct {
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// SigningConfig holds signing key management settings
type SigningConfig struct {
	// Mode determines how the enterprise certificate key is managed
	// - "pkcs11": key stored in a PKCS#11 token (HSM/smart card)
	// - "file": key loaded from PEM files (development only)
	Mode string `yaml:"mode"`

	PKCS11 PKCS11Config  `yaml:"pkcs11"`
	File   FileKeyConfig `yaml:"file"`
}

// PKCS11Config holds PKCS#11 HSM settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	// Slot ID or label to use
	SlotID    uint   `yaml:"slotId"`
	SlotLabel string `yaml:"slotLabel"`
	// PIN for authentication (can be env var reference like ${HSM_PIN})
	PIN string `yaml:"pin"`
	// Label of the signing key object
	KeyLabel string `yaml:"keyLabel"`
}

// FileKeyConfig holds file-based key settings (development only)
type FileKeyConfig struct {
	// Directory containing {orgnr}.key / {orgnr}.crt PEM files
	KeyDir string `yaml:"keyDir"`
}

// RegistryConfig holds ELMA registry settings
type RegistryConfig struct {
	// Domain is the base DNS domain of the registry.
	Domain string `yaml:"domain"`
	// DNSServer overrides the resolver, "ip:port".
	DNSServer string `yaml:"dnsServer"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = 10 * time.Second
	}
	if c.Queue.BatchSize == 0 {
		c.Queue.BatchSize = 20
	}
	if c.Queue.Workers == 0 {
		c.Queue.Workers = 4
	}
	if c.Queue.AttemptTimeout == 0 {
		c.Queue.AttemptTimeout = time.Minute
	}
	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 10
	}
	if c.Queue.InitialBackoff == 0 {
		c.Queue.InitialBackoff = time.Minute
	}
	if c.Queue.MaxBackoff == 0 {
		c.Queue.MaxBackoff = time.Hour
	}
	if c.Reconciler.PollInterval == 0 {
		c.Reconciler.PollInterval = 30 * time.Second
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "integrasjonspunkt"
	}
	if c.Signing.Mode == "" {
		c.Signing.Mode = "file" // Default to file for development
	}
	if c.Registry.Domain == "" {
		c.Registry.Domain = "edelivery.difi.no"
	}
}

func (c *Config) validate() error {
	if c.Organization.Number == "" {
		return fmt.Errorf("organization.number is required")
	}
	if _, err := envelope.NormalizeOrgNumber(c.Organization.Number); err != nil {
		return fmt.Errorf("organization.number: %w", err)
	}
	if c.Organization.FallbackSender != "" {
		if _, err := envelope.NormalizeOrgNumber(c.Organization.FallbackSender); err != nil {
			return fmt.Errorf("organization.fallbackSender: %w", err)
		}
	}

	switch c.Signing.Mode {
	case "pkcs11", "file":
		// Valid modes
	default:
		return fmt.Errorf("signing.mode must be 'pkcs11' or 'file', got '%s'", c.Signing.Mode)
	}

	if c.Signing.Mode == "pkcs11" && c.Signing.PKCS11.ModulePath == "" {
		return fmt.Errorf("signing.pkcs11.modulePath is required when mode is 'pkcs11'")
	}
	if c.Signing.Mode == "file" && c.Signing.File.KeyDir == "" {
		return fmt.Errorf("signing.file.keyDir is required when mode is 'file'")
	}

	for _, ch := range []struct {
		name string
		cfg  ChannelConfig
	}{
		{"dpf", c.Channels.DPF},
		{"dpv", c.Channels.DPV},
		{"dpiDigital", c.Channels.DPIDigital},
		{"dpiPrint", c.Channels.DPIPrint},
	} {
		if ch.cfg.Enabled && ch.cfg.Endpoint == "" {
			return fmt.Errorf("channels.%s.endpoint is required when the channel is enabled", ch.name)
		}
	}

	return nil
}
