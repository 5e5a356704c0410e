package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/delivery"
)

// TLS version constants
const (
	TLS12 = tls.VersionTLS12
	TLS13 = tls.VersionTLS13
)

// Recommended TLS 1.2 cipher suites for channel service traffic
var RecommendedTLS12CipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
}

// HTTPSConfig contains HTTPS client configuration
type HTTPSConfig struct {
	MinTLSVersion   uint16
	MaxTLSVersion   uint16
	CipherSuites    []uint16
	Certificates    []tls.Certificate
	RootCAs         *x509.CertPool
	Timeout         time.Duration
	IdleConnTimeout time.Duration
}

// DefaultHTTPSConfig returns a default HTTPS configuration
func DefaultHTTPSConfig() *HTTPSConfig {
	return &HTTPSConfig{
		MinTLSVersion:   TLS12,
		MaxTLSVersion:   TLS13,
		CipherSuites:    RecommendedTLS12CipherSuites,
		Timeout:         30 * time.Second,
		IdleConnTimeout: 90 * time.Second,
	}
}

// HTTPSClient posts packaged envelopes to channel service endpoints
type HTTPSClient struct {
	client *http.Client
	config *HTTPSConfig
}

// NewHTTPSClient creates a new HTTPS client
func NewHTTPSClient(config *HTTPSConfig) *HTTPSClient {
	if config == nil {
		config = DefaultHTTPSConfig()
	}

	tlsConfig := &tls.Config{
		MinVersion:   config.MinTLSVersion,
		MaxVersion:   config.MaxTLSVersion,
		CipherSuites: config.CipherSuites,
		Certificates: config.Certificates,
		RootCAs:      config.RootCAs,
	}

	transport := &http.Transport{
		TLSClientConfig:     tlsConfig,
		IdleConnTimeout:     config.IdleConnTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 10,
	}

	return &HTTPSClient{
		client: &http.Client{
			Transport: transport,
			Timeout:   config.Timeout,
		},
		config: config,
	}
}

// Send posts the payload to the endpoint and returns the external id the
// service assigned, read from the response body. Client errors other than
// timeouts and throttling are marked permanent so the queue does not retry
// a payload the service has rejected.
func (c *HTTPSClient) Send(ctx context.Context, endpoint string, payload []byte, contentType string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "efm-integrasjonspunkt/1.0")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("unexpected status code %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		if permanentStatus(resp.StatusCode) {
			return "", &delivery.PermanentError{Reason: "service rejected payload", Err: statusErr}
		}
		return "", statusErr
	}

	return strings.TrimSpace(string(body)), nil
}

// permanentStatus reports whether an HTTP status means retrying the same
// payload cannot succeed. Timeouts and throttling stay retryable.
func permanentStatus(code int) bool {
	switch code {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return false
	}
	return code >= 400 && code < 500
}

// BoundClient binds the HTTPS client to one configured endpoint, satisfying
// the fixed-endpoint transport collaborator contract.
type BoundClient struct {
	Client      *HTTPSClient
	Endpoint    string
	ContentType string
}

func (b *BoundClient) Send(ctx context.Context, payload []byte) (string, error) {
	return b.Client.Send(ctx, b.Endpoint, payload, contentTypeOrDefault(b.ContentType))
}

// EndpointBoundClient satisfies the per-call endpoint collaborator contract
// used where endpoints are resolved through the registry.
type EndpointBoundClient struct {
	Client      *HTTPSClient
	ContentType string
}

func (e *EndpointBoundClient) SendTo(ctx context.Context, endpoint string, payload []byte) (string, error) {
	return e.Client.Send(ctx, endpoint, payload, contentTypeOrDefault(e.ContentType))
}

func contentTypeOrDefault(ct string) string {
	if ct != "" {
		return ct
	}
	return "application/octet-stream"
}
