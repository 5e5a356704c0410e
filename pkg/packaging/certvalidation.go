package packaging

import (
	"bytes"
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/crypto/ocsp"
)

// ErrCertificateRevoked is returned when the receiver's certificate has been
// revoked by its issuer.
var ErrCertificateRevoked = errors.New("certificate is revoked")

// ValidateReceiverCertificate checks that a certificate is currently valid
// and usable for key encipherment. Revocation checking is the caller's
// concern via [OCSPChecker]; this function covers the local checks only.
func ValidateReceiverCertificate(cert *x509.Certificate, at time.Time) error {
	if cert == nil {
		return fmt.Errorf("certificate is nil")
	}
	if at.Before(cert.NotBefore) {
		return fmt.Errorf("certificate not valid before %s", cert.NotBefore.Format(time.RFC3339))
	}
	if at.After(cert.NotAfter) {
		return fmt.Errorf("certificate expired %s", cert.NotAfter.Format(time.RFC3339))
	}
	if cert.KeyUsage != 0 && cert.KeyUsage&x509.KeyUsageKeyEncipherment == 0 {
		return fmt.Errorf("certificate not usable for key encipherment")
	}
	return nil
}

// OCSPChecker checks certificate revocation status against the issuer's
// OCSP responder, caching results per serial number.
type OCSPChecker struct {
	httpClient *http.Client

	mu      sync.RWMutex
	cache   map[string]ocspResult
	timeout time.Duration
}

type ocspResult struct {
	err       error
	checkedAt time.Time
}

// NewOCSPChecker creates a checker with the given cache lifetime.
func NewOCSPChecker(client *http.Client, cacheTimeout time.Duration) *OCSPChecker {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if cacheTimeout == 0 {
		cacheTimeout = time.Hour
	}
	return &OCSPChecker{
		httpClient: client,
		cache:      make(map[string]ocspResult),
		timeout:    cacheTimeout,
	}
}

// Check queries the certificate's OCSP responder. A nil return means the
// certificate is not revoked; [ErrCertificateRevoked] means it is. Other
// errors mean the status could not be determined.
func (c *OCSPChecker) Check(ctx context.Context, cert, issuer *x509.Certificate) error {
	if cert == nil || issuer == nil {
		return fmt.Errorf("certificate and issuer are required")
	}
	if len(cert.OCSPServer) == 0 {
		return fmt.Errorf("no OCSP server URL in certificate")
	}

	serial := cert.SerialNumber.String()
	c.mu.RLock()
	if cached, ok := c.cache[serial]; ok && time.Since(cached.checkedAt) < c.timeout {
		c.mu.RUnlock()
		return cached.err
	}
	c.mu.RUnlock()

	request, err := ocsp.CreateRequest(cert, issuer, &ocsp.RequestOptions{Hash: crypto.SHA256})
	if err != nil {
		return fmt.Errorf("creating OCSP request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, cert.OCSPServer[0], bytes.NewReader(request))
	if err != nil {
		return err
	}
	httpReq.Header.Set("Content-Type", "application/ocsp-request")
	httpReq.Header.Set("Accept", "application/ocsp-response")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("OCSP request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		return fmt.Errorf("OCSP responder returned status %d", httpResp.StatusCode)
	}
	body, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return fmt.Errorf("reading OCSP response: %w", err)
	}

	resp, err := ocsp.ParseResponse(body, issuer)
	if err != nil {
		return fmt.Errorf("parsing OCSP response: %w", err)
	}

	var result error
	switch resp.Status {
	case ocsp.Good:
		result = nil
	case ocsp.Revoked:
		result = ErrCertificateRevoked
	default:
		result = fmt.Errorf("OCSP status unknown")
	}

	c.mu.Lock()
	c.cache[serial] = ocspResult{err: result, checkedAt: time.Now()}
	c.mu.Unlock()

	return result
}
