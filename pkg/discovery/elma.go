package discovery

import (
	"context"
	"crypto/sha256"
	"encoding/base32"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/miekg/dns"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
)

// Common errors
var (
	// ErrNoRecordsFound is returned when the registry has no records for
	// the receiver.
	ErrNoRecordsFound = errors.New("no registry records found for receiver")
	// ErrServiceNotFound is returned when no record matches the metadata
	// service type.
	ErrServiceNotFound = errors.New("no matching service found in registry records")
	// ErrInvalidNAPTRRecord is returned when a NAPTR record has invalid format
	ErrInvalidNAPTRRecord = errors.New("invalid NAPTR record format")
)

// LookupError wraps a registry lookup failure with the receiver it was for.
type LookupError struct {
	OrgNumber string
	Err       error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("registry lookup for %s: %v", e.OrgNumber, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// metadataService is the U-NAPTR service tag of the registry's metadata
// publisher records.
const metadataService = "Meta:SMP"

// Config contains ELMA client configuration
type Config struct {
	// RegistryDomain is the base DNS domain of the registry.
	RegistryDomain string

	// DNSServer overrides the resolver, "ip:port". Empty uses the system
	// resolver from /etc/resolv.conf.
	DNSServer string
}

// Client resolves receiver endpoints through the ELMA registry DNS.
type Client struct {
	config    Config
	dnsClient *dns.Client
}

// NewClient creates a registry client for the given domain.
func NewClient(config Config) *Client {
	return &Client{config: config, dnsClient: new(dns.Client)}
}

// LookupEndpoint resolves the metadata URL for the receiver's organization
// number. All failures are wrapped in [LookupError].
func (c *Client) LookupEndpoint(ctx context.Context, orgnr string) (string, error) {
	normalized, err := envelope.NormalizeOrgNumber(orgnr)
	if err != nil {
		return "", &LookupError{OrgNumber: orgnr, Err: err}
	}

	queryDomain := c.queryDomain(participantID(normalized))
	endpoint, err := c.lookupNAPTR(ctx, queryDomain)
	if err != nil {
		return "", &LookupError{OrgNumber: normalized, Err: err}
	}
	return endpoint, nil
}

// participantID is the registry's participant identifier for a Norwegian
// organization number.
func participantID(orgnr string) string {
	return "iso6523-actorid-upis::" + envelope.ToISO6523(orgnr)
}

// queryDomain hashes the participant identifier into the registry DNS name:
// BASE32(SHA256(id)) with padding stripped, under the registry domain.
func (c *Client) queryDomain(id string) string {
	hash := sha256.Sum256([]byte(id))
	encoded := strings.TrimRight(base32.StdEncoding.EncodeToString(hash[:]), "=")
	return encoded + "." + c.config.RegistryDomain
}

func (c *Client) lookupNAPTR(ctx context.Context, queryDomain string) (string, error) {
	dnsServer := c.config.DNSServer
	if dnsServer == "" {
		config, err := dns.ClientConfigFromFile("/etc/resolv.conf")
		if err != nil {
			return "", fmt.Errorf("failed to read DNS config: %w", err)
		}
		if len(config.Servers) == 0 {
			return "", errors.New("no DNS servers configured")
		}
		dnsServer = config.Servers[0] + ":" + config.Port
	}

	msg := new(dns.Msg)
	msg.SetQuestion(dns.Fqdn(queryDomain), dns.TypeNAPTR)
	msg.RecursionDesired = true

	resp, _, err := c.dnsClient.ExchangeContext(ctx, msg, dnsServer)
	if err != nil {
		return "", fmt.Errorf("DNS lookup failed for %s: %w", queryDomain, err)
	}
	if resp.Rcode == dns.RcodeNameError {
		return "", fmt.Errorf("%w: %s", ErrNoRecordsFound, queryDomain)
	}
	if resp.Rcode != dns.RcodeSuccess {
		return "", fmt.Errorf("DNS lookup failed for %s: rcode=%d", queryDomain, resp.Rcode)
	}

	var records []*dns.NAPTR
	for _, rr := range resp.Answer {
		if naptr, ok := rr.(*dns.NAPTR); ok {
			records = append(records, naptr)
		}
	}
	if len(records) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoRecordsFound, queryDomain)
	}

	return selectBestRecord(records)
}

// selectBestRecord picks the matching U-NAPTR record with the lowest
// order/preference and extracts its URL.
func selectBestRecord(records []*dns.NAPTR) (string, error) {
	var best *dns.NAPTR
	bestPriority := int(^uint(0) >> 1)

	for _, record := range records {
		if strings.ToUpper(record.Flags) != "U" {
			continue
		}
		if !strings.EqualFold(record.Service, metadataService) {
			continue
		}
		priority := int(record.Order)*1000 + int(record.Preference)
		if best == nil || priority < bestPriority {
			best = record
			bestPriority = priority
		}
	}
	if best == nil {
		return "", ErrServiceNotFound
	}
	return extractURLFromRegexp(best.Regexp)
}

// extractURLFromRegexp extracts the URL from a NAPTR regexp field of the
// form "!<pattern>!<replacement>!".
func extractURLFromRegexp(regexpField string) (string, error) {
	if regexpField == "" {
		return "", ErrInvalidNAPTRRecord
	}
	parts := strings.Split(regexpField, "!")
	if len(parts) < 3 {
		return "", fmt.Errorf("%w: invalid regexp format: %s", ErrInvalidNAPTRRecord, regexpField)
	}
	replacement := parts[2]
	if replacement == "" {
		return "", fmt.Errorf("%w: empty URL in regexp: %s", ErrInvalidNAPTRRecord, regexpField)
	}

	parsedURL, err := url.Parse(replacement)
	if err != nil {
		return "", fmt.Errorf("invalid URL in NAPTR record: %w", err)
	}
	if parsedURL.Scheme != "https" && parsedURL.Scheme != "http" {
		return "", fmt.Errorf("invalid URL scheme in NAPTR record: %s", parsedURL.Scheme)
	}
	return replacement, nil
}
