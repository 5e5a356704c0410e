package channel

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
)

// ErrNoViableChannel signals that no channel can reach the receiver. This is
// terminal for the conversation; retrying will not help until the receiver's
// registration or the local toggles change.
var ErrNoViableChannel = errors.New("no viable delivery channel")

// NoViableChannelError carries the receiver the selection failed for.
type NoViableChannelError struct {
	ReceiverID string
}

func (e *NoViableChannelError) Error() string {
	return fmt.Sprintf("no viable delivery channel for receiver %s", e.ReceiverID)
}

func (e *NoViableChannelError) Unwrap() error { return ErrNoViableChannel }

// LookupError wraps a capability registry failure.
type LookupError struct {
	ReceiverID string
	Err        error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("capability lookup for %s: %v", e.ReceiverID, e.Err)
}

func (e *LookupError) Unwrap() error { return e.Err }

// Capabilities describes how a receiver is registered in the service
// registry.
type Capabilities struct {
	Channels          []Channel
	Certificate       *x509.Certificate
	TransportEndpoint string
}

// Supports reports whether the receiver is registered for the channel.
func (c *Capabilities) Supports(ch Channel) bool {
	for _, s := range c.Channels {
		if s == ch {
			return true
		}
	}
	return false
}

// CapabilityLookup resolves a receiver's registered capabilities.
// Implementations query the external service registry.
type CapabilityLookup interface {
	Lookup(ctx context.Context, receiverID string) (*Capabilities, error)
}

// Toggles holds the locally enabled channels. A channel disabled here is
// never selected regardless of the receiver's registration.
type Toggles struct {
	DPO        bool
	DPF        bool
	DPV        bool
	DPIDigital bool
	DPIPrint   bool
}

// Enabled reports whether the channel is switched on locally.
func (t Toggles) Enabled(c Channel) bool {
	switch c {
	case DPO:
		return t.DPO
	case DPF:
		return t.DPF
	case DPV:
		return t.DPV
	case DPIDigital:
		return t.DPIDigital
	case DPIPrint:
		return t.DPIPrint
	}
	return false
}

// eligible returns the channels a document type may travel on, in preference
// order. Types without a specific restriction may use any digital channel.
func eligible(docType envelope.DocumentType) []Channel {
	switch docType {
	case envelope.TypeArkivmelding, envelope.TypeAvtalt,
		envelope.TypeInnsynskrav, envelope.TypePublisering,
		envelope.TypeArkivmeldingKvittering, envelope.TypeEInnsynKvittering,
		envelope.TypeStatus, envelope.TypeFeil:
		return []Channel{DPO, DPF}
	case envelope.TypeDigital:
		return []Channel{DPIDigital, DPV}
	case envelope.TypeDigitalDPV:
		return []Channel{DPV}
	case envelope.TypePrint:
		return nil // print only, handled by the last-resort rule
	default:
		return preferenceOrder
	}
}

// Selector decides the candidate channels for a receiver.
type Selector struct {
	lookup  CapabilityLookup
	toggles Toggles
	logger  *slog.Logger
}

// NewSelector creates a selector over the given capability registry.
func NewSelector(lookup CapabilityLookup, toggles Toggles, logger *slog.Logger) *Selector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Selector{lookup: lookup, toggles: toggles, logger: logger}
}

// Select returns the channels to attempt for the receiver, highest
// preference first. DPIPrint appears only when no digital channel is viable
// and print is enabled; an empty result is reported as
// [NoViableChannelError].
func (s *Selector) Select(ctx context.Context, receiverID string, docType envelope.DocumentType) ([]Channel, error) {
	caps, err := s.lookup.Lookup(ctx, receiverID)
	if err != nil {
		return nil, &LookupError{ReceiverID: receiverID, Err: err}
	}

	var candidates []Channel
	for _, ch := range eligible(docType) {
		if ch == DPIPrint {
			continue
		}
		if caps.Supports(ch) && s.toggles.Enabled(ch) {
			candidates = append(candidates, ch)
		}
	}

	if len(candidates) == 0 && s.toggles.Enabled(DPIPrint) {
		s.logger.Info("no digital channel viable, falling back to print",
			"receiver", receiverID, "documentType", string(docType))
		candidates = []Channel{DPIPrint}
	}
	if len(candidates) == 0 {
		return nil, &NoViableChannelError{ReceiverID: receiverID}
	}
	return candidates, nil
}

// CanReceive reports whether any channel could deliver to the receiver.
// Person numbers are rejected outright; registry failures count as cannot
// receive rather than an error, so callers can answer the pre-check cheaply.
func (s *Selector) CanReceive(ctx context.Context, receiverID string, docType envelope.DocumentType) bool {
	if envelope.IsPersonNumber(receiverID) {
		return false
	}
	normalized, err := envelope.NormalizeOrgNumber(receiverID)
	if err != nil {
		return false
	}
	if _, err := s.Select(ctx, normalized, docType); err != nil {
		s.logger.Debug("receiver cannot receive", "receiver", normalized, "error", err)
		return false
	}
	return true
}
