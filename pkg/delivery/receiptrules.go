package delivery

import (
	"log/slog"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
)

// noark system types that acknowledge archive messages locally, so an
// application receipt must be turned around to the original sender's own
// system.
const (
	NoarkP360    = "p360"
	NoarkEphorte = "ephorte"
	NoarkWebsak  = "websak"
)

// ReceiptRules decides what happens to an outbound application receipt
// before a delivery attempt is made. Three rules apply, in order:
//
//  1. A receipt addressed to the configured fallback sender organization is
//     discarded. Delivering it would acknowledge our own fallback identity
//     and loop forever. The discard is checked before the role swap so a
//     receipt matching both rules never leaves the system.
//  2. A receipt travelling on a channel other than DPO is discarded; only
//     case-management-integrated receivers consume application receipts.
//  3. When the local case-management system type acknowledges locally,
//     sender and receiver are swapped so the receipt reaches the original
//     sender's system.
type ReceiptRules struct {
	// FallbackSenderID is the normalized org number used as sender when the
	// original sender had no registration of its own. Empty disables rule 1.
	FallbackSenderID string
	// NoarkType is the locally configured case-management system type.
	NoarkType string

	Logger *slog.Logger
}

// Apply returns the envelope to deliver and whether delivery should proceed.
// A discarded receipt returns deliver=false with no error; discards are
// logged, not failures. Non-receipt envelopes pass through untouched.
func (r ReceiptRules) Apply(env envelope.Envelope, ch channel.Channel) (envelope.Envelope, bool) {
	if !env.DocumentType.IsReceipt() {
		return env, true
	}
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("conversationId", env.ConversationID, "documentType", string(env.DocumentType))

	if r.IsFallbackReceipt(env) {
		logger.Info("discarding receipt addressed to fallback sender", "receiver", env.ReceiverID)
		return env, false
	}
	if ch != channel.DPO {
		logger.Info("discarding receipt for non-integrated channel", "channel", ch.String())
		return env, false
	}
	if r.requiresLocalReceipt() {
		logger.Debug("swapping parties for local acknowledgment", "noarkType", r.NoarkType)
		return env.Swapped(), true
	}
	return env, true
}

// IsFallbackReceipt reports whether the envelope is an application receipt
// addressed to the configured fallback sender. Such receipts are dropped
// before any registry lookup is made for the receiver; the fallback identity
// has no registration of its own and resolving it would fail or loop.
func (r ReceiptRules) IsFallbackReceipt(env envelope.Envelope) bool {
	if !env.DocumentType.IsReceipt() {
		return false
	}
	return r.FallbackSenderID != "" && env.ReceiverID == r.FallbackSenderID
}

func (r ReceiptRules) requiresLocalReceipt() bool {
	return r.NoarkType == NoarkP360
}
