package receipt

import (
	"context"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
)

// ResultStatus is the outcome an external channel reported for a delivery.
type ResultStatus string

const (
	StatusOK    ResultStatus = "OK"
	StatusError ResultStatus = "ERROR"
)

// Receipt is one external acknowledgment correlated back to a conversation.
type Receipt struct {
	ConversationID string
	ExternalID     string
	Status         ResultStatus
	RawPayload     []byte
}

// Source yields receipts from one channel's feed. Poll returns the currently
// available receipts without consuming them; a receipt keeps reappearing
// until Confirm is called for it. Confirm tells the channel the receipt has
// been consumed and may be garbage collected.
type Source interface {
	Channel() channel.Channel
	Poll(ctx context.Context) ([]Receipt, error)
	Confirm(ctx context.Context, externalID string) error
}
