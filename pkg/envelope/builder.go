package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Option configures envelope construction
type Option func(*Envelope)

// WithConversationID sets a caller-supplied conversation id instead of
// generating a fresh one.
func WithConversationID(id string) Option {
	return func(e *Envelope) {
		if id != "" {
			e.ConversationID = id
		}
	}
}

// WithCreatedAt overrides the creation timestamp. Intended for tests and for
// re-building an envelope from persisted state.
func WithCreatedAt(t time.Time) Option {
	return func(e *Envelope) {
		e.CreatedAt = t
	}
}

// New builds a fully populated envelope.
//
// Sender and receiver identifiers are normalized to the canonical nine-digit
// organization number; a [*InvalidPartyError] is returned when either cannot
// be normalized. When no conversation id is supplied via
// [WithConversationID], a fresh UUID is generated, so the envelope never
// leaves the builder without one.
func New(senderID, receiverID string, docType DocumentType, payloadRef string, opts ...Option) (*Envelope, error) {
	sender, err := NormalizeOrgNumber(senderID)
	if err != nil {
		return nil, &InvalidPartyError{Party: "sender", Value: senderID, Reason: err.Error()}
	}
	receiver, err := NormalizeOrgNumber(receiverID)
	if err != nil {
		return nil, &InvalidPartyError{Party: "receiver", Value: receiverID, Reason: err.Error()}
	}

	env := &Envelope{
		ConversationID: "",
		SenderID:       sender,
		ReceiverID:     receiver,
		DocumentType:   docType,
		CreatedAt:      time.Now().UTC(),
		PayloadRef:     payloadRef,
	}
	for _, opt := range opts {
		opt(env)
	}
	if env.ConversationID == "" {
		env.ConversationID = uuid.NewString()
	}
	return env, nil
}
