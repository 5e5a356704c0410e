package queue

import (
	"fmt"
	"time"

	"github.com/janhelge/efm-integrasjonspunkt/pkg/channel"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/envelope"
	"github.com/janhelge/efm-integrasjonspunkt/pkg/packaging"
)

// Status is the delivery state of a queue entry.
type Status string

const (
	// StatusPending means the entry is waiting for its next attempt.
	StatusPending Status = "PENDING"
	// StatusInFlight means an attempt is running right now.
	StatusInFlight Status = "IN_FLIGHT"
	// StatusSent means the transport accepted the package. Terminal for the
	// queue; the receipt reconciler may still act on it.
	StatusSent Status = "SENT"
	// StatusFailed means the entry failed an integrity check and was never
	// transmitted. Terminal.
	StatusFailed Status = "FAILED"
	// StatusAbandoned means retries are exhausted or the failure was
	// permanent. Terminal.
	StatusAbandoned Status = "ABANDONED"
)

// Terminal reports whether no further attempts will be made.
func (s Status) Terminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusAbandoned
}

// EntryID derives the stable entry id for one conversation on one channel.
// Retries of the same logical delivery always map to the same id.
func EntryID(conversationID string, ch channel.Channel) string {
	return conversationID + ":" + ch.String()
}

// Entry is the unit of retryable delivery work.
type Entry struct {
	ID             string          `bson:"_id"`
	ConversationID string          `bson:"conversationId"`
	Channel        channel.Channel `bson:"channel"`

	Envelope envelope.Envelope          `bson:"envelope"`
	Package  *packaging.DocumentPackage `bson:"package"`

	// Checksum is recorded at enqueue time and must match the package on
	// every re-send. A mismatch fails the entry without transmitting.
	Checksum string `bson:"checksum"`

	Status        Status    `bson:"status"`
	AttemptCount  int       `bson:"attemptCount"`
	LastAttemptAt time.Time `bson:"lastAttemptAt,omitempty"`
	NextAttemptAt time.Time `bson:"nextAttemptAt"`
	CreatedAt     time.Time `bson:"createdAt"`
	ExternalID    string    `bson:"externalId,omitempty"`
	LastError     string    `bson:"lastError,omitempty"`

	// Backoff is the retry policy for this entry. Not persisted; entries
	// loaded from a durable store fall back to the scheduler's default rule.
	Backoff BackoffRule `bson:"-"`
}

// IntegrityError indicates that an entry's package no longer matches the
// checksum recorded at enqueue time.
type IntegrityError struct {
	ID       string
	Expected string
	Actual   string
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("entry %s: package checksum %s does not match recorded %s", e.ID, e.Actual, e.Expected)
}
