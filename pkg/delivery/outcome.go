package delivery

import "fmt"

// OutcomeKind partitions delivery results into the three cases the retry
// queue distinguishes.
type OutcomeKind int

const (
	// KindSuccess means the transport accepted the package.
	KindSuccess OutcomeKind = iota
	// KindTransient means the attempt failed in a way worth retrying.
	KindTransient
	// KindPermanent means retrying cannot help.
	KindPermanent
)

// Outcome is the result of one delivery attempt.
type Outcome struct {
	Kind       OutcomeKind
	ExternalID string
	Reason     string
	Err        error
}

// Success records the external id the transport assigned.
func Success(externalID string) Outcome {
	return Outcome{Kind: KindSuccess, ExternalID: externalID}
}

// Transient marks an attempt as retryable.
func Transient(reason string, err error) Outcome {
	return Outcome{Kind: KindTransient, Reason: reason, Err: err}
}

// Permanent marks an attempt as failed for good.
func Permanent(reason string, err error) Outcome {
	return Outcome{Kind: KindPermanent, Reason: reason, Err: err}
}

func (o Outcome) String() string {
	switch o.Kind {
	case KindSuccess:
		return fmt.Sprintf("success (externalId=%s)", o.ExternalID)
	case KindTransient:
		return fmt.Sprintf("transient failure: %s", o.Reason)
	default:
		return fmt.Sprintf("permanent failure: %s", o.Reason)
	}
}

// PermanentError marks a transport error as non-retryable. Transport clients
// return it when the receiver rejected the payload or does not exist.
type PermanentError struct {
	Reason string
	Err    error
}

func (e *PermanentError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *PermanentError) Unwrap() error { return e.Err }
