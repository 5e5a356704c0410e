package envelope

import (
	"strings"
	"time"
)

// DocumentType identifies the kind of business document being exchanged
type DocumentType string

const (
	TypeStatus                 DocumentType = "status"
	TypeFeil                   DocumentType = "feil"
	TypeArkivmelding           DocumentType = "arkivmelding"
	TypeArkivmeldingKvittering DocumentType = "arkivmelding_kvittering"
	TypeAvtalt                 DocumentType = "avtalt"
	TypeFiksIO                 DocumentType = "fiksio"
	TypeDigital                DocumentType = "digital"
	TypeDigitalDPV             DocumentType = "digital_dpv"
	TypePrint                  DocumentType = "print"
	TypeInnsynskrav            DocumentType = "innsynskrav"
	TypePublisering            DocumentType = "publisering"
	TypeEInnsynKvittering      DocumentType = "einnsyn_kvittering"
)

// IsReceipt reports whether this document type is an application receipt
// acknowledging receipt of an earlier message.
func (d DocumentType) IsReceipt() bool {
	return d == TypeArkivmeldingKvittering || d == TypeEInnsynKvittering
}

// ParseDocumentType resolves a document type from its string form.
// The full standard form "urn:...::arkivmelding" is accepted as well as the
// bare type name.
func ParseDocumentType(s string) (DocumentType, bool) {
	if s == "" {
		return "", false
	}
	if idx := strings.LastIndex(s, "::"); idx >= 0 {
		s = s[idx+2:]
	}
	for _, d := range []DocumentType{
		TypeStatus, TypeFeil, TypeArkivmelding, TypeArkivmeldingKvittering,
		TypeAvtalt, TypeFiksIO, TypeDigital, TypeDigitalDPV, TypePrint,
		TypeInnsynskrav, TypePublisering, TypeEInnsynKvittering,
	} {
		if strings.EqualFold(string(d), s) {
			return d, true
		}
	}
	return "", false
}

// Envelope is the routing header for one outbound message
type Envelope struct {
	ConversationID string
	SenderID       string
	ReceiverID     string
	DocumentType   DocumentType
	CreatedAt      time.Time

	// PayloadRef is an opaque reference to the packaged container,
	// assigned by the caller's payload store.
	PayloadRef string
}

// Swapped returns a copy of the envelope with sender and receiver exchanged.
// Used when forwarding application receipts back to the original sender's
// local system. The original envelope is not modified.
func (e Envelope) Swapped() Envelope {
	e.SenderID, e.ReceiverID = e.ReceiverID, e.SenderID
	return e
}

// InvalidPartyError indicates that a sender or receiver identifier could not
// be normalized to a valid organization number.
type InvalidPartyError struct {
	Party  string // "sender" or "receiver"
	Value  string
	Reason string
}

func (e *InvalidPartyError) Error() string {
	return "invalid " + e.Party + " identifier " + e.Value + ": " + e.Reason
}
