package envelope

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SBDH constants for the message exchange standard
const (
	NsSBDH        = "http://www.unece.org/cefact/namespaces/StandardBusinessDocumentHeader"
	Standard      = "urn:no:difi:meldingsutveksling:2.0"
	HeaderVersion = "1.0"
	TypeVersion   = "2.0"

	// ScopeConversationID is the business scope type carrying the
	// conversation id.
	ScopeConversationID = "ConversationId"
)

// StandardBusinessDocument is the SBDH wrapper rendered for transports that
// expect one. The payload itself travels as an encrypted container next to
// the header, referenced by href.
type StandardBusinessDocument struct {
	XMLName xml.Name                       `xml:"http://www.unece.org/cefact/namespaces/StandardBusinessDocumentHeader StandardBusinessDocument"`
	Header  StandardBusinessDocumentHeader `xml:"StandardBusinessDocumentHeader"`
	Payload *PayloadReference              `xml:"Payload,omitempty"`
}

// StandardBusinessDocumentHeader carries routing and document identification
type StandardBusinessDocumentHeader struct {
	HeaderVersion          string                 `xml:"HeaderVersion"`
	Sender                 Partner                `xml:"Sender"`
	Receiver               Partner                `xml:"Receiver"`
	DocumentIdentification DocumentIdentification `xml:"DocumentIdentification"`
	BusinessScope          BusinessScope          `xml:"BusinessScope"`
}

// Partner identifies one party of the exchange
type Partner struct {
	Identifier PartnerIdentification `xml:"Identifier"`
}

// PartnerIdentification is an organization number qualified by its
// registry authority
type PartnerIdentification struct {
	Authority string `xml:"Authority,attr"`
	Value     string `xml:",chardata"`
}

// DocumentIdentification identifies the document instance and type
type DocumentIdentification struct {
	Standard           string    `xml:"Standard"`
	TypeVersion        string    `xml:"TypeVersion"`
	InstanceIdentifier string    `xml:"InstanceIdentifier"`
	Type               string    `xml:"Type"`
	CreationDateTime   time.Time `xml:"CreationDateAndTime"`
}

// BusinessScope holds scopes; exactly one carries the conversation id
type BusinessScope struct {
	Scope []Scope `xml:"Scope"`
}

// Scope is a single business scope entry
type Scope struct {
	Type               string `xml:"Type"`
	Identifier         string `xml:"Identifier"`
	InstanceIdentifier string `xml:"InstanceIdentifier"`
}

// PayloadReference points at the packaged container
type PayloadReference struct {
	Href string `xml:"href,attr"`
}

// ToSBD renders the envelope as a standard business document header.
// Each call assigns a fresh instance identifier; the conversation id is
// carried in the business scope and stays stable across renders.
func (e *Envelope) ToSBD() *StandardBusinessDocument {
	return &StandardBusinessDocument{
		Header: StandardBusinessDocumentHeader{
			HeaderVersion: HeaderVersion,
			Sender: Partner{Identifier: PartnerIdentification{
				Authority: ISO6523Authority,
				Value:     ToISO6523(e.SenderID),
			}},
			Receiver: Partner{Identifier: PartnerIdentification{
				Authority: ISO6523Authority,
				Value:     ToISO6523(e.ReceiverID),
			}},
			DocumentIdentification: DocumentIdentification{
				Standard:           Standard,
				TypeVersion:        TypeVersion,
				InstanceIdentifier: uuid.NewString(),
				Type:               string(e.DocumentType),
				CreationDateTime:   e.CreatedAt,
			},
			BusinessScope: BusinessScope{Scope: []Scope{{
				Type:               ScopeConversationID,
				Identifier:         Standard,
				InstanceIdentifier: e.ConversationID,
			}}},
		},
		Payload: &PayloadReference{Href: e.PayloadRef},
	}
}

// FromSBD reconstructs an envelope from a parsed standard business document.
// Party identifiers are re-normalized so a header produced by a foreign
// system still yields canonical organization numbers.
func FromSBD(doc *StandardBusinessDocument) (*Envelope, error) {
	docType, ok := ParseDocumentType(doc.Header.DocumentIdentification.Type)
	if !ok {
		return nil, fmt.Errorf("unknown document type %q", doc.Header.DocumentIdentification.Type)
	}

	var conversationID string
	for _, s := range doc.Header.BusinessScope.Scope {
		if s.Type == ScopeConversationID {
			conversationID = s.InstanceIdentifier
			break
		}
	}
	if conversationID == "" {
		return nil, fmt.Errorf("document header carries no conversation id scope")
	}

	var payloadRef string
	if doc.Payload != nil {
		payloadRef = doc.Payload.Href
	}

	return New(
		doc.Header.Sender.Identifier.Value,
		doc.Header.Receiver.Identifier.Value,
		docType,
		payloadRef,
		WithConversationID(conversationID),
		WithCreatedAt(doc.Header.DocumentIdentification.CreationDateTime),
	)
}
