// Package envelope constructs the routing envelope that wraps an outbound
// business document.
//
// An Envelope carries the conversation id, the normalized sender and
// receiver organization numbers, the business document type and a reference
// to the packaged payload. It is modelled on the Standard Business Document
// Header (SBDH): the envelope can be rendered as an SBD header for
// transports that require one.
//
// # Party Normalization
//
// Sender and receiver identifiers are Norwegian organization numbers. They
// may arrive in ISO 6523 form ("0192:991825827") or with the legacy ELMA
// prefix ("9908:991825827"); both are stripped to the canonical nine-digit
// form. The check digit is validated with the standard weighted mod-11
// scheme, and identifiers that do not normalize fail with
// [InvalidPartyError].
//
// # Conversation Identity
//
// Every envelope has a conversation id before it leaves the builder. When
// the caller does not supply one, a fresh UUID is generated. The id is
// immutable for the lifetime of the conversation and is the correlation key
// for queue entries and receipts.
package envelope
