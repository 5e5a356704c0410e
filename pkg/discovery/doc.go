// Package discovery resolves receiver transport endpoints from the ELMA
// service registry. The receiver's participant identifier is hashed into a
// DNS name under the registry domain and resolved through a U-NAPTR lookup
// to the service metadata URL that fronts the receiver's endpoint.
package discovery
