package envelope

import (
	"fmt"
	"strings"
)

// ISO 6523 ICD prefixes accepted for Norwegian organization numbers
const (
	ISO6523Authority = "iso6523-actorid-upis"
	PrefixISO6523    = "0192:"
	PrefixELMA       = "9908:" // legacy ELMA/PEPPOL prefix
)

// mod-11 weights for the organization number check digit
var orgnumWeights = [8]int{3, 2, 7, 6, 5, 4, 3, 2}

// NormalizeOrgNumber strips any registry-authority prefix from an
// organization identifier and validates the resulting nine-digit number,
// including its mod-11 check digit.
func NormalizeOrgNumber(value string) (string, error) {
	v := strings.TrimSpace(value)
	if v == "" {
		return "", fmt.Errorf("empty identifier")
	}

	// Accept "iso6523-actorid-upis::0192:xxx" and plain "0192:xxx"/"9908:xxx"
	if idx := strings.LastIndex(v, "::"); idx >= 0 {
		v = v[idx+2:]
	}
	v = strings.TrimPrefix(v, PrefixISO6523)
	v = strings.TrimPrefix(v, PrefixELMA)

	if len(v) != 9 {
		return "", fmt.Errorf("expected 9 digits, got %d", len(v))
	}
	for _, r := range v {
		if r < '0' || r > '9' {
			return "", fmt.Errorf("non-digit character %q", r)
		}
	}
	if !validCheckDigit(v) {
		return "", fmt.Errorf("check digit mismatch")
	}
	return v, nil
}

// IsPersonNumber reports whether the identifier looks like an eleven-digit
// Norwegian national identity number rather than an organization number.
// Messages addressed to persons are never routed through the organization
// channels.
func IsPersonNumber(value string) bool {
	if len(value) != 11 {
		return false
	}
	for _, r := range value {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// ToISO6523 renders a normalized organization number in ISO 6523 form.
func ToISO6523(orgnr string) string {
	return PrefixISO6523 + orgnr
}

func validCheckDigit(v string) bool {
	sum := 0
	for i, w := range orgnumWeights {
		sum += int(v[i]-'0') * w
	}
	rest := sum % 11
	var check int
	switch rest {
	case 0:
		check = 0
	case 1:
		return false // no valid check digit exists
	default:
		check = 11 - rest
	}
	return int(v[8]-'0') == check
}
