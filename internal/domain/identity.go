package domain

import (
	"fmt"
	"regexp"
)

var didPattern = regexp.MustCompile(`^did:nuwa:[a-zA-Z0-9_-]+$`)

// Identity is the self-asserted user identifier. It is not cryptographically verified.
type Identity struct {
	DID           string `json:"did"`
	Authenticated bool   `json:"isAuthenticated"`
}

// ValidateDID reports whether did matches the did:nuwa:name pattern.
func ValidateDID(did string) error {
	if !didPattern.MatchString(did) {
		return fmt.Errorf("%w: %q", ErrInvalidDID, did)
	}
	return nil
}
