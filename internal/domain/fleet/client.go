package fleet

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"maps"
	"regexp"
	"time"
)

// StatusActive is the status assigned to newly registered clients.
// The field is free-form operator bookkeeping; revocation is deletion.
const StatusActive = "active"

// clientIDPattern restricts ids to lowercase slugs of 3 to 64 characters
// with no leading or trailing hyphen. Ids end up in store keys and URLs,
// so the charset is deliberately narrow.
var clientIDPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{1,62}[a-z0-9]$`)

// Client is one registered appliance in the fleet.
type Client struct {
	// ID is the immutable slug identifying the device.
	ID string `json:"id"`
	// DisplayName is a human-friendly label shown to operators.
	DisplayName string `json:"displayName,omitempty"`
	// TokenHash is the hex SHA-256 of the device token.
	// The raw secret is never stored; Sanitized strips the hash from responses.
	TokenHash string `json:"tokenHash,omitempty"`
	// Status is free-form operator bookkeeping, defaulted to "active".
	Status string `json:"status"`
	// Notes carries arbitrary operator remarks.
	Notes string `json:"notes,omitempty"`
	// CurrentVersion is the version the device last reported running.
	CurrentVersion string `json:"currentVersion,omitempty"`
	// LastIP is the peer address observed on the last state exchange.
	LastIP string `json:"lastIp,omitempty"`
	// Metrics is the opaque bag the device last reported.
	Metrics map[string]any `json:"metrics,omitempty"`
	// CreatedAt is set once when the record is first created.
	CreatedAt time.Time `json:"createdAt"`
	// UpdatedAt advances on every write to the record.
	UpdatedAt time.Time `json:"updatedAt"`
	// LastSeen is the time of the last authenticated state exchange.
	LastSeen time.Time `json:"lastSeen,omitzero"`
}

// ValidateClientID checks the slug contract for device ids.
func ValidateClientID(id string) error {
	if !clientIDPattern.MatchString(id) {
		return fmt.Errorf("client id must be 3-64 lowercase letters, digits or interior hyphens: %w", ErrBadRequest)
	}

	return nil
}

// HashToken derives the stored representation of a device token.
// The hash is deterministic so re-upserting an unchanged token keeps the
// stored value stable.
func HashToken(token string) string {
	sum := sha256.Sum256([]byte(token))

	return hex.EncodeToString(sum[:])
}

// TokenMatches reports whether the presented token hashes to the stored
// value, using a constant-time comparison.
func TokenMatches(tokenHash, token string) bool {
	if tokenHash == "" {
		return false
	}

	presented := HashToken(token)

	return subtle.ConstantTimeCompare([]byte(tokenHash), []byte(presented)) == 1
}

// Clone returns a deep copy of the client to avoid leaking internal references.
func (c *Client) Clone() *Client {
	if c == nil {
		return nil
	}

	cloned := *c
	if c.Metrics != nil {
		cloned.Metrics = maps.Clone(c.Metrics)
	}

	return &cloned
}

// Sanitized returns a copy safe for API responses: identical except the
// token hash is removed.
func (c *Client) Sanitized() *Client {
	cloned := c.Clone()
	if cloned != nil {
		cloned.TokenHash = ""
	}

	return cloned
}
