package fleet

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var (
	// versionPattern keeps versions usable as store keys and path segments.
	versionPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)
	// sha256Pattern matches a lowercase hex SHA-256 digest.
	sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)
)

// Artifact is one immutable published build.
type Artifact struct {
	// Version uniquely identifies the build among all publishes.
	Version string `json:"version"`
	// ObjectKey locates the payload bytes inside the blob store.
	ObjectKey string `json:"objectKey"`
	// SHA256 is the lowercase hex digest of the payload.
	SHA256 string `json:"sha256"`
	// Size is the payload length in bytes, always positive.
	Size int64 `json:"size"`
	// Notes carries optional operator remarks about the build.
	Notes string `json:"notes,omitempty"`
	// UploadedAt is assigned by the coordinator at registration time.
	UploadedAt time.Time `json:"uploadedAt"`
}

// Normalize canonicalizes fields that tolerate sloppy input: the digest is
// lowered and surrounding whitespace is dropped.
func (a *Artifact) Normalize() {
	a.Version = strings.TrimSpace(a.Version)
	a.ObjectKey = strings.TrimSpace(a.ObjectKey)
	a.SHA256 = strings.ToLower(strings.TrimSpace(a.SHA256))
	a.Notes = strings.TrimSpace(a.Notes)
}

// ValidateVersion checks that a version string can name a published build.
// The charset keeps versions usable as store keys and path segments.
func ValidateVersion(version string) error {
	if !versionPattern.MatchString(version) {
		return fmt.Errorf("version must be 1-128 characters of [A-Za-z0-9._-]: %w", ErrBadRequest)
	}

	return nil
}

// Validate checks the registration contract. It expects Normalize to have run.
func (a *Artifact) Validate() error {
	if err := ValidateVersion(a.Version); err != nil {
		return err
	}

	if a.ObjectKey == "" {
		return fmt.Errorf("object key must be provided: %w", ErrBadRequest)
	}

	if !sha256Pattern.MatchString(a.SHA256) {
		return fmt.Errorf("sha256 must be 64 hex characters: %w", ErrBadRequest)
	}

	if a.Size <= 0 {
		return fmt.Errorf("size must be positive: %w", ErrBadRequest)
	}

	return nil
}

// SameContent reports whether two artifacts describe identical payload bytes.
func (a *Artifact) SameContent(other *Artifact) bool {
	return other != nil && a.SHA256 == other.SHA256 && a.Size == other.Size
}

// Clone returns a copy of the artifact.
func (a *Artifact) Clone() *Artifact {
	if a == nil {
		return nil
	}

	cloned := *a

	return &cloned
}
