package fleet

// UnknownVersion is what a device reports before any install has succeeded.
const UnknownVersion = "unknown"

// Device authentication headers sent on every device call.
const (
	// HeaderClientID carries the device id.
	HeaderClientID = "X-Client-Id"
	// HeaderClientToken carries the device's plaintext token.
	HeaderClientToken = "X-Client-Token"
)

// StateRequest is the payload a device sends on every poll: what it runs now
// and, optionally, what it wants to run and how it is doing.
type StateRequest struct {
	// CurrentVersion is the locally installed version, or "unknown".
	CurrentVersion string `json:"currentVersion,omitempty"`
	// DesiredVersion optionally pins an explicit target; when it resolves to
	// a published version it overrides the latest pointer.
	DesiredVersion string `json:"desiredVersion,omitempty"`
	// Metrics is an opaque bag recorded on the client record when supplied.
	Metrics map[string]any `json:"metrics,omitempty"`
}

// UpsertClientRequest is the admin payload for creating or updating a
// client. Pointer fields distinguish omitted from empty so a partial
// update preserves the rest of the record.
type UpsertClientRequest struct {
	// Token is the device's plaintext secret, required on every upsert.
	Token string `json:"token"`
	// DisplayName optionally replaces the stored display name.
	DisplayName *string `json:"displayName,omitempty"`
	// Notes optionally replaces the stored notes.
	Notes *string `json:"notes,omitempty"`
	// Status optionally replaces the stored status.
	Status *string `json:"status,omitempty"`
}

// StateResponse is the coordinator's answer to a poll.
type StateResponse struct {
	// ClientID echoes the authenticated device id.
	ClientID string `json:"clientId"`
	// UpdateAvailable is true when a target exists and differs from the
	// reported current version.
	UpdateAvailable bool `json:"updateAvailable"`
	// Latest is the artifact the device should converge to: the published
	// latest, or the pinned desired version when that resolves.
	Latest *Artifact `json:"latest,omitempty"`
	// DownloadPath is the coordinator-relative locator for the payload.
	// Devices never receive a direct store URL.
	DownloadPath string `json:"downloadPath,omitempty"`
	// PollIntervalSeconds tells the external scheduler how often to poll.
	PollIntervalSeconds int `json:"pollIntervalSeconds"`
	// DocumentationURL points operators at the fleet runbook.
	DocumentationURL string `json:"documentationUrl,omitempty"`
	// DesiredVersionMissing is set when the request pinned a version that
	// has no published metadata and the offer fell back to latest.
	DesiredVersionMissing bool `json:"desiredVersionMissing,omitempty"`
}
