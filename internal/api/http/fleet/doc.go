// Package fleet implements the coordinator's HTTP API.
//
// Two trust domains share one router: operator endpoints under /admin
// guarded by a bearer secret, and device endpoints (/client/state and
// /artifact) guarded by per-device id + token headers. Domain errors map
// onto HTTP statuses with a machine-readable JSON body; every credential
// failure collapses into the same 401 regardless of cause.
package fleet
