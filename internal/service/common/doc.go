// Package common holds helpers shared by several services.
//
// It provides a lightweight HTTP client wrapper for the coordinator API
// with timeouts, credential handling for both the admin and the device
// surface, and translation of API error responses back into domain errors.
//
//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common
