package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/logger"
	"github.com/fleetbay/drydock/internal/repository/kv"
)

const (
	// clientKeyPrefix namespaces one record per client id.
	clientKeyPrefix = "clients/"
	// clientIndexKey holds the JSON list of all known client ids.
	clientIndexKey = "client-index"
)

// ClientRegistry persists client records and the listing index. It keeps no
// state between calls; concurrent writes to the same record are
// last-write-wins at the store.
type ClientRegistry struct {
	// store is the metadata backend records and the index live in.
	store kv.Store
}

// UpsertParams carries the operator-supplied fields of an upsert. Token is
// required on every call. The pointer fields distinguish "not supplied,
// preserve the stored value" (nil) from "set to this value".
type UpsertParams struct {
	// Token is the device's plaintext secret, hashed before storage.
	Token string
	// DisplayName optionally replaces the record's display name.
	DisplayName *string
	// Notes optionally replaces the record's free-form notes.
	Notes *string
	// Status optionally replaces the record's status.
	Status *string
}

// NewClientRegistry creates a registry over the provided store.
func NewClientRegistry(store kv.Store) *ClientRegistry {
	return &ClientRegistry{store: store}
}

// Get loads one client record by id.
func (r *ClientRegistry) Get(ctx context.Context, id string) (*fleet.Client, error) {
	raw, found, err := r.store.Get(ctx, clientKeyPrefix+id)
	if err != nil {
		return nil, fmt.Errorf("load client %q: %w", id, err)
	}

	if !found {
		return nil, fmt.Errorf("%w: client %q", fleet.ErrNotFound, id)
	}

	var client fleet.Client
	if err = json.Unmarshal(raw, &client); err != nil {
		return nil, fmt.Errorf("decode client %q: %w", id, err)
	}

	return &client, nil
}

// List resolves the index and fetches every record it names. An index entry
// whose record is gone is skipped, not reported, since the gap is an accepted
// consequence of non-transactional index maintenance.
func (r *ClientRegistry) List(ctx context.Context) ([]*fleet.Client, error) {
	ids, err := r.readIndex(ctx)
	if err != nil {
		return nil, err
	}

	clients := make([]*fleet.Client, 0, len(ids))

	for _, id := range ids {
		client, err := r.Get(ctx, id)
		if err != nil {
			if errors.Is(err, fleet.ErrNotFound) {
				logger.WarnKV(ctx, "skipping dangling client index entry", "clientId", id)

				continue
			}

			return nil, err
		}

		clients = append(clients, client)
	}

	return clients, nil
}

// Upsert creates or updates the record under id. An unknown id creates a
// fresh record; a known id keeps createdAt, lastSeen, lastIp, currentVersion
// and metrics, and replaces only the supplied fields. The token is always
// required and stored as a hash.
func (r *ClientRegistry) Upsert(ctx context.Context, id string, params UpsertParams) (*fleet.Client, error) {
	if err := fleet.ValidateClientID(id); err != nil {
		return nil, err
	}

	if strings.TrimSpace(params.Token) == "" {
		return nil, fmt.Errorf("%w: token is required", fleet.ErrBadRequest)
	}

	now := time.Now().UTC()

	client, err := r.Get(ctx, id)
	if err != nil {
		if !errors.Is(err, fleet.ErrNotFound) {
			return nil, err
		}

		client = &fleet.Client{
			ID:        id,
			Status:    fleet.StatusActive,
			CreatedAt: now,
		}
	}

	client.TokenHash = fleet.HashToken(params.Token)
	client.UpdatedAt = now

	if params.DisplayName != nil {
		client.DisplayName = *params.DisplayName
	}

	if params.Notes != nil {
		client.Notes = *params.Notes
	}

	if params.Status != nil {
		client.Status = *params.Status
	}

	if err = r.put(ctx, client); err != nil {
		return nil, err
	}

	// The index write is intentionally separate from the record write; a
	// crash in between leaves the record unlisted until the next upsert.
	if err = r.addToIndex(ctx, id); err != nil {
		return nil, err
	}

	return client, nil
}

// Delete removes the record and its index entry. Deleting an unknown id
// succeeds quietly.
func (r *ClientRegistry) Delete(ctx context.Context, id string) error {
	if err := fleet.ValidateClientID(id); err != nil {
		return err
	}

	if err := r.store.Delete(ctx, clientKeyPrefix+id); err != nil {
		return fmt.Errorf("delete client %q: %w", id, err)
	}

	return r.removeFromIndex(ctx, id)
}

// Authenticate resolves the record for id and checks the plaintext token
// against the stored hash. Every failure reason collapses into the same
// ErrUnauthorized so callers cannot probe which ids exist.
func (r *ClientRegistry) Authenticate(ctx context.Context, id, token string) (*fleet.Client, error) {
	if id == "" || token == "" {
		return nil, fleet.ErrUnauthorized
	}

	if err := fleet.ValidateClientID(id); err != nil {
		return nil, fleet.ErrUnauthorized
	}

	client, err := r.Get(ctx, id)
	if err != nil {
		if errors.Is(err, fleet.ErrNotFound) {
			return nil, fleet.ErrUnauthorized
		}

		return nil, err
	}

	if !fleet.TokenMatches(client.TokenHash, token) {
		return nil, fleet.ErrUnauthorized
	}

	return client, nil
}

// UpdateState records what a device reported during a state exchange:
// current version, observation time, caller address and, when supplied, the
// metrics bag. Other fields stay untouched.
func (r *ClientRegistry) UpdateState(ctx context.Context, client *fleet.Client, currentVersion, ip string, metrics map[string]any) error {
	now := time.Now().UTC()

	client.CurrentVersion = currentVersion
	client.LastSeen = now
	client.UpdatedAt = now

	if ip != "" {
		client.LastIP = ip
	}

	if metrics != nil {
		client.Metrics = metrics
	}

	return r.put(ctx, client)
}

// put serializes and stores one record.
func (r *ClientRegistry) put(ctx context.Context, client *fleet.Client) error {
	raw, err := json.Marshal(client)
	if err != nil {
		return fmt.Errorf("encode client %q: %w", client.ID, err)
	}

	if err = r.store.Put(ctx, clientKeyPrefix+client.ID, raw); err != nil {
		return fmt.Errorf("store client %q: %w", client.ID, err)
	}

	return nil
}

// readIndex loads the id list, treating an absent index as empty.
func (r *ClientRegistry) readIndex(ctx context.Context) ([]string, error) {
	raw, found, err := r.store.Get(ctx, clientIndexKey)
	if err != nil {
		return nil, fmt.Errorf("load client index: %w", err)
	}

	if !found {
		return nil, nil
	}

	var ids []string
	if err = json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode client index: %w", err)
	}

	return ids, nil
}

// writeIndex stores the id list sorted, keeping listings deterministic.
func (r *ClientRegistry) writeIndex(ctx context.Context, ids []string) error {
	slices.Sort(ids)

	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode client index: %w", err)
	}

	if err = r.store.Put(ctx, clientIndexKey, raw); err != nil {
		return fmt.Errorf("store client index: %w", err)
	}

	return nil
}

// addToIndex appends id to the index if it is not already listed.
func (r *ClientRegistry) addToIndex(ctx context.Context, id string) error {
	ids, err := r.readIndex(ctx)
	if err != nil {
		return err
	}

	if slices.Contains(ids, id) {
		return nil
	}

	return r.writeIndex(ctx, append(ids, id))
}

// removeFromIndex drops id from the index if present.
func (r *ClientRegistry) removeFromIndex(ctx context.Context, id string) error {
	ids, err := r.readIndex(ctx)
	if err != nil {
		return err
	}

	remaining := slices.DeleteFunc(ids, func(existing string) bool {
		return existing == id
	})

	if len(remaining) == len(ids) {
		return nil
	}

	return r.writeIndex(ctx, remaining)
}
