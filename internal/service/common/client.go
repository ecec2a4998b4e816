//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/fleetbay/drydock/internal/config"
	"github.com/fleetbay/drydock/internal/domain/fleet"
	"github.com/fleetbay/drydock/internal/version"
)

// Client wraps the coordinator HTTP API with convenience helpers.
type Client struct {
	// baseURL is the coordinator root every request path is resolved against.
	baseURL *url.URL
	// httpClient performs the actual requests.
	httpClient *http.Client

	// adminToken authorizes the admin surface when set.
	adminToken string
	// clientID identifies the device on the device surface when set.
	clientID string
	// clientToken authenticates the device on the device surface when set.
	clientToken string

	// callTimeout is the default timeout for individual API calls.
	callTimeout time.Duration
	// userAgent identifies the calling binary and build in coordinator logs.
	userAgent string
}

// Option configures client behaviour.
type Option func(*Client)

// WithCallTimeout sets a default timeout for service calls.
func WithCallTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.callTimeout = timeout
		}
	}
}

// WithAdminToken sets the bearer secret for admin operations.
func WithAdminToken(token string) Option {
	return func(c *Client) {
		c.adminToken = token
	}
}

// WithDeviceCredentials sets the id and token for device operations.
func WithDeviceCredentials(id, token string) Option {
	return func(c *Client) {
		c.clientID = id
		c.clientToken = token
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.httpClient = httpClient
		}
	}
}

var (
	// errAddressRequired is returned when a required address value is missing.
	errAddressRequired = errors.New("coordinator URL must be provided")
	// errAdminTokenRequired is returned when an admin call is made without a configured token.
	errAdminTokenRequired = errors.New("admin token must be provided")
	// errDeviceCredentialsRequired is returned when a device call is made without credentials.
	errDeviceCredentialsRequired = errors.New("device credentials must be provided")
	// errArtifactRequired is returned when an artifact is not provided but is required.
	errArtifactRequired = errors.New("artifact must be provided")
	// errDownloadPathRequired is returned when a download path is missing.
	errDownloadPathRequired = errors.New("download path must be provided")
	// errUnexpectedStatus is returned for status codes outside the API error contract.
	errUnexpectedStatus = errors.New("unexpected status")
)

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 8 << 10

// Dial validates the coordinator URL and builds a client around it.
// Note: requests go out as plain HTTP unless the URL says otherwise;
// deploy behind TLS or on a trusted network.
func Dial(_ context.Context, baseURL string, opts ...Option) (*Client, error) {
	if baseURL == "" {
		return nil, errAddressRequired
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse coordinator URL: %w", err)
	}

	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("%w: %q lacks a scheme or host", errAddressRequired, baseURL)
	}

	client := &Client{
		baseURL:     parsed,
		httpClient:  &http.Client{},
		callTimeout: config.DefaultTimeout,
		userAgent:   version.UserAgent(filepath.Base(os.Args[0])),
	}

	for _, opt := range opts {
		opt(client)
	}

	return client, nil
}

// Close releases idle connections held by the underlying HTTP client.
func (c *Client) Close() error {
	if c == nil || c.httpClient == nil {
		return nil
	}

	c.httpClient.CloseIdleConnections()

	return nil
}

// ListClients returns every registered client. Token hashes never leave
// the coordinator, so the records are directly loggable.
func (c *Client) ListClients(ctx context.Context) ([]*fleet.Client, error) {
	var out struct {
		Clients []*fleet.Client `json:"clients"`
	}

	if err := c.doAdmin(ctx, http.MethodGet, c.endpoint("admin", "clients"), nil, &out); err != nil {
		return nil, fmt.Errorf("list clients: %w", err)
	}

	return out.Clients, nil
}

// UpsertClient creates or updates one client record.
func (c *Client) UpsertClient(
	ctx context.Context,
	id string,
	request *fleet.UpsertClientRequest,
) (*fleet.Client, error) {
	if request == nil {
		request = &fleet.UpsertClientRequest{}
	}

	var out struct {
		Client *fleet.Client `json:"client"`
	}

	if err := c.doAdmin(ctx, http.MethodPut, c.endpoint("admin", "clients", id), request, &out); err != nil {
		return nil, fmt.Errorf("upsert client: %w", err)
	}

	return out.Client, nil
}

// DeleteClient removes one client record. Unknown ids succeed.
func (c *Client) DeleteClient(ctx context.Context, id string) error {
	if err := c.doAdmin(ctx, http.MethodDelete, c.endpoint("admin", "clients", id), nil, nil); err != nil {
		return fmt.Errorf("delete client: %w", err)
	}

	return nil
}

// LatestArtifact returns the newest published descriptor, or nil before
// the first publish.
func (c *Client) LatestArtifact(ctx context.Context) (*fleet.Artifact, error) {
	var out struct {
		Latest *fleet.Artifact `json:"latest"`
	}

	if err := c.doAdmin(ctx, http.MethodGet, c.endpoint("admin", "artifacts"), nil, &out); err != nil {
		return nil, fmt.Errorf("latest artifact: %w", err)
	}

	return out.Latest, nil
}

// PublishArtifact registers one uploaded build and returns the descriptor
// the coordinator stored for it.
func (c *Client) PublishArtifact(ctx context.Context, artifact *fleet.Artifact) (*fleet.Artifact, error) {
	if artifact == nil {
		return nil, errArtifactRequired
	}

	var out struct {
		Latest *fleet.Artifact `json:"latest"`
	}

	if err := c.doAdmin(ctx, http.MethodPost, c.endpoint("admin", "artifacts"), artifact, &out); err != nil {
		return nil, fmt.Errorf("publish artifact: %w", err)
	}

	return out.Latest, nil
}

// ReportState sends the device's poll and returns the coordinator's offer.
func (c *Client) ReportState(ctx context.Context, report *fleet.StateRequest) (*fleet.StateResponse, error) {
	if report == nil {
		report = &fleet.StateRequest{}
	}

	var out fleet.StateResponse

	if err := c.doDevice(ctx, http.MethodPost, c.endpoint("client", "state"), report, &out); err != nil {
		return nil, fmt.Errorf("report state: %w", err)
	}

	return &out, nil
}

// DownloadArtifact streams the payload behind a coordinator-relative
// download path into dst and returns the number of bytes written.
func (c *Client) DownloadArtifact(ctx context.Context, downloadPath string, dst io.Writer) (int64, error) {
	if c.clientID == "" || c.clientToken == "" {
		return 0, errDeviceCredentialsRequired
	}

	if downloadPath == "" {
		return 0, errDownloadPathRequired
	}

	reference, err := url.Parse(downloadPath)
	if err != nil {
		return 0, fmt.Errorf("parse download path: %w", err)
	}

	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	request, err := http.NewRequestWithContext(
		callCtx, http.MethodGet, c.baseURL.ResolveReference(reference).String(), nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	request.Header.Set("User-Agent", c.userAgent)
	c.deviceAuth(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, fmt.Errorf("download artifact: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download artifact: %w", decodeAPIError(response))
	}

	written, err := io.Copy(dst, response.Body)
	if err != nil {
		return written, fmt.Errorf("stream artifact: %w", err)
	}

	return written, nil
}

// endpoint joins path elements onto the coordinator base URL.
func (c *Client) endpoint(elems ...string) string {
	return c.baseURL.JoinPath(elems...).String()
}

// doAdmin performs one admin API call after checking the bearer secret.
func (c *Client) doAdmin(ctx context.Context, method, endpoint string, body, out any) error {
	if c.adminToken == "" {
		return errAdminTokenRequired
	}

	return c.do(ctx, method, endpoint, body, out, c.adminAuth)
}

// doDevice performs one device API call after checking the credentials.
func (c *Client) doDevice(ctx context.Context, method, endpoint string, body, out any) error {
	if c.clientID == "" || c.clientToken == "" {
		return errDeviceCredentialsRequired
	}

	return c.do(ctx, method, endpoint, body, out, c.deviceAuth)
}

// do performs one JSON API call and decodes the response body into out.
func (c *Client) do(
	ctx context.Context,
	method, endpoint string,
	body, out any,
	authorize func(*http.Request),
) error {
	callCtx, cancel := c.callContext(ctx)
	defer cancel()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	request, err := http.NewRequestWithContext(callCtx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	request.Header.Set("User-Agent", c.userAgent)
	authorize(request)

	response, err := c.httpClient.Do(request)
	if err != nil {
		return fmt.Errorf("call coordinator: %w", err)
	}
	defer response.Body.Close()

	if response.StatusCode < http.StatusOK || response.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(response)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, response.Body)

		return nil
	}

	if err = json.NewDecoder(response.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}

	return nil
}

// adminAuth attaches the bearer secret for the admin surface.
func (c *Client) adminAuth(request *http.Request) {
	request.Header.Set("Authorization", "Bearer "+c.adminToken)
}

// deviceAuth attaches the device credential headers.
func (c *Client) deviceAuth(request *http.Request) {
	request.Header.Set(fleet.HeaderClientID, c.clientID)
	request.Header.Set(fleet.HeaderClientToken, c.clientToken)
}

// decodeAPIError translates a non-2xx response into a domain error carrying
// the server's message.
func decodeAPIError(response *http.Response) error {
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}

	message := http.StatusText(response.StatusCode)

	if err := json.NewDecoder(io.LimitReader(response.Body, maxErrorBodySize)).Decode(&body); err == nil &&
		body.Message != "" {
		message = body.Message
	}

	switch response.StatusCode {
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", fleet.ErrBadRequest, message)
	case http.StatusUnauthorized:
		return fmt.Errorf("%w: %s", fleet.ErrUnauthorized, message)
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", fleet.ErrNotFound, message)
	case http.StatusConflict:
		return fmt.Errorf("%w: %s", fleet.ErrConflict, message)
	default:
		return fmt.Errorf("%w %d: %s", errUnexpectedStatus, response.StatusCode, message)
	}
}

// callContext returns a context with the client's call timeout if configured,
// otherwise a cancellable child context without a deadline.
func (c *Client) callContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.callTimeout <= 0 {
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.callTimeout)
}
