package logistics

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	pkgerrors "github.com/angelmondragon/parcel-intake-backend/pkg/errors"
)

const (
	defaultBaseURL              = "https://logistics.example.com/api"
	defaultTimeout              = 10 * time.Second
	statusPath                  = "shipments/status"
	responseBodyReadLimit int64 = 1024
	sourceName                  = "warehouse-intake"
)

var (
	// ErrAPIKeyRequired is returned by NewClient when no credential is configured.
	ErrAPIKeyRequired = errors.New("logistics api key is required")
)

// Client pushes parcel status updates to the external logistics webhook.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the configured webhook base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithTimeout bounds every request issued by the client.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// NewClient builds the logistics client given an API key.
func NewClient(apiKey string, opts ...Option) (*Client, error) {
	trimmedKey := strings.TrimSpace(apiKey)
	if trimmedKey == "" {
		return nil, ErrAPIKeyRequired
	}

	client := &Client{
		apiKey:     trimmedKey,
		baseURL:    defaultBaseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}

	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: defaultTimeout}
	}
	if client.baseURL == "" {
		client.baseURL = defaultBaseURL
	}

	return client, nil
}

// StatusUpdate is the payload accepted by the webhook.
type StatusUpdate struct {
	TrackingNumber string    `json:"trackingNumber"`
	Status         string    `json:"status"`
	StatusLabel    string    `json:"statusLabel"`
	Timestamp      time.Time `json:"timestamp"`
	Source         string    `json:"source"`
}

// StatusResponse carries whatever the webhook returned for an accepted push.
type StatusResponse struct {
	StatusCode int
	Body       json.RawMessage
}

// PushStatus sends one status update. Any non-2xx response is a dependency error.
func (c *Client) PushStatus(ctx context.Context, update StatusUpdate) (*StatusResponse, error) {
	if c == nil {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "logistics client not configured")
	}
	if strings.TrimSpace(update.TrackingNumber) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "tracking number is required")
	}
	if strings.TrimSpace(update.Status) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status is required")
	}
	if update.Source == "" {
		update.Source = sourceName
	}
	if update.Timestamp.IsZero() {
		update.Timestamp = time.Now().UTC()
	}

	payload, err := json.Marshal(update)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "marshal status update")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(statusPath), bytes.NewReader(payload))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "build status update request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "execute status update request")
	}
	defer func() { _ = resp.Body.Close() }()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))), "status update rejected").
			WithDetails(map[string]any{"status": resp.StatusCode, "body": strings.TrimSpace(string(body))})
	}

	out := &StatusResponse{StatusCode: resp.StatusCode}
	if json.Valid(body) {
		out.Body = json.RawMessage(body)
	}
	return out, nil
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}
