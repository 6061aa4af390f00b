// Package zoom talks to the Zoom REST API with Server-to-Server OAuth and downloads recordings.
package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/aura-webinar/meeting-pipeline/config"
	"github.com/aura-webinar/meeting-pipeline/pkg/retry"
)

const (
	// BaseURL is the base URL for the Zoom API.
	BaseURL = "https://api.zoom.us/v2"
	// AuthURL is the OAuth token endpoint.
	AuthURL = "https://zoom.us/oauth/token"

	defaultTimeout = 30 * time.Second
)

// ErrNotConfigured is returned when no API app credentials are set.
var ErrNotConfigured = errors.New("zoom api credentials not configured")

// APIError is a non-2xx response from the Zoom API.
type APIError struct {
	Status  int    `json:"-"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("zoom api error %d (code %d): %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("zoom api error %d", e.Status)
}

// Client is a Zoom API client.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  oauth2.TokenSource
	policy  retry.Policy
	logger  *zap.Logger
}

// NewClient creates a client from the app credentials. An unconfigured client returns
// ErrNotConfigured from every call.
func NewClient(cfg config.ZoomConfig, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = BaseURL
	}
	if cfg.AuthURL == "" {
		cfg.AuthURL = AuthURL
	}
	c := &Client{baseURL: strings.TrimRight(cfg.BaseURL, "/"), policy: retry.Default, logger: logger}
	if cfg.AccountID == "" || cfg.ClientID == "" || cfg.ClientSecret == "" {
		return c
	}
	// Server-to-Server OAuth uses the account_credentials grant with the account id as a form param.
	oc := &clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.AuthURL,
		EndpointParams: url.Values{
			"grant_type": []string{"account_credentials"},
			"account_id": []string{cfg.AccountID},
		},
		AuthStyle: oauth2.AuthStyleInParams,
	}
	base := &http.Client{Timeout: defaultTimeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	c.tokens = oc.TokenSource(ctx)
	c.http = &http.Client{
		Timeout:   defaultTimeout,
		Transport: &oauth2.Transport{Base: http.DefaultTransport, Source: c.tokens},
	}
	return c
}

// Configured reports whether API calls can be made.
func (c *Client) Configured() bool { return c.http != nil }

// Token returns the current API access token, used to authorize recording downloads.
func (c *Client) Token(ctx context.Context) (string, error) {
	if !c.Configured() {
		return "", ErrNotConfigured
	}
	tok, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("zoom token: %w", err)
	}
	return tok.AccessToken, nil
}

// EscapeMeetingUUID escapes a meeting UUID for use in a path. UUIDs that start with "/" or
// contain "//" must be encoded twice.
func EscapeMeetingUUID(id string) string {
	escaped := url.PathEscape(id)
	if strings.HasPrefix(id, "/") || strings.Contains(id, "//") {
		escaped = url.PathEscape(escaped)
	}
	return escaped
}

// GetRecordingFiles returns the recording object, with fresh download URLs, for a meeting UUID.
func (c *Client) GetRecordingFiles(ctx context.Context, meetingUUID string) (*Meeting, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}
	var out Meeting
	if err := c.get(ctx, "/meetings/"+EscapeMeetingUUID(meetingUUID)+"/recordings", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return retry.Do(ctx, c.policy, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
		if err != nil {
			return retry.Permanent(fmt.Errorf("create request: %w", err))
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusBadRequest {
			apiErr := &APIError{Status: resp.StatusCode}
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
			_ = json.Unmarshal(body, apiErr)
			return retry.Classify(apiErr, resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode %s: %w", path, err))
		}
		return nil
	}, func(err error, wait time.Duration) {
		c.logger.Warn("zoom api request failed, retrying",
			zap.String("path", path), zap.Duration("backoff", wait), zap.Error(err))
	})
}
