package openproject

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

// Client is the interface for the parts of the OpenProject API v3 the
// import pipeline consumes.
type Client interface {
	WorkPackageActivities(ctx context.Context, workPackageID int64) (*ActivityCollection, error)
}

// Config holds the connection and authentication settings for OpenProject.
type Config struct {
	// BaseURL is the instance root, e.g. https://openproject.example.com.
	BaseURL string

	// APIKey is sent as HTTP basic auth with the fixed user "apikey".
	APIKey string

	// OAuth2 client credentials. Used instead of APIKey when both are set.
	ClientID     string
	ClientSecret string

	Timeout time.Duration
}

// StatusError reports a non-success HTTP response.
type StatusError struct {
	StatusCode int
	Path       string
	RetryAfter string
}

func (e *StatusError) Error() string {
	switch e.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Sprintf("OpenProject authentication failed (%d) for %s", e.StatusCode, e.Path)
	case http.StatusNotFound:
		return fmt.Sprintf("OpenProject resource %s not found", e.Path)
	case http.StatusTooManyRequests:
		if e.RetryAfter != "" {
			return fmt.Sprintf("OpenProject rate limit exceeded (429) for %s, retry after %s seconds", e.Path, e.RetryAfter)
		}
		return fmt.Sprintf("OpenProject rate limit exceeded (429) for %s", e.Path)
	default:
		return fmt.Sprintf("OpenProject API returned status %d for %s", e.StatusCode, e.Path)
	}
}

type apiClient struct {
	cfg        Config
	httpClient *http.Client
	apiKey     string
}

// NewClient creates a client for the configured instance. With client
// credentials configured, requests carry an OAuth2 bearer token obtained
// from the instance's /oauth/token endpoint.
func NewClient(cfg Config) Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")

	base := &http.Client{Timeout: cfg.Timeout}
	c := &apiClient{cfg: cfg, httpClient: base, apiKey: cfg.APIKey}

	if cfg.ClientID != "" && cfg.ClientSecret != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.BaseURL + "/oauth/token",
			Scopes:       []string{"api_v3"},
		}
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		c.httpClient = cc.Client(ctx)
		c.httpClient.Timeout = cfg.Timeout
		c.apiKey = ""
		log.Debug().Str("token_url", cc.TokenURL).Msg("OpenProject client uses OAuth2 client credentials")
	}

	return c
}

func (c *apiClient) WorkPackageActivities(ctx context.Context, workPackageID int64) (*ActivityCollection, error) {
	path := fmt.Sprintf("/api/v3/work_packages/%d/activities", workPackageID)

	var out ActivityCollection
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *apiClient) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/hal+json")
	if c.apiKey != "" {
		req.SetBasicAuth("apikey", c.apiKey)
	}

	log.Trace().Str("path", path).Msg("OpenProject request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &StatusError{
			StatusCode: resp.StatusCode,
			Path:       path,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode OpenProject response for %s: %w", path, err)
	}
	return nil
}
