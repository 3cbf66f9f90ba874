package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultRemoteTimeout is the per-request timeout against the
	// remote object store.
	DefaultRemoteTimeout = 30 * time.Second

	// DefaultRemoteRetries is the number of attempts for transient
	// failures.
	DefaultRemoteRetries = 3

	// remoteBaseBackoff is the base delay for exponential backoff.
	remoteBaseBackoff = 500 * time.Millisecond

	// maxDocumentBytes limits the downloaded document to 100 MB; plans
	// embed base64 images, so documents can be large but not unbounded.
	maxDocumentBytes = 100 << 20
)

// TokenSource supplies the bearer token for the remote object store.
// A static token covers service-account style auth; a refreshing
// source covers OAuth-style short-lived tokens. The two collapse the
// original tool's two cloud revisions into one store.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a TokenSource returning a fixed token.
type StaticToken string

// Token returns the fixed token.
func (t StaticToken) Token(ctx context.Context) (string, error) {
	if t == "" {
		return "", fmt.Errorf("remote store: empty auth token")
	}
	return string(t), nil
}

// RefreshingToken exchanges a refresh token for short-lived access
// tokens at an OAuth token endpoint and caches them until expiry.
type RefreshingToken struct {
	TokenURL     string
	ClientID     string
	ClientSecret string
	RefreshToken string
	Client       *http.Client

	mu      sync.Mutex
	current string
	expiry  time.Time
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Token returns a cached access token, refreshing it when expired or
// about to expire.
func (t *RefreshingToken) Token(ctx context.Context) (string, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	// 30s slack so a token never expires mid-request.
	if t.current != "" && time.Until(t.expiry) > 30*time.Second {
		return t.current, nil
	}

	form := url.Values{
		"grant_type":    {"refresh_token"},
		"refresh_token": {t.RefreshToken},
		"client_id":     {t.ClientID},
		"client_secret": {t.ClientSecret},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("token refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	client := t.Client
	if client == nil {
		client = &http.Client{Timeout: DefaultRemoteTimeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("token refresh: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("token refresh: status %d", resp.StatusCode)
	}

	var tr tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tr); err != nil {
		return "", fmt.Errorf("token refresh: parsing response: %w", err)
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token refresh: no access token in response")
	}

	t.current = tr.AccessToken
	t.expiry = time.Now().Add(time.Duration(tr.ExpiresIn) * time.Second)
	return t.current, nil
}

// RemoteStore persists the project document as a single object in a
// remote store reached over HTTP: GET downloads it, PUT replaces it.
// Transient failures are retried with exponential backoff.
type RemoteStore struct {
	URL        string
	Tokens     TokenSource
	Table      *ReferenceTable
	Client     *http.Client
	MaxRetries int
	Backoff    time.Duration
}

// NewRemoteStore creates a remote store for the given object URL.
func NewRemoteStore(objectURL string, tokens TokenSource, table *ReferenceTable) *RemoteStore {
	if table == nil {
		table = DefaultReferenceTable()
	}
	return &RemoteStore{
		URL:        objectURL,
		Tokens:     tokens,
		Table:      table,
		Client:     &http.Client{Timeout: DefaultRemoteTimeout},
		MaxRetries: DefaultRemoteRetries,
		Backoff:    remoteBaseBackoff,
	}
}

// Load downloads and decodes the document. 404 means no document has
// been saved yet and yields an empty project set.
func (s *RemoteStore) Load(ctx context.Context) (map[string]*Project, error) {
	var body []byte
	err := s.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		if err := s.authorize(ctx, req); err != nil {
			return err
		}

		resp, err := s.Client.Do(req)
		if err != nil {
			return fmt.Errorf("GET %s: %w", s.URL, err)
		}
		defer func() { _ = resp.Body.Close() }()

		switch resp.StatusCode {
		case http.StatusOK:
		case http.StatusNotFound:
			body = nil
			return nil
		default:
			return fmt.Errorf("GET %s: status %d", s.URL, resp.StatusCode)
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes))
		if err != nil {
			return fmt.Errorf("reading document: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("remote store load: %w", err)
	}

	if len(body) == 0 {
		return map[string]*Project{}, nil
	}

	projects, err := DecodeProjects(body, s.Table)
	if err != nil {
		// Parse errors are not transient; surface them directly.
		return nil, fmt.Errorf("remote store load: %w", err)
	}
	return projects, nil
}

// Save encodes and uploads the full document.
func (s *RemoteStore) Save(ctx context.Context, projects map[string]*Project) error {
	data, err := EncodeProjects(projects)
	if err != nil {
		return err
	}

	err = s.withRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPut, s.URL, bytes.NewReader(data))
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if err := s.authorize(ctx, req); err != nil {
			return err
		}

		resp, err := s.Client.Do(req)
		if err != nil {
			return fmt.Errorf("PUT %s: %w", s.URL, err)
		}
		defer func() { _ = resp.Body.Close() }()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusNoContent {
			return fmt.Errorf("PUT %s: status %d", s.URL, resp.StatusCode)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("remote store save: %w", err)
	}
	return nil
}

func (s *RemoteStore) authorize(ctx context.Context, req *http.Request) error {
	if s.Tokens == nil {
		return nil
	}
	token, err := s.Tokens.Token(ctx)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return nil
}

func (s *RemoteStore) withRetry(ctx context.Context, op func() error) error {
	retries := s.MaxRetries
	if retries < 1 {
		retries = 1
	}
	backoff := s.Backoff
	if backoff <= 0 {
		backoff = remoteBaseBackoff
	}

	var lastErr error
	for attempt := range retries {
		if attempt > 0 {
			delay := backoff * time.Duration(math.Pow(2, float64(attempt-1)))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := op(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return fmt.Errorf("all %d attempts failed: %w", retries, lastErr)
}
