package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/evahlis/sona/internal/reliability"
)

type HTTPConfig struct {
	BaseURL string
	APIKey  string
	Bucket  string
	Timeout time.Duration
}

// HTTPStore talks to a Supabase-compatible storage REST API with a service
// key. Objects live under one private bucket; playback goes through signed
// URLs only.
type HTTPStore struct {
	cfg    HTTPConfig
	client *http.Client
}

func NewHTTPStore(cfg HTTPConfig) (*HTTPStore, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("storage base url is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("storage api key is required")
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		cfg.Bucket = "meditations"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &HTTPStore{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Upload retries once on rate-limit or 5xx; the upsert header makes the
// retry idempotent.
func (s *HTTPStore) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	return reliability.Retry(ctx, 2, 500*time.Millisecond, 5*time.Second, func() (bool, error) {
		return s.uploadOnce(ctx, path, data, contentType)
	})
}

func (s *HTTPStore) uploadOnce(ctx context.Context, path string, data []byte, contentType string) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.objectURL("object", path), bytes.NewReader(data))
	if err != nil {
		return false, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "true")

	res, err := s.client.Do(req)
	if err != nil {
		return true, fmt.Errorf("upload object: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return reliability.IsRetryableHTTPStatus(res.StatusCode),
			fmt.Errorf("upload status %d: %s", res.StatusCode, readErrBody(res.Body))
	}
	return false, nil
}

func (s *HTTPStore) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}
	payload, err := json.Marshal(map[string]any{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("marshal remove request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete,
		fmt.Sprintf("%s/storage/v1/object/%s", s.cfg.BaseURL, url.PathEscape(s.cfg.Bucket)),
		bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create remove request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("remove objects: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("remove status %d: %s", res.StatusCode, readErrBody(res.Body))
	}
	return nil
}

func (s *HTTPStore) CreateSignedURL(ctx context.Context, path string, ttlSeconds int) (string, error) {
	if ttlSeconds <= 0 {
		return "", fmt.Errorf("signed url ttl must be positive")
	}
	payload, err := json.Marshal(map[string]any{"expiresIn": ttlSeconds})
	if err != nil {
		return "", fmt.Errorf("marshal sign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		s.objectURL("object/sign", path), bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create sign request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("sign object: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return "", fmt.Errorf("sign status %d: %s", res.StatusCode, readErrBody(res.Body))
	}

	var out struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode sign response: %w", err)
	}
	if out.SignedURL == "" {
		return "", fmt.Errorf("sign response missing url")
	}
	return s.cfg.BaseURL + "/storage/v1" + out.SignedURL, nil
}

func (s *HTTPStore) List(ctx context.Context, prefix string) ([]Entry, error) {
	payload, err := json.Marshal(map[string]any{"prefix": prefix, "limit": 1000})
	if err != nil {
		return nil, fmt.Errorf("marshal list request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		fmt.Sprintf("%s/storage/v1/object/list/%s", s.cfg.BaseURL, url.PathEscape(s.cfg.Bucket)),
		bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create list request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("list objects: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("list status %d: %s", res.StatusCode, readErrBody(res.Body))
	}

	var raw []struct {
		Name      string    `json:"name"`
		UpdatedAt time.Time `json:"updated_at"`
		Metadata  struct {
			Size int64 `json:"size"`
		} `json:"metadata"`
	}
	if err := json.NewDecoder(res.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("decode list response: %w", err)
	}
	out := make([]Entry, 0, len(raw))
	for _, item := range raw {
		name := item.Name
		if prefix != "" {
			name = strings.TrimSuffix(prefix, "/") + "/" + item.Name
		}
		out = append(out, Entry{Path: name, Size: item.Metadata.Size, UpdatedAt: item.UpdatedAt})
	}
	return out, nil
}

func (s *HTTPStore) objectURL(kind, path string) string {
	escaped := make([]string, 0, 4)
	for _, part := range strings.Split(strings.TrimPrefix(path, "/"), "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	return fmt.Sprintf("%s/storage/v1/%s/%s/%s",
		s.cfg.BaseURL, kind, url.PathEscape(s.cfg.Bucket), strings.Join(escaped, "/"))
}

func readErrBody(r io.Reader) string {
	body, _ := io.ReadAll(io.LimitReader(r, 4<<10))
	return strings.TrimSpace(string(body))
}
