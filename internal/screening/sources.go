package screening

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"comply/pkg/platform/sentinel"
	platformstrings "comply/pkg/platform/strings"
)

// Source is one external match list (OFAC SDN, EU consolidated, UN, PEP).
// Screen returns a 0-100 confidence score; transport failures and timeouts
// surface as errors, never as a zero score.
type Source interface {
	Name() string
	Screen(ctx context.Context, e Entity) (score float64, details string, err error)
}

// HTTPSource screens against a list provider over HTTP. The request body
// carries the entity; the provider answers {"score": n, "details": "..."}.
type HTTPSource struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPSource builds a source client for one provider endpoint.
func NewHTTPSource(name, baseURL, apiKey string, timeout time.Duration) *HTTPSource {
	return &HTTPSource{
		name:    name,
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *HTTPSource) Name() string { return s.name }

func (s *HTTPSource) Screen(ctx context.Context, e Entity) (float64, string, error) {
	body, err := json.Marshal(e)
	if err != nil {
		return 0, "", fmt.Errorf("marshal entity: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/screen", bytes.NewReader(body))
	if err != nil {
		return 0, "", fmt.Errorf("build screen request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("source %s unreachable: %w: %w", s.name, err, sentinel.ErrTransient)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return 0, "", fmt.Errorf("source %s returned %d: %w", s.name, resp.StatusCode, sentinel.ErrTransient)
	default:
		return 0, "", fmt.Errorf("source %s returned %d: %w", s.name, resp.StatusCode, sentinel.ErrValidation)
	}

	var out struct {
		Score   float64 `json:"score"`
		Details string  `json:"details"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return 0, "", fmt.Errorf("decode source %s response: %w", s.name, err)
	}
	return out.Score, out.Details, nil
}

// ListEntry is one row of an in-memory sanctions list.
type ListEntry struct {
	Name    string
	Country string
	Score   float64
	Details string
}

// ListSource screens against an in-memory list by normalized-name match.
// Used for local development and tests; the matching mirrors the provider
// semantics (exact normalized hit, with a country mismatch damping the
// score).
type ListSource struct {
	name    string
	entries map[string]ListEntry
}

// NewListSource indexes entries by normalized name.
func NewListSource(name string, entries []ListEntry) *ListSource {
	idx := make(map[string]ListEntry, len(entries))
	for _, entry := range entries {
		idx[normalizeName(entry.Name)] = entry
	}
	return &ListSource{name: name, entries: idx}
}

func (s *ListSource) Name() string { return s.name }

func (s *ListSource) Screen(ctx context.Context, e Entity) (float64, string, error) {
	if err := ctx.Err(); err != nil {
		return 0, "", err
	}
	entry, ok := s.entries[normalizeName(e.Name)]
	if !ok {
		return 0, "", nil
	}
	score := entry.Score
	if entry.Country != "" && !strings.EqualFold(entry.Country, e.Country) {
		score *= 0.8
	}
	return score, entry.Details, nil
}

func normalizeName(name string) string {
	return platformstrings.NormalizeUpper(name)
}
