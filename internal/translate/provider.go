// SPDX-License-Identifier: MIT

package translate

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

	"github.com/anilwee/dialog/internal/platform/httpx"
)

// Provider names accepted by NewProvider.
const (
	ProviderGoogle = "google"
	ProviderLibre  = "libretranslate"
	ProviderNone   = "none"

	DefaultGoogleEndpoint = "https://translate.googleapis.com/translate_a/single"
)

const maxErrorBody = 256

// Provider translates a single text between two languages.
type Provider interface {
	Name() string
	Translate(ctx context.Context, text, src, tgt string) (string, error)
}

// ProviderConfig configures NewProvider.
type ProviderConfig struct {
	Name     string
	Endpoint string
	APIKey   string
	Timeout  time.Duration
	Client   *http.Client
}

// NewProvider builds the named provider.
func NewProvider(cfg ProviderConfig) (Provider, error) {
	client := cfg.Client
	if client == nil {
		client = httpx.NewClient(cfg.Timeout)
	}
	switch strings.ToLower(cfg.Name) {
	case ProviderGoogle, "":
		endpoint := cfg.Endpoint
		if endpoint == "" {
			endpoint = DefaultGoogleEndpoint
		}
		return &Google{client: client, endpoint: endpoint}, nil
	case ProviderLibre:
		if cfg.Endpoint == "" {
			return nil, fmt.Errorf("translate: %s requires an endpoint", ProviderLibre)
		}
		return &Libre{client: client, endpoint: strings.TrimRight(cfg.Endpoint, "/"), apiKey: cfg.APIKey}, nil
	case ProviderNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, cfg.Name)
	}
}

// None never translates.
type None struct{}

func (None) Name() string { return ProviderNone }

func (None) Translate(context.Context, string, string, string) (string, error) {
	return "", ErrProviderDisabled
}

// Google calls the public translate_a/single endpoint used by browser
// extensions. It needs no key.
type Google struct {
	client   *http.Client
	endpoint string
}

func (g *Google) Name() string { return ProviderGoogle }

func (g *Google) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	q := url.Values{}
	q.Set("client", "gtx")
	q.Set("sl", src)
	q.Set("tl", tgt)
	q.Set("dt", "t")
	q.Set("q", text)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return "", err
	}
	body, err := do(g.client, req, ProviderGoogle)
	if err != nil {
		return "", err
	}
	return parseGoogle(body)
}

// parseGoogle extracts the translated segments from
// [[["translated","source",...],...],...].
func parseGoogle(body []byte) (string, error) {
	var root []json.RawMessage
	if err := json.Unmarshal(body, &root); err != nil || len(root) == 0 {
		return "", &ProviderError{Sentinel: ErrBadResponse, Provider: ProviderGoogle, Err: err}
	}
	var segments [][]any
	if err := json.Unmarshal(root[0], &segments); err != nil {
		return "", &ProviderError{Sentinel: ErrBadResponse, Provider: ProviderGoogle, Err: err}
	}
	var b strings.Builder
	for _, seg := range segments {
		if len(seg) == 0 {
			continue
		}
		if s, ok := seg[0].(string); ok {
			b.WriteString(s)
		}
	}
	if b.Len() == 0 {
		return "", &ProviderError{Sentinel: ErrBadResponse, Provider: ProviderGoogle, Body: "empty translation"}
	}
	return b.String(), nil
}

// Libre calls a LibreTranslate instance.
type Libre struct {
	client   *http.Client
	endpoint string
	apiKey   string
}

func (l *Libre) Name() string { return ProviderLibre }

type libreRequest struct {
	Q      string `json:"q"`
	Source string `json:"source"`
	Target string `json:"target"`
	Format string `json:"format"`
	APIKey string `json:"api_key,omitempty"`
}

type libreResponse struct {
	TranslatedText string `json:"translatedText"`
	Error          string `json:"error"`
}

func (l *Libre) Translate(ctx context.Context, text, src, tgt string) (string, error) {
	payload, err := json.Marshal(libreRequest{Q: text, Source: src, Target: tgt, Format: "text", APIKey: l.apiKey})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, l.endpoint+"/translate", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	body, err := do(l.client, req, ProviderLibre)
	if err != nil {
		return "", err
	}
	var resp libreResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", &ProviderError{Sentinel: ErrBadResponse, Provider: ProviderLibre, Err: err}
	}
	if resp.TranslatedText == "" {
		return "", &ProviderError{Sentinel: ErrBadResponse, Provider: ProviderLibre, Body: resp.Error}
	}
	return resp.TranslatedText, nil
}

func do(client *http.Client, req *http.Request, provider string) ([]byte, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", provider, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("%s: read body: %w", provider, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &ProviderError{Sentinel: ErrRateLimited, Provider: provider, Status: resp.StatusCode}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &ProviderError{Sentinel: ErrUpstreamStatus, Provider: provider, Status: resp.StatusCode, Body: truncate(string(body))}
	}
	return body, nil
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
