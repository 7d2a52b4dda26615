// Package geoip resolves node addresses to human-readable location labels
// used as display names for freshly registered nodes.
package geoip

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Unknown is the sentinel label returned when no provider can resolve the
// address.
const Unknown = "Ghost"

const (
	defaultPrimaryBase  = "https://ipapi.co"
	defaultFallbackBase = "https://ipinfo.io"
)

// Resolver looks up geo information for an IP address. The primary provider
// is consulted first; on a rate-limit response the fallback provider is
// tried. Lookups never fail: any other error yields the Unknown sentinel.
type Resolver struct {
	primaryBase  string
	fallbackBase string
	httpClient   *http.Client
}

// Option customizes a Resolver, primarily for tests.
type Option func(*Resolver)

// WithBaseURLs overrides the provider endpoints.
func WithBaseURLs(primary, fallback string) Option {
	return func(r *Resolver) {
		r.primaryBase = strings.TrimRight(primary, "/")
		r.fallbackBase = strings.TrimRight(fallback, "/")
	}
}

// NewResolver creates a resolver with a 10 second per-request timeout.
func NewResolver(opts ...Option) *Resolver {
	r := &Resolver{
		primaryBase:  defaultPrimaryBase,
		fallbackBase: defaultFallbackBase,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Locate returns a "City (Country)" label for the address, or Unknown if
// neither provider can resolve it.
func (r *Resolver) Locate(ctx context.Context, ip string) string {
	status, body := r.fetch(ctx, fmt.Sprintf("%s/%s/json", r.primaryBase, ip))
	if status == http.StatusOK {
		var result struct {
			City        string `json:"city"`
			CountryName string `json:"country_name"`
		}
		if err := json.Unmarshal(body, &result); err == nil && result.City != "" {
			return fmt.Sprintf("%s (%s)", result.City, result.CountryName)
		}
		return Unknown
	}

	if status != http.StatusTooManyRequests {
		return Unknown
	}

	status, body = r.fetch(ctx, fmt.Sprintf("%s/%s/json", r.fallbackBase, ip))
	if status == http.StatusOK {
		var result struct {
			City    string `json:"city"`
			Country string `json:"country"`
		}
		if err := json.Unmarshal(body, &result); err == nil && result.City != "" {
			return fmt.Sprintf("%s (%s)", result.City, result.Country)
		}
	}
	return Unknown
}

func (r *Resolver) fetch(ctx context.Context, url string) (int, []byte) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, nil
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil
	}
	return resp.StatusCode, body
}

// Country extracts the country part of a location label produced by Locate.
// Labels without a parenthesized country map to "Unknown".
func Country(label string) string {
	open := strings.LastIndex(label, "(")
	if open == -1 {
		return "Unknown"
	}
	return strings.TrimRight(label[open+1:], ")")
}
