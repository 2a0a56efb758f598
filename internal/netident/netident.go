// Package netident approximates "is this device on the office network" by
// comparing a public address against saved configurations. It is a courtesy
// gate, not a security boundary.
package netident

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"officeclock/internal/records"
)

// ErrUnresolvable is returned when the public address cannot be determined.
var ErrUnresolvable = errors.New("cannot determine public network address")

// Resolver resolves the caller's current public address.
type Resolver interface {
	ResolvePublicAddress(ctx context.Context) (string, error)
}

// Static resolves to a fixed address, typically the client IP the server observed.
type Static string

func (s Static) ResolvePublicAddress(context.Context) (string, error) {
	if s == "" {
		return "", ErrUnresolvable
	}
	return string(s), nil
}

// IPify looks the address up through an ipify-compatible JSON endpoint.
type IPify struct {
	URL  string
	HTTP *http.Client
}

// NewIPify creates a resolver with a short timeout.
func NewIPify(url string) *IPify {
	if url == "" {
		url = "https://api.ipify.org?format=json"
	}
	return &IPify{URL: url, HTTP: &http.Client{Timeout: 5 * time.Second}}
}

func (p *IPify) ResolvePublicAddress(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.URL, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	resp, err := p.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("%w: lookup returned %s", ErrUnresolvable, resp.Status)
	}
	var out struct {
		IP string `json:"ip"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnresolvable, err)
	}
	if out.IP == "" {
		return "", fmt.Errorf("%w: empty address", ErrUnresolvable)
	}
	return out.IP, nil
}

// NetworkSource lists saved network configurations.
type NetworkSource interface {
	ListWifiConfigs(ctx context.Context) ([]records.WifiConfig, error)
}

// ListSavedNetworks returns the saved configurations in insertion order.
func ListSavedNetworks(ctx context.Context, src NetworkSource) ([]records.WifiConfig, error) {
	return src.ListWifiConfigs(ctx)
}

// IsAddressAllowed is true when no network is saved or candidate equals a saved address exactly.
func IsAddressAllowed(candidate string, saved []records.WifiConfig) bool {
	if len(saved) == 0 {
		return true
	}
	for _, cfg := range saved {
		if cfg.IP == candidate {
			return true
		}
	}
	return false
}

// Labels returns the saved network names.
func Labels(saved []records.WifiConfig) []string {
	out := make([]string, 0, len(saved))
	for _, cfg := range saved {
		out = append(out, cfg.Name)
	}
	return out
}

// JoinLabels formats labels for a user-facing message.
func JoinLabels(saved []records.WifiConfig) string {
	return strings.Join(Labels(saved), " or ")
}
