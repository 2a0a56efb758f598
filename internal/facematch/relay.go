package facematch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// RelayTransport calls a same-origin relay that holds the model credential.
type RelayTransport struct {
	BaseURL string
	HTTP    *http.Client
}

// NewRelay creates a relay client; model calls can take a while.
func NewRelay(baseURL string) *RelayTransport {
	return &RelayTransport{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 60 * time.Second},
	}
}

func (r *RelayTransport) endpoint() string {
	return r.BaseURL + "/api/verify"
}

func (r *RelayTransport) Verify(ctx context.Context, referenceImage, currentImage string) (Result, error) {
	body, _ := json.Marshal(map[string]string{
		"referenceImage": referenceImage,
		"currentImage":   currentImage,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint(), bytes.NewReader(body))
	if err != nil {
		return Result{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	bodyBytes, _ := io.ReadAll(resp.Body)
	if resp.StatusCode == http.StatusNotFound {
		return Result{}, ErrRelayUnavailable
	}
	if resp.StatusCode >= 300 {
		var e struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(bodyBytes, &e) == nil && e.Error != "" {
			return Result{}, fmt.Errorf("verify relay: %s", e.Error)
		}
		return Result{}, fmt.Errorf("verify relay error %s", resp.Status)
	}
	return ParseVerdict(string(bodyBytes), "no explanation (relay)")
}

// Probe reports whether the relay endpoint exists. Anything but a 404 or a
// network failure counts as present; a GET is expected to answer 405.
func (r *RelayTransport) Probe(ctx context.Context) bool {
	if r == nil || r.BaseURL == "" {
		return false
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.endpoint(), nil)
	if err != nil {
		return false
	}
	resp, err := r.HTTP.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode != http.StatusNotFound
}
