package logrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

var (
	ErrNotConfigured    = errors.New("remote log not configured")
	ErrRelayUnavailable = errors.New("log relay unavailable")
)

// Writer appends one event to the remote log.
type Writer interface {
	Write(ctx context.Context, e Event) error
}

// Relay posts events as JSON to a same-origin relay that forwards them.
type Relay struct {
	BaseURL string
	HTTP    *http.Client
}

func NewRelay(baseURL string) *Relay {
	return &Relay{
		BaseURL: strings.TrimRight(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (r *Relay) endpoint() string { return r.BaseURL + "/api/log" }

func (r *Relay) Write(ctx context.Context, e Event) error {
	body, _ := json.Marshal(e.Fields())
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint(), bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRelayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrRelayUnavailable
	}
	if resp.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("log relay error %s: %s", resp.Status, string(bodyBytes))
	}
	return nil
}

// Probe reports whether the relay endpoint exists.
func (r *Relay) Probe(ctx context.Context) bool {
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

// Direct posts form-encoded events straight to the spreadsheet endpoint.
//
// The endpoint answers with a redirect, which is never followed. Unless
// Confirm is set, attendance writes succeed once the request was sent and the
// response is not inspected. Feedback writes always check the status.
type Direct struct {
	URL     string
	HTTP    *http.Client
	Confirm bool
}

func NewDirect(endpoint string, confirm bool) *Direct {
	return &Direct{
		URL:     endpoint,
		Confirm: confirm,
		HTTP: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

func (d *Direct) Write(ctx context.Context, e Event) error {
	if d.URL == "" {
		return ErrNotConfigured
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.URL, strings.NewReader(Form(e).Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded;charset=UTF-8")

	resp, err := d.HTTP.Do(req)
	if err != nil {
		return fmt.Errorf("direct log request failed: %w", err)
	}
	resp.Body.Close()

	if e.Kind() == KindAttendance && !d.Confirm {
		return nil
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("remote log error %s", resp.Status)
	}
	return nil
}

// SelectWriter probes the relay once and returns the writer to use for the
// lifetime of the process.
func SelectWriter(ctx context.Context, relay *Relay, direct Writer) Writer {
	if relay.Probe(ctx) {
		log.Printf("remote log: using relay %s", relay.BaseURL)
		return relay
	}
	log.Printf("remote log: relay unavailable, writing directly")
	return direct
}
