package logrelay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Text accepts any JSON scalar; spreadsheet cells come back as strings or numbers.
type Text string

func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text(s)
		return nil
	}
	*t = Text(b)
	return nil
}

// Rating is a numeric cell that may arrive as a string. Unparseable values are 0.
type Rating float64

func (r *Rating) UnmarshalJSON(b []byte) error {
	var t Text
	if err := t.UnmarshalJSON(b); err != nil {
		return err
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(string(t)), 64)
	if err != nil {
		*r = 0
		return nil
	}
	*r = Rating(f)
	return nil
}

// AttendanceRow is one stored attendance line.
type AttendanceRow struct {
	Timestamp    Text `json:"timestamp"`
	EmployeeID   Text `json:"employeeId"`
	EmployeeName Text `json:"employeeName"`
	Status       Text `json:"status"`
	Note         Text `json:"note"`
	IP           Text `json:"ip"`
}

// FeedbackRow is one stored feedback line.
type FeedbackRow struct {
	Timestamp    Text   `json:"timestamp"`
	Rating       Rating `json:"rating"`
	Scope        Text   `json:"scope"`
	EmployeeID   Text   `json:"employeeId"`
	EmployeeName Text   `json:"employeeName"`
	Comment      Text   `json:"comment"`
	IP           Text   `json:"ip"`
	UserAgent    Text   `json:"userAgent"`
	Source       Text   `json:"source"`
}

// Client is the remote log as seen by the workflows.
type Client struct {
	writer   Writer
	sheetURL string
	http     *http.Client
}

// NewClient wires a writer for appends and the sheet URL for reads. Without a
// sheet URL reads return empty lists; appends still go through w.
func NewClient(w Writer, sheetURL string) *Client {
	return &Client{
		writer:   w,
		sheetURL: sheetURL,
		http:     &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether appends have a writer.
func (c *Client) Configured() bool {
	return c != nil && c.writer != nil
}

func (c *Client) SendAttendance(ctx context.Context, e AttendanceEvent) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	return c.writer.Write(ctx, e)
}

func (c *Client) SendFeedback(ctx context.Context, e FeedbackEvent) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	return c.writer.Write(ctx, e)
}

// FetchAllAttendance returns every attendance row, or an empty list when the
// remote log is not configured.
func (c *Client) FetchAllAttendance(ctx context.Context) ([]AttendanceRow, error) {
	var rows []AttendanceRow
	if err := c.fetch(ctx, KindAttendance, &rows); err != nil {
		return []AttendanceRow{}, err
	}
	if rows == nil {
		rows = []AttendanceRow{}
	}
	return rows, nil
}

// FetchAllFeedback returns every feedback row.
func (c *Client) FetchAllFeedback(ctx context.Context) ([]FeedbackRow, error) {
	var rows []FeedbackRow
	if err := c.fetch(ctx, KindFeedback, &rows); err != nil {
		return []FeedbackRow{}, err
	}
	if rows == nil {
		rows = []FeedbackRow{}
	}
	return rows, nil
}

func (c *Client) fetch(ctx context.Context, kind string, out any) error {
	if c == nil || c.sheetURL == "" {
		return nil
	}
	u, err := url.Parse(c.sheetURL)
	if err != nil {
		return fmt.Errorf("sheet url: %w", err)
	}
	q := u.Query()
	q.Set("kind", kind)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Printf("fetch %s history: %v", kind, err)
		return fmt.Errorf("fetch %s history: %w", kind, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("fetch %s history: %s", kind, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s history: %w", kind, err)
	}
	return nil
}
