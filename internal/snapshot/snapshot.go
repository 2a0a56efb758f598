// Package snapshot archives verification stills to Cloudinary so the remote
// attendance note can link to the frame that was checked.
package snapshot

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DefaultBaseURL is the Cloudinary upload API root.
const DefaultBaseURL = "https://api.cloudinary.com/v1_1"

var ErrEmptyImage = errors.New("snapshot: empty image")

// Archiver uploads stills to Cloudinary using their REST API.
type Archiver struct {
	CloudName string
	APIKey    string
	APISecret string
	Folder    string
	BaseURL   string
	HTTP      *http.Client

	now func() time.Time
}

// New creates a Cloudinary archiver.
func New(cloudName, apiKey, apiSecret, folder string) *Archiver {
	return &Archiver{
		CloudName: cloudName,
		APIKey:    apiKey,
		APISecret: apiSecret,
		Folder:    folder,
		BaseURL:   DefaultBaseURL,
		HTTP:      &http.Client{Timeout: 30 * time.Second},
		now:       time.Now,
	}
}

type uploadResult struct {
	PublicID  string `json:"public_id"`
	SecureURL string `json:"secure_url"`
	URL       string `json:"url"`
}

// Archive uploads a data URL still and returns its https URL. The public id
// is the employee id and the capture time, so retakes never overwrite.
func (a *Archiver) Archive(ctx context.Context, employeeID, dataURL string) (string, error) {
	if strings.TrimSpace(dataURL) == "" {
		return "", ErrEmptyImage
	}
	// Cloudinary accepts data URIs directly via the file param.
	if !strings.HasPrefix(dataURL, "data:") {
		dataURL = "data:image/jpeg;base64," + dataURL
	}
	now := a.now()
	params := map[string]string{
		"timestamp": strconv.FormatInt(now.Unix(), 10),
		"api_key":   a.APIKey,
		"public_id": fmt.Sprintf("%s_%d", sanitize(employeeID), now.UnixMilli()),
	}
	if a.Folder != "" {
		params["folder"] = a.Folder
	}
	params["signature"] = a.sign(params)

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		_ = w.WriteField(k, params[k])
	}
	_ = w.WriteField("file", dataURL)
	w.Close()

	url := fmt.Sprintf("%s/%s/image/upload", strings.TrimRight(a.BaseURL, "/"), a.CloudName)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return "", fmt.Errorf("snapshot: create request failed: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := a.HTTP.Do(req)
	if err != nil {
		return "", fmt.Errorf("snapshot: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 300 {
		return "", fmt.Errorf("snapshot: upload failed (%d): %s", resp.StatusCode, string(body))
	}
	var result uploadResult
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("snapshot: decode response failed: %w", err)
	}
	if result.SecureURL != "" {
		return result.SecureURL, nil
	}
	return result.URL, nil
}

// sign computes the API signature. api_key and file are never signed.
func (a *Archiver) sign(params map[string]string) string {
	exclude := map[string]bool{"api_key": true, "file": true, "resource_type": true}

	pairs := make([]string, 0, len(params))
	for k, v := range params {
		if !exclude[k] && v != "" {
			pairs = append(pairs, k+"="+v)
		}
	}
	sort.Strings(pairs)

	h := sha1.New()
	h.Write([]byte(strings.Join(pairs, "&") + a.APISecret))
	return fmt.Sprintf("%x", h.Sum(nil))
}

func sanitize(id string) string {
	var b strings.Builder
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	if b.Len() == 0 {
		return "unknown"
	}
	return b.String()
}
