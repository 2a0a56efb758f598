// Package relayapi serves the same-origin relay endpoints. They hold the
// secrets (spreadsheet URL, model credential) so callers never see them.
package relayapi

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

	"github.com/gin-gonic/gin"

	"officeclock/internal/facematch"
	"officeclock/internal/logrelay"
)

// Comparer runs one face comparison with the relay's own credential.
type Comparer interface {
	Compare(ctx context.Context, referenceImage, currentImage, defaultReasoning string) (facematch.Result, error)
}

// Handler forwards log rows and verification requests.
type Handler struct {
	attendanceURL string
	comparer      Comparer
	http          *http.Client
}

// New builds a Handler. The spreadsheet endpoint redirects on success, so the
// client follows redirects here.
func New(attendanceURL string, comparer Comparer) *Handler {
	return &Handler{
		attendanceURL: attendanceURL,
		comparer:      comparer,
		http:          &http.Client{Timeout: 30 * time.Second},
	}
}

// Register mounts POST /api/log and POST /api/verify; other methods get 405.
func (h *Handler) Register(r gin.IRouter) {
	r.Any("/api/log", onlyPost(h.Log))
	r.Any("/api/verify", onlyPost(h.Verify))
}

func onlyPost(next gin.HandlerFunc) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodPost {
			c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
			return
		}
		next(c)
	}
}

// Log re-encodes a flat JSON object as form fields and forwards it.
func (h *Handler) Log(c *gin.Context) {
	fields, err := decodeFlat(c.Request.Body)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if h.attendanceURL == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Missing ATTENDANCE_API_URL"})
		return
	}

	body := logrelay.FormFromFields(fields).Encode()
	req, err := http.NewRequestWithContext(c.Request.Context(), http.MethodPost, h.attendanceURL, strings.NewReader(body))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := h.http.Do(req)
	if err != nil {
		log.Printf("log relay: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 300 {
		msg := fmt.Sprintf("GAS Error %d: %s", resp.StatusCode, string(data))
		log.Printf("log relay: %s", msg)
		c.JSON(http.StatusInternalServerError, gin.H{"error": msg})
		return
	}
	if !json.Valid(data) {
		log.Printf("log relay: non-JSON response from remote log")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "invalid JSON from remote log"})
		return
	}
	c.Data(http.StatusOK, "application/json", data)
}

type verifyRequest struct {
	ReferenceImage string `json:"referenceImage"`
	CurrentImage   string `json:"currentImage"`
}

// Verify runs the comparison and answers with the model's verdict object.
func (h *Handler) Verify(c *gin.Context) {
	var req verifyRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&req); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "details": err.Error()})
		return
	}
	if req.ReferenceImage == "" || req.CurrentImage == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing images"})
		return
	}

	res, err := h.comparer.Compare(c.Request.Context(), req.ReferenceImage, req.CurrentImage, "")
	if errors.Is(err, facematch.ErrMissingCredential) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error: API_KEY missing"})
		return
	}
	if err != nil {
		log.Printf("verify relay: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "details": fmt.Sprintf("%#v", err)})
		return
	}
	c.JSON(http.StatusOK, res)
}

// decodeFlat reads a JSON object whose values are scalars and renders each
// value as text. Numbers keep their literal form.
func decodeFlat(r io.Reader) (map[string]string, error) {
	var raw map[string]json.RawMessage
	if err := json.NewDecoder(r).Decode(&raw); err != nil {
		return nil, fmt.Errorf("invalid JSON body: %w", err)
	}
	out := make(map[string]string, len(raw))
	for k, v := range raw {
		v = bytes.TrimSpace(v)
		var s string
		switch {
		case bytes.Equal(v, []byte("null")):
			s = "null"
		case len(v) > 0 && v[0] == '"':
			if err := json.Unmarshal(v, &s); err != nil {
				return nil, err
			}
		default:
			s = string(v)
		}
		out[k] = s
	}
	return out, nil
}
