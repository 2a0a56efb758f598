// Package qrcode renders the feedback deep links printed on office posters.
package qrcode

import (
	"errors"
	"fmt"
	"image/png"
	"io"
	"net/url"
	"strings"

	"github.com/boombuler/barcode"
	"github.com/boombuler/barcode/qr"
)

// DefaultSize is the rendered edge length in pixels.
const DefaultSize = 512

var ErrInvalidBaseURL = errors.New("base url must be absolute")

// FeedbackURL builds the deep link that opens the feedback view, optionally
// preselecting an employee.
func FeedbackURL(base, employeeID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(base))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", ErrInvalidBaseURL
	}
	q := u.Query()
	q.Set("mode", "feedback")
	if employeeID != "" {
		q.Set("emp", employeeID)
	} else {
		q.Del("emp")
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// WritePNG encodes content as a square QR code of size pixels.
func WritePNG(w io.Writer, content string, size int) error {
	if size <= 0 {
		size = DefaultSize
	}
	code, err := qr.Encode(content, qr.M, qr.Auto)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}
	scaled, err := barcode.Scale(code, size, size)
	if err != nil {
		return fmt.Errorf("scale qr: %w", err)
	}
	return png.Encode(w, scaled)
}
