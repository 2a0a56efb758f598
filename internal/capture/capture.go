// Package capture drives a single-frame biometric challenge: open a camera,
// take one still, always release the camera.
package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png"
	"strings"

	_ "golang.org/x/image/bmp"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

const (
	DefaultMaxSize = 800
	DefaultQuality = 80

	// MaxSourceDimension bounds the width and height of an image accepted for decoding.
	MaxSourceDimension = 4096
)

var (
	// ErrPermissionDenied is terminal for the capture attempt.
	ErrPermissionDenied = errors.New("camera permission denied")
	// ErrNoFrame means no still has been provided yet.
	ErrNoFrame          = errors.New("no frame captured")
	ErrInvalidDataURL   = errors.New("invalid image data url")
	ErrImageTooLarge    = errors.New("image dimensions too large")
)

// Camera grants exclusive access to a video source.
type Camera interface {
	Open(ctx context.Context) (Stream, error)
}

// Stream is an open camera. Close releases it.
type Stream interface {
	Frame(ctx context.Context) (image.Image, error)
	Close() error
}

// Still is one encoded frame.
type Still struct {
	Data     []byte
	MIMEType string
}

// DataURL renders the still as a base64 data URL.
func (s Still) DataURL() string {
	if len(s.Data) == 0 {
		return ""
	}
	mime := s.MIMEType
	if mime == "" {
		mime = "image/jpeg"
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(s.Data)
}

// Challenge captures one still from Camera.
type Challenge struct {
	Camera  Camera
	MaxSize int
	Quality int
}

// NewChallenge uses the default size and JPEG quality.
func NewChallenge(cam Camera) *Challenge {
	return &Challenge{Camera: cam, MaxSize: DefaultMaxSize, Quality: DefaultQuality}
}

// Capture opens the camera, grabs a frame and releases the camera whether or not the frame succeeded.
func (c *Challenge) Capture(ctx context.Context) (Still, error) {
	stream, err := c.Camera.Open(ctx)
	if err != nil {
		return Still{}, err
	}
	defer stream.Close()

	img, err := stream.Frame(ctx)
	if err != nil {
		return Still{}, err
	}
	return Encode(img, c.MaxSize, c.Quality)
}

// Encode downscales img to fit maxSize and encodes it as JPEG.
func Encode(img image.Image, maxSize, quality int) (Still, error) {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	if quality <= 0 {
		quality = DefaultQuality
	}

	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	if width == 0 || height == 0 {
		return Still{}, ErrNoFrame
	}

	out := img
	if width > maxSize || height > maxSize {
		var w, h int
		if width > height {
			w = maxSize
			h = int(float64(height) * float64(maxSize) / float64(width))
		} else {
			h = maxSize
			w = int(float64(width) * float64(maxSize) / float64(height))
		}
		resized := image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))
		draw.CatmullRom.Scale(resized, resized.Bounds(), img, bounds, draw.Over, nil)
		out = resized
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: quality}); err != nil {
		return Still{}, fmt.Errorf("encode still: %w", err)
	}
	return Still{Data: buf.Bytes(), MIMEType: "image/jpeg"}, nil
}

// Normalize decodes any supported image and re-encodes it as a bounded JPEG still.
func Normalize(data []byte, maxSize, quality int) (Still, error) {
	img, err := Decode(data)
	if err != nil {
		return Still{}, err
	}
	return Encode(img, maxSize, quality)
}

// Decode reads the image header first and refuses sources larger than
// MaxSourceDimension on either side before any pixel buffer is allocated.
func Decode(data []byte) (image.Image, error) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	if cfg.Width > MaxSourceDimension || cfg.Height > MaxSourceDimension {
		return nil, fmt.Errorf("%w: %dx%d", ErrImageTooLarge, cfg.Width, cfg.Height)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}
	return img, nil
}

// NormalizeDataURL is Normalize for a data URL input.
func NormalizeDataURL(s string) (Still, error) {
	data, _, err := ParseDataURL(s)
	if err != nil {
		return Still{}, err
	}
	return Normalize(data, DefaultMaxSize, DefaultQuality)
}

// ParseDataURL decodes a base64 image data URL. Bare base64 is accepted and treated as JPEG.
func ParseDataURL(s string) ([]byte, string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, "", ErrInvalidDataURL
	}
	mime := "image/jpeg"
	if strings.HasPrefix(s, "data:") {
		comma := strings.IndexByte(s, ',')
		if comma < 0 {
			return nil, "", ErrInvalidDataURL
		}
		meta := s[len("data:"):comma]
		if !strings.HasSuffix(meta, ";base64") {
			return nil, "", ErrInvalidDataURL
		}
		if m := strings.TrimSuffix(meta, ";base64"); m != "" {
			mime = m
		}
		s = s[comma+1:]
	}
	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidDataURL, err)
	}
	return data, mime, nil
}
