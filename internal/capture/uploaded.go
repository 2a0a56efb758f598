package capture

import (
	"context"
	"fmt"
	"image"
)

// Uploaded is a Camera backed by a frame the browser captured and posted.
// Denied reports that the user refused camera access on the device.
type Uploaded struct {
	DataURL string
	Denied  bool
}

func (u Uploaded) Open(context.Context) (Stream, error) {
	if u.Denied {
		return nil, ErrPermissionDenied
	}
	if u.DataURL == "" {
		return nil, ErrNoFrame
	}
	return &uploadedStream{dataURL: u.DataURL}, nil
}

type uploadedStream struct {
	dataURL string
	closed  bool
}

func (s *uploadedStream) Frame(context.Context) (image.Image, error) {
	if s.closed {
		return nil, fmt.Errorf("frame after close: %w", ErrNoFrame)
	}
	data, _, err := ParseDataURL(s.dataURL)
	if err != nil {
		return nil, err
	}
	img, err := Decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

func (s *uploadedStream) Close() error {
	s.closed = true
	return nil
}
