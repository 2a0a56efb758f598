package capture

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"testing"
)

func createTestImage(width, height int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for x := range width {
		for y := range height {
			img.Set(x, y, c)
		}
	}
	return img
}

func pngDataURL(img image.Image) string {
	var buf bytes.Buffer
	png.Encode(&buf, img)
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(buf.Bytes())
}

type fakeCamera struct {
	openErr  error
	frameErr error
	img      image.Image
	stream   *fakeStream
}

type fakeStream struct {
	cam    *fakeCamera
	closed int
}

func (c *fakeCamera) Open(context.Context) (Stream, error) {
	if c.openErr != nil {
		return nil, c.openErr
	}
	c.stream = &fakeStream{cam: c}
	return c.stream, nil
}

func (s *fakeStream) Frame(context.Context) (image.Image, error) {
	if s.cam.frameErr != nil {
		return nil, s.cam.frameErr
	}
	return s.cam.img, nil
}

func (s *fakeStream) Close() error {
	s.closed++
	return nil
}

func TestCaptureReleasesCameraOnSuccess(t *testing.T) {
	cam := &fakeCamera{img: createTestImage(1600, 1200, color.White)}
	still, err := NewChallenge(cam).Capture(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if cam.stream.closed != 1 {
		t.Errorf("closed %d times", cam.stream.closed)
	}

	decoded, format, err := image.Decode(bytes.NewReader(still.Data))
	if err != nil {
		t.Fatal(err)
	}
	if format != "jpeg" {
		t.Errorf("format = %s", format)
	}
	if b := decoded.Bounds(); b.Dx() != 800 || b.Dy() != 600 {
		t.Errorf("size = %dx%d, want 800x600", b.Dx(), b.Dy())
	}
	if !strings.HasPrefix(still.DataURL(), "data:image/jpeg;base64,") {
		t.Errorf("data url prefix: %.30s", still.DataURL())
	}
}

func TestCaptureReleasesCameraOnFrameError(t *testing.T) {
	boom := errors.New("sensor unplugged")
	cam := &fakeCamera{frameErr: boom}
	if _, err := NewChallenge(cam).Capture(context.Background()); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if cam.stream.closed != 1 {
		t.Errorf("closed %d times", cam.stream.closed)
	}
}

func TestCapturePermissionDenied(t *testing.T) {
	cam := &fakeCamera{openErr: ErrPermissionDenied}
	if _, err := NewChallenge(cam).Capture(context.Background()); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("err = %v", err)
	}
}

func TestUploadedCamera(t *testing.T) {
	ctx := context.Background()

	if _, err := NewChallenge(Uploaded{Denied: true}).Capture(ctx); !errors.Is(err, ErrPermissionDenied) {
		t.Errorf("denied err = %v", err)
	}
	if _, err := NewChallenge(Uploaded{}).Capture(ctx); !errors.Is(err, ErrNoFrame) {
		t.Errorf("empty err = %v", err)
	}
	if _, err := NewChallenge(Uploaded{DataURL: "data:image/png;base64,!!!"}).Capture(ctx); !errors.Is(err, ErrInvalidDataURL) {
		t.Errorf("garbage err = %v", err)
	}

	still, err := NewChallenge(Uploaded{DataURL: pngDataURL(createTestImage(40, 30, color.Black))}).Capture(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if still.MIMEType != "image/jpeg" || len(still.Data) == 0 {
		t.Errorf("still = %s, %d bytes", still.MIMEType, len(still.Data))
	}
}

func TestParseDataURL(t *testing.T) {
	raw := []byte{0xff, 0xd8, 0xff}
	enc := base64.StdEncoding.EncodeToString(raw)

	tests := []struct {
		in       string
		wantMIME string
		wantErr  bool
	}{
		{"data:image/png;base64," + enc, "image/png", false},
		{enc, "image/jpeg", false},
		{"data:image/png," + enc, "", true},
		{"data:image/png;base64", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		data, mime, err := ParseDataURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseDataURL(%.20q) expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseDataURL(%.20q): %v", tt.in, err)
			continue
		}
		if mime != tt.wantMIME || !bytes.Equal(data, raw) {
			t.Errorf("ParseDataURL(%.20q) = %v, %s", tt.in, data, mime)
		}
	}
}

// pngHeader returns a PNG signature and a valid IHDR chunk claiming w x h,
// with no pixel data behind it.
func pngHeader(w, h uint32) []byte {
	var b bytes.Buffer
	b.WriteString("\x89PNG\r\n\x1a\n")
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // RGBA
	binary.Write(&b, binary.BigEndian, uint32(len(ihdr)))
	chunk := append([]byte("IHDR"), ihdr...)
	b.Write(chunk)
	binary.Write(&b, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return b.Bytes()
}

func TestDecodeRejectsHugeDimensions(t *testing.T) {
	if _, err := Decode(pngHeader(12000, 12000)); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}
	if _, err := Decode(pngHeader(10, MaxSourceDimension+1)); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("tall image: err = %v", err)
	}
	if _, err := Normalize(pngHeader(12000, 12000), 800, 80); !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("Normalize: err = %v", err)
	}
}

func TestUploadedRejectsHugeDimensions(t *testing.T) {
	dataURL := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngHeader(12000, 12000))
	_, err := NewChallenge(Uploaded{DataURL: dataURL}).Capture(context.Background())
	if !errors.Is(err, ErrImageTooLarge) {
		t.Fatalf("err = %v, want ErrImageTooLarge", err)
	}
}

func TestNormalizeKeepsSmallImages(t *testing.T) {
	var buf bytes.Buffer
	jpeg.Encode(&buf, createTestImage(100, 50, color.White), nil)
	still, err := Normalize(buf.Bytes(), 800, 80)
	if err != nil {
		t.Fatal(err)
	}
	img, _, _ := image.Decode(bytes.NewReader(still.Data))
	if img.Bounds().Dx() != 100 || img.Bounds().Dy() != 50 {
		t.Errorf("size = %v", img.Bounds())
	}
}
