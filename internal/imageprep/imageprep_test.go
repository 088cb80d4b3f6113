package imageprep

import (
	"bytes"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"hash/crc32"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"testing"
)

func pngBase64(t *testing.T, w, h int) string {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestNormalize_SmallPNGBecomesJPEG(t *testing.T) {
	img, err := Normalize("data:image/png;base64,"+pngBase64(t, 40, 20), Options{})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if img.SourceType != "image/png" || img.Resized {
		t.Errorf("unexpected result: type=%s resized=%v", img.SourceType, img.Resized)
	}
	if img.Width != 40 || img.Height != 20 {
		t.Errorf("size = %dx%d", img.Width, img.Height)
	}
	if _, err := jpeg.Decode(bytes.NewReader(img.Data)); err != nil {
		t.Fatalf("output is not a JPEG: %v", err)
	}
	if _, err := base64.StdEncoding.DecodeString(img.Base64()); err != nil {
		t.Fatalf("Base64 output invalid: %v", err)
	}
}

func TestNormalize_DownscalesLongestSide(t *testing.T) {
	img, err := Normalize(pngBase64(t, 300, 150), Options{MaxDimension: 100})
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if !img.Resized || img.Width != 100 || img.Height != 50 {
		t.Errorf("expected 100x50 resized, got %dx%d resized=%v", img.Width, img.Height, img.Resized)
	}
}

func TestNormalize_Errors(t *testing.T) {
	gifOnly := Options{AllowedTypes: []string{"image/gif"}}

	cases := []struct {
		name string
		in   string
		opts Options
		want error
	}{
		{"empty", "", Options{}, ErrEmptyImage},
		{"empty data uri", "data:image/png;base64,", Options{}, ErrEmptyImage},
		{"bad base64", "!!!not-base64!!!", Options{}, ErrInvalidImage},
		{"not an image", base64.StdEncoding.EncodeToString([]byte("plain text, not pixels")), Options{}, ErrUnsupportedType},
		{"disallowed type", pngBase64(t, 4, 4), gifOnly, ErrUnsupportedType},
		{"too large", pngBase64(t, 64, 64), Options{MaxBytes: 16}, ErrTooLarge},
		{"truncated png", base64.StdEncoding.EncodeToString([]byte("\x89PNG\r\n\x1a\n\x00\x00")), Options{}, ErrInvalidImage},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Normalize(c.in, c.opts)
			if !errors.Is(err, c.want) {
				t.Fatalf("expected %v, got %v", c.want, err)
			}
		})
	}
}

// pngHeaderOnly returns a PNG signature and IHDR chunk declaring w x h
// grayscale pixels, without any image data.
func pngHeaderOnly(w, h uint32) []byte {
	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")

	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth; color type, compression, filter and interlace stay 0

	chunk := append([]byte("IHDR"), ihdr...)
	_ = binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	_ = binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestNormalize_RejectsHugeCanvasBeforeDecode(t *testing.T) {
	in := base64.StdEncoding.EncodeToString(pngHeaderOnly(16000, 16000))

	_, err := Normalize(in, Options{})
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}

func TestNormalize_PixelBudget(t *testing.T) {
	in := pngBase64(t, 100, 100)

	if _, err := Normalize(in, Options{MaxPixels: 9_999}); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge below the budget, got %v", err)
	}
	if _, err := Normalize(in, Options{MaxPixels: 10_000}); err != nil {
		t.Fatalf("an image exactly at the budget should pass: %v", err)
	}
}

func TestFit(t *testing.T) {
	cases := []struct{ w, h, limit, ww, wh int }{
		{100, 50, 200, 100, 50},
		{4000, 3000, 2048, 2048, 1536},
		{1000, 4000, 2048, 512, 2048},
		{5000, 1, 100, 100, 1},
	}
	for _, c := range cases {
		if w, h := fit(c.w, c.h, c.limit); w != c.ww || h != c.wh {
			t.Errorf("fit(%d,%d,%d) = %dx%d, want %dx%d", c.w, c.h, c.limit, w, h, c.ww, c.wh)
		}
	}
}
