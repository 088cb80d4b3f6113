// Package imageprep validates uploaded images and normalizes them for the
// vision deployment: bounded size, known type, longest side capped, JPEG out.
package imageprep

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"net/http"
	"slices"
	"strings"

	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"
)

var (
	ErrEmptyImage      = errors.New("imageprep: empty image data")
	ErrTooLarge        = errors.New("imageprep: image exceeds the maximum file size")
	ErrUnsupportedType = errors.New("imageprep: unsupported image type")
	ErrInvalidImage    = errors.New("imageprep: invalid image data")
)

const (
	DefaultMaxBytes     = 10 << 20
	DefaultMaxDimension = 2048
	// DefaultMaxPixels bounds the decoded source (width x height).
	DefaultMaxPixels = 40_000_000
	jpegQuality      = 90
)

// DefaultAllowedTypes are the content types accepted when Options leaves them unset.
var DefaultAllowedTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

type Options struct {
	MaxBytes     int64
	AllowedTypes []string
	MaxDimension int
	MaxPixels    int
}

func (o Options) withDefaults() Options {
	if o.MaxBytes <= 0 {
		o.MaxBytes = DefaultMaxBytes
	}
	if len(o.AllowedTypes) == 0 {
		o.AllowedTypes = DefaultAllowedTypes
	}
	if o.MaxDimension <= 0 {
		o.MaxDimension = DefaultMaxDimension
	}
	if o.MaxPixels <= 0 {
		o.MaxPixels = DefaultMaxPixels
	}
	return o
}

// Image is a normalized JPEG.
type Image struct {
	Data       []byte
	Width      int
	Height     int
	SourceType string
	Resized    bool
}

// Base64 returns the JPEG bytes as standard base64 without a data: prefix.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Normalize decodes a base64 upload (optionally a data: URI), validates it and
// re-encodes it as JPEG with the longest side at most opts.MaxDimension.
func Normalize(b64 string, opts Options) (*Image, error) {
	opts = opts.withDefaults()

	raw, err := decodeBase64(b64)
	if err != nil {
		return nil, err
	}
	if int64(len(raw)) > opts.MaxBytes {
		return nil, fmt.Errorf("%w: %d bytes > %d", ErrTooLarge, len(raw), opts.MaxBytes)
	}

	ct := http.DetectContentType(raw)
	if !slices.Contains(opts.AllowedTypes, ct) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, ct)
	}

	// Check the header first: a tiny file can declare a huge canvas.
	cfg, _, err := image.DecodeConfig(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrInvalidImage)
	}
	if int64(cfg.Width)*int64(cfg.Height) > int64(opts.MaxPixels) {
		return nil, fmt.Errorf("%w: %dx%d exceeds %d pixels", ErrTooLarge, cfg.Width, cfg.Height, opts.MaxPixels)
	}

	src, _, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidImage, err)
	}

	b := src.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, fmt.Errorf("%w: zero dimensions", ErrInvalidImage)
	}

	w, h := fit(b.Dx(), b.Dy(), opts.MaxDimension)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	// JPEG has no alpha; transparent regions become white instead of black.
	draw.Draw(dst, dst.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	draw.CatmullRom.Scale(dst, dst.Bounds(), src, b, draw.Over, nil)

	var out bytes.Buffer
	if err := jpeg.Encode(&out, dst, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("imageprep: encode jpeg: %w", err)
	}

	return &Image{
		Data:       out.Bytes(),
		Width:      w,
		Height:     h,
		SourceType: ct,
		Resized:    w != b.Dx() || h != b.Dy(),
	}, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "data:") {
		if i := strings.Index(s, ";base64,"); i >= 0 {
			s = s[i+len(";base64,"):]
		}
	}
	if s == "" {
		return nil, ErrEmptyImage
	}

	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		// Browsers sometimes drop the padding.
		if raw, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "=")); err != nil {
			return nil, fmt.Errorf("%w: bad base64: %v", ErrInvalidImage, err)
		}
	}
	if len(raw) == 0 {
		return nil, ErrEmptyImage
	}
	return raw, nil
}

// fit scales (w, h) so the longest side is at most limit, keeping aspect ratio.
func fit(w, h, limit int) (int, int) {
	longest := max(w, h)
	if longest <= limit {
		return w, h
	}
	scale := float64(limit) / float64(longest)
	return max(1, int(float64(w)*scale+0.5)), max(1, int(float64(h)*scale+0.5))
}
