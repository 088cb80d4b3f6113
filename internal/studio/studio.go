// Package studio runs the DALL-E generation workflow: request validation,
// prompt enhancement, per-image generation with partial-failure tolerance,
// and a capped generation history.
package studio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/redai/design-gateway/internal/providers"
)

var (
	ErrValidation     = errors.New("studio: invalid request")
	ErrNotConfigured  = errors.New("studio: OpenAI client not configured")
	ErrNoImages       = errors.New("studio: failed to generate any images")
	ErrRecordNotFound = errors.New("studio: generation record not found")
)

// ValidationError carries a user-facing message and matches ErrValidation.
type ValidationError struct{ Msg string }

func (e *ValidationError) Error() string { return e.Msg }
func (e *ValidationError) Unwrap() error { return ErrValidation }

const (
	MaxImages = 4

	DefaultQuality = "standard"
	DefaultStyle   = "vivid"

	DefaultHistoryLimit = 10
	MaxHistoryLimit     = 50

	referencePrefix = "Based on the reference image provided, create: "
	referenceSuffix = ". Maintain the overall composition and lighting style of the reference while applying the requested changes."
	qualitySuffix   = " High quality, professional photography, detailed and realistic, sharp focus, good lighting."
)

var (
	qualities = []string{"standard", "hd"}
	styles    = []string{"vivid", "natural"}
)

// Generator produces a single image. *openai.Client satisfies it.
type Generator interface {
	GenerateImage(ctx context.Context, req providers.DalleRequest) (*providers.GeneratedImage, error)
}

type GenerateRequest struct {
	Prompt         string
	ImageCount     int
	Quality        string
	Style          string
	ReferenceImage string
}

type Image struct {
	URL           string `json:"url"`
	RevisedPrompt string `json:"revised_prompt"`
	Index         int    `json:"index"`
}

type Record struct {
	ID                string    `json:"id"`
	Timestamp         time.Time `json:"timestamp"`
	OriginalPrompt    string    `json:"original_prompt"`
	EnhancedPrompt    string    `json:"enhanced_prompt"`
	ImageCount        int       `json:"image_count"`
	GeneratedCount    int       `json:"generated_count"`
	Images            []Image   `json:"images"`
	Quality           string    `json:"quality"`
	Style             string    `json:"style"`
	HasReferenceImage bool      `json:"has_reference_image"`
}

type Metadata struct {
	OriginalPrompt string    `json:"original_prompt"`
	EnhancedPrompt string    `json:"enhanced_prompt"`
	GeneratedCount int       `json:"generated_count"`
	RequestedCount int       `json:"requested_count"`
	Quality        string    `json:"quality"`
	Style          string    `json:"style"`
	Timestamp      time.Time `json:"timestamp"`
}

type Result struct {
	Success      bool     `json:"success"`
	GenerationID string   `json:"generation_id"`
	Images       []string `json:"images"`
	Generation   *Record  `json:"generation"`
	Metadata     Metadata `json:"metadata"`
}

type Stats struct {
	TotalGenerations           int            `json:"total_generations"`
	TotalImages                int            `json:"total_images"`
	StyleDistribution          map[string]int `json:"style_distribution"`
	QualityDistribution        map[string]int `json:"quality_distribution"`
	AverageImagesPerGeneration float64        `json:"average_images_per_generation"`
}

type Service struct {
	gen     Generator
	history HistoryStore
	logger  *slog.Logger
	now     func() time.Time
}

// New returns a Service. gen may be nil; Generate and Regenerate then return
// ErrNotConfigured while History and Stats keep working.
func New(gen Generator, history HistoryStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if history == nil {
		history = NewMemoryHistory(DefaultHistoryCap)
	}
	return &Service{gen: gen, history: history, logger: logger, now: time.Now}
}

func (s *Service) Configured() bool { return s.gen != nil }

// Validate fills defaults for quality and style and checks every field.
func Validate(req *GenerateRequest) error {
	req.Prompt = strings.TrimSpace(req.Prompt)
	if req.Prompt == "" {
		return &ValidationError{"Prompt is required"}
	}
	if req.ImageCount < 1 || req.ImageCount > MaxImages {
		return &ValidationError{"Image count must be between 1 and 4"}
	}
	if req.Quality == "" {
		req.Quality = DefaultQuality
	}
	if !slices.Contains(qualities, req.Quality) {
		return &ValidationError{"Quality must be 'standard' or 'hd'"}
	}
	if req.Style == "" {
		req.Style = DefaultStyle
	}
	if !slices.Contains(styles, req.Style) {
		return &ValidationError{"Style must be 'vivid' or 'natural'"}
	}
	return nil
}

// EnhancePrompt adds the reference-image framing when one is attached and
// always appends the photographic quality descriptors.
func EnhancePrompt(prompt string, hasReference bool) string {
	p := strings.TrimSpace(prompt)
	if hasReference {
		p = referencePrefix + p + referenceSuffix
	}
	return p + qualitySuffix
}

// Generate creates req.ImageCount images one at a time. Individual failures
// are logged and skipped; ErrNoImages is returned only when none succeed.
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*Result, error) {
	if err := Validate(&req); err != nil {
		return nil, err
	}
	if s.gen == nil {
		return nil, ErrNotConfigured
	}

	hasRef := req.ReferenceImage != ""
	enhanced := EnhancePrompt(req.Prompt, hasRef)

	images := make([]Image, 0, req.ImageCount)
	var lastErr error
	for i := 0; i < req.ImageCount; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		img, err := s.gen.GenerateImage(ctx, providers.DalleRequest{
			Prompt:  enhanced,
			Quality: req.Quality,
			Style:   req.Style,
		})
		if err != nil {
			lastErr = err
			s.logger.WarnContext(ctx, "studio_image_failed",
				slog.Int("index", i),
				slog.Int("requested", req.ImageCount),
				slog.String("error", err.Error()),
			)
			continue
		}
		if img == nil || img.URL == "" {
			s.logger.WarnContext(ctx, "studio_image_empty", slog.Int("index", i))
			continue
		}

		revised := img.RevisedPrompt
		if revised == "" {
			revised = enhanced
		}
		images = append(images, Image{URL: img.URL, RevisedPrompt: revised, Index: i})
	}

	if len(images) == 0 {
		if lastErr != nil {
			return nil, fmt.Errorf("%w: %w", ErrNoImages, lastErr)
		}
		return nil, ErrNoImages
	}

	rec := &Record{
		ID:                uuid.NewString(),
		Timestamp:         s.now().UTC(),
		OriginalPrompt:    req.Prompt,
		EnhancedPrompt:    enhanced,
		ImageCount:        req.ImageCount,
		GeneratedCount:    len(images),
		Images:            images,
		Quality:           req.Quality,
		Style:             req.Style,
		HasReferenceImage: hasRef,
	}

	if err := s.history.Append(ctx, *rec); err != nil {
		// The images exist upstream; losing the history entry should not fail the call.
		s.logger.WarnContext(ctx, "studio_history_append_failed",
			slog.String("generation_id", rec.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "studio_generation_complete",
		slog.String("generation_id", rec.ID),
		slog.Int("requested", rec.ImageCount),
		slog.Int("generated", rec.GeneratedCount),
	)

	urls := make([]string, len(images))
	for i, im := range images {
		urls[i] = im.URL
	}

	return &Result{
		Success:      true,
		GenerationID: rec.ID,
		Images:       urls,
		Generation:   rec,
		Metadata: Metadata{
			OriginalPrompt: rec.OriginalPrompt,
			EnhancedPrompt: rec.EnhancedPrompt,
			GeneratedCount: rec.GeneratedCount,
			RequestedCount: rec.ImageCount,
			Quality:        rec.Quality,
			Style:          rec.Style,
			Timestamp:      rec.Timestamp,
		},
	}, nil
}

// History returns the last limit records, oldest first, and the total count.
// A zero limit means DefaultHistoryLimit; others are clamped to 1..MaxHistoryLimit.
func (s *Service) History(ctx context.Context, limit int) ([]Record, int, error) {
	return s.history.Recent(ctx, ClampLimit(limit))
}

func ClampLimit(limit int) int {
	if limit == 0 {
		return DefaultHistoryLimit
	}
	return min(max(limit, 1), MaxHistoryLimit)
}

// Regenerate replays a stored generation without its reference image.
func (s *Service) Regenerate(ctx context.Context, id string) (*Result, error) {
	if s.gen == nil {
		return nil, ErrNotConfigured
	}

	rec, err := s.history.Find(ctx, id)
	if err != nil {
		return nil, err
	}

	return s.Generate(ctx, GenerateRequest{
		Prompt:     rec.OriginalPrompt,
		ImageCount: rec.ImageCount,
		Quality:    rec.Quality,
		Style:      rec.Style,
	})
}

func (s *Service) Stats(ctx context.Context) (Stats, error) {
	records, err := s.history.All(ctx)
	if err != nil {
		return Stats{}, err
	}

	st := Stats{
		TotalGenerations:    len(records),
		StyleDistribution:   map[string]int{},
		QualityDistribution: map[string]int{},
	}
	for _, r := range records {
		st.TotalImages += r.GeneratedCount
		st.StyleDistribution[orUnknown(r.Style)]++
		st.QualityDistribution[orUnknown(r.Quality)]++
	}

	avg := float64(st.TotalImages) / float64(max(st.TotalGenerations, 1))
	st.AverageImagesPerGeneration = math.Round(avg*100) / 100

	return st, nil
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
