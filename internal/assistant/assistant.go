// Package assistant implements the design assistant: floor-plan analysis,
// design suggestions and chat. Every operation degrades to a deterministic
// mock payload when the model is unavailable or replies with something that
// cannot be parsed.
package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/redai/design-gateway/internal/cache"
	"github.com/redai/design-gateway/internal/imageprep"
	"github.com/redai/design-gateway/internal/metrics"
	"github.com/redai/design-gateway/internal/providers"
	"github.com/redai/design-gateway/internal/providers/azure"
)

const (
	chatMaxTokens        = 1000
	suggestionsMaxTokens = 10000
	temperature          = 0.7

	defaultCacheTTL = time.Hour

	// DefaultBudget is used by the design endpoint when the request has none.
	DefaultBudget = 50000

	ChatApology = "Sorry, I can't answer right now. Please try again later."
)

var errNoJSON = errors.New("assistant: reply contains no JSON object")

// ChatClient is the model backend. *azure.Client satisfies it.
type ChatClient interface {
	ChatCompletion(ctx context.Context, msgs []providers.Message, maxTokens int, temperature float64) (*azure.ChatResult, error)
	AnalyzeImage(ctx context.Context, imageBase64, prompt string) (*azure.VisionResult, error)
}

// keySwitcher is implemented by clients with a backup credential.
type keySwitcher interface {
	SwitchToBackupKey() bool
}

type Assistant struct {
	client   ChatClient
	cache    cache.Cache
	cacheTTL time.Duration
	metrics  *metrics.Registry
	logger   *slog.Logger
	imgOpts  imageprep.Options

	// fetchTimeout bounds a shared suggestions call, which outlives any
	// single caller's context.
	fetchTimeout time.Duration
	group        singleflight.Group
}

type Option func(*Assistant)

func WithCache(c cache.Cache, ttl time.Duration) Option {
	return func(a *Assistant) {
		a.cache = c
		if ttl > 0 {
			a.cacheTTL = ttl
		}
	}
}

func WithMetrics(m *metrics.Registry) Option {
	return func(a *Assistant) { a.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(a *Assistant) { a.logger = l }
}

// WithFetchTimeout bounds the shared upstream call behind DesignSuggestions.
func WithFetchTimeout(d time.Duration) Option {
	return func(a *Assistant) {
		if d > 0 {
			a.fetchTimeout = d
		}
	}
}

func WithImageOptions(o imageprep.Options) Option {
	return func(a *Assistant) { a.imgOpts = o }
}

// New builds an Assistant. client may be nil, in which case every operation
// answers from mocks.
func New(client ChatClient, opts ...Option) *Assistant {
	a := &Assistant{
		client:   client,
		cacheTTL: defaultCacheTTL,
		logger:   slog.Default(),

		fetchTimeout: providers.ProviderTimeout,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

func (a *Assistant) Configured() bool { return a.client != nil }

type FloorPlanInput struct {
	ImageData      string
	Filename       string
	RoomType       string
	AdditionalInfo string
}

type Room struct {
	Type        string  `json:"type"`
	Area        float64 `json:"area"`
	Description string  `json:"description"`
}

type CostRange struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type FloorPlanAnalysis struct {
	RoomsDetected   int       `json:"rooms_detected"`
	TotalArea       float64   `json:"total_area"`
	Rooms           []Room    `json:"rooms"`
	Suggestions     []string  `json:"suggestions"`
	RenovationIdeas []string  `json:"renovation_ideas"`
	EstimatedCost   CostRange `json:"estimated_cost"`
	Mock            bool      `json:"mock,omitempty"`
}

// AnalyzeFloorPlan normalizes the uploaded image and asks the vision model
// for a structured analysis. Only an unusable image is returned as an error;
// model failures yield the mock analysis.
func (a *Assistant) AnalyzeFloorPlan(ctx context.Context, in FloorPlanInput) (*FloorPlanAnalysis, error) {
	img, err := imageprep.Normalize(in.ImageData, a.imgOpts)
	if err != nil {
		return nil, err
	}

	if a.client == nil {
		return a.mockAnalysis(ctx, "not_configured"), nil
	}

	prompt := floorPlanPrompt(in.RoomType, in.AdditionalInfo)
	res, err := withBackupKey(ctx, a, "analyze_floor_plan", func() (*azure.VisionResult, error) {
		return a.client.AnalyzeImage(ctx, img.Base64(), prompt)
	})
	if err != nil {
		a.logger.WarnContext(ctx, "floor_plan_analysis_failed",
			slog.String("filename", in.Filename),
			slog.String("error", err.Error()),
		)
		return a.mockAnalysis(ctx, "upstream_error"), nil
	}
	a.addTokens("analyze_floor_plan", res.TokensUsed)

	var out FloorPlanAnalysis
	if err := decodeFirstObject(res.Analysis, &out); err != nil {
		a.logger.InfoContext(ctx, "floor_plan_reply_not_json", slog.String("filename", in.Filename))
		return a.mockAnalysis(ctx, "not_json"), nil
	}
	return &out, nil
}

type FurnitureItem struct {
	Item        string  `json:"item"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
}

type Material struct {
	Type        string  `json:"type"`
	PricePerSqm float64 `json:"price_per_sqm"`
	Description string  `json:"description"`
}

type DesignSuggestions struct {
	ColorScheme   []string        `json:"color_scheme"`
	Furniture     []FurnitureItem `json:"furniture"`
	Materials     []Material      `json:"materials"`
	TotalEstimate float64         `json:"total_estimate"`
	LayoutIdeas   []string        `json:"layout_ideas"`
	Mock          bool            `json:"mock,omitempty"`
}

// DesignSuggestions returns a colour scheme, furniture, materials and an
// estimate for a room. Live answers are cached per (room, style, budget);
// concurrent identical misses share one upstream call.
func (a *Assistant) DesignSuggestions(ctx context.Context, roomType, style string, budget int) (*DesignSuggestions, error) {
	if a.client == nil {
		return a.mockSuggestions(ctx, "not_configured"), nil
	}

	key := cache.Key("suggestions", roomType, style, strconv.Itoa(budget))
	if a.cache != nil {
		if data, ok := a.cache.Get(ctx, key); ok {
			var cached DesignSuggestions
			if json.Unmarshal(data, &cached) == nil {
				a.cacheHit()
				return &cached, nil
			}
		}
		a.cacheMiss()
	}

	// The shared call runs detached so one caller going away does not fail
	// the others waiting on it.
	ch := a.group.DoChan(key, func() (any, error) {
		fetchCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.fetchTimeout)
		defer cancel()
		return a.fetchSuggestions(fetchCtx, key, roomType, style, budget)
	})

	var (
		v   any
		err error
	)
	select {
	case res := <-ch:
		v, err = res.Val, res.Err
	case <-ctx.Done():
		err = ctx.Err()
	}
	if err != nil {
		a.logger.WarnContext(ctx, "design_suggestions_failed",
			slog.String("room_type", roomType),
			slog.String("style", style),
			slog.String("error", err.Error()),
		)
		return a.mockSuggestions(ctx, "upstream_error"), nil
	}

	out := *v.(*DesignSuggestions)
	return &out, nil
}

func (a *Assistant) fetchSuggestions(ctx context.Context, key, roomType, style string, budget int) (*DesignSuggestions, error) {
	msgs := []providers.Message{{Role: "user", Content: suggestionsPrompt(roomType, style, budget)}}
	res, err := withBackupKey(ctx, a, "design_suggestions", func() (*azure.ChatResult, error) {
		return a.client.ChatCompletion(ctx, msgs, suggestionsMaxTokens, temperature)
	})
	if err != nil {
		return nil, err
	}
	a.addTokens("design_suggestions", res.TokensUsed)

	var out DesignSuggestions
	if err := decodeFirstObject(res.Content, &out); err != nil {
		return nil, err
	}

	if a.cache != nil {
		if data, err := json.Marshal(out); err == nil {
			_ = a.cache.Set(ctx, key, data, a.cacheTTL)
			a.cacheSet()
		}
	}
	return &out, nil
}

// Chat answers a free-form design question. With no model configured the
// keyword responder answers; upstream failures produce ChatApology.
func (a *Assistant) Chat(ctx context.Context, message string, chatCtx map[string]any, conversationID string) string {
	if a.client == nil {
		a.recordMock("chat")
		return MockChatReply(message)
	}

	msgs := []providers.Message{{Role: "system", Content: chatSystemPrompt}}
	if len(chatCtx) > 0 {
		if data, err := json.Marshal(chatCtx); err == nil {
			msgs = append(msgs, providers.Message{Role: "user", Content: "Context: " + string(data)})
		}
	}
	msgs = append(msgs, providers.Message{Role: "user", Content: message})

	res, err := withBackupKey(ctx, a, "chat", func() (*azure.ChatResult, error) {
		return a.client.ChatCompletion(ctx, msgs, chatMaxTokens, temperature)
	})
	if err != nil {
		a.logger.WarnContext(ctx, "chat_failed",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		return ChatApology
	}
	a.addTokens("chat", res.TokensUsed)
	return res.Content
}

// withBackupKey runs fn and, if it was rate limited and the client can switch
// to a backup key, switches and runs it exactly once more.
func withBackupKey[T any](ctx context.Context, a *Assistant, op string, fn func() (T, error)) (T, error) {
	res, err := fn()
	if err == nil || !azure.IsRateLimited(err) {
		return res, err
	}

	ks, ok := a.client.(keySwitcher)
	if !ok || !ks.SwitchToBackupKey() {
		return res, err
	}

	a.logger.WarnContext(ctx, "rate_limited_retry_with_backup_key", slog.String("operation", op))
	if a.metrics != nil {
		a.metrics.RecordKeySwitch()
	}
	return fn()
}

// decodeFirstObject decodes the first JSON object in s into v. Models often
// wrap JSON in prose or code fences.
func decodeFirstObject(s string, v any) error {
	i := bytes.IndexByte([]byte(s), '{')
	if i < 0 {
		return errNoJSON
	}
	if err := json.NewDecoder(bytes.NewReader([]byte(s[i:]))).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errNoJSON, err)
	}
	return nil
}

func (a *Assistant) mockAnalysis(ctx context.Context, reason string) *FloorPlanAnalysis {
	a.recordMock("analyze_floor_plan")
	a.logger.InfoContext(ctx, "mock_fallback", slog.String("operation", "analyze_floor_plan"), slog.String("reason", reason))
	return MockFloorPlanAnalysis()
}

func (a *Assistant) mockSuggestions(ctx context.Context, reason string) *DesignSuggestions {
	a.recordMock("design_suggestions")
	a.logger.InfoContext(ctx, "mock_fallback", slog.String("operation", "design_suggestions"), slog.String("reason", reason))
	return MockDesignSuggestions()
}

func (a *Assistant) recordMock(op string) {
	if a.metrics != nil {
		a.metrics.RecordMockFallback(op)
	}
}

func (a *Assistant) addTokens(op string, n int) {
	if a.metrics != nil {
		a.metrics.AddTokens(op, n)
	}
}

func (a *Assistant) cacheHit() {
	if a.metrics != nil {
		a.metrics.CacheGetHit()
	}
}

func (a *Assistant) cacheMiss() {
	if a.metrics != nil {
		a.metrics.CacheGetMiss()
	}
}

func (a *Assistant) cacheSet() {
	if a.metrics != nil {
		a.metrics.CacheSetOK()
	}
}
