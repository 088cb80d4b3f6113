package assistant

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/redai/design-gateway/internal/cache"
	"github.com/redai/design-gateway/internal/imageprep"
	"github.com/redai/design-gateway/internal/metrics"
	"github.com/redai/design-gateway/internal/providers"
	"github.com/redai/design-gateway/internal/providers/azure"
)

type fakeClient struct {
	chat   func(ctx context.Context, msgs []providers.Message, maxTokens int) (*azure.ChatResult, error)
	vision func(ctx context.Context, b64, prompt string) (*azure.VisionResult, error)

	switched  atomic.Int32
	canSwitch bool
}

func (f *fakeClient) ChatCompletion(ctx context.Context, msgs []providers.Message, maxTokens int, _ float64) (*azure.ChatResult, error) {
	return f.chat(ctx, msgs, maxTokens)
}

func (f *fakeClient) AnalyzeImage(ctx context.Context, b64, prompt string) (*azure.VisionResult, error) {
	return f.vision(ctx, b64, prompt)
}

func (f *fakeClient) SwitchToBackupKey() bool {
	if !f.canSwitch || f.switched.Load() > 0 {
		return false
	}
	f.switched.Add(1)
	return true
}

var rateLimited = &providers.ProviderError{Provider: providers.Azure, StatusCode: http.StatusTooManyRequests, Message: "rate limited"}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func floorPlanB64(t *testing.T) string {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewGray(image.Rect(0, 0, 32, 24))); err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes())
}

func TestAnalyzeFloorPlan_ParsesJSONInProse(t *testing.T) {
	var gotPrompt, gotImage string
	client := &fakeClient{vision: func(_ context.Context, b64, prompt string) (*azure.VisionResult, error) {
		gotImage, gotPrompt = b64, prompt
		return &azure.VisionResult{
			Analysis:   "Here you go:\n```json\n{\"rooms_detected\": 2, \"total_area\": 48, \"rooms\": [{\"type\": \"studio\", \"area\": 30}], \"estimated_cost\": {\"min\": 1, \"max\": 2}}\n```",
			TokensUsed: 120,
		}, nil
	}}
	a := New(client, WithLogger(quietLogger()))

	got, err := a.AnalyzeFloorPlan(context.Background(), FloorPlanInput{ImageData: floorPlanB64(t), Filename: "plan.png", RoomType: "kitchen"})
	if err != nil {
		t.Fatalf("AnalyzeFloorPlan: %v", err)
	}
	if got.Mock || got.RoomsDetected != 2 || got.TotalArea != 48 || got.Rooms[0].Type != "studio" {
		t.Fatalf("unexpected analysis: %+v", got)
	}
	if !strings.Contains(gotPrompt, "kitchen") {
		t.Error("room type should be part of the prompt")
	}
	raw, err := base64.StdEncoding.DecodeString(gotImage)
	if err != nil || http.DetectContentType(raw) != "image/jpeg" {
		t.Errorf("expected a normalized JPEG to be sent, got %s (%v)", http.DetectContentType(raw), err)
	}
}

func TestAnalyzeFloorPlan_Fallbacks(t *testing.T) {
	cases := []struct {
		name   string
		client ChatClient
	}{
		{"no client", nil},
		{"upstream error", &fakeClient{vision: func(context.Context, string, string) (*azure.VisionResult, error) {
			return nil, errors.New("timeout")
		}}},
		{"not json", &fakeClient{vision: func(context.Context, string, string) (*azure.VisionResult, error) {
			return &azure.VisionResult{Analysis: "I see a nice apartment."}, nil
		}}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			m := metrics.New()
			a := New(c.client, WithLogger(quietLogger()), WithMetrics(m))

			got, err := a.AnalyzeFloorPlan(context.Background(), FloorPlanInput{ImageData: floorPlanB64(t), Filename: "p.png"})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Mock || got.RoomsDetected != 3 || got.TotalArea != 75.5 || len(got.Rooms) != 6 ||
				len(got.Suggestions) != 4 || len(got.RenovationIdeas) != 4 ||
				got.EstimatedCost.Min != 800000 || got.EstimatedCost.Max != 1500000 {
				t.Fatalf("expected mock analysis, got %+v", got)
			}
		})
	}
}

func TestAnalyzeFloorPlan_InvalidImage(t *testing.T) {
	a := New(nil, WithLogger(quietLogger()))
	_, err := a.AnalyzeFloorPlan(context.Background(), FloorPlanInput{ImageData: base64.StdEncoding.EncodeToString([]byte("not an image"))})
	if !errors.Is(err, imageprep.ErrUnsupportedType) {
		t.Fatalf("expected ErrUnsupportedType, got %v", err)
	}
}

func TestDesignSuggestions_CachesLiveAnswer(t *testing.T) {
	var calls atomic.Int32
	client := &fakeClient{chat: func(_ context.Context, msgs []providers.Message, maxTokens int) (*azure.ChatResult, error) {
		calls.Add(1)
		if maxTokens != 10000 {
			t.Errorf("max tokens = %d", maxTokens)
		}
		return &azure.ChatResult{Content: `{"color_scheme":["#fff"],"total_estimate":90000}`}, nil
	}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	mc := cache.NewMemoryCache(ctx)
	defer mc.Close()

	a := New(client, WithLogger(quietLogger()), WithCache(mc, time.Minute))

	for i := 0; i < 3; i++ {
		got, err := a.DesignSuggestions(ctx, "living", "Modern", 50000)
		if err != nil {
			t.Fatal(err)
		}
		if got.Mock || got.TotalEstimate != 90000 {
			t.Fatalf("unexpected suggestions: %+v", got)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single upstream call, got %d", calls.Load())
	}

	// Different budget, different key.
	_, _ = a.DesignSuggestions(ctx, "living", "modern", 80000)
	if calls.Load() != 2 {
		t.Errorf("expected a second upstream call, got %d", calls.Load())
	}
}

func TestDesignSuggestions_SingleflightCollapsesMisses(t *testing.T) {
	var calls atomic.Int32
	release := make(chan struct{})
	client := &fakeClient{chat: func(context.Context, []providers.Message, int) (*azure.ChatResult, error) {
		calls.Add(1)
		<-release
		return &azure.ChatResult{Content: `{"total_estimate": 1}`}, nil
	}}
	a := New(client, WithLogger(quietLogger()))

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = a.DesignSuggestions(context.Background(), "bedroom", "loft", 1)
		}()
	}

	// Let the goroutines pile up behind the first call.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	if calls.Load() != 1 {
		t.Errorf("expected concurrent misses to share one call, got %d", calls.Load())
	}
}

func TestDesignSuggestions_CancelledLeaderDoesNotFailFollowers(t *testing.T) {
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	client := &fakeClient{chat: func(ctx context.Context, _ []providers.Message, _ int) (*azure.ChatResult, error) {
		if calls.Add(1) == 1 {
			close(started)
		}
		select {
		case <-release:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		return &azure.ChatResult{Content: `{"total_estimate": 123}`}, nil
	}}
	a := New(client, WithLogger(quietLogger()))

	leaderCtx, cancelLeader := context.WithCancel(context.Background())
	leaderDone := make(chan *DesignSuggestions, 1)
	go func() {
		got, _ := a.DesignSuggestions(leaderCtx, "kitchen", "scandinavian", 5)
		leaderDone <- got
	}()
	<-started

	followerDone := make(chan *DesignSuggestions, 1)
	go func() {
		got, _ := a.DesignSuggestions(context.Background(), "kitchen", "scandinavian", 5)
		followerDone <- got
	}()
	time.Sleep(20 * time.Millisecond)

	cancelLeader()
	if got := <-leaderDone; !got.Mock {
		t.Error("the cancelled caller should get the mock payload")
	}

	close(release)
	got := <-followerDone
	if got.Mock || got.TotalEstimate != 123 {
		t.Fatalf("follower should receive the live answer, got %+v", got)
	}
	if calls.Load() != 1 {
		t.Errorf("expected one shared upstream call, got %d", calls.Load())
	}
}

func TestDesignSuggestions_MockOnGarbage(t *testing.T) {
	client := &fakeClient{chat: func(context.Context, []providers.Message, int) (*azure.ChatResult, error) {
		return &azure.ChatResult{Content: "Sure! Go with white walls."}, nil
	}}
	got, _ := New(client, WithLogger(quietLogger())).DesignSuggestions(context.Background(), "living", "modern", DefaultBudget)
	if !got.Mock || got.TotalEstimate != 450000 || got.ColorScheme[1] != "#667EEA" {
		t.Fatalf("expected mock suggestions, got %+v", got)
	}
}

func TestChat_ContextAndSystemPrompt(t *testing.T) {
	var got []providers.Message
	client := &fakeClient{chat: func(_ context.Context, msgs []providers.Message, _ int) (*azure.ChatResult, error) {
		got = msgs
		return &azure.ChatResult{Content: "Use warm whites."}, nil
	}}
	a := New(client, WithLogger(quietLogger()))

	reply := a.Chat(context.Background(), "What paint?", map[string]any{"room": "nursery"}, "c1")
	if reply != "Use warm whites." {
		t.Fatalf("reply = %q", reply)
	}
	if len(got) != 3 || got[0].Role != "system" || got[1].Content != `Context: {"room":"nursery"}` || got[2].Content != "What paint?" {
		t.Fatalf("unexpected messages: %+v", got)
	}
}

func TestChat_ErrorGivesApology(t *testing.T) {
	client := &fakeClient{chat: func(context.Context, []providers.Message, int) (*azure.ChatResult, error) {
		return nil, errors.New("boom")
	}}
	if reply := New(client, WithLogger(quietLogger())).Chat(context.Background(), "hi", nil, ""); reply != ChatApology {
		t.Fatalf("reply = %q", reply)
	}
}

func TestChat_RateLimitSwitchesKeyOnce(t *testing.T) {
	var calls atomic.Int32
	client := &fakeClient{canSwitch: true}
	client.chat = func(context.Context, []providers.Message, int) (*azure.ChatResult, error) {
		if calls.Add(1) == 1 {
			return nil, rateLimited
		}
		return &azure.ChatResult{Content: "ok"}, nil
	}
	m := metrics.New()
	a := New(client, WithLogger(quietLogger()), WithMetrics(m))

	if reply := a.Chat(context.Background(), "q", nil, ""); reply != "ok" {
		t.Fatalf("reply = %q", reply)
	}
	if calls.Load() != 2 || client.switched.Load() != 1 {
		t.Fatalf("calls=%d switched=%d", calls.Load(), client.switched.Load())
	}

	// Backup already active: the next 429 is not retried.
	calls.Store(0)
	client.chat = func(context.Context, []providers.Message, int) (*azure.ChatResult, error) {
		calls.Add(1)
		return nil, rateLimited
	}
	if reply := a.Chat(context.Background(), "q", nil, ""); reply != ChatApology {
		t.Fatalf("reply = %q", reply)
	}
	if calls.Load() != 1 {
		t.Errorf("expected no retry once the backup is active, got %d calls", calls.Load())
	}
}

func TestMockChatReply(t *testing.T) {
	cases := map[string]string{
		"Hello there":                   keywordReplies[0].reply,
		"How much would a sofa cost?":   keywordReplies[1].reply,
		"I love Scandinavian interiors": keywordReplies[2].reply,
		"asdf":                          defaultMockReply,
	}
	for in, want := range cases {
		if got := MockChatReply(in); got != want {
			t.Errorf("MockChatReply(%q) = %q, want %q", in, got, want)
		}
	}
	if New(nil).Chat(context.Background(), "hi", nil, "") != keywordReplies[0].reply {
		t.Error("unconfigured chat should use the keyword responder")
	}
}
