package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"
)

// syncBuffer guards bytes.Buffer so the flusher goroutine and the test can share it.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestNew_NilContext(t *testing.T) {
	if _, err := New(nil, nil); err == nil {
		t.Fatal("expected error for nil context")
	}
}

func TestLogger_FlushesOnClose(t *testing.T) {
	out := &syncBuffer{}
	l, err := New(context.Background(), slog.New(slog.NewJSONHandler(out, nil)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	l.Log(GenerationEvent{Service: "Replicate", Model: "Stable Diffusion XL", Route: "/api/ai/generate-image-sd", PromptChars: 42, Status: 200})
	l.Log(GenerationEvent{Service: "mock", Route: "/api/ai/chat", Fallback: true, Status: 200, CreatedAt: time.Now()})

	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), out.String())
	}

	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("invalid JSON line: %v", err)
	}
	if first["msg"] != "generation" || first["service"] != "Replicate" || first["id"] == "" {
		t.Errorf("unexpected first event: %v", first)
	}
	if pc, _ := first["prompt_chars"].(float64); pc != 42 {
		t.Errorf("prompt_chars = %v", first["prompt_chars"])
	}
}

func TestLogger_DropsWhenFull(t *testing.T) {
	l := &Logger{ch: make(chan GenerationEvent, 1)}

	l.Log(GenerationEvent{})
	l.Log(GenerationEvent{})
	l.Log(GenerationEvent{})

	if got := l.DroppedEvents(); got != 2 {
		t.Fatalf("expected 2 dropped events, got %d", got)
	}
}

func TestLogger_CloseIsIdempotent(t *testing.T) {
	l, _ := New(context.Background(), slog.New(slog.NewJSONHandler(&syncBuffer{}, nil)))
	_ = l.Close()
	_ = l.Close()
}

func TestLogger_BatchFlushAndCounts(t *testing.T) {
	out := &syncBuffer{}
	l, err := New(context.Background(), slog.New(slog.NewJSONHandler(out, nil)),
		WithBuffer(16), WithBatch(2, time.Hour))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	l.Log(GenerationEvent{Service: "Azure OpenAI", Status: 200})
	l.Log(GenerationEvent{Service: "Azure OpenAI", Status: 502, Fallback: true})

	// A full batch is written without waiting for the ticker.
	deadline := time.Now().Add(time.Second)
	for strings.Count(out.String(), "\n") < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("batch not flushed: %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}

	got := l.Counts()["Azure OpenAI"]
	if got.Events != 2 || got.Failures != 1 || got.Fallbacks != 1 {
		t.Errorf("counts = %+v", got)
	}
}
