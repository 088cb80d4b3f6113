package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"time"
)

// Canned assistant payloads keyed off the prompt wording.
const (
	floorPlanReply = `{"rooms_detected": 4, "total_area": 82.0, "room_types": ["living", "bedroom", "kitchen", "bathroom"],
"dimensions": {"living": "5.1x4.2m", "bedroom": "3.8x3.2m"}, "recommendations": ["Open the kitchen to the living area"],
"style_suggestions": ["scandinavian", "japandi"], "confidence": 0.9}`

	suggestionsReply = `{"furniture": [{"name": "Modular sofa", "price": 180000, "description": "Low three-seater"}],
"colors": ["#E8E1D5", "#6B7F5E"], "materials": [{"type": "Oak parquet", "price_per_sqm": 6500, "description": "Matte lacquer"}],
"total_estimate": 240000}`
)

// newOpenAIHandler returns an http.Handler that simulates the OpenAI API and
// the Azure OpenAI deployment routes (same wire format under
// /openai/deployments/{name}/...).
func newOpenAIHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		switch {
		case strings.HasSuffix(path, "/chat/completions"):
			handleChatCompletion(cfg, w, r)
		case strings.HasSuffix(path, "/images/generations"):
			handleImageGeneration(cfg, w, r)
		case strings.HasSuffix(path, "/models"):
			writeJSON(w, http.StatusOK, map[string]any{
				"object": "list",
				"data": []map[string]any{
					{"id": "dall-e-3", "object": "model", "created": 1710000000, "owned_by": "openai"},
					{"id": "gpt-4.1", "object": "model", "created": 1710000000, "owned_by": "openai"},
				},
			})
		default:
			writeError(w, http.StatusNotFound, fmt.Sprintf("mock: unknown path %s", path), "not_found")
		}
	})

	return mux
}

func handleChatCompletion(cfg Config, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	if cfg.disrupt() {
		writeError(w, http.StatusInternalServerError, "mock internal server error", "server_error")
		return
	}

	var req struct {
		Model    string            `json:"model"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", "invalid_request")
		return
	}

	model := req.Model
	if model == "" {
		model = "gpt-4.1"
	}

	// Message content may be a string or a multi-part array; matching on the
	// raw JSON covers both.
	var raw strings.Builder
	for _, m := range req.Messages {
		raw.Write(m)
	}
	prompt := strings.ToLower(raw.String())

	content := fakeSentence(24)
	switch {
	case strings.Contains(prompt, "floor plan"):
		content = floorPlanReply
	case strings.Contains(prompt, "furniture"):
		content = suggestionsReply
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"id":      fmt.Sprintf("chatcmpl-mock%x", rand.Int64()),
		"object":  "chat.completion",
		"created": time.Now().Unix(),
		"model":   model,
		"choices": []map[string]any{
			{
				"index": 0,
				"message": map[string]string{
					"role":    "assistant",
					"content": content,
				},
				"finish_reason": "stop",
			},
		},
		"usage": map[string]int{
			"prompt_tokens":     len(prompt) / 4,
			"completion_tokens": len(content) / 4,
			"total_tokens":      (len(prompt) + len(content)) / 4,
		},
	})
}

func handleImageGeneration(cfg Config, w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
		return
	}
	if cfg.disrupt() {
		writeError(w, http.StatusInternalServerError, "mock internal server error", "server_error")
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
		Style  string `json:"style"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || strings.TrimSpace(req.Prompt) == "" {
		writeError(w, http.StatusBadRequest, "prompt is required", "invalid_request")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"created": time.Now().Unix(),
		"data": []map[string]string{
			{
				"url":            fmt.Sprintf("https://mock.images.local/%x.png", rand.Int64()),
				"revised_prompt": req.Prompt + ", " + req.Style + " rendering",
			},
		},
	})
}
