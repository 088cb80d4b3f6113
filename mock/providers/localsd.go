package main

import (
	"encoding/base64"
	"encoding/json"
	"net/http"
)

// newLocalSDHandler simulates a locally hosted txt2img server.
func newLocalSDHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/v1/ping", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("/sdapi/v1/txt2img", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
			return
		}
		if cfg.disrupt() {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "CUDA out of memory"})
			return
		}

		var req struct {
			Prompt string  `json:"prompt"`
			Width  int     `json:"width"`
			Height int     `json:"height"`
			Steps  int     `json:"steps"`
			CFG    float64 `json:"cfg_scale"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Prompt == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "prompt is required"})
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"images":     []string{base64.StdEncoding.EncodeToString(fakePNG())},
			"parameters": req,
			"info":       "{}",
		})
	})

	return mux
}
