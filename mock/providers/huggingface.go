package main

import (
	"encoding/json"
	"net/http"
)

// newHuggingFaceHandler simulates the Inference API for a text-to-image
// model: POST answers with raw PNG bytes, GET reports the model as loaded.
func newHuggingFaceHandler(cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/models/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			writeJSON(w, http.StatusOK, map[string]any{"loaded": true, "state": "Loaded"})
			return
		case http.MethodPost:
		default:
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
			return
		}

		if cfg.disrupt() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"error": "Model is currently loading", "estimated_time": 20.0})
			return
		}

		var req struct {
			Inputs string `json:"inputs"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Inputs == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "inputs is required"})
			return
		}

		w.Header().Set("Content-Type", "image/png")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(fakePNG())
	})

	return mux
}
