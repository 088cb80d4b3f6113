package main

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"net/http"
	"strings"
	"sync"
)

type mockPrediction struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Output any    `json:"output"`
	Error  any    `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`

	polls int
}

// newReplicateHandler simulates the predictions API. A prediction stays in
// "processing" for cfg.PollRounds polls before it succeeds. selfURL is the
// externally reachable base used to build poll links.
func newReplicateHandler(cfg Config, selfURL string) http.Handler {
	var (
		mu    sync.Mutex
		preds = make(map[string]*mockPrediction)
	)

	mux := http.NewServeMux()

	mux.HandleFunc("/v1/account", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"type": "user", "username": "mock"})
	})

	mux.HandleFunc("/v1/predictions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			writeError(w, http.StatusMethodNotAllowed, "method not allowed", "method_not_allowed")
			return
		}
		if cfg.disrupt() {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"detail": "mock internal server error"})
			return
		}

		var req struct {
			Version string `json:"version"`
			Input   struct {
				Prompt string `json:"prompt"`
			} `json:"input"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Input.Prompt == "" {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"detail": "input.prompt is required"})
			return
		}

		p := &mockPrediction{ID: fmt.Sprintf("mock%x", rand.Int64()), Status: "starting"}
		p.URLs.Get = selfURL + "/v1/predictions/" + p.ID
		if cfg.PollRounds == 0 {
			succeed(p)
		}

		mu.Lock()
		preds[p.ID] = p
		mu.Unlock()

		writeJSON(w, http.StatusCreated, p)
	})

	mux.HandleFunc("/v1/predictions/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/v1/predictions/")

		mu.Lock()
		defer mu.Unlock()

		p, ok := preds[id]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]string{"detail": "Not found."})
			return
		}
		if p.Status != "succeeded" {
			p.polls++
			p.Status = "processing"
			if p.polls >= cfg.PollRounds {
				succeed(p)
			}
		}
		writeJSON(w, http.StatusOK, p)
	})

	return mux
}

func succeed(p *mockPrediction) {
	p.Status = "succeeded"
	p.Output = []string{fmt.Sprintf("https://replicate.delivery/mock/%s/out-0.png", p.ID)}
}
