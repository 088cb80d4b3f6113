// Command providers runs lightweight HTTP mock servers that simulate each
// upstream image and chat API. It is used for E2E/load testing without real
// credentials.
//
// Each upstream listens on its own port:
//
//	OpenAI / Azure OpenAI   :19001
//	Hugging Face            :19002
//	Replicate               :19003
//	Local Stable Diffusion  :19004
//
// Environment overrides (PORT_<UPSTREAM>):
//
//	PORT_OPENAI, PORT_HUGGINGFACE, PORT_REPLICATE, PORT_LOCALSD
//
// Behaviour flags (via env):
//
//	MOCK_LATENCY_MS   - artificial latency added to every response (default 0)
//	MOCK_ERROR_RATE   - fraction [0,1] of requests that return HTTP 500 (default 0)
//	MOCK_POLL_ROUNDS  - Replicate polls before a prediction succeeds (default 1)
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds runtime configuration shared across all mock servers.
type Config struct {
	LatencyMS  int
	ErrorRate  float64
	PollRounds int
}

func loadConfig() Config {
	c := Config{PollRounds: 1}

	if v := os.Getenv("MOCK_LATENCY_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.LatencyMS = n
		}
	}
	if v := os.Getenv("MOCK_ERROR_RATE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 0 && f <= 1 {
			c.ErrorRate = f
		}
	}
	if v := os.Getenv("MOCK_POLL_ROUNDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.PollRounds = n
		}
	}
	return c
}

type upstream struct {
	name        string
	portEnv     string
	defaultPort int
	handler     func(cfg Config, selfURL string) http.Handler
}

var upstreams = []upstream{
	{"openai", "PORT_OPENAI", 19001, func(c Config, _ string) http.Handler { return newOpenAIHandler(c) }},
	{"huggingface", "PORT_HUGGINGFACE", 19002, func(c Config, _ string) http.Handler { return newHuggingFaceHandler(c) }},
	{"replicate", "PORT_REPLICATE", 19003, newReplicateHandler},
	{"localsd", "PORT_LOCALSD", 19004, func(c Config, _ string) http.Handler { return newLocalSDHandler(c) }},
}

func (u upstream) port() string {
	if v := os.Getenv(u.portEnv); v != "" {
		return v
	}
	return strconv.Itoa(u.defaultPort)
}

func main() {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg := loadConfig()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Info("starting mock upstreams",
		slog.Int("latency_ms", cfg.LatencyMS),
		slog.Float64("error_rate", cfg.ErrorRate),
		slog.Int("poll_rounds", cfg.PollRounds),
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, u := range upstreams {
		port := u.port()
		srv := &http.Server{
			Addr:              ":" + port,
			Handler:           u.handler(cfg, "http://localhost:"+port),
			ReadHeaderTimeout: 10 * time.Second,
			WriteTimeout:      time.Minute,
		}

		g.Go(func() error {
			log.Info("mock upstream listening", slog.String("upstream", u.name), slog.String("addr", srv.Addr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("%s: %w", u.name, err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	fmt.Println("READY")

	if err := g.Wait(); err != nil {
		log.Error("mock upstreams failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("mock upstreams stopped")
}
