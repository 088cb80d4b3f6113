package proxy

import (
	"encoding/json"
	"time"

	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"
)

// maxRequestBody leaves room for a base64 floor plan inside a JSON body.
const maxRequestBody = 32 << 20

// Handler builds the full middleware-wrapped request handler.
func (g *Gateway) Handler() fasthttp.RequestHandler {
	r := router.New()

	r.GET("/health", g.handleHealth)
	r.GET("/readiness", g.handleReadiness)
	if g.metrics != nil {
		r.GET("/metrics", g.metrics.Handler())
	}

	r.GET("/api/dashboard/stats", g.instrument("dashboard_stats", g.handleDashboardStats))
	r.GET("/api/dashboard/tasks", g.instrument("tasks_list", g.handleListTasks))
	r.POST("/api/dashboard/tasks", g.instrument("tasks_create", g.handleCreateTask))
	r.PUT("/api/dashboard/tasks/{id}", g.instrument("tasks_update", g.handleUpdateTask))
	r.DELETE("/api/dashboard/tasks/{id}", g.instrument("tasks_delete", g.handleDeleteTask))
	r.GET("/api/dashboard/clients", g.instrument("clients_list", g.handleListClients))
	r.POST("/api/dashboard/clients", g.instrument("clients_create", g.handleCreateClient))
	r.DELETE("/api/dashboard/clients/{id}", g.instrument("clients_delete", g.handleDeleteClient))
	r.GET("/api/dashboard/designs", g.instrument("designs_list", g.handleListDesigns))
	r.POST("/api/dashboard/designs/{id}/favorite", g.instrument("designs_favorite", g.handleToggleFavorite))
	r.GET("/api/dashboard/interactions", g.instrument("interactions_list", g.handleListInteractions))

	r.GET("/api/features", g.handleFeatures)
	r.GET("/api/ai/suggestions", g.handleStaticSuggestions)
	r.GET("/api/ai/sd-services", g.handleSDServices)

	ai := func(route string, h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return g.instrument(route, g.rateLimit(h))
	}
	r.POST("/api/ai/analyze-floor-plan", ai("analyze_floor_plan", g.handleAnalyzeFloorPlan))
	r.POST("/api/ai/generate-design", ai("generate_design", g.handleGenerateDesign))
	r.POST("/api/ai/chat", ai("chat", g.handleChat))
	r.POST("/api/ai/generate-image-azure", ai("generate_image_azure", g.handleGenerateImageAzure))
	r.POST("/api/ai/generate-image-sd", ai("generate_image_sd", g.handleGenerateImageSD))

	r.POST("/api/dalle/generate", ai("dalle_generate", g.handleDalleGenerate))
	r.GET("/api/dalle/history", ai("dalle_history", g.handleDalleHistory))
	r.POST("/api/dalle/regenerate/{id}", ai("dalle_regenerate", g.handleDalleRegenerate))
	r.GET("/api/dalle/stats", ai("dalle_stats", g.handleDalleStats))

	return applyMiddleware(r.Handler,
		g.recovery,
		requestID,
		timing,
		corsHandler(g.corsOrigins),
		securityHeaders,
	)
}

// Start starts the HTTP server on addr (e.g. ":8000") and blocks until it
// stops.
func (g *Gateway) Start(addr string) error {
	return g.srv.ListenAndServe(addr)
}

// Shutdown gracefully stops the server and waits for open connections.
func (g *Gateway) Shutdown() error {
	return g.srv.Shutdown()
}

func (g *Gateway) newServer() *fasthttp.Server {
	return &fasthttp.Server{
		Handler:            g.Handler(),
		Name:               "design-gateway",
		ReadTimeout:        90 * time.Second,
		WriteTimeout:       5 * time.Minute,
		MaxRequestBodySize: maxRequestBody,
	}
}

// instrument records in-flight, status and latency metrics for route.
func (g *Gateway) instrument(route string, next fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		if g.metrics == nil {
			next(ctx)
			return
		}
		start := time.Now()
		g.metrics.IncInFlight()
		defer func() {
			g.metrics.DecInFlight()
			g.metrics.ObserveHTTP(route, ctx.Response.StatusCode(), time.Since(start))
		}()
		next(ctx)
	}
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	ctx.SetContentType("application/json")
	data, _ := json.Marshal(v)
	ctx.SetBody(data)
}

// decodeBody unmarshals the request body into v. An empty body leaves v
// untouched.
func decodeBody(ctx *fasthttp.RequestCtx, v any) error {
	body := ctx.PostBody()
	if len(body) == 0 {
		return nil
	}
	return json.Unmarshal(body, v)
}
