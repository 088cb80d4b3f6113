package proxy

import (
	"slices"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/redai/design-gateway/internal/providers"
)

// handleHealth always answers 200; a failing component only turns the status
// to "degraded".
func (g *Gateway) handleHealth(ctx *fasthttp.RequestCtx) {
	snap := g.health.Snapshot()
	status := "healthy"
	if snap.Status != statusOK {
		status = statusDegraded
	}
	body := map[string]any{
		"status":        status,
		"timestamp":     time.Now(),
		"version":       Version,
		"ai_configured": g.aiConfigured,
		"services": map[string]any{
			"azure_openai":     g.azureInfo(),
			"stable_diffusion": g.sdServiceInfo(),
		},
		"components": snap,
	}
	if g.events != nil {
		body["generations"] = g.events.Counts()
	}
	writeJSON(ctx, body)
}

func (g *Gateway) handleReadiness(ctx *fasthttp.RequestCtx) {
	if g.health.ReadinessOK() {
		writeJSON(ctx, map[string]string{"status": "ok"})
		return
	}
	ctx.SetStatusCode(fasthttp.StatusServiceUnavailable)
	writeJSON(ctx, map[string]string{"status": "unavailable"})
}

func (g *Gateway) handleSDServices(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{
		"success":      true,
		"service_info": g.sdServiceInfo(),
		"timestamp":    time.Now(),
	})
}

// azureInfo summarises the Azure client for /health. Without a client only
// the configuration check is known.
func (g *Gateway) azureInfo() map[string]any {
	if g.azure == nil {
		return map[string]any{
			"configured":   false,
			"has_api_key":  g.azureStatus.HasAPIKey,
			"has_endpoint": g.azureStatus.HasEndpoint,
			"endpoint":     "",
			"deployment":   "",
			"api_version":  "",
		}
	}
	info := g.azure.ServiceInfo()
	return map[string]any{
		"configured":       info["configured"],
		"has_api_key":      info["has_api_key"],
		"has_endpoint":     info["has_endpoint"],
		"endpoint":         info["endpoint"],
		"deployment":       info["deployment_name"],
		"api_version":      info["api_version"],
		"auth_mode":        info["auth_mode"],
		"using_backup_key": info["using_backup_key"],
	}
}

func (g *Gateway) sdServiceInfo() map[string]any {
	available := make([]string, 0, len(g.sdAvailable))
	for _, name := range g.sdAvailable {
		available = append(available, providers.DisplayName[name])
	}
	_, hf := g.imageProviders[providers.HuggingFace]
	_, rep := g.imageProviders[providers.Replicate]

	return map[string]any{
		"configured":             len(g.sdAvailable) > 0,
		"available_services":     available,
		"huggingface_configured": hf,
		"replicate_configured":   rep,
		"local_available":        slices.Contains(g.sdAvailable, providers.Local),
		"local_endpoint":         g.localEndpoint,
	}
}

func (g *Gateway) handleFeatures(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{
		"dashboard": map[string]string{
			"tasks":        "Daily task management with CRUD operations",
			"clients":      "Favorite client management",
			"designs":      "Design preview gallery",
			"interactions": "Client interaction history",
			"analytics":    "Real-time dashboard statistics",
		},
		"ai_services": map[string]string{
			"floor_plan_analysis": "AI-powered floor plan analysis",
			"design_generation":   "Interior design generation with DALL-E and Stable Diffusion",
			"chat_assistant":      "Intelligent design consultation",
			"suggestions":         "Personalized design recommendations",
			"stable_diffusion":    "High-quality image generation with Stable Diffusion XL",
		},
		"integrations": map[string]string{
			"azure_openai":     "Azure OpenAI service integration",
			"dalle":            "DALL-E 3 image generation",
			"stable_diffusion": "Stable Diffusion XL via Hugging Face, Replicate, or local",
			"gpt4":             "GPT-4 for analysis and chat",
		},
		"version":       Version,
		"ai_configured": g.aiConfigured,
	})
}

type catalogItem struct {
	Name        string `json:"name"`
	Price       int    `json:"price,omitempty"`
	Hex         string `json:"hex,omitempty"`
	Description string `json:"description"`
}

type catalogCategory struct {
	Category string        `json:"category"`
	Items    []catalogItem `json:"items"`
}

var staticSuggestions = []catalogCategory{
	{
		Category: "furniture",
		Items: []catalogItem{
			{Name: "Scandinavian Sofa", Price: 85000, Description: "Clean lines, neutral colors"},
			{Name: "Industrial Coffee Table", Price: 35000, Description: "Metal and wood combination"},
			{Name: "Minimalist Bookshelf", Price: 25000, Description: "Floating shelves design"},
		},
	},
	{
		Category: "colors",
		Items: []catalogItem{
			{Name: "Sage Green", Hex: "#9CAF88", Description: "Calming nature-inspired"},
			{Name: "Warm Gray", Hex: "#8B8680", Description: "Sophisticated neutral"},
			{Name: "Cream White", Hex: "#F7F3E9", Description: "Soft and elegant"},
		},
	},
	{
		Category: "materials",
		Items: []catalogItem{
			{Name: "Natural Oak", Price: 3500, Description: "Durable hardwood flooring"},
			{Name: "Marble Countertop", Price: 8500, Description: "Luxury kitchen surface"},
			{Name: "Linen Textiles", Price: 2200, Description: "Sustainable fabric choice"},
		},
	},
}

func (g *Gateway) handleStaticSuggestions(ctx *fasthttp.RequestCtx) {
	writeJSON(ctx, map[string]any{
		"success":     true,
		"suggestions": staticSuggestions,
		"timestamp":   time.Now(),
	})
}
