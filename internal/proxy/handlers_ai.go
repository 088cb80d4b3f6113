package proxy

import (
	"log/slog"
	"strings"
	"time"

	"github.com/valyala/fasthttp"

	"github.com/redai/design-gateway/internal/assistant"
	"github.com/redai/design-gateway/internal/providers"
	"github.com/redai/design-gateway/pkg/apierr"
)

const (
	defaultDesignStyle = "modern"
	defaultRoomType    = "living"
)

type floorPlanRequest struct {
	ImageData      string `json:"image_data"`
	Filename       string `json:"filename"`
	RoomType       string `json:"room_type"`
	AdditionalInfo string `json:"additional_info"`
}

// handleAnalyzeFloorPlan answers 200 even for unusable images; the frontend
// reads success=false and shows the error inline.
func (g *Gateway) handleAnalyzeFloorPlan(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	var req floorPlanRequest
	if err := decodeBody(ctx, &req); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}

	reqCtx, cancel := g.requestContext()
	defer cancel()

	analysis, err := g.assistant.AnalyzeFloorPlan(reqCtx, assistant.FloorPlanInput{
		ImageData:      req.ImageData,
		Filename:       req.Filename,
		RoomType:       req.RoomType,
		AdditionalInfo: req.AdditionalInfo,
	})
	if err != nil {
		g.log.InfoContext(ctx, "floor_plan_rejected",
			slog.String("request_id", requestIDFrom(ctx)),
			slog.String("filename", req.Filename),
			slog.String("error", err.Error()),
		)
		writeJSON(ctx, map[string]any{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	writeJSON(ctx, map[string]any{
		"success":   true,
		"analysis":  analysis,
		"filename":  req.Filename,
		"timestamp": time.Now(),
	})
	g.logEvent(ctx, "analyze_floor_plan", providers.Azure, "vision", len(req.AdditionalInfo), start, analysis.Mock)
}

type designRequest struct {
	Prompt      string `json:"prompt"`
	Style       string `json:"style"`
	RoomType    string `json:"room_type"`
	ColorScheme string `json:"color_scheme,omitempty"`
	BudgetRange string `json:"budget_range,omitempty"`
}

func (g *Gateway) handleGenerateDesign(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	req := designRequest{Style: defaultDesignStyle, RoomType: defaultRoomType}
	if err := decodeBody(ctx, &req); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}

	reqCtx, cancel := g.requestContext()
	defer cancel()

	suggestions, err := g.assistant.DesignSuggestions(reqCtx, req.RoomType, req.Style, assistant.DefaultBudget)
	if err != nil {
		writeJSON(ctx, map[string]any{
			"success":   false,
			"error":     err.Error(),
			"timestamp": time.Now(),
		})
		return
	}

	writeJSON(ctx, map[string]any{
		"success":            true,
		"design_suggestions": suggestions,
		"prompt":             req.Prompt,
		"style":              req.Style,
		"room_type":          req.RoomType,
		"timestamp":          time.Now(),
	})
	g.logEvent(ctx, "generate_design", providers.Azure, "chat", len(req.Prompt), start, suggestions.Mock)
}

type chatRequest struct {
	Message        string         `json:"message"`
	Context        map[string]any `json:"context,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
}

func (g *Gateway) handleChat(ctx *fasthttp.RequestCtx) {
	start := time.Now()

	var req chatRequest
	if err := decodeBody(ctx, &req); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Message) == "" {
		apierr.BadRequest(ctx, "Message cannot be empty.")
		return
	}

	reqCtx, cancel := g.requestContext()
	defer cancel()

	reply := g.assistant.Chat(reqCtx, req.Message, req.Context, req.ConversationID)

	writeJSON(ctx, map[string]string{"reply": reply})
	g.logEvent(ctx, "chat", providers.Azure, "chat", len(req.Message), start, !g.assistant.Configured())
}
