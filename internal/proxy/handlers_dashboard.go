package proxy

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/redai/design-gateway/internal/store"
	"github.com/redai/design-gateway/pkg/apierr"
)

const (
	msgTaskNotFound   = "Task not found"
	msgClientNotFound = "Client not found"
	msgDesignNotFound = "Design not found"
)

func (g *Gateway) handleDashboardStats(ctx *fasthttp.RequestCtx) {
	stats, err := store.ComputeStats(ctx, g.store)
	if err != nil {
		g.storeError(ctx, "dashboard_stats", err, "")
		return
	}
	writeJSON(ctx, stats)
}

func (g *Gateway) handleListTasks(ctx *fasthttp.RequestCtx) {
	tasks, err := g.store.ListTasks(ctx)
	if err != nil {
		g.storeError(ctx, "tasks_list", err, "")
		return
	}
	writeJSON(ctx, tasks)
}

func (g *Gateway) handleCreateTask(ctx *fasthttp.RequestCtx) {
	var t store.Task
	if err := decodeBody(ctx, &t); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}

	created, err := g.store.CreateTask(ctx, t)
	if err != nil {
		g.storeError(ctx, "tasks_create", err, "")
		return
	}
	writeJSON(ctx, created)
}

func (g *Gateway) handleUpdateTask(ctx *fasthttp.RequestCtx) {
	var t store.Task
	if err := decodeBody(ctx, &t); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}

	updated, err := g.store.UpdateTask(ctx, pathParam(ctx, "id"), t)
	if err != nil {
		g.storeError(ctx, "tasks_update", err, msgTaskNotFound)
		return
	}
	writeJSON(ctx, updated)
}

func (g *Gateway) handleDeleteTask(ctx *fasthttp.RequestCtx) {
	deleted, err := g.store.DeleteTask(ctx, pathParam(ctx, "id"))
	if err != nil {
		g.storeError(ctx, "tasks_delete", err, msgTaskNotFound)
		return
	}
	writeJSON(ctx, map[string]any{
		"message": "Task deleted successfully",
		"task":    deleted,
	})
}

func (g *Gateway) handleListClients(ctx *fasthttp.RequestCtx) {
	clients, err := g.store.ListClients(ctx)
	if err != nil {
		g.storeError(ctx, "clients_list", err, "")
		return
	}
	writeJSON(ctx, clients)
}

func (g *Gateway) handleCreateClient(ctx *fasthttp.RequestCtx) {
	var c store.Client
	if err := decodeBody(ctx, &c); err != nil {
		apierr.BadRequest(ctx, "invalid JSON: "+err.Error())
		return
	}

	created, err := g.store.CreateClient(ctx, c)
	if err != nil {
		g.storeError(ctx, "clients_create", err, "")
		return
	}
	writeJSON(ctx, created)
}

func (g *Gateway) handleDeleteClient(ctx *fasthttp.RequestCtx) {
	removed, err := g.store.DeleteClient(ctx, pathParam(ctx, "id"))
	if err != nil {
		g.storeError(ctx, "clients_delete", err, msgClientNotFound)
		return
	}
	writeJSON(ctx, map[string]any{
		"message": "Client removed successfully",
		"client":  removed,
	})
}

func (g *Gateway) handleListDesigns(ctx *fasthttp.RequestCtx) {
	designs, err := g.store.ListDesigns(ctx)
	if err != nil {
		g.storeError(ctx, "designs_list", err, "")
		return
	}
	writeJSON(ctx, designs)
}

func (g *Gateway) handleToggleFavorite(ctx *fasthttp.RequestCtx) {
	fav, err := g.store.ToggleFavorite(ctx, pathParam(ctx, "id"))
	if err != nil {
		g.storeError(ctx, "designs_favorite", err, msgDesignNotFound)
		return
	}
	writeJSON(ctx, map[string]any{
		"message":     "Favorite status updated",
		"is_favorite": fav,
	})
}

func (g *Gateway) handleListInteractions(ctx *fasthttp.RequestCtx) {
	items, err := g.store.ListInteractions(ctx)
	if err != nil {
		g.storeError(ctx, "interactions_list", err, "")
		return
	}
	writeJSON(ctx, items)
}

// storeError maps store failures: ErrNotFound → 404 notFound,
// ErrInvalid → 400, anything else → 500.
func (g *Gateway) storeError(ctx *fasthttp.RequestCtx, op string, err error, notFound string) {
	switch {
	case errors.Is(err, store.ErrNotFound) && notFound != "":
		apierr.NotFound(ctx, notFound)
	case errors.Is(err, store.ErrInvalid):
		apierr.BadRequest(ctx, strings.TrimPrefix(err.Error(), store.ErrInvalid.Error()+": "))
	default:
		g.log.ErrorContext(ctx, "store_error",
			slog.String("request_id", requestIDFrom(ctx)),
			slog.String("op", op),
			slog.String("error", err.Error()),
		)
		apierr.Internal(ctx, "internal server error")
	}
}

func pathParam(ctx *fasthttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}
