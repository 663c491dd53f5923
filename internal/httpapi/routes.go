package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/coderoomhq/coderoom-backend/internal/hub"
	"github.com/coderoomhq/coderoom-backend/internal/metrics"
	"github.com/coderoomhq/coderoom-backend/internal/ws"
)

func SetupRoutes(h *hub.Hub, log *zap.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", Healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	r.Get("/rooms/{code}", RoomExists(h))
	r.Get("/ws", ws.Handler(h, log))
	return r
}
