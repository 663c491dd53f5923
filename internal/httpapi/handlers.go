package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/coderoomhq/coderoom-backend/internal/hub"
	"github.com/coderoomhq/coderoom-backend/internal/room"
)

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

// RoomExists lets the frontend probe a pasted code before opening the
// websocket. 204 when live, 404 otherwise.
func RoomExists(h *hub.Hub) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		reply := make(chan *room.Room, 1)
		h.Inbox() <- hub.GetRoom{Code: chi.URLParam(r, "code"), Reply: reply}
		if <-reply == nil {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
