package events

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// RegisterRoutes mounts the event stream endpoint.
func RegisterRoutes(router chi.Router, hub *Hub) {
	router.Get("/v1/events/ws", func(w http.ResponseWriter, r *http.Request) {
		hub.ServeWS(w, r)
	})
}
