package httpapi

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/katalystsys/sagaflow/internal/engine"
	"github.com/katalystsys/sagaflow/internal/logging"
)

// NewRouter builds the chi router exposing the engine's REST surface.
func NewRouter(eng *engine.Engine, logStore *logging.LogStore) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/sagas", func(r chi.Router) {
		r.Post("/", HandleStart(eng, logStore))
		r.Post("/{orderId}/resume", HandleResume(eng, logStore))
		r.Get("/{orderId}", HandleQuery(eng))
		r.Get("/by-order-no/{orderNo}/exists", HandleExists(eng))
	})

	return r
}
