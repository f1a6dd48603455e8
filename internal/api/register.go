package api

import (
	"github.com/go-chi/chi/v5"

	"github.com/emberlink/ember-backend/internal/auth"
)

// Registrar mounts the REST API under /v1, behind the bearer-token
// authenticator.
type Registrar struct {
	handlers *Handlers
	verifier auth.Verifier
}

// NewRegistrar creates a Registrar for the REST surface.
func NewRegistrar(handlers *Handlers, verifier auth.Verifier) *Registrar {
	return &Registrar{handlers: handlers, verifier: verifier}
}

// Register attaches the authenticated API routes to the shared router.
func (r *Registrar) Register(router chi.Router) {
	router.Route("/v1", func(v1 chi.Router) {
		v1.Use(auth.Authenticator(r.verifier, r.handlers.appCtx.Logger))
		v1.Post("/swipes", r.handlers.createSwipe)
		v1.Get("/pool", r.handlers.getPool)
		v1.Get("/matches", r.handlers.listMatches)
		v1.Get("/matches/{matchID}/messages", r.handlers.listMessages)
	})
}
