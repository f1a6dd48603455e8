package ws

import (
	"github.com/go-chi/chi/v5"
)

// Registrar mounts the websocket endpoint. Authentication happens inside
// the handshake itself, so no HTTP middleware wraps this route.
type Registrar struct {
	gateway *Gateway
}

// NewRegistrar creates a Registrar for the realtime gateway.
func NewRegistrar(gateway *Gateway) *Registrar {
	return &Registrar{gateway: gateway}
}

// Register attaches the gateway handshake route to the shared router.
func (r *Registrar) Register(router chi.Router) {
	router.Get("/ws", r.gateway.ServeWS)
}
