package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/emberlink/ember-backend/internal/config"
)

// Registrar is a common interface for everything that mounts routes on the
// shared router (REST handlers, the websocket gateway).
type Registrar interface {
	Register(r chi.Router)
}

// NewRouter builds the shared chi router and mounts all provided registrars.
func NewRouter(registrars ...Registrar) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	for _, reg := range registrars {
		reg.Register(r)
	}

	return r
}

// NewHTTPServer wraps the router in an http.Server bound to the configured
// address. The caller owns ListenAndServe/Shutdown.
func NewHTTPServer(cfg *config.Config, registrars ...Registrar) *http.Server {
	addr := fmt.Sprintf("%s:%s", cfg.HTTP.Host, cfg.HTTP.Port)
	return &http.Server{
		Addr:              addr,
		Handler:           NewRouter(registrars...),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
