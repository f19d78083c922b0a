// Package server exposes the place list, the map viewport queries and the
// favourites over a small JSON API.
package server

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/app"
	"github.com/kolektywmuzulmanow/halal-mapa/pkg/config"
	"github.com/rs/cors"
)

const shutdownTimeout = 30 * time.Second

// Server serves one Session over HTTP
type Server struct {
	session *app.Session
	cfg     config.Config
	handler http.Handler
}

// New builds the router, middleware chain and CORS policy
func New(session *app.Session, cfg config.Config) *Server {
	s := &Server{session: session, cfg: cfg}

	r := mux.NewRouter()
	// favourite names may contain an escaped slash
	r.UseEncodedPath()
	r.Use(RequestIDMiddleware)
	r.Use(RecoveryMiddleware)
	r.Use(LoggingMiddleware)

	api := r.PathPrefix("/api/v1").Subrouter()
	s.registerRoutes(api)

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodOptions,
		},
		AllowedHeaders: []string{
			"Accept",
			"Content-Type",
			"Origin",
			RequestIDHeader,
		},
		ExposedHeaders: []string{
			"Content-Length",
			"Content-Type",
			RequestIDHeader,
		},
		MaxAge: 86400,
	})
	s.handler = corsHandler.Handler(r)
	return s
}

func (s *Server) registerRoutes(api *mux.Router) {
	api.HandleFunc("/health", s.health).Methods(http.MethodGet)
	api.HandleFunc("/meta", s.meta).Methods(http.MethodGet)

	// Places
	api.HandleFunc("/places", s.listPlaces).Methods(http.MethodGet)
	api.HandleFunc("/places/box", s.placesInBox).Methods(http.MethodGet)
	api.HandleFunc("/places/nearest", s.nearestPlaces).Methods(http.MethodGet)
	api.HandleFunc("/categories", s.categories).Methods(http.MethodGet)

	// Favourites
	api.HandleFunc("/favourites", s.listFavourites).Methods(http.MethodGet)
	api.HandleFunc("/favourites/{name}/toggle", s.toggleFavourite).Methods(http.MethodPost)
}

// Handler returns the root handler, CORS included
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Handler:           s.handler,
		Addr:              addr,
		WriteTimeout:      15 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Printf("Starting server on %s...", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrors <- err
		}
		close(serverErrors)
	}()

	select {
	case <-ctx.Done():
		log.Println("Shutdown signal received")
	case err := <-serverErrors:
		if err != nil {
			return err
		}
	}

	log.Println("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("Server shutdown completed successfully")
	return nil
}
