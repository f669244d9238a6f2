package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/gorilla/websocket"
	"github.com/speakset/speakset/internal/auth"
	"github.com/speakset/speakset/internal/config"
	"github.com/speakset/speakset/internal/database"
	"github.com/speakset/speakset/internal/registry"
	"github.com/speakset/speakset/internal/server"
	"github.com/speakset/speakset/internal/stats"
	"github.com/speakset/speakset/internal/store"
)

// SpeaksetApp is the request/response and subscription surface: it
// authenticates, authorizes and dispatches to the session manager, the
// registry, the message store and the broadcaster. No business logic
// lives here.
type SpeaksetApp struct {
	log         *log.Logger
	db          database.SpeaksetRepository
	sessions    *auth.SessionManager
	registry    *registry.Registry
	store       *store.MessageStore
	broadcaster *server.Broadcaster
	stats       stats.Provider
	mux         *http.Server
	upgrader    websocket.Upgrader
}

func NewSpeaksetApp(mux *http.ServeMux, logger *log.Logger, db database.SpeaksetRepository,
	sessions *auth.SessionManager, reg *registry.Registry, msgStore *store.MessageStore,
	broadcaster *server.Broadcaster, sp stats.Provider, cfg *config.Config) *SpeaksetApp {

	s := &SpeaksetApp{
		log:         logger,
		db:          db,
		sessions:    sessions,
		registry:    reg,
		store:       msgStore,
		broadcaster: broadcaster,
		stats:       sp,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/register", s.register)
	mux.HandleFunc("POST /api/login", s.login)
	mux.Handle("POST /api/logout", s.authMiddleware(s.logout))
	mux.Handle("GET /api/spaces", s.authMiddleware(s.listSpaces))
	mux.Handle("POST /api/spaces", s.authMiddleware(s.createSpace))
	mux.Handle("POST /api/spaces/join", s.authMiddleware(s.joinSpace))
	mux.Handle("POST /api/channels", s.authMiddleware(s.createChannel))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("POST /api/messages", s.authMiddleware(s.postMessage))
	mux.Handle("PATCH /api/messages/{id}", s.authMiddleware(s.editMessage))
	mux.Handle("DELETE /api/messages/{id}", s.authMiddleware(s.deleteMessage))
	mux.Handle("POST /api/messages/{id}/react", s.authMiddleware(s.reactMessage))
	mux.Handle("POST /api/messages/{id}/unreact", s.authMiddleware(s.unreactMessage))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept", "Authorization"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *SpeaksetApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *SpeaksetApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
