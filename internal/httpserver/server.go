package httpserver

import (
	"context"
	"net/http"
	"sync"

	"github.com/labstack/echo/v4"

	"github.com/chadiek/maternal-support/internal/config"
	"github.com/chadiek/maternal-support/internal/history"
	usermw "github.com/chadiek/maternal-support/internal/middleware"
	"github.com/chadiek/maternal-support/internal/relay"
	"github.com/chadiek/maternal-support/internal/storage"
)

// Deps are the collaborators behind the routes. Nil fields get in-process defaults.
type Deps struct {
	Relay   *relay.Service
	History history.Store
	Storage storage.Storage
}

// Server bundles HTTP router and dependencies.
type Server struct {
	Router http.Handler

	cfg     config.Config
	relay   *relay.Service
	history history.Store
	storage storage.Storage

	// voice sessions outlive their requests once upgraded; ctx ends them on Close
	ctx    context.Context
	cancel context.CancelFunc
	voice  sync.WaitGroup
}

// New constructs the HTTP server with routes.
func New(cfg config.Config, deps Deps) *Server {
	if deps.Relay == nil {
		deps.Relay = relay.NewService(nil, cfg.PersonaPrompt)
	}
	if deps.History == nil {
		deps.History = history.NewMemoryStore()
	}
	if deps.Storage == nil {
		deps.Storage = storage.NewLocalStorage(cfg.StorageDir)
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:     cfg,
		relay:   deps.Relay,
		history: deps.History,
		storage: deps.Storage,
		ctx:     ctx,
		cancel:  cancel,
	}

	e := newRouter(func() string { return cfg.UserSigningSecret })
	e.GET("/healthz", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	api := e.Group("/api")
	api.POST("/generate", s.generate)
	api.POST("/process-audio", s.processAudio)

	chats := api.Group("/chats", usermw.RequireUser)
	chats.GET("", s.listChats)
	chats.POST("", s.createChat)
	chats.GET("/:id/messages", s.listMessages)
	chats.POST("/:id/messages", s.appendMessage)

	e.GET("/ws/voice", s.voiceSocket)

	s.Router = e
	return s
}

// Close ends active voice sessions and waits for them.
func (s *Server) Close() {
	s.cancel()
	s.voice.Wait()
}

type errorBody struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
