// Package gateway exposes the assistant over HTTP and WebSocket.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"pawbot/internal/assistant"
	"pawbot/internal/config"
	"pawbot/internal/gateway/handlers"
	"pawbot/internal/gateway/middleware"
	"pawbot/internal/gateway/websocket"
	"pawbot/internal/knowledge"
	"pawbot/internal/provider"
	"pawbot/internal/session"
	"pawbot/pkg/logger"
)

// Deps are the components the gateway serves.
type Deps struct {
	Assistant *assistant.Assistant
	// Resolver serves knowledge documents; nil disables /documents.
	Resolver *knowledge.Resolver
	// Syncer backs POST /knowledge/sync; nil reports the knowledge base
	// as disabled.
	Syncer handlers.Syncer
	// IndexSize reports the number of indexed chunks.
	IndexSize func() int
	DocsDir   string
}

// Server is the gateway HTTP server.
type Server struct {
	httpServer  *http.Server
	router      *mux.Router
	hub         *websocket.Hub
	config      *config.Config
	version     string
	deps        Deps
	rateLimiter *middleware.RateLimiter

	mu        sync.Mutex
	hubCancel context.CancelFunc
	hubDone   chan struct{}
	turns     sync.WaitGroup
}

// NewServer creates a gateway server and registers its routes.
func NewServer(cfg *config.Config, version string, hub *websocket.Hub, deps Deps) *Server {
	router := mux.NewRouter()
	rateLimiter := middleware.NewRateLimiter(middleware.RateLimiterConfigFrom(cfg.Gateway.RateLimit))

	// Recovery -> Logging -> CORS -> RateLimit -> Version
	handler := middleware.Recovery(
		middleware.Logging(
			middleware.CORS(
				rateLimiter.RateLimit(
					middleware.Version(middleware.DefaultVersionConfig())(router),
				),
			),
		),
	)

	s := &Server{
		httpServer: &http.Server{
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       60 * time.Second,
			// turns can take as long as assistant.turn_timeout
			WriteTimeout: 0,
			IdleTimeout:  120 * time.Second,
		},
		router:      router,
		hub:         hub,
		config:      cfg,
		version:     version,
		deps:        deps,
		rateLimiter: rateLimiter,
	}
	s.setupRoutes()
	hub.SetChatHandler(s.handleWebSocketChat)
	return s
}

func (s *Server) setupRoutes() {
	s.router.HandleFunc("/api/v1/health", handlers.HealthHandler(s.version, s.hub.ClientCount)).Methods(http.MethodGet)

	if s.deps.Assistant != nil {
		store := s.deps.Assistant.Store()
		handlers.NewConversationHandler(s.deps.Assistant, store, s.deps.DocsDir).RegisterRoutes(s.router)
	}
	if s.deps.Resolver != nil {
		handlers.NewDocumentHandler(s.deps.Resolver).RegisterRoutes(s.router)
	}

	kh := handlers.NewKnowledgeHandler(s.deps.Syncer, s.deps.IndexSize)
	kh.OnSync(s.NotifyKnowledgeSynced)
	kh.RegisterRoutes(s.router)

	s.router.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		websocket.ServeWs(s.hub, w, r)
	})
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	addr := net.JoinHostPort(s.config.Gateway.Host, fmt.Sprint(s.config.Gateway.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	handlers.InitStartTime()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	s.hubCancel, s.hubDone = cancel, done
	s.mu.Unlock()
	go func() {
		defer close(done)
		s.hub.Run(ctx)
	}()

	logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests, waits for running WebSocket turns and
// stops the hub.
func (s *Server) Shutdown(ctx context.Context) error {
	logger.Info().Msg("Shutting down gateway server")

	s.rateLimiter.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.turns.Wait()
	s.mu.Lock()
	cancelHub, hubDone := s.hubCancel, s.hubDone
	s.mu.Unlock()
	if cancelHub != nil {
		cancelHub()
		<-hubDone
	}

	if err != nil {
		return fmt.Errorf("shutdown error: %w", err)
	}
	return nil
}

// Handler returns the full middleware chain, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Hub returns the WebSocket hub.
func (s *Server) Hub() *websocket.Hub {
	return s.hub
}

// NotifyKnowledgeSynced tells connected clients the knowledge base changed.
func (s *Server) NotifyKnowledgeSynced(stats knowledge.IngestStats) {
	if err := s.hub.BroadcastTyped(websocket.TypeKnowledgeSynced, stats); err != nil {
		logger.Warn().Err(err).Msg("knowledge sync notification failed")
	}
}

// DoneData is the Data of a done frame.
type DoneData struct {
	// Ignored is set when the message was not meant for the assistant.
	Ignored       bool                   `json:"ignored,omitempty"`
	State         assistant.State        `json:"state,omitempty"`
	TokensLeft    int                    `json:"tokens_left"`
	Sources       []knowledge.Provenance `json:"sources,omitempty"`
	AttachmentURL string                 `json:"attachment_url,omitempty"`
}

// handleWebSocketChat runs a turn and streams it as part frames followed by
// one done frame, or an error frame when the turn failed.
func (s *Server) handleWebSocketChat(ctx context.Context, req websocket.ChatRequest) (<-chan []byte, error) {
	if s.deps.Assistant == nil {
		return nil, errors.New("assistant not configured")
	}

	out := make(chan []byte, 8)
	s.turns.Add(1)
	go func() {
		defer s.turns.Done()
		defer close(out)

		reply, err := s.deps.Assistant.Handle(ctx, assistant.Inbound{
			ConversationID: req.Session,
			UserID:         req.User,
			Text:           req.Text,
			Private:        req.Private,
		})
		if errors.Is(err, context.Canceled) {
			return
		}

		if reply != nil {
			for i, part := range reply.Parts {
				out <- websocket.Encode(websocket.WSMessage{
					Type:    websocket.TypePart,
					Session: req.Session,
					Index:   i,
					Message: part,
				})
			}
		}

		if err != nil {
			out <- websocket.Encode(websocket.WSMessage{
				Type:    websocket.TypeError,
				Session: req.Session,
				Code:    errorCode(err),
				Message: err.Error(),
			})
			return
		}

		done := DoneData{Ignored: reply == nil, TokensLeft: -1}
		if reply != nil {
			done.State = reply.State
			done.TokensLeft = reply.TokensLeft
			done.Sources = reply.Sources
			done.AttachmentURL = handlers.AttachmentURL(s.deps.DocsDir, reply.Attachment)
		}
		data, _ := json.Marshal(done)
		out <- websocket.Encode(websocket.WSMessage{Type: websocket.TypeDone, Session: req.Session, Data: data})
	}()
	return out, nil
}

func errorCode(err error) string {
	switch {
	case errors.Is(err, session.ErrStorage):
		return handlers.ErrCodeServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return handlers.ErrCodeGatewayTimeout
	case errors.Is(err, session.ErrInvalidID):
		return handlers.ErrCodeInvalidRequest
	case errors.Is(err, provider.ErrModelUnavailable):
		return handlers.ErrCodeModelUnavailable
	default:
		return handlers.ErrCodeInternalError
	}
}
