package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"pawbot/internal/knowledge"
	"pawbot/pkg/logger"
)

// Syncer re-reads the documents directory into the index.
type Syncer interface {
	Sync(ctx context.Context) (knowledge.IngestStats, error)
}

// KnowledgeHandler serves knowledge base maintenance endpoints.
type KnowledgeHandler struct {
	syncer Syncer
	size   func() int
	notify func(knowledge.IngestStats)

	// one sync at a time
	mu sync.Mutex
}

// NewKnowledgeHandler creates a knowledge handler. size reports the number
// of indexed chunks and may be nil.
func NewKnowledgeHandler(syncer Syncer, size func() int) *KnowledgeHandler {
	return &KnowledgeHandler{syncer: syncer, size: size}
}

// OnSync registers a callback run after every successful sync.
func (h *KnowledgeHandler) OnSync(fn func(knowledge.IngestStats)) {
	h.notify = fn
}

// RegisterRoutes registers knowledge routes on the router.
func (h *KnowledgeHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/api/v1/knowledge").Subrouter()
	sub.HandleFunc("", h.HandleStatus).Methods(http.MethodGet)
	sub.HandleFunc("/sync", h.HandleSync).Methods(http.MethodPost)
}

// HandleStatus reports the index size.
func (h *KnowledgeHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	chunks := 0
	if h.size != nil {
		chunks = h.size()
	}
	SendJSON(w, http.StatusOK, map[string]any{
		"enabled": h.syncer != nil,
		"chunks":  chunks,
	})
}

// HandleSync runs a full sync and returns its stats.
func (h *KnowledgeHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	if h.syncer == nil {
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, "knowledge base disabled")
		return
	}
	if !h.mu.TryLock() {
		SendError(w, http.StatusConflict, ErrCodeConflict, "sync already running")
		return
	}
	defer h.mu.Unlock()

	stats, err := h.syncer.Sync(r.Context())
	if err != nil {
		status, code := http.StatusInternalServerError, ErrCodeInternalError
		if errors.Is(err, knowledge.ErrIndexUnavailable) {
			status, code = http.StatusServiceUnavailable, ErrCodeServiceUnavailable
		}
		logger.Error().Err(err).Msg("knowledge sync failed")
		SendError(w, status, code, err.Error())
		return
	}

	if h.notify != nil {
		h.notify(stats)
	}
	SendJSON(w, http.StatusOK, stats)
}
