package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"pawbot/internal/assistant"
	"pawbot/internal/provider"
	"pawbot/internal/session"
	"pawbot/pkg/logger"
)

// Turns runs conversation turns.
type Turns interface {
	Handle(ctx context.Context, in assistant.Inbound) (*assistant.Reply, error)
	Reset(ctx context.Context, id string) (*session.Session, error)
}

// Histories reads stored conversations.
type Histories interface {
	Epochs(ctx context.Context, id string) ([]int, error)
	LoadEpoch(ctx context.Context, id string, epoch int) (*session.Session, error)
}

// MessageRequest is the body of POST /conversations/{id}/messages.
type MessageRequest struct {
	Text   string `json:"text"`
	UserID string `json:"user_id,omitempty"`
	// Private defaults to true; group chats set it to false.
	Private *bool `json:"private,omitempty"`
}

// MessageResponse carries the reply. When the turn failed, Reply holds the
// apology for the user and Error says what went wrong.
type MessageResponse struct {
	Reply         *assistant.Reply `json:"reply,omitempty"`
	AttachmentURL string           `json:"attachment_url,omitempty"`
	Error         *ErrorDetail     `json:"error,omitempty"`
}

// ConversationHandler serves the conversation endpoints.
type ConversationHandler struct {
	turns     Turns
	histories Histories
	docsRoot  string
}

// NewConversationHandler creates a conversation handler. docsRoot is used to
// turn reply attachments into document URLs.
func NewConversationHandler(turns Turns, histories Histories, docsRoot string) *ConversationHandler {
	return &ConversationHandler{turns: turns, histories: histories, docsRoot: docsRoot}
}

// RegisterRoutes registers conversation routes on the router.
func (h *ConversationHandler) RegisterRoutes(router *mux.Router) {
	sub := router.PathPrefix("/api/v1/conversations/{id}").Subrouter()

	sub.HandleFunc("", h.HandleGet).Methods(http.MethodGet)
	sub.HandleFunc("/messages", h.HandleMessage).Methods(http.MethodPost)
	sub.HandleFunc("/history", h.HandleReset).Methods(http.MethodDelete)
	sub.HandleFunc("/epochs", h.HandleEpochs).Methods(http.MethodGet)
	sub.HandleFunc("/epochs/{epoch:[0-9]+}", h.HandleGetEpoch).Methods(http.MethodGet)
}

// HandleMessage runs one turn.
func (h *ConversationHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req MessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "text is required")
		return
	}

	in := assistant.Inbound{
		ConversationID: id,
		UserID:         req.UserID,
		Text:           req.Text,
		Private:        req.Private == nil || *req.Private,
	}
	if in.UserID == "" {
		in.UserID = r.Header.Get("X-User-ID")
	}

	reply, err := h.turns.Handle(r.Context(), in)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Debug().Str("conversation_id", id).Msg("client went away during turn")
			return
		}
		status, code := turnErrorStatus(err)
		SendJSON(w, status, MessageResponse{
			Reply: reply,
			Error: &ErrorDetail{Code: code, Message: err.Error()},
		})
		return
	}
	if reply == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	SendJSON(w, http.StatusOK, MessageResponse{
		Reply:         reply,
		AttachmentURL: AttachmentURL(h.docsRoot, reply.Attachment),
	})
}

// HandleGet returns the current epoch of a conversation.
func (h *ConversationHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	epochs, err := h.histories.Epochs(r.Context(), id)
	if err != nil {
		sendStoreError(w, err)
		return
	}
	if len(epochs) == 0 {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "conversation not found")
		return
	}
	h.sendEpoch(w, r, id, epochs[len(epochs)-1])
}

// HandleEpochs lists the stored epochs of a conversation.
func (h *ConversationHandler) HandleEpochs(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	epochs, err := h.histories.Epochs(r.Context(), id)
	if err != nil {
		sendStoreError(w, err)
		return
	}
	if epochs == nil {
		epochs = []int{}
	}
	SendJSON(w, http.StatusOK, map[string]any{
		"conversation_id": id,
		"epochs":          epochs,
	})
}

// HandleGetEpoch returns one archived or current epoch.
func (h *ConversationHandler) HandleGetEpoch(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	epoch, err := strconv.Atoi(vars["epoch"])
	if err != nil {
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, "invalid epoch")
		return
	}
	h.sendEpoch(w, r, vars["id"], epoch)
}

// HandleReset starts a new epoch.
func (h *ConversationHandler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sess, err := h.turns.Reset(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		sendStoreError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, sess)
}

func (h *ConversationHandler) sendEpoch(w http.ResponseWriter, r *http.Request, id string, epoch int) {
	sess, err := h.histories.LoadEpoch(r.Context(), id, epoch)
	if err != nil {
		sendStoreError(w, err)
		return
	}
	SendJSON(w, http.StatusOK, sess)
}

// AttachmentURL maps a document path under docsRoot to its URL below
// DocumentsPrefix. It returns "" for paths outside docsRoot.
func AttachmentURL(docsRoot, path string) string {
	if path == "" || docsRoot == "" {
		return ""
	}
	root, err := filepath.Abs(docsRoot)
	if err != nil {
		return ""
	}
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return ""
	}
	segs := strings.Split(filepath.ToSlash(rel), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return DocumentsPrefix + strings.Join(segs, "/")
}

func turnErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		return http.StatusBadRequest, ErrCodeInvalidRequest
	case errors.Is(err, session.ErrStorage):
		return http.StatusServiceUnavailable, ErrCodeServiceUnavailable
	case errors.Is(err, provider.ErrModelUnavailable):
		return http.StatusBadGateway, ErrCodeModelUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, ErrCodeGatewayTimeout
	default:
		return http.StatusInternalServerError, ErrCodeInternalError
	}
}

func sendStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrInvalidID):
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, session.ErrNotFound):
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "epoch not found")
	case errors.Is(err, session.ErrStorage):
		SendError(w, http.StatusServiceUnavailable, ErrCodeServiceUnavailable, err.Error())
	default:
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
	}
}
