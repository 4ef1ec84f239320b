package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gorilla/mux"

	"pawbot/internal/knowledge"
)

// DocumentsPrefix is the URL prefix documents are served under.
const DocumentsPrefix = "/api/v1/documents/"

// SourceResolver maps a provenance source to a local file.
type SourceResolver interface {
	Resolve(source string) (string, error)
}

// DocumentHandler streams knowledge documents to clients.
type DocumentHandler struct {
	resolver SourceResolver
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(resolver SourceResolver) *DocumentHandler {
	return &DocumentHandler{resolver: resolver}
}

// RegisterRoutes registers document routes on the router.
func (h *DocumentHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc(DocumentsPrefix+"{source:.+}", h.HandleGet).Methods(http.MethodGet, http.MethodHead)
}

// HandleGet streams the document as an attachment.
func (h *DocumentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	source := mux.Vars(r)["source"]

	path, err := h.resolver.Resolve(source)
	switch {
	case errors.Is(err, knowledge.ErrOutsideRoot):
		SendError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
		return
	case errors.Is(err, knowledge.ErrSourceNotFound):
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "document not found")
		return
	case err != nil:
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	f, err := os.Open(path)
	if err != nil {
		SendError(w, http.StatusNotFound, ErrCodeNotFound, "document not found")
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		SendError(w, http.StatusInternalServerError, ErrCodeInternalError, err.Error())
		return
	}

	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, info.Name(), info.ModTime(), f)
}
