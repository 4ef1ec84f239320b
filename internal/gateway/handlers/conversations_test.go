package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pawbot/internal/assistant"
	"pawbot/internal/provider"
	"pawbot/internal/session"
)

type fakeTurns struct {
	got   []assistant.Inbound
	reply *assistant.Reply
	err   error
	reset string
}

func (f *fakeTurns) Handle(ctx context.Context, in assistant.Inbound) (*assistant.Reply, error) {
	f.got = append(f.got, in)
	return f.reply, f.err
}

func (f *fakeTurns) Reset(ctx context.Context, id string) (*session.Session, error) {
	if id == "bad id" {
		return nil, session.ErrInvalidID
	}
	f.reset = id
	return &session.Session{ConversationID: id, Epoch: 3}, nil
}

type fakeHistories map[string][]*session.Session

func (f fakeHistories) Epochs(ctx context.Context, id string) ([]int, error) {
	if id == "broken" {
		return nil, &session.StorageError{Op: "list", Key: id, Err: fmt.Errorf("disk gone")}
	}
	var out []int
	for _, s := range f[id] {
		out = append(out, s.Epoch)
	}
	return out, nil
}

func (f fakeHistories) LoadEpoch(ctx context.Context, id string, epoch int) (*session.Session, error) {
	for _, s := range f[id] {
		if s.Epoch == epoch {
			return s, nil
		}
	}
	return nil, session.ErrNotFound
}

func conversationRouter(turns *fakeTurns, hist fakeHistories, docs string) *mux.Router {
	r := mux.NewRouter()
	NewConversationHandler(turns, hist, docs).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHandleMessage(t *testing.T) {
	docs := t.TempDir()
	turns := &fakeTurns{reply: &assistant.Reply{
		Text:       "Открыты с 9 до 21.",
		Parts:      []string{"Открыты с 9 до 21."},
		TokensLeft: 1200,
		State:      assistant.StateIdle,
		Attachment: filepath.Join(docs, "promo", "акции.pdf"),
	}}
	r := conversationRouter(turns, nil, docs)

	w := do(r, http.MethodPost, "/api/v1/conversations/c1/messages", `{"text":"когда открыты?","user_id":"u1"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp MessageResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Открыты с 9 до 21.", resp.Reply.Text)
	assert.Equal(t, 1200, resp.Reply.TokensLeft)
	assert.Equal(t, "/api/v1/documents/promo/%D0%B0%D0%BA%D1%86%D0%B8%D0%B8.pdf", resp.AttachmentURL)
	assert.Nil(t, resp.Error)

	require.Len(t, turns.got, 1)
	assert.Equal(t, assistant.Inbound{ConversationID: "c1", UserID: "u1", Text: "когда открыты?", Private: true}, turns.got[0])
}

func TestHandleMessage_GroupAndHeaderUser(t *testing.T) {
	turns := &fakeTurns{}
	r := conversationRouter(turns, nil, "")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/conversations/g1/messages",
		strings.NewReader(`{"text":"всем привет","private":false}`))
	req.Header.Set("X-User-ID", "u9")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// not addressed: nil reply
	assert.Equal(t, http.StatusNoContent, w.Code)
	require.Len(t, turns.got, 1)
	assert.False(t, turns.got[0].Private)
	assert.Equal(t, "u9", turns.got[0].UserID)
}

func TestHandleMessage_BadRequests(t *testing.T) {
	r := conversationRouter(&fakeTurns{}, nil, "")

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/conversations/c1/messages", `{`).Code)
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/api/v1/conversations/c1/messages", `{"text":"  "}`).Code)
}

func TestHandleMessage_Errors(t *testing.T) {
	apology := &assistant.Reply{Text: "Извините, не могу сохранить разговор.", Parts: []string{"Извините"}, TokensLeft: -1}

	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"storage", &session.StorageError{Op: "save", Key: "k", Err: fmt.Errorf("read-only fs")}, http.StatusServiceUnavailable, ErrCodeServiceUnavailable},
		{"model", &provider.UnavailableError{Attempts: 3, Err: fmt.Errorf("503")}, http.StatusBadGateway, ErrCodeModelUnavailable},
		{"timeout", fmt.Errorf("turn: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, ErrCodeGatewayTimeout},
		{"other", fmt.Errorf("boom"), http.StatusInternalServerError, ErrCodeInternalError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := conversationRouter(&fakeTurns{reply: apology, err: tt.err}, nil, "")
			w := do(r, http.MethodPost, "/api/v1/conversations/c1/messages", `{"text":"hi"}`)

			assert.Equal(t, tt.wantStatus, w.Code)
			var resp MessageResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.wantCode, resp.Error.Code)
			require.NotNil(t, resp.Reply)
			assert.Equal(t, apology.Text, resp.Reply.Text)
		})
	}
}

func TestConversationReads(t *testing.T) {
	hist := fakeHistories{
		"c1": {
			{ConversationID: "c1", Epoch: 0, Messages: []provider.Message{provider.SystemMessage("s")}},
			{ConversationID: "c1", Epoch: 1, Messages: []provider.Message{provider.SystemMessage("s"), provider.UserMessage("привет")}},
		},
	}
	r := conversationRouter(&fakeTurns{}, hist, "")

	w := do(r, http.MethodGet, "/api/v1/conversations/c1", "")
	require.Equal(t, http.StatusOK, w.Code)
	var sess session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, 1, sess.Epoch)
	assert.Len(t, sess.Messages, 2)

	w = do(r, http.MethodGet, "/api/v1/conversations/c1/epochs", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"conversation_id":"c1","epochs":[0,1]}`, w.Body.String())

	w = do(r, http.MethodGet, "/api/v1/conversations/c1/epochs/0", "")
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, 0, sess.Epoch)

	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/conversations/c1/epochs/7", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/conversations/nobody", "").Code)
	assert.Equal(t, http.StatusServiceUnavailable, do(r, http.MethodGet, "/api/v1/conversations/broken/epochs", "").Code)

	w = do(r, http.MethodGet, "/api/v1/conversations/nobody/epochs", "")
	assert.JSONEq(t, `{"conversation_id":"nobody","epochs":[]}`, w.Body.String())
}

func TestHandleReset(t *testing.T) {
	turns := &fakeTurns{}
	r := conversationRouter(turns, nil, "")

	w := do(r, http.MethodDelete, "/api/v1/conversations/c1/history", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "c1", turns.reset)

	var sess session.Session
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sess))
	assert.Equal(t, 3, sess.Epoch)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodDelete, "/api/v1/conversations/bad%20id/history", "").Code)
}
