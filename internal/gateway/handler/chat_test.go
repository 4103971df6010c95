package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"appforge/internal/conversation"
	"appforge/internal/llm"
	"appforge/internal/orchestrator"
	"appforge/internal/session"
)

func newTestHandler(t *testing.T) (*ChatHandler, *conversation.Store) {
	t.Helper()
	store := conversation.NewStore(nil)
	keys := session.NewKeyHolder(func(ctx context.Context, apiKey string) (llm.GenerationClient, error) {
		if apiKey == "valid" {
			return llm.NewFakeClient(), nil
		}
		return nil, &llm.InitError{Err: errors.New("rejected")}
	}, nil)
	orch := orchestrator.New(store, keys, nil, orchestrator.NewPreviewManager())
	return NewChatHandler(store, keys, orch), store
}

func postJSON(t *testing.T, h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestSubmitKeyRejected(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := postJSON(t, h.HandleSubmitKey, `{"key":"wrong"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestSubmitKeyAccepted(t *testing.T) {
	h, _ := newTestHandler(t)
	rec := postJSON(t, h.HandleSubmitKey, `{"key":"valid"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"active":true`)
}

func TestSendMessageRunsBuildPipeline(t *testing.T) {
	h, store := newTestHandler(t)
	require.Equal(t, http.StatusOK, postJSON(t, h.HandleSubmitKey, `{"key":"valid"}`).Code)

	rec := postJSON(t, h.HandleSendMessage, `{"message":"a todo app"}`)
	require.Equal(t, http.StatusAccepted, rec.Code)

	// The pipeline runs asynchronously; wait for the 5 expected entries.
	deadline := time.Now().Add(3 * time.Second)
	for store.Len() < 5 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	require.Equal(t, 5, store.Len(), "build pipeline did not complete")
}

func TestSendMessageRequiresBody(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, h.HandleSendMessage, `{}`).Code)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, h.HandleSendMessage, `not json`).Code)
}

func TestConversationEndpointReturnsSnapshot(t *testing.T) {
	h, store := newTestHandler(t)
	store.Append(conversationSeed())

	req := httptest.NewRequest(http.MethodGet, "/api/conversation", nil)
	rec := httptest.NewRecorder()
	h.HandleConversation(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "seed entry")
	assert.Contains(t, rec.Body.String(), `"keyActive":false`)
}

func TestPreviewStateEndpoint(t *testing.T) {
	h, _ := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/api/preview", nil)
	rec := httptest.NewRecorder()
	h.HandlePreviewState(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"phase":"closed"`)
}

func TestPreviewServiceValidation(t *testing.T) {
	h, _ := newTestHandler(t)
	assert.Equal(t, http.StatusBadRequest, postJSON(t, h.HandlePreviewService, `{"id":"x"}`).Code)
}
