// Package handler exposes the orchestrator entry points over HTTP and pushes
// conversation events to clients over a websocket.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"appforge/internal/conversation"
	"appforge/internal/llm"
	"appforge/internal/orchestrator"
	"appforge/internal/session"
	"appforge/internal/types"
)

const (
	chatWSWriteWait = 10 * time.Second
	chatWSPongWait  = 60 * time.Second
	chatWSPingEvery = (chatWSPongWait * 9) / 10
)

var chatWSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		return true
	},
}

type ChatHandler struct {
	store *conversation.Store
	keys  *session.KeyHolder
	orch  *orchestrator.Orchestrator
}

func NewChatHandler(store *conversation.Store, keys *session.KeyHolder, orch *orchestrator.Orchestrator) *ChatHandler {
	return &ChatHandler{store: store, keys: keys, orch: orch}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

type submitKeyRequest struct {
	Key string `json:"key"`
}

func (h *ChatHandler) HandleSubmitKey(w http.ResponseWriter, r *http.Request) {
	var req submitKeyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := h.keys.Set(r.Context(), req.Key); err != nil {
		var initErr *llm.InitError
		if errors.As(err, &initErr) {
			writeError(w, http.StatusUnauthorized, "key rejected; please submit a valid key")
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"active": true})
}

type sendMessageRequest struct {
	Message string `json:"message"`
}

func (h *ChatHandler) HandleSendMessage(w http.ResponseWriter, r *http.Request) {
	var req sendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}
	if h.orch.BuildRunning() {
		writeError(w, http.StatusConflict, "a build is already running")
		return
	}
	go func() {
		if err := h.orch.BuildFromDescription(context.Background(), msg); err != nil {
			log.Printf("gateway: build pipeline rejected: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

type refactorRequest struct {
	Code types.CodeMap `json:"code"`
}

func (h *ChatHandler) HandleRefactor(w http.ResponseWriter, r *http.Request) {
	var req refactorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if h.orch.RefactorRunning() {
		writeError(w, http.StatusConflict, "a refactor is already running")
		return
	}
	go func() {
		if err := h.orch.RefactorCode(context.Background(), req.Code); err != nil {
			log.Printf("gateway: refactor pipeline rejected: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *ChatHandler) HandlePreviewService(w http.ResponseWriter, r *http.Request) {
	var svc types.Microservice
	if err := json.NewDecoder(r.Body).Decode(&svc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(svc.Name) == "" {
		writeError(w, http.StatusBadRequest, "service name is required")
		return
	}
	go func() {
		if err := h.orch.PreviewService(context.Background(), svc); err != nil {
			log.Printf("gateway: service preview failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *ChatHandler) HandlePreviewApp(w http.ResponseWriter, r *http.Request) {
	var arch types.AppArchitecture
	if err := json.NewDecoder(r.Body).Decode(&arch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(arch.Name) == "" {
		writeError(w, http.StatusBadRequest, "architecture name is required")
		return
	}
	go func() {
		if err := h.orch.PreviewApp(context.Background(), &arch); err != nil {
			log.Printf("gateway: app preview failed: %v", err)
		}
	}()
	writeJSON(w, http.StatusAccepted, map[string]bool{"accepted": true})
}

func (h *ChatHandler) HandlePreviewClose(w http.ResponseWriter, _ *http.Request) {
	h.orch.Previews.Close()
	writeJSON(w, http.StatusOK, map[string]bool{"closed": true})
}

func (h *ChatHandler) HandleConversation(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"messages":     h.store.Snapshot(),
		"buildRunning": h.orch.BuildRunning(),
		"keyActive":    h.keys.IsActive(),
		"refactorBusy": h.orch.RefactorRunning(),
	})
}

func (h *ChatHandler) HandlePreviewState(w http.ResponseWriter, _ *http.Request) {
	state := h.orch.Previews.State()
	writeJSON(w, http.StatusOK, map[string]any{
		"targetName": state.TargetName,
		"html":       state.HTML,
		"isLoading":  state.IsLoading,
		"phase":      state.Phase,
	})
}

type chatWSInbound struct {
	Type    string `json:"type"`
	Message string `json:"message,omitempty"`
}

type chatWSOutbound struct {
	Type     string              `json:"type"`
	Message  *types.ChatMessage  `json:"message,omitempty"`
	Messages []types.ChatMessage `json:"messages,omitempty"`
	Code     string              `json:"code,omitempty"`
	Error    string              `json:"error,omitempty"`
}

func pushChatWS(ch chan<- chatWSOutbound, out chatWSOutbound) {
	select {
	case ch <- out:
	default:
		// slow consumer; drop
	}
}

// HandleChatWS streams the conversation: a snapshot on connect, then every append.
// Inbound "send" frames feed the build pipeline.
func (h *ChatHandler) HandleChatWS(w http.ResponseWriter, r *http.Request) {
	conn, err := chatWSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	if err := conn.SetReadDeadline(time.Now().Add(chatWSPongWait)); err != nil {
		log.Printf("chat ws set read deadline failed: %v", err)
		return
	}
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(chatWSPongWait))
	})

	writeCh := make(chan chatWSOutbound, 64)
	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		ticker := time.NewTicker(chatWSPingEvery)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case out := <-writeCh:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteJSON(out); err != nil {
					return
				}
			case <-ticker.C:
				if err := conn.SetWriteDeadline(time.Now().Add(chatWSWriteWait)); err != nil {
					return
				}
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	}()

	snapshot, sub, unsubscribe := h.store.Subscribe()
	defer unsubscribe()

	pushChatWS(writeCh, chatWSOutbound{Type: "snapshot", Messages: snapshot})

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-sub:
				if !ok {
					return
				}
				m := msg
				pushChatWS(writeCh, chatWSOutbound{Type: "message", Message: &m})
			}
		}
	}()

	for {
		var in chatWSInbound
		if err := conn.ReadJSON(&in); err != nil {
			cancel()
			<-writerDone
			return
		}
		switch strings.ToLower(strings.TrimSpace(in.Type)) {
		case "ping":
			pushChatWS(writeCh, chatWSOutbound{Type: "pong"})
		case "send":
			text := strings.TrimSpace(in.Message)
			if text == "" {
				pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "invalid_argument", Error: "message is required"})
				continue
			}
			go func() {
				if err := h.orch.BuildFromDescription(context.Background(), text); err != nil {
					pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "busy", Error: err.Error()})
				}
			}()
		default:
			pushChatWS(writeCh, chatWSOutbound{Type: "error", Code: "invalid_argument", Error: "unknown frame type"})
		}
	}
}
