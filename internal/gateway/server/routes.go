package server

import (
	"net/http"

	"appforge/internal/gateway/handler"
	"appforge/internal/gateway/middleware"
)

func NewMux(chat *handler.ChatHandler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/key", chat.HandleSubmitKey)
	mux.HandleFunc("POST /api/message", chat.HandleSendMessage)
	mux.HandleFunc("POST /api/refactor", chat.HandleRefactor)
	mux.HandleFunc("POST /api/preview/service", chat.HandlePreviewService)
	mux.HandleFunc("POST /api/preview/app", chat.HandlePreviewApp)
	mux.HandleFunc("POST /api/preview/close", chat.HandlePreviewClose)
	mux.HandleFunc("GET /api/conversation", chat.HandleConversation)
	mux.HandleFunc("GET /api/preview", chat.HandlePreviewState)
	mux.HandleFunc("GET /ws/chat", chat.HandleChatWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return middleware.CORS(mux)
}
