package app

import (
	"context"
	"fmt"
	"log"
	"strings"

	"appforge/internal/artifact"
	"appforge/internal/conversation"
	"appforge/internal/gateway/config"
	"appforge/internal/gateway/handler"
	"appforge/internal/gateway/server"
	"appforge/internal/llm"
	"appforge/internal/orchestrator"
	"appforge/internal/session"
	"appforge/internal/types"
)

const welcomeMessage = "Hi! Describe the application you want to build and I'll design its backend architecture, scaffold the source, and render previews."

type App struct {
	server *server.Server
	keys   *session.KeyHolder
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	store := conversation.NewStore(nil)
	store.Append(types.ChatMessage{Author: types.AuthorAI, Type: types.MessageText, Content: welcomeMessage})

	keys := session.NewKeyHolder(clientFactory(cfg), session.NewFromEnv(cfg.CredentialPath))
	keys.Restore(context.Background())

	var sink orchestrator.ArtifactSink
	if cfg.Artifact.Enabled {
		s3, err := artifact.NewS3Store(artifact.S3Config{
			Endpoint:  cfg.Artifact.Endpoint,
			Region:    cfg.Artifact.Region,
			AccessKey: cfg.Artifact.AccessKey,
			SecretKey: cfg.Artifact.SecretKey,
			Bucket:    cfg.Artifact.Bucket,
			UseSSL:    cfg.Artifact.UseSSL,
		})
		if err != nil {
			log.Printf("artifact store disabled: %v", err)
		} else {
			sink = s3
		}
	}

	orch := orchestrator.New(store, keys, sink, orchestrator.NewPreviewManager())
	chatHandler := handler.NewChatHandler(store, keys, orch)

	mux := server.NewMux(chatHandler)
	srv := server.New(cfg.Port, mux)

	return &App{server: srv, keys: keys}, nil
}

func clientFactory(cfg *config.Config) llm.ClientFactory {
	if strings.EqualFold(cfg.LLMProvider, "fake") {
		return func(ctx context.Context, apiKey string) (llm.GenerationClient, error) {
			if strings.TrimSpace(apiKey) == "" {
				return nil, &llm.InitError{Err: fmt.Errorf("api key is empty")}
			}
			return llm.NewFakeClient(), nil
		}
	}
	return func(ctx context.Context, apiKey string) (llm.GenerationClient, error) {
		return llm.NewGeminiClient(ctx, apiKey, cfg.GeminiModel)
	}
}

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	if err := a.keys.Close(); err != nil {
		log.Printf("closing generation client: %v", err)
	}
	return a.server.Shutdown(ctx)
}
