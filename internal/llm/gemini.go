package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	genai "google.golang.org/genai"

	"appforge/internal/types"
)

const defaultGeminiModel = "gemini-2.5-flash"

// GeminiClient is a thin wrapper around the official genai client.
type GeminiClient struct {
	cli   *genai.Client
	model string
	rl    *rpsLimiter
}

// NewGeminiClient validates the key by constructing the genai client. A rejected
// or empty key is reported as *InitError.
func NewGeminiClient(ctx context.Context, apiKey, model string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, &InitError{Err: fmt.Errorf("api key is empty")}
	}
	if model == "" {
		model = defaultGeminiModel
	}
	cli, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &InitError{Err: err}
	}
	return &GeminiClient{cli: cli, model: model, rl: newRPSLimiterFromEnv()}, nil
}

// Optional RPS limiter via env: LLM_RPS/GEMINI_RPS and LLM_BURST/GEMINI_BURST.
func newRPSLimiterFromEnv() *rpsLimiter {
	var rps float64
	var burst int
	for _, key := range []string{"LLM_RPS", "GEMINI_RPS"} {
		if v := os.Getenv(key); v != "" && rps == 0 {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				rps = f
			}
		}
	}
	for _, key := range []string{"LLM_BURST", "GEMINI_BURST"} {
		if v := os.Getenv(key); v != "" && burst == 0 {
			if n, err := strconv.Atoi(v); err == nil {
				burst = n
			}
		}
	}
	return newRPSLimiter(rps, burst)
}

func (g *GeminiClient) Name() string { return "Gemini:" + g.model }

func (g *GeminiClient) Close() error {
	if g.rl != nil {
		g.rl.Stop()
	}
	return nil
}

// generate sends prompt plus an input JSON blob and requests the given MIME type.
func (g *GeminiClient) generate(ctx context.Context, op, prompt, mime string, input any) (string, error) {
	full := prompt
	if input != nil {
		in, _ := json.MarshalIndent(input, "", "  ")
		full = prompt + "\n\n[INPUT JSON]\n" + string(in)
	}
	log.Printf("llm request (%s): %d bytes", op, len(full))

	var lastErr error
	for attempt := 0; attempt < 3; attempt++ {
		// Each API call consumes a limiter token.
		if err := g.rl.Acquire(ctx); err != nil {
			lastErr = err
			break
		}
		resp, err := g.cli.Models.GenerateContent(ctx, g.model,
			[]*genai.Content{{Parts: []*genai.Part{{Text: full}}}},
			&genai.GenerateContentConfig{ResponseMIMEType: mime},
		)
		if err != nil {
			lastErr = err
		} else if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
			lastErr = ErrInvalidJSON
		} else {
			return resp.Candidates[0].Content.Parts[0].Text, nil
		}
		time.Sleep(time.Duration(300*(1<<attempt)) * time.Millisecond)
	}
	return "", generationErr(op, lastErr)
}

func (g *GeminiClient) generateJSON(ctx context.Context, op, prompt string, input, out any) error {
	txt, err := g.generate(ctx, op, prompt, "application/json", input)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(txt), out); err != nil {
		return generationErr(op, fmt.Errorf("%w: %v", ErrInvalidJSON, err))
	}
	return nil
}

const archPrompt = `You are a software architect. Design a backend for the application
described below as a set of microservices and data stores. Return JSON with fields:
name, description, microservices (id, name, description, api_endpoints with method,
path, description), data_stores (id, name, type one of PostgreSQL|MongoDB|Redis|S3 Bucket|Other,
schema_description). Return JSON only.`

func (g *GeminiClient) ProduceArchitecture(ctx context.Context, description string) (*types.AppArchitecture, error) {
	var arch types.AppArchitecture
	input := map[string]any{"description": description}
	if err := g.generateJSON(ctx, "architecture", archPrompt, input, &arch); err != nil {
		return nil, err
	}
	if arch.Name == "" {
		return nil, generationErr("architecture", fmt.Errorf("%w: missing name", ErrInvalidJSON))
	}
	return &arch, nil
}

const codePrompt = `Generate idiomatic Go backend source files implementing the
architecture below. Return a JSON object mapping filename to complete file contents.
Return JSON only.`

func (g *GeminiClient) ProduceBackendCode(ctx context.Context, arch *types.AppArchitecture) (types.CodeMap, error) {
	var code types.CodeMap
	if err := g.generateJSON(ctx, "backend_code", codePrompt, arch, &code); err != nil {
		return nil, err
	}
	return code, nil
}

const refactorPrompt = `Review the source files below. Return JSON with fields:
analysis (a prose review of the issues found) and refactored_code (a JSON object
mapping filename to the improved file contents). Return JSON only.`

func (g *GeminiClient) ProduceRefactor(ctx context.Context, code types.CodeMap) (*types.RefactorResult, error) {
	var out types.RefactorResult
	if err := g.generateJSON(ctx, "refactor", refactorPrompt, code, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

const servicePreviewPrompt = `Render a single self-contained HTML page presenting the
microservice below: its purpose and its API endpoints. Inline all CSS. Return raw
HTML only, no markdown fences.`

func (g *GeminiClient) ProduceServicePreviewHTML(ctx context.Context, svc types.Microservice) (string, error) {
	return g.generate(ctx, "service_preview", servicePreviewPrompt, "text/plain", svc)
}

const appPreviewPrompt = `Render a single self-contained HTML page presenting the whole
application architecture below: every microservice and data store, with a short
description of each. Inline all CSS. Return raw HTML only, no markdown fences.`

func (g *GeminiClient) ProduceAppPreviewHTML(ctx context.Context, arch *types.AppArchitecture) (string, error) {
	return g.generate(ctx, "app_preview", appPreviewPrompt, "text/plain", arch)
}
