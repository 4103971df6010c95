package llm

import (
	"context"
	"errors"
	"fmt"

	"appforge/internal/types"
)

var ErrInvalidJSON = errors.New("llm: invalid JSON from model")

// GenerationClient is the capability the orchestrator drives. Implementations are
// opaque; the orchestrator never inspects prompts or model configuration.
type GenerationClient interface {
	Name() string
	ProduceArchitecture(ctx context.Context, description string) (*types.AppArchitecture, error)
	ProduceBackendCode(ctx context.Context, arch *types.AppArchitecture) (types.CodeMap, error)
	ProduceRefactor(ctx context.Context, code types.CodeMap) (*types.RefactorResult, error)
	ProduceServicePreviewHTML(ctx context.Context, svc types.Microservice) (string, error)
	ProduceAppPreviewHTML(ctx context.Context, arch *types.AppArchitecture) (string, error)
	Close() error
}

// ClientFactory builds a GenerationClient from a submitted API key. A rejected key
// surfaces as *InitError.
type ClientFactory func(ctx context.Context, apiKey string) (GenerationClient, error)

// InitError marks a credential the backing service refused. The caller must keep
// prompting for a key.
type InitError struct {
	Err error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("llm: client init failed: %v", e.Err)
}

func (e *InitError) Unwrap() error { return e.Err }

// GenerationError wraps any failure while producing architecture, code, refactor
// output, or preview HTML. Transient and permanent failures are not distinguished.
type GenerationError struct {
	Op  string
	Err error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("llm: %s failed: %v", e.Op, e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

func generationErr(op string, err error) error {
	if err == nil {
		return nil
	}
	return &GenerationError{Op: op, Err: err}
}
