// Package orchestrator sequences generation calls around the conversation store:
// the build pipeline, the refactor pipeline, and the preview pipelines. Errors from
// the generation client never escape a pipeline boundary; they become conversation
// entries or preview error payloads.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/google/uuid"

	"appforge/internal/conversation"
	"appforge/internal/session"
	"appforge/internal/types"
)

// ErrPipelineBusy is returned when a build or refactor pipeline is invoked while a
// previous invocation of the same pipeline is still running.
var ErrPipelineBusy = errors.New("orchestrator: pipeline already running")

const keyRequiredNotice = "Please submit a valid generation API key before sending requests. Use the key form to activate one."

// backendLanguage tags every generated code map.
const backendLanguage = "go"

// wholeAppSuffix marks a preview of the full application rather than one service.
const wholeAppSuffix = " (Full Application)"

// ArtifactSink receives best-effort copies of generated outputs. Failures are
// logged, never surfaced into the conversation.
type ArtifactSink interface {
	SaveCodeMap(ctx context.Context, runID string, code types.CodeMap) error
	SavePreviewHTML(ctx context.Context, targetName, html string) error
}

// Orchestrator drives the generation pipelines for one conversation.
type Orchestrator struct {
	Store     *conversation.Store
	Keys      *session.KeyHolder
	Artifacts ArtifactSink
	Previews  *PreviewManager

	mu              sync.Mutex
	buildRunning    bool
	refactorRunning bool
}

// New assembles an orchestrator; previews may be nil when no preview surface exists.
func New(store *conversation.Store, keys *session.KeyHolder, artifacts ArtifactSink, previews *PreviewManager) *Orchestrator {
	return &Orchestrator{Store: store, Keys: keys, Artifacts: artifacts, Previews: previews}
}

// BuildRunning reports whether the build pipeline is in flight. Advisory UI state.
func (o *Orchestrator) BuildRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.buildRunning
}

// RefactorRunning reports whether the refactor pipeline is in flight.
func (o *Orchestrator) RefactorRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.refactorRunning
}

func (o *Orchestrator) acquireBuild() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.buildRunning {
		return false
	}
	o.buildRunning = true
	return true
}

func (o *Orchestrator) releaseBuild() {
	o.mu.Lock()
	o.buildRunning = false
	o.mu.Unlock()
}

func (o *Orchestrator) acquireRefactor() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.refactorRunning {
		return false
	}
	o.refactorRunning = true
	return true
}

func (o *Orchestrator) releaseRefactor() {
	o.mu.Lock()
	o.refactorRunning = false
	o.mu.Unlock()
}

func (o *Orchestrator) appendAIText(content string) {
	o.Store.Append(types.ChatMessage{Author: types.AuthorAI, Type: types.MessageText, Content: content})
}

// BuildFromDescription runs the primary pipeline: user TEXT, architecture, backend
// code, then an app-preview prompt. Strictly sequential; a failure at any step
// appends one diagnostic TEXT entry and aborts the rest. The loading flag is
// released on every path. Overlapping invocations are rejected with ErrPipelineBusy.
func (o *Orchestrator) BuildFromDescription(ctx context.Context, description string) error {
	if !o.Keys.IsActive() {
		o.Store.Append(types.ChatMessage{Author: types.AuthorUser, Type: types.MessageText, Content: description})
		o.appendAIText(keyRequiredNotice)
		return nil
	}
	if !o.acquireBuild() {
		return ErrPipelineBusy
	}
	defer o.releaseBuild()

	o.Store.Append(types.ChatMessage{Author: types.AuthorUser, Type: types.MessageText, Content: description})
	client := o.Keys.Client()

	arch, err := client.ProduceArchitecture(ctx, description)
	if err != nil {
		o.appendAIText(diagnostic("designing the architecture", err))
		return nil
	}
	o.appendAIText(fmt.Sprintf("I've designed the architecture for %s. Here is the proposed backend topology.", arch.Name))
	o.Store.Append(types.ChatMessage{Author: types.AuthorAI, Type: types.MessageArchitecture, Architecture: arch})

	code, err := client.ProduceBackendCode(ctx, arch)
	if err != nil {
		o.appendAIText(diagnostic("generating the backend code", err))
		return nil
	}
	o.Store.Append(types.ChatMessage{
		Author:       types.AuthorAI,
		Type:         types.MessageCode,
		Content:      "Here is the scaffolded backend source.",
		Code:         code,
		CodeLanguage: backendLanguage,
	})
	o.saveCodeArtifact(ctx, code)

	o.Store.Append(types.ChatMessage{
		Author:       types.AuthorAI,
		Type:         types.MessageAppPreviewPrompt,
		Content:      "Want to see the whole application in one view? Request a full-app preview.",
		Architecture: arch,
	})
	return nil
}

// RefactorCode runs the secondary pipeline over a code map. When no key is active
// the call is a no-op. Exactly one generation call is issued, and exactly one of
// REFACTOR_ANALYSIS or a diagnostic TEXT is appended.
func (o *Orchestrator) RefactorCode(ctx context.Context, code types.CodeMap) error {
	if !o.Keys.IsActive() {
		return nil
	}
	if !o.acquireRefactor() {
		return ErrPipelineBusy
	}
	defer o.releaseRefactor()

	o.appendAIText("Analyzing the generated code for refactoring opportunities...")

	result, err := o.Keys.Client().ProduceRefactor(ctx, code)
	if err != nil {
		o.appendAIText(diagnostic("refactoring the code", err))
		return nil
	}
	o.Store.Append(types.ChatMessage{
		Author:       types.AuthorAI,
		Type:         types.MessageRefactorAnalysis,
		Content:      result.Analysis,
		Code:         result.RefactoredCode,
		CodeLanguage: backendLanguage,
	})
	o.saveCodeArtifact(ctx, result.RefactoredCode)
	return nil
}

// PreviewService opens the preview surface for one microservice and fills it in.
// A newer preview request supersedes this one; late results are dropped.
func (o *Orchestrator) PreviewService(ctx context.Context, svc types.Microservice) error {
	if !o.Keys.IsActive() {
		o.appendAIText(keyRequiredNotice)
		return nil
	}
	client := o.Keys.Client()
	return o.Previews.Render(ctx, svc.Name, func(ctx context.Context) (string, error) {
		return client.ProduceServicePreviewHTML(ctx, svc)
	}, o.Artifacts)
}

// PreviewApp is the whole-app variant of PreviewService, keyed by the
// architecture with a distinguishing display name.
func (o *Orchestrator) PreviewApp(ctx context.Context, arch *types.AppArchitecture) error {
	if !o.Keys.IsActive() {
		o.appendAIText(keyRequiredNotice)
		return nil
	}
	client := o.Keys.Client()
	return o.Previews.Render(ctx, arch.Name+wholeAppSuffix, func(ctx context.Context) (string, error) {
		return client.ProduceAppPreviewHTML(ctx, arch)
	}, o.Artifacts)
}

func (o *Orchestrator) saveCodeArtifact(ctx context.Context, code types.CodeMap) {
	if o.Artifacts == nil || len(code) == 0 {
		return
	}
	runID := uuid.NewString()
	if err := o.Artifacts.SaveCodeMap(ctx, runID, code); err != nil {
		log.Printf("orchestrator: saving code artifact %s failed: %v", runID, err)
	}
}

func diagnostic(step string, err error) string {
	return fmt.Sprintf("Sorry, something went wrong while %s: %v. Please try again.", step, err)
}
