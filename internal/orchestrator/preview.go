package orchestrator

import (
	"context"
	"fmt"
	"html"
	"log"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// PreviewPhase tracks the preview surface state machine:
// Closed -> Opening(loading) -> Loaded | Errored. New requests restart from
// Opening, discarding the prior payload.
type PreviewPhase string

const (
	PreviewClosed  PreviewPhase = "closed"
	PreviewOpening PreviewPhase = "opening"
	PreviewLoaded  PreviewPhase = "loaded"
	PreviewErrored PreviewPhase = "errored"
)

// PreviewState is the transient payload for the single preview surface. It is
// never persisted.
type PreviewState struct {
	TargetName string
	HTML       string
	IsLoading  bool
	Phase      PreviewPhase
}

const previewCacheSize = 64

// PreviewManager owns the preview surface state. Each Render supersedes any prior
// request: a result arriving after a newer request began is dropped, and closing
// the surface also invalidates in-flight results. The underlying generation call
// is not aborted.
type PreviewManager struct {
	mu    sync.RWMutex
	state PreviewState
	gen   uint64

	cache *lru.Cache[string, string]
}

func NewPreviewManager() *PreviewManager {
	cache, err := lru.New[string, string](previewCacheSize)
	if err != nil {
		// only possible with a non-positive size
		log.Printf("preview: cache disabled: %v", err)
	}
	return &PreviewManager{
		state: PreviewState{Phase: PreviewClosed},
		cache: cache,
	}
}

// State returns a copy of the current surface state.
func (m *PreviewManager) State() PreviewState {
	m.mu.RLock()
	s := m.state
	m.mu.RUnlock()
	return s
}

// Close returns the surface to Closed. Any in-flight render becomes stale.
func (m *PreviewManager) Close() {
	m.mu.Lock()
	m.gen++
	m.state = PreviewState{Phase: PreviewClosed}
	m.mu.Unlock()
}

// begin opens the surface in the loading state and returns the request generation.
func (m *PreviewManager) begin(targetName string) uint64 {
	m.mu.Lock()
	m.gen++
	gen := m.gen
	m.state = PreviewState{TargetName: targetName, IsLoading: true, Phase: PreviewOpening}
	m.mu.Unlock()
	return gen
}

// commit installs a result unless a newer request or a Close superseded it.
func (m *PreviewManager) commit(gen uint64, next PreviewState) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen != m.gen {
		return false
	}
	m.state = next
	return true
}

// Render drives one preview request: open the surface loading, produce the HTML,
// then commit either the page or a rendered error fragment. The produce call runs
// after the surface is already visible as loading.
func (m *PreviewManager) Render(ctx context.Context, targetName string, produce func(context.Context) (string, error), sink ArtifactSink) error {
	gen := m.begin(targetName)

	if m.cache != nil {
		if cached, ok := m.cache.Get(targetName); ok {
			m.commit(gen, PreviewState{TargetName: targetName, HTML: cached, Phase: PreviewLoaded})
			return nil
		}
	}

	htmlContent, err := produce(ctx)
	if err != nil {
		if !m.commit(gen, PreviewState{TargetName: targetName, HTML: errorFragment(targetName, err), Phase: PreviewErrored}) {
			log.Printf("preview: dropping stale error for %q: %v", targetName, err)
		}
		return nil
	}

	if !m.commit(gen, PreviewState{TargetName: targetName, HTML: htmlContent, Phase: PreviewLoaded}) {
		log.Printf("preview: dropping stale result for %q", targetName)
		return nil
	}
	if m.cache != nil {
		m.cache.Add(targetName, htmlContent)
	}
	if sink != nil {
		if err := sink.SavePreviewHTML(ctx, targetName, htmlContent); err != nil {
			log.Printf("preview: saving artifact for %q failed: %v", targetName, err)
		}
	}
	return nil
}

// Invalidate evicts a cached preview so the next request regenerates it.
func (m *PreviewManager) Invalidate(targetName string) {
	if m.cache != nil {
		m.cache.Remove(targetName)
	}
}

func errorFragment(targetName string, err error) string {
	return fmt.Sprintf(
		`<div class="preview-error"><h2>Preview failed</h2><p>%s: %s</p></div>`,
		html.EscapeString(targetName), html.EscapeString(err.Error()))
}
