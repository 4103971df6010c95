package orchestrator

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"appforge/internal/conversation"
	"appforge/internal/types"
)

func TestPreviewServiceLoadsHTML(t *testing.T) {
	client := &scriptedClient{
		servicePrev: func(ctx context.Context, svc types.Microservice) (string, error) {
			return "<html>" + svc.Name + "</html>", nil
		},
	}
	o := New(conversation.NewStore(nil), activeKeys(t, client), nil, NewPreviewManager())

	if err := o.PreviewService(context.Background(), types.Microservice{ID: "s1", Name: "Orders"}); err != nil {
		t.Fatalf("PreviewService: %v", err)
	}
	state := o.Previews.State()
	if state.Phase != PreviewLoaded || state.IsLoading {
		t.Fatalf("expected loaded state, got %+v", state)
	}
	if state.TargetName != "Orders" || !strings.Contains(state.HTML, "Orders") {
		t.Fatalf("unexpected preview payload: %+v", state)
	}
}

func TestPreviewAppUsesWholeAppDisplayName(t *testing.T) {
	client := &scriptedClient{
		appPrev: func(ctx context.Context, arch *types.AppArchitecture) (string, error) {
			return "<html>app</html>", nil
		},
	}
	o := New(conversation.NewStore(nil), activeKeys(t, client), nil, NewPreviewManager())

	if err := o.PreviewApp(context.Background(), testArch()); err != nil {
		t.Fatalf("PreviewApp: %v", err)
	}
	state := o.Previews.State()
	if state.TargetName != "Shop (Full Application)" {
		t.Fatalf("whole-app preview name missing suffix: %q", state.TargetName)
	}
}

func TestPreviewFailureRendersErrorFragment(t *testing.T) {
	client := &scriptedClient{
		servicePrev: func(ctx context.Context, svc types.Microservice) (string, error) {
			return "", errors.New("render timeout")
		},
	}
	o := New(conversation.NewStore(nil), activeKeys(t, client), nil, NewPreviewManager())

	if err := o.PreviewService(context.Background(), types.Microservice{Name: "Orders"}); err != nil {
		t.Fatalf("PreviewService: %v", err)
	}
	state := o.Previews.State()
	if state.Phase != PreviewErrored || state.IsLoading {
		t.Fatalf("expected errored state, got %+v", state)
	}
	if !strings.Contains(state.HTML, "render timeout") {
		t.Fatalf("error fragment should embed the diagnostic: %q", state.HTML)
	}
}

func TestNewerPreviewSupersedesLateResult(t *testing.T) {
	firstStarted := make(chan struct{})
	firstRelease := make(chan struct{})
	var once sync.Once
	client := &scriptedClient{
		servicePrev: func(ctx context.Context, svc types.Microservice) (string, error) {
			if svc.Name == "First" {
				once.Do(func() { close(firstStarted) })
				<-firstRelease
				return "<html>first</html>", nil
			}
			return "<html>second</html>", nil
		},
	}
	o := New(conversation.NewStore(nil), activeKeys(t, client), nil, NewPreviewManager())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.PreviewService(context.Background(), types.Microservice{Name: "First"})
	}()
	<-firstStarted

	// Second request lands while the first is still in flight.
	if err := o.PreviewService(context.Background(), types.Microservice{Name: "Second"}); err != nil {
		t.Fatalf("second PreviewService: %v", err)
	}
	state := o.Previews.State()
	if state.TargetName != "Second" || state.HTML != "<html>second</html>" {
		t.Fatalf("second request should own the surface: %+v", state)
	}

	// Now the first call resolves; its late result must be dropped.
	close(firstRelease)
	<-done
	state = o.Previews.State()
	if state.TargetName != "Second" || state.HTML != "<html>second</html>" {
		t.Fatalf("late result overwrote newer preview: %+v", state)
	}
}

func TestCloseDropsInFlightResult(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	client := &scriptedClient{
		servicePrev: func(ctx context.Context, svc types.Microservice) (string, error) {
			close(started)
			<-release
			return "<html>late</html>", nil
		},
	}
	o := New(conversation.NewStore(nil), activeKeys(t, client), nil, NewPreviewManager())

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = o.PreviewService(context.Background(), types.Microservice{Name: "Orders"})
	}()
	<-started
	o.Previews.Close()
	close(release)
	<-done

	if state := o.Previews.State(); state.Phase != PreviewClosed || state.HTML != "" {
		t.Fatalf("late result leaked past Close: %+v", state)
	}
}

func TestRepeatedPreviewServedFromCache(t *testing.T) {
	calls := 0
	client := &scriptedClient{
		servicePrev: func(ctx context.Context, svc types.Microservice) (string, error) {
			calls++
			return "<html>cached</html>", nil
		},
	}
	o := New(conversation.NewStore(nil), activeKeys(t, client), nil, NewPreviewManager())

	svc := types.Microservice{Name: "Orders"}
	for i := 0; i < 2; i++ {
		if err := o.PreviewService(context.Background(), svc); err != nil {
			t.Fatalf("PreviewService: %v", err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected 1 client call with a warm cache, got %d", calls)
	}

	o.Previews.Invalidate("Orders")
	if err := o.PreviewService(context.Background(), svc); err != nil {
		t.Fatalf("PreviewService after invalidate: %v", err)
	}
	if calls != 2 {
		t.Fatalf("expected regeneration after Invalidate, got %d calls", calls)
	}
}

func TestPreviewWithoutKeyAppendsNotice(t *testing.T) {
	store := conversation.NewStore(nil)
	o := New(store, inactiveKeys(), nil, NewPreviewManager())

	if err := o.PreviewService(context.Background(), types.Microservice{Name: "Orders"}); err != nil {
		t.Fatalf("PreviewService: %v", err)
	}
	if store.Len() != 1 {
		t.Fatalf("expected single key notice, got %d entries", store.Len())
	}
	if state := o.Previews.State(); state.Phase != PreviewClosed {
		t.Fatalf("keyless preview should not open the surface: %+v", state)
	}
}
