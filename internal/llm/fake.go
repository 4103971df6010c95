package llm

import (
	"context"
	"fmt"

	"appforge/internal/types"
)

// FakeClient returns deterministic payloads for offline runs and tests.
type FakeClient struct{}

func NewFakeClient() *FakeClient { return &FakeClient{} }

func (f *FakeClient) Name() string { return "FakeLLM" }
func (f *FakeClient) Close() error { return nil }

func (f *FakeClient) ProduceArchitecture(ctx context.Context, description string) (*types.AppArchitecture, error) {
	return &types.AppArchitecture{
		Name:        "Fake App",
		Description: "Deterministic architecture for: " + description,
		Microservices: []types.Microservice{
			{
				ID:          "svc-api",
				Name:        "API Service",
				Description: "Serves the public API.",
				APIEndpoints: []types.APIEndpoint{
					{Method: "GET", Path: "/health", Description: "Liveness probe."},
				},
			},
		},
		DataStores: []types.DataStore{
			{ID: "db-main", Name: "Main DB", Type: types.DataStorePostgres, SchemaDescription: "Primary relational store."},
		},
	}, nil
}

func (f *FakeClient) ProduceBackendCode(ctx context.Context, arch *types.AppArchitecture) (types.CodeMap, error) {
	return types.CodeMap{
		"main.go": "package main\n\nfunc main() {}\n",
	}, nil
}

func (f *FakeClient) ProduceRefactor(ctx context.Context, code types.CodeMap) (*types.RefactorResult, error) {
	out := make(types.CodeMap, len(code))
	for name, src := range code {
		out[name] = src
	}
	return &types.RefactorResult{
		Analysis:       fmt.Sprintf("Reviewed %d files; no changes required.", len(code)),
		RefactoredCode: out,
	}, nil
}

func (f *FakeClient) ProduceServicePreviewHTML(ctx context.Context, svc types.Microservice) (string, error) {
	return "<html><body><h1>" + svc.Name + "</h1></body></html>", nil
}

func (f *FakeClient) ProduceAppPreviewHTML(ctx context.Context, arch *types.AppArchitecture) (string, error) {
	return "<html><body><h1>" + arch.Name + "</h1></body></html>", nil
}
