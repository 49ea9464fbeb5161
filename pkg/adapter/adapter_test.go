package adapter

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestRegistryResolvesByModel(t *testing.T) {
	mock := NewMockAdapter().ServeModels("m-light", "m-heavy")
	reg := NewRegistry(mock)

	a, err := reg.ForModel("m-light")
	if err != nil {
		t.Fatalf("for model: %v", err)
	}
	if a.Name() != "mock" {
		t.Fatalf("adapter = %q, want mock", a.Name())
	}

	if _, err := reg.ForModel("m-unknown"); err == nil {
		t.Fatal("unknown model resolved")
	}
	if _, err := reg.Get("mock"); err != nil {
		t.Fatalf("get by name: %v", err)
	}
	if _, err := reg.Get("anthropic"); err == nil {
		t.Fatal("unregistered name resolved")
	}
	if names := reg.Names(); len(names) != 1 || names[0] != "mock" {
		t.Fatalf("names = %v", names)
	}
}

func TestMockCannedResponses(t *testing.T) {
	mock := NewMockAdapterWithResponses(map[string]string{
		"summarize the incident": "three services restarted",
	}, "fallback:")
	mock.Usage = &Usage{PromptTokens: 12, CompletionTokens: 5, TotalTokens: 17}

	resp, err := mock.Generate(context.Background(), "mock-1", "summarize the incident")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if resp.Artifact.Content != "three services restarted" {
		t.Fatalf("content = %q", resp.Artifact.Content)
	}
	if resp.Usage == nil || resp.Usage.TotalTokens != 17 {
		t.Fatalf("usage = %+v", resp.Usage)
	}

	resp, err = mock.Generate(context.Background(), "", "anything else")
	if err != nil {
		t.Fatalf("generate default: %v", err)
	}
	if resp.Artifact.Model != "mock-1" {
		t.Fatalf("model = %q, want mock-1 default", resp.Artifact.Model)
	}
	if want := "fallback:\nanything else"; resp.Artifact.Content != want {
		t.Fatalf("content = %q, want %q", resp.Artifact.Content, want)
	}
}

func TestMockHonorsContext(t *testing.T) {
	mock := NewMockAdapter()
	mock.Delay = 250 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := mock.Generate(ctx, "mock-1", "slow prompt")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("got %v, want deadline exceeded", err)
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "dial timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestIsTransient(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"canceled", context.Canceled, false},
		{"rate limited", &AdapterError{Status: 429}, true},
		{"server error", &AdapterError{Status: 503}, true},
		{"bad request", &AdapterError{Status: 400}, false},
		{"temporary flag", &AdapterError{Temporary: true}, true},
		{"wrapped", fmt.Errorf("call failed: %w", &AdapterError{Status: 500}), true},
		{"net timeout", timeoutErr{}, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsTransient(tc.err); got != tc.want {
				t.Fatalf("IsTransient(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}
