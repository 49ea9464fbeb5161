package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/zen-systems/helmsman/pkg/artifact"
)

// MockAdapter returns deterministic responses for local runs and tests.
// Usage, Delay and Err may be set before use to shape its behavior.
type MockAdapter struct {
	responses       map[string]string
	defaultResponse string
	models          []string

	Usage *Usage
	Delay time.Duration
	Err   error
}

// NewMockAdapter creates a mock adapter with a default response.
func NewMockAdapter() *MockAdapter {
	return &MockAdapter{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockAdapterWithResponses creates a mock adapter with predefined
// responses keyed by prompt.
func NewMockAdapterWithResponses(responses map[string]string, defaultResponse string) *MockAdapter {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockAdapter{responses: responses, defaultResponse: defaultResponse}
}

// ServeModels overrides the model list the mock claims to support.
func (a *MockAdapter) ServeModels(models ...string) *MockAdapter {
	a.models = models
	return a
}

// Name returns the adapter identifier.
func (a *MockAdapter) Name() string {
	return "mock"
}

// Models returns the list of supported mock models.
func (a *MockAdapter) Models() []string {
	if len(a.models) > 0 {
		return a.models
	}
	return []string{"mock-1"}
}

// Generate returns a deterministic response for the prompt.
func (a *MockAdapter) Generate(ctx context.Context, model string, prompt string) (*Response, error) {
	if a.Delay > 0 {
		select {
		case <-time.After(a.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if a.Err != nil {
		return nil, a.Err
	}

	if model == "" {
		model = "mock-1"
	}
	content, ok := a.responses[prompt]
	if !ok {
		content = fmt.Sprintf("%s\n%s", a.defaultResponse, prompt)
	}
	return &Response{
		Artifact: artifact.New(content, a.Name(), model, prompt),
		Usage:    a.Usage,
	}, nil
}
