package textgen

import (
	"context"
	"strings"
)

// MockGenerator returns a canned script so the service stays usable without
// a hosted model key.
type MockGenerator struct{}

func NewMockGenerator() *MockGenerator { return &MockGenerator{} }

func (m *MockGenerator) Generate(_ context.Context, prompt string) (string, error) {
	if strings.Contains(prompt, "title") || strings.Contains(prompt, "TITLE") {
		return "TITLE: A Quiet Moment\nSUMMARY: A short reflection on the day. Breathe and let it settle.", nil
	}
	return "Take a slow breath in, and let it go. [PAUSE=5s] " +
		"Think back over the moments you wrote about today. [PAUSE=8s] " +
		"Let each one rest where it is. [PAUSE=5s] " +
		"When you are ready, gently return.", nil
}
