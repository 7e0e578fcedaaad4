// Package textgen abstracts the hosted text-generation service used for
// scripts, titles, and summaries.
package textgen

import "context"

// Generator produces text for a prompt. Implementations wrap one hosted
// model endpoint; callers own timeouts via ctx.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// GeneratorFunc adapts a plain function to the Generator interface.
type GeneratorFunc func(ctx context.Context, prompt string) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}
