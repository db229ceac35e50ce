// Package llm provides provider-agnostic chat completion access for the
// normalizer, with one adapter per backend selected via LLM_PROVIDER.
package llm

import "context"

// ChatProvider issues a single system+user chat completion and returns the
// raw assistant text. The normalizer is responsible for parsing/validating
// that text as JSON; providers know nothing about the expected shape.
type ChatProvider interface {
	Complete(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}
