// Package llm models the external language-model capabilities the chronicle
// core depends on: the apex generation call that produces narrative text and
// the smaller evaluation calls used for re-ranking and query planning.
//
// Providers are request/response only. Failure modes are part of the
// contract: Unreachable and Timeout are recoverable (the orchestrator enters
// offline mode), a malformed structured response gets exactly one retry and
// then fails the sub-task.
package llm

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrUnreachable is returned when the provider cannot be reached.
	ErrUnreachable = errors.New("generation capability unreachable")

	// ErrTimeout is returned when a call exceeds its deadline.
	ErrTimeout = errors.New("generation call timed out")

	// ErrMalformed is returned when a provider response violates the
	// expected schema.
	ErrMalformed = errors.New("malformed model output")
)

// CallFunc is the signature of a single prompt-in, text-out model call.
// Both the apex generation capability and the secondary evaluation
// capability are consumed through this shape.
type CallFunc func(ctx context.Context, prompt string) (string, error)

// GenerationRequest is the apex narrative-generation request: the assembled
// context payload plus the directive for this turn.
type GenerationRequest struct {
	// System is the standing system prompt.
	System string `json:"system,omitempty"`

	// Payload is the assembled context payload text.
	Payload string `json:"payload"`

	// Instructions is the live user input driving this turn.
	Instructions string `json:"instructions"`
}

// GenerationResponse is the apex call's reply.
type GenerationResponse struct {
	// Text is the generated narrative prose.
	Text string `json:"text"`

	// Model that produced the response, when the provider reports it.
	Model string `json:"model,omitempty"`

	// Elapsed is the wall-clock duration of the call.
	Elapsed time.Duration `json:"elapsed,omitempty"`
}

// Generator is the external narrative-generation capability.
type Generator interface {
	Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)
}

// GeneratorFunc adapts a function to the Generator interface.
type GeneratorFunc func(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error)

func (f GeneratorFunc) Generate(ctx context.Context, req *GenerationRequest) (*GenerationResponse, error) {
	return f(ctx, req)
}

// Recoverable reports whether an error from a generation call should send
// the orchestrator into offline mode rather than failing the turn.
func Recoverable(err error) bool {
	return errors.Is(err, ErrUnreachable) ||
		errors.Is(err, ErrTimeout) ||
		errors.Is(err, context.DeadlineExceeded)
}
