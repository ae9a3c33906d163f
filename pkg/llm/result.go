package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Outcome tags the result of a structured (JSON-contract) model call.
type Outcome int

const (
	// OutcomeOK means the response parsed into the expected shape.
	OutcomeOK Outcome = iota

	// OutcomeSchemaError means the provider answered but the payload did
	// not satisfy the JSON contract.
	OutcomeSchemaError

	// OutcomeUnreachable means the provider could not be reached.
	OutcomeUnreachable

	// OutcomeTimeout means the call exceeded its deadline.
	OutcomeTimeout
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeSchemaError:
		return "schema_error"
	case OutcomeUnreachable:
		return "unreachable"
	case OutcomeTimeout:
		return "timeout"
	default:
		return "unknown"
	}
}

// Result is the tagged outcome of a structured model call. Value is only
// meaningful when Outcome is OutcomeOK.
type Result[T any] struct {
	Outcome Outcome
	Value   T
	Err     error
}

// Classify maps a call error to its outcome tag.
func Classify(err error) Outcome {
	switch {
	case err == nil:
		return OutcomeOK
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return OutcomeTimeout
	case errors.Is(err, ErrUnreachable):
		return OutcomeUnreachable
	default:
		return OutcomeSchemaError
	}
}

// DecodeJSON extracts the first JSON object from a model response (models
// habitually wrap JSON in markdown fences) and unmarshals it into T.
func DecodeJSON[T any](response string) Result[T] {
	var value T

	jsonStr := response
	if idx := strings.Index(response, "{"); idx >= 0 {
		endIdx := strings.LastIndex(response, "}")
		if endIdx > idx {
			jsonStr = response[idx : endIdx+1]
		}
	}

	if err := json.Unmarshal([]byte(jsonStr), &value); err != nil {
		return Result[T]{
			Outcome: OutcomeSchemaError,
			Err:     fmt.Errorf("%w: %v", ErrMalformed, err),
		}
	}

	return Result[T]{Outcome: OutcomeOK, Value: value}
}

// CallStructured issues a prompt expecting a JSON reply of type T. A schema
// violation is retried exactly once; a second violation fails the sub-task.
// Unreachable/timeout errors are never retried here — the caller decides the
// recovery policy for those.
func CallStructured[T any](ctx context.Context, call CallFunc, prompt string) (T, error) {
	var zero T

	for attempt := 0; attempt < 2; attempt++ {
		response, err := call(ctx, prompt)
		if err != nil {
			return zero, err
		}

		result := DecodeJSON[T](response)
		if result.Outcome == OutcomeOK {
			return result.Value, nil
		}

		if attempt == 0 {
			continue
		}
		return zero, fmt.Errorf("structured call failed after retry: %w", result.Err)
	}

	return zero, ErrMalformed // unreachable
}
