package testutils

import (
	"context"
	"sync"
)

// ScriptedCaller replays canned model replies in order, recording every
// prompt it saw. Safe for concurrent use.
type ScriptedCaller struct {
	mu      sync.Mutex
	replies []string
	errs    []error
	next    int

	Prompts []string
}

// NewScriptedCaller builds a caller that returns the given replies one at a
// time. Once exhausted it keeps returning the final reply.
func NewScriptedCaller(replies ...string) *ScriptedCaller {
	return &ScriptedCaller{replies: replies, errs: make([]error, len(replies))}
}

// FailWith appends a reply slot that returns err instead of text.
func (s *ScriptedCaller) FailWith(err error) *ScriptedCaller {
	s.replies = append(s.replies, "")
	s.errs = append(s.errs, err)
	return s
}

// Call satisfies llm.CallFunc.
func (s *ScriptedCaller) Call(_ context.Context, prompt string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.Prompts = append(s.Prompts, prompt)

	if len(s.replies) == 0 {
		return "", nil
	}

	i := s.next
	if i >= len(s.replies) {
		i = len(s.replies) - 1
	} else {
		s.next++
	}

	if s.errs[i] != nil {
		return "", s.errs[i]
	}
	return s.replies[i], nil
}
