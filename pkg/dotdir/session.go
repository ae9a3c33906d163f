package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	sessionFile = "session.json"
)

// SessionState is the persisted story session. LastChunkID tracks the newest
// committed chunk so a restarted process can resume the warm slice. When the
// engine went down mid-turn in offline mode, PendingDraft carries the
// generated prose awaiting player review.
type SessionState struct {
	// TurnID is the identifier of the in-flight turn, empty when idle.
	TurnID string `json:"turn_id,omitempty"`

	// LastChunkID is the id of the newest committed chunk.
	LastChunkID int64 `json:"last_chunk_id"`

	// PendingDraft is generated prose that has not yet passed the quality
	// checkpoint.
	PendingDraft string `json:"pending_draft,omitempty"`
}

// LoadSessionState loads the session from a target .chronicle/session.json.
// Returns nil, nil if no session exists (fresh story).
// If overrideDir is non-empty, it is used instead of the default ~/.chronicle/ location.
func (m *Manager) LoadSessionState(overrideDir string) (*SessionState, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	path := filepath.Join(dir, sessionFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading session state: %w", err)
	}

	state := &SessionState{}
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parsing session state: %w", err)
	}

	return state, nil
}

// SaveSession persists the session state to a target .chronicle/session.json.
func (m *Manager) SaveSession(state *SessionState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil session state")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling session state: %w", err)
	}

	path := filepath.Join(dir, sessionFile)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing session state: %w", err)
	}

	return nil
}

// ClearSession removes the session state file so the next turn starts from a
// clean idle state. Returns nil if the file doesn't exist (already cleared).
func (m *Manager) ClearSession(overrideDir string) error {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	path := filepath.Join(dir, sessionFile)
	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing session state: %w", err)
	}

	return nil
}
