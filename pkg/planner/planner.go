// Package planner runs the bounded agentic query loop: the evaluation model
// proposes one relational query at a time, sees a summary of the result, and
// decides whether to dig further or stop. The loop is capped and guarded, so
// a confused model can never hold a turn hostage.
package planner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/llm"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

// ErrQueryLoop reports that the model proposed a lexically identical query
// twice. The planner stops and returns the evidence gathered so far.
var ErrQueryLoop = errors.New("query loop detected")

// ErrMalformedAction reports that the model produced an unusable action
// twice in a row. Fatal for the sub-task.
var ErrMalformedAction = errors.New("malformed planner action")

const (
	actionRunQuery  = "run_query"
	actionTerminate = "terminate"

	// summaryRowLimit caps how many rows of a result are echoed back to
	// the model each step.
	summaryRowLimit = 5

	defaultMaxSteps = 5
)

// Executor runs a validated read-only query against the structured store.
// *storage.Driver implementations satisfy it.
type Executor interface {
	ReadOnlyQuery(ctx context.Context, query string) (*storage.QueryRows, error)
}

// Action is the single move the model proposes each step.
type Action struct {
	Action string `json:"action"`
	SQL    string `json:"sql,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// Step records one executed query and the summary shown to the model.
type Step struct {
	SQL     string `json:"sql"`
	Summary string `json:"summary"`
	Rows    int    `json:"rows"`
}

// Termination says how the loop ended.
type Termination string

const (
	// TerminatedByModel means the model chose to stop.
	TerminatedByModel Termination = "terminated"

	// TerminatedStepLimit means the step cap was reached; evidence is
	// partial.
	TerminatedStepLimit Termination = "step_limit"

	// TerminatedQueryLoop means the loop guard fired; evidence is partial.
	TerminatedQueryLoop Termination = "query_loop"
)

// Evidence is everything the loop produced, handed to distillation as the
// structured leg's findings.
type Evidence struct {
	Steps    []Step      `json:"steps"`
	Terminal Termination `json:"terminal"`
	Reason   string      `json:"reason,omitempty"`
}

// Config bounds a Planner.
type Config struct {
	MaxSteps uint
}

type Planner struct {
	exec     Executor
	call     llm.CallFunc
	maxSteps uint
	logger   *zap.Logger
}

// NewPlanner builds a planner over the given executor and evaluation model.
func NewPlanner(cfg Config, exec Executor, call llm.CallFunc, logger *zap.Logger) *Planner {
	maxSteps := cfg.MaxSteps
	if maxSteps == 0 {
		maxSteps = defaultMaxSteps
	}

	return &Planner{
		exec:     exec,
		call:     call,
		maxSteps: maxSteps,
		logger:   logger,
	}
}

// Plan pursues the objective for at most maxSteps queries. Loop detection
// and the step cap end the loop with partial evidence rather than an error;
// only unreachable storage or a persistently malformed model fail the call.
func (p *Planner) Plan(ctx context.Context, objective string) (*Evidence, error) {
	evidence := &Evidence{Steps: make([]Step, 0, p.maxSteps)}
	asked := make(map[string]bool, p.maxSteps)

	for step := uint(0); step < p.maxSteps; step++ {
		action, err := p.nextAction(ctx, objective, evidence.Steps)
		if err != nil {
			return nil, err
		}

		switch action.Action {
		case actionTerminate:
			evidence.Terminal = TerminatedByModel
			evidence.Reason = action.Reason
			return evidence, nil

		case actionRunQuery:
			sql := strings.TrimSpace(action.SQL)
			if asked[sql] {
				p.logger.Warn("planner repeated a query, stopping with partial evidence",
					zap.String("sql", sql),
					zap.Uint("step", step))
				evidence.Terminal = TerminatedQueryLoop
				evidence.Reason = ErrQueryLoop.Error()
				return evidence, nil
			}
			asked[sql] = true

			rows, err := p.exec.ReadOnlyQuery(ctx, sql)
			if err != nil {
				if errors.Is(err, storage.ErrUnavailable) {
					return nil, err
				}
				// Query errors (bad column etc.) go back to the model
				// as a summary so it can correct course.
				evidence.Steps = append(evidence.Steps, Step{
					SQL:     sql,
					Summary: fmt.Sprintf("query error: %v", err),
				})
				continue
			}

			evidence.Steps = append(evidence.Steps, Step{
				SQL:     sql,
				Summary: summarize(rows),
				Rows:    len(rows.Rows),
			})

		default:
			return nil, fmt.Errorf("%w: unknown action %q", ErrMalformedAction, action.Action)
		}
	}

	evidence.Terminal = TerminatedStepLimit
	evidence.Reason = fmt.Sprintf("step limit %d reached", p.maxSteps)
	return evidence, nil
}

// nextAction asks the model for one action as JSON, re-prompting exactly
// once when the reply is unusable in any way: unparseable JSON, an unknown
// action name, or a query outside the read-only allow-list. A second
// unusable reply fails with ErrMalformedAction.
func (p *Planner) nextAction(ctx context.Context, objective string, history []Step) (Action, error) {
	prompt := buildPrompt(objective, history)

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		response, err := p.call(ctx, prompt)
		if err != nil {
			return Action{}, fmt.Errorf("%w: %v", ErrMalformedAction, err)
		}

		result := llm.DecodeJSON[Action](response)
		if result.Outcome != llm.OutcomeOK {
			lastErr = fmt.Errorf("%w: %v", ErrMalformedAction, result.Err)
		} else if err := validateAction(result.Value); err != nil {
			lastErr = fmt.Errorf("%w: %v", ErrMalformedAction, err)
		} else {
			return result.Value, nil
		}

		if attempt == 0 {
			p.logger.Warn("planner proposed an unusable action, re-prompting", zap.Error(lastErr))
		}
	}

	return Action{}, lastErr
}

// validateAction checks the proposed action before it reaches the loop:
// the name must be known and a run_query must pass the allow-list.
func validateAction(action Action) error {
	switch action.Action {
	case actionTerminate:
		return nil
	case actionRunQuery:
		return ValidateQuery(action.SQL)
	default:
		return fmt.Errorf("unknown action %q", action.Action)
	}
}

func buildPrompt(objective string, history []Step) string {
	var sb strings.Builder
	sb.WriteString("You are querying a story archive's relational database to answer:\n")
	sb.WriteString(objective)
	sb.WriteString("\n\nTables: chunks(id, text, created_at, state), chunk_metadata(chunk_id, season, episode, scene, world_layer, slug), ")
	sb.WriteString("entities(id, kind, name, summary), aliases(entity_id, name), ")
	sb.WriteString("relationships(from_entity_id, to_entity_id, type, valence), chunk_entities(chunk_id, entity_id, kind).\n")

	if len(history) > 0 {
		sb.WriteString("\nQueries so far:\n")
		for i, step := range history {
			fmt.Fprintf(&sb, "%d. %s\n   -> %s\n", i+1, step.SQL, step.Summary)
		}
	}

	sb.WriteString("\nPropose exactly one action as JSON, either ")
	sb.WriteString(`{"action":"run_query","sql":"SELECT ..."} or {"action":"terminate","reason":"..."}. `)
	sb.WriteString("Queries must be a single SELECT statement.")
	return sb.String()
}

// forbiddenFragments are keywords that must not appear anywhere in a planner
// query, even inside a SELECT.
var forbiddenFragments = []string{
	"insert", "update", "delete", "drop", "alter", "create",
	"pragma", "attach", "detach", "vacuum", "reindex", "replace",
	"grant", "revoke", "truncate",
}

// ValidateQuery enforces the read-only allow-list: a single SELECT
// statement with no mutating or administrative keywords.
func ValidateQuery(query string) error {
	q := strings.TrimSpace(query)
	if q == "" {
		return errors.New("empty query")
	}

	lower := strings.ToLower(q)
	if !strings.HasPrefix(lower, "select") {
		return fmt.Errorf("only SELECT statements are allowed, got %q", firstWord(q))
	}
	if strings.Contains(q, ";") {
		return errors.New("multiple statements are not allowed")
	}

	for _, frag := range forbiddenFragments {
		for _, word := range strings.FieldsFunc(lower, func(r rune) bool {
			return r == ' ' || r == '\t' || r == '\n' || r == '(' || r == ')' || r == ','
		}) {
			if word == frag {
				return fmt.Errorf("forbidden keyword %q", frag)
			}
		}
	}

	return nil
}

func firstWord(q string) string {
	fields := strings.Fields(q)
	if len(fields) == 0 {
		return ""
	}
	return fields[0]
}

// summarize renders a result compactly for the model: column names, row
// count, and up to summaryRowLimit rows.
func summarize(rows *storage.QueryRows) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d rows (%s)", len(rows.Rows), strings.Join(rows.Columns, ", "))

	limit := len(rows.Rows)
	if limit > summaryRowLimit {
		limit = summaryRowLimit
	}
	for i := 0; i < limit; i++ {
		sb.WriteString("; ")
		sb.WriteString(strings.Join(rows.Rows[i], "|"))
	}
	if len(rows.Rows) > summaryRowLimit {
		sb.WriteString("; ...")
	}

	return sb.String()
}
