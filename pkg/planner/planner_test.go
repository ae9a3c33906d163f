package planner_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/planner"
	"github.com/papercomputeco/chronicle/pkg/storage"
)

// scriptedCall replays canned model replies in order.
func scriptedCall(replies ...string) func(ctx context.Context, prompt string) (string, error) {
	i := 0
	return func(_ context.Context, _ string) (string, error) {
		if i >= len(replies) {
			return `{"action":"terminate","reason":"out of script"}`, nil
		}
		reply := replies[i]
		i++
		return reply, nil
	}
}

// stubExecutor returns a fixed result for every query, or an error.
type stubExecutor struct {
	rows *storage.QueryRows
	err  error

	queries []string
}

func (s *stubExecutor) ReadOnlyQuery(_ context.Context, query string) (*storage.QueryRows, error) {
	s.queries = append(s.queries, query)
	if s.err != nil {
		return nil, s.err
	}
	return s.rows, nil
}

var _ = Describe("Planner", func() {
	var ctx context.Context
	var exec *stubExecutor

	oneRow := &storage.QueryRows{
		Columns: []string{"id", "name"},
		Rows:    [][]string{{"3", "Mara Veyne"}},
	}

	BeforeEach(func() {
		ctx = context.Background()
		exec = &stubExecutor{rows: oneRow}
	})

	It("runs queries until the model terminates", func() {
		call := scriptedCall(
			`{"action":"run_query","sql":"SELECT id, name FROM entities WHERE kind = 'character'"}`,
			`{"action":"run_query","sql":"SELECT chunk_id FROM chunk_entities WHERE entity_id = 3"}`,
			`{"action":"terminate","reason":"found the chunks"}`,
		)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		evidence, err := p.Plan(ctx, "where was Mara last seen?")
		Expect(err).NotTo(HaveOccurred())
		Expect(evidence.Terminal).To(Equal(planner.TerminatedByModel))
		Expect(evidence.Reason).To(Equal("found the chunks"))
		Expect(evidence.Steps).To(HaveLen(2))
		Expect(exec.queries).To(HaveLen(2))
	})

	It("stops at the step limit with partial evidence", func() {
		call := scriptedCall(
			`{"action":"run_query","sql":"SELECT id FROM entities WHERE id = 1"}`,
			`{"action":"run_query","sql":"SELECT id FROM entities WHERE id = 2"}`,
			`{"action":"run_query","sql":"SELECT id FROM entities WHERE id = 3"}`,
		)
		p := planner.NewPlanner(planner.Config{MaxSteps: 2}, exec, call, zap.NewNop())

		evidence, err := p.Plan(ctx, "enumerate entities")
		Expect(err).NotTo(HaveOccurred())
		Expect(evidence.Terminal).To(Equal(planner.TerminatedStepLimit))
		Expect(evidence.Steps).To(HaveLen(2))
	})

	It("stops on a lexically identical repeat query", func() {
		same := `{"action":"run_query","sql":"SELECT id FROM entities"}`
		call := scriptedCall(same, same)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		evidence, err := p.Plan(ctx, "loop forever")
		Expect(err).NotTo(HaveOccurred())
		Expect(evidence.Terminal).To(Equal(planner.TerminatedQueryLoop))
		Expect(evidence.Steps).To(HaveLen(1))
	})

	It("retries one malformed action then succeeds", func() {
		call := scriptedCall(
			"definitely not json",
			`{"action":"terminate","reason":"second try"}`,
		)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		evidence, err := p.Plan(ctx, "anything")
		Expect(err).NotTo(HaveOccurred())
		Expect(evidence.Terminal).To(Equal(planner.TerminatedByModel))
	})

	It("re-prompts once on an unknown action name", func() {
		call := scriptedCall(
			`{"action":"frobnicate"}`,
			`{"action":"terminate","reason":"corrected"}`,
		)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		evidence, err := p.Plan(ctx, "anything")
		Expect(err).NotTo(HaveOccurred())
		Expect(evidence.Terminal).To(Equal(planner.TerminatedByModel))
		Expect(evidence.Reason).To(Equal("corrected"))
	})

	It("re-prompts once on a query that fails the allow-list", func() {
		call := scriptedCall(
			`{"action":"run_query","sql":"DELETE FROM chunks"}`,
			`{"action":"run_query","sql":"SELECT id FROM chunks"}`,
			`{"action":"terminate","reason":"done"}`,
		)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		evidence, err := p.Plan(ctx, "anything")
		Expect(err).NotTo(HaveOccurred())
		Expect(evidence.Steps).To(HaveLen(1))
		Expect(exec.queries).To(Equal([]string{"SELECT id FROM chunks"}))
	})

	It("fails the sub-task after two malformed actions", func() {
		call := scriptedCall("nope", "still nope")
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		_, err := p.Plan(ctx, "anything")
		Expect(errors.Is(err, planner.ErrMalformedAction)).To(BeTrue())
	})

	It("never executes mutating SQL even across the re-prompt", func() {
		call := scriptedCall(
			`{"action":"run_query","sql":"DELETE FROM chunks"}`,
			`{"action":"run_query","sql":"DROP TABLE chunks"}`,
		)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		_, err := p.Plan(ctx, "anything")
		Expect(errors.Is(err, planner.ErrMalformedAction)).To(BeTrue())
		Expect(exec.queries).To(BeEmpty())
	})

	It("is fatal when storage is unavailable", func() {
		exec.err = storage.ErrUnavailable
		call := scriptedCall(`{"action":"run_query","sql":"SELECT id FROM entities"}`)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		_, err := p.Plan(ctx, "anything")
		Expect(errors.Is(err, storage.ErrUnavailable)).To(BeTrue())
	})

	It("feeds query errors back to the model instead of failing", func() {
		exec.err = errors.New("no such column: wizard")
		call := scriptedCall(
			`{"action":"run_query","sql":"SELECT wizard FROM entities"}`,
			`{"action":"terminate","reason":"giving up"}`,
		)
		p := planner.NewPlanner(planner.Config{MaxSteps: 5}, exec, call, zap.NewNop())

		evidence, err := p.Plan(ctx, "anything")
		Expect(err).NotTo(HaveOccurred())
		Expect(evidence.Steps).To(HaveLen(1))
		Expect(evidence.Steps[0].Summary).To(ContainSubstring("query error"))
	})
})

var _ = Describe("ValidateQuery", func() {
	It("accepts a plain SELECT", func() {
		Expect(planner.ValidateQuery("SELECT id FROM chunks WHERE id > 10")).To(Succeed())
	})

	It("rejects non-SELECT statements", func() {
		Expect(planner.ValidateQuery("UPDATE chunks SET text = ''")).To(HaveOccurred())
	})

	It("rejects stacked statements", func() {
		Expect(planner.ValidateQuery("SELECT 1; DROP TABLE chunks")).To(HaveOccurred())
	})

	It("rejects forbidden keywords inside a SELECT", func() {
		Expect(planner.ValidateQuery("SELECT 1 FROM pragma table_info('chunks')")).To(HaveOccurred())
	})

	It("does not flag substrings of column names", func() {
		Expect(planner.ValidateQuery("SELECT created_at FROM chunks")).To(Succeed())
	})
})
