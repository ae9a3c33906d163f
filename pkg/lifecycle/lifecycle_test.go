package lifecycle_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/lifecycle"
	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
)

var _ = Describe("Manager", func() {
	var ctx context.Context
	var store *inmemory.Driver
	var mgr *lifecycle.Manager
	var chunk *narrative.Chunk

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		mgr = lifecycle.NewManager(store, zap.NewNop())

		var err error
		chunk, err = mgr.Draft(ctx, "She stepped into the archive hall.")
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.State).To(Equal(narrative.StateDraft))
	})

	It("walks the full forward lifecycle", func() {
		Expect(mgr.SubmitForReview(ctx, chunk.ID)).To(Succeed())
		Expect(mgr.Finalize(ctx, chunk.ID)).To(Succeed())
		Expect(mgr.MarkEmbedded(ctx, chunk.ID)).To(Succeed())

		got, err := store.GetChunk(ctx, chunk.ID)
		Expect(err).NotTo(HaveOccurred())
		Expect(got.State).To(Equal(narrative.StateEmbedded))
	})

	It("rejects skipping review", func() {
		err := mgr.Finalize(ctx, chunk.ID)
		Expect(errors.Is(err, narrative.ErrInvalidTransition)).To(BeTrue())
	})

	It("rejects moving a finalized chunk back", func() {
		Expect(mgr.SubmitForReview(ctx, chunk.ID)).To(Succeed())
		Expect(mgr.Finalize(ctx, chunk.ID)).To(Succeed())

		err := mgr.Reject(ctx, chunk.ID)
		Expect(errors.Is(err, narrative.ErrInvalidTransition)).To(BeTrue())
	})

	Describe("Reject", func() {
		It("returns the chunk to draft and increments regeneration_count by exactly one", func() {
			Expect(mgr.SubmitForReview(ctx, chunk.ID)).To(Succeed())
			Expect(mgr.Reject(ctx, chunk.ID)).To(Succeed())

			got, err := store.GetChunk(ctx, chunk.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.State).To(Equal(narrative.StateDraft))
			Expect(got.RegenerationCount).To(Equal(1))
		})

		It("accumulates across repeated rejections", func() {
			for i := 0; i < 3; i++ {
				Expect(mgr.SubmitForReview(ctx, chunk.ID)).To(Succeed())
				Expect(mgr.Reject(ctx, chunk.ID)).To(Succeed())
			}

			got, err := store.GetChunk(ctx, chunk.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.RegenerationCount).To(Equal(3))
		})

		It("supersedes the prior draft text on revision", func() {
			Expect(mgr.SubmitForReview(ctx, chunk.ID)).To(Succeed())
			Expect(mgr.Reject(ctx, chunk.ID)).To(Succeed())
			Expect(mgr.ReviseDraft(ctx, chunk.ID, "She hesitated at the archive door.")).To(Succeed())

			got, err := store.GetChunk(ctx, chunk.ID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Text).To(Equal("She hesitated at the archive door."))
			// The rejected draft is gone, not archived as finalized.
			Expect(got.State).To(Equal(narrative.StateDraft))
		})
	})

	Describe("ReviseDraft", func() {
		It("refuses to touch finalized text", func() {
			Expect(mgr.SubmitForReview(ctx, chunk.ID)).To(Succeed())
			Expect(mgr.Finalize(ctx, chunk.ID)).To(Succeed())

			err := mgr.ReviseDraft(ctx, chunk.ID, "rewritten history")
			Expect(errors.Is(err, narrative.ErrChunkImmutable)).To(BeTrue())
		})
	})
})
