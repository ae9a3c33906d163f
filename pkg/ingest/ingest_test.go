package ingest_test

import (
	"context"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/ingest"
	"github.com/papercomputeco/chronicle/pkg/lifecycle"
	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/retrieval"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	mocks "github.com/papercomputeco/chronicle/pkg/utils/test"
)

var _ = Describe("Importer", func() {
	var (
		ctx      context.Context
		store    *inmemory.Driver
		chunks   *lifecycle.Manager
		embedder *mocks.MockEmbedder
		vectors  *mocks.MockVectorDriver
		spaces   []retrieval.Space
	)

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		chunks = lifecycle.NewManager(store, zap.NewNop())
		embedder = mocks.NewMockEmbedder("test-embed")
		vectors = mocks.NewMockVectorDriver()
		spaces = []retrieval.Space{
			{ModelID: "test-embed", Weight: 1.0, Embedder: embedder, Store: vectors},
		}
	})

	newImporter := func(opts ingest.Options) *ingest.Importer {
		return ingest.NewImporter(store, chunks, spaces, opts, zap.NewNop())
	}

	It("imports a manuscript as ordered embedded chunks", func() {
		manuscript := "The ship left harbor at dawn.\n\nBy noon the coast was gone.\n\nThat night the storm found them."

		result, err := newImporter(ingest.Options{MaxChunkChars: 40}).Run(ctx, manuscript)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Passages).To(Equal(3))
		Expect(result.Chunks).To(Equal(3))
		Expect(result.Embedded).To(Equal(3))
		Expect(result.Failed).To(BeZero())

		tail, err := store.TailChunks(ctx, 3)
		Expect(err).NotTo(HaveOccurred())
		Expect(tail).To(HaveLen(3))
		// TailChunks is newest first.
		Expect(tail[0].Text).To(ContainSubstring("storm"))
		Expect(tail[2].Text).To(ContainSubstring("harbor"))
		for _, c := range tail {
			Expect(c.State).To(Equal(narrative.StateEmbedded))
		}
	})

	It("writes scene metadata in manuscript order", func() {
		manuscript := "First scene.\n\nSecond scene."

		_, err := newImporter(ingest.Options{MaxChunkChars: 15}).Run(ctx, manuscript)
		Expect(err).NotTo(HaveOccurred())

		meta1, err := store.GetMetadata(ctx, narrative.ChunkID(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(meta1.Scene).To(Equal(1))
		Expect(meta1.Slug).To(ContainSubstring("First scene."))

		meta2, err := store.GetMetadata(ctx, narrative.ChunkID(2))
		Expect(err).NotTo(HaveOccurred())
		Expect(meta2.Scene).To(Equal(2))
	})

	It("writes one vector document per chunk", func() {
		manuscript := "alpha\n\nbeta"

		_, err := newImporter(ingest.Options{MaxChunkChars: 5}).Run(ctx, manuscript)
		Expect(err).NotTo(HaveOccurred())
		Expect(vectors.Documents).To(HaveLen(2))
	})

	It("splits long passages by the configured chunk size", func() {
		manuscript := strings.Repeat("a sentence about the journey. ", 40)

		result, err := newImporter(ingest.Options{MaxChunkChars: 200}).Run(ctx, manuscript)
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Chunks).To(BeNumerically(">", 1))
		Expect(result.Chunks).To(Equal(result.Passages))
	})

	It("does nothing on a dry run", func() {
		result, err := newImporter(ingest.Options{DryRun: true}).Run(ctx, "some prose")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Passages).To(Equal(1))
		Expect(result.Chunks).To(BeZero())

		_, err = store.TailChunks(ctx, 1)
		Expect(err).To(HaveOccurred())
	})

	It("counts enrichment failures without failing the run", func() {
		embedder.FailOn = "*"

		result, err := newImporter(ingest.Options{}).Run(ctx, "doomed passage")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Chunks).To(Equal(1))
		Expect(result.Embedded).To(BeZero())
		Expect(result.Failed).To(Equal(1))

		// The chunk stays finalized but unembedded.
		chunk, err := store.GetChunk(ctx, narrative.ChunkID(1))
		Expect(err).NotTo(HaveOccurred())
		Expect(chunk.State).To(Equal(narrative.StateFinalized))
	})

	It("reports progress after the run", func() {
		imp := newImporter(ingest.Options{Workers: 1, MaxChunkChars: 4})
		_, err := imp.Run(ctx, "one\n\ntwo")
		Expect(err).NotTo(HaveOccurred())

		done, total := imp.Progress()
		Expect(done).To(Equal(2))
		Expect(total).To(Equal(2))
	})

	It("returns nothing for an empty manuscript", func() {
		result, err := newImporter(ingest.Options{}).Run(ctx, "  \n\n ")
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Passages).To(BeZero())
		Expect(result.Chunks).To(BeZero())
	})
})
