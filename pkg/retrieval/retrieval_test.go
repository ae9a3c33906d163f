package retrieval_test

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/retrieval"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
	testutils "github.com/papercomputeco/chronicle/pkg/utils/test"
	"github.com/papercomputeco/chronicle/pkg/vector"
)

// unavailableStore fails text search with the fatal storage sentinel.
type unavailableStore struct {
	*inmemory.Driver
}

func (u *unavailableStore) SearchText(_ context.Context, _ string, _ int) ([]storage.TextHit, error) {
	return nil, storage.ErrUnavailable
}

// seedChunk finalizes a chunk with metadata so it is visible to every leg.
func seedChunk(ctx context.Context, store *inmemory.Driver, text string) narrative.ChunkID {
	chunk, err := store.CreateChunk(ctx, text)
	Expect(err).NotTo(HaveOccurred())
	Expect(store.SetChunkState(ctx, chunk.ID, narrative.StatePendingReview, 0)).To(Succeed())
	Expect(store.SetChunkState(ctx, chunk.ID, narrative.StateFinalized, 0)).To(Succeed())
	Expect(store.PutMetadata(ctx, &narrative.Metadata{ChunkID: chunk.ID, Slug: "seed"})).To(Succeed())
	return chunk.ID
}

func docResult(id narrative.ChunkID, model string, score float64) vector.QueryResult {
	return vector.QueryResult{
		Document: vector.Document{ChunkID: id, ModelID: model},
		Score:    score,
	}
}

var _ = Describe("Retriever", func() {
	var ctx context.Context
	var store *inmemory.Driver
	var ids []narrative.ChunkID

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()

		ids = []narrative.ChunkID{
			seedChunk(ctx, store, "Mara crossed the salt flats toward the beacon tower"),
			seedChunk(ctx, store, "The beacon tower went dark at midnight"),
			seedChunk(ctx, store, "A merchant caravan reached the river gate"),
		}
	})

	It("fuses vector and text legs for the same chunk", func() {
		vecStore := testutils.NewMockVectorDriver()
		vecStore.Results = []vector.QueryResult{
			docResult(ids[0], "m1", 0.9),
			docResult(ids[2], "m1", 0.2),
		}
		spaces := []retrieval.Space{
			{ModelID: "m1", Weight: 1.0, Embedder: testutils.NewMockEmbedder("m1"), Store: vecStore},
		}
		r := retrieval.NewRetriever(store, spaces, zap.NewNop())

		candidates, err := r.Retrieve(ctx, retrieval.Query{Text: "beacon tower", K: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).NotTo(BeEmpty())

		// ids[0] scores on both legs, so it must rank above ids[2]
		// which only scores on the vector leg.
		var first, third float64
		for _, c := range candidates {
			switch c.ChunkID {
			case ids[0]:
				first = c.Score
			case ids[2]:
				third = c.Score
			}
		}
		Expect(first).To(BeNumerically(">", third))
	})

	It("degrades when an embedding space is down and renormalizes weights", func() {
		good := testutils.NewMockVectorDriver()
		good.Results = []vector.QueryResult{docResult(ids[1], "m-up", 0.7)}

		downEmbedder := testutils.NewMockEmbedder("m-down")
		downEmbedder.FailOn = "*"

		spaces := []retrieval.Space{
			{ModelID: "m-up", Weight: 0.5, Embedder: testutils.NewMockEmbedder("m-up"), Store: good},
			{ModelID: "m-down", Weight: 0.5, Embedder: downEmbedder, Store: testutils.NewMockVectorDriver()},
		}
		r := retrieval.NewRetriever(store, spaces, zap.NewNop())

		candidates, err := r.Retrieve(ctx, retrieval.Query{Text: "nothing matches this", K: 10})
		Expect(err).NotTo(HaveOccurred())

		// The surviving space's weight is renormalized to 1.0, so its
		// single (normalized to 1.0) hit contributes the full vector-leg
		// weight rather than half of it.
		Expect(candidates).To(HaveLen(1))
		Expect(candidates[0].ChunkID).To(Equal(ids[1]))
		Expect(candidates[0].Score).To(BeNumerically("~", 0.5, 1e-9))
	})

	It("returns text-only results when every space is down", func() {
		downEmbedder := testutils.NewMockEmbedder("m-down")
		downEmbedder.FailOn = "*"
		spaces := []retrieval.Space{
			{ModelID: "m-down", Weight: 1.0, Embedder: downEmbedder, Store: testutils.NewMockVectorDriver()},
		}
		r := retrieval.NewRetriever(store, spaces, zap.NewNop())

		candidates, err := r.Retrieve(ctx, retrieval.Query{Text: "beacon tower", K: 10})
		Expect(err).NotTo(HaveOccurred())
		Expect(candidates).NotTo(BeEmpty())
		for _, c := range candidates {
			Expect(c.Source).To(Equal(retrieval.SourceText))
		}
	})

	It("is fatal when the relational store is unreachable", func() {
		r := retrieval.NewRetriever(&unavailableStore{store}, nil, zap.NewNop())

		_, err := r.Retrieve(ctx, retrieval.Query{Text: "anything", K: 5})
		Expect(errors.Is(err, storage.ErrUnavailable)).To(BeTrue())
	})

	It("scores direct entity mentions above relationship neighborhoods", func() {
		maraID, err := store.CreateEntity(ctx, &narrative.Entity{Kind: narrative.KindCharacter, Name: "Mara"})
		Expect(err).NotTo(HaveOccurred())
		rivalID, err := store.CreateEntity(ctx, &narrative.Entity{Kind: narrative.KindCharacter, Name: "Rival"})
		Expect(err).NotTo(HaveOccurred())

		Expect(store.WriteRelationshipPair(ctx,
			narrative.RelationshipEdge{FromEntityID: maraID, ToEntityID: rivalID, Type: "rivalry", Valence: -0.5},
			narrative.RelationshipEdge{FromEntityID: rivalID, ToEntityID: maraID, Type: "rivalry", Valence: -0.5},
		)).To(Succeed())

		Expect(store.LinkEntity(ctx, narrative.ChunkEntityRef{ChunkID: ids[0], EntityID: maraID, Kind: narrative.RefPresent})).To(Succeed())
		Expect(store.LinkEntity(ctx, narrative.ChunkEntityRef{ChunkID: ids[2], EntityID: rivalID, Kind: narrative.RefMentioned})).To(Succeed())

		r := retrieval.NewRetriever(store, nil, zap.NewNop())
		candidates, err := r.Retrieve(ctx, retrieval.Query{
			Text:     "zzz no text match",
			Entities: []int64{maraID},
			K:        10,
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(len(candidates)).To(BeNumerically(">=", 2))

		var direct, neighbor float64
		for _, c := range candidates {
			switch c.ChunkID {
			case ids[0]:
				direct = c.Score
			case ids[2]:
				neighbor = c.Score
			}
		}
		Expect(direct).To(BeNumerically(">", neighbor))
	})
})

var _ = Describe("Renormalize", func() {
	It("rescales surviving weights to sum to 1", func() {
		weights := map[string]float64{"a": 0.5, "b": 0.3, "c": 0.2}
		out := retrieval.Renormalize(weights, map[string]bool{"a": true, "b": true})

		Expect(out).NotTo(HaveKey("c"))
		Expect(out["a"]).To(BeNumerically("~", 0.625, 1e-9))
		Expect(out["b"]).To(BeNumerically("~", 0.375, 1e-9))
	})

	It("is empty when nothing is available", func() {
		Expect(retrieval.Renormalize(map[string]float64{"a": 1}, nil)).To(BeEmpty())
	})

	It("never zero-fills an unavailable space", func() {
		out := retrieval.Renormalize(map[string]float64{"a": 0.7, "b": 0.3}, map[string]bool{"a": true})
		_, present := out["b"]
		Expect(present).To(BeFalse())
	})
})

var _ = Describe("FuseLegs", func() {
	leg := func(source retrieval.Source, pairs map[narrative.ChunkID]float64) retrieval.LegScores {
		return retrieval.LegScores{Source: source, Scores: pairs}
	}

	It("breaks score ties by ascending chunk id", func() {
		candidates := retrieval.FuseLegs([]retrieval.LegScores{
			leg(retrieval.SourceText, map[narrative.ChunkID]float64{9: 0.5, 2: 0.5, 5: 0.5}),
		}, 10)

		Expect(candidates).To(HaveLen(3))
		Expect(candidates[0].ChunkID).To(Equal(narrative.ChunkID(2)))
		Expect(candidates[1].ChunkID).To(Equal(narrative.ChunkID(5)))
		Expect(candidates[2].ChunkID).To(Equal(narrative.ChunkID(9)))
	})

	It("is monotonic: raising a leg score never lowers the fused score", func() {
		base := retrieval.FuseLegs([]retrieval.LegScores{
			leg(retrieval.SourceVector, map[narrative.ChunkID]float64{1: 0.4}),
			leg(retrieval.SourceText, map[narrative.ChunkID]float64{1: 0.2}),
		}, 10)
		raised := retrieval.FuseLegs([]retrieval.LegScores{
			leg(retrieval.SourceVector, map[narrative.ChunkID]float64{1: 0.4}),
			leg(retrieval.SourceText, map[narrative.ChunkID]float64{1: 0.9}),
		}, 10)

		Expect(raised[0].Score).To(BeNumerically(">", base[0].Score))
	})

	It("caps the result at k", func() {
		scores := map[narrative.ChunkID]float64{}
		for i := narrative.ChunkID(1); i <= 20; i++ {
			scores[i] = float64(i)
		}
		candidates := retrieval.FuseLegs([]retrieval.LegScores{leg(retrieval.SourceText, scores)}, 5)
		Expect(candidates).To(HaveLen(5))
	})

	It("records provenance for every contributing leg", func() {
		candidates := retrieval.FuseLegs([]retrieval.LegScores{
			leg(retrieval.SourceVector, map[narrative.ChunkID]float64{1: 1.0}),
			leg(retrieval.SourceText, map[narrative.ChunkID]float64{1: 0.5}),
		}, 10)

		Expect(candidates[0].Provenance).To(ContainSubstring("vector"))
		Expect(candidates[0].Provenance).To(ContainSubstring("text"))
		Expect(candidates[0].Source).To(Equal(retrieval.SourceVector))
	})
})
