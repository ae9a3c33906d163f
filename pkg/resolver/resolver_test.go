package resolver_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/narrative"
	"github.com/papercomputeco/chronicle/pkg/resolver"
	"github.com/papercomputeco/chronicle/pkg/storage"
	"github.com/papercomputeco/chronicle/pkg/storage/inmemory"
)

var _ = Describe("Resolver", func() {
	var ctx context.Context
	var store *inmemory.Driver
	var r *resolver.Resolver
	var maraID int64

	BeforeEach(func() {
		ctx = context.Background()
		store = inmemory.NewDriver()
		r = resolver.NewResolver(store, zap.NewNop())

		var err error
		maraID, err = store.CreateEntity(ctx, &narrative.Entity{
			Kind: narrative.KindCharacter,
			Name: "Mara Veyne",
		})
		Expect(err).NotTo(HaveOccurred())
		Expect(store.AddAlias(ctx, maraID, "the Gray Warden")).To(Succeed())
	})

	It("resolves an exact canonical name", func() {
		entity, err := r.Resolve(ctx, "Mara Veyne")
		Expect(err).NotTo(HaveOccurred())
		Expect(entity.ID).To(Equal(maraID))
	})

	It("resolves an alias case-insensitively", func() {
		entity, err := r.Resolve(ctx, "THE GRAY WARDEN")
		Expect(err).NotTo(HaveOccurred())
		Expect(entity.ID).To(Equal(maraID))
	})

	It("trims surrounding whitespace", func() {
		entity, err := r.Resolve(ctx, "  mara veyne ")
		Expect(err).NotTo(HaveOccurred())
		Expect(entity.ID).To(Equal(maraID))
	})

	It("reports a miss as not found", func() {
		_, err := r.Resolve(ctx, "the Clockwork King")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	It("reports the empty mention as not found", func() {
		_, err := r.Resolve(ctx, "   ")
		Expect(storage.IsNotFound(err)).To(BeTrue())
	})

	Describe("ResolveAll", func() {
		It("skips misses and deduplicates", func() {
			entities, err := r.ResolveAll(ctx, []string{
				"Mara Veyne",
				"nobody",
				"the gray warden", // same entity as the first mention
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(entities).To(HaveLen(1))
			Expect(entities[0].ID).To(Equal(maraID))
		})
	})
})
