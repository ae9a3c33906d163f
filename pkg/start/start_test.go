package start_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/chronicle/pkg/config"
	"github.com/papercomputeco/chronicle/pkg/start"
)

var _ = Describe("Build", func() {
	var cfg *config.Config

	BeforeEach(func() {
		cfg = config.NewDefaultConfig()
		cfg.Storage.Provider = "memory"
		cfg.Spaces = nil // no embedding backends in unit tests
	})

	It("wires a system from in-memory configuration", func() {
		system, err := start.Build(context.Background(), cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer system.Close()

		Expect(system.Store).NotTo(BeNil())
		Expect(system.Engine).NotTo(BeNil())
		Expect(system.Retriever).NotTo(BeNil())
		Expect(system.Publisher).NotTo(BeNil())
	})

	It("rejects an unknown storage provider", func() {
		cfg.Storage.Provider = "etcd"
		_, err := start.Build(context.Background(), cfg, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("carries a custom budget envelope into the allocator", func() {
		cfg.Budget.ContextCeiling = 4096
		cfg.Budget.StructuredMin, cfg.Budget.StructuredMax = 15, 30
		cfg.Budget.PassagesMin, cfg.Budget.PassagesMax = 20, 45
		cfg.Budget.WarmMin, cfg.Budget.WarmMax = 35, 60

		system, err := start.Build(context.Background(), cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		defer system.Close()

		Expect(system.Engine).NotTo(BeNil())
	})

	It("rejects an invalid budget envelope", func() {
		cfg.Budget.StructuredMin = 80
		cfg.Budget.StructuredMax = 20
		_, err := start.Build(context.Background(), cfg, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})

	It("rejects an unknown embedding provider", func() {
		cfg.Spaces = []config.SpaceConfig{{
			ModelID:           "nomic-embed-text",
			Weight:            1.0,
			EmbeddingProvider: "cohere",
		}}
		_, err := start.Build(context.Background(), cfg, zap.NewNop())
		Expect(err).To(HaveOccurred())
	})
})

var _ = Describe("AcquireLock", func() {
	It("grants one holder at a time", func() {
		dir := GinkgoT().TempDir()

		held, err := start.AcquireLock(dir)
		Expect(err).NotTo(HaveOccurred())
		defer held.Release()

		_, err = start.AcquireLock(dir)
		Expect(err).To(HaveOccurred())
	})

	It("can be reacquired after release", func() {
		dir := GinkgoT().TempDir()

		held, err := start.AcquireLock(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(held.Release()).To(Succeed())

		again, err := start.AcquireLock(dir)
		Expect(err).NotTo(HaveOccurred())
		Expect(again.Release()).To(Succeed())
	})
})
