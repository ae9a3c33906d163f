package ingest_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/ingest"
)

var _ = Describe("SplitManuscript", func() {
	It("returns nothing for empty text", func() {
		Expect(ingest.SplitManuscript("", 100)).To(BeEmpty())
		Expect(ingest.SplitManuscript("\n\n  \n", 100)).To(BeEmpty())
	})

	It("keeps a short manuscript as a single passage", func() {
		passages := ingest.SplitManuscript("A quiet town.\n\nNothing ever happened there.", 200)
		Expect(passages).To(HaveLen(1))
		Expect(passages[0]).To(Equal("A quiet town.\n\nNothing ever happened there."))
	})

	It("packs paragraphs up to the limit without splitting them", func() {
		para := strings.Repeat("word ", 12) // 60 chars
		text := para + "\n\n" + para + "\n\n" + para
		passages := ingest.SplitManuscript(text, 130)
		Expect(passages).To(HaveLen(2))
		for _, p := range passages {
			Expect(len(p)).To(BeNumerically("<=", 130))
		}
	})

	It("splits an oversize paragraph at a word boundary", func() {
		text := strings.Repeat("verylongword ", 30)
		passages := ingest.SplitManuscript(text, 100)
		Expect(len(passages)).To(BeNumerically(">", 1))
		for _, p := range passages {
			Expect(len(p)).To(BeNumerically("<=", 100))
			Expect(p).NotTo(HavePrefix(" "))
			Expect(p).NotTo(HaveSuffix(" "))
		}
	})

	It("normalizes windows line endings and trims lines", func() {
		passages := ingest.SplitManuscript("First line.  \r\n\r\n  Second line.", 200)
		Expect(passages).To(HaveLen(1))
		Expect(passages[0]).To(Equal("First line.\n\nSecond line."))
	})

	It("preserves manuscript order", func() {
		text := "one\n\ntwo\n\nthree"
		passages := ingest.SplitManuscript(text, 5)
		Expect(passages).To(Equal([]string{"one", "two", "three"}))
	})
})
