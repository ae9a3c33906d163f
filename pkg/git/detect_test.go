package git_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/git"
)

var _ = Describe("RepoName", func() {
	It("returns a non-empty name", func() {
		name := git.RepoName()
		Expect(name).ToNot(BeEmpty())
	})

	It("falls back to the working directory name outside a repo", func() {
		tmpDir, err := os.MkdirTemp("", "storyname-*")
		Expect(err).NotTo(HaveOccurred())
		defer os.RemoveAll(tmpDir)

		origDir, err := os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		defer os.Chdir(origDir)

		Expect(os.Chdir(tmpDir)).To(Succeed())

		resolved, err := filepath.EvalSymlinks(tmpDir)
		Expect(err).NotTo(HaveOccurred())

		name := git.RepoName()
		Expect(name).To(Equal(filepath.Base(resolved)))
	})
})
