package initcmder_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/chronicle/cmd/chronicle/init"
)

var _ = Describe("Init command", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chronicle-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("creates a .chronicle directory with a default config", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Execute()).To(Succeed())

		info, err := os.Stat(filepath.Join(tmpDir, ".chronicle"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())

		_, err = os.Stat(filepath.Join(tmpDir, ".chronicle", "config.toml"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("is a no-op when already initialized", func() {
		Expect(initcmder.NewInitCmd().Execute()).To(Succeed())
		Expect(initcmder.NewInitCmd().Execute()).To(Succeed())
	})
})
