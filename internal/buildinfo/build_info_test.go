package buildinfo

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestBuildInfo(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "BuildInfo Suite")
}

var _ = Describe("BuildInfo", func() {
	It("should print the build info", func() {
		i := BuildInfo{Version: "v1.0.0", CommitHash: "abc123", BuildDate: "today"}
		Expect(i.String()).To(Equal("version v1.0.0 (abc123) built on today"))
	})

	It("should keep link time values", func() {
		i := BuildInfo{Version: "v1.0.0", CommitHash: "abc123", BuildDate: "today"}
		Expect(i.Complete()).To(Equal(i))
	})

	It("should never leave fields empty", func() {
		i := BuildInfo{}.Complete()
		Expect(i.Version).NotTo(BeEmpty())
		Expect(i.CommitHash).NotTo(BeEmpty())
		Expect(i.BuildDate).NotTo(BeEmpty())
	})
})
