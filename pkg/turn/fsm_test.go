package turn_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/turn"
)

var _ = Describe("CanTransition", func() {
	It("allows the linear pipeline order", func() {
		path := []turn.State{
			turn.StateIdle,
			turn.StateUserInput,
			turn.StateWarmAnalysis,
			turn.StateWorldStateReport,
			turn.StateDeepQueries,
			turn.StateColdDistillation,
			turn.StatePayloadAssembly,
			turn.StateGenerationCall,
			turn.StateQualityCheckpoint,
			turn.StateNarrativeIntegration,
			turn.StateIdle,
		}
		for i := 1; i < len(path); i++ {
			Expect(turn.CanTransition(path[i-1], path[i])).To(BeTrue(),
				"%s -> %s should be allowed", path[i-1], path[i])
		}
	})

	It("allows generation to fall offline and climb back", func() {
		Expect(turn.CanTransition(turn.StateGenerationCall, turn.StateOfflineMode)).To(BeTrue())
		Expect(turn.CanTransition(turn.StateOfflineMode, turn.StateGenerationCall)).To(BeTrue())
	})

	It("never commits straight out of offline mode", func() {
		Expect(turn.CanTransition(turn.StateOfflineMode, turn.StateQualityCheckpoint)).To(BeFalse())
		Expect(turn.CanTransition(turn.StateOfflineMode, turn.StateNarrativeIntegration)).To(BeFalse())
	})

	It("routes rejection back into the pipeline", func() {
		Expect(turn.CanTransition(turn.StateQualityCheckpoint, turn.StateGenerationCall)).To(BeTrue())
		Expect(turn.CanTransition(turn.StateQualityCheckpoint, turn.StateWarmAnalysis)).To(BeTrue())
	})

	It("allows an abort out of the quality checkpoint", func() {
		Expect(turn.CanTransition(turn.StateQualityCheckpoint, turn.StateIdle)).To(BeTrue())
	})

	It("forbids skipping stages", func() {
		Expect(turn.CanTransition(turn.StateUserInput, turn.StateGenerationCall)).To(BeFalse())
		Expect(turn.CanTransition(turn.StateWarmAnalysis, turn.StateColdDistillation)).To(BeFalse())
		Expect(turn.CanTransition(turn.StateNarrativeIntegration, turn.StateGenerationCall)).To(BeFalse())
	})

	It("only enters the pipeline through user input", func() {
		Expect(turn.CanTransition(turn.StateIdle, turn.StateUserInput)).To(BeTrue())
		Expect(turn.CanTransition(turn.StateIdle, turn.StateWarmAnalysis)).To(BeFalse())
	})
})
