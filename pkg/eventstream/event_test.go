package eventstream_test

import (
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/eventstream"
	"github.com/papercomputeco/chronicle/pkg/narrative"
)

var _ = Describe("Event", func() {
	It("marshals TurnCommittedEvent with expected top-level keys", func() {
		now := time.Unix(1735689600, 0).UTC()
		event := eventstream.TurnCommittedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnCommitted,
			EventID:       "evt_123",
			EmittedAt:     now,
			Turn: eventstream.TurnMeta{
				TurnID:        "turn-42",
				StartedAt:     now.Add(-4 * time.Second),
				CommittedAt:   now,
				DurationMs:    4000,
				Regenerations: 1,
				WentOffline:   true,
			},
			Chunk: eventstream.ChunkMeta{
				ChunkID: 17,
				State:   narrative.StateFinalized,
			},
			Budget: eventstream.BudgetMeta{
				PayloadTokens:    700,
				StructuredTokens: 105,
				PassagesTokens:   245,
				WarmTokens:       350,
			},
		}

		payload, err := json.Marshal(event)
		Expect(err).NotTo(HaveOccurred())

		var decoded map[string]any
		Expect(json.Unmarshal(payload, &decoded)).To(Succeed())
		Expect(decoded).To(HaveKey("schema_version"))
		Expect(decoded).To(HaveKey("event_type"))
		Expect(decoded).To(HaveKey("turn"))
		Expect(decoded).To(HaveKey("chunk"))
		Expect(decoded).To(HaveKey("budget"))
		Expect(decoded["event_type"]).To(Equal("chronicle.turn.committed"))
	})

	It("round-trips through JSON", func() {
		in := eventstream.TurnCommittedEvent{
			SchemaVersion: eventstream.SchemaVersionV1,
			EventType:     eventstream.EventTypeTurnCommitted,
			EventID:       "evt_9",
			Turn:          eventstream.TurnMeta{TurnID: "turn-9"},
			Chunk:         eventstream.ChunkMeta{ChunkID: 9, State: narrative.StateEmbedded},
		}

		payload, err := json.Marshal(in)
		Expect(err).NotTo(HaveOccurred())

		var out eventstream.TurnCommittedEvent
		Expect(json.Unmarshal(payload, &out)).To(Succeed())
		Expect(out.Turn.TurnID).To(Equal("turn-9"))
		Expect(out.Chunk.ChunkID).To(Equal(narrative.ChunkID(9)))
	})
})
