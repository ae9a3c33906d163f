package sse_test

import (
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chronicle/pkg/sse"
)

func collect(r *sse.Reader) []*sse.Event {
	var events []*sse.Event
	for {
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		if ev == nil {
			return events
		}
		events = append(events, ev)
	}
}

var _ = Describe("Reader", func() {
	It("parses a single data event", func() {
		r := sse.NewReader(strings.NewReader("data: hello\n\n"))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("hello"))
		Expect(events[0].Type).To(BeEmpty())
	})

	It("parses multiple events in sequence", func() {
		stream := "data: one\n\ndata: two\n\ndata: three\n\n"
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(3))
		Expect(events[0].Data).To(Equal("one"))
		Expect(events[1].Data).To(Equal("two"))
		Expect(events[2].Data).To(Equal("three"))
	})

	It("joins multiple data lines with a newline", func() {
		stream := "data: first line\ndata: second line\n\n"
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("first line\nsecond line"))
	})

	It("captures event type and id fields", func() {
		stream := "event: delta\nid: 42\ndata: {\"text\":\"hi\"}\n\n"
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Type).To(Equal("delta"))
		Expect(events[0].ID).To(Equal("42"))
		Expect(events[0].Data).To(Equal(`{"text":"hi"}`))
	})

	It("skips comment lines", func() {
		stream := ": keep-alive\ndata: payload\n\n"
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("payload"))
	})

	It("skips blank lines between events", func() {
		stream := "\n\ndata: a\n\n\n\ndata: b\n\n"
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(2))
		Expect(events[0].Data).To(Equal("a"))
		Expect(events[1].Data).To(Equal("b"))
	})

	It("strips a single leading space after the colon", func() {
		r := sse.NewReader(strings.NewReader("data:  two spaces\n\n"))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal(" two spaces"))
	})

	It("treats a field with no colon as an empty value", func() {
		stream := "data\n\n"
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(BeEmpty())
	})

	It("yields an in-progress event when the stream ends without a blank line", func() {
		r := sse.NewReader(strings.NewReader("data: truncated"))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("truncated"))
	})

	It("returns nil for an empty stream", func() {
		r := sse.NewReader(strings.NewReader(""))
		ev, err := r.Next()
		Expect(err).NotTo(HaveOccurred())
		Expect(ev).To(BeNil())
	})

	It("ignores retry and unknown fields", func() {
		stream := "retry: 3000\nunknown: x\ndata: kept\n\n"
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(1))
		Expect(events[0].Data).To(Equal("kept"))
	})

	It("handles a streaming completion shaped stream", func() {
		stream := strings.Join([]string{
			`data: {"choices":[{"delta":{"content":"Once"}}]}`,
			"",
			`data: {"choices":[{"delta":{"content":" upon"}}]}`,
			"",
			"data: [DONE]",
			"",
		}, "\n")
		r := sse.NewReader(strings.NewReader(stream))
		events := collect(r)
		Expect(events).To(HaveLen(3))
		Expect(events[2].Data).To(Equal("[DONE]"))
	})
})
