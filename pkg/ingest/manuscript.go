package ingest

import "strings"

// SplitManuscript breaks prose into passages suitable for chunk storage.
// Paragraphs (separated by blank lines) are packed into passages of at most
// maxChars; a paragraph is never split across passages unless it alone
// exceeds maxChars, in which case it breaks at the last space inside the
// window.
func SplitManuscript(text string, maxChars int) []string {
	if maxChars <= 0 {
		maxChars = DefaultMaxChunkChars
	}

	paragraphs := splitParagraphs(text)

	var passages []string
	var current strings.Builder

	flush := func() {
		if current.Len() > 0 {
			passages = append(passages, current.String())
			current.Reset()
		}
	}

	for _, para := range paragraphs {
		for len(para) > maxChars {
			head, rest := breakAt(para, maxChars)
			flush()
			passages = append(passages, head)
			para = rest
		}

		if current.Len() > 0 && current.Len()+2+len(para) > maxChars {
			flush()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(para)
	}
	flush()

	return passages
}

// splitParagraphs returns the non-empty paragraphs of text, with line
// endings normalized and surrounding whitespace trimmed.
func splitParagraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var paragraphs []string
	var lines []string

	emit := func() {
		if len(lines) > 0 {
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
			lines = nil
		}
	}

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			emit()
			continue
		}
		lines = append(lines, trimmed)
	}
	emit()

	return paragraphs
}

// breakAt splits s near limit, preferring the last space inside the window
// so words stay intact.
func breakAt(s string, limit int) (head, rest string) {
	cut := limit
	if idx := strings.LastIndex(s[:limit], " "); idx > 0 {
		cut = idx
	}
	return strings.TrimSpace(s[:cut]), strings.TrimSpace(s[cut:])
}
