package turn

import (
	"strings"
	"unicode"
)

// extractMentions pulls candidate entity names out of player input: maximal
// runs of capitalized words. The resolver discards anything that is not a
// known name or alias, so over-extraction here is harmless.
func extractMentions(input string) []string {
	words := strings.FieldsFunc(input, func(r rune) bool {
		return !unicode.IsLetter(r) && r != '\'' && r != '-'
	})

	var mentions []string
	var run []string

	flush := func() {
		if len(run) > 0 {
			mentions = append(mentions, strings.Join(run, " "))
			run = nil
		}
	}

	for _, word := range words {
		r := []rune(word)
		if unicode.IsUpper(r[0]) {
			run = append(run, word)
			continue
		}
		flush()
	}
	flush()

	return mentions
}
