package budget

import (
	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// charsPerToken is the conversion factor used both by the heuristic counter
// and for token-to-character budget conversion.
const charsPerToken = 4

// TokenCounter counts tokens in a text.
type TokenCounter interface {
	Count(text string) int
}

// TiktokenCounter counts with a real BPE encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

// HeuristicCounter approximates tokens from character length. Used when the
// encoding for the configured model cannot be loaded.
type HeuristicCounter struct{}

func (HeuristicCounter) Count(text string) int {
	if len(text) == 0 {
		return 0
	}
	return (len(text) + charsPerToken - 1) / charsPerToken
}

// NewTokenCounter returns a tiktoken counter for the model, falling back to
// the character heuristic when the encoding is unavailable (e.g. offline
// first run with no cached encoding).
func NewTokenCounter(model string, logger *zap.Logger) TokenCounter {
	enc, err := tiktoken.EncodingForModel(model)
	if err != nil {
		logger.Warn("token encoding unavailable, using character heuristic",
			zap.String("model", model),
			zap.Error(err))
		return HeuristicCounter{}
	}
	return &TiktokenCounter{enc: enc}
}

// TokensToChars converts a token budget to a character budget by plain
// multiplication.
func TokensToChars(tokens int) int {
	return tokens * charsPerToken
}
