package ai

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// EstimateTokens counts tokens for providers that do not report usage.
// cl100k covers the gpt-4 family well enough for budget accounting; when the
// encoder is unavailable offline, fall back to words x 1.3.
func EstimateTokens(text string) int64 {
	if text == "" {
		return 0
	}
	encOnce.Do(func() {
		enc, _ = tiktoken.GetEncoding("cl100k_base")
	})
	if enc != nil {
		return int64(len(enc.Encode(text, nil, nil)))
	}
	words := len(strings.Fields(text))
	return int64(float64(words)*1.3) + 1
}
