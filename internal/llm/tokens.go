package llm

import (
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

var cl100k = sync.OnceValues(func() (tokenizer.Codec, error) {
	return tokenizer.Get(tokenizer.Cl100kBase)
})

// EstimateTokens counts tokens with the cl100k_base encoding, falling
// back to one token per four bytes, rounded up, when the encoding is
// unavailable.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}
	codec, err := cl100k()
	if err == nil {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return approxTokens(text)
}

func approxTokens(text string) int {
	return (len(text) + 3) / 4
}
