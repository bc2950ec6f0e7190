package llm

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// messageOverhead approximates the per-message framing tokens of chat formats.
const messageOverhead = 4

var (
	codec     tokenizer.Codec
	codecOnce sync.Once
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		enc, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("Tokenizer unavailable, estimating token counts")
			return
		}
		codec = enc
	})
	return codec
}

// CountTokens returns the cl100k token count of text. When the encoder is
// unavailable it estimates four characters per token.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	if enc := getCodec(); enc != nil {
		if ids, _, err := enc.Encode(text); err == nil {
			return len(ids)
		}
	}
	return (len(text) + 3) / 4
}

// MessageTokens returns the token cost of one chat message.
func MessageTokens(m Message) int {
	return CountTokens(m.Content) + messageOverhead
}

// TrimHistory drops the oldest non-system messages until the total fits in
// budget. System messages and the final message are always kept, so the
// result may exceed a budget smaller than those alone. A budget of 0 or less
// disables trimming. The input slice is not modified.
func TrimHistory(messages []Message, budget int) []Message {
	if budget <= 0 || len(messages) == 0 {
		return messages
	}

	costs := make([]int, len(messages))
	total := 0
	for i, m := range messages {
		costs[i] = MessageTokens(m)
		total += costs[i]
	}
	if total <= budget {
		return messages
	}

	drop := make([]bool, len(messages))
	last := len(messages) - 1
	for i := 0; i < last && total > budget; i++ {
		if messages[i].Role == "system" {
			continue
		}
		drop[i] = true
		total -= costs[i]
	}

	kept := make([]Message, 0, len(messages))
	for i, m := range messages {
		if !drop[i] {
			kept = append(kept, m)
		}
	}
	return kept
}
