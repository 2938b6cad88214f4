package worldstate

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
	tiktoken_loader "github.com/pkoukk/tiktoken-go-loader"
)

const tokenEncoding = "cl100k_base"

func init() {
	// BPE ranks come from the binary, never from the network.
	tiktoken.SetBpeLoader(tiktoken_loader.NewOfflineLoader())
}

// TokenCounter estimates the token length of a prompt fragment.
type TokenCounter func(text string) int

// EncodingLoader resolves the tiktoken encoding used for counting.
type EncodingLoader func() (*tiktoken.Tiktoken, error)

// LoadEncoding returns the cl100k_base encoding.
func LoadEncoding() (*tiktoken.Tiktoken, error) {
	return tiktoken.GetEncoding(tokenEncoding)
}

// NewTokenCounter resolves the encoding on first use, exactly once. If that
// fails, onErr (may be nil) is told and the counter uses ApproxTokens from
// then on.
func NewTokenCounter(load EncodingLoader, onErr func(error)) TokenCounter {
	var (
		once sync.Once
		enc  *tiktoken.Tiktoken
	)
	return func(text string) int {
		once.Do(func() {
			e, err := load()
			if err != nil {
				if onErr != nil {
					onErr(err)
				}
				return
			}
			enc = e
		})
		if enc == nil {
			return ApproxTokens(text)
		}
		return len(enc.Encode(text, nil, nil))
	}
}

var defaultCounter = NewTokenCounter(LoadEncoding, nil)

// CountTokens counts cl100k_base tokens, falling back to ApproxTokens when
// the encoding is unavailable.
func CountTokens(text string) int { return defaultCounter(text) }

// ApproxTokens is a cheap offline estimate of four characters per token.
func ApproxTokens(text string) int {
	n := len([]rune(text))
	return (n + 3) / 4
}
