package worldstate

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenCounterFallsBackOnce(t *testing.T) {
	var loads, reported int
	count := NewTokenCounter(func() (*tiktoken.Tiktoken, error) {
		loads++
		return nil, errors.New("bpe file unavailable")
	}, func(error) { reported++ })

	snap := sampleSnapshot()
	for i := 0; i < 40; i++ {
		snap.Blocks = append(snap.Blocks, Block{ID: fmt.Sprintf("minecraft:block_%d", i), Distance: float64(i)})
	}
	s := NewStore(WithTokenBudget(20), WithTokenCounter(count))
	s.Update(snap)

	s.CompactSnapshot()
	out := s.CompactSnapshot()
	assert.Equal(t, 3, count("hello world!"))

	assert.Equal(t, 1, loads, "a failed lookup is not retried")
	assert.Equal(t, 1, reported)
	assert.NotContains(t, out, "Blocks:")
}

func TestCountTokensOffline(t *testing.T) {
	enc, err := LoadEncoding()
	require.NoError(t, err)
	assert.Equal(t, len(enc.Encode("mine 10 iron ore", nil, nil)), CountTokens("mine 10 iron ore"))
	assert.Positive(t, CountTokens("mine 10 iron ore"))
}
