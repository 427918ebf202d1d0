package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLookupScript(t *testing.T) {
	t.Run("start aliases share one sequence", func(t *testing.T) {
		for _, input := range []string{"I'm ready", "Let's do it", "Yes please!"} {
			seq, ok := LookupScript(input)
			require.True(t, ok, "expected a scripted branch for %q", input)
			require.Len(t, seq, 2)

			last := seq[len(seq)-1]
			assert.Equal(t, StateWeddingDate, last.Next)
			assert.Equal(t, []string{"Not sure yet"}, last.QuickReplies)
		}
	})

	t.Run("tell me more ends on the start prompt", func(t *testing.T) {
		seq, ok := LookupScript("Tell me more first")
		require.True(t, ok)
		require.Len(t, seq, 3)
		assert.Equal(t, []string{"Let's do it", "Why is it free?"}, seq[2].QuickReplies)
		for _, sm := range seq {
			assert.NotEmpty(t, sm.Content)
			assert.Equal(t, StateGreeting, sm.Next)
		}
	})

	t.Run("lookup is exact string", func(t *testing.T) {
		_, ok := LookupScript("i'm ready")
		assert.False(t, ok)
		_, ok = LookupScript("I'm ready ")
		assert.False(t, ok)
		_, ok = LookupScript("tell me about budgets")
		assert.False(t, ok)
	})
}

func TestIntroSequence(t *testing.T) {
	require.Len(t, IntroSequence, 2)
	assert.Equal(t, []string{"I'm ready", "Tell me more first"}, IntroSequence[1].QuickReplies)
	assert.Equal(t, StateGreeting, IntroSequence[1].Next)
}
