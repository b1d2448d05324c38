package summarizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummarize(t *testing.T) {
	s := NewFrequencySummarizer()
	text := "Solar panels convert sunlight into power. " +
		"Cats sleep a lot. " +
		"Solar power is cheap when sunlight is plentiful. " +
		"Panels need sunlight to produce power."

	got, err := s.Summarize(text, 2)
	require.NoError(t, err)

	assert.NotContains(t, got, "Cats sleep a lot.")
	assert.Equal(t, 2, strings.Count(got, "."))
	assert.Equal(t, "Solar panels convert sunlight into power. Solar power is cheap when sunlight is plentiful.", got)
}

func TestSummarizeDeduplicatesOverlap(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize("Rust never sleeps. Rust never sleeps. Ice melts fast.", 5)
	require.NoError(t, err)
	assert.Equal(t, "Rust never sleeps. Ice melts fast.", got)
}

func TestSummarizeWithoutSentences(t *testing.T) {
	s := NewFrequencySummarizer()
	got, err := s.Summarize("  just a fragment  ", 3)
	require.NoError(t, err)
	assert.Equal(t, "just a fragment", got)

	got, err = s.Summarize("", 3)
	require.NoError(t, err)
	assert.Empty(t, got)
}
