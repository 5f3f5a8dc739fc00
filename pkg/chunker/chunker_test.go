package chunker

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartmeet/notetaker/pkg/config"
)

func TestChunkSplitsLongTranscriptWithinMaxChars(t *testing.T) {
	cfg := &config.ChunkerConfig{MaxChars: 80, OverlapChars: 10}
	c := New(cfg)

	var sb strings.Builder
	for i := 0; i < 30; i++ {
		sb.WriteString("Alice: this is a line of dialogue in the meeting.\n")
	}

	chunks := c.Chunk(sb.String(), "meeting-1", "google_meet")
	require.NotEmpty(t, chunks)
	for _, chunk := range chunks {
		assert.LessOrEqual(t, len(chunk.ChunkContent), cfg.MaxChars)
		assert.Equal(t, "meeting-1", chunk.MeetingID)
		assert.Equal(t, "google_meet", chunk.Source)
		assert.NotEmpty(t, chunk.ID)
	}
}

func TestChunkInfersSingleSpeakerWhenUnambiguous(t *testing.T) {
	cfg := &config.ChunkerConfig{MaxChars: 2000, OverlapChars: 200}
	c := New(cfg)

	chunks := c.Chunk("Alice: hello everyone\nAlice: how is it going", "meeting-2", "zoom")
	require.Len(t, chunks, 1)
	assert.Equal(t, "Alice", chunks[0].Speaker)
}

func TestChunkLeavesSpeakerEmptyWhenMultipleSpeakersPresent(t *testing.T) {
	cfg := &config.ChunkerConfig{MaxChars: 2000, OverlapChars: 200}
	c := New(cfg)

	chunks := c.Chunk("Alice: hello\nBob: hi there", "meeting-3", "zoom")
	require.Len(t, chunks, 1)
	assert.Empty(t, chunks[0].Speaker)
}

func TestChunkReturnsNilForEmptyTranscript(t *testing.T) {
	cfg := &config.ChunkerConfig{MaxChars: 2000, OverlapChars: 200}
	c := New(cfg)
	assert.Nil(t, c.Chunk("   \n  ", "meeting-4", "zoom"))
}

func TestChunkIndicesAreSequential(t *testing.T) {
	cfg := &config.ChunkerConfig{MaxChars: 40, OverlapChars: 5}
	c := New(cfg)
	chunks := c.Chunk(strings.Repeat("word ", 100), "meeting-5", "zoom")
	require.NotEmpty(t, chunks)
	for i, chunk := range chunks {
		assert.Equal(t, i+1, chunk.ChunkIndex)
	}
}
