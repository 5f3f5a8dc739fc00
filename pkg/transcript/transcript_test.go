package transcript

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFragment(t *testing.T, dir, eventID, token, notetakerID, content string) string {
	t.Helper()
	path := filepath.Join(dir, eventID+"__"+token+"__"+notetakerID+".transcript.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestMergeTranscriptsForMeetingOrdersByTimestampAndInsertsGapMarker(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "evt-1", "2026-07-30T10-00-00Z", "bot-1", `{
		"type": "speaker_labelled",
		"transcript": [
			{"speaker": "Alice", "text": "hello", "start": 0},
			{"speaker": "Bob", "text": "after a long pause", "start": 100}
		]
	}`)

	mergedJSON, mergedTxt, err := MergeTranscriptsForMeeting(dir, "evt-1", "2026-07-30T10:00:00Z", false)
	require.NoError(t, err)
	require.NotEmpty(t, mergedJSON)
	require.NotEmpty(t, mergedTxt)

	text, err := os.ReadFile(mergedTxt)
	require.NoError(t, err)
	assert.Contains(t, string(text), "Alice: hello")
	assert.Contains(t, string(text), MergeMarkerText)
	assert.Contains(t, string(text), "Bob: after a long pause")

	// Gap marker must appear between the two speaker lines.
	aliceIdx := indexOf(string(text), "Alice: hello")
	markerIdx := indexOf(string(text), MergeMarkerText)
	bobIdx := indexOf(string(text), "Bob: after a long pause")
	assert.True(t, aliceIdx < markerIdx && markerIdx < bobIdx)
}

func TestMergeTranscriptsForMeetingIsIdempotentUnlessForced(t *testing.T) {
	dir := t.TempDir()
	writeFragment(t, dir, "evt-2", "2026-07-30T10-00-00Z", "bot-1", `{"type":"raw","transcript":"hi there"}`)

	json1, txt1, err := MergeTranscriptsForMeeting(dir, "evt-2", "2026-07-30T10:00:00Z", false)
	require.NoError(t, err)

	// Mutate the merged txt output directly; a non-forced re-merge must
	// leave it untouched since both merged outputs already exist.
	require.NoError(t, os.WriteFile(txt1, []byte("tampered"), 0o644))

	json2, txt2, err := MergeTranscriptsForMeeting(dir, "evt-2", "2026-07-30T10:00:00Z", false)
	require.NoError(t, err)
	assert.Equal(t, json1, json2)
	assert.Equal(t, txt1, txt2)
	content, err := os.ReadFile(txt2)
	require.NoError(t, err)
	assert.Equal(t, "tampered", string(content))

	_, _, err = MergeTranscriptsForMeeting(dir, "evt-2", "2026-07-30T10:00:00Z", true)
	require.NoError(t, err)
	content, err = os.ReadFile(txt2)
	require.NoError(t, err)
	assert.Contains(t, string(content), "hi there")
}

func TestMergeTranscriptsForMeetingReturnsEmptyWhenNoFragments(t *testing.T) {
	dir := t.TempDir()
	j, tx, err := MergeTranscriptsForMeeting(dir, "evt-none", "2026-07-30T10:00:00Z", false)
	require.NoError(t, err)
	assert.Empty(t, j)
	assert.Empty(t, tx)
}

func indexOf(haystack, needle string) int {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return i
		}
	}
	return -1
}
