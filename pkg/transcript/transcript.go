// Package transcript merges the transcript fragments one or more Notetaker
// attempts produced for a single meeting into one deterministic,
// idempotent output, grounded on
// original_source/smartmeetos/notetaker/transcript_merge.py. It never
// mutates or deletes the source fragment files.
package transcript

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/smartmeet/notetaker/pkg/statestore"
)

// MergeMarkerText is inserted between entries separated by more than
// gapThreshold of silence, signalling a reconnect.
const MergeMarkerText = "[Recording resumed after disconnection]"

const gapThresholdSeconds = 30.0

// NormalizedEntry is one speaker turn (or gap marker) after normalizing a
// fragment file's provider-specific JSON shape.
type NormalizedEntry struct {
	Speaker      string   `json:"speaker,omitempty"`
	Text         string   `json:"text"`
	Timestamp    *float64 `json:"timestamp,omitempty"`
	NotetakerID  string   `json:"notetaker_id"`
	SegmentIndex int      `json:"segment_index"`
}

var filenamePattern = regexp.MustCompile(`^([^_]+)__([^_]+)__([^.]+)\.transcript\.json$`)

func safeEventStartToken(eventStart string) string {
	return strings.ReplaceAll(eventStart, ":", "-")
}

// ListTranscriptFiles returns the fragment files for (eventID, eventStart)
// in deterministic order (modification time, then filename — standard
// os.FileInfo has no portable creation-time field across platforms, so
// mtime substitutes for the original's ctime-based fallback ordering).
func ListTranscriptFiles(transcriptsDir, eventID, eventStart string) ([]string, error) {
	entries, err := os.ReadDir(transcriptsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: read dir %s: %w", transcriptsDir, err)
	}

	prefix := fmt.Sprintf("%s__%s__", eventID, safeEventStartToken(eventStart))
	type fileInfo struct {
		path    string
		name    string
		modTime int64
	}
	var matches []fileInfo
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasPrefix(name, prefix) || !strings.HasSuffix(name, ".transcript.json") || strings.Contains(name, "__MERGED.") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		matches = append(matches, fileInfo{path: filepath.Join(transcriptsDir, name), name: name, modTime: info.ModTime().UnixNano()})
	}

	sort.Slice(matches, func(i, j int) bool {
		if matches[i].modTime != matches[j].modTime {
			return matches[i].modTime < matches[j].modTime
		}
		return matches[i].name < matches[j].name
	})

	paths := make([]string, len(matches))
	for i, m := range matches {
		paths[i] = m.path
	}
	return paths, nil
}

func parseTranscriptPayload(raw []byte) any {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return string(raw)
	}
	return v
}

func coerceTimestamp(v any) *float64 {
	switch n := v.(type) {
	case float64:
		return &n
	}
	return nil
}

func cleanString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// normalizeFromObject mirrors the original's shape-sniffing: a
// speaker-labelled transcript, a raw-text transcript, a single segment
// dict, a bare list of segments/strings, or a bare string.
func normalizeFromObject(obj any, notetakerID string) []NormalizedEntry {
	var entries []NormalizedEntry
	seg := 0

	switch v := obj.(type) {
	case map[string]any:
		if t, _ := v["type"].(string); t == "speaker_labelled" {
			if body, ok := v["transcript"].([]any); ok {
				for _, item := range body {
					m, ok := item.(map[string]any)
					if !ok {
						continue
					}
					text := cleanString(m["text"])
					if text == "" {
						continue
					}
					entries = append(entries, NormalizedEntry{
						Speaker:      cleanString(m["speaker"]),
						Text:         text,
						Timestamp:    coerceTimestamp(m["start"]),
						NotetakerID:  notetakerID,
						SegmentIndex: seg,
					})
					seg++
				}
				return entries
			}
		}
		if t, _ := v["type"].(string); t == "raw" {
			if body := cleanString(v["transcript"]); body != "" {
				return []NormalizedEntry{{Text: body, NotetakerID: notetakerID, SegmentIndex: 0}}
			}
		}
		if text := cleanString(v["text"]); text != "" {
			ts := coerceTimestamp(v["start_time"])
			if ts == nil {
				ts = coerceTimestamp(v["timestamp"])
			}
			if ts == nil {
				ts = coerceTimestamp(v["start"])
			}
			return []NormalizedEntry{{
				Speaker:      cleanString(v["speaker"]),
				Text:         text,
				Timestamp:    ts,
				NotetakerID:  notetakerID,
				SegmentIndex: 0,
			}}
		}

	case []any:
		for _, item := range v {
			switch m := item.(type) {
			case map[string]any:
				text := cleanString(m["text"])
				if text == "" {
					continue
				}
				ts := coerceTimestamp(m["start_time"])
				if ts == nil {
					ts = coerceTimestamp(m["timestamp"])
				}
				if ts == nil {
					ts = coerceTimestamp(m["start"])
				}
				entries = append(entries, NormalizedEntry{
					Speaker:      cleanString(m["speaker"]),
					Text:         text,
					Timestamp:    ts,
					NotetakerID:  notetakerID,
					SegmentIndex: seg,
				})
				seg++
			case string:
				if s := strings.TrimSpace(m); s != "" {
					entries = append(entries, NormalizedEntry{Text: s, NotetakerID: notetakerID, SegmentIndex: seg})
					seg++
				}
			}
		}
		return entries

	case string:
		if s := strings.TrimSpace(v); s != "" {
			return []NormalizedEntry{{Text: s, NotetakerID: notetakerID, SegmentIndex: 0}}
		}
	}

	return entries
}

// NormalizeTranscriptFile loads and normalizes one fragment file.
func NormalizeTranscriptFile(path string) ([]NormalizedEntry, error) {
	notetakerID := "unknown"
	if m := filenamePattern.FindStringSubmatch(filepath.Base(path)); m != nil {
		notetakerID = m[3]
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("transcript: read %s: %w", path, err)
	}
	obj := parseTranscriptPayload(raw)
	return normalizeFromObject(obj, notetakerID), nil
}

// sortedEntries orders entries deterministically: timestamped entries
// before untimestamped ones, then timestamp, then a globally-unique
// segment index derived from file order, then notetaker ID.
func sortedEntries(perFileEntries [][]NormalizedEntry) []NormalizedEntry {
	var out []NormalizedEntry
	for fileIndex, entries := range perFileEntries {
		for _, e := range entries {
			e.SegmentIndex = fileIndex*1_000_000 + e.SegmentIndex
			out = append(out, e)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aHas, bHas := a.Timestamp != nil, b.Timestamp != nil
		if aHas != bHas {
			return aHas // timestamped entries sort first
		}
		if aHas && bHas && *a.Timestamp != *b.Timestamp {
			return *a.Timestamp < *b.Timestamp
		}
		if a.SegmentIndex != b.SegmentIndex {
			return a.SegmentIndex < b.SegmentIndex
		}
		return a.NotetakerID < b.NotetakerID
	})
	return out
}

// insertGapMarkers inserts a MergeMarkerText entry wherever two
// consecutive timestamped entries are more than 30 seconds apart, then
// re-sorts to keep output deterministic with the markers in place.
func insertGapMarkers(entries []NormalizedEntry) []NormalizedEntry {
	if len(entries) == 0 {
		return nil
	}

	var out []NormalizedEntry
	var prevTS *float64
	for idx, e := range entries {
		if prevTS != nil && e.Timestamp != nil && (*e.Timestamp-*prevTS) > gapThresholdSeconds {
			markerTS := *prevTS + 0.0001
			out = append(out, NormalizedEntry{
				Text:         MergeMarkerText,
				Timestamp:    &markerTS,
				NotetakerID:  "system",
				SegmentIndex: -1_000_000 + idx,
			})
		}
		out = append(out, e)
		if e.Timestamp != nil {
			prevTS = e.Timestamp
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		aHas, bHas := a.Timestamp != nil, b.Timestamp != nil
		if aHas != bHas {
			return aHas
		}
		if aHas && bHas && *a.Timestamp != *b.Timestamp {
			return *a.Timestamp < *b.Timestamp
		}
		if a.SegmentIndex != b.SegmentIndex {
			return a.SegmentIndex < b.SegmentIndex
		}
		return a.NotetakerID < b.NotetakerID
	})
	return out
}

type mergedPayload struct {
	Object      string            `json:"object"`
	MeetingKey  map[string]string `json:"meeting_key"`
	SourceFiles []string          `json:"source_files"`
	Entries     []NormalizedEntry `json:"entries"`
}

// MergeTranscriptsForMeeting merges all fragment files for (eventID,
// eventStart) into a MERGED json and txt output under transcriptsDir.
// Idempotent: if both merged outputs already exist, it returns their paths
// without rewriting unless force is true. Returns ("", "", nil) if there
// are no fragments to merge.
func MergeTranscriptsForMeeting(transcriptsDir, eventID, eventStart string, force bool) (mergedJSON, mergedTxt string, err error) {
	files, err := ListTranscriptFiles(transcriptsDir, eventID, eventStart)
	if err != nil {
		return "", "", err
	}
	if len(files) == 0 {
		return "", "", nil
	}

	token := safeEventStartToken(eventStart)
	mergedJSON = filepath.Join(transcriptsDir, fmt.Sprintf("%s__%s__MERGED.transcript.json", eventID, token))
	mergedTxt = filepath.Join(transcriptsDir, fmt.Sprintf("%s__%s__MERGED.txt", eventID, token))

	if !force {
		if _, errJSON := os.Stat(mergedJSON); errJSON == nil {
			if _, errTxt := os.Stat(mergedTxt); errTxt == nil {
				return mergedJSON, mergedTxt, nil
			}
		}
	}

	perFileEntries := make([][]NormalizedEntry, len(files))
	sourceNames := make([]string, len(files))
	for i, f := range files {
		entries, err := NormalizeTranscriptFile(f)
		if err != nil {
			return "", "", err
		}
		perFileEntries[i] = entries
		sourceNames[i] = filepath.Base(f)
	}

	ordered := insertGapMarkers(sortedEntries(perFileEntries))

	payload := mergedPayload{
		Object:      "merged_transcript",
		MeetingKey:  map[string]string{"event_id": eventID, "event_start": eventStart},
		SourceFiles: sourceNames,
		Entries:     ordered,
	}

	var lines []string
	for _, e := range ordered {
		switch {
		case e.Text == MergeMarkerText:
			lines = append(lines, MergeMarkerText)
		case e.Speaker != "":
			lines = append(lines, fmt.Sprintf("%s: %s", e.Speaker, e.Text))
		default:
			lines = append(lines, e.Text)
		}
	}

	if err := writeJSONForce(mergedJSON, payload); err != nil {
		return "", "", err
	}
	text := strings.TrimSpace(strings.Join(lines, "\n")) + "\n"
	if err := writeTextForce(mergedTxt, text); err != nil {
		return "", "", err
	}
	return mergedJSON, mergedTxt, nil
}

// writeJSONForce and writeTextForce always (re)write — unlike
// statestore's WriteJSONIfAbsent, a forced re-merge must be able to
// overwrite a prior MERGED output.
func writeJSONForce(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("transcript: marshal %s: %w", path, err)
	}
	return statestore.WriteFileAtomic(path, data)
}

func writeTextForce(path, text string) error {
	return statestore.WriteFileAtomic(path, []byte(text))
}

// groupKey identifies one meeting's fragments for MergeAllMeetingsInDir.
type groupKey struct {
	eventID         string
	eventStartToken string
}

// MergeAllMeetingsInDir groups every non-MERGED fragment file in dir by
// (event_id, event_start_token) and merges each group, useful when
// transcripts arrive late or out of order.
func MergeAllMeetingsInDir(transcriptsDir string, force bool) ([][2]string, error) {
	entries, err := os.ReadDir(transcriptsDir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("transcript: read dir %s: %w", transcriptsDir, err)
	}

	groups := map[groupKey]bool{}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".transcript.json") || strings.Contains(name, "__MERGED.") {
			continue
		}
		m := filenamePattern.FindStringSubmatch(name)
		if m == nil {
			continue
		}
		groups[groupKey{eventID: m[1], eventStartToken: m[2]}] = true
	}

	keys := make([]groupKey, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].eventID != keys[j].eventID {
			return keys[i].eventID < keys[j].eventID
		}
		return keys[i].eventStartToken < keys[j].eventStartToken
	})

	var merged [][2]string
	for _, k := range keys {
		mergedJSON := filepath.Join(transcriptsDir, fmt.Sprintf("%s__%s__MERGED.transcript.json", k.eventID, k.eventStartToken))
		mergedTxt := filepath.Join(transcriptsDir, fmt.Sprintf("%s__%s__MERGED.txt", k.eventID, k.eventStartToken))
		if !force {
			if _, errJSON := os.Stat(mergedJSON); errJSON == nil {
				if _, errTxt := os.Stat(mergedTxt); errTxt == nil {
					continue
				}
			}
		}
		outJSON, outTxt, err := MergeTranscriptsForMeeting(transcriptsDir, k.eventID, k.eventStartToken, force)
		if err != nil {
			return merged, err
		}
		if outJSON != "" && outTxt != "" {
			merged = append(merged, [2]string{outJSON, outTxt})
		}
	}
	return merged, nil
}
