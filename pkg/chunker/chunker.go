// Package chunker splits a merged meeting transcript into bounded,
// overlapping pieces for the extraction pipeline, grounded on
// original_source/processing/smart_chunker_node.py's use of LangChain's
// RecursiveCharacterTextSplitter. No Go port of that splitter exists
// anywhere in the retrieved pack, so this package reimplements its
// recursive-separator/merge-with-overlap algorithm directly against the
// standard library rather than pull in an unvetted dependency.
package chunker

import (
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/smartmeet/notetaker/pkg/config"
	"github.com/smartmeet/notetaker/pkg/models"
)

var defaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

var speakerPrefix = regexp.MustCompile(`(?m)^\s*([^:\n]{1,80})\s*:\s+`)

// Chunker splits transcript text using a RecursiveCharacterTextSplitter
// equivalent: prefer paragraph, then line, then sentence, then word
// boundaries, falling back to raw character splitting only when nothing
// else fits within MaxChars.
type Chunker struct {
	cfg *config.ChunkerConfig
}

// New returns a Chunker configured by cfg.
func New(cfg *config.ChunkerConfig) *Chunker {
	return &Chunker{cfg: cfg}
}

// Chunk splits transcriptText into TranscriptChunk records for meetingID,
// tagging each with the caller-supplied source label and inferring a
// single speaker when exactly one distinct "Name:" prefix appears in a
// chunk (lines without a prefix are ignored for this).
func (c *Chunker) Chunk(transcriptText, meetingID, source string) []models.TranscriptChunk {
	normalized := strings.TrimSpace(strings.ReplaceAll(transcriptText, "\r\n", "\n"))
	if normalized == "" {
		return nil
	}

	pieces := splitText(normalized, defaultSeparators, c.cfg.MaxChars, c.cfg.OverlapChars)

	var out []models.TranscriptChunk
	index := 1
	now := time.Now().UTC()
	for _, piece := range pieces {
		content := strings.TrimSpace(piece)
		if content == "" {
			continue
		}
		out = append(out, models.TranscriptChunk{
			ID:           uuid.NewString(),
			MeetingID:    meetingID,
			ChunkIndex:   index,
			Speaker:      inferSingleSpeaker(content),
			ChunkContent: content,
			Source:       source,
			CreatedAt:    now,
		})
		index++
	}
	return out
}

func inferSingleSpeaker(chunkContent string) string {
	speakers := map[string]struct{}{}
	for _, m := range speakerPrefix.FindAllStringSubmatch(chunkContent, -1) {
		if s := strings.TrimSpace(m[1]); s != "" {
			speakers[s] = struct{}{}
		}
	}
	if len(speakers) != 1 {
		return ""
	}
	for s := range speakers {
		return s
	}
	return ""
}

// splitText recursively splits text on the first separator that fits,
// falling through to the next separator only for pieces still larger than
// chunkSize, then merges the resulting pieces back together respecting
// chunkSize and chunkOverlap.
func splitText(text string, separators []string, chunkSize, chunkOverlap int) []string {
	if len(separators) == 0 {
		return mergeSplits(splitIntoRunes(text), "", chunkSize, chunkOverlap)
	}

	sep := separators[0]
	rest := separators[1:]

	var splits []string
	if sep == "" {
		splits = splitIntoRunes(text)
	} else {
		splits = strings.Split(text, sep)
	}

	var goodSplits []string
	var finalChunks []string
	flushGood := func() {
		if len(goodSplits) == 0 {
			return
		}
		finalChunks = append(finalChunks, mergeSplits(goodSplits, sep, chunkSize, chunkOverlap)...)
		goodSplits = nil
	}

	for _, s := range splits {
		if len(s) < chunkSize {
			goodSplits = append(goodSplits, s)
			continue
		}
		flushGood()
		if len(rest) == 0 {
			finalChunks = append(finalChunks, s)
		} else {
			finalChunks = append(finalChunks, splitText(s, rest, chunkSize, chunkOverlap)...)
		}
	}
	flushGood()
	return finalChunks
}

func splitIntoRunes(text string) []string {
	runes := []rune(text)
	out := make([]string, len(runes))
	for i, r := range runes {
		out[i] = string(r)
	}
	return out
}

// mergeSplits greedily packs splits into chunks no larger than chunkSize
// (joined by separator), carrying up to chunkOverlap of trailing context
// from one chunk into the next.
func mergeSplits(splits []string, separator string, chunkSize, chunkOverlap int) []string {
	sepLen := len(separator)
	var docs []string
	var current []string
	total := 0

	for _, d := range splits {
		length := len(d)
		sepAdd := 0
		if len(current) > 0 {
			sepAdd = sepLen
		}
		if total+length+sepAdd > chunkSize && len(current) > 0 {
			if doc := joinDocs(current, separator); doc != "" {
				docs = append(docs, doc)
			}
			for total > chunkOverlap || (total+length+sepAdd > chunkSize && total > 0) {
				removedSep := 0
				if len(current) > 1 {
					removedSep = sepLen
				}
				total -= len(current[0]) + removedSep
				current = current[1:]
				if len(current) == 0 {
					break
				}
			}
		}
		current = append(current, d)
		total += length
		if len(current) > 1 {
			total += sepLen
		}
	}
	if doc := joinDocs(current, separator); doc != "" {
		docs = append(docs, doc)
	}
	return docs
}

func joinDocs(docs []string, separator string) string {
	return strings.TrimSpace(strings.Join(docs, separator))
}
