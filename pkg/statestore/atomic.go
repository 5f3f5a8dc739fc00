// Package statestore provides crash-safe, file-backed persistence for the
// low-volume, single-writer records the meeting intelligence pipeline
// depends on across restarts: the active-meeting lock, the trigger
// dedupe record, meeting run results, and the supervisor's JSONL history.
//
// Every record write goes through writeFileAtomic: write to a sibling
// ".tmp" file, fsync, then rename over the destination. Rename is atomic on
// POSIX filesystems, so a crash mid-write never leaves a half-written file
// in place of a good one. The JSONL history is the exception: appendJSONL
// appends lines to it in place.
package statestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrNotFound is returned by readers when the requested record does not
// exist on disk.
var ErrNotFound = errors.New("statestore: not found")

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("statestore: mkdir %s: %w", dir, err)
	}

	tmp := path + ".tmp"
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("statestore: open temp file %s: %w", tmp, err)
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("statestore: write temp file %s: %w", tmp, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("statestore: fsync temp file %s: %w", tmp, err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: close temp file %s: %w", tmp, err)
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("statestore: rename %s -> %s: %w", tmp, path, err)
	}
	return nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("statestore: marshal %s: %w", path, err)
	}
	return writeFileAtomic(path, data, 0o644)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ErrNotFound
		}
		return fmt.Errorf("statestore: read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("statestore: unmarshal %s: %w", path, err)
	}
	return nil
}

// WriteFileAtomic exposes the package's temp+fsync+rename write for
// callers outside statestore that need unconditional atomic overwrite
// (the transcript merger's idempotent-unless-forced MERGED outputs).
func WriteFileAtomic(path string, data []byte) error {
	return writeFileAtomic(path, data, 0o644)
}

// WriteJSONIfAbsent atomically writes v to path unless a file already
// exists there, returning wrote=false in that case. Used by the transcript
// harvester so reconnect-triggered re-saves never clobber a prior result.
func WriteJSONIfAbsent(path string, v any) (wrote bool, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return false, nil
	} else if !os.IsNotExist(statErr) {
		return false, fmt.Errorf("statestore: stat %s: %w", path, statErr)
	}
	if err := writeJSONAtomic(path, v); err != nil {
		return false, err
	}
	return true, nil
}

// WriteFileIfAbsent atomically writes data to path unless a file already
// exists there, returning wrote=false in that case.
func WriteFileIfAbsent(path string, data []byte) (wrote bool, err error) {
	if _, statErr := os.Stat(path); statErr == nil {
		return false, nil
	} else if !os.IsNotExist(statErr) {
		return false, fmt.Errorf("statestore: stat %s: %w", path, statErr)
	}
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return false, err
	}
	return true, nil
}

// appendJSONL appends one JSON-encoded line to path, creating it if
// necessary. Used for the supervisor's append-only audit history, which has
// a single writer per meeting run and does not need atomic-replace
// semantics (only durability of appended lines).
func appendJSONL(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("statestore: mkdir %s: %w", filepath.Dir(path), err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("statestore: open %s: %w", path, err)
	}
	defer f.Close()

	line, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("statestore: marshal jsonl entry: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("statestore: append %s: %w", path, err)
	}
	return f.Sync()
}
