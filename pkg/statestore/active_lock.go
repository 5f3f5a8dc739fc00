package statestore

import (
	"log/slog"
	"time"

	"github.com/smartmeet/notetaker/pkg/models"
)

// ActiveLockStore persists the single active-meeting lock described in
// spec §4.1. There is never more than one lock file; acquiring while a
// live lock is held fails, acquiring over an expired lock succeeds.
type ActiveLockStore struct {
	path string
	log  *slog.Logger
}

// NewActiveLockStore returns a store backed by the file at path.
func NewActiveLockStore(path string, log *slog.Logger) *ActiveLockStore {
	if log == nil {
		log = slog.Default()
	}
	return &ActiveLockStore{path: path, log: log.With("component", "active_lock_store")}
}

// Read returns the current lock, or (nil, nil) if no lock file exists or
// the file is malformed. Malformed/missing locks are treated the same as
// "no lock" rather than as errors, matching active_lock.py's
// read_active_lock defensive parsing: a corrupt lock must never wedge the
// scheduler.
func (s *ActiveLockStore) Read() (*models.ActiveLock, error) {
	var lock models.ActiveLock
	if err := readJSON(s.path, &lock); err != nil {
		if err == ErrNotFound {
			return nil, nil
		}
		s.log.Warn("active lock file unreadable, treating as absent", "path", s.path, "error", err)
		return nil, nil
	}
	if lock.EventID == "" || lock.ExpiresAtUTC.IsZero() {
		s.log.Warn("active lock file malformed, treating as absent", "path", s.path)
		return nil, nil
	}
	return &lock, nil
}

// IsActive reports whether a currently-held lock has not yet expired.
func IsActive(lock *models.ActiveLock, now time.Time) bool {
	return lock != nil && now.Before(lock.ExpiresAtUTC)
}

// Acquire takes the lock for the given event if no live lock is currently
// held. A stale (expired) lock is silently overwritten. Returns true if
// the lock was acquired.
func (s *ActiveLockStore) Acquire(eventID string, eventStart, expiresAt, now time.Time) (bool, error) {
	current, err := s.Read()
	if err != nil {
		return false, err
	}
	if IsActive(current, now) {
		return false, nil
	}
	lock := models.ActiveLock{EventID: eventID, EventStart: eventStart, ExpiresAtUTC: expiresAt}
	if err := writeJSONAtomic(s.path, lock); err != nil {
		return false, err
	}
	return true, nil
}

// Renew extends the expiry of a lock this caller already owns. It does
// nothing and returns nil if the on-disk lock no longer matches (eventID, eventStart) —
// another owner has since taken over, so this caller must not touch it.
func (s *ActiveLockStore) Renew(eventID string, eventStart, newExpiry time.Time) error {
	current, err := s.Read()
	if err != nil {
		return err
	}
	if current == nil || current.EventID != eventID || !current.EventStart.Equal(eventStart) {
		return nil
	}
	lock := models.ActiveLock{EventID: eventID, EventStart: eventStart, ExpiresAtUTC: newExpiry}
	return writeJSONAtomic(s.path, lock)
}

// Release removes the lock, but only if it still belongs to (eventID,
// eventStart) — mirrors active_lock.py's release_active_lock ownership
// check, so a supervisor that outlived its own deadline can never delete a
// newer owner's lock. Best-effort: an OS error removing the file is logged
// and swallowed, matching the Python original's try/except around unlink.
func (s *ActiveLockStore) Release(eventID string, eventStart time.Time) {
	current, err := s.Read()
	if err != nil || current == nil {
		return
	}
	if current.EventID != eventID || !current.EventStart.Equal(eventStart) {
		s.log.Debug("skip release: lock owned by a different event", "event_id", eventID)
		return
	}
	if err := removeIfExists(s.path); err != nil {
		s.log.Warn("failed to release active lock", "path", s.path, "error", err)
	}
}
