package ledger

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"subservient/internal/fileutil"
	"subservient/internal/services"
)

// ErrCanonicalExists is returned when a pair already has an accepted
// subtitle and a second one would take its name.
var ErrCanonicalExists = errors.New("canonical subtitle already exists")

// Store writes a freshly downloaded candidate under its untested name. The
// content goes to a temp file first; the final name only appears once the
// bytes are complete. An existing file with the same name is never replaced.
func Store(pair Pair, entry Entry, content io.Reader) (string, error) {
	entry.State = StateUntested
	if !pair.Owns(entry) {
		return "", fmt.Errorf("ledger: entry %s does not belong to %s", entry, pair)
	}
	target := pair.Path(entry)
	if err := fileutil.WriteReaderNoClobber(target, content, 0o644); err != nil {
		return "", wrapFSError("store", target, err)
	}
	return target, nil
}

// Move renames an entry into another state and returns the entry as it now
// exists on disk. On failure the file keeps its old name and the returned
// error says why; callers must not assume the transition happened.
func Move(pair Pair, entry Entry, to State) (Entry, error) {
	next := entry.WithState(to)
	if next == entry {
		return entry, nil
	}
	from := pair.Path(entry)
	dest := pair.Path(next)
	if err := fileutil.RenameNoClobber(from, dest); err != nil {
		return entry, wrapFSError("rename "+entry.State.String()+" to "+to.String(), from, err)
	}
	return next, nil
}

// Promote moves an aligned subtitle (usually a temp file in the pair's
// directory) to the pair's canonical name. It fails with ErrCanonicalExists,
// wrapped as a conflict, when the canonical name is taken.
func Promote(pair Pair, alignedPath string) (string, error) {
	target := pair.CanonicalPath()
	if err := fileutil.RenameNoClobber(alignedPath, target); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return "", services.Wrap(services.ErrConflict, "ledger", "promote", target, ErrCanonicalExists)
		}
		return "", wrapFSError("promote", target, err)
	}
	return target, nil
}

// Demote undoes an accept: the canonical subtitle goes back to the
// candidate name it was promoted from, marked DRIFT, so the next run skips
// its popularity and backfills the slot. The slot name must be free.
func Demote(pair Pair, entry Entry) (Entry, error) {
	next := entry.WithState(StateDrift)
	if !pair.Owns(next) {
		return entry, fmt.Errorf("ledger: entry %s does not belong to %s", entry, pair)
	}
	from := pair.CanonicalPath()
	if err := fileutil.RenameNoClobber(from, pair.Path(next)); err != nil {
		return entry, wrapFSError("demote", from, err)
	}
	return next, nil
}

// Cleanup removes every candidate file of a resolved pair. Entries that
// could not be removed are reported through the joined error; the rest are
// still removed.
func Cleanup(snap Snapshot) ([]Entry, error) {
	var removed []Entry
	var errs []error
	for _, e := range snap.Entries {
		if err := fileutil.RemoveIfExists(snap.Pair.Path(e)); err != nil {
			errs = append(errs, wrapFSError("cleanup", snap.Pair.Path(e), err))
			continue
		}
		removed = append(removed, e)
	}
	return removed, errors.Join(errs...)
}

// MarkDriftAsFailed turns every DRIFT entry into FAILED. It runs when the
// whole escalation ladder produced nothing downloadable.
func MarkDriftAsFailed(snap Snapshot) ([]Entry, error) {
	return moveAll(snap, StateDrift, StateFailed)
}

// RestoreFailedToDrift turns every FAILED entry back into DRIFT. It runs
// after a successful download and when the operator raises the pool cap, so
// those slots count as replaceable rejections again.
func RestoreFailedToDrift(snap Snapshot) ([]Entry, error) {
	return moveAll(snap, StateFailed, StateDrift)
}

func moveAll(snap Snapshot, from, to State) ([]Entry, error) {
	var moved []Entry
	var errs []error
	for _, e := range snap.InState(from) {
		next, err := Move(snap.Pair, e, to)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		moved = append(moved, next)
	}
	return moved, errors.Join(errs...)
}

// Remove deletes a single entry file.
func Remove(pair Pair, entry Entry) error {
	path := pair.Path(entry)
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return wrapFSError("remove", path, err)
	}
	return nil
}
