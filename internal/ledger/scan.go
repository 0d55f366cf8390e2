package ledger

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"subservient/internal/fileutil"
	"subservient/internal/services"
)

// Pair identifies the unit of resolution: one video and one language. In
// series mode Episode scopes the candidates of that video inside a shared
// season folder.
type Pair struct {
	Video    string
	Language string
	Episode  string
}

// Dir is the folder holding the video and all of its subtitle files.
func (p Pair) Dir() string {
	return filepath.Dir(p.Video)
}

// CanonicalPath is where the accepted subtitle for this pair lives.
func (p Pair) CanonicalPath() string {
	return filepath.Join(p.Dir(), CanonicalName(p.Video, p.Language))
}

// Path returns the absolute path of an entry belonging to this pair.
func (p Pair) Path(e Entry) string {
	return filepath.Join(p.Dir(), e.FileName())
}

// Owns reports whether entry belongs to this pair.
func (p Pair) Owns(e Entry) bool {
	return e.Language == p.Language && e.Episode == p.Episode
}

func (p Pair) String() string {
	return fmt.Sprintf("%s [%s]", filepath.Base(p.Video), p.Language)
}

// Snapshot is the ledger of one pair as found on disk.
type Snapshot struct {
	Pair      Pair
	Canonical bool
	// Entries holds every candidate of the pair ordered by slot, then state.
	Entries []Entry
}

// Scan reads the pair's directory and reconstructs its ledger. It never
// modifies the directory, so scanning an unchanged directory twice yields
// identical snapshots.
func Scan(pair Pair) (Snapshot, error) {
	dirEntries, err := os.ReadDir(pair.Dir())
	if err != nil {
		return Snapshot{}, wrapFSError("scan", pair.Dir(), err)
	}
	snap := Snapshot{Pair: pair}
	canonical := CanonicalName(pair.Video, pair.Language)
	for _, de := range dirEntries {
		if de.IsDir() {
			continue
		}
		name := de.Name()
		if name == canonical {
			snap.Canonical = true
			continue
		}
		entry, ok := Parse(name)
		if !ok || !pair.Owns(entry) {
			continue
		}
		snap.Entries = append(snap.Entries, entry)
	}
	sort.Slice(snap.Entries, func(i, j int) bool {
		if snap.Entries[i].Slot != snap.Entries[j].Slot {
			return snap.Entries[i].Slot < snap.Entries[j].Slot
		}
		return snap.Entries[i].State < snap.Entries[j].State
	})
	return snap, nil
}

// Sweep removes temp files an interrupted run left in dir.
func Sweep(dir string) ([]string, error) {
	removed, err := fileutil.SweepStaleTemps(dir, time.Hour)
	if err != nil {
		return removed, wrapFSError("sweep", dir, err)
	}
	return removed, nil
}

// Untested returns the candidates still awaiting alignment in ascending slot
// order. A slot that already carries a DRIFT or FAILED marker is excluded
// even if an untested file with the same slot exists.
func (s Snapshot) Untested() []Entry {
	judged := s.judgedSlots()
	var out []Entry
	for _, e := range s.Entries {
		if e.State != StateUntested {
			continue
		}
		if _, ok := judged[e.Slot]; ok {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Judged returns the DRIFT and FAILED entries.
func (s Snapshot) Judged() []Entry {
	return s.inState(StateDrift, StateFailed)
}

// InState returns the entries in any of the given states.
func (s Snapshot) InState(states ...State) []Entry {
	return s.inState(states...)
}

func (s Snapshot) inState(states ...State) []Entry {
	var out []Entry
	for _, e := range s.Entries {
		for _, st := range states {
			if e.State == st {
				out = append(out, e)
				break
			}
		}
	}
	return out
}

// KnownPopularity is the set of popularity scores already present in any
// state. A catalog result with one of these scores is never downloaded again.
func (s Snapshot) KnownPopularity() map[int64]struct{} {
	known := make(map[int64]struct{}, len(s.Entries))
	for _, e := range s.Entries {
		known[e.Popularity] = struct{}{}
	}
	return known
}

// TotalExisting counts every candidate file of the pair: untested, DRIFT,
// and FAILED. It is the figure charged against the pool cap.
func (s Snapshot) TotalExisting() int {
	return len(s.Entries)
}

// NextSlot is one past the highest slot in use, or 1 for an empty ledger.
func (s Snapshot) NextSlot() int {
	highest := 0
	for _, e := range s.Entries {
		if e.Slot > highest {
			highest = e.Slot
		}
	}
	return highest + 1
}

func (s Snapshot) judgedSlots() map[int]struct{} {
	slots := make(map[int]struct{})
	for _, e := range s.Entries {
		if e.State.Judged() {
			slots[e.Slot] = struct{}{}
		}
	}
	return slots
}

func wrapFSError(operation, path string, err error) error {
	marker := services.ErrTransient
	switch {
	case errors.Is(err, fs.ErrPermission):
		marker = services.ErrPermission
	case errors.Is(err, fs.ErrExist):
		marker = services.ErrConflict
	case errors.Is(err, fs.ErrNotExist):
		marker = services.ErrNotFound
	}
	return services.Wrap(marker, "ledger", operation, path, err)
}
