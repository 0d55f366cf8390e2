package runstate

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"subservient/internal/fileutil"
)

const (
	blockSeparator = "--"
	tokenTag       = "[token]"
	skippedTag     = "[skipped_movies]"
	tokenComment   = "Bearer token for the OpenSubtitles API. Updated automatically."
	skippedComment = "Videos skipped manually. Remove an entry below to make it appear again."
)

// State is the decoded content of the runtime state file.
type State struct {
	Token string
	// Skipped maps an absolute video path to its skipped languages
	// (lowercase, sorted).
	Skipped map[string][]string
}

// SkipEntry is one line of the Skip Registry.
type SkipEntry struct {
	Video     string
	Languages []string
}

// Store reads and writes the runtime state file.
type Store struct {
	path string
	mu   sync.Mutex
}

// NewStore returns a Store backed by path. The file is created on first write.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load reads the state file. A missing file is an empty state.
func (s *Store) Load() (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

func (s *Store) load() (State, error) {
	state := State{Skipped: make(map[string][]string)}
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return state, nil
		}
		return state, fmt.Errorf("read runtime state: %w", err)
	}
	section := ""
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == blockSeparator:
			section = ""
			continue
		case line == tokenTag, line == skippedTag:
			section = line
			continue
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		}
		switch section {
		case tokenTag:
			if state.Token == "" {
				state.Token = line
			}
		case skippedTag:
			video, langs, ok := parseSkipLine(line)
			if ok {
				state.Skipped[video] = mergeLanguages(state.Skipped[video], langs)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return state, fmt.Errorf("scan runtime state: %w", err)
	}
	return state, nil
}

// Save writes the state file atomically.
func (s *Store) Save(state State) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(state)
}

func (s *Store) save(state State) error {
	var b strings.Builder
	b.WriteString(blockSeparator + "\n")
	b.WriteString(tokenComment + "\n")
	b.WriteString(tokenTag + "\n")
	b.WriteString(state.Token + "\n")
	b.WriteString(blockSeparator + "\n")
	b.WriteString(skippedComment + "\n")
	b.WriteString(skippedTag + "\n")
	for _, entry := range entriesOf(state) {
		b.WriteString(formatSkipLine(entry) + "\n")
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure runtime state directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(s.path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write runtime state: %w", err)
	}
	return nil
}

func (s *Store) update(fn func(*State) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	state, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&state); err != nil {
		return err
	}
	return s.save(state)
}

// LoadToken returns the cached bearer token, or "" when none is stored.
func (s *Store) LoadToken() (string, error) {
	state, err := s.Load()
	if err != nil {
		return "", err
	}
	return state.Token, nil
}

// SaveToken replaces the cached bearer token. An empty token clears it.
func (s *Store) SaveToken(token string) error {
	return s.update(func(state *State) error {
		state.Token = strings.TrimSpace(token)
		return nil
	})
}

// IsSkipped reports whether the operator excluded (video, lang).
func (s *Store) IsSkipped(video, lang string) (bool, error) {
	state, err := s.Load()
	if err != nil {
		return false, err
	}
	key := videoKey(video)
	lang = strings.ToLower(strings.TrimSpace(lang))
	for _, l := range state.Skipped[key] {
		if l == lang {
			return true, nil
		}
	}
	return false, nil
}

// AddSkip registers languages for video, merging with any existing entry.
func (s *Store) AddSkip(video string, langs ...string) error {
	if len(langs) == 0 {
		return errors.New("add skip: at least one language required")
	}
	return s.update(func(state *State) error {
		key := videoKey(video)
		state.Skipped[key] = mergeLanguages(state.Skipped[key], langs)
		return nil
	})
}

// RemoveSkip removes languages from the video's entry, or the whole entry
// when no languages are given. It reports whether anything changed.
func (s *Store) RemoveSkip(video string, langs ...string) (bool, error) {
	changed := false
	err := s.update(func(state *State) error {
		key := videoKey(video)
		current, ok := state.Skipped[key]
		if !ok {
			return nil
		}
		if len(langs) == 0 {
			delete(state.Skipped, key)
			changed = true
			return nil
		}
		drop := make(map[string]struct{}, len(langs))
		for _, l := range langs {
			drop[strings.ToLower(strings.TrimSpace(l))] = struct{}{}
		}
		var kept []string
		for _, l := range current {
			if _, ok := drop[l]; ok {
				changed = true
				continue
			}
			kept = append(kept, l)
		}
		if len(kept) == 0 {
			delete(state.Skipped, key)
		} else {
			state.Skipped[key] = kept
		}
		return nil
	})
	return changed, err
}

// SkipEntries lists the registry sorted by video path.
func (s *Store) SkipEntries() ([]SkipEntry, error) {
	state, err := s.Load()
	if err != nil {
		return nil, err
	}
	return entriesOf(state), nil
}

func entriesOf(state State) []SkipEntry {
	entries := make([]SkipEntry, 0, len(state.Skipped))
	for video, langs := range state.Skipped {
		if len(langs) == 0 {
			continue
		}
		entries = append(entries, SkipEntry{Video: video, Languages: langs})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Video < entries[j].Video })
	return entries
}

func parseSkipLine(line string) (string, []string, bool) {
	if !strings.HasSuffix(line, "]") {
		return "", nil, false
	}
	idx := strings.LastIndex(line, " [")
	if idx <= 0 {
		return "", nil, false
	}
	video := strings.TrimSpace(line[:idx])
	langs := strings.Split(line[idx+2:len(line)-1], ",")
	merged := mergeLanguages(nil, langs)
	if video == "" || len(merged) == 0 {
		return "", nil, false
	}
	return video, merged, true
}

func formatSkipLine(entry SkipEntry) string {
	upper := make([]string, len(entry.Languages))
	for i, l := range entry.Languages {
		upper[i] = strings.ToUpper(l)
	}
	return entry.Video + " [" + strings.Join(upper, ",") + "]"
}

func mergeLanguages(existing, added []string) []string {
	set := make(map[string]struct{}, len(existing)+len(added))
	for _, l := range append(append([]string(nil), existing...), added...) {
		l = strings.ToLower(strings.TrimSpace(l))
		if l != "" {
			set[l] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for l := range set {
		out = append(out, l)
	}
	sort.Strings(out)
	return out
}

// videoKey resolves a video path to the absolute form stored in the
// registry. Symlinks are resolved when the file still exists.
func videoKey(video string) string {
	abs, err := filepath.Abs(video)
	if err != nil {
		return filepath.Clean(video)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
