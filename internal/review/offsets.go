package review

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"subservient/internal/fileutil"
	"subservient/internal/textutil"
)

const (
	offsetHeaderTitle  = "Linear offset tracking file for movies with subtitle sync corrections."
	offsetHeaderFormat = "Format: movie name, path, offset, timestamp, first line"
	offsetSeparator    = "--"
)

var displaySeparators = strings.NewReplacer(".", " ", "_", " ")

var (
	titleLangPattern   = regexp.MustCompile(`\[([A-Za-z]{2})\]\s*$`)
	displayYearPattern = regexp.MustCompile(`^(.*?)[(.\s]((?:19|20)\d{2})[).\s]`)
)

// OffsetEntry is one soft-accepted subtitle waiting to be eyeballed.
type OffsetEntry struct {
	Title    string
	Language string
	Dir      string
	Video    string
	Subtitle string
	// Offset is the signed shift in seconds the aligner applied to the
	// first cue.
	Offset    float64
	CueTime   string
	FirstLine string
	// Candidate is the ledger file name the subtitle was promoted from.
	Candidate string
}

// VideoPath joins Dir and Video.
func (e OffsetEntry) VideoPath() string {
	return filepath.Join(e.Dir, e.Video)
}

// SubtitlePath joins Dir and Subtitle.
func (e OffsetEntry) SubtitlePath() string {
	return filepath.Join(e.Dir, e.Subtitle)
}

func (e OffsetEntry) matches(dir, video, lang string) bool {
	return e.Dir == dir && e.Video == video && strings.EqualFold(e.Language, lang)
}

func (e OffsetEntry) lines() []string {
	title := strings.TrimSpace(e.Title)
	if title == "" {
		title = DisplayTitle(e.Video)
	}
	return []string{
		title + " [" + strings.ToUpper(e.Language) + "]",
		e.Dir,
		e.Video,
		e.Subtitle,
		strconv.FormatFloat(e.Offset, 'f', 3, 64),
		e.CueTime + "  " + e.FirstLine,
		e.Candidate,
	}
}

// DisplayTitle shortens a video file name for display: everything up to and
// including the year, separators turned into spaces, title cased. Names
// without a year only lose their extension.
func DisplayTitle(videoName string) string {
	base := strings.TrimSuffix(videoName, filepath.Ext(videoName))
	if m := displayYearPattern.FindStringSubmatchIndex(videoName + " "); m != nil {
		base = strings.TrimRight(videoName[:min(m[1], len(videoName))], ". ")
	}
	base = strings.Join(strings.Fields(displaySeparators.Replace(base)), " ")
	return textutil.TitleCase(base)
}

// OffsetQueue is the offset-tracking file: soft-accepted subtitles the
// operator should check by eye. It is a plain text file so it can be read
// and edited without the tool.
type OffsetQueue struct {
	path string
	mu   sync.Mutex
}

// NewOffsetQueue returns a queue backed by path.
func NewOffsetQueue(path string) *OffsetQueue {
	return &OffsetQueue{path: path}
}

// Path returns the backing file.
func (q *OffsetQueue) Path() string {
	return q.path
}

// Record adds entry, replacing an existing one for the same video and
// language in place. It reports whether an entry was replaced.
func (q *OffsetQueue) Record(entry OffsetEntry) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return false, err
	}
	replaced := false
	for i := range entries {
		if entries[i].matches(entry.Dir, entry.Video, entry.Language) {
			entries[i] = entry
			replaced = true
			break
		}
	}
	if !replaced {
		entries = append(entries, entry)
	}
	return replaced, q.save(entries)
}

// List returns all entries in file order.
func (q *OffsetQueue) List() ([]OffsetEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

// Lookup returns the entry for (video path, lang).
func (q *OffsetQueue) Lookup(videoPath, lang string) (OffsetEntry, bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return OffsetEntry{}, false, err
	}
	dir, video := filepath.Dir(videoPath), filepath.Base(videoPath)
	for _, e := range entries {
		if e.matches(dir, video, lang) {
			return e, true, nil
		}
	}
	return OffsetEntry{}, false, nil
}

// Done removes the entry for (video path, lang). It reports whether one
// was found.
func (q *OffsetQueue) Done(videoPath, lang string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return false, err
	}
	dir, video := filepath.Dir(videoPath), filepath.Base(videoPath)
	kept := entries[:0]
	found := false
	for _, e := range entries {
		if e.matches(dir, video, lang) {
			found = true
			continue
		}
		kept = append(kept, e)
	}
	if !found {
		return false, nil
	}
	return true, q.save(kept)
}

func (q *OffsetQueue) load() ([]OffsetEntry, error) {
	data, err := os.ReadFile(q.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read offset queue: %w", err)
	}
	var entries []OffsetEntry
	var block []string
	flush := func() {
		if entry, ok := parseOffsetBlock(block); ok {
			entries = append(entries, entry)
		}
		block = block[:0]
	}
	for _, line := range strings.Split(strings.ReplaceAll(string(data), "\r\n", "\n"), "\n") {
		if strings.TrimSpace(line) == offsetSeparator {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()
	return entries, nil
}

func (q *OffsetQueue) save(entries []OffsetEntry) error {
	var b strings.Builder
	b.WriteString(offsetHeaderTitle + "\n")
	b.WriteString(offsetHeaderFormat + "\n")
	b.WriteString(offsetSeparator + "\n")
	for _, e := range entries {
		b.WriteString(strings.Join(e.lines(), "\n"))
		b.WriteString("\n" + offsetSeparator + "\n")
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return fmt.Errorf("ensure offset queue directory: %w", err)
	}
	if err := fileutil.WriteFileAtomic(q.path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("write offset queue: %w", err)
	}
	return nil
}

func parseOffsetBlock(block []string) (OffsetEntry, bool) {
	var lines []string
	for _, l := range block {
		if t := strings.TrimSpace(l); t != "" {
			lines = append(lines, t)
		}
	}
	if len(lines) < 3 || strings.HasPrefix(lines[0], offsetHeaderTitle) || strings.HasPrefix(lines[0], "Format:") {
		return OffsetEntry{}, false
	}
	entry := OffsetEntry{Dir: lines[1], Video: lines[2]}
	if m := titleLangPattern.FindStringSubmatchIndex(lines[0]); m != nil {
		entry.Title = strings.TrimSpace(lines[0][:m[0]])
		entry.Language = strings.ToLower(lines[0][m[2]:m[3]])
	} else {
		entry.Title = lines[0]
	}
	if len(lines) > 3 {
		entry.Subtitle = lines[3]
	}
	if len(lines) > 4 {
		entry.Offset, _ = strconv.ParseFloat(lines[4], 64)
	}
	if len(lines) > 5 {
		cue, text, _ := strings.Cut(lines[5], "  ")
		entry.CueTime = strings.TrimSpace(cue)
		entry.FirstLine = strings.TrimSpace(text)
	}
	if len(lines) > 6 {
		entry.Candidate = lines[6]
	}
	return entry, true
}
