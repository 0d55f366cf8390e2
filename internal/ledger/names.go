package ledger

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// State is the lifecycle position of a candidate file.
type State int

const (
	// StateUntested is a downloaded candidate that has not been aligned yet.
	StateUntested State = iota
	// StateDrift is a candidate rejected for an excessive offset.
	StateDrift
	// StateFailed is a candidate the alignment tool could not process.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUntested:
		return "untested"
	case StateDrift:
		return "drift"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Judged reports whether the state marks a candidate that must not be
// tested or downloaded again.
func (s State) Judged() bool {
	return s == StateDrift || s == StateFailed
}

const (
	// UnknownEpisode prefixes the scope of series-mode candidates whose
	// video has no SxxExx code in its name. EpisodeKey appends a per-video
	// suffix; a bare UNKNOWN is still read.
	UnknownEpisode = "UNKNOWN"

	subtitleExt = ".srt"
	driftMarker = "DRIFT"
	failMarker  = "FAILED"
)

// Entry is one candidate as encoded in its file name.
type Entry struct {
	Popularity int64
	Language   string
	Slot       int
	Episode    string
	State      State
}

var (
	entryPattern   = regexp.MustCompile(`^(\d+)\.([a-z]{2})\.number(\d+)(?:\.(S\d{2}E\d{2}|UNKNOWN(?:-[0-9a-f]{8})?))?(?:\.(DRIFT|FAILED))?\.srt$`)
	episodePattern = regexp.MustCompile(`[sS](\d{1,2})[eE](\d{1,2})`)
)

// FileName builds the on-disk name of the entry.
func (e Entry) FileName() string {
	var b strings.Builder
	b.WriteString(strconv.FormatInt(e.Popularity, 10))
	b.WriteByte('.')
	b.WriteString(e.Language)
	b.WriteString(".number")
	b.WriteString(strconv.Itoa(e.Slot))
	if e.Episode != "" {
		b.WriteByte('.')
		b.WriteString(e.Episode)
	}
	switch e.State {
	case StateDrift:
		b.WriteString("." + driftMarker)
	case StateFailed:
		b.WriteString("." + failMarker)
	}
	b.WriteString(subtitleExt)
	return b.String()
}

// WithState returns a copy of the entry in the given state.
func (e Entry) WithState(s State) Entry {
	e.State = s
	return e
}

func (e Entry) String() string {
	return e.FileName()
}

// Parse decodes a candidate file name. Names that are not candidates,
// including canonical subtitles and temp files, report false.
func Parse(name string) (Entry, bool) {
	m := entryPattern.FindStringSubmatch(name)
	if m == nil {
		return Entry{}, false
	}
	popularity, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Entry{}, false
	}
	slot, err := strconv.Atoi(m[3])
	if err != nil || slot < 1 {
		return Entry{}, false
	}
	entry := Entry{
		Popularity: popularity,
		Language:   m[2],
		Slot:       slot,
		Episode:    m[4],
		State:      StateUntested,
	}
	switch m[5] {
	case driftMarker:
		entry.State = StateDrift
	case failMarker:
		entry.State = StateFailed
	}
	return entry, true
}

// CanonicalName returns the accepted subtitle name for a video file:
// the video name without its extension plus ".{lang}.srt".
func CanonicalName(videoPath, lang string) string {
	base := filepath.Base(videoPath)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return base + "." + lang + subtitleExt
}

// EpisodeCode extracts an SxxExx code from a file name, normalized to two
// digits each ("s1e2" -> "S01E02"). It returns "" when none is present.
func EpisodeCode(name string) string {
	m := episodePattern.FindStringSubmatch(name)
	if m == nil {
		return ""
	}
	season, _ := strconv.Atoi(m[1])
	episode, _ := strconv.Atoi(m[2])
	return fmt.Sprintf("S%02dE%02d", season, episode)
}

// EpisodeKey returns the series-mode scope of a video: its SxxExx code, or
// UNKNOWN plus a short name-derived key when the name carries none, so
// unnumbered videos sharing a folder never share candidates.
func EpisodeKey(videoName string) string {
	base := filepath.Base(videoName)
	if code := EpisodeCode(base); code != "" {
		return code
	}
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return UnknownEpisode + "-" + uuid.NewSHA1(uuid.NameSpaceOID, []byte(base)).String()[:8]
}

// IsUnknownEpisode reports whether an episode scope belongs to a video
// without an SxxExx code.
func IsUnknownEpisode(episode string) bool {
	return episode == UnknownEpisode || strings.HasPrefix(episode, UnknownEpisode+"-")
}
