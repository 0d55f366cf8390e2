package review

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pelletier/go-toml/v2"

	"subservient/internal/fileutil"
	"subservient/internal/services"
)

// Reason records why a pair was handed to the operator.
type Reason string

const (
	// ReasonExhausted means every rung of the search ladder came up empty.
	ReasonExhausted Reason = "exhausted"
	// ReasonLimitReached means the pair used up max_search_results.
	ReasonLimitReached Reason = "limit_reached"
)

// Entry is one (query, video, language) waiting for a decision.
type Entry struct {
	Video    string `toml:"video"`
	Language string `toml:"language"`
	Query    string `toml:"query"`
	Reason   Reason `toml:"reason"`
	Attempts int    `toml:"attempts"`
	// Limit is max_search_results when the pair was queued. A later run with
	// a higher limit takes the pair back.
	Limit    int       `toml:"limit"`
	QueuedAt time.Time `toml:"queued_at"`
}

func (e Entry) sameAs(video, lang string) bool {
	return e.Video == video && strings.EqualFold(e.Language, lang)
}

type queueFile struct {
	Entries []Entry `toml:"entry"`
}

// Queue is the persisted manual review queue, kept in arrival order.
type Queue struct {
	path string
	now  func() time.Time
	mu   sync.Mutex
}

// NewQueue returns a queue stored at path. The file is created on first write.
func NewQueue(path string) *Queue {
	return &Queue{path: path, now: time.Now}
}

func (q *Queue) Path() string {
	return q.path
}

// Enqueue appends entry unless the pair is already queued. A queued pair
// keeps its place; only its query, reason and attempt count are refreshed.
// It reports whether a new entry was added.
func (q *Queue) Enqueue(entry Entry) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return false, err
	}
	for i := range entries {
		if entries[i].sameAs(entry.Video, entry.Language) {
			if entries[i].Query == entry.Query && entries[i].Reason == entry.Reason &&
				entries[i].Attempts == entry.Attempts && entries[i].Limit == entry.Limit {
				return false, nil
			}
			entries[i].Query = entry.Query
			entries[i].Reason = entry.Reason
			entries[i].Attempts = entry.Attempts
			entries[i].Limit = entry.Limit
			return false, q.save(entries)
		}
	}
	if entry.QueuedAt.IsZero() {
		entry.QueuedAt = q.now().UTC().Truncate(time.Second)
	}
	entry.Language = strings.ToLower(entry.Language)
	entries = append(entries, entry)
	return true, q.save(entries)
}

// Remove drops the entry for (video, lang) and reports whether it existed.
func (q *Queue) Remove(video, lang string) (bool, error) {
	return q.removeWhere(func(e Entry) bool { return e.sameAs(video, lang) })
}

// RemoveVideo drops every entry of video, whatever the language.
func (q *Queue) RemoveVideo(video string) (bool, error) {
	return q.removeWhere(func(e Entry) bool { return e.Video == video })
}

// Contains reports whether (video, lang) is queued.
func (q *Queue) Contains(video, lang string) (bool, error) {
	_, ok, err := q.Lookup(video, lang)
	return ok, err
}

// Lookup returns the queued entry for (video, lang).
func (q *Queue) Lookup(video, lang string) (Entry, bool, error) {
	entries, err := q.List()
	if err != nil {
		return Entry{}, false, err
	}
	for _, e := range entries {
		if e.sameAs(video, lang) {
			return e, true, nil
		}
	}
	return Entry{}, false, nil
}

// List returns the queue in arrival order.
func (q *Queue) List() ([]Entry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load()
}

func (q *Queue) removeWhere(match func(Entry) bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	entries, err := q.load()
	if err != nil {
		return false, err
	}
	kept := entries[:0]
	for _, e := range entries {
		if !match(e) {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return false, nil
	}
	return true, q.save(kept)
}

func (q *Queue) load() ([]Entry, error) {
	data, err := os.ReadFile(q.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, services.Wrap(services.ErrPermission, "review", "read queue", q.path, err)
	}
	var doc queueFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, services.Wrap(services.ErrValidation, "review", "parse queue", q.path, err)
	}
	return doc.Entries, nil
}

func (q *Queue) save(entries []Entry) error {
	data, err := toml.Marshal(queueFile{Entries: entries})
	if err != nil {
		return services.Wrap(services.ErrValidation, "review", "encode queue", q.path, err)
	}
	if err := os.MkdirAll(filepath.Dir(q.path), 0o755); err != nil {
		return services.Wrap(services.ErrPermission, "review", "create state dir", filepath.Dir(q.path), err)
	}
	if err := fileutil.WriteFileAtomic(q.path, data, 0o644); err != nil {
		return services.Wrap(services.ErrPermission, "review", "write queue", q.path, err)
	}
	return nil
}
