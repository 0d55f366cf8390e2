package review

import (
	"path/filepath"
	"testing"
	"time"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	q := NewQueue(filepath.Join(t.TempDir(), "review_queue.toml"))
	q.now = func() time.Time { return time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC) }
	return q
}

func TestQueueEnqueueIsIdempotent(t *testing.T) {
	q := newTestQueue(t)
	entry := Entry{Video: "/lib/Heat.mkv", Language: "en", Query: "Heat 1995", Reason: ReasonExhausted}

	for i := 0; i < 3; i++ {
		added, err := q.Enqueue(entry)
		if err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
		if added != (i == 0) {
			t.Fatalf("pass %d: added = %v", i, added)
		}
	}
	entries, err := q.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one entry, got %d", len(entries))
	}
	if !entries[0].QueuedAt.Equal(time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("queued_at = %v", entries[0].QueuedAt)
	}
}

func TestQueueKeepsArrivalOrderAndRefreshesInPlace(t *testing.T) {
	q := newTestQueue(t)
	for _, e := range []Entry{
		{Video: "/lib/a.mkv", Language: "en", Query: "a", Reason: ReasonExhausted},
		{Video: "/lib/b.mkv", Language: "en", Query: "b", Reason: ReasonExhausted},
		{Video: "/lib/a.mkv", Language: "nl", Query: "a", Reason: ReasonLimitReached},
	} {
		if _, err := q.Enqueue(e); err != nil {
			t.Fatalf("Enqueue: %v", err)
		}
	}
	if _, err := q.Enqueue(Entry{Video: "/lib/a.mkv", Language: "EN", Query: "a new", Reason: ReasonLimitReached}); err != nil {
		t.Fatalf("Enqueue refresh: %v", err)
	}
	entries, _ := q.List()
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].Query != "a new" || entries[0].Reason != ReasonLimitReached {
		t.Fatalf("entry not refreshed in place: %+v", entries[0])
	}
	if entries[1].Video != "/lib/b.mkv" {
		t.Fatalf("order changed: %+v", entries)
	}

	ok, err := q.Contains("/lib/a.mkv", "nl")
	if err != nil || !ok {
		t.Fatalf("Contains = %v, %v", ok, err)
	}
	removed, err := q.Remove("/lib/b.mkv", "en")
	if err != nil || !removed {
		t.Fatalf("Remove = %v, %v", removed, err)
	}
	removed, err = q.RemoveVideo("/lib/a.mkv")
	if err != nil || !removed {
		t.Fatalf("RemoveVideo = %v, %v", removed, err)
	}
	entries, _ = q.List()
	if len(entries) != 0 {
		t.Fatalf("expected empty queue, got %+v", entries)
	}
	removed, err = q.Remove("/lib/b.mkv", "en")
	if err != nil || removed {
		t.Fatalf("second Remove = %v, %v", removed, err)
	}
}
