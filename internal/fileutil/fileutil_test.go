package fileutil

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteFileAtomicReplacesContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.txt")
	if err := WriteFileAtomic(path, []byte("one"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two" {
		t.Fatalf("content mismatch: got %q", got)
	}
	assertNoTemps(t, dir)
}

func TestWriteReaderNoClobberRefusesExisting(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Movie.en.srt")
	if err := os.WriteFile(path, []byte("accepted"), 0o644); err != nil {
		t.Fatal(err)
	}
	err := WriteReaderNoClobber(path, strings.NewReader("intruder"), 0o644)
	if !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "accepted" {
		t.Fatalf("existing file was overwritten: %q", got)
	}
	assertNoTemps(t, dir)
}

func TestRenameNoClobber(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a")
	dst := filepath.Join(dir, "b")
	if err := os.WriteFile(src, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RenameNoClobber(src, dst); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := os.Stat(src); !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("expected source gone, got %v", err)
	}
	if err := os.WriteFile(src, []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := RenameNoClobber(src, dst); !errors.Is(err, fs.ErrExist) {
		t.Fatalf("expected fs.ErrExist, got %v", err)
	}
	if _, err := os.Stat(src); err != nil {
		t.Fatalf("expected source to remain after refused rename: %v", err)
	}
}

func TestSweepStaleTemps(t *testing.T) {
	dir := t.TempDir()
	stale := filepath.Join(dir, TempPrefix+"123"+TempSuffix)
	fresh := filepath.Join(dir, TempPrefix+"456"+TempSuffix)
	keep := filepath.Join(dir, "5.en.number1.srt")
	for _, p := range []string{stale, fresh, keep} {
		if err := os.WriteFile(p, []byte("x"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	old := time.Now().Add(-2 * time.Hour)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(keep, old, old); err != nil {
		t.Fatal(err)
	}
	removed, err := SweepStaleTemps(dir, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	if len(removed) != 1 || removed[0] != stale {
		t.Fatalf("unexpected removals: %v", removed)
	}
	for _, p := range []string{fresh, keep} {
		if _, err := os.Stat(p); err != nil {
			t.Fatalf("expected %s kept: %v", p, err)
		}
	}
}

func TestRemoveIfExistsMissing(t *testing.T) {
	if err := RemoveIfExists(filepath.Join(t.TempDir(), "missing")); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func assertNoTemps(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if IsTemp(e.Name()) {
			t.Fatalf("temp file left behind: %s", e.Name())
		}
	}
}

func TestTempPathForKeepsExtension(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "Movie.en.srt")
	name, err := TempPathFor(target, ".srt")
	if err != nil {
		t.Fatal(err)
	}
	if filepath.Dir(name) != dir || filepath.Ext(name) != ".srt" {
		t.Fatalf("unexpected temp name %s", name)
	}
	if !IsTemp(name) {
		t.Fatalf("IsTemp(%s) = false", name)
	}
	if _, err := os.Stat(name); !os.IsNotExist(err) {
		t.Fatalf("temp name should not exist yet: %v", err)
	}
}
