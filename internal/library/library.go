package library

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"subservient/internal/ledger"
	"subservient/internal/logging"
	"subservient/internal/services"
)

// Video is one media file to resolve subtitles for.
type Video struct {
	Path string
	Size int64
	// Episode is the ledger.EpisodeKey of the name in series mode and empty
	// outside it.
	Episode string
}

// Name is the file name of the video.
func (v Video) Name() string {
	return filepath.Base(v.Path)
}

// Pair returns the ledger pair of this video for lang.
func (v Video) Pair(lang string) ledger.Pair {
	return ledger.Pair{Video: v.Path, Language: strings.ToLower(lang), Episode: v.Episode}
}

// Options controls discovery.
type Options struct {
	SeriesMode       bool
	ExtrasFolderName string
	SkipDirs         []string
	Extensions       []string
	Logger           *slog.Logger
}

// Discover walks roots and returns the videos found, ordered by path.
// A missing root is an error; unreadable subdirectories are logged and
// skipped.
func Discover(ctx context.Context, roots []string, opts Options) ([]Video, error) {
	logger := logging.NewComponentLogger(opts.Logger, "library")
	exts := make(map[string]struct{}, len(opts.Extensions))
	for _, ext := range opts.Extensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts[ext] = struct{}{}
	}
	skip := make(map[string]struct{}, len(opts.SkipDirs)+1)
	for _, name := range append([]string{opts.ExtrasFolderName}, opts.SkipDirs...) {
		if name = strings.ToLower(strings.TrimSpace(name)); name != "" {
			skip[name] = struct{}{}
		}
	}

	byDir := make(map[string][]Video)
	for _, root := range roots {
		info, err := os.Stat(root)
		if err != nil {
			return nil, services.Wrap(services.ErrConfiguration, "library", "open root", root, err)
		}
		if !info.IsDir() {
			return nil, services.Wrap(services.ErrConfiguration, "library", "open root", root+" is not a directory", nil)
		}
		err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if err != nil {
				if path == root {
					return err
				}
				logging.WarnWithContext(logger, "directory not readable", "library_walk_failed",
					logging.String("path", path),
					logging.String(logging.FieldErrorHint, "check permissions on the library folder"),
					logging.String(logging.FieldImpact, "videos below this folder are ignored"),
					logging.Error(err),
				)
				if d != nil && d.IsDir() {
					return fs.SkipDir
				}
				return nil
			}
			if d.IsDir() {
				if path != root && prune(d.Name(), skip) {
					return fs.SkipDir
				}
				return nil
			}
			if !d.Type().IsRegular() {
				return nil
			}
			if _, ok := exts[strings.ToLower(filepath.Ext(d.Name()))]; !ok {
				return nil
			}
			fi, err := d.Info()
			if err != nil {
				return nil
			}
			dir := filepath.Dir(path)
			byDir[dir] = append(byDir[dir], Video{Path: path, Size: fi.Size()})
			return nil
		})
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil, err
			}
			return nil, services.Wrap(services.ErrPermission, "library", "walk", root, err)
		}
	}

	var videos []Video
	for _, group := range byDir {
		videos = append(videos, selectVideos(group, opts.SeriesMode, logger)...)
	}
	sort.Slice(videos, func(i, j int) bool { return videos[i].Path < videos[j].Path })
	return videos, nil
}

func prune(name string, skip map[string]struct{}) bool {
	if strings.HasPrefix(name, ".") {
		return true
	}
	_, ok := skip[strings.ToLower(name)]
	return ok
}

func selectVideos(group []Video, seriesMode bool, logger *slog.Logger) []Video {
	if !seriesMode {
		largest := group[0]
		for _, v := range group[1:] {
			if v.Size > largest.Size || (v.Size == largest.Size && v.Path < largest.Path) {
				largest = v
			}
		}
		return []Video{largest}
	}
	out := make([]Video, 0, len(group))
	for _, v := range group {
		v.Episode = ledger.EpisodeKey(v.Name())
		if ledger.IsUnknownEpisode(v.Episode) {
			logging.WarnWithContext(logger, "episode code missing from video name", "episode_unknown",
				logging.String(logging.FieldVideo, v.Path),
				logging.String(logging.FieldErrorHint, "rename the file to include SxxExx"),
				logging.String(logging.FieldImpact, "candidates are stored under "+v.Episode),
			)
		}
		out = append(out, v)
	}
	return out
}

// FromPaths builds videos from explicit file paths given on the command
// line, applying the same episode rules as Discover.
func FromPaths(paths []string, seriesMode bool, logger *slog.Logger) ([]Video, error) {
	logger = logging.NewComponentLogger(logger, "library")
	var videos []Video
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "library", "resolve path", p, err)
		}
		info, err := os.Stat(abs)
		if err != nil {
			return nil, services.Wrap(services.ErrNotFound, "library", "stat video", abs, err)
		}
		if info.IsDir() {
			return nil, services.Wrap(services.ErrValidation, "library", "stat video", abs+" is a directory", nil)
		}
		v := Video{Path: abs, Size: info.Size()}
		if seriesMode {
			v = selectVideos([]Video{v}, true, logger)[0]
		}
		videos = append(videos, v)
	}
	return videos, nil
}
