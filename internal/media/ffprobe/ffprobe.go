package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	"subservient/internal/services"
)

// Result is the subset of ffprobe output the pipeline reads.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream is one track of the container.
type Stream struct {
	Index     int               `json:"index"`
	CodecName string            `json:"codec_name"`
	CodecType string            `json:"codec_type"`
	Channels  int               `json:"channels"`
	Tags      map[string]string `json:"tags"`
}

// Language returns the stream's language tag, lower-cased, or "".
func (s Stream) Language() string {
	for key, value := range s.Tags {
		if strings.EqualFold(key, "language") {
			return strings.ToLower(strings.TrimSpace(value))
		}
	}
	return ""
}

// Format is the container-level part of the output.
type Format struct {
	Filename   string `json:"filename"`
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
}

// Parse decodes ffprobe JSON.
func Parse(data []byte) (Result, error) {
	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "parse", "", err)
	}
	return result, nil
}

// Prober runs ffprobe.
type Prober struct {
	Binary string
}

// Inspect runs ffprobe against path.
func (p Prober) Inspect(ctx context.Context, path string) (Result, error) {
	binary := strings.TrimSpace(p.Binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "ffprobe", "inspect", "empty path", nil)
	}
	cmd := exec.CommandContext(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	output, err := cmd.CombinedOutput()
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "ffprobe", "inspect", path,
			fmt.Errorf("%w: %s", err, strings.TrimSpace(string(output))))
	}
	return Parse(output)
}

// HasAudio reports whether the container at path has at least one audio track.
func (p Prober) HasAudio(ctx context.Context, path string) (bool, error) {
	result, err := p.Inspect(ctx, path)
	if err != nil {
		return false, err
	}
	return result.AudioStreamCount() > 0, nil
}

// AudioStreamCount returns the number of audio tracks.
func (r Result) AudioStreamCount() int {
	return len(r.streamsOfType("audio"))
}

// SubtitleStreams returns the embedded subtitle tracks in container order.
func (r Result) SubtitleStreams() []Stream {
	return r.streamsOfType("subtitle")
}

// SubtitleLanguages returns the distinct languages of the embedded subtitle
// tracks, in first-seen order. Untagged tracks are left out.
func (r Result) SubtitleLanguages() []string {
	seen := make(map[string]struct{})
	var langs []string
	for _, s := range r.SubtitleStreams() {
		lang := s.Language()
		if lang == "" {
			continue
		}
		if _, ok := seen[lang]; ok {
			continue
		}
		seen[lang] = struct{}{}
		langs = append(langs, lang)
	}
	return langs
}

func (r Result) streamsOfType(kind string) []Stream {
	var out []Stream
	for _, s := range r.Streams {
		if strings.EqualFold(s.CodecType, kind) {
			out = append(out, s)
		}
	}
	return out
}
