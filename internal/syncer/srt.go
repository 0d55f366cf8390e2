package syncer

import (
	"bytes"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

var timestampPattern = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[,.](\d{3})`)

var cueTimingPattern = regexp.MustCompile(`^\s*(\d{1,2}:\d{2}:\d{2}[,.]\d{3})\s*-->\s*(\d{1,2}:\d{2}:\d{2}[,.]\d{3})`)

// Cue is the first timed line of a subtitle.
type Cue struct {
	Start time.Duration
	Text  string
}

// Decode returns subtitle bytes as UTF-8 text. A UTF-8 or UTF-16 byte order
// mark is honoured; content that is not valid UTF-8 is read as Windows-1252.
func Decode(data []byte) string {
	decoded, _, err := transform.Bytes(unicode.BOMOverride(transform.Nop), data)
	if err != nil {
		decoded = data
	}
	if utf8.Valid(decoded) {
		return strings.ReplaceAll(string(decoded), "\r\n", "\n")
	}
	latin, err := charmap.Windows1252.NewDecoder().Bytes(decoded)
	if err != nil {
		return strings.ToValidUTF8(string(decoded), "�")
	}
	return strings.ReplaceAll(string(latin), "\r\n", "\n")
}

// ParseTimestamp parses HH:MM:SS,mmm (a dot separator is accepted too).
func ParseTimestamp(value string) (time.Duration, error) {
	m := timestampPattern.FindStringSubmatch(strings.TrimSpace(value))
	if m == nil {
		return 0, fmt.Errorf("invalid subtitle timestamp %q", value)
	}
	h, _ := strconv.Atoi(m[1])
	mins, _ := strconv.Atoi(m[2])
	s, _ := strconv.Atoi(m[3])
	ms, _ := strconv.Atoi(m[4])
	return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute +
		time.Duration(s)*time.Second + time.Duration(ms)*time.Millisecond, nil
}

// FormatTimestamp renders d as HH:MM:SS,mmm.
func FormatTimestamp(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d,%03d", ms/3600000, (ms/60000)%60, (ms/1000)%60, ms%1000)
}

// FirstCue finds the first cue timing line and the first text line after it.
func FirstCue(content string) (Cue, bool) {
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		m := cueTimingPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		start, err := ParseTimestamp(m[1])
		if err != nil {
			continue
		}
		cue := Cue{Start: start}
		for _, next := range lines[i+1:] {
			text := strings.TrimSpace(next)
			if text == "" {
				break
			}
			cue.Text = text
			break
		}
		return cue, true
	}
	return Cue{}, false
}

// MeasureShift returns how far the first cue moved from before to after.
// ok is false when either file has no parsable cue.
func MeasureShift(before, after []byte) (shift time.Duration, ok bool) {
	b, ok := FirstCue(Decode(before))
	if !ok {
		return 0, false
	}
	a, ok := FirstCue(Decode(after))
	if !ok {
		return 0, false
	}
	return a.Start - b.Start, true
}

// MeasureOffset returns the absolute shift in seconds between the first cue
// of before and after. It is 0 when either file has no parsable cue.
func MeasureOffset(before, after []byte) float64 {
	shift, _ := MeasureShift(before, after)
	return math.Abs(shift.Seconds())
}

// Shift moves every cue by delta, clamping at zero. Lines other than cue
// timings are preserved.
func Shift(content string, delta time.Duration) string {
	var out bytes.Buffer
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		if cueTimingPattern.MatchString(line) {
			line = timestampPattern.ReplaceAllStringFunc(line, func(ts string) string {
				d, err := ParseTimestamp(ts)
				if err != nil {
					return ts
				}
				return FormatTimestamp(d + delta)
			})
		}
		out.WriteString(line)
		if i < len(lines)-1 {
			out.WriteByte('\n')
		}
	}
	return out.String()
}
