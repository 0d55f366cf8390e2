package syncer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"

	"subservient/internal/logging"
	"subservient/internal/services"
)

const (
	defaultAlignTimeout = 600 * time.Second
	outputTailBytes     = 2048
)

// Aligner produces an aligned copy of subtitle at output.
type Aligner interface {
	Align(ctx context.Context, video, subtitle, output string) error
}

// FFSubsync runs `ffsubsync video -i subtitle -o output`.
type FFSubsync struct {
	Binary  string
	Timeout time.Duration
	// Progress, when non-nil, receives a spinner showing output growth.
	Progress io.Writer
	Logger   *slog.Logger
}

// Align runs the tool. Success is exit status 0 and the output file
// existing; anything else, including the timeout, is an ErrExternalTool.
func (f FFSubsync) Align(ctx context.Context, video, subtitle, output string) error {
	binary := strings.TrimSpace(f.Binary)
	if binary == "" {
		binary = "ffsubsync"
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = defaultAlignTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var combined tailBuffer
	cmd := exec.CommandContext(runCtx, binary, video, "-i", subtitle, "-o", output)
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	var spin *spinner
	if f.Progress != nil {
		spin = startSpinner(f.Progress, output, "aligning "+baseName(subtitle))
	}
	started := time.Now()
	err := cmd.Run()
	if spin != nil {
		spin.stop()
	}

	logger := logging.NewComponentLogger(f.Logger, "ffsubsync")
	logger.Debug("ffsubsync finished",
		logging.String(logging.FieldEventType, "ffsubsync_exit"),
		logging.String("subtitle", subtitle),
		logging.Duration("elapsed", time.Since(started)),
		logging.Bool("error", err != nil),
	)

	if runCtx.Err() != nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return services.Wrap(services.ErrTimeout, "syncer", "ffsubsync",
			fmt.Sprintf("timed out after %s", timeout), services.ErrExternalTool)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "syncer", "ffsubsync",
			strings.TrimSpace(combined.String()), err)
	}
	if _, statErr := os.Stat(output); statErr != nil {
		return services.Wrap(services.ErrExternalTool, "syncer", "ffsubsync", "no output file produced", statErr)
	}
	return nil
}

// tailBuffer keeps the last outputTailBytes written to it.
type tailBuffer struct {
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	n := len(p)
	t.buf.Write(p)
	if extra := t.buf.Len() - outputTailBytes; extra > 0 {
		t.buf.Next(extra)
	}
	return n, nil
}

func (t *tailBuffer) String() string {
	return t.buf.String()
}

func baseName(path string) string {
	if idx := strings.LastIndexAny(path, `/\`); idx >= 0 {
		return path[idx+1:]
	}
	return path
}
