package syncer

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"
)

const spinnerInterval = 200 * time.Millisecond

// spinner renders an indeterminate bar while a subprocess runs. Its
// goroutine only stats the output file; stop joins it before returning.
type spinner struct {
	bar  *progressbar.ProgressBar
	done chan struct{}
	wg   sync.WaitGroup
}

func startSpinner(w io.Writer, watchPath, description string) *spinner {
	bar := progressbar.NewOptions64(-1,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionShowBytes(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(spinnerInterval),
	)
	s := &spinner{bar: bar, done: make(chan struct{})}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(spinnerInterval)
		defer ticker.Stop()
		for {
			select {
			case <-s.done:
				return
			case <-ticker.C:
				var size int64
				if info, err := os.Stat(watchPath); err == nil {
					size = info.Size()
				}
				_ = s.bar.Set64(size)
			}
		}
	}()
	return s
}

func (s *spinner) stop() {
	close(s.done)
	s.wg.Wait()
	_ = s.bar.Finish()
}
