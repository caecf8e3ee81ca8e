package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/Sriram-PR/media-scraper/pkg/pipeline"
	"github.com/Sriram-PR/media-scraper/pkg/utils"
)

// consoleObserver prints extractor lines and drives a progress bar during downloads
type consoleObserver struct {
	mu  sync.Mutex
	out io.Writer
	bar *progressbar.ProgressBar
}

func newConsoleObserver(out io.Writer) *consoleObserver {
	return &consoleObserver{out: out}
}

func (c *consoleObserver) LogLine(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar != nil {
		// Progress already has the per-file counts
		return
	}
	fmt.Fprintln(c.out, color.WhiteString(text))
}

func (c *consoleObserver) QueueLengthChanged(int) {}

func (c *consoleObserver) DownloadProgress(completed, total int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar == nil {
		c.bar = progressbar.NewOptions64(
			int64(total),
			progressbar.OptionSetWriter(c.out),
			progressbar.OptionSetDescription("Downloading"),
			progressbar.OptionSetItsString("file"),
			progressbar.OptionShowIts(),
			progressbar.OptionShowCount(),
			progressbar.OptionSetTheme(progressbar.Theme{
				Saucer:        "=",
				SaucerHead:    ">",
				SaucerPadding: " ",
				BarStart:      "[",
				BarEnd:        "]",
			}),
		)
	}
	_ = c.bar.Set(completed)
}

func (c *consoleObserver) BatchReset() {
	c.finish()
}

// finish closes the current bar, if any
func (c *consoleObserver) finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.bar == nil {
		return
	}
	_ = c.bar.Finish()
	fmt.Fprintln(c.out)
	c.bar = nil
}

// statusLine renders one submission as an OK/WARN/ERR line
func statusLine(s pipeline.Submission) string {
	switch {
	case errors.Is(s.Err, utils.ErrAlreadyAdded):
		return fmt.Sprintf("[%s] %s: %s", color.HiYellowString("WARN"), s.Input, "link already added")
	case errors.Is(s.Err, utils.ErrNotRecognized):
		return fmt.Sprintf("[%s] %s: %s", color.HiYellowString("WARN"), s.Input, "not a supported link")
	case s.Err != nil:
		label := "failed"
		switch {
		case errors.Is(s.Err, utils.ErrStructuralParse):
			label = "page layout not understood"
		case errors.Is(s.Err, utils.ErrFetchFailure):
			label = "could not fetch"
		}
		return fmt.Sprintf("[%s] %s: %s (%s)", color.HiRedString("ERR"), s.Input, label, utils.CategorizeError(s.Err))
	}
	return fmt.Sprintf("[%s] %s: %s, %d media", color.HiGreenString("OK"), s.Input, s.Result.Extractor, len(s.Result.Links))
}
