package progress

import (
	"fmt"
	"io"
	"os"

	"github.com/schollz/progressbar/v3"

	"github.com/ziadkadry99/foliocache/internal/worker"
)

// Reporter shows prefetch progress. It implements worker.PrefetchObserver.
type Reporter interface {
	worker.PrefetchObserver
}

// NewReporter returns a TerminalReporter if running in an interactive terminal,
// or a CIReporter if the CI environment variable is set.
func NewReporter() Reporter {
	if os.Getenv("CI") != "" || os.Getenv("GITHUB_ACTIONS") != "" {
		return &CIReporter{out: os.Stderr}
	}
	return &TerminalReporter{out: os.Stderr}
}

// TerminalReporter displays a progress bar in the terminal.
type TerminalReporter struct {
	out io.Writer
	bar *progressbar.ProgressBar
}

func (r *TerminalReporter) PrefetchStarted(report worker.PrefetchReport) {
	r.bar = progressbar.NewOptions(report.Requested,
		progressbar.OptionSetWriter(r.out),
		progressbar.OptionSetDescription("Prefetching images"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)
}

func (r *TerminalReporter) PrefetchProgress(report worker.PrefetchReport, url string, outcome worker.Outcome) {
	if r.bar != nil {
		r.bar.Describe(fmt.Sprintf("%-8s %s", outcome, url))
		_ = r.bar.Set(report.Processed())
	}
}

func (r *TerminalReporter) PrefetchFinished(worker.PrefetchReport) {
	if r.bar != nil {
		_ = r.bar.Finish()
	}
}

// CIReporter prints line-by-line progress suitable for CI logs.
type CIReporter struct {
	out io.Writer
}

// NewCIReporter creates a CIReporter writing to out.
func NewCIReporter(out io.Writer) *CIReporter {
	return &CIReporter{out: out}
}

func (r *CIReporter) PrefetchStarted(report worker.PrefetchReport) {
	fmt.Fprintf(r.out, "Prefetching %d images into %s\n", report.Requested, report.CacheName)
}

func (r *CIReporter) PrefetchProgress(report worker.PrefetchReport, url string, outcome worker.Outcome) {
	fmt.Fprintf(r.out, "[%d/%d] %s %s\n", report.Processed(), report.Requested, outcome, url)
}

func (r *CIReporter) PrefetchFinished(report worker.PrefetchReport) {
	fmt.Fprintf(r.out, "Prefetch complete: %d stored, %d cached, %d rejected, %d failed\n",
		report.Stored, report.Hits, report.Rejected, report.Failed)
}
