package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/schollz/progressbar/v3"

	"github.com/jackzampolin/scanline/internal/analytics"
)

var (
	okColor   = color.New(color.FgGreen)
	failColor = color.New(color.FgRed)
	warnColor = color.New(color.FgYellow)
	keyColor  = color.New(color.FgCyan)
)

func printOK(format string, args ...any) {
	okColor.Fprintf(os.Stderr, "✓ %s\n", fmt.Sprintf(format, args...))
}

func printFail(format string, args ...any) {
	failColor.Fprintf(os.Stderr, "✗ %s\n", fmt.Sprintf(format, args...))
}

func printWarn(format string, args ...any) {
	warnColor.Fprintf(os.Stderr, "⚠ %s\n", fmt.Sprintf(format, args...))
}

func printField(key string, value any) {
	keyColor.Fprintf(os.Stderr, "  %-20s", key+":")
	fmt.Fprintf(os.Stderr, " %v\n", value)
}

// newPageBar renders page progress on stderr.
func newPageBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(
		total,
		progressbar.OptionSetWidth(40),
		progressbar.OptionSetDescription(description),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "│",
			BarEnd:        "│",
		}),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowCount(),
		progressbar.OptionSetItsString("pages"),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprint(os.Stderr, "\n")
		}),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// progressSink advances the bar on each successful attempt, which ends a page.
type progressSink struct {
	bar *progressbar.ProgressBar
}

func (s progressSink) Emit(_ context.Context, e analytics.Event) error {
	if e.Attempt != nil && e.Attempt.Success {
		_ = s.bar.Add(1)
	}
	return nil
}
