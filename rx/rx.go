package rx

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/dustin/go-humanize"
)

// Reporter gets notified about the progress of the channel sweep. The notifications are called from the
// consumer goroutine and must not block.
type Reporter interface {
	WindowFinalized(window Window)
	ChannelSwitched(channel int)
	SwitchFailed(channel int, err error)
	SweepCompleted(summary Summary)
}

type NullReporter struct{}

func (NullReporter) WindowFinalized(Window)  {}
func (NullReporter) ChannelSwitched(int)     {}
func (NullReporter) SwitchFailed(int, error) {}
func (NullReporter) SweepCompleted(Summary)  {}

// Reporters distributes all notifications to a list of reporters.
type Reporters []Reporter

func (r Reporters) WindowFinalized(window Window) {
	for _, reporter := range r {
		reporter.WindowFinalized(window)
	}
}

func (r Reporters) ChannelSwitched(channel int) {
	for _, reporter := range r {
		reporter.ChannelSwitched(channel)
	}
}

func (r Reporters) SwitchFailed(channel int, err error) {
	for _, reporter := range r {
		reporter.SwitchFailed(channel, err)
	}
}

func (r Reporters) SweepCompleted(summary Summary) {
	for _, reporter := range r {
		reporter.SweepCompleted(summary)
	}
}

type TextReporter struct {
	out     io.Writer
	windows bool
}

// NewTextReporter returns a reporter that writes one line per sweep to out. If windows is true,
// it also writes one line per finalized dwell window.
func NewTextReporter(out io.Writer, windows bool) *TextReporter {
	if out == nil {
		out = os.Stdout
	}
	return &TextReporter{out: out, windows: windows}
}

func (r *TextReporter) WindowFinalized(w Window) {
	if !r.windows {
		return
	}
	fmt.Fprintf(r.out, "channel %2d: %d frames, %s, %d strong, %d unique, raw %.1f, smoothed %.1f\n",
		w.Channel, w.Frames, humanize.Bytes(uint64(w.Bytes)), w.StrongFrames, w.Unique, w.Raw, w.Smoothed)
}

func (r *TextReporter) ChannelSwitched(int) {}

func (r *TextReporter) SwitchFailed(channel int, err error) {
	fmt.Fprintf(r.out, "cannot switch to channel %d: %v\n", channel, err)
}

func (r *TextReporter) SweepCompleted(s Summary) {
	fmt.Fprintf(r.out, "sweep %d: activity %.0f, busiest %s", s.Sweeps, s.GlobalActivity, FormatRanking(s.Top))
	if s.HasQuietest {
		fmt.Fprintf(r.out, ", quietest %d (%.0f)", s.Quietest.Channel, s.Quietest.Score)
	}
	fmt.Fprintln(r.out)
}

// FormatRanking formats a ranking as a compact list like "6 (81), 1 (40), 11 (12)".
func FormatRanking(ranking []Ranked) string {
	if len(ranking) == 0 {
		return "-"
	}
	parts := make([]string, len(ranking))
	for i, r := range ranking {
		parts[i] = fmt.Sprintf("%d (%.0f)", r.Channel, r.Score)
	}
	return strings.Join(parts, ", ")
}
