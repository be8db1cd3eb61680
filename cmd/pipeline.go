package cmd

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ftl/bandwatch/config"
	"github.com/ftl/bandwatch/history"
	"github.com/ftl/bandwatch/rx"
	"github.com/ftl/bandwatch/scope"
	"github.com/ftl/bandwatch/telnet"
	"github.com/ftl/bandwatch/trace"
)

// pipeline wires the monitor with the presenters selected on the command line.
type pipeline struct {
	monitor  *rx.Monitor
	out      io.Writer
	interval time.Duration

	stops []func()
}

func newPipeline(cfg config.Config) (*pipeline, error) {
	result := &pipeline{
		out:      os.Stdout,
		interval: rootFlags.status,
	}
	reporters := rx.Reporters{rx.NewTextReporter(result.out, rootFlags.windows)}

	if rootFlags.telnetPort > 0 {
		feed, err := telnet.NewServer(fmt.Sprintf(":%d", rootFlags.telnetPort), cfg.Station, formatVersion())
		if err != nil {
			result.stop()
			return nil, fmt.Errorf("cannot start telnet feed: %w", err)
		}
		feed.SetBusyThreshold(cfg.Telnet.BusyThreshold)
		feed.SetSilencePeriod(cfg.Telnet.SilencePeriod)
		reporters = append(reporters, feed)
		result.stops = append(result.stops, feed.Stop)
	}

	if rootFlags.scope {
		scopeServer := scope.NewScopeServer(rootFlags.scopeAddress)
		err := scopeServer.Start()
		if err != nil {
			result.stop()
			return nil, fmt.Errorf("cannot start scope server: %w", err)
		}
		log.Printf("scope server listening on %s, stream %s", scopeServer.Addr(), scopeServer.Stream())
		reporters = append(reporters, scopeServer)
		result.stops = append(result.stops, scopeServer.Stop)
	}

	if rootFlags.record != "" {
		store, err := history.Open(rootFlags.record)
		if err != nil {
			result.stop()
			return nil, err
		}
		recorder := history.NewRecorder(store)
		log.Printf("recording run %s into %s", recorder.Run(), rootFlags.record)
		reporters = append(reporters, recorder)
		result.stops = append(result.stops, func() {
			recorder.Close()
			if dropped := recorder.Dropped(); dropped > 0 {
				log.Printf("%d windows were not recorded", dropped)
			}
			store.Close()
		})
	}

	result.monitor = rx.NewMonitor(cfg.Settings(), rx.UptimeClock, reporters)

	tracer, err := trace.Parse(rx.TraceWindow, rx.WindowTraceColumns, rootFlags.traceTo)
	if err != nil {
		result.stop()
		return nil, err
	}
	result.monitor.SetTracer(tracer)

	return result, nil
}

// run the sweep until the context is canceled or the driver is done. startDriver is called after
// the first channel was tuned.
func (p *pipeline) run(ctx context.Context, tuner rx.Tuner, startDriver func(), driverDone <-chan struct{}) {
	p.monitor.Start(tuner)
	if startDriver != nil {
		startDriver()
	}

	var statusTick <-chan time.Time
	if p.interval > 0 {
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		statusTick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			p.shutdown()
			return
		case <-driverDone:
			p.shutdown()
			return
		case <-statusTick:
			printStatus(p.out, p.monitor.Summary())
		}
	}
}

func (p *pipeline) shutdown() {
	summary := p.monitor.Summary()
	p.monitor.Stop()
	printStatus(p.out, summary)
	p.stop()
}

func (p *pipeline) stop() {
	for i := len(p.stops) - 1; i >= 0; i-- {
		p.stops[i]()
	}
	p.stops = nil
}

const statusBarWidth = 20

func printStatus(out io.Writer, summary rx.Summary) {
	fmt.Fprintf(out, "after %d sweeps, activity %.0f, busiest %s\n", summary.Sweeps, summary.GlobalActivity, rx.FormatRanking(summary.Top))
	for _, channel := range summary.Channels {
		marker := " "
		if channel.Active {
			marker = ">"
		}
		if !channel.HasData {
			fmt.Fprintf(out, "%s%2d  %-*s    -\n", marker, channel.Channel, statusBarWidth, "")
			continue
		}
		bar := strings.Repeat("#", int(channel.Smoothed*statusBarWidth/100+0.5))
		fmt.Fprintf(out, "%s%2d  %-*s  %3.0f  %4d frames %8s %3d tx", marker, channel.Channel, statusBarWidth, bar, channel.Smoothed, channel.Frames, humanize.Bytes(uint64(channel.Bytes)), channel.Unique)
		if channel.Period > 0 {
			fmt.Fprintf(out, "  periodic every %.1f sweeps", channel.Period)
		}
		if channel.SwitchFaults > 0 {
			fmt.Fprintf(out, "  %d switch faults", channel.SwitchFaults)
		}
		fmt.Fprintln(out)
	}
}
