package rx

import (
	"time"
)

// ChannelView is what a presenter gets to see of one channel.
type ChannelView struct {
	Metrics
	Channel      int
	Smoothed     float64
	Raw          float64
	Active       bool
	HasData      bool
	Windows      uint64
	SwitchFaults uint64

	// Period of a recurring activity pattern in sweeps, 0 if there is none.
	Period float64
}

// Summary is a consistent view on all channels, taken on the consumer side.
type Summary struct {
	ActiveChannel  int
	Sweeps         uint64
	GlobalActivity float64
	Top            []Ranked
	Quietest       Ranked
	HasQuietest    bool
	Channels       []ChannelView
}

// Window describes one finalized dwell window.
type Window struct {
	Metrics
	Channel  int
	Raw      float64
	Smoothed float64
	Dwell    time.Duration
	Elapsed  time.Duration
	Uptime   uint32
}
