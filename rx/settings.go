package rx

import (
	"time"
)

const (
	DefaultChannels           = 13
	DefaultDwell              = 260 * time.Millisecond
	DefaultTickInterval       = 10 * time.Millisecond
	DefaultStrongThresholdDBM = -65
	DefaultDedupCapacity      = 32
	DefaultAlpha              = 0.22
	DefaultTopK               = 3
	DefaultHistoryLength      = 32

	// minPeriodicStrength is the share of spectral energy a periodic component needs to be reported.
	minPeriodicStrength = 0.35
	minPeriodicSamples  = 16
)

// Settings contains the tunable constants of the activity pipeline.
type Settings struct {
	Channels           int
	Dwell              time.Duration
	TickInterval       time.Duration
	StrongThresholdDBM int8
	DedupCapacity      int
	Alpha              float64
	TopK               int
	HistoryLength      int
	Score              ScoreConfig
}

func DefaultSettings() Settings {
	return Settings{
		Channels:           DefaultChannels,
		Dwell:              DefaultDwell,
		TickInterval:       DefaultTickInterval,
		StrongThresholdDBM: DefaultStrongThresholdDBM,
		DedupCapacity:      DefaultDedupCapacity,
		Alpha:              DefaultAlpha,
		TopK:               DefaultTopK,
		HistoryLength:      DefaultHistoryLength,
		Score:              DefaultScoreConfig(),
	}
}

// SweepDuration is the nominal time to visit every channel once.
func (s Settings) SweepDuration() time.Duration {
	return time.Duration(s.Channels) * s.Dwell
}
