// Package config loads the tunables of the activity pipeline and its presenters from a YAML file.
package config

import (
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ftl/bandwatch/rx"
	"github.com/ftl/bandwatch/telnet"
)

var ErrInvalid = errors.New("invalid configuration")

const (
	MinChannels = 1
	MaxChannels = 14
	MinDwell    = 200 * time.Millisecond
	MaxDwell    = 400 * time.Millisecond
	MinAlpha    = 0.15
	MaxAlpha    = 0.30

	maxDedupCapacity = 1024
	maxHistoryLength = 1024
	weightTolerance  = 0.001
)

// Config holds the tunables of the pipeline and its presenters.
type Config struct {
	Station            string         `yaml:"station"`
	Channels           int            `yaml:"channels"`
	Dwell              time.Duration  `yaml:"dwell"`
	TickInterval       time.Duration  `yaml:"tick_interval"`
	StrongThresholdDBM int            `yaml:"strong_threshold_dbm"`
	DedupCapacity      int            `yaml:"dedup_capacity"`
	Alpha              float64        `yaml:"alpha"`
	TopK               int            `yaml:"top_k"`
	HistoryLength      int            `yaml:"history_length"`
	Score              rx.ScoreConfig `yaml:"score"`
	Telnet             TelnetConfig   `yaml:"telnet"`
}

// TelnetConfig controls the busy alerts of the telnet feed.
type TelnetConfig struct {
	BusyThreshold float64       `yaml:"busy_threshold"`
	SilencePeriod time.Duration `yaml:"silence_period"`
}

// Default returns the pinned default configuration.
func Default() Config {
	return Config{
		Station:            "bandwatch",
		Channels:           rx.DefaultChannels,
		Dwell:              rx.DefaultDwell,
		TickInterval:       rx.DefaultTickInterval,
		StrongThresholdDBM: rx.DefaultStrongThresholdDBM,
		DedupCapacity:      rx.DefaultDedupCapacity,
		Alpha:              rx.DefaultAlpha,
		TopK:               rx.DefaultTopK,
		HistoryLength:      rx.DefaultHistoryLength,
		Score:              rx.DefaultScoreConfig(),
		Telnet: TelnetConfig{
			BusyThreshold: telnet.DefaultBusyThreshold,
			SilencePeriod: telnet.DefaultAlertSilencePeriod,
		},
	}
}

// Load reads the configuration from the given file. Values missing in the file keep their defaults.
// An empty path results in the default configuration.
func Load(path string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(path) == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot open configuration: %w", err)
	}
	defer f.Close()

	return Decode(f)
}

// Decode reads the configuration from the given reader. Unknown fields are rejected.
func Decode(r io.Reader) (Config, error) {
	cfg := Default()
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	err := decoder.Decode(&cfg)
	if errors.Is(err, io.EOF) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("cannot parse configuration: %w", err)
	}
	return cfg, nil
}

// Encode writes the configuration as YAML.
func (c Config) Encode(w io.Writer) error {
	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(c); err != nil {
		return err
	}
	return encoder.Close()
}

// Validate checks all values and reports every violation.
func (c Config) Validate() error {
	var errs []error
	invalid := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
	}

	if c.Channels < MinChannels || c.Channels > MaxChannels {
		invalid("channels must be in [%d, %d], got %d", MinChannels, MaxChannels, c.Channels)
	}
	if c.Dwell < MinDwell || c.Dwell > MaxDwell {
		invalid("dwell must be in [%v, %v], got %v", MinDwell, MaxDwell, c.Dwell)
	}
	if c.TickInterval <= 0 || c.TickInterval >= c.Dwell {
		invalid("tick_interval must be positive and shorter than the dwell, got %v", c.TickInterval)
	}
	if c.StrongThresholdDBM < math.MinInt8 || c.StrongThresholdDBM > 0 {
		invalid("strong_threshold_dbm must be in [%d, 0], got %d", math.MinInt8, c.StrongThresholdDBM)
	}
	if c.DedupCapacity < 1 || c.DedupCapacity > maxDedupCapacity {
		invalid("dedup_capacity must be in [1, %d], got %d", maxDedupCapacity, c.DedupCapacity)
	}
	if c.Alpha < MinAlpha || c.Alpha > MaxAlpha {
		invalid("alpha must be in [%.2f, %.2f], got %v", MinAlpha, MaxAlpha, c.Alpha)
	}
	if c.TopK < 1 || c.TopK > c.Channels {
		invalid("top_k must be in [1, channels], got %d", c.TopK)
	}
	if c.HistoryLength < 1 || c.HistoryLength > maxHistoryLength {
		invalid("history_length must be in [1, %d], got %d", maxHistoryLength, c.HistoryLength)
	}

	if c.Score.PPSSaturation <= 1 {
		invalid("score.pps_saturation must be greater than 1, got %v", c.Score.PPSSaturation)
	}
	if c.Score.BPSSaturation <= 1 {
		invalid("score.bps_saturation must be greater than 1, got %v", c.Score.BPSSaturation)
	}
	if c.Score.UniqueSaturation <= 1 {
		invalid("score.unique_saturation must be greater than 1, got %v", c.Score.UniqueSaturation)
	}
	w := c.Score.Weights
	if w.Rate < 0 || w.Throughput < 0 || w.Strong < 0 || w.Diversity < 0 {
		invalid("score.weights must not be negative")
	}
	if sum := w.Rate + w.Throughput + w.Strong + w.Diversity; math.Abs(sum-1) > weightTolerance {
		invalid("score.weights must sum up to 1, got %.3f", sum)
	}

	if c.Telnet.BusyThreshold < 0 || c.Telnet.BusyThreshold > 100 {
		invalid("telnet.busy_threshold must be in [0, 100], got %v", c.Telnet.BusyThreshold)
	}
	if c.Telnet.SilencePeriod < 0 {
		invalid("telnet.silence_period must not be negative, got %v", c.Telnet.SilencePeriod)
	}

	return errors.Join(errs...)
}

// Settings provides the pipeline settings. The configuration should be validated before.
func (c Config) Settings() rx.Settings {
	return rx.Settings{
		Channels:           c.Channels,
		Dwell:              c.Dwell,
		TickInterval:       c.TickInterval,
		StrongThresholdDBM: int8(c.StrongThresholdDBM),
		DedupCapacity:      c.DedupCapacity,
		Alpha:              c.Alpha,
		TopK:               c.TopK,
		HistoryLength:      c.HistoryLength,
		Score:              c.Score,
	}
}
