package rx

import (
	"time"

	"github.com/ftl/bandwatch/dsp"
)

// Weights of the partial scores. They should sum up to 1.
type Weights struct {
	Rate       float64 `yaml:"rate"`
	Throughput float64 `yaml:"throughput"`
	Strong     float64 `yaml:"strong"`
	Diversity  float64 `yaml:"diversity"`
}

// ScoreConfig contains the saturation points and weights of the busy score.
type ScoreConfig struct {
	PPSSaturation    float64 `yaml:"pps_saturation"`
	BPSSaturation    float64 `yaml:"bps_saturation"`
	UniqueSaturation float64 `yaml:"unique_saturation"`
	Weights          Weights `yaml:"weights"`
}

func DefaultScoreConfig() ScoreConfig {
	return ScoreConfig{
		PPSSaturation:    600,
		BPSSaturation:    50000,
		UniqueSaturation: 20,
		Weights: Weights{
			Rate:       0.40,
			Throughput: 0.30,
			Strong:     0.20,
			Diversity:  0.10,
		},
	}
}

// Score maps the metrics of one dwell window to a busy score in [0, 100].
// The rates are compressed logarithmically, so the score stays meaningful from a few frames per second
// up to saturated channels. A window without frames always scores 0.
func Score(m Metrics, dwell time.Duration, c ScoreConfig) float64 {
	if m.Frames == 0 || dwell <= 0 {
		return 0
	}
	dwellSeconds := dwell.Seconds()

	pps := float64(m.Frames) / dwellSeconds
	bps := float64(m.Bytes) / dwellSeconds
	strongRatio := dsp.Clamp01(float64(m.StrongFrames) / float64(m.Frames))

	ppsScore := dsp.LogScale(pps, c.PPSSaturation)
	bpsScore := dsp.LogScale(bps, c.BPSSaturation)
	uniqueScore := dsp.LogScale(float64(m.Unique), c.UniqueSaturation)

	w := c.Weights
	sum := w.Rate*ppsScore + w.Throughput*bpsScore + w.Strong*strongRatio + w.Diversity*uniqueScore
	return dsp.Clamp01(sum) * 100
}
