package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/bandwatch/rx"
)

func TestDefault_IsValid(t *testing.T) {
	assert.NoError(t, Default().Validate())
}

func TestDecode(t *testing.T) {
	input := `
station: lab
channels: 11
dwell: 300ms
alpha: 0.18
score:
  pps_saturation: 800
telnet:
  busy_threshold: 60
  silence_period: 2m
`
	cfg, err := Decode(strings.NewReader(input))
	require.NoError(t, err)

	expected := Default()
	expected.Station = "lab"
	expected.Channels = 11
	expected.Dwell = 300 * time.Millisecond
	expected.Alpha = 0.18
	expected.Score.PPSSaturation = 800
	expected.Telnet.BusyThreshold = 60
	expected.Telnet.SilencePeriod = 2 * time.Minute

	if diff := cmp.Diff(expected, cfg); diff != "" {
		t.Errorf("config mismatch (-want +got):\n%s", diff)
	}
	assert.NoError(t, cfg.Validate())
}

func TestDecode_Empty(t *testing.T) {
	cfg, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestDecode_UnknownField(t *testing.T) {
	_, err := Decode(strings.NewReader("chanels: 11\n"))
	assert.Error(t, err)
}

func TestLoad(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	filename := filepath.Join(t.TempDir(), "bandwatch.yaml")
	require.NoError(t, os.WriteFile(filename, []byte("top_k: 5\n"), 0o644))
	cfg, err = Load(filename)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.TopK)
}

func TestEncode(t *testing.T) {
	cfg := Default()
	cfg.Dwell = 220 * time.Millisecond

	buffer := &bytes.Buffer{}
	require.NoError(t, cfg.Encode(buffer))
	assert.Contains(t, buffer.String(), "dwell: 220ms")

	actual, err := Decode(buffer)
	require.NoError(t, err)
	assert.Equal(t, cfg, actual)
}

func TestValidate(t *testing.T) {
	tt := []struct {
		desc   string
		modify func(*Config)
		valid  bool
	}{
		{desc: "one channel", modify: func(c *Config) { c.Channels = 1; c.TopK = 1 }, valid: true},
		{desc: "fourteen channels", modify: func(c *Config) { c.Channels = 14 }, valid: true},
		{desc: "no channels", modify: func(c *Config) { c.Channels = 0 }},
		{desc: "too many channels", modify: func(c *Config) { c.Channels = 15 }},
		{desc: "shortest dwell", modify: func(c *Config) { c.Dwell = MinDwell }, valid: true},
		{desc: "longest dwell", modify: func(c *Config) { c.Dwell = MaxDwell }, valid: true},
		{desc: "dwell too short", modify: func(c *Config) { c.Dwell = 199 * time.Millisecond }},
		{desc: "dwell too long", modify: func(c *Config) { c.Dwell = 401 * time.Millisecond }},
		{desc: "no tick interval", modify: func(c *Config) { c.TickInterval = 0 }},
		{desc: "tick interval longer than dwell", modify: func(c *Config) { c.TickInterval = time.Second }},
		{desc: "positive strong threshold", modify: func(c *Config) { c.StrongThresholdDBM = 3 }},
		{desc: "strong threshold out of range", modify: func(c *Config) { c.StrongThresholdDBM = -200 }},
		{desc: "no dedup capacity", modify: func(c *Config) { c.DedupCapacity = 0 }},
		{desc: "alpha too small", modify: func(c *Config) { c.Alpha = 0.1 }},
		{desc: "alpha too large", modify: func(c *Config) { c.Alpha = 0.5 }},
		{desc: "top k larger than channels", modify: func(c *Config) { c.TopK = 14 }},
		{desc: "no history", modify: func(c *Config) { c.HistoryLength = 0 }},
		{desc: "saturation of 1", modify: func(c *Config) { c.Score.UniqueSaturation = 1 }},
		{desc: "negative weight", modify: func(c *Config) { c.Score.Weights.Rate = -0.1; c.Score.Weights.Throughput = 0.8 }},
		{desc: "weights do not sum up to 1", modify: func(c *Config) { c.Score.Weights.Rate = 0.5 }},
		{desc: "busy threshold too high", modify: func(c *Config) { c.Telnet.BusyThreshold = 101 }},
		{desc: "negative silence period", modify: func(c *Config) { c.Telnet.SilencePeriod = -time.Second }},
	}
	for _, tc := range tt {
		t.Run(tc.desc, func(t *testing.T) {
			cfg := Default()
			tc.modify(&cfg)

			err := cfg.Validate()

			if tc.valid {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestValidate_ReportsAllViolations(t *testing.T) {
	cfg := Default()
	cfg.Channels = 0
	cfg.Alpha = 1

	err := cfg.Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "channels")
	assert.Contains(t, err.Error(), "alpha")
}

func TestSettings(t *testing.T) {
	cfg := Default()
	cfg.StrongThresholdDBM = -70

	settings := cfg.Settings()

	expected := rx.DefaultSettings()
	expected.StrongThresholdDBM = -70
	assert.Equal(t, expected, settings)
}
