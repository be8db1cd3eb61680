package cmd

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ftl/bandwatch/rx"
	"github.com/ftl/bandwatch/scope"
)

func TestPrintStatus(t *testing.T) {
	summary := rx.Summary{
		Sweeps:         4,
		GlobalActivity: 80,
		Top:            []rx.Ranked{{Channel: 6, Score: 80}},
		Channels: []rx.ChannelView{
			{Channel: 1, Active: true},
			{Channel: 6, HasData: true, Smoothed: 80, Period: 4, SwitchFaults: 2, Metrics: rx.Metrics{Frames: 130, Bytes: 65000, Unique: 5}},
		},
	}
	out := &bytes.Buffer{}

	printStatus(out, summary)

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "after 4 sweeps, activity 80, busiest 6 (80)", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "> 1"), lines[1])
	assert.True(t, strings.HasSuffix(lines[1], "-"), lines[1])
	assert.Contains(t, lines[2], strings.Repeat("#", 16)+" ")
	assert.Contains(t, lines[2], "65 kB")
	assert.Contains(t, lines[2], "periodic every 4.0 sweeps")
	assert.Contains(t, lines[2], "2 switch faults")
}

func TestFrameSummary(t *testing.T) {
	summary := rx.Summary{
		ActiveChannel:  2,
		Sweeps:         9,
		GlobalActivity: 55,
		Top:            []rx.Ranked{{Channel: 1, Score: 55}},
		Channels: []rx.ChannelView{
			{Channel: 1, HasData: true, Smoothed: 55, Raw: 50, Metrics: rx.Metrics{Frames: 10, Bytes: 1000, StrongFrames: 3, Unique: 2}},
			{Channel: 2, Active: true},
		},
	}

	actual := frameSummary(scope.NewFrame("stream", time.Now(), summary))

	assert.Equal(t, summary, actual)
}
