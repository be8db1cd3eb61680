package dsp

import (
	"math/cmplx"

	"github.com/mjibson/go-dsp/fft"
)

// MinPeriodSamples is the minimum number of samples DominantPeriod needs to find a period.
const MinPeriodSamples = 8

// DominantPeriod finds the strongest periodic component in the given series of equally spaced samples.
// It returns the period in samples and the share of the spectral energy that falls into this component (0..1).
// A constant or too short series has no period and returns 0, 0.
func DominantPeriod(values []float64) (float64, float64) {
	n := len(values)
	if n < MinPeriodSamples {
		return 0, 0
	}

	var mean float64
	for _, v := range values {
		mean += v
	}
	mean /= float64(n)

	centered := make([]float64, n)
	for i, v := range values {
		centered[i] = v - mean
	}

	spectrum := fft.FFTReal(centered)

	var total float64
	bestBin := 0
	bestMagnitude := 0.0
	for k := 1; k <= n/2; k++ {
		magnitude := cmplx.Abs(spectrum[k])
		total += magnitude
		if magnitude > bestMagnitude {
			bestMagnitude = magnitude
			bestBin = k
		}
	}
	if bestBin == 0 || total < 1e-9 {
		return 0, 0
	}

	return float64(n) / float64(bestBin), bestMagnitude / total
}
