// Package dsp provides generic implementations of the numeric building blocks of the activity pipeline.
package dsp

import (
	"fmt"
	"math"

	"golang.org/x/exp/constraints"
)

type Number interface {
	constraints.Integer | constraints.Float
}

// Clamp01 limits the given value to the range [0, 1].
func Clamp01[T constraints.Float](value T) T {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}

// LogScale compresses the given non-negative value logarithmically into [0, 1].
// The result reaches 1 when value+1 reaches the saturation point.
func LogScale(value float64, saturation float64) float64 {
	if value <= 0 {
		return 0
	}
	denominator := math.Log(saturation)
	if denominator <= 0 {
		return 0
	}
	return Clamp01(math.Log1p(value) / denominator)
}

// EMA is an exponential moving average. The first value that is put into the EMA seeds
// the average directly, so there is no warm-up transient.
type EMA[T constraints.Float] struct {
	alpha  T
	value  T
	seeded bool
}

// NewEMA returns a new exponential moving average with the given smoothing factor alpha.
func NewEMA[T constraints.Float](alpha T) *EMA[T] {
	return &EMA[T]{
		alpha: alpha,
	}
}

// Put a new value into the average and get the new average back.
func (e *EMA[T]) Put(value T) T {
	if !e.seeded {
		e.value = value
		e.seeded = true
		return e.value
	}
	e.value = (1-e.alpha)*e.value + e.alpha*value
	return e.value
}

// Get the current average.
func (e *EMA[T]) Get() T {
	return e.value
}

// Seeded indicates if at least one value was put into the average.
func (e *EMA[T]) Seeded() bool {
	return e.seeded
}

func (e *EMA[T]) Alpha() T {
	return e.alpha
}

// Reset the average, the next value seeds it again.
func (e *EMA[T]) Reset() {
	e.value = 0
	e.seeded = false
}

// RollingHistory provides access to the last <length> values and a set of functions based on those historical values.
type RollingHistory[T Number] struct {
	ring   []T
	length int
	next   int
	count  int
}

// NewRollingHistory returns a new RollingHistory of the given length.
func NewRollingHistory[T Number](length int) *RollingHistory[T] {
	return &RollingHistory[T]{
		ring:   make([]T, length),
		length: length,
	}
}

func (h *RollingHistory[T]) ringIndex(index int) int {
	if index > h.length {
		panic(fmt.Sprintf("index %d is greater then the available history length of %d", index, h.length))
	}
	return (h.next - index + h.length) % h.length
}

// Reset the rolling history.
func (h *RollingHistory[T]) Reset() {
	clear(h.ring)
	h.next = 0
	h.count = 0
}

// Len is the number of values that are currently available, at most the length of the history.
func (h *RollingHistory[T]) Len() int {
	return h.count
}

// Get provides the value that was inserted <index> Put calls in the past.
func (h *RollingHistory[T]) Get(index int) T {
	return h.ring[h.ringIndex(index)]
}

// Put a new value into the history.
func (h *RollingHistory[T]) Put(value T) {
	h.ring[h.next] = value
	h.next = (h.next + 1) % h.length
	if h.count < h.length {
		h.count++
	}
}

// Values copies the available values into buf, oldest first, and returns the filled part of buf.
func (h *RollingHistory[T]) Values(buf []T) []T {
	buf = buf[:0]
	for i := h.count; i >= 1; i-- {
		buf = append(buf, h.Get(i))
	}
	return buf
}

// Mean of the available values.
func (h *RollingHistory[T]) Mean() float64 {
	if h.count == 0 {
		return 0
	}
	var sum float64
	for i := 1; i <= h.count; i++ {
		sum += float64(h.Get(i))
	}
	return sum / float64(h.count)
}

// Max of the available values.
func (h *RollingHistory[T]) Max() T {
	if h.count == 0 {
		return 0
	}
	max := h.Get(1)
	for i := 2; i <= h.count; i++ {
		value := h.Get(i)
		if max < value {
			max = value
		}
	}
	return max
}
