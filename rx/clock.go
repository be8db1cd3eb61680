package rx

import (
	"time"
)

// Clock provides a free running millisecond counter. The counter wraps around after about 49.7 days,
// all comparisons of two readings must use the unsigned difference (see Elapsed).
type Clock interface {
	Millis() uint32
}

type ClockFunc func() uint32

func (f ClockFunc) Millis() uint32 {
	return f()
}

var processStart = time.Now()

// UptimeClock counts the milliseconds since the process started.
var UptimeClock = ClockFunc(func() uint32 {
	return uint32(time.Since(processStart).Milliseconds())
})

// Elapsed returns the number of milliseconds from since to now. The result is correct across
// a wraparound of the counter, as long as the real difference is less than 2^32 milliseconds.
func Elapsed(now, since uint32) uint32 {
	return now - since
}

type manualClock struct {
	now uint32
}

func (c *manualClock) Millis() uint32 {
	return c.now
}

func (c *manualClock) Set(now uint32) {
	c.now = now
}

func (c *manualClock) Add(d time.Duration) {
	c.now += uint32(d.Milliseconds())
}
