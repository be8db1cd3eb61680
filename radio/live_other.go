//go:build !linux

package radio

import (
	"errors"
)

type LiveCapture struct {
	done chan struct{}
}

func OpenLiveCapture(string, FrameSink) (*LiveCapture, error) {
	return nil, errors.New("live capture is only supported on linux")
}

func (c *LiveCapture) SetDump(*PCAPWriter)   {}
func (c *LiveCapture) Start()                {}
func (c *LiveCapture) Done() <-chan struct{} { return c.done }
func (c *LiveCapture) Close()                {}
