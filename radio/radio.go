// Package radio contains the drivers that capture 802.11 frames and switch the radio between the 2.4 GHz channels.
package radio

import (
	"errors"
	"fmt"
	"net"
)

// MinFrameLength is the minimum length of an 802.11 frame that contains a transmitter address (addr2).
const MinFrameLength = 16

var (
	ErrTimeout        = errors.New("timeout")
	ErrClosed         = errors.New("closed")
	ErrInvalidChannel = errors.New("invalid channel")
)

// FrameSink receives the observed frames. Record must not block.
type FrameSink interface {
	Record(length uint32, signalDBM int8, source [6]byte, valid bool)
}

// Tuner switches the radio to a channel.
type Tuner interface {
	SetChannel(channel int) error
}

// Event describes one captured frame.
type Event struct {
	Length    uint32
	SignalDBM int8
	Source    [6]byte
	Valid     bool

	// Frequency in MHz, 0 if unknown.
	Frequency uint16
}

func (e Event) Deliver(sink FrameSink) {
	sink.Record(e.Length, e.SignalDBM, e.Source, e.Valid)
}

// ChannelFrequency returns the center frequency in MHz of the given 2.4 GHz channel.
func ChannelFrequency(channel int) (uint16, error) {
	switch {
	case channel >= 1 && channel <= 13:
		return uint16(2407 + 5*channel), nil
	case channel == 14:
		return 2484, nil
	default:
		return 0, fmt.Errorf("%w: %d", ErrInvalidChannel, channel)
	}
}

// FrequencyChannel returns the 2.4 GHz channel with the given center frequency in MHz.
func FrequencyChannel(frequency uint16) (int, bool) {
	switch {
	case frequency == 2484:
		return 14, true
	case frequency >= 2412 && frequency <= 2472 && (frequency-2407)%5 == 0:
		return int(frequency-2407) / 5, true
	default:
		return 0, false
	}
}

// ParseMAC parses a transmitter address in the notation 00:11:22:33:44:55.
func ParseMAC(s string) ([6]byte, error) {
	var result [6]byte
	hw, err := net.ParseMAC(s)
	if err != nil {
		return result, err
	}
	if len(hw) != len(result) {
		return result, fmt.Errorf("%s is not a 48 bit MAC address", s)
	}
	copy(result[:], hw)
	return result, nil
}

func FormatMAC(mac [6]byte) string {
	return net.HardwareAddr(mac[:]).String()
}
