package radio

import (
	"fmt"
	"math"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

// UnknownSignal is reported when a frame carries no antenna signal. It never counts as a strong frame.
const UnknownSignal = math.MinInt8

const fcsLength = 4

// Decoder decodes radiotap encapsulated 802.11 frames. A Decoder is not safe for concurrent use.
type Decoder struct {
	radiotap layers.RadioTap
	parser   *gopacket.DecodingLayerParser
	decoded  []gopacket.LayerType
}

func NewDecoder() *Decoder {
	result := &Decoder{
		decoded: make([]gopacket.LayerType, 0, 2),
	}
	result.parser = gopacket.NewDecodingLayerParser(layers.LayerTypeRadioTap, &result.radiotap)
	result.parser.IgnoreUnsupported = true
	return result
}

// Decode the given radiotap packet. Frames that are too short to contain a transmitter address are
// returned with Valid == false. An error is only returned if the radiotap header itself is broken.
func (d *Decoder) Decode(data []byte) (Event, error) {
	d.radiotap = layers.RadioTap{}
	err := d.parser.DecodeLayers(data, &d.decoded)
	if err != nil {
		return Event{}, fmt.Errorf("cannot decode radiotap header: %w", err)
	}
	if len(d.decoded) == 0 {
		return Event{}, fmt.Errorf("no radiotap header found")
	}

	frame := d.radiotap.Payload
	if !d.radiotap.Flags.FCS() && len(frame) >= fcsLength {
		// the radiotap layer appends a computed FCS if the frame was captured without
		frame = frame[:len(frame)-fcsLength]
	}

	result := Event{
		Length:    uint32(len(frame)),
		SignalDBM: UnknownSignal,
		Valid:     len(frame) >= MinFrameLength,
	}
	if d.radiotap.Present.DBMAntennaSignal() {
		result.SignalDBM = d.radiotap.DBMAntennaSignal
	}
	if d.radiotap.Present.Channel() {
		result.Frequency = uint16(d.radiotap.ChannelFrequency)
	}
	if result.Valid {
		copy(result.Source[:], frame[10:16])
	}
	return result, nil
}
