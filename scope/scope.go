// Package scope provides insights into the channel sweep in form of a stream of frames,
// one frame per completed sweep, served to remote clients over gRPC.
package scope

import (
	"fmt"
	"time"

	"google.golang.org/protobuf/types/known/structpb"

	"github.com/ftl/bandwatch/rx"
)

type StreamID string

// Scope shows frames.
type Scope interface {
	ShowFrame(frame *Frame)
}

type NullScope struct{}

func NewNullScope() *NullScope {
	return &NullScope{}
}

func (s *NullScope) ShowFrame(*Frame) {}

type ChannelFrame struct {
	Channel      int
	Smoothed     float64
	Raw          float64
	Frames       uint32
	Bytes        uint32
	StrongFrames uint32
	Unique       uint32
	Active       bool
	HasData      bool
	Period       float64
}

type Frame struct {
	Stream         StreamID
	Timestamp      time.Time
	Sweep          uint64
	GlobalActivity float64
	ActiveChannel  int
	Top            []rx.Ranked
	Channels       []ChannelFrame
}

// NewFrame creates a frame from the given summary.
func NewFrame(stream StreamID, timestamp time.Time, summary rx.Summary) *Frame {
	result := &Frame{
		Stream:         stream,
		Timestamp:      timestamp,
		Sweep:          summary.Sweeps,
		GlobalActivity: summary.GlobalActivity,
		ActiveChannel:  summary.ActiveChannel,
		Top:            append([]rx.Ranked{}, summary.Top...),
		Channels:       make([]ChannelFrame, len(summary.Channels)),
	}
	for i, c := range summary.Channels {
		result.Channels[i] = ChannelFrame{
			Channel:      c.Channel,
			Smoothed:     c.Smoothed,
			Raw:          c.Raw,
			Frames:       c.Frames,
			Bytes:        c.Bytes,
			StrongFrames: c.StrongFrames,
			Unique:       c.Unique,
			Active:       c.Active,
			HasData:      c.HasData,
			Period:       c.Period,
		}
	}
	return result
}

func (f *Frame) toStruct() (*structpb.Struct, error) {
	top := make([]any, len(f.Top))
	for i, r := range f.Top {
		top[i] = map[string]any{
			"channel": r.Channel,
			"score":   r.Score,
		}
	}
	channels := make([]any, len(f.Channels))
	for i, c := range f.Channels {
		channels[i] = map[string]any{
			"channel":       c.Channel,
			"smoothed":      c.Smoothed,
			"raw":           c.Raw,
			"frames":        c.Frames,
			"bytes":         c.Bytes,
			"strong_frames": c.StrongFrames,
			"unique":        c.Unique,
			"active":        c.Active,
			"has_data":      c.HasData,
			"period":        c.Period,
		}
	}

	result, err := structpb.NewStruct(map[string]any{
		"stream_id":       string(f.Stream),
		"timestamp":       f.Timestamp.UTC().Format(time.RFC3339Nano),
		"sweep":           f.Sweep,
		"global_activity": f.GlobalActivity,
		"active_channel":  f.ActiveChannel,
		"top":             top,
		"channels":        channels,
	})
	if err != nil {
		return nil, fmt.Errorf("cannot encode frame: %w", err)
	}
	return result, nil
}

func readFrame(s *structpb.Struct) (*Frame, error) {
	fields := s.GetFields()

	timestamp, err := time.Parse(time.RFC3339Nano, fields["timestamp"].GetStringValue())
	if err != nil {
		return nil, fmt.Errorf("invalid frame timestamp: %w", err)
	}

	result := &Frame{
		Stream:         StreamID(fields["stream_id"].GetStringValue()),
		Timestamp:      timestamp,
		Sweep:          uint64(fields["sweep"].GetNumberValue()),
		GlobalActivity: fields["global_activity"].GetNumberValue(),
		ActiveChannel:  int(fields["active_channel"].GetNumberValue()),
	}

	for _, v := range fields["top"].GetListValue().GetValues() {
		r := v.GetStructValue().GetFields()
		result.Top = append(result.Top, rx.Ranked{
			Channel: int(r["channel"].GetNumberValue()),
			Score:   r["score"].GetNumberValue(),
		})
	}
	for _, v := range fields["channels"].GetListValue().GetValues() {
		c := v.GetStructValue().GetFields()
		result.Channels = append(result.Channels, ChannelFrame{
			Channel:      int(c["channel"].GetNumberValue()),
			Smoothed:     c["smoothed"].GetNumberValue(),
			Raw:          c["raw"].GetNumberValue(),
			Frames:       uint32(c["frames"].GetNumberValue()),
			Bytes:        uint32(c["bytes"].GetNumberValue()),
			StrongFrames: uint32(c["strong_frames"].GetNumberValue()),
			Unique:       uint32(c["unique"].GetNumberValue()),
			Active:       c["active"].GetBoolValue(),
			HasData:      c["has_data"].GetBoolValue(),
			Period:       c["period"].GetNumberValue(),
		})
	}

	return result, nil
}
