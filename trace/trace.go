// Package trace writes the values of one tracing context as CSV records to a file or a UDP destination.
// Every trace starts with a header record that names the columns.
package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strconv"
	"strings"
	"time"
)

const separator = ';'

type Tracer interface {
	Context() string
	Start()
	Trace(context string, fields ...any)
	Stop()
}

// Parse creates a tracer for the given destination, which is either "file:<filename>" or "udp:<host>:<port>".
// An empty destination results in a NoTracer.
func Parse(context string, columns []string, destination string) (Tracer, error) {
	if destination == "" {
		return new(NoTracer), nil
	}
	kind, target, ok := strings.Cut(destination, ":")
	if !ok || target == "" {
		return nil, fmt.Errorf("invalid trace destination %q", destination)
	}

	switch strings.ToLower(kind) {
	case "file":
		return NewFileTracer(context, columns, target), nil
	case "udp":
		tracer, err := NewUDPTracer(context, columns, target)
		if err != nil {
			return nil, err
		}
		return tracer, nil
	default:
		return nil, fmt.Errorf("unknown trace destination type %q", kind)
	}
}

type NoTracer struct{}

func (t *NoTracer) Context() string      { return "" }
func (t *NoTracer) Start()               {}
func (t *NoTracer) Trace(string, ...any) {}
func (t *NoTracer) Stop()                {}

// csvTracer formats the records of one context. Floats are written with three decimals,
// durations in milliseconds.
type csvTracer struct {
	context string
	columns []string
	out     io.WriteCloser
	writer  *csv.Writer
	record  []string
}

func newCSVTracer(context string, columns []string) csvTracer {
	return csvTracer{
		context: context,
		columns: columns,
		record:  make([]string, 0, len(columns)),
	}
}

func (t *csvTracer) Context() string {
	return t.context
}

func (t *csvTracer) begin(out io.WriteCloser) {
	t.out = out
	t.writer = csv.NewWriter(out)
	t.writer.Comma = separator
	if len(t.columns) == 0 {
		return
	}
	t.write(t.columns)
}

func (t *csvTracer) Trace(context string, fields ...any) {
	if t.out == nil {
		return
	}
	if context != t.context {
		return
	}

	t.record = t.record[:0]
	for _, field := range fields {
		t.record = append(t.record, formatField(field))
	}
	t.write(t.record)
}

func (t *csvTracer) write(record []string) {
	err := t.writer.Write(record)
	if err == nil {
		t.writer.Flush()
		err = t.writer.Error()
	}
	if err != nil {
		log.Printf("cannot write trace: %v", err)
	}
}

func (t *csvTracer) Stop() {
	if t.out == nil {
		return
	}

	t.writer.Flush()
	t.out.Close()
	t.out = nil
	t.writer = nil
}

func formatField(field any) string {
	switch v := field.(type) {
	case float64:
		return strconv.FormatFloat(v, 'f', 3, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', 3, 32)
	case time.Duration:
		return strconv.FormatInt(v.Milliseconds(), 10)
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// FileTracer writes the trace into a file, which is truncated on Start.
type FileTracer struct {
	csvTracer
	filename string
}

func NewFileTracer(context string, columns []string, filename string) *FileTracer {
	return &FileTracer{
		csvTracer: newCSVTracer(context, columns),
		filename:  filename,
	}
}

func (t *FileTracer) Start() {
	if t.out != nil {
		return
	}

	out, err := os.Create(t.filename)
	if err != nil {
		log.Printf("cannot start trace: %v", err)
		return
	}
	t.begin(out)
}

// UDPTracer sends every record as one datagram, the header is repeated on every Start.
type UDPTracer struct {
	csvTracer
	addr *net.UDPAddr
}

func NewUDPTracer(context string, columns []string, destination string) (*UDPTracer, error) {
	addr, err := net.ResolveUDPAddr("udp", destination)
	if err != nil {
		return nil, fmt.Errorf("cannot parse UDP destination: %w", err)
	}
	return &UDPTracer{
		csvTracer: newCSVTracer(context, columns),
		addr:      addr,
	}, nil
}

func (t *UDPTracer) Start() {
	if t.out != nil {
		return
	}

	conn, err := net.DialUDP("udp", nil, t.addr)
	if err != nil {
		log.Printf("cannot start trace: %v", err)
		return
	}
	t.begin(conn)
}
