// Package trace provides the instruction event stream that drives the
// dependence predictor: a text trace format and synthetic workloads.
package trace

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Kind classifies a dynamic instruction.
type Kind uint8

const (
	// KindOther is any instruction that does not access memory.
	KindOther Kind = iota
	// KindLoad reads memory.
	KindLoad
	// KindStore writes memory.
	KindStore
)

// String returns the trace mnemonic of the kind.
func (k Kind) String() string {
	switch k {
	case KindLoad:
		return "L"
	case KindStore:
		return "S"
	default:
		return "N"
	}
}

// Event is one retired instruction.
type Event struct {
	PC   uint64
	Kind Kind
	// Addr is the effective address of a load or store.
	Addr uint64
}

// IsMemory returns true for loads and stores.
func (e Event) IsMemory() bool {
	return e.Kind == KindLoad || e.Kind == KindStore
}

// Source produces events until it returns io.EOF.
type Source interface {
	Next() (Event, error)
}

// SliceSource replays a fixed list of events.
type SliceSource struct {
	events []Event
	pos    int
}

// NewSliceSource creates a source over events.
func NewSliceSource(events []Event) *SliceSource {
	return &SliceSource{events: events}
}

// Next returns the next event or io.EOF.
func (s *SliceSource) Next() (Event, error) {
	if s.pos >= len(s.events) {
		return Event{}, io.EOF
	}
	e := s.events[s.pos]
	s.pos++
	return e, nil
}

// Reader parses the text trace format, one event per line:
//
//	<pc> <kind> [<addr>]
//
// where kind is L, S, or N (also "-"). Numbers are decimal or 0x-prefixed
// hex. Text after '#' is ignored.
type Reader struct {
	scanner *bufio.Scanner
	line    int
}

// NewReader creates a Reader over r.
func NewReader(r io.Reader) *Reader {
	return &Reader{scanner: bufio.NewScanner(r)}
}

// Next returns the next event, io.EOF at the end of input, or an error
// naming the offending line.
func (r *Reader) Next() (Event, error) {
	for r.scanner.Scan() {
		r.line++

		text := r.scanner.Text()
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}
		fields := strings.Fields(text)
		if len(fields) == 0 {
			continue
		}

		e, err := parseEvent(fields)
		if err != nil {
			return Event{}, fmt.Errorf("trace line %d: %w", r.line, err)
		}
		return e, nil
	}

	if err := r.scanner.Err(); err != nil {
		return Event{}, fmt.Errorf("failed to read trace: %w", err)
	}
	return Event{}, io.EOF
}

func parseEvent(fields []string) (Event, error) {
	if len(fields) < 2 || len(fields) > 3 {
		return Event{}, fmt.Errorf("expected \"<pc> <kind> [<addr>]\", got %d fields", len(fields))
	}

	pc, err := strconv.ParseUint(fields[0], 0, 64)
	if err != nil {
		return Event{}, fmt.Errorf("invalid pc %q: %w", fields[0], err)
	}

	e := Event{PC: pc}
	switch strings.ToUpper(fields[1]) {
	case "L":
		e.Kind = KindLoad
	case "S":
		e.Kind = KindStore
	case "N", "-":
		e.Kind = KindOther
	default:
		return Event{}, fmt.Errorf("unknown kind %q", fields[1])
	}

	if !e.IsMemory() {
		return e, nil
	}

	if len(fields) != 3 {
		return Event{}, fmt.Errorf("%s event needs an address", e.Kind)
	}
	e.Addr, err = strconv.ParseUint(fields[2], 0, 64)
	if err != nil {
		return Event{}, fmt.Errorf("invalid address %q: %w", fields[2], err)
	}

	return e, nil
}

// Writer emits events in the text trace format.
type Writer struct {
	w *bufio.Writer
}

// NewWriter creates a Writer over w. Call Flush when done.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: bufio.NewWriter(w)}
}

// Write emits one event.
func (w *Writer) Write(e Event) error {
	var err error
	if e.IsMemory() {
		_, err = fmt.Fprintf(w.w, "0x%x %s 0x%x\n", e.PC, e.Kind, e.Addr)
	} else {
		_, err = fmt.Fprintf(w.w, "0x%x %s\n", e.PC, e.Kind)
	}
	return err
}

// Flush writes buffered output.
func (w *Writer) Flush() error {
	return w.w.Flush()
}

// ReadAll drains a source into a slice.
func ReadAll(src Source) ([]Event, error) {
	var events []Event
	for {
		e, err := src.Next()
		if err == io.EOF {
			return events, nil
		}
		if err != nil {
			return events, err
		}
		events = append(events, e)
	}
}
