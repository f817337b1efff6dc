// Package log installs the process-wide slog handler: text or JSON output
// at a runtime-adjustable level, plus a ring of recent records for the
// monitor's log pane.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	tea "github.com/charmbracelet/bubbletea"
)

// DefaultRingSize is the number of records kept by Init.
const DefaultRingSize = 50

// LogMsg is a tea.Msg carrying a log record.
type LogMsg slog.Record

type ring struct {
	mu      sync.Mutex
	size    int
	records []slog.Record
	out     chan<- tea.Msg
}

func (r *ring) add(rec slog.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if len(r.records) > r.size {
		r.records = r.records[len(r.records)-r.size:]
	}
	if r.out != nil {
		// Never block logging on a slow UI.
		select {
		case r.out <- LogMsg(rec):
		default:
		}
	}
}

// Handler is a slog.Handler that keeps the most recent records and
// forwards every record to the wrapped handler.
type Handler struct {
	inner slog.Handler
	ring  *ring
}

// NewHandler wraps inner, keeping up to size records.
func NewHandler(inner slog.Handler, size int) *Handler {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Handler{inner: inner, ring: &ring{size: size}}
}

func (h *Handler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

// Handle records r and passes it on.
func (h *Handler) Handle(ctx context.Context, r slog.Record) error {
	h.ring.add(r.Clone())
	return h.inner.Handle(ctx, r)
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &Handler{inner: h.inner.WithAttrs(attrs), ring: h.ring}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{inner: h.inner.WithGroup(name), ring: h.ring}
}

// Logs returns a copy of the stored records, oldest first.
func (h *Handler) Logs() []slog.Record {
	h.ring.mu.Lock()
	defer h.ring.mu.Unlock()
	return append([]slog.Record(nil), h.ring.records...)
}

// SetOutput also delivers new records to ch as LogMsg. A nil ch stops
// delivery.
func (h *Handler) SetOutput(ch chan<- tea.Msg) {
	h.ring.mu.Lock()
	defer h.ring.mu.Unlock()
	h.ring.out = ch
}

// NewInner returns a text or JSON handler writing to w at level.
func NewInner(w io.Writer, format string, level slog.Leveler) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}
	switch format {
	case "", "text":
		return slog.NewTextHandler(w, opts), nil
	case "json":
		return slog.NewJSONHandler(w, opts), nil
	}
	return nil, fmt.Errorf("unknown log format %q", format)
}

var defaultHandler = NewHandler(slog.Default().Handler(), DefaultRingSize)

// Init installs the default logger writing to w in format ("text" or
// "json") at level, and returns its handler.
func Init(w io.Writer, format string, level slog.Leveler) (*Handler, error) {
	inner, err := NewInner(w, format, level)
	if err != nil {
		return nil, err
	}
	defaultHandler = NewHandler(inner, DefaultRingSize)
	slog.SetDefault(slog.New(defaultHandler))
	return defaultHandler, nil
}

// SetOutput sets the output channel for the default handler.
func SetOutput(ch chan<- tea.Msg) {
	defaultHandler.SetOutput(ch)
}

// Logs returns the stored records of the default handler.
func Logs() []slog.Record {
	return defaultHandler.Logs()
}
