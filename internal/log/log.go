// Package log provides the structured logging output used throughout
// meshgdb.
//
// Grounded on smoynes-elsie/internal/log/log.go: a small slog.Handler
// that formats each record as a block of upper-cased "KEY : value" lines,
// generalized here so the §6.3 `-d <class>` diagnostic classes become
// slog attribute groups instead of bespoke print statements.
package log

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"path"
	"runtime"
	"strings"
	"sync"
	"time"
)

// LevelVar lets the level be changed at runtime (e.g. by a future
// --verbose flag); it starts at Info.
var LevelVar = &slog.LevelVar{}

// Options mirrors the teacher's package-level HandlerOptions, kept
// mutable so tests can disable source capture.
var Options = &slog.HandlerOptions{
	AddSource: true,
	Level:     LevelVar,
}

// Handler implements slog.Handler, formatting each record as a block of
// aligned "KEY : value" lines rather than structured JSON, matching the
// console-first shape the teacher's Handler produces.
type Handler struct {
	mut *sync.Mutex
	out io.Writer

	opts  *slog.HandlerOptions
	group string
	attrs []slog.Attr
}

// New creates a Handler writing to out.
func New(out io.Writer) *Handler {
	return &Handler{out: out, mut: new(sync.Mutex), opts: Options}
}

// NewLogger builds a ready-to-use *slog.Logger over a fresh Handler.
func NewLogger(out io.Writer) *slog.Logger {
	return slog.New(New(out))
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.opts.Level.Level()
}

func (h *Handler) Handle(_ context.Context, rec slog.Record) error {
	buf := make([]byte, 0, 1024)
	out := bytes.NewBuffer(buf)

	if !rec.Time.IsZero() {
		fmt.Fprintf(out, "%10s : %s\n", "TIMESTAMP", rec.Time.Format(time.RFC3339Nano))
	}
	fmt.Fprintf(out, "%10s : %s\n", "LEVEL", rec.Level.String())

	if h.opts.AddSource && rec.PC != 0 {
		frames := runtime.CallersFrames([]uintptr{rec.PC})
		f, _ := frames.Next()
		_, file := path.Split(f.File)
		fmt.Fprintf(out, "%10s : %s:%d\n", "SOURCE", file, f.Line)
	}

	fmt.Fprintf(out, "%10s : %s\n", "MESSAGE", rec.Message)

	for _, a := range h.attrs {
		h.appendAttr(out, a, false)
	}
	rec.Attrs(func(a slog.Attr) bool {
		h.appendAttr(out, a, false)
		return true
	})
	fmt.Fprintln(out)

	h.mut.Lock()
	defer h.mut.Unlock()
	_, err := h.out.Write(out.Bytes())
	return err
}

func (h *Handler) appendAttr(out io.Writer, attr slog.Attr, grouped bool) {
	attr.Value = attr.Value.Resolve()
	key, value := strings.ToUpper(attr.Key), attr.Value

	switch {
	case attr.Equal(slog.Attr{}):
		return
	case value.Kind() != slog.KindGroup:
		if grouped {
			fmt.Fprint(out, "  ")
		}
		fmt.Fprintf(out, "%10s : %v\n", key, value.Any())
	default:
		if key != "" {
			fmt.Fprintf(out, "%10s :\n", key)
		}
		for _, a := range value.Group() {
			h.appendAttr(out, a, true)
		}
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	attrs := make([]slog.Attr, len(h.attrs))
	copy(attrs, h.attrs)
	return &Handler{mut: h.mut, out: h.out, opts: h.opts, attrs: attrs, group: name}
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	as := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	as = append(as, h.attrs...)
	as = append(as, attrs...)
	return &Handler{out: h.out, mut: h.mut, opts: h.opts, attrs: as, group: h.group}
}

// Diagnostic returns a child logger scoped to one of the §6.3 `-d <class>`
// classes, tagging every record with a "class" attribute group so a
// ReplaceAttr filter (or grep) can isolate one class's output.
func Diagnostic(base *slog.Logger, class string) *slog.Logger {
	return base.With(slog.Group("class", slog.String("name", class)))
}
