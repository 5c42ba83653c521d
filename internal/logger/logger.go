// Package logger installs a colored slog handler as the process-wide
// default logger. Records are formatted on the calling goroutine and
// written by a background worker so logging never blocks message routing.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/fatih/color"
)

// Handler is a slog.Handler that renders records as single colored
// lines and hands them to an async writer goroutine.
type Handler struct {
	ch     chan []byte
	writer io.Writer
	attrs  []slog.Attr
	group  string
	level  slog.Level
	wg     sync.WaitGroup
	closed sync.Once
}

// NewHandler creates a handler writing to w at the given minimum level
// and starts its writer goroutine.
func NewHandler(w io.Writer, level slog.Level) *Handler {
	h := &Handler{
		ch:     make(chan []byte, 1024),
		writer: w,
		level:  level,
	}
	h.wg.Add(1)
	go h.run()
	return h
}

func (h *Handler) run() {
	defer h.wg.Done()
	for data := range h.ch {
		_, _ = h.writer.Write(data)
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()
	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	}

	line := fmt.Sprintf(
		"%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		r.Message,
	)

	prefix := ""
	if h.group != "" {
		prefix = h.group + "."
	}
	for _, attr := range h.attrs {
		line += color.CyanString(fmt.Sprintf(" %s%s=%v", prefix, attr.Key, attr.Value))
	}
	r.Attrs(func(attr slog.Attr) bool {
		line += color.CyanString(fmt.Sprintf(" %s%s=%v", prefix, attr.Key, attr.Value))
		return true
	})
	line += "\n"

	h.enqueue([]byte(line))
	return nil
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &Handler{
		ch:     h.ch,
		writer: h.writer,
		attrs:  merged,
		group:  h.group,
		level:  h.level,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		ch:     h.ch,
		writer: h.writer,
		attrs:  h.attrs,
		group:  name,
		level:  h.level,
	}
}

func (h *Handler) enqueue(p []byte) {
	// The record buffer is reused by slog; copy before crossing goroutines.
	pb := make([]byte, len(p))
	copy(pb, p)
	defer func() {
		// Sending on a closed channel panics; a log emitted during
		// shutdown is dropped instead of crashing the process.
		_ = recover()
	}()
	h.ch <- pb
}

// Close drains pending records and stops the writer goroutine.
func (h *Handler) Close() error {
	h.closed.Do(func() {
		close(h.ch)
	})
	h.wg.Wait()
	if f, ok := h.writer.(*os.File); ok {
		_ = f.Sync()
	}
	return nil
}

// Init installs a colored stdout handler as slog's default logger.
// The returned handler should be closed on shutdown to flush pending
// records.
func Init(debug bool) *Handler {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	handler := NewHandler(os.Stdout, level)
	slog.SetDefault(slog.New(handler))
	slog.Debug("logger initialized")
	return handler
}
