// UCServer - Universal Control Protocol Engine for Media Devices
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/ucserver

package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
)

// SlogHandler implements slog.Handler on top of zerolog. It exists so that
// libraries requiring an *slog.Logger (the supervision tree's sutureslog
// handler) log through the same sink as everything else.
type SlogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
}

// NewSlogHandler creates a slog.Handler wrapping the global zerolog logger.
func NewSlogHandler() *SlogHandler {
	return &SlogHandler{logger: Logger()}
}

// Enabled reports whether the handler handles records at the given level.
func (h *SlogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= slogToZerologLevel(level)
}

// Handle writes the record through zerolog.
//
//nolint:gocritic // slog.Record is passed by value per slog.Handler interface
func (h *SlogHandler) Handle(_ context.Context, record slog.Record) error {
	var event *zerolog.Event
	switch record.Level {
	case slog.LevelDebug:
		event = h.logger.Debug()
	case slog.LevelWarn:
		event = h.logger.Warn()
	case slog.LevelError:
		event = h.logger.Error()
	default:
		event = h.logger.Info()
	}

	for _, attr := range h.attrs {
		event = addAttr(event, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = addAttr(event, attr)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a new Handler with the given attributes appended.
func (h *SlogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &SlogHandler{logger: h.logger, attrs: merged}
}

// WithGroup returns the handler unchanged; group nesting is flattened.
func (h *SlogHandler) WithGroup(string) slog.Handler {
	return h
}

func addAttr(event *zerolog.Event, attr slog.Attr) *zerolog.Event {
	switch attr.Value.Kind() {
	case slog.KindString:
		return event.Str(attr.Key, attr.Value.String())
	case slog.KindInt64:
		return event.Int64(attr.Key, attr.Value.Int64())
	case slog.KindBool:
		return event.Bool(attr.Key, attr.Value.Bool())
	case slog.KindDuration:
		return event.Dur(attr.Key, attr.Value.Duration())
	case slog.KindTime:
		return event.Time(attr.Key, attr.Value.Time())
	case slog.KindFloat64:
		return event.Float64(attr.Key, attr.Value.Float64())
	default:
		return event.Str(attr.Key, fmt.Sprint(attr.Value.Any()))
	}
}

func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level <= slog.LevelDebug:
		return zerolog.DebugLevel
	case level <= slog.LevelInfo:
		return zerolog.InfoLevel
	case level <= slog.LevelWarn:
		return zerolog.WarnLevel
	default:
		return zerolog.ErrorLevel
	}
}
