// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logging selects a [slog.Handler] by format string, grounded
// on the teacher ecosystem's log/log.go CreateHandlerWithStrings /
// CreateHandler split. shmipc has no CLI (§6 of the core's scope is
// explicit about this), so callers reach this through functional
// options rather than flag parsing.
package logging

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Format selects the slog handler's output encoding.
type Format string

const (
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
)

// ErrUnknownLogFormat indicates an unrecognized format string.
var ErrUnknownLogFormat = errors.New("logging: unknown log format")

// ErrUnknownLogLevel indicates an unrecognized level string.
var ErrUnknownLogLevel = errors.New("logging: unknown log level")

// CreateHandlerWithStrings parses level and format strings and builds
// the matching handler.
func CreateHandlerWithStrings(w io.Writer, level, format string) (slog.Handler, error) {
	lvl, err := GetLevel(level)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	fmtv, err := GetFormat(format)
	if err != nil {
		return nil, fmt.Errorf("logging: %w", err)
	}
	return CreateHandler(w, lvl, fmtv), nil
}

// CreateHandler builds a [slog.Handler] for the given level and format,
// with source location attached (matching the teacher's default).
func CreateHandler(w io.Writer, lvl slog.Level, format Format) slog.Handler {
	opts := &slog.HandlerOptions{AddSource: true, Level: lvl}
	switch format {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	case FormatLogfmt:
		return slog.NewTextHandler(w, opts)
	}
	return nil
}

// GetLevel parses a level string into a [slog.Level].
func GetLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "error":
		return slog.LevelError, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	}
	return 0, ErrUnknownLogLevel
}

// GetFormat parses a format string into a [Format].
func GetFormat(format string) (Format, error) {
	f := Format(strings.ToLower(format))
	if f == FormatJSON || f == FormatLogfmt {
		return f, nil
	}
	return "", ErrUnknownLogFormat
}
