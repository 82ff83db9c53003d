// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package shmipc

import (
	"log/slog"
	"os"

	"code.hybscloud.com/shmipc/internal/logging"
)

const (
	// defaultCapacity is the ring slot count used when WithCapacity is
	// not supplied, matching §4.D's "small power of two" guidance.
	defaultCapacity = 32
	// defaultInlineSize is the per-slot inline payload capacity in
	// bytes, large enough to hold elementHeaderSize plus a reasonably
	// sized chunk without forcing most messages to split.
	defaultInlineSize = 256
)

// Role selects how a handle attaches to a channel (§3's Channel
// attachment / §4.H's Connect).
type Role uint8

const (
	RoleSender Role = iota
	RoleReceiver
	RoleBoth
)

// options configures a channel's construction. Assembled by functional
// options, matching the teacher's fluent-builder spirit but expressed
// the way a library with no compile-time algorithm selection (unlike
// lfq's generic Builder) composes configuration: plain functions over
// a private struct.
type options struct {
	capacity       int
	inlineSize     int
	prefix         string
	role           Role
	logger         *slog.Logger
	loggerExplicit bool
	logLevel       string
	logFormat      string
}

func defaultOptions() options {
	return options{
		capacity:   defaultCapacity,
		inlineSize: defaultInlineSize,
		role:       RoleBoth,
		logLevel:   "info",
		logFormat:  string(logging.FormatLogfmt),
	}
}

// resolveLogger finalizes the logger to use once every [Option] has
// run: an explicit [WithLogger] wins outright, otherwise a handler is
// built from the (possibly overridden) level/format pair via
// internal/logging, falling back to [slog.Default] if either string
// is unrecognized.
func (o *options) resolveLogger() {
	if o.loggerExplicit {
		return
	}
	h, err := logging.CreateHandlerWithStrings(os.Stderr, o.logLevel, o.logFormat)
	if err != nil {
		o.logger = slog.Default()
		return
	}
	o.logger = slog.New(h)
}

// Option configures an [OpenRoute], [OpenChannel] or [OpenUnicast] call.
type Option func(*options)

// WithCapacity overrides the ring's slot count. It is rounded up to
// the next power of two, with a minimum of 2, matching §3's
// `capacity >= 2` invariant.
func WithCapacity(capacity int) Option {
	return func(o *options) { o.capacity = roundToPow2(capacity) }
}

// WithInlineSize overrides the per-slot inline payload capacity used
// to size [Chan.Send]'s chunking.
func WithInlineSize(n int) Option {
	return func(o *options) { o.inlineSize = n }
}

// WithPrefix widens the derived region/primitive names with a
// caller-supplied scope prefix (§6), e.g. to separate a machine-global
// namespace from a session-local one. The core treats prefix as an
// opaque string.
func WithPrefix(prefix string) Option {
	return func(o *options) { o.prefix = prefix }
}

// WithRole sets the role this handle connects as once Connect is
// called implicitly by the Open* constructors.
func WithRole(role Role) Option {
	return func(o *options) { o.role = role }
}

// WithLogger overrides the [slog.Logger] the channel logs to, taking
// precedence over [WithLogLevel]/[WithLogFormat]. The channel logs
// sends that fail and orphan a message, and in-flight messages that
// Disconnect discards. Errors on the connect and teardown paths are
// returned to the caller and are not logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		if logger != nil {
			o.logger = logger
			o.loggerExplicit = true
		}
	}
}

// WithLogLevel sets the minimum level ("debug", "info", "warn",
// "error") of the default handler built when [WithLogger] is not
// used. Invalid values are ignored at resolution time in favor of
// [slog.Default].
func WithLogLevel(level string) Option {
	return func(o *options) { o.logLevel = level }
}

// WithLogFormat sets the encoding ("json" or "logfmt") of the default
// handler built when [WithLogger] is not used.
func WithLogFormat(format string) Option {
	return func(o *options) { o.logFormat = format }
}

func roundToPow2(n int) int {
	if n < 2 {
		return 2
	}
	n--
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	return n + 1
}
