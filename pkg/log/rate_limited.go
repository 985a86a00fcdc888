// Copyright 2026 The gVisor Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package log

import (
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// rateLimitedLogger forwards at most one message per interval. Dropped
// messages are counted and the count is appended to the next message that
// gets through.
type rateLimitedLogger struct {
	// logger is the destination; nil means the global logger at the time of
	// each call, so SetTarget after construction is honored.
	logger Logger
	limit  *rate.Limiter

	suppressed atomic.Uint64
}

// admit reports whether a message may be logged now, and if so returns it
// with a note of the messages dropped since the last one.
func (rl *rateLimitedLogger) admit(format string, v []any) (string, []any, bool) {
	if !rl.limit.Allow() {
		rl.suppressed.Add(1)
		return "", nil, false
	}
	if n := rl.suppressed.Swap(0); n > 0 {
		format += " (%d similar messages suppressed)"
		v = append(v[:len(v):len(v)], n)
	}
	return format, v, true
}

// emit attributes the message to the caller of the exported method when the
// destination is a BasicLogger.
func (rl *rateLimitedLogger) emit(level Level, format string, v []any) {
	var l Logger = rl.logger
	if l == nil {
		l = Log()
	}
	if bl, ok := l.(*BasicLogger); ok {
		switch level {
		case Debug:
			bl.DebugfAtDepth(2, format, v...)
		case Info:
			bl.InfofAtDepth(2, format, v...)
		default:
			bl.WarningfAtDepth(2, format, v...)
		}
		return
	}
	switch level {
	case Debug:
		l.Debugf(format, v...)
	case Info:
		l.Infof(format, v...)
	default:
		l.Warningf(format, v...)
	}
}

func (rl *rateLimitedLogger) Debugf(format string, v ...any) {
	if !rl.IsLogging(Debug) {
		return
	}
	if format, v, ok := rl.admit(format, v); ok {
		rl.emit(Debug, format, v)
	}
}

func (rl *rateLimitedLogger) Infof(format string, v ...any) {
	if !rl.IsLogging(Info) {
		return
	}
	if format, v, ok := rl.admit(format, v); ok {
		rl.emit(Info, format, v)
	}
}

func (rl *rateLimitedLogger) Warningf(format string, v ...any) {
	if format, v, ok := rl.admit(format, v); ok {
		rl.emit(Warning, format, v)
	}
}

func (rl *rateLimitedLogger) IsLogging(level Level) bool {
	if rl.logger == nil {
		return IsLogging(level)
	}
	return rl.logger.IsLogging(level)
}

// BasicRateLimitedLogger returns a Logger that logs to the global logger no
// more than once per the provided duration. The global logger is looked up
// on every call.
func BasicRateLimitedLogger(every time.Duration) Logger {
	return &rateLimitedLogger{limit: rate.NewLimiter(rate.Every(every), 1)}
}

// RateLimitedLogger returns a Logger that logs to the provided logger no more
// than once per the provided duration.
func RateLimitedLogger(logger Logger, every time.Duration) Logger {
	return &rateLimitedLogger{
		logger: logger,
		limit:  rate.NewLimiter(rate.Every(every), 1),
	}
}
