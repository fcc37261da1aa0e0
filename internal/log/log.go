// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package log provides the small leveled-logging facade the pe package and
// the resolver are built against. It mirrors the shape of a Kratos-style
// Logger: a single Log(level, keyvals...) method that every adapter,
// filter and helper is layered on top of.
package log

import "context"

// Level is the log severity.
type Level int8

// The available log levels, ordered from least to most severe.
const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the level name used by the standard text encoder.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Logger is the minimal interface every adapter implements.
type Logger interface {
	Log(level Level, keyvals ...interface{}) error
}

// Valuer is resolved lazily at the moment a record is emitted. Useful for
// values such as a request ID pulled from a context.Context.
type Valuer func(ctx context.Context) interface{}

// Key/value slots reserved by convention for log callers that want to
// surface the current operation.
const (
	DefaultMessageKey = "msg"
)
