// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log

import "fmt"

// Helper wraps a Logger with printf-style convenience methods, the way
// parsers and the resolver actually want to call into the logging layer.
type Helper struct {
	logger Logger
}

// NewHelper returns a Helper backed by logger.
func NewHelper(logger Logger) *Helper {
	return &Helper{logger: logger}
}

// Debugf logs at LevelDebug.
func (h *Helper) Debugf(format string, a ...interface{}) {
	_ = h.logger.Log(LevelDebug, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Infof logs at LevelInfo.
func (h *Helper) Infof(format string, a ...interface{}) {
	_ = h.logger.Log(LevelInfo, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Warnf logs at LevelWarn.
func (h *Helper) Warnf(format string, a ...interface{}) {
	_ = h.logger.Log(LevelWarn, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Errorf logs at LevelError.
func (h *Helper) Errorf(format string, a ...interface{}) {
	_ = h.logger.Log(LevelError, DefaultMessageKey, fmt.Sprintf(format, a...))
}

// Debug logs at LevelDebug without format args.
func (h *Helper) Debug(a ...interface{}) {
	_ = h.logger.Log(LevelDebug, DefaultMessageKey, fmt.Sprint(a...))
}

// Info logs at LevelInfo without format args.
func (h *Helper) Info(a ...interface{}) {
	_ = h.logger.Log(LevelInfo, DefaultMessageKey, fmt.Sprint(a...))
}

// Warn logs at LevelWarn without format args.
func (h *Helper) Warn(a ...interface{}) {
	_ = h.logger.Log(LevelWarn, DefaultMessageKey, fmt.Sprint(a...))
}

// Error logs at LevelError without format args.
func (h *Helper) Error(a ...interface{}) {
	_ = h.logger.Log(LevelError, DefaultMessageKey, fmt.Sprint(a...))
}
