// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log

import "fmt"

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// FilterLevel sets the minimum level a Filter lets through. Records below
// this level are dropped before they reach the wrapped Logger.
func FilterLevel(level Level) FilterOption {
	return func(f *Filter) {
		f.level = level
	}
}

// FilterKey redacts the named keys, replacing their values with "***".
func FilterKey(keys ...string) FilterOption {
	return func(f *Filter) {
		for _, k := range keys {
			f.key[k] = struct{}{}
		}
	}
}

// Filter is a Logger that drops records below a minimum level and redacts
// a configurable set of keys, so a caller can share one sink across
// components with different verbosity and sensitivity needs.
type Filter struct {
	logger Logger
	level  Level
	key    map[string]struct{}
}

// NewFilter wraps logger with the given options.
func NewFilter(logger Logger, opts ...FilterOption) *Filter {
	f := &Filter{
		logger: logger,
		level:  LevelDebug,
		key:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Log implements Logger.
func (f *Filter) Log(level Level, keyvals ...interface{}) error {
	if level < f.level {
		return nil
	}
	if len(f.key) > 0 {
		for i := 0; i < len(keyvals); i += 2 {
			if _, ok := f.key[fmt.Sprint(keyvals[i])]; ok && i+1 < len(keyvals) {
				keyvals[i+1] = "***"
			}
		}
	}
	return f.logger.Log(level, keyvals...)
}
