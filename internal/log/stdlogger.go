// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package log

import (
	"fmt"
	"io"
	"log"
	"strings"
	"sync"
)

type stdLogger struct {
	log  *log.Logger
	pool *sync.Pool
}

// NewStdLogger adapts the standard library's log.Logger into a Logger,
// writing "key=value" pairs space-separated on a single line.
func NewStdLogger(w io.Writer) Logger {
	return &stdLogger{
		log: log.New(w, "", log.LstdFlags),
		pool: &sync.Pool{
			New: func() interface{} {
				return new(strings.Builder)
			},
		},
	}
}

func (l *stdLogger) Log(level Level, keyvals ...interface{}) error {
	if len(keyvals) == 0 {
		return nil
	}
	if len(keyvals)%2 != 0 {
		keyvals = append(keyvals, "MISSING_VALUE")
	}

	buf := l.pool.Get().(*strings.Builder)
	defer func() {
		buf.Reset()
		l.pool.Put(buf)
	}()

	buf.WriteString("level=")
	buf.WriteString(level.String())
	for i := 0; i < len(keyvals); i += 2 {
		_, _ = fmt.Fprintf(buf, " %v=%v", keyvals[i], keyvals[i+1])
	}

	l.log.Print(buf.String())
	return nil
}
