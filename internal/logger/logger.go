/*
 * Copyright 2025 SREDiag Authors
 * Copyright 2023 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package logger is the leveled diagnostic logger shared by the bounded
// buffer packages and executables. Protocol output (produced and consumed
// items) does not go through it.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valyala/bytebufferpool"
)

// Level orders log severities. Messages below the process level are dropped.
type Level int32

const (
	LevelTrace Level = iota
	LevelDebug
	LevelInfo
	LevelWarn
	LevelError
	LevelNoPrint
)

// EnvLevel names the environment variable read at startup.
const EnvLevel = "BBUF_LOG_LEVEL"

var (
	level   atomic.Int32
	noColor = os.Getenv("NO_COLOR") != ""

	magenta = string([]byte{27, 91, 57, 53, 109}) // Trace
	green   = string([]byte{27, 91, 57, 50, 109}) // Debug
	blue    = string([]byte{27, 91, 57, 52, 109}) // Info
	yellow  = string([]byte{27, 91, 57, 51, 109}) // Warn
	red     = string([]byte{27, 91, 57, 49, 109}) // Error
	reset   = string([]byte{27, 91, 48, 109})

	colors = []string{
		magenta,
		green,
		blue,
		yellow,
		red,
	}

	levelName = []string{
		"Trace",
		"Debug",
		"Info",
		"Warn",
		"Error",
	}
)

func init() {
	level.Store(int32(LevelWarn))
	if v := os.Getenv(EnvLevel); v != "" {
		if l, err := ParseLevel(v); err == nil {
			SetLevel(l)
		}
	}
}

// ParseLevel accepts a level name ("trace" … "error", "none") or its number.
func ParseLevel(s string) (Level, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < int(LevelTrace) || n > int(LevelNoPrint) {
			return 0, fmt.Errorf("log level %d out of range", n)
		}
		return Level(n), nil
	}
	switch strings.ToLower(s) {
	case "none", "off":
		return LevelNoPrint, nil
	case "warning":
		return LevelWarn, nil
	}
	for i, name := range levelName {
		if strings.EqualFold(name, s) {
			return Level(i), nil
		}
	}
	return 0, fmt.Errorf("unknown log level %q", s)
}

// SetLevel changes the process-wide level. The default is Warn; the
// BBUF_LOG_LEVEL environment variable also sets it.
func SetLevel(l Level) {
	if l >= LevelTrace && l <= LevelNoPrint {
		level.Store(int32(l))
	}
}

// GetLevel returns the process-wide level.
func GetLevel() Level {
	return Level(level.Load())
}

// Logger writes one prefixed line per message.
type Logger struct {
	name      string
	out       io.Writer
	callDepth int
	mu        sync.Mutex
}

// New returns a logger tagged with name. A nil out writes to stderr.
func New(name string, out io.Writer) *Logger {
	if out == nil {
		out = os.Stderr
	}
	return &Logger{
		name:      name,
		out:       out,
		callDepth: 4,
	}
}

func (l *Logger) Errorf(format string, a ...interface{}) { l.output(LevelError, format, a...) }

func (l *Logger) Warnf(format string, a ...interface{}) { l.output(LevelWarn, format, a...) }

func (l *Logger) Infof(format string, a ...interface{}) { l.output(LevelInfo, format, a...) }

func (l *Logger) Debugf(format string, a ...interface{}) { l.output(LevelDebug, format, a...) }

func (l *Logger) Tracef(format string, a ...interface{}) { l.output(LevelTrace, format, a...) }

func (l *Logger) output(lv Level, format string, a ...interface{}) {
	if GetLevel() > lv {
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	l.prefix(buf, lv)
	_, _ = fmt.Fprintf(buf, format, a...)
	if !noColor {
		_, _ = buf.WriteString(reset)
	}
	_ = buf.WriteByte('\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.out.Write(buf.B); err != nil {
		fmt.Fprintf(os.Stderr, "logger write failed: %v\n", err)
	}
}

func (l *Logger) prefix(buf *bytebufferpool.ByteBuffer, lv Level) {
	if !noColor {
		_, _ = buf.WriteString(colors[lv])
	}
	_, _ = buf.WriteString(levelName[lv])
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(time.Now().Format("2006-01-02 15:04:05.999999"))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(l.location())
	_ = buf.WriteByte(' ')
	if l.name != "" {
		_, _ = buf.WriteString(l.name)
		_ = buf.WriteByte(' ')
	}
}

func (l *Logger) location() string {
	_, file, line, ok := runtime.Caller(l.callDepth)
	if !ok {
		file = "???"
		line = 0
	}
	file = filepath.Base(file)
	return file + ":" + strconv.Itoa(line)
}
