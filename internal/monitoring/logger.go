// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package monitoring

import (
	"log"
	"sync/atomic"
)

// Level is a log severity threshold
type Level int32

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

type logFunc func(format string, v ...interface{})

// logf holds the package logger. The poll worker and HTTP handlers log
// concurrently with SetLogger, so it is swapped atomically.
var logf atomic.Pointer[logFunc]

var level atomic.Int32

func init() {
	SetLogger(log.Printf)
	level.Store(int32(LevelInfo))
}

// SetLogger replaces the package logger. Passing nil will set a no-op logger.
// It is safe to call while other goroutines are logging.
func SetLogger(f func(format string, v ...interface{})) {
	if f == nil {
		f = func(string, ...interface{}) {}
	}
	lf := logFunc(f)
	logf.Store(&lf)
}

// Logf writes a message through the current logger without a level prefix
func Logf(format string, v ...interface{}) {
	(*logf.Load())(format, v...)
}

// SetLevel sets the minimum level that is written
func SetLevel(l Level) {
	level.Store(int32(l))
}

// Enabled reports whether messages at l are written
func Enabled(l Level) bool {
	return l >= Level(level.Load())
}

func logAt(l Level, prefix, format string, v ...interface{}) {
	if !Enabled(l) {
		return
	}
	(*logf.Load())(prefix+format, v...)
}

func Debugf(format string, v ...interface{}) { logAt(LevelDebug, "[DEBUG] ", format, v...) }
func Infof(format string, v ...interface{})  { logAt(LevelInfo, "[INFO] ", format, v...) }
func Warnf(format string, v ...interface{})  { logAt(LevelWarn, "[WARN] ", format, v...) }
func Errorf(format string, v ...interface{}) { logAt(LevelError, "[ERROR] ", format, v...) }
