/*
 * Copyright 2026 The Anchorchain Authors.
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

// Package log wraps logrus so call sites never import it directly. Call
// sites use the package-level helpers below, which all log through
// logrus's standard logger; no component is handed a logger at
// construction.
package log

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Fields is an alias for logrus.Fields, passed to WithFields.
type Fields = logrus.Fields

// Entry is an alias for logrus.Entry.
type Entry = logrus.Entry

// Level is an alias for logrus.Level.
type Level = logrus.Level

// Level constants re-exported so callers don't import logrus for these.
const (
	PanicLevel = logrus.PanicLevel
	FatalLevel = logrus.FatalLevel
	ErrorLevel = logrus.ErrorLevel
	WarnLevel  = logrus.WarnLevel
	InfoLevel  = logrus.InfoLevel
	DebugLevel = logrus.DebugLevel
)

// New returns a fresh logger, used by components that want an isolated
// logger instance (e.g. one per worker subprocess) instead of the package
// standard logger.
func New() *logrus.Logger {
	return logrus.New()
}

// SetOutput sets the standard logger's output.
func SetOutput(out io.Writer) { logrus.SetOutput(out) }

// SetLevel sets the standard logger's level.
func SetLevel(level Level) { logrus.SetLevel(level) }

// ParseLevel parses a level string, e.g. from an environment variable.
func ParseLevel(lvl string) (Level, error) { return logrus.ParseLevel(lvl) }

// WithField creates an entry from the standard logger with a single field.
func WithField(key string, value interface{}) *Entry {
	return logrus.WithField(key, value)
}

// WithFields creates an entry from the standard logger with multiple fields.
func WithFields(fields Fields) *Entry {
	return logrus.WithFields(fields)
}

// WithError creates an entry from the standard logger with an error field.
func WithError(err error) *Entry {
	return logrus.WithError(err)
}

// Debug logs at debug level on the standard logger.
func Debug(args ...interface{}) { logrus.Debug(args...) }

// Info logs at info level on the standard logger.
func Info(args ...interface{}) { logrus.Info(args...) }

// Warn logs at warn level on the standard logger.
func Warn(args ...interface{}) { logrus.Warn(args...) }

// Error logs at error level on the standard logger.
func Error(args ...interface{}) { logrus.Error(args...) }

// Fatal logs at fatal level and exits, used only for pool-init failure and
// irrecoverable protocol panics per the exit-code policy.
func Fatal(args ...interface{}) { logrus.Fatal(args...) }

// Debugf logs a formatted message at debug level.
func Debugf(format string, args ...interface{}) { logrus.Debugf(format, args...) }

// Infof logs a formatted message at info level.
func Infof(format string, args ...interface{}) { logrus.Infof(format, args...) }

// Warnf logs a formatted message at warn level.
func Warnf(format string, args ...interface{}) { logrus.Warnf(format, args...) }

// Errorf logs a formatted message at error level.
func Errorf(format string, args ...interface{}) { logrus.Errorf(format, args...) }
