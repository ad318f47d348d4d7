// Copyright 2025 Google LLC
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

// Package logger provides the leveled, structured logger used throughout
// the core: a thin layer over log/slog that adds a TRACE level below
// Debug, an OFF level above Error, and optional file rotation via
// lumberjack.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dhaase/cryptofs/cfg"
)

// loggerFactory owns the writer and level backing defaultLogger, so that
// SetFormat can rebuild the handler around the same
// destination without callers having to re-Init.
type loggerFactory struct {
	writer       io.Writer
	rotator      *lumberjack.Logger
	format       string
	programLevel *slog.LevelVar
}

func (f *loggerFactory) handler() slog.Handler {
	opts := &slog.HandlerOptions{
		Level: f.programLevel,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				level := a.Value.Any().(slog.Level)
				return slog.String("severity", severityName(level))
			}
			return a
		},
	}

	if f.format == cfg.FormatJSON {
		return slog.NewJSONHandler(f.writer, opts)
	}
	return slog.NewTextHandler(f.writer, opts)
}

var (
	defaultFactory = &loggerFactory{
		writer:       os.Stderr,
		format:       cfg.FormatText,
		programLevel: new(slog.LevelVar),
	}
	defaultLogger = slog.New(defaultFactory.handler())
)

// Init configures the package-level logger from a validated LoggingConfig:
// severity, output format, and (if FilePath is set) rotation via
// lumberjack instead of writing straight to stderr.
func Init(config cfg.LoggingConfig) error {
	setLoggingLevel(config.Severity, defaultFactory.programLevel)
	defaultFactory.format = config.Format

	if config.FilePath != "" {
		rotator := &lumberjack.Logger{
			Filename:   config.FilePath,
			MaxSize:    config.LogRotate.MaxFileSizeMb,
			MaxBackups: config.LogRotate.BackupFileCount,
			Compress:   config.LogRotate.Compress,
		}
		defaultFactory.rotator = rotator
		defaultFactory.writer = rotator
	} else {
		defaultFactory.rotator = nil
		defaultFactory.writer = os.Stderr
	}

	defaultLogger = slog.New(defaultFactory.handler())
	return nil
}

// SetFormat switches the output format ("text" or "json") without
// touching the destination or level.
func SetFormat(format string) {
	defaultFactory.format = format
	defaultLogger = slog.New(defaultFactory.handler())
}

// Close releases the rotating log file, if one is in use. Safe to call
// even if Init was never called with a FilePath.
func Close() error {
	if defaultFactory.rotator == nil {
		return nil
	}
	return defaultFactory.rotator.Close()
}

func logf(level slog.Level, format string, args ...interface{}) {
	if !defaultLogger.Enabled(context.Background(), level) {
		return
	}
	defaultLogger.Log(context.Background(), level, fmt.Sprintf(format, args...))
}

func Tracef(format string, args ...interface{}) { logf(LevelTrace, format, args...) }
func Debugf(format string, args ...interface{}) { logf(LevelDebug, format, args...) }
func Infof(format string, args ...interface{})  { logf(LevelInfo, format, args...) }
func Warnf(format string, args ...interface{})  { logf(LevelWarn, format, args...) }
func Errorf(format string, args ...interface{}) { logf(LevelError, format, args...) }
