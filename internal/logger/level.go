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

package logger

import "log/slog"

// The core five severities plus TRACE (below slog's built-in Debug, for
// the chattiest per-chunk crypto tracing) and OFF (above Error, so
// setLoggingLevel can silence the logger entirely without a separate
// on/off flag).
const (
	LevelTrace = slog.Level(-8)
	LevelDebug = slog.LevelDebug
	LevelInfo  = slog.LevelInfo
	LevelWarn  = slog.LevelWarn
	LevelError = slog.LevelError
	LevelOff   = slog.Level(12)
)

func severityName(l slog.Level) string {
	switch {
	case l < LevelDebug:
		return "TRACE"
	case l < LevelInfo:
		return "DEBUG"
	case l < LevelWarn:
		return "INFO"
	case l < LevelError:
		return "WARNING"
	default:
		return "ERROR"
	}
}

// setLoggingLevel maps one of the cfg package's severity strings onto lv.
// Unrecognized strings are treated as INFO rather than erroring, since
// this only ever runs after cfg.ValidateConfig has already rejected them.
func setLoggingLevel(severity string, lv *slog.LevelVar) {
	switch severity {
	case "TRACE":
		lv.Set(LevelTrace)
	case "DEBUG":
		lv.Set(LevelDebug)
	case "INFO":
		lv.Set(LevelInfo)
	case "WARNING":
		lv.Set(LevelWarn)
	case "ERROR":
		lv.Set(LevelError)
	case "OFF":
		lv.Set(LevelOff)
	default:
		lv.Set(LevelInfo)
	}
}
