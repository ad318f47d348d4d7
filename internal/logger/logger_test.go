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

import (
	"bytes"
	"log/slog"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/suite"

	"github.com/dhaase/cryptofs/cfg"
)

const (
	textInfoString  = `severity=INFO msg=www.infoExample.com`
	jsonInfoString  = `"severity":"INFO"`
	textErrorString = `severity=ERROR msg=www.errorExample.com`
)

type LoggerTest struct {
	suite.Suite
}

func TestLoggerSuite(t *testing.T) {
	suite.Run(t, new(LoggerTest))
}

func redirectTo(buf *bytes.Buffer, severity, format string) {
	defaultFactory = &loggerFactory{
		writer:       buf,
		format:       format,
		programLevel: new(slog.LevelVar),
	}
	setLoggingLevel(severity, defaultFactory.programLevel)
	defaultLogger = slog.New(defaultFactory.handler())
}

func (t *LoggerTest) TestLevelOffSuppressesEverything() {
	var buf bytes.Buffer
	redirectTo(&buf, cfg.OFF, cfg.FormatText)

	Tracef("x")
	Debugf("x")
	Infof("x")
	Warnf("x")
	Errorf("x")

	assert.Empty(t.T(), buf.String())
}

func (t *LoggerTest) TestLevelErrorOnlyLogsError() {
	var buf bytes.Buffer
	redirectTo(&buf, cfg.ERROR, cfg.FormatText)

	Infof("www.infoExample.com")
	assert.Empty(t.T(), buf.String())

	buf.Reset()
	Errorf("www.errorExample.com")
	assert.Contains(t.T(), buf.String(), textErrorString)
}

func (t *LoggerTest) TestLevelTraceLogsEverything() {
	var buf bytes.Buffer
	redirectTo(&buf, cfg.TRACE, cfg.FormatText)

	Tracef("www.traceExample.com")
	assert.Contains(t.T(), buf.String(), "severity=TRACE")
}

func (t *LoggerTest) TestTextFormat() {
	var buf bytes.Buffer
	redirectTo(&buf, cfg.INFO, cfg.FormatText)

	Infof("www.infoExample.com")
	assert.Regexp(t.T(), regexp.MustCompile(`time=.*`+regexp.QuoteMeta(textInfoString)), buf.String())
}

func (t *LoggerTest) TestJSONFormat() {
	var buf bytes.Buffer
	redirectTo(&buf, cfg.INFO, cfg.FormatJSON)

	Infof("www.infoExample.com")
	assert.Contains(t.T(), buf.String(), jsonInfoString)
}

func (t *LoggerTest) TestSetFormatRebuildsHandler() {
	var buf bytes.Buffer
	redirectTo(&buf, cfg.INFO, cfg.FormatText)

	SetFormat(cfg.FormatJSON)
	Infof("www.infoExample.com")
	assert.Contains(t.T(), buf.String(), jsonInfoString)
}

func TestSetLoggingLevel(t *testing.T) {
	testData := []struct {
		severity string
		expected slog.Level
	}{
		{cfg.TRACE, LevelTrace},
		{cfg.DEBUG, LevelDebug},
		{cfg.INFO, LevelInfo},
		{cfg.WARNING, LevelWarn},
		{cfg.ERROR, LevelError},
		{cfg.OFF, LevelOff},
	}

	for _, td := range testData {
		lv := new(slog.LevelVar)
		setLoggingLevel(td.severity, lv)
		assert.Equal(t, td.expected, lv.Level())
	}
}

func TestInitWritesToRotatingFile(t *testing.T) {
	dir := t.TempDir()
	cfgg := cfg.LoggingConfig{
		Severity: cfg.DEBUG,
		Format:   cfg.FormatText,
		FilePath: dir + "/log.txt",
		LogRotate: cfg.LogRotateLoggingConfig{
			MaxFileSizeMb:   10,
			BackupFileCount: 1,
		},
	}

	assert.NoError(t, Init(cfgg))
	Infof("hello")
	assert.NoError(t, Close())
}
