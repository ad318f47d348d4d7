// Copyright 2024 Google Inc. All Rights Reserved.
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

package cfg

import "fmt"

func isValidLogRotateConfig(config *LogRotateLoggingConfig) error {
	if config.MaxFileSizeMb <= 0 {
		return fmt.Errorf("max-file-size-mb should be at least 1")
	}
	if config.BackupFileCount < 0 {
		return fmt.Errorf("backup-file-count should be 0 (to retain all backup files) or a positive value")
	}
	return nil
}

func isValidSeverity(severity string) error {
	switch severity {
	case TRACE, DEBUG, INFO, WARNING, ERROR, OFF:
		return nil
	default:
		return fmt.Errorf("logging.severity must be one of TRACE, DEBUG, INFO, WARNING, ERROR, OFF, got %q", severity)
	}
}

func isValidFormat(format string) error {
	switch format {
	case FormatText, FormatJSON:
		return nil
	default:
		return fmt.Errorf("logging.format must be one of %q, %q, got %q", FormatText, FormatJSON, format)
	}
}

// ValidateConfig returns a non-nil error if the config is invalid.
func ValidateConfig(config *Config) error {
	if config.Passphrase == "" {
		return fmt.Errorf("passphrase must not be empty")
	}

	if config.MasterKeyFilename == "" {
		return fmt.Errorf("master-key-filename must not be empty")
	}

	if err := isValidSeverity(config.Logging.Severity); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}

	if err := isValidFormat(config.Logging.Format); err != nil {
		return fmt.Errorf("error parsing logging config: %w", err)
	}

	if err := isValidLogRotateConfig(&config.Logging.LogRotate); err != nil {
		return fmt.Errorf("error parsing log-rotate config: %w", err)
	}

	return nil
}
