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

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func validConfig() Config {
	c := GetDefaultConfig()
	c.Passphrase = "correct horse battery staple"
	return c
}

func TestValidateConfig(t *testing.T) {
	testCases := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "valid default config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "empty passphrase",
			mutate:  func(c *Config) { c.Passphrase = "" },
			wantErr: true,
		},
		{
			name:    "empty master key filename",
			mutate:  func(c *Config) { c.MasterKeyFilename = "" },
			wantErr: true,
		},
		{
			name:    "unknown severity",
			mutate:  func(c *Config) { c.Logging.Severity = "VERBOSE" },
			wantErr: true,
		},
		{
			name:    "unknown format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "non-positive max file size",
			mutate:  func(c *Config) { c.Logging.LogRotate.MaxFileSizeMb = 0 },
			wantErr: true,
		},
		{
			name:    "negative backup file count",
			mutate:  func(c *Config) { c.Logging.LogRotate.BackupFileCount = -1 },
			wantErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := validConfig()
			tc.mutate(&c)

			err := ValidateConfig(&c)
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
