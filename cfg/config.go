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
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config is the complete, validated set of settings a vault mount or
// cryptofsctl invocation runs with. Every field has a default in
// GetDefaultConfig, and every field except the LogRotate settings has a
// corresponding flag bound in BindFlags (the passphrase can also come from
// the CRYPTOFS_PASSPHRASE environment variable); the LogRotate settings
// have no flag. The mapstructure tags are the keys viper.Unmarshal matches.
type Config struct {
	Passphrase string `yaml:"passphrase"`

	Pepper string `yaml:"pepper"`

	MasterKeyFilename string `yaml:"master-key-filename" mapstructure:"master-key-filename"`

	ReadOnly bool `yaml:"read-only" mapstructure:"read-only"`

	MigrationEnabled bool `yaml:"migration-enabled" mapstructure:"migration-enabled"`

	Logging LoggingConfig `yaml:"logging"`
}

type LoggingConfig struct {
	Severity string `yaml:"severity"`

	Format string `yaml:"format"`

	FilePath string `yaml:"file-path" mapstructure:"file-path"`

	LogRotate LogRotateLoggingConfig `yaml:"log-rotate"`
}

type LogRotateLoggingConfig struct {
	MaxFileSizeMb int `yaml:"max-file-size-mb"`

	BackupFileCount int `yaml:"backup-file-count"`

	Compress bool `yaml:"compress"`
}

// BindFlags registers every flag this binary accepts and wires each one to
// its viper config key, so that either a flag or a config file entry (or
// both, flag wins) can set it.
func BindFlags(flagSet *pflag.FlagSet) error {
	var err error

	flagSet.StringP("passphrase", "p", "", "Vault passphrase. Prefer CRYPTOFS_PASSPHRASE over passing this on the command line.")
	if err = viper.BindPFlag("passphrase", flagSet.Lookup("passphrase")); err != nil {
		return err
	}
	if err = viper.BindEnv("passphrase", "CRYPTOFS_PASSPHRASE"); err != nil {
		return err
	}

	flagSet.String("pepper", "", "Additional secret mixed into key derivation alongside the passphrase.")
	if err = viper.BindPFlag("pepper", flagSet.Lookup("pepper")); err != nil {
		return err
	}

	flagSet.String("master-key-filename", DefaultMasterKeyFilename, "Name of the master key file inside the vault directory. Only validated: vaults are always created and opened with masterkey.cryptomator.")
	if err = viper.BindPFlag("master-key-filename", flagSet.Lookup("master-key-filename")); err != nil {
		return err
	}

	flagSet.BoolP("read-only", "r", false, "Read-only mode. Accepted and validated only: writes are not blocked when it is set.")
	if err = viper.BindPFlag("read-only", flagSet.Lookup("read-only")); err != nil {
		return err
	}

	flagSet.Bool("migration-enabled", false, "Migration mode. Accepted and validated only: no older format version is detected or migrated.")
	if err = viper.BindPFlag("migration-enabled", flagSet.Lookup("migration-enabled")); err != nil {
		return err
	}

	flagSet.String("log-severity", DefaultLoggingConfig.Severity, "One of TRACE, DEBUG, INFO, WARNING, ERROR, OFF.")
	if err = viper.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-format", DefaultLoggingConfig.Format, "One of text, json.")
	if err = viper.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Write logs to this file instead of stderr.")
	if err = viper.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	return nil
}
