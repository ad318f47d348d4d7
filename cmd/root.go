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

// cryptofsctl stands in for the public filesystem-provider façade the
// core's specification treats as an external collaborator (URI parsing,
// OS-level mounting): it opens a vault and runs one cleartext-path
// operation against it, without either of those.
//
// Usage:
//
//	cryptofsctl [flags] <vault-root> <command> [args...]
package cmd

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dhaase/cryptofs"
	"github.com/dhaase/cryptofs/cfg"
	"github.com/dhaase/cryptofs/internal/logger"
)

var (
	bindErr      error
	unmarshalErr error
	Config       cfg.Config
)

var rootCmd = &cobra.Command{
	Use:   "cryptofsctl [flags] <vault-root> <command> [args...]",
	Short: "Inspect and manipulate an encrypting vault from the command line",
	Long: `cryptofsctl opens an encrypting vault with a passphrase and runs one
operation against its cleartext path namespace: init, ls, cat, write,
mkdir, ln, mv, or rm.`,
	Args:         cobra.MinimumNArgs(2),
	SilenceUsage: true,
	RunE:         runRoot,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	bindErr = cfg.BindFlags(rootCmd.Flags())
}

func initConfig() {
	Config = cfg.GetDefaultConfig()
	unmarshalErr = viper.Unmarshal(&Config)
}

func pepperBytes() ([]byte, error) {
	if Config.Pepper == "" {
		return nil, nil
	}
	return base64.StdEncoding.DecodeString(Config.Pepper)
}

func runRoot(cmd *cobra.Command, args []string) error {
	if bindErr != nil {
		return bindErr
	}
	if unmarshalErr != nil {
		return unmarshalErr
	}
	if err := cfg.ValidateConfig(&Config); err != nil {
		return err
	}
	if err := logger.Init(Config.Logging); err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer logger.Close()

	root := args[0]
	sub := args[1]
	rest := args[2:]

	pepper, err := pepperBytes()
	if err != nil {
		return fmt.Errorf("decoding pepper: %w", err)
	}

	if sub == "init" {
		vfs, err := cryptofs.Initialize(root, Config.Passphrase, pepper)
		if err != nil {
			return err
		}
		return vfs.Close(context.Background())
	}

	vfs, err := cryptofs.Open(root, Config.Passphrase, pepper)
	if err != nil {
		return err
	}
	defer vfs.Close(context.Background())

	switch sub {
	case "ls":
		return runLs(vfs, rest)
	case "cat":
		return runCat(vfs, rest)
	case "write":
		return runWrite(vfs, rest)
	case "mkdir":
		return runMkdir(vfs, rest)
	case "ln":
		return runLn(vfs, rest)
	case "mv":
		return runMv(vfs, rest)
	case "rm":
		return runRm(vfs, rest)
	default:
		return fmt.Errorf("unknown command %q", sub)
	}
}

func runLs(vfs *cryptofs.Filesystem, args []string) error {
	dir := "/"
	if len(args) > 0 {
		dir = args[0]
	}
	entries, err := vfs.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Printf("%-10s %10d  %s\n", e.Type, e.Size, e.Name)
	}
	return nil
}

type readerAt struct{ f *cryptofs.File }

func (r readerAt) ReadAt(p []byte, off int64) (int, error) { return r.f.ReadAt(p, off) }

func runCat(vfs *cryptofs.Filesystem, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("cat: expected exactly one path")
	}
	f, err := vfs.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close(context.Background())

	_, err = io.Copy(os.Stdout, io.NewSectionReader(readerAt{f}, 0, f.Size()))
	return err
}

func runWrite(vfs *cryptofs.Filesystem, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("write: expected exactly one path; content is read from stdin")
	}
	content, err := io.ReadAll(os.Stdin)
	if err != nil {
		return err
	}
	f, err := vfs.Create(args[0])
	if err != nil {
		return err
	}
	defer f.Close(context.Background())

	_, err = f.WriteAt(content, 0)
	return err
}

func runMkdir(vfs *cryptofs.Filesystem, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("mkdir: expected exactly one path")
	}
	return vfs.Mkdir(args[0])
}

func runLn(vfs *cryptofs.Filesystem, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("ln: expected <target> <link-path>")
	}
	return vfs.Symlink(args[0], args[1])
}

func runMv(vfs *cryptofs.Filesystem, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("mv: expected <old-path> <new-path>")
	}
	return vfs.Rename(args[0], args[1])
}

func runRm(vfs *cryptofs.Filesystem, args []string) error {
	if len(args) != 1 {
		return fmt.Errorf("rm: expected exactly one path")
	}
	return vfs.Remove(args[0])
}
