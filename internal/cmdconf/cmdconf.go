// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package cmdconf

import (
	"flag"
	"fmt"
	"os"
	"path"

	"import.name/confi"
)

var home = os.Getenv("HOME")

// JoinHome makes a relative path absolute by joining it with the home
// directory.  Empty string is returned if it can't be done.
func JoinHome(dir string) string {
	if dir == "" {
		return ""
	}
	if path.IsAbs(dir) {
		return dir
	}
	if home != "" {
		return path.Join(home, dir)
	}
	return ""
}

// ExpandEnv is like os.ExpandEnv, but HOME defaults to the value seen at
// startup.
func ExpandEnv(s string) string {
	return os.Expand(s, func(key string) string {
		if key == "HOME" {
			if value := os.Getenv(key); value != "" {
				return value
			}
			return home
		}
		return os.Getenv(key)
	})
}

// Options for Parse.
type Options struct {
	// Files are read before the command-line options, if they exist.  The
	// names can be absolute, or relative to home directory.
	Files []string

	// Lenient parsing reports configuration errors without failing.
	Lenient bool
}

// Parse command-line arguments into the configuration object.  The values
// pointed to by paths are expanded with ExpandEnv after parsing, so that
// configuration files and -o options may refer to environment variables.
func Parse(config any, flags *flag.FlagSet, args []string, opt Options, paths ...*string) error {
	var files []string
	for _, p := range opt.Files {
		p = JoinHome(p)
		if p != "" {
			files = append(files, p)
		}
	}

	b := confi.NewBuffer(files...)

	flags.Var(b.FileReplacer(), "F", "replace previous configuration with this file")
	flags.Var(b.FileReader(), "f", "read a configuration file")
	flags.Var(b.DirReader("*.toml"), "d", "read configuration files from a directory")
	flags.Var(b.Assigner(), "o", "set a configuration option (path.to.key=value)")
	if err := flags.Parse(args); err != nil {
		return err
	}

	if err := b.Flush(config, opt.Lenient); err != nil {
		if !opt.Lenient {
			return fmt.Errorf("%s: %w", flags.Name(), err)
		}
		fmt.Fprintf(flags.Output(), "%s: %v\n", flags.Name(), err)
	}

	for _, p := range paths {
		*p = ExpandEnv(*p)
	}
	return nil
}
