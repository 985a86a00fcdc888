// Copyright 2026 The gVisor Authors.
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

package config

import (
	"fmt"
	"reflect"

	"gvisor.dev/filecore/pkg/sentry/fsimpl/memfs"
	"gvisor.dev/filecore/pkg/sentry/kernel"
	"gvisor.dev/filecore/runfc/flag"
)

// RegisterFlags registers flags used to populate Config.
func RegisterFlags(flagSet *flag.FlagSet) {
	kdef := kernel.DefaultConfig()
	fsdef := memfs.DefaultOptions()

	flagSet.String("config", "", "TOML (.toml) or YAML (.yaml, .yml) file to read the configuration from. Flags override its values.")

	// Debugging flags.
	flagSet.String("log", "", "file path where internal debug information is written, default is stdout.")
	flagSet.Bool("debug", false, "enable debug logging.")
	flagSet.String("debug-log-format", "text", "log format: text (default) or json.")
	flagSet.Bool("alsologtostderr", false, "send log messages to stderr.")

	// Flags that size the kernel's tables.
	flagSet.Int("nfile", kdef.NFile, "capacity of the system-wide file table.")
	flagSet.Int("nofile", kdef.NOFile, "number of file descriptors per task.")
	flagSet.Int("nvma", kdef.NVMA, "number of mapping slots per task.")
	flagSet.Int("ndev", kdef.NDev, "number of device major numbers.")
	flagSet.Int("pipe-size", kdef.PipeSize, "capacity of a pipe in bytes.")
	flagSet.Int("phys-pages", kdef.PhysPages, "number of physical page frames.")

	// Flags that control the root filesystem.
	flagSet.Int("ninode", fsdef.NCache, "capacity of the in-memory inode cache.")
	flagSet.Int("disk-inodes", fsdef.NInodes, "number of inodes on disk.")
	flagSet.Int("max-op-blocks", kdef.MaxOpBlocks, "maximum number of blocks one journal operation may write.")
	flagSet.Int("log-size", fsdef.LogSize, "number of disk blocks reserved for the journal.")
	flagSet.Int("block-size", fsdef.BlockSize, "disk block size in bytes.")
	flagSet.Int("fs-size", fsdef.NBlocks, "size of the disk in blocks.")
}

// NewFromFlags creates a new Config with values coming from command line
// flags. If --config names a file, its values replace the flag defaults and
// flags set on the command line replace both.
func NewFromFlags(flagSet *flag.FlagSet) (*Config, error) {
	conf := &Config{}
	conf.setFromFlags(flagSet, nil)

	if conf.ConfigFile != "" {
		if err := conf.loadFile(conf.ConfigFile); err != nil {
			return nil, err
		}
		set := make(map[string]bool)
		flagSet.Visit(func(f *flag.Flag) { set[f.Name] = true })
		conf.setFromFlags(flagSet, set)
	}

	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// setFromFlags copies flag values into c. If only is non-nil, only the
// flags it names are copied.
func (c *Config) setFromFlags(flagSet *flag.FlagSet, only map[string]bool) {
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		f := st.Field(i)
		name, ok := f.Tag.Lookup("flag")
		if !ok {
			// No flag set for this field.
			continue
		}
		if only != nil && !only[name] {
			continue
		}
		fl := flagSet.Lookup(name)
		if fl == nil {
			panic(fmt.Sprintf("Flag %q not found", name))
		}
		x := reflect.ValueOf(flag.Get(fl.Value))
		obj.Field(i).Set(x)
	}
}
