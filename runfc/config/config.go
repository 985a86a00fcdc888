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

// Package config provides basic infrastructure to set configuration settings
// for runfc. The configuration is set by flags to the command line, and may
// be read from a TOML or YAML file first.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v2"
	"gvisor.dev/filecore/pkg/log"
	"gvisor.dev/filecore/pkg/sentry/devices"
	"gvisor.dev/filecore/pkg/sentry/file"
	"gvisor.dev/filecore/pkg/sentry/fsimpl/memfs"
	"gvisor.dev/filecore/pkg/sentry/kernel"
)

// Config holds configuration that is not part of the runtime spec.
//
// Follow these steps to add a new flag:
//  1. Create a new field in Config.
//  2. Add a field tag with the flag name, and toml and yaml keys.
//  3. Register a new flag in flags.go, with same name and add a description.
//  4. Add any necessary validation into Validate().
type Config struct {
	// ConfigFile is a TOML or YAML file read before the flags are applied.
	ConfigFile string `flag:"config" toml:"-" yaml:"-"`

	// NFile is the capacity of the system-wide file table.
	NFile int `flag:"nfile" toml:"nfile" yaml:"nfile"`

	// NOFile is the number of descriptors per task.
	NOFile int `flag:"nofile" toml:"nofile" yaml:"nofile"`

	// NVMA is the number of mapping slots per task.
	NVMA int `flag:"nvma" toml:"nvma" yaml:"nvma"`

	// NDev is the number of device majors.
	NDev int `flag:"ndev" toml:"ndev" yaml:"ndev"`

	// NInode is the capacity of the in-memory inode cache.
	NInode int `flag:"ninode" toml:"ninode" yaml:"ninode"`

	// DiskInodes is the number of inodes on disk.
	DiskInodes int `flag:"disk-inodes" toml:"disk_inodes" yaml:"disk_inodes"`

	// MaxOpBlocks is the most blocks one journal operation may write.
	MaxOpBlocks int `flag:"max-op-blocks" toml:"max_op_blocks" yaml:"max_op_blocks"`

	// LogSize is the number of disk blocks reserved for the journal.
	LogSize int `flag:"log-size" toml:"log_size" yaml:"log_size"`

	// BlockSize is the disk block size in bytes.
	BlockSize int `flag:"block-size" toml:"block_size" yaml:"block_size"`

	// FSSize is the size of the disk in blocks.
	FSSize int `flag:"fs-size" toml:"fs_size" yaml:"fs_size"`

	// PipeSize is the capacity of a pipe in bytes.
	PipeSize int `flag:"pipe-size" toml:"pipe_size" yaml:"pipe_size"`

	// PhysPages is the number of physical page frames.
	PhysPages int `flag:"phys-pages" toml:"phys_pages" yaml:"phys_pages"`

	// Debug indicates that debug logging should be enabled.
	Debug bool `flag:"debug" toml:"debug" yaml:"debug"`

	// DebugLogFormat is the log format for debug: text or json.
	DebugLogFormat string `flag:"debug-log-format" toml:"debug_log_format" yaml:"debug_log_format"`

	// LogFilename is the filename to log to, if not empty.
	LogFilename string `flag:"log" toml:"log" yaml:"log"`

	// AlsoLogToStderr allows to send log messages to stderr.
	AlsoLogToStderr bool `flag:"alsologtostderr" toml:"alsologtostderr" yaml:"alsologtostderr"`
}

// Validate checks that the configuration describes a kernel that can boot.
func (c *Config) Validate() error {
	for _, v := range []struct {
		name string
		val  int
	}{
		{"nfile", c.NFile},
		{"nofile", c.NOFile},
		{"nvma", c.NVMA},
		{"ninode", c.NInode},
		{"disk-inodes", c.DiskInodes},
		{"block-size", c.BlockSize},
		{"fs-size", c.FSSize},
		{"pipe-size", c.PipeSize},
		{"phys-pages", c.PhysPages},
	} {
		if v.val <= 0 {
			return fmt.Errorf("%s must be positive, got %d", v.name, v.val)
		}
	}
	if c.NDev <= devices.NullMajor {
		return fmt.Errorf("ndev %d leaves no room for the console and null devices", c.NDev)
	}
	if file.MaxWriteChunk(c.MaxOpBlocks, c.BlockSize) <= 0 {
		return fmt.Errorf("max-op-blocks %d leaves no room for file data", c.MaxOpBlocks)
	}
	if c.LogSize < c.MaxOpBlocks {
		return fmt.Errorf("log-size %d is smaller than max-op-blocks %d", c.LogSize, c.MaxOpBlocks)
	}
	switch c.DebugLogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid debug-log-format %q, must be 'text' or 'json'", c.DebugLogFormat)
	}
	return nil
}

// Log logs important aspects of the configuration to the given log function.
func (c *Config) Log() {
	log.Infof("Config:")
	obj := reflect.ValueOf(c).Elem()
	st := obj.Type()
	for i := 0; i < st.NumField(); i++ {
		if name, ok := st.Field(i).Tag.Lookup("flag"); ok {
			log.Infof("\t%s: %v", name, obj.Field(i).Interface())
		}
	}
}

// KernelConfig returns the kernel table sizes c describes. The console is
// left unset.
func (c *Config) KernelConfig() kernel.Config {
	return kernel.Config{
		NFile:       c.NFile,
		NOFile:      c.NOFile,
		NVMA:        c.NVMA,
		NDev:        c.NDev,
		MaxOpBlocks: c.MaxOpBlocks,
		FS: memfs.Options{
			BlockSize: c.BlockSize,
			NBlocks:   c.FSSize,
			NInodes:   c.DiskInodes,
			NCache:    c.NInode,
			LogSize:   c.LogSize,
		},
		PipeSize:  c.PipeSize,
		PhysPages: c.PhysPages,
	}
}

// loadFile decodes the file at path into c. Keys the file does not set keep
// their current value.
func (c *Config) loadFile(path string) error {
	switch ext := filepath.Ext(path); ext {
	case ".toml":
		md, err := toml.DecodeFile(path, c)
		if err != nil {
			return fmt.Errorf("decoding %q: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return fmt.Errorf("unknown keys in %q: %v", path, undecoded)
		}
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		if err := yaml.UnmarshalStrict(data, c); err != nil {
			return fmt.Errorf("decoding %q: %w", path, err)
		}
	default:
		return fmt.Errorf("config file %q: unknown extension %q, want .toml, .yaml or .yml", path, ext)
	}
	return nil
}
