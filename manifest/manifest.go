// Package manifest handles tapec.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/tliron/commonlog"
)

var log = commonlog.GetLogger("tapec.manifest")

// FileName is the name of the project file.
const FileName = "tapec.toml"

// Defaults for fields left empty in tapec.toml.
const (
	DefaultEntry    = "main.tbc"
	DefaultCapacity = 30000
	DefaultEOF      = "unchanged"
	DefaultOutput   = "build/out.tape"
	DefaultCache    = ".tapec/cache.db"
)

// Manifest represents a tapec.toml project configuration.
type Manifest struct {
	Project Project `toml:"project" json:"project"`
	Machine Machine `toml:"machine" json:"machine"`
	Build   Build   `toml:"build" json:"build"`
	Log     Log     `toml:"log" json:"log"`

	// Dir is the directory containing the tapec.toml file (set at load time).
	Dir string `toml:"-" json:"-"`
}

// Project contains project metadata.
type Project struct {
	Name  string `toml:"name" json:"name"`
	Entry string `toml:"entry" json:"entry"` // bytecode source, relative to Dir
}

// Machine configures the tape machine used by run.
type Machine struct {
	Capacity int    `toml:"capacity" json:"capacity"`
	EOF      string `toml:"eof" json:"eof"`
	MaxSteps uint64 `toml:"max-steps" json:"max-steps"`
}

// Build configures compilation outputs.
type Build struct {
	Output string `toml:"output" json:"output"`
	Cache  string `toml:"cache" json:"cache"` // empty disables the build cache
	Dump   bool   `toml:"dump" json:"dump"`
}

// Log configures logging.
type Log struct {
	Verbosity int    `toml:"verbosity" json:"verbosity"`
	File      string `toml:"file" json:"file,omitempty"`
}

// Default returns the configuration used when there is no tapec.toml.
func Default(dir string) *Manifest {
	m := &Manifest{Dir: dir}
	m.applyDefaults(nil)
	return m
}

// Load parses a tapec.toml file from the given directory, fills in
// defaults and validates the result against the schema.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	return parse(path, dir, data)
}

func parse(path, dir string, data []byte) (*Manifest, error) {
	var m Manifest
	md, err := toml.Decode(string(data), &m)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	for _, key := range md.Undecoded() {
		log.Warningf("%s: unknown key %s", path, key)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	m.applyDefaults(&md)

	if err := Validate(&m); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("loaded %s", path)
	return &m, nil
}

// applyDefaults fills every field the file did not set. md is nil when
// there is no file at all.
func (m *Manifest) applyDefaults(md *toml.MetaData) {
	defined := func(key ...string) bool {
		return md != nil && md.IsDefined(key...)
	}
	if m.Project.Name == "" && m.Dir != "" {
		m.Project.Name = filepath.Base(m.Dir)
	}
	if m.Project.Entry == "" {
		m.Project.Entry = DefaultEntry
	}
	if !defined("machine", "capacity") {
		m.Machine.Capacity = DefaultCapacity
	}
	if m.Machine.EOF == "" {
		m.Machine.EOF = DefaultEOF
	}
	if m.Build.Output == "" {
		m.Build.Output = DefaultOutput
	}
	if !defined("build", "cache") {
		m.Build.Cache = DefaultCache
	}
}

// FindAndLoad walks up from startDir to find a tapec.toml file,
// then loads and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry bytecode file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Project.Entry)
}

// OutputPath returns the absolute path of the image output.
func (m *Manifest) OutputPath() string {
	return m.resolve(m.Build.Output)
}

// CachePath returns the absolute path of the build cache, or "" when the
// cache is disabled.
func (m *Manifest) CachePath() string {
	if m.Build.Cache == "" {
		return ""
	}
	return m.resolve(m.Build.Cache)
}

// LogFile returns the log file path, or nil for stderr.
func (m *Manifest) LogFile() *string {
	if m.Log.File == "" {
		return nil
	}
	path := m.resolve(m.Log.File)
	return &path
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}
