// Package manifest handles lunac.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

// FileName is the name of the project file.
const FileName = "lunac.toml"

// Manifest represents a lunac.toml project configuration.
type Manifest struct {
	Project      Project               `toml:"project"`
	Source       Source                `toml:"source"`
	Compile      Compile               `toml:"compile"`
	Cache        Cache                 `toml:"cache"`
	Dependencies map[string]Dependency `toml:"dependencies"`

	// Dir is the directory containing the lunac.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Version string `toml:"version"`
}

// Source configures source file locations.
type Source struct {
	Dirs    []string `toml:"dirs"`
	Exclude []string `toml:"exclude"` // glob patterns matched against file names
}

// Compile configures code generation.
type Compile struct {
	Strip       bool   `toml:"strip"`        // drop debug information
	ChunkPrefix string `toml:"chunk-prefix"` // "@" names chunks after files, "=" uses them literally
}

// Cache configures the compile cache.
type Cache struct {
	Enabled *bool  `toml:"enabled"`
	Path    string `toml:"path"`
}

// Dependency represents a single project dependency.
type Dependency struct {
	Git  string `toml:"git"`
	Tag  string `toml:"tag"`
	Path string `toml:"path"`
}

// Load parses a lunac.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	m.applyDefaults()
	if err := m.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

func (m *Manifest) applyDefaults() {
	if len(m.Source.Dirs) == 0 {
		m.Source.Dirs = []string{"src"}
	}
	if m.Compile.ChunkPrefix == "" {
		m.Compile.ChunkPrefix = "@"
	}
	if m.Cache.Enabled == nil {
		on := true
		m.Cache.Enabled = &on
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".lunac", "cache.db")
	}
}

func (m *Manifest) validate() error {
	switch m.Compile.ChunkPrefix {
	case "@", "=":
	default:
		return fmt.Errorf("chunk-prefix must be \"@\" or \"=\", not %q", m.Compile.ChunkPrefix)
	}
	for _, pat := range m.Source.Exclude {
		if _, err := filepath.Match(pat, ""); err != nil {
			return fmt.Errorf("bad exclude pattern %q: %w", pat, err)
		}
	}
	return nil
}

// FindAndLoad walks up from startDir to find a lunac.toml file,
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

// SourceDirPaths returns absolute paths for the configured source directories.
func (m *Manifest) SourceDirPaths() []string {
	var paths []string
	for _, d := range m.Source.Dirs {
		paths = append(paths, filepath.Join(m.Dir, d))
	}
	return paths
}

// Excluded reports whether a source file is skipped by the exclude patterns.
func (m *Manifest) Excluded(path string) bool {
	base := filepath.Base(path)
	for _, pat := range m.Source.Exclude {
		if ok, _ := filepath.Match(pat, base); ok {
			return true
		}
	}
	return false
}

// ChunkName returns the chunk name a source file is compiled under:
// its path relative to the project directory behind the chunk prefix.
func (m *Manifest) ChunkName(path string) string {
	rel, err := filepath.Rel(m.Dir, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		rel = path
	}
	return m.Compile.ChunkPrefix + filepath.ToSlash(rel)
}

// CacheEnabled reports whether compiled chunks are cached.
func (m *Manifest) CacheEnabled() bool {
	return m.Cache.Enabled == nil || *m.Cache.Enabled
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	if filepath.IsAbs(m.Cache.Path) {
		return m.Cache.Path
	}
	return filepath.Join(m.Dir, m.Cache.Path)
}

// DepsDir returns the path to the .lunac/deps directory.
func (m *Manifest) DepsDir() string {
	return filepath.Join(m.Dir, ".lunac", "deps")
}

// LockFilePath returns the path to .lunac/lock.toml.
func (m *Manifest) LockFilePath() string {
	return filepath.Join(m.Dir, ".lunac", "lock.toml")
}
