// Package config loads the catalog configuration: which libraries to open,
// where their organization documents live and the favorites list.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsimple"
)

// Library kinds.
const (
	KindJSON   = "json"
	KindSQLite = "sqlite"
	KindMemory = "memory"
)

// Config is the decoded configuration file.
type Config struct {
	LogLevel  string          `hcl:"log_level,optional"`
	Favorites string          `hcl:"favorites,optional"`
	Libraries []LibraryConfig `hcl:"library,block"`
}

// LibraryConfig describes one library block.
type LibraryConfig struct {
	Name string `hcl:"name,label"`
	Kind string `hcl:"kind"`
	Path string `hcl:"path,optional"`
	// System libraries are the shipped dictionaries; everything else is a
	// user library.
	System bool `hcl:"system,optional"`
	// ReadOnly forces the content read-only even when the file is writable.
	ReadOnly bool `hcl:"read_only,optional"`
	// Selector is the JSONPath selecting definitions in a json library.
	Selector string `hcl:"selector,optional"`
	// Organization overrides the default "<path>.xml" document.
	Organization string `hcl:"organization,optional"`
}

// DefaultPath is where Load looks when no file is given.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "geocat.hcl"
	}
	return filepath.Join(home, ".agentic-research", "geocat", "geocat.hcl")
}

// Load decodes and validates the file at path.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := hclsimple.DecodeFile(path, nil, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.normalize(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &cfg, nil
}

// Parse decodes src as if it were read from filename. Relative paths are
// resolved against the working directory.
func Parse(filename string, src []byte) (*Config, error) {
	var cfg Config
	if err := hclsimple.Decode(filename, src, nil, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.normalize(""); err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return &cfg, nil
}

func (c *Config) normalize(base string) error {
	if c.LogLevel == "" {
		c.LogLevel = "warn"
	}
	c.Favorites = resolve(base, c.Favorites)

	var errs []error
	seen := make(map[string]bool)
	for i := range c.Libraries {
		l := &c.Libraries[i]
		switch {
		case l.Name == "":
			errs = append(errs, errors.New("library with empty name"))
		case strings.Contains(l.Name, "/"):
			errs = append(errs, fmt.Errorf("library %q: name must not contain '/'", l.Name))
		case l.Name == "Favorites":
			errs = append(errs, errors.New("library name Favorites is reserved"))
		case seen[l.Name]:
			errs = append(errs, fmt.Errorf("library %q declared twice", l.Name))
		}
		seen[l.Name] = true

		switch l.Kind {
		case KindJSON, KindSQLite:
			if l.Path == "" {
				errs = append(errs, fmt.Errorf("library %q: %s library needs a path", l.Name, l.Kind))
			}
		case KindMemory:
		default:
			errs = append(errs, fmt.Errorf("library %q: unknown kind %q", l.Name, l.Kind))
		}
		if l.Selector != "" && l.Kind != KindJSON {
			errs = append(errs, fmt.Errorf("library %q: selector only applies to json libraries", l.Name))
		}
		l.Path = resolve(base, l.Path)
		l.Organization = resolve(base, l.Organization)
	}
	return errors.Join(errs...)
}

// resolve expands a leading ~ and makes relative paths relative to base.
func resolve(base, p string) string {
	if p == "" {
		return ""
	}
	if p == "~" || strings.HasPrefix(p, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if base != "" && !filepath.IsAbs(p) {
		p = filepath.Join(base, p)
	}
	return filepath.Clean(p)
}
