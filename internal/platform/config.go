package platform

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// ConfigFileName is the config file looked up next to a store.
const ConfigFileName = "humus.yaml"

// FileConfig mirrors humus.yaml. Unset keys keep the option defaults.
type FileConfig struct {
	Dir         string `yaml:"dir"`
	ReadOnly    *bool  `yaml:"read_only"`
	Follow      *bool  `yaml:"follow"`
	Sync        string `yaml:"sync"`
	Snapshot    *bool  `yaml:"snapshot"`
	EventBuffer int    `yaml:"event_buffer"`
	SystemDir   string `yaml:"system_dir"`
	Listen      string `yaml:"listen"`
}

// LoadConfig reads a YAML config file. A relative dir is resolved against
// the directory holding the file.
func LoadConfig(path string) (*FileConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg, err := ParseConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if cfg.Dir != "" && !filepath.IsAbs(cfg.Dir) {
		cfg.Dir = filepath.Join(filepath.Dir(path), cfg.Dir)
	}
	return cfg, nil
}

// ParseConfig decodes a YAML config, rejecting unknown keys.
func ParseConfig(r io.Reader) (*FileConfig, error) {
	cfg := &FileConfig{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if _, err := ParseSyncMode(cfg.Sync); err != nil {
		return nil, err
	}
	if cfg.EventBuffer < 0 {
		return nil, fmt.Errorf("event_buffer must not be negative")
	}
	return cfg, nil
}

// Options converts the file settings into functional options. Options
// passed after these take precedence.
func (c *FileConfig) Options() []Option {
	var opts []Option
	if c.ReadOnly != nil {
		opts = append(opts, WithReadOnly(*c.ReadOnly))
	}
	if c.Follow != nil {
		opts = append(opts, WithFollow(*c.Follow))
	}
	if c.Sync != "" {
		opts = append(opts, WithSync(c.Sync))
	}
	if c.Snapshot != nil {
		opts = append(opts, WithSnapshot(*c.Snapshot))
	}
	if c.EventBuffer > 0 {
		opts = append(opts, WithEventBuffer(c.EventBuffer))
	}
	if c.SystemDir != "" {
		opts = append(opts, WithSystemDir(c.SystemDir))
	}
	return opts
}
