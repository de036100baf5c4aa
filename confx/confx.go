// Package confx wraps go-ucfg to load the YAML server configuration
// (listen address, timeouts, keep-alive policy, line and body limits,
// logging) into typed structs.
package confx

import (
	"fmt"

	"github.com/elastic/go-ucfg"
	"github.com/elastic/go-ucfg/yaml"
)

// Config wraps ucfg.Config with the subset of operations this module needs.
type Config struct {
	conf *ucfg.Config
}

func New(conf *ucfg.Config) *Config {
	return &Config{conf: conf}
}

func (c *Config) Has(path string) bool {
	ok, err := c.conf.Has(path, -1)
	return err == nil && ok
}

func (c *Config) Child(path string) (*Config, error) {
	child, err := c.conf.Child(path, -1)
	if err != nil {
		return nil, err
	}
	return &Config{conf: child}, nil
}

func (c *Config) Unpack(to any) error {
	return c.conf.Unpack(to)
}

func (c *Config) UnpackChild(path string, to any) error {
	child, err := c.conf.Child(path, -1)
	if err != nil {
		return err
	}
	return child.Unpack(to)
}

func (c *Config) Enabled(path string) bool {
	ok, err := c.conf.Bool(fmt.Sprintf("%s.enabled", path), -1)
	return err == nil && ok
}

// LoadPath loads a YAML config file from disk.
func LoadPath(path string) (*Config, error) {
	conf, err := yaml.NewConfigWithFile(path, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}

// LoadBytes loads YAML config from an in-memory buffer.
func LoadBytes(b []byte) (*Config, error) {
	conf, err := yaml.NewConfig(b, ucfg.PathSep("."))
	if err != nil {
		return nil, err
	}
	return New(conf), nil
}
