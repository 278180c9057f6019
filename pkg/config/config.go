// Package config loads the shell's YAML configuration.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"sigs.k8s.io/yaml"

	"github.com/rcarmo/go-ash/pkg/sandbox"
)

//go:embed default/config.yaml
var defaultConfigData []byte

const ConfigurationName = "config.yaml"

type Configuration struct {
	Prompt      string `json:"prompt"`
	HistoryFile string `json:"history_file"`
	MaxJobs     int    `json:"max_jobs" validate:"gte=1,lte=1024"`
	// Interactive forces interactive mode on or off. Nil detects it.
	Interactive *bool      `json:"interactive"`
	Color       bool       `json:"color"`
	Trace       bool       `json:"trace"`
	Restricted  Restricted `json:"restricted"`
}

type Restricted struct {
	Enabled       bool     `json:"enabled"`
	AllowedPaths  []string `json:"allowed_paths" validate:"dive,required"`
	WritablePaths []string `json:"writable_paths" validate:"dive,required"`
}

// Validate the configuration for basic semantic errors.
func (c *Configuration) Validate() error {
	validate := validator.New()
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		return strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
	})
	return validate.Struct(c)
}

// Sandbox returns the path policy configuration, or nil when restricted
// mode is off. The startup directory is always readable.
func (c *Configuration) Sandbox() *sandbox.Config {
	if !c.Restricted.Enabled {
		return nil
	}
	cfg := &sandbox.Config{AllowCwd: true, CwdPermission: sandbox.PermRead}
	for _, p := range c.Restricted.AllowedPaths {
		cfg.AllowedPaths = append(cfg.AllowedPaths, sandbox.PathRule{Path: p, Permission: sandbox.PermRead})
	}
	for _, p := range c.Restricted.WritablePaths {
		cfg.AllowedPaths = append(cfg.AllowedPaths, sandbox.PathRule{Path: p, Permission: sandbox.PermRead | sandbox.PermWrite})
	}
	return cfg
}

// HistoryPath resolves HistoryFile against home. It returns "" when
// history is disabled.
func (c *Configuration) HistoryPath(home string) string {
	if c.HistoryFile == "" || filepath.IsAbs(c.HistoryFile) || home == "" {
		return c.HistoryFile
	}
	return filepath.Join(home, c.HistoryFile)
}

// Default returns the built-in configuration.
func Default() *Configuration {
	var out Configuration
	if err := yaml.UnmarshalStrict(defaultConfigData, &out); err != nil {
		panic(err)
	}
	return &out
}

// DefaultPath is where Load looks when no path is given.
func DefaultPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "ash", ConfigurationName)
}

// Load reads the configuration at path over the defaults. A missing file
// yields the defaults. If given a directory, config.yaml inside it is read.
func Load(path string) (*Configuration, error) {
	out := Default()
	if path == "" {
		return out, nil
	}
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		path = filepath.Join(path, ConfigurationName)
	}
	contents, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if err := yaml.UnmarshalStrict(contents, out); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}
