// Copyright 2017 Microsoft. All rights reserved.
// MIT License

// Package containers discovers containers from the runtime's per-container
// configuration files.
package containers

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"go.uber.org/zap"
)

// DefaultDataRoot is the Docker data root.
const DefaultDataRoot = "/var/lib/docker"

const containersDir = "containers"

// Config file names recognized under the containers directory.
var configFileNames = map[string]struct{}{
	"config.json":    {},
	"config.v2.json": {},
}

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Container is a container record read from its configuration file.
type Container struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	SandboxKey string `json:"sandboxKey"`
	Bridge     string `json:"bridge,omitempty"`
	ConfigPath string `json:"-"`
}

// ShortID returns at most n leading characters of the container ID.
func (c *Container) ShortID(n int) string {
	if len(c.ID) <= n {
		return c.ID
	}
	return c.ID[:n]
}

func (c *Container) String() string {
	return fmt.Sprintf("ID: %s, Name: %s", c.ShortID(12), c.Name)
}

// config mirrors the fields used from Docker's config.v2.json.
type config struct {
	ID              string          `json:"ID"`
	Name            string          `json:"Name"`
	NetworkSettings networkSettings `json:"NetworkSettings"`
}

type networkSettings struct {
	Bridge     string `json:"Bridge"`
	SandboxKey string `json:"SandboxKey"`
}

// Directory lists containers found under a runtime data root.
type Directory struct {
	fs     afero.Fs
	root   string
	logger *zap.Logger
}

// NewDirectory returns a Directory reading <root>/containers on fs.
func NewDirectory(fs afero.Fs, root string, logger *zap.Logger) *Directory {
	return &Directory{
		fs:     fs,
		root:   root,
		logger: logger,
	}
}

// List walks the containers directory and decodes every config file it finds.
// Unreadable or malformed configs are skipped. A missing directory yields no
// containers. Results are in walk order, which is lexical.
func (d *Directory) List() []Container {
	var cs []Container
	seen := make(map[string]struct{})

	for _, path := range d.configPaths() {
		c, err := d.read(path)
		if err != nil {
			d.logger.Debug("Skipping container config", zap.String("path", path), zap.Error(err))
			continue
		}

		// config.json and config.v2.json can describe the same container.
		if _, ok := seen[c.ID]; ok {
			continue
		}
		seen[c.ID] = struct{}{}
		cs = append(cs, c)
	}

	d.logger.Debug("Discovered containers", zap.String("root", d.root), zap.Int("count", len(cs)))
	return cs
}

func (d *Directory) configPaths() []string {
	var paths []string
	dir := filepath.Join(d.root, containersDir)

	err := afero.Walk(d.fs, dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			// unreadable subtrees are skipped, the walk goes on
			if info != nil && info.IsDir() && path != dir {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if _, ok := configFileNames[info.Name()]; ok {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		d.logger.Debug("Container walk stopped", zap.String("dir", dir), zap.Error(err))
	}

	return paths
}

func (d *Directory) read(path string) (Container, error) {
	b, err := afero.ReadFile(d.fs, path)
	if err != nil {
		return Container{}, errors.Wrap(err, "failed to read container config")
	}

	var cfg config
	if err := json.Unmarshal(b, &cfg); err != nil {
		return Container{}, errors.Wrap(err, "failed to decode container config")
	}
	if cfg.ID == "" {
		return Container{}, errors.Errorf("config %s has no ID", path)
	}

	return Container{
		ID:         cfg.ID,
		Name:       strings.TrimPrefix(cfg.Name, "/"),
		SandboxKey: cfg.NetworkSettings.SandboxKey,
		Bridge:     cfg.NetworkSettings.Bridge,
		ConfigPath: path,
	}, nil
}
