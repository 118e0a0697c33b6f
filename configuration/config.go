// Copyright 2017 Microsoft. All rights reserved.
// MIT License

// Package configuration holds the settings of an inspection run.
package configuration

import (
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/Azure/azure-netns-inspect/containers"
	"github.com/Azure/azure-netns-inspect/netlink"
	"github.com/Azure/azure-netns-inspect/netns"
)

const (
	// EnvPrefix prefixes the environment variables that override flags.
	EnvPrefix = "NETNS_INSPECT"

	defaultEnumerateTimeout = 10 * time.Second
)

// Flag names, which are also the configuration file keys.
const (
	FlagPrimaryNetnsRoot      = "primary-netns-root"
	FlagAltNetnsRoot          = "alt-netns-root"
	FlagContainerDataRoot     = "container-data-root"
	FlagBackend               = "backend"
	FlagEnumerateTimeout      = "enumerate-timeout"
	FlagIncludeDefault        = "include-default"
	FlagAbortOnRestoreFailure = "abort-on-restore-failure"
	FlagOutput                = "output"
	FlagLogLevel              = "log-level"
	FlagLogEncoding           = "log-encoding"
	FlagConfig                = "config"
)

// Output formats.
const (
	OutputTable = "table"
	OutputJSON  = "json"
)

var ErrInvalidConfig = errors.New("invalid configuration")

// DefaultConfig is what a run uses when nothing is overridden.
var DefaultConfig = Config{
	PrimaryNetnsRoot:      netns.DefaultPrimaryRoot,
	AltNetnsRoot:          netns.DefaultAltRoot,
	ContainerDataRoot:     containers.DefaultDataRoot,
	Backend:               netlink.BackendSocket,
	EnumerateTimeout:      defaultEnumerateTimeout,
	IncludeDefault:        true,
	AbortOnRestoreFailure: false,
	Output:                OutputTable,
	LogLevel:              "info",
	LogEncoding:           "console",
}

type Config struct {
	// PrimaryNetnsRoot is searched first for namespace names.
	PrimaryNetnsRoot string `json:"primary-netns-root" mapstructure:"primary-netns-root"`
	// AltNetnsRoot is the container runtime's private namespace root.
	AltNetnsRoot      string `json:"alt-netns-root" mapstructure:"alt-netns-root"`
	ContainerDataRoot string `json:"container-data-root" mapstructure:"container-data-root"`

	Backend          string        `json:"backend" mapstructure:"backend"`
	EnumerateTimeout time.Duration `json:"enumerate-timeout" mapstructure:"enumerate-timeout"`

	// IncludeDefault enumerates the namespace of the process itself as "default".
	IncludeDefault        bool `json:"include-default" mapstructure:"include-default"`
	AbortOnRestoreFailure bool `json:"abort-on-restore-failure" mapstructure:"abort-on-restore-failure"`

	Output      string `json:"output" mapstructure:"output"`
	LogLevel    string `json:"log-level" mapstructure:"log-level"`
	LogEncoding string `json:"log-encoding" mapstructure:"log-encoding"`
}

// Load reads the configuration from v. Keys v does not set keep their
// DefaultConfig values.
func Load(v *viper.Viper) (*Config, error) {
	for key, value := range defaultsMap() {
		v.SetDefault(key, value)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, errors.Wrap(err, "failed to decode config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ReadFile merges the config file at path into v. The format is taken from
// the file extension.
func ReadFile(v *viper.Viper, path string) error {
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return errors.Wrapf(err, "failed to read config file %s", path)
	}
	return nil
}

// Validate checks the fields that have a closed set of values.
func (c *Config) Validate() error {
	switch c.Backend {
	case netlink.BackendSocket, netlink.BackendVishvananda:
	default:
		return errors.Wrapf(ErrInvalidConfig, "%s %q", FlagBackend, c.Backend)
	}

	switch c.Output {
	case OutputTable, OutputJSON:
	default:
		return errors.Wrapf(ErrInvalidConfig, "%s %q", FlagOutput, c.Output)
	}

	if c.EnumerateTimeout <= 0 {
		return errors.Wrapf(ErrInvalidConfig, "%s must be positive, got %s", FlagEnumerateTimeout, c.EnumerateTimeout)
	}

	if c.PrimaryNetnsRoot == "" && c.AltNetnsRoot == "" {
		return errors.Wrapf(ErrInvalidConfig, "one of %s and %s is required", FlagPrimaryNetnsRoot, FlagAltNetnsRoot)
	}

	return nil
}

// defaultsMap is DefaultConfig keyed by flag name. The timeout is written as
// a duration string, the form the flag and config file use.
func defaultsMap() map[string]interface{} {
	d := DefaultConfig
	return map[string]interface{}{
		FlagPrimaryNetnsRoot:      d.PrimaryNetnsRoot,
		FlagAltNetnsRoot:          d.AltNetnsRoot,
		FlagContainerDataRoot:     d.ContainerDataRoot,
		FlagBackend:               d.Backend,
		FlagEnumerateTimeout:      d.EnumerateTimeout.String(),
		FlagIncludeDefault:        d.IncludeDefault,
		FlagAbortOnRestoreFailure: d.AbortOnRestoreFailure,
		FlagOutput:                d.Output,
		FlagLogLevel:              d.LogLevel,
		FlagLogEncoding:           d.LogEncoding,
	}
}
