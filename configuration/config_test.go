package configuration

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"

	"github.com/Azure/azure-netns-inspect/containers"
	"github.com/Azure/azure-netns-inspect/netns"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(viper.New())
	require.NoError(t, err)
	require.Equal(t, DefaultConfig, *cfg)
}

func TestDefaultRootsMatchPackages(t *testing.T) {
	require.Equal(t, netns.DefaultPrimaryRoot, DefaultConfig.PrimaryNetnsRoot)
	require.Equal(t, netns.DefaultAltRoot, DefaultConfig.AltNetnsRoot)
	require.Equal(t, containers.DefaultDataRoot, DefaultConfig.ContainerDataRoot)
}

func TestLoadOverrides(t *testing.T) {
	v := viper.New()
	v.Set(FlagBackend, "vishvananda")
	v.Set(FlagEnumerateTimeout, "250ms")
	v.Set(FlagIncludeDefault, false)
	v.Set(FlagOutput, OutputJSON)

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "vishvananda", cfg.Backend)
	require.Equal(t, 250*time.Millisecond, cfg.EnumerateTimeout)
	require.False(t, cfg.IncludeDefault)
	require.Equal(t, OutputJSON, cfg.Output)
	require.Equal(t, DefaultConfig.PrimaryNetnsRoot, cfg.PrimaryNetnsRoot)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "netns-inspect.json")
	content := `{
		"primary-netns-root": "/run/netns",
		"container-data-root": "/srv/docker",
		"abort-on-restore-failure": true
	}`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	v := viper.New()
	require.NoError(t, ReadFile(v, path))

	cfg, err := Load(v)
	require.NoError(t, err)
	require.Equal(t, "/run/netns", cfg.PrimaryNetnsRoot)
	require.Equal(t, "/srv/docker", cfg.ContainerDataRoot)
	require.True(t, cfg.AbortOnRestoreFailure)
	require.Equal(t, DefaultConfig.AltNetnsRoot, cfg.AltNetnsRoot)
}

func TestReadFileMissing(t *testing.T) {
	err := ReadFile(viper.New(), filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:   "default",
			mutate: func(c *Config) {},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Backend = "iproute2" },
			wantErr: true,
		},
		{
			name:    "unknown output",
			mutate:  func(c *Config) { c.Output = "yaml" },
			wantErr: true,
		},
		{
			name:    "zero timeout",
			mutate:  func(c *Config) { c.EnumerateTimeout = 0 },
			wantErr: true,
		},
		{
			name: "no namespace roots",
			mutate: func(c *Config) {
				c.PrimaryNetnsRoot = ""
				c.AltNetnsRoot = ""
			},
			wantErr: true,
		},
		{
			name:   "primary root only",
			mutate: func(c *Config) { c.AltNetnsRoot = "" },
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := DefaultConfig
			tt.mutate(&c)
			err := c.Validate()
			if tt.wantErr {
				require.True(t, errors.Is(err, ErrInvalidConfig), "got %v", err)
				return
			}
			require.NoError(t, err)
		})
	}
}
