package containers

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	webID = "4f3c2b1a0e9d8c7b6a5f4e3d2c1b0a9f8e7d6c5b4a3f2e1d0c9b8a7f6e5d4c3b"
	dbID  = "9a8b7c6d5e4f3a2b1c0d9e8f7a6b5c4d3e2f1a0b9c8d7e6f5a4b3c2d1e0f9a8b"
)

func writeConfig(t *testing.T, fs afero.Fs, path, content string) {
	t.Helper()
	require.NoError(t, afero.WriteFile(fs, path, []byte(content), 0o600))
}

func TestDirectoryList(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/var/lib/docker/containers/"+webID+"/config.v2.json", `{
		"ID": "`+webID+`",
		"Name": "/web",
		"NetworkSettings": {"Bridge": "docker0", "SandboxKey": "/var/run/docker/netns/1a2b3c4d5e6f"}
	}`)
	writeConfig(t, fs, "/var/lib/docker/containers/"+dbID+"/config.v2.json", `{
		"ID": "`+dbID+`",
		"Name": "db",
		"NetworkSettings": {"SandboxKey": "/var/run/docker/netns/6f5e4d3c2b1a"}
	}`)
	// not a config file name
	writeConfig(t, fs, "/var/lib/docker/containers/"+dbID+"/hostconfig.json", `{"ID": "x"}`)

	d := NewDirectory(fs, DefaultDataRoot, zap.NewNop())
	got := d.List()

	// walk order is lexical
	want := []Container{
		{
			ID:         webID,
			Name:       "web",
			SandboxKey: "/var/run/docker/netns/1a2b3c4d5e6f",
			Bridge:     "docker0",
			ConfigPath: "/var/lib/docker/containers/" + webID + "/config.v2.json",
		},
		{
			ID:         dbID,
			Name:       "db",
			SandboxKey: "/var/run/docker/netns/6f5e4d3c2b1a",
			ConfigPath: "/var/lib/docker/containers/" + dbID + "/config.v2.json",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("unexpected containers (-want +got):\n%s", diff)
	}
}

func TestDirectoryListSkipsBadConfigs(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/data/containers/a/config.v2.json", `{not json`)
	writeConfig(t, fs, "/data/containers/b/config.v2.json", `{"Name": "noid"}`)
	writeConfig(t, fs, "/data/containers/c/config.json", `{"ID": "ccc", "Name": "/c", "NetworkSettings": {"SandboxKey": "/x/ns"}}`)

	got := NewDirectory(fs, "/data", zap.NewNop()).List()
	require.Len(t, got, 1)
	require.Equal(t, "ccc", got[0].ID)
	require.Equal(t, "c", got[0].Name)
}

func TestDirectoryListDedupesByID(t *testing.T) {
	fs := afero.NewMemMapFs()
	writeConfig(t, fs, "/data/containers/a/config.json", `{"ID": "same", "Name": "old"}`)
	writeConfig(t, fs, "/data/containers/a/config.v2.json", `{"ID": "same", "Name": "new"}`)

	got := NewDirectory(fs, "/data", zap.NewNop()).List()
	require.Len(t, got, 1)
	require.Equal(t, "old", got[0].Name)
}

func TestDirectoryListMissingRoot(t *testing.T) {
	got := NewDirectory(afero.NewMemMapFs(), "/nowhere", zap.NewNop()).List()
	require.Empty(t, got)
}

func TestContainerString(t *testing.T) {
	tests := []struct {
		name string
		c    Container
		want string
	}{
		{
			name: "long id is shortened",
			c:    Container{ID: webID, Name: "web"},
			want: "ID: 4f3c2b1a0e9d, Name: web",
		},
		{
			name: "short id is shown in full",
			c:    Container{ID: "abc", Name: "tiny"},
			want: "ID: abc, Name: tiny",
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, tt.c.String())
		})
	}
}
