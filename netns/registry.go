package netns

import (
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// Default namespace registry roots.
const (
	DefaultPrimaryRoot = "/var/run/netns"
	DefaultAltRoot     = "/var/run/docker/netns"
)

// Registry resolves namespace names against the primary root, then the
// alternate root used by the container runtime.
type Registry struct {
	fs      afero.Fs
	primary string
	alt     string
}

func NewRegistry(fs afero.Fs, primary, alt string) *Registry {
	return &Registry{
		fs:      fs,
		primary: primary,
		alt:     alt,
	}
}

// Resolve returns the path of the namespace file for name.
func (r *Registry) Resolve(name string) (string, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsRune(name, filepath.Separator) {
		return "", &Error{Kind: ErrNotFound, Op: "resolve", Path: name, Err: errors.New("invalid namespace name")}
	}

	for _, root := range []string{r.primary, r.alt} {
		if root == "" {
			continue
		}
		path := filepath.Join(root, name)
		if ok, _ := afero.Exists(r.fs, path); ok {
			return path, nil
		}
	}

	return "", &Error{Kind: ErrNotFound, Op: "resolve", Path: name}
}

// Has reports whether name resolves in either root.
func (r *Registry) Has(name string) bool {
	_, err := r.Resolve(name)
	return err == nil
}

// Names lists the namespaces in the primary root followed by the alternate
// root. A name present in both is listed once. Missing roots contribute
// nothing.
func (r *Registry) Names() ([]string, error) {
	var names []string
	seen := make(map[string]struct{})

	for _, root := range []string{r.primary, r.alt} {
		if root == "" {
			continue
		}
		infos, err := afero.ReadDir(r.fs, root)
		if err != nil {
			if ok, _ := afero.DirExists(r.fs, root); !ok {
				continue
			}
			return nil, errors.Wrapf(err, "failed to list namespaces in %s", root)
		}
		for _, info := range infos {
			if _, ok := seen[info.Name()]; ok {
				continue
			}
			seen[info.Name()] = struct{}{}
			names = append(names, info.Name())
		}
	}

	return names, nil
}

// PIDPath returns the namespace path of a process.
func PIDPath(pid int) string {
	return filepath.Join("/proc", strconv.Itoa(pid), "ns", "net")
}
