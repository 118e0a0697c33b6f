//go:build linux
// +build linux

package netns

import (
	"fmt"
	"os"

	"github.com/pkg/errors"
	"github.com/vishvananda/netns"
	"golang.org/x/sys/unix"
)

// Netns performs the namespace syscalls through vishvananda/netns.
type Netns struct{}

func New() *Netns {
	return &Netns{}
}

// Current opens the calling thread's network namespace.
func (f *Netns) Current() (fileDescriptor int, path string, err error) {
	path = fmt.Sprintf("/proc/%d/task/%d/ns/net", os.Getpid(), unix.Gettid())
	nsHandle, err := netns.GetFromPath(path)
	return int(nsHandle), path, errors.Wrap(err, "netns impl")
}

func (f *Netns) Open(path string) (int, error) {
	nsHandle, err := netns.GetFromPath(path)
	return int(nsHandle), errors.Wrap(err, "netns impl")
}

func (f *Netns) Setns(fileDescriptor int, nstype int) error {
	return errors.Wrap(netns.Setns(netns.NsHandle(fileDescriptor), nstype), "netns impl")
}

func (f *Netns) Close(fileDescriptor int) error {
	nsHandle := netns.NsHandle(fileDescriptor)
	return errors.Wrap(nsHandle.Close(), "netns impl")
}
