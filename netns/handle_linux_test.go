// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netns

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/require"
	"github.com/vishvananda/netns"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

var errNetnsMock = errors.New("mock netns error")

const (
	originFd = 3
	targetFd = 7
)

type setnsCall struct {
	fd     int
	nstype int
}

type mockNsOps struct {
	current func() (int, string, error)
	open    func(path string) (int, error)
	setns   func(fd, nstype int) error

	setnsCalls []setnsCall
	closed     []int
}

func (m *mockNsOps) Current() (int, string, error) {
	return m.current()
}

func (m *mockNsOps) Open(path string) (int, error) {
	return m.open(path)
}

func (m *mockNsOps) Setns(fd, nstype int) error {
	m.setnsCalls = append(m.setnsCalls, setnsCall{fd: fd, nstype: nstype})
	return m.setns(fd, nstype)
}

func (m *mockNsOps) Close(fd int) error {
	m.closed = append(m.closed, fd)
	return nil
}

func defaultCurrent() (int, string, error) {
	return originFd, "/proc/1/task/1/ns/net", nil
}

func defaultOpen(string) (int, error) {
	return targetFd, nil
}

func defaultSetns(int, int) error {
	return nil
}

func newMockOps() *mockNsOps {
	return &mockNsOps{
		current: defaultCurrent,
		open:    defaultOpen,
		setns:   defaultSetns,
	}
}

func newTestClient(t *testing.T, ops nsOps) *Client {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/var/run/netns/ns1", nil, 0o444))
	require.NoError(t, afero.WriteFile(fs, "/proc/42/ns/net", nil, 0o444))
	reg := NewRegistry(fs, DefaultPrimaryRoot, DefaultAltRoot)
	return &Client{
		ops:      ops,
		registry: reg,
		fs:       fs,
		logger:   zap.NewNop(),
	}
}

// runLocked runs fn on a goroutine of its own so a thread left locked by a
// failed restore is not the test goroutine's. fn must not assert; it records
// results for the caller to check once it returns.
func runLocked(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	<-done
}

func TestEnterNotFoundNeverSwitches(t *testing.T) {
	ops := newMockOps()
	c := newTestClient(t, ops)

	h, err := c.Enter("missing")
	require.Nil(t, h)
	require.True(t, errors.Is(err, ErrNotFound))
	require.Empty(t, ops.setnsCalls)
	require.Empty(t, ops.closed)
}

func TestEnterByPIDNotFound(t *testing.T) {
	ops := newMockOps()
	c := newTestClient(t, ops)

	_, err := c.EnterByPID(99)
	require.True(t, errors.Is(err, ErrNotFound))
	require.Empty(t, ops.setnsCalls)
}

func TestEnterErrors(t *testing.T) {
	tests := []struct {
		name       string
		ops        *mockNsOps
		wantErr    error
		wantClosed []int
	}{
		{
			name: "origin unavailable",
			ops: &mockNsOps{
				current: func() (int, string, error) {
					return -1, "/proc/1/task/1/ns/net", errNetnsMock
				},
				open:  defaultOpen,
				setns: defaultSetns,
			},
			wantErr: ErrOpenFailed,
		},
		{
			name: "open fails",
			ops: &mockNsOps{
				current: defaultCurrent,
				open: func(string) (int, error) {
					return -1, errNetnsMock
				},
				setns: defaultSetns,
			},
			wantErr:    ErrOpenFailed,
			wantClosed: []int{originFd},
		},
		{
			name: "setns fails",
			ops: &mockNsOps{
				current: defaultCurrent,
				open:    defaultOpen,
				setns: func(int, int) error {
					return errNetnsMock
				},
			},
			wantErr:    ErrSetFailed,
			wantClosed: []int{targetFd, originFd},
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, tt.ops)

			h, err := c.Enter("ns1")
			require.Nil(t, h)
			require.True(t, errors.Is(err, tt.wantErr))
			require.True(t, errors.Is(err, errNetnsMock))
			require.Equal(t, tt.wantClosed, tt.ops.closed)
			// the origin is never switched back to when the switch did not happen
			for _, call := range tt.ops.setnsCalls {
				require.NotEqual(t, originFd, call.fd)
			}
		})
	}
}

func TestEnterRelease(t *testing.T) {
	ops := newMockOps()
	c := newTestClient(t, ops)

	h, err := c.Enter("ns1")
	require.NoError(t, err)
	require.Equal(t, "/var/run/netns/ns1", h.Path())

	require.NoError(t, h.Release())
	require.Equal(t, []setnsCall{
		{fd: targetFd, nstype: unix.CLONE_NEWNET},
		{fd: originFd, nstype: 0},
	}, ops.setnsCalls)
	require.ElementsMatch(t, []int{targetFd, originFd}, ops.closed)

	// a second release is a no-op
	require.NoError(t, h.Release())
	require.Len(t, ops.setnsCalls, 2)
	require.Len(t, ops.closed, 2)
}

func TestEnterByPID(t *testing.T) {
	ops := newMockOps()
	var opened string
	ops.open = func(path string) (int, error) {
		opened = path
		return targetFd, nil
	}
	c := newTestClient(t, ops)

	h, err := c.EnterByPID(42)
	require.NoError(t, err)
	require.Equal(t, "/proc/42/ns/net", opened)
	require.NoError(t, h.Release())
}

func TestReleaseRestoreFailed(t *testing.T) {
	ops := newMockOps()
	ops.setns = func(fd, _ int) error {
		if fd == originFd {
			return errNetnsMock
		}
		return nil
	}
	c := newTestClient(t, ops)

	var enterErr, releaseErr, againErr error
	runLocked(func() {
		h, err := c.Enter("ns1")
		if enterErr = err; err != nil {
			return
		}
		releaseErr = h.Release()
		againErr = h.Release()
	})

	require.NoError(t, enterErr)
	require.True(t, errors.Is(releaseErr, ErrRestoreFailed))
	require.True(t, errors.Is(releaseErr, errNetnsMock))
	require.ElementsMatch(t, []int{targetFd, originFd}, ops.closed)
	require.NoError(t, againErr)
	require.Len(t, ops.setnsCalls, 2)
}

func TestDo(t *testing.T) {
	ops := newMockOps()
	c := newTestClient(t, ops)

	ran := false
	err := c.Do("ns1", func() error {
		ran = true
		require.Len(t, ops.setnsCalls, 1)
		return nil
	})
	require.NoError(t, err)
	require.True(t, ran)
	require.Len(t, ops.setnsCalls, 2)
	require.Equal(t, originFd, ops.setnsCalls[1].fd)
}

func TestDoCombinesErrors(t *testing.T) {
	ops := newMockOps()
	ops.setns = func(fd, _ int) error {
		if fd == originFd {
			return errNetnsMock
		}
		return nil
	}
	c := newTestClient(t, ops)

	errWork := errors.New("work failed")
	var err error
	runLocked(func() {
		err = c.Do("ns1", func() error {
			return errWork
		})
	})
	require.True(t, errors.Is(err, errWork))
	require.True(t, errors.Is(err, ErrRestoreFailed))
}

func TestDoNotFoundSkipsFn(t *testing.T) {
	ops := newMockOps()
	c := newTestClient(t, ops)

	err := c.Do("missing", func() error {
		t.Fatal("fn must not run")
		return nil
	})
	require.True(t, errors.Is(err, ErrNotFound))
}

func TestDoReleasesOnPanic(t *testing.T) {
	ops := newMockOps()
	c := newTestClient(t, ops)

	require.Panics(t, func() {
		_ = c.Do("ns1", func() error {
			panic("boom")
		})
	})
	require.Len(t, ops.setnsCalls, 2)
	require.Equal(t, setnsCall{fd: originFd, nstype: 0}, ops.setnsCalls[1])
}

func TestEnterRealNamespace(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires root")
	}

	c := NewClient(NewRegistry(afero.NewOsFs(), DefaultPrimaryRoot, DefaultAltRoot), zap.NewNop())

	var enterErr, releaseErr error
	runLocked(func() {
		h, err := c.EnterPath("/proc/self/ns/net")
		if enterErr = err; err != nil {
			return
		}
		releaseErr = h.Release()
	})
	require.NoError(t, enterErr)
	require.NoError(t, releaseErr)
}

// threadNamespace identifies the network namespace of the calling thread.
func threadNamespace() (string, error) {
	return os.Readlink(fmt.Sprintf("/proc/%d/task/%d/ns/net", os.Getpid(), unix.Gettid()))
}

// newNamedNamespace creates a namespace under DefaultPrimaryRoot from a
// throwaway thread, so the test goroutine's thread is never switched.
func newNamedNamespace(t *testing.T, name string) {
	t.Helper()

	var err error
	runLocked(func() {
		runtime.LockOSThread()
		var nsHandle netns.NsHandle
		if nsHandle, err = netns.NewNamed(name); err != nil {
			return
		}
		err = nsHandle.Close()
		// the thread stays locked and is discarded with the goroutine
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, netns.DeleteNamed(name))
	})
}

func TestEnterReleaseSwitchesThread(t *testing.T) {
	if unix.Geteuid() != 0 {
		t.Skip("requires root")
	}

	name := fmt.Sprintf("netns-inspect-test-%d", os.Getpid())
	newNamedNamespace(t, name)

	root := t.TempDir()
	require.NoError(t, os.Symlink(filepath.Join(DefaultPrimaryRoot, name), filepath.Join(root, name)))
	c := NewClient(NewRegistry(afero.NewOsFs(), root, filepath.Join(root, "alt")), zap.NewNop())
	require.True(t, c.Has(name))

	var (
		before, inside, after          string
		enterErr, releaseErr           error
		beforeErr, insideErr, afterErr error
	)
	runLocked(func() {
		runtime.LockOSThread()
		before, beforeErr = threadNamespace()

		h, err := c.Enter(name)
		if enterErr = err; err != nil {
			return
		}
		inside, insideErr = threadNamespace()
		releaseErr = h.Release()
		after, afterErr = threadNamespace()

		if releaseErr == nil {
			runtime.UnlockOSThread()
		}
	})

	require.NoError(t, beforeErr)
	require.NoError(t, enterErr)
	require.NoError(t, insideErr)
	require.NoError(t, releaseErr)
	require.NoError(t, afterErr)
	require.NotEqual(t, before, inside)
	require.Equal(t, before, after)
}
