// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netns

import (
	"runtime"

	"github.com/spf13/afero"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

type nsOps interface {
	Current() (fileDescriptor int, path string, err error)
	Open(path string) (fileDescriptor int, err error)
	Setns(fileDescriptor int, nstype int) error
	Close(fileDescriptor int) error
}

// Client switches the calling thread between network namespaces.
type Client struct {
	ops      nsOps
	registry *Registry
	fs       afero.Fs
	logger   *zap.Logger
}

// NewClient returns a Client resolving names through registry.
func NewClient(registry *Registry, logger *zap.Logger) *Client {
	return &Client{
		ops:      New(),
		registry: registry,
		fs:       registry.fs,
		logger:   logger,
	}
}

// Handle is an active switch of the calling thread into a namespace. The
// thread stays locked to its goroutine until Release restores the original
// namespace.
type Handle struct {
	ops        nsOps
	logger     *zap.Logger
	fd         int
	path       string
	origin     int
	originPath string
	active     bool
}

// Names lists the registered namespace names.
func (c *Client) Names() ([]string, error) {
	return c.registry.Names()
}

// Has reports whether name is registered.
func (c *Client) Has(name string) bool {
	return c.registry.Has(name)
}

// Enter switches the calling thread into the named namespace.
func (c *Client) Enter(name string) (*Handle, error) {
	path, err := c.registry.Resolve(name)
	if err != nil {
		return nil, err
	}
	return c.EnterPath(path)
}

// EnterByPID switches the calling thread into the network namespace of pid.
func (c *Client) EnterByPID(pid int) (*Handle, error) {
	path := PIDPath(pid)
	if ok, _ := afero.Exists(c.fs, path); !ok {
		return nil, &Error{Kind: ErrNotFound, Op: "resolve", Path: path}
	}
	return c.EnterPath(path)
}

// EnterPath switches the calling thread into the namespace file at path. On
// error the thread is left in its original namespace and unlocked.
func (c *Client) EnterPath(path string) (*Handle, error) {
	runtime.LockOSThread()

	origin, originPath, err := c.ops.Current()
	if err != nil {
		runtime.UnlockOSThread()
		return nil, &Error{Kind: ErrOpenFailed, Op: "open origin", Path: originPath, Err: err}
	}

	fd, err := c.ops.Open(path)
	if err != nil {
		c.close(origin)
		runtime.UnlockOSThread()
		return nil, &Error{Kind: ErrOpenFailed, Op: "open", Path: path, Err: err}
	}

	if err := c.ops.Setns(fd, unix.CLONE_NEWNET); err != nil {
		c.close(fd)
		c.close(origin)
		runtime.UnlockOSThread()
		return nil, &Error{Kind: ErrSetFailed, Op: "setns", Path: path, Err: err}
	}

	c.logger.Debug("Entered namespace", zap.String("path", path), zap.String("origin", originPath))

	return &Handle{
		ops:        c.ops,
		logger:     c.logger,
		fd:         fd,
		path:       path,
		origin:     origin,
		originPath: originPath,
		active:     true,
	}, nil
}

// Do runs fn inside the named namespace and restores the original namespace
// afterwards, including when fn panics. A restore failure is returned
// alongside any error from fn.
func (c *Client) Do(name string, fn func() error) (err error) {
	h, err := c.Enter(name)
	if err != nil {
		return err
	}

	defer func() {
		if rerr := h.Release(); rerr != nil {
			err = multierr.Append(err, rerr)
		}
	}()

	return fn()
}

func (c *Client) close(fd int) {
	if err := c.ops.Close(fd); err != nil {
		c.logger.Warn("Failed to close namespace handle", zap.Int("fd", fd), zap.Error(err))
	}
}

// Path returns the namespace file the handle entered.
func (h *Handle) Path() string {
	return h.path
}

// Release switches the thread back to its original namespace. It is a no-op
// once the handle has been released. If the restore fails the thread is left
// locked, so it is discarded when its goroutine exits instead of being reused
// in an unknown namespace.
func (h *Handle) Release() error {
	if !h.active {
		return nil
	}
	h.active = false

	if err := h.ops.Close(h.fd); err != nil {
		h.logger.Warn("Failed to close namespace handle", zap.String("path", h.path), zap.Error(err))
	}
	h.fd = -1

	// nstype 0 accepts any namespace type, a plain restore
	err := h.ops.Setns(h.origin, 0)
	if cerr := h.ops.Close(h.origin); cerr != nil {
		h.logger.Warn("Failed to close origin namespace handle", zap.String("path", h.originPath), zap.Error(cerr))
	}
	h.origin = -1

	if err != nil {
		h.logger.Error("Failed to restore namespace", zap.String("path", h.path), zap.String("origin", h.originPath), zap.Error(err))
		return &Error{Kind: ErrRestoreFailed, Op: "restore", Path: h.originPath, Err: err}
	}

	runtime.UnlockOSThread()
	h.logger.Debug("Restored namespace", zap.String("origin", h.originPath))
	return nil
}
