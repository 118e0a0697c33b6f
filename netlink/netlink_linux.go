// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netlink

import (
	"context"
	"time"

	"github.com/avast/retry-go/v3"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

const (
	defaultDumpAttempts = 3
	dumpRetryDelay      = 10 * time.Millisecond
)

// SocketEnumerator lists links with a raw RTM_GETLINK dump. A fresh socket is
// opened for every call so it is bound to the caller's current namespace.
type SocketEnumerator struct {
	logger   *zap.Logger
	dial     func() (conn, error)
	attempts uint
}

// NewSocketEnumerator returns an Enumerator on a raw NETLINK_ROUTE socket.
func NewSocketEnumerator(logger *zap.Logger) *SocketEnumerator {
	return &SocketEnumerator{
		logger:   logger,
		dial:     dialSocket,
		attempts: defaultDumpAttempts,
	}
}

func dialSocket() (conn, error) {
	s, err := newSocket()
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Links dumps every link in the current namespace. An interrupted dump is
// discarded and run again.
func (e *SocketEnumerator) Links(ctx context.Context, namespace string) (Links, error) {
	var links Links

	err := retry.Do(
		func() error {
			l, err := e.dump(ctx, namespace)
			if err != nil {
				return err
			}
			links = l
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(e.attempts),
		retry.Delay(dumpRetryDelay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, ErrDumpInterrupted)
		}),
		retry.OnRetry(func(n uint, err error) {
			e.logger.Debug("Retrying interrupted link dump",
				zap.String("namespace", namespace), zap.Uint("attempt", n+1), zap.Error(err))
		}),
	)
	if err != nil {
		return Links{}, err
	}

	e.logger.Debug("Dumped links", zap.String("namespace", namespace), zap.Int("count", len(links.Devices)))
	return links, nil
}

func (e *SocketEnumerator) dump(ctx context.Context, namespace string) (Links, error) {
	c, err := e.dial()
	if err != nil {
		return Links{}, &Error{Op: ErrSocket, Err: err}
	}

	st, err := startLinkDump(ctx, c)
	if err != nil {
		c.close()
		return Links{}, err
	}
	defer func() {
		if err := st.Close(); err != nil {
			e.logger.Warn("Failed to close netlink socket", zap.Error(err))
		}
	}()

	return st.Collect(namespace)
}

// NewEnumerator returns the Enumerator for the named backend.
func NewEnumerator(backend string, logger *zap.Logger) (Enumerator, error) {
	switch backend {
	case BackendSocket, "":
		return NewSocketEnumerator(logger), nil
	case BackendVishvananda:
		return NewHandleEnumerator(logger), nil
	default:
		return nil, errors.Wrapf(ErrUnknownBackend, "%q", backend)
	}
}
