// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netlink

import (
	"fmt"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

const (
	// large enough for a full dump datagram; the kernel sizes them by page
	receiveBufferSize = 65536

	// How long a blocked receive waits before the driver rechecks cancellation.
	receivePollInterval = 250 * time.Millisecond
)

// conn is the message transport a dump runs over.
type conn interface {
	send(msg *message) error
	receive() ([]syscall.NetlinkMessage, error)
	portID() uint32
	close() error
}

// Represents a netlink socket.
type socket struct {
	fd  int
	sa  unix.SockaddrNetlink
	pid uint32
	seq uint32
	buf []byte
	sync.Mutex
}

// newSocket opens a NETLINK_ROUTE socket. The socket is bound to the network
// namespace of the calling thread, so it has to be created after the thread
// has entered the namespace being inspected.
func newSocket() (*socket, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create netlink socket")
	}

	s := &socket{
		fd:  fd,
		seq: 0,
		buf: make([]byte, receiveBufferSize),
	}
	s.sa.Family = unix.AF_NETLINK

	if err = unix.Bind(fd, &s.sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "failed to bind netlink socket")
	}

	// The kernel assigns the port id on bind; replies are addressed to it.
	lsa, err := unix.Getsockname(fd)
	if err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "failed to read netlink socket address")
	}
	if nsa, ok := lsa.(*unix.SockaddrNetlink); ok {
		s.pid = nsa.Pid
	}

	tv := unix.NsecToTimeval(receivePollInterval.Nanoseconds())
	if err = unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "failed to set netlink receive timeout")
	}

	return s, nil
}

// Closes the socket.
func (s *socket) close() error {
	return unix.Close(s.fd)
}

func (s *socket) portID() uint32 {
	return s.pid
}

// Sends a netlink message.
func (s *socket) send(msg *message) error {
	msg.Seq = atomic.AddUint32(&s.seq, 1)
	return unix.Sendto(s.fd, msg.serialize(), 0, &unix.SockaddrNetlink{Family: unix.AF_NETLINK})
}

// Receives a batch of netlink messages. A receive that times out returns
// unix.EAGAIN so the caller can check for cancellation.
func (s *socket) receive() ([]syscall.NetlinkMessage, error) {
	s.Lock()
	defer s.Unlock()

	n, _, err := unix.Recvfrom(s.fd, s.buf, 0)
	if err != nil {
		return nil, err
	}

	if n < unix.NLMSG_HDRLEN {
		return nil, fmt.Errorf("invalid netlink message of %d bytes", n)
	}

	// ParseNetlinkMessage slices into its input; copy so the buffer can be reused.
	b := make([]byte, n)
	copy(b, s.buf[:n])
	return syscall.ParseNetlinkMessage(b)
}
