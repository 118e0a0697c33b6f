// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netlink

import (
	"context"
	"fmt"
	"io"
	"sync"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

type linkResult struct {
	device LinkDevice
	err    error
	end    bool
}

// LinkStream delivers the devices of one RTM_GETLINK dump as a background
// driver decodes them. The stream is finite and can be consumed once.
type LinkStream struct {
	ctx     context.Context
	cancel  context.CancelFunc
	results <-chan linkResult
	done    <-chan struct{}
	conn    conn
	err     error
	once    sync.Once
}

// startLinkDump sends a link dump request on c and starts the driver that
// pumps replies into the returned stream. The stream owns c from here on.
func startLinkDump(ctx context.Context, c conn) (*LinkStream, error) {
	req := newRequest(unix.RTM_GETLINK, unix.NLM_F_DUMP)
	req.addPayload(newIfInfoMsg())

	if err := c.send(req); err != nil {
		return nil, &Error{Op: ErrRequest, Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	results := make(chan linkResult)
	done := make(chan struct{})

	go drive(ctx, c, req.Seq, results, done)

	return &LinkStream{
		ctx:     ctx,
		cancel:  cancel,
		results: results,
		done:    done,
		conn:    c,
	}, nil
}

// Next returns the next device in kernel order. It returns io.EOF once the
// kernel has sent the end of the dump.
func (st *LinkStream) Next() (LinkDevice, error) {
	if st.err != nil {
		return LinkDevice{}, st.err
	}

	select {
	case r, ok := <-st.results:
		switch {
		case !ok:
			// The driver stopped without reaching the end of the dump.
			st.err = &Error{Op: ErrDriver, Err: st.ctx.Err()}
		case r.err != nil:
			st.err = r.err
		case r.end:
			st.err = io.EOF
		default:
			return r.device, nil
		}
	case <-st.ctx.Done():
		st.err = &Error{Op: ErrDriver, Err: st.ctx.Err()}
	}

	return LinkDevice{}, st.err
}

// Close stops the driver and closes the underlying connection.
func (st *LinkStream) Close() error {
	var err error
	st.once.Do(func() {
		st.cancel()
		<-st.done
		err = st.conn.close()
	})
	return err
}

// Collect drains the stream into a Links for namespace. Either the whole dump
// is returned or an error.
func (st *LinkStream) Collect(namespace string) (Links, error) {
	links := Links{Namespace: namespace}
	seen := make(map[uint32]struct{})

	for {
		dev, err := st.Next()
		if err == io.EOF {
			return links, nil
		}
		if err != nil {
			return Links{}, err
		}

		if _, ok := seen[dev.Index]; ok {
			return Links{}, &Error{Op: ErrDriver, Err: fmt.Errorf("duplicate interface index %d", dev.Index)}
		}
		seen[dev.Index] = struct{}{}

		links.Devices = append(links.Devices, dev)
	}
}

// drive reads replies for the request seq until the end of the dump, an error,
// or cancellation. Every decoded device is handed to the consumer in order.
func drive(ctx context.Context, c conn, seq uint32, results chan<- linkResult, done chan<- struct{}) {
	defer close(done)
	defer close(results)

	emit := func(r linkResult) bool {
		select {
		case results <- r:
			return true
		case <-ctx.Done():
			return false
		}
	}

	var interrupted bool
	for {
		if ctx.Err() != nil {
			return
		}

		msgs, err := c.receive()
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			emit(linkResult{err: &Error{Op: ErrDriver, Err: err}})
			return
		}

		for i := range msgs {
			m := &msgs[i]

			// Ignore if the message is not in response to the sent message.
			if m.Header.Seq != seq || m.Header.Pid != c.portID() {
				continue
			}

			if m.Header.Flags&unix.NLM_F_DUMP_INTR != 0 {
				interrupted = true
			}

			switch m.Header.Type {
			case unix.NLMSG_DONE:
				if err := errnoFrom(m); err != nil {
					emit(linkResult{err: &Error{Op: ErrDriver, Err: err}})
					return
				}
				if interrupted {
					emit(linkResult{err: &Error{Op: ErrDumpInterrupted}})
					return
				}
				emit(linkResult{end: true})
				return
			case unix.NLMSG_ERROR:
				err := errnoFrom(m)
				if err == nil {
					err = errors.New("unexpected ack during dump")
				}
				emit(linkResult{err: &Error{Op: ErrDriver, Err: err}})
				return
			case unix.RTM_NEWLINK:
				dev, err := parseLinkMessage(m)
				if err != nil {
					emit(linkResult{err: &Error{Op: ErrDriver, Err: err}})
					return
				}
				if !emit(linkResult{device: dev}) {
					return
				}
			}
		}
	}
}

// errnoFrom decodes the error code carried by NLMSG_ERROR and NLMSG_DONE.
func errnoFrom(m *syscall.NetlinkMessage) error {
	if len(m.Data) < 4 {
		return nil
	}
	code := int32(encoder.Uint32(m.Data[0:4]))
	if code == 0 {
		return nil
	}
	if code < 0 {
		code = -code
	}
	return syscall.Errno(code)
}
