// Copyright 2021 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netlink

import (
	"context"
	"time"

	vishnetlink "github.com/vishvananda/netlink"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// HandleEnumerator lists links through github.com/vishvananda/netlink. It is
// an alternative to SocketEnumerator for comparing results.
type HandleEnumerator struct {
	logger *zap.Logger
}

// NewHandleEnumerator returns an Enumerator backed by a vishvananda/netlink handle.
func NewHandleEnumerator(logger *zap.Logger) *HandleEnumerator {
	return &HandleEnumerator{logger: logger}
}

type listResult struct {
	links []vishnetlink.Link
	err   error
}

// Links lists every link in the current namespace. The handle's sockets are
// created on the calling thread, so they belong to the namespace it is in.
func (e *HandleEnumerator) Links(ctx context.Context, namespace string) (Links, error) {
	h, err := vishnetlink.NewHandle(unix.NETLINK_ROUTE)
	if err != nil {
		return Links{}, &Error{Op: ErrSocket, Err: err}
	}

	if deadline, ok := ctx.Deadline(); ok {
		if err := h.SetSocketTimeout(time.Until(deadline)); err != nil {
			e.logger.Debug("Failed to set netlink handle timeout", zap.Error(err))
		}
	}

	ch := make(chan listResult, 1)
	go func() {
		l, err := h.LinkList()
		ch <- listResult{links: l, err: err}
	}()

	var r listResult
	select {
	case r = <-ch:
		h.Delete()
	case <-ctx.Done():
		go func() {
			<-ch
			h.Delete()
		}()
		return Links{}, &Error{Op: ErrDriver, Err: ctx.Err()}
	}

	if r.err != nil {
		return Links{}, &Error{Op: ErrDriver, Err: r.err}
	}

	links := Links{Namespace: namespace}
	for _, l := range r.links {
		links.Devices = append(links.Devices, deviceFromLink(l))
	}

	e.logger.Debug("Listed links", zap.String("namespace", namespace), zap.Int("count", len(links.Devices)))
	return links, nil
}

func deviceFromLink(l vishnetlink.Link) LinkDevice {
	attrs := l.Attrs()
	dev := LinkDevice{
		Name:         attrs.Name,
		Index:        uint32(attrs.Index),
		MTU:          uint32(attrs.MTU),
		HardwareAddr: attrs.HardwareAddr,
		OperState:    attrs.OperState.String(),
	}

	switch t := l.Type(); t {
	case "device":
		// no IFLA_LINKINFO
	case "tuntap":
		kind := LinkKindTun
		dev.Kind = &kind
	default:
		kind := ParseLinkKind(t)
		dev.Kind = &kind
	}

	if _, ok := l.(*vishnetlink.Veth); ok && attrs.ParentIndex > 0 {
		peer := uint32(attrs.ParentIndex)
		dev.PeerIndex = &peer
	}
	if attrs.MasterIndex > 0 {
		master := uint32(attrs.MasterIndex)
		dev.MasterIndex = &master
	}
	if attrs.NetNsID >= 0 {
		id := int32(attrs.NetNsID)
		dev.NetNsID = &id
	}

	return dev
}
