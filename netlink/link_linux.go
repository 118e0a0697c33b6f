// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netlink

import (
	"fmt"
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// operStates names the IF_OPER_* values from RFC 2863.
var operStates = map[uint8]string{
	0: "unknown",
	1: "notpresent",
	2: "down",
	3: "lowerlayerdown",
	4: "testing",
	5: "dormant",
	6: "up",
}

// parseLinkMessage decodes an RTM_NEWLINK message into a LinkDevice.
func parseLinkMessage(m *syscall.NetlinkMessage) (LinkDevice, error) {
	var dev LinkDevice

	if m.Header.Type != unix.RTM_NEWLINK {
		return dev, fmt.Errorf("unexpected message type %d", m.Header.Type)
	}

	ifInfo, err := parseIfInfoMsg(m.Data)
	if err != nil {
		return dev, err
	}
	dev.Index = uint32(ifInfo.Index)

	attrs, err := parseAttributes(m.Data[unix.SizeofIfInfomsg:])
	if err != nil {
		return dev, fmt.Errorf("link %d: %w", dev.Index, err)
	}

	var link *uint32
	for _, attr := range attrs {
		switch attr.attrType() {
		case unix.IFLA_IFNAME:
			dev.Name = attr.string()
		case unix.IFLA_LINKINFO:
			kind, err := parseLinkInfo(attr.value)
			if err != nil {
				return dev, fmt.Errorf("link %d: %w", dev.Index, err)
			}
			dev.Kind = kind
		case unix.IFLA_LINK:
			v, err := attr.uint32()
			if err != nil {
				return dev, err
			}
			link = &v
		case unix.IFLA_MTU:
			if dev.MTU, err = attr.uint32(); err != nil {
				return dev, err
			}
		case unix.IFLA_ADDRESS:
			dev.HardwareAddr = append(net.HardwareAddr(nil), attr.value...)
		case unix.IFLA_OPERSTATE:
			v, err := attr.uint8()
			if err != nil {
				return dev, err
			}
			dev.OperState = operStates[v]
		case unix.IFLA_MASTER:
			v, err := attr.uint32()
			if err != nil {
				return dev, err
			}
			dev.MasterIndex = &v
		case unix.IFLA_LINK_NETNSID:
			v, err := attr.uint32()
			if err != nil {
				return dev, err
			}
			id := int32(v)
			dev.NetNsID = &id
		}
	}

	// IFLA_LINK names the parent for vlan and macvlan devices too; only a
	// veth's link is its peer.
	if link != nil && dev.IsVeth() {
		dev.PeerIndex = link
	}

	return dev, nil
}

// parseLinkInfo extracts IFLA_INFO_KIND from a nested IFLA_LINKINFO value.
func parseLinkInfo(b []byte) (*LinkKind, error) {
	infos, err := parseAttributes(b)
	if err != nil {
		return nil, err
	}

	for _, info := range infos {
		if info.attrType() == IFLA_INFO_KIND {
			kind := ParseLinkKind(info.string())
			return &kind, nil
		}
	}

	return nil, nil
}
