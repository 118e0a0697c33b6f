// Copyright 2017 Microsoft. All rights reserved.
// MIT License

package netlink

import (
	"fmt"
	"net"
	"strconv"

	jsoniter "github.com/json-iterator/go"

	"github.com/Azure/azure-netns-inspect/containers"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// LoopbackIndex is the interface index the kernel gives the loopback device.
const LoopbackIndex uint32 = 1

// shortIDLen is how much of a container ID is displayed.
const shortIDLen = 12

// LinkDevice is one network interface as reported by the kernel.
type LinkDevice struct {
	Name  string
	Index uint32
	Kind  *LinkKind
	// PeerIndex is the interface index of the other end of a veth pair. It
	// may refer to a device in another namespace.
	PeerIndex *uint32

	MTU          uint32
	HardwareAddr net.HardwareAddr
	OperState    string
	MasterIndex  *uint32
	NetNsID      *int32

	// Container is set by correlation only.
	Container *containers.Container
}

// Links holds the devices of one network namespace in kernel dump order.
type Links struct {
	Namespace string       `json:"namespace"`
	Devices   []LinkDevice `json:"devices"`
}

// IsLoopback reports whether the device holds the loopback interface index.
func (d *LinkDevice) IsLoopback() bool {
	return d.Index == LoopbackIndex
}

// IsVeth reports whether the device is one end of a veth pair.
func (d *LinkDevice) IsVeth() bool {
	return d.Kind != nil && d.Kind.Equal(LinkKindVeth)
}

// IndexString is the display form of the interface index.
func (d *LinkDevice) IndexString() string {
	return strconv.FormatUint(uint64(d.Index), 10)
}

// KindString is the display form of the link kind, empty when unknown.
func (d *LinkDevice) KindString() string {
	if d.Kind == nil {
		return ""
	}
	return d.Kind.String()
}

// PeerString is the display form of the veth peer index, empty when absent.
func (d *LinkDevice) PeerString() string {
	if d.PeerIndex == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*d.PeerIndex), 10)
}

// ContainerString is the display form of the owning container, empty when absent.
func (d *LinkDevice) ContainerString() string {
	if d.Container == nil {
		return ""
	}
	return fmt.Sprintf("ID: %s, Name: %s", d.Container.ShortID(shortIDLen), d.Container.Name)
}

type linkDeviceJSON struct {
	Name         string                `json:"name"`
	Index        uint32                `json:"ifIndex"`
	Kind         *LinkKind             `json:"kind,omitempty"`
	PeerIndex    *uint32               `json:"vethPeerIndex,omitempty"`
	MTU          uint32                `json:"mtu,omitempty"`
	HardwareAddr string                `json:"hardwareAddr,omitempty"`
	OperState    string                `json:"operState,omitempty"`
	MasterIndex  *uint32               `json:"masterIndex,omitempty"`
	NetNsID      *int32                `json:"linkNetnsId,omitempty"`
	Container    *containers.Container `json:"container,omitempty"`
}

// MarshalJSON writes the hardware address in its colon separated form.
func (d LinkDevice) MarshalJSON() ([]byte, error) {
	v := linkDeviceJSON{
		Name:        d.Name,
		Index:       d.Index,
		Kind:        d.Kind,
		PeerIndex:   d.PeerIndex,
		MTU:         d.MTU,
		OperState:   d.OperState,
		MasterIndex: d.MasterIndex,
		NetNsID:     d.NetNsID,
		Container:   d.Container,
	}
	if len(d.HardwareAddr) > 0 {
		v.HardwareAddr = d.HardwareAddr.String()
	}
	return json.Marshal(v)
}
