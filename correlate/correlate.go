// Copyright 2017 Microsoft. All rights reserved.
// MIT License

// Package correlate attributes link devices to the containers that own them.
package correlate

import (
	"strings"

	"github.com/Azure/azure-netns-inspect/containers"
	"github.com/Azure/azure-netns-inspect/netlink"
)

// DefaultNamespace is the name under which the host namespace is reported.
// Containers are never matched against it by name.
const DefaultNamespace = "default"

// device addresses one LinkDevice by position, so no pointer into a Devices
// slice is held while the slices are walked.
type device struct {
	ns  int
	dev int
}

type engine struct {
	namespaces []netlink.Links
	containers []containers.Container
	devices    []device
	// candidates[i] is the container matched by name for devices[i], or -1.
	candidates []int
	// byIndex maps a raw interface index to a position in devices.
	byIndex map[uint32]int
}

// Correlate sets Container on every device that belongs to a container,
// either because its namespace name matches a container sandbox or because
// its veth peer index does. Devices are updated in place. Containers are
// copied into the devices and never modified.
func Correlate(namespaces []netlink.Links, cs []containers.Container) {
	e := &engine{
		namespaces: namespaces,
		containers: cs,
		byIndex:    make(map[uint32]int),
	}
	e.collect()
	e.index()
	e.attach()
}

// collect builds the device arena and the name based candidate of each
// non-loopback device.
func (e *engine) collect() {
	for i := range e.namespaces {
		match := e.match(e.namespaces[i].Namespace)
		for j := range e.namespaces[i].Devices {
			if e.namespaces[i].Devices[j].IsLoopback() {
				continue
			}
			e.devices = append(e.devices, device{ns: i, dev: j})
			e.candidates = append(e.candidates, match)
		}
	}
}

// match returns the last container whose sandbox key ends with namespace.
func (e *engine) match(namespace string) int {
	if namespace == DefaultNamespace {
		return -1
	}
	found := -1
	for i := range e.containers {
		if strings.HasSuffix(e.containers[i].SandboxKey, namespace) {
			found = i
		}
	}
	return found
}

// index flattens the devices by interface index. Indices are only unique
// per namespace; on collision the later namespace wins.
func (e *engine) index() {
	for h, d := range e.devices {
		e.byIndex[e.namespaces[d.ns].Devices[d.dev].Index] = h
	}
}

func (e *engine) attach() {
	for i := range e.namespaces {
		devices := e.namespaces[i].Devices
		for j := range devices {
			if c := e.lookup(devices[j].Index); c >= 0 {
				devices[j].Container = e.container(c)
			}
			if devices[j].PeerIndex == nil {
				continue
			}
			if c := e.lookup(*devices[j].PeerIndex); c >= 0 {
				devices[j].Container = e.container(c)
			}
		}
	}
}

// lookup returns the candidate container of the device indexed under index,
// or -1.
func (e *engine) lookup(index uint32) int {
	h, ok := e.byIndex[index]
	if !ok {
		return -1
	}
	return e.candidates[h]
}

func (e *engine) container(i int) *containers.Container {
	c := e.containers[i]
	return &c
}
