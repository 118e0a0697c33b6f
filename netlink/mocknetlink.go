package netlink

import (
	"context"
	"errors"
	"fmt"
)

var errorMockNetlink = errors.New("Mock Netlink Error")

func newErrorMockNetlink(errStr string) error {
	return fmt.Errorf("%w : %s", errorMockNetlink, errStr)
}

// MockEnumerator returns canned links per namespace.
type MockEnumerator struct {
	links  map[string]Links
	failOn map[string]string
	calls  []string
}

func NewMockEnumerator(links ...Links) *MockEnumerator {
	m := &MockEnumerator{
		links:  make(map[string]Links),
		failOn: make(map[string]string),
	}
	for _, l := range links {
		m.links[l.Namespace] = l
	}
	return m
}

// FailOn makes Links return an error for namespace.
func (m *MockEnumerator) FailOn(namespace, errorString string) {
	m.failOn[namespace] = errorString
}

// Calls returns the namespaces Links was called for, in order.
func (m *MockEnumerator) Calls() []string {
	return m.calls
}

func (m *MockEnumerator) Links(_ context.Context, namespace string) (Links, error) {
	m.calls = append(m.calls, namespace)
	if errStr, ok := m.failOn[namespace]; ok {
		return Links{}, &Error{Op: ErrDriver, Err: newErrorMockNetlink(errStr)}
	}

	l, ok := m.links[namespace]
	if !ok {
		return Links{Namespace: namespace}, nil
	}

	// callers own the result, including the devices slice
	out := Links{Namespace: l.Namespace, Devices: make([]LinkDevice, len(l.Devices))}
	copy(out.Devices, l.Devices)
	return out, nil
}
