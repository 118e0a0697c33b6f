// Copyright 2017 Microsoft. All rights reserved.
// MIT License

//go:build linux
// +build linux

package netlink

import (
	"encoding/binary"
	"fmt"
	"unsafe"

	"golang.org/x/sys/unix"
)

// Netlink protocol constants that are not already defined in unix package.
const (
	IFLA_INFO_KIND = 1
	IFLA_INFO_DATA = 2
	VETH_INFO_PEER = 1

	nlaTypeMask = ^uint16(unix.NLA_F_NESTED | unix.NLA_F_NET_BYTEORDER)
)

// Serializable types are used to construct netlink messages.
type serializable interface {
	serialize() []byte
	length() int
}

// Byte encoder
var encoder binary.ByteOrder

// Initializes netlink module.
func init() {
	initEncoder()
}

// Initializes the byte encoder.
func initEncoder() {
	var x uint32 = 0x01020304
	if *(*byte)(unsafe.Pointer(&x)) == 0x01 {
		encoder = binary.BigEndian
	} else {
		encoder = binary.LittleEndian
	}
}

//
// Netlink message
//

// Generic netlink message
type message struct {
	unix.NlMsghdr
	payload []serializable
}

// Creates a new netlink message.
func newMessage(msgType int, flags int) *message {
	return &message{
		NlMsghdr: unix.NlMsghdr{
			Len:   uint32(unix.NLMSG_HDRLEN),
			Type:  uint16(msgType),
			Flags: uint16(flags),
			Seq:   0,
			Pid:   0,
		},
	}
}

// Creates a new netlink request message.
func newRequest(msgType int, flags int) *message {
	return newMessage(msgType, flags|unix.NLM_F_REQUEST)
}

// Appends protocol specific payload to a netlink message.
func (msg *message) addPayload(payload serializable) {
	if payload != nil {
		msg.payload = append(msg.payload, payload)
	}
}

// Serializes a netlink message.
func (msg *message) serialize() []byte {
	// Serialize the protocol specific payload.
	msg.Len = uint32(unix.NLMSG_HDRLEN)
	payload := make([][]byte, len(msg.payload))
	for i, p := range msg.payload {
		payload[i] = p.serialize()
		msg.Len += uint32(len(payload[i]))
	}

	// Serialize the message header.
	b := make([]byte, msg.Len)
	encoder.PutUint32(b[0:4], msg.Len)
	encoder.PutUint16(b[4:6], msg.Type)
	encoder.PutUint16(b[6:8], msg.Flags)
	encoder.PutUint32(b[8:12], msg.Seq)
	encoder.PutUint32(b[12:16], msg.Pid)

	// Append the payload.
	next := unix.NLMSG_HDRLEN
	for _, p := range payload {
		copy(b[next:], p)
		next += len(p)
	}

	return b
}

//
// Netlink message attribute
//

// Generic netlink message attribute
type attribute struct {
	unix.NlAttr
	value    []byte
	children []serializable
}

// Creates a new attribute.
func newAttribute(attrType int, value []byte) *attribute {
	return &attribute{
		NlAttr: unix.NlAttr{
			Type: uint16(attrType),
		},
		value:    value,
		children: []serializable{},
	}
}

// Creates a new attribute with a null-terminated string value.
func newAttributeStringZ(attrType int, value string) *attribute {
	return newAttribute(attrType, []byte(value+"\000"))
}

// Creates a new attribute with a uint32 value.
func newAttributeUint32(attrType int, value uint32) *attribute {
	buf := make([]byte, 4)
	encoder.PutUint32(buf, value)
	return newAttribute(attrType, buf)
}

// Adds a nested attribute to an attribute.
func (attr *attribute) addNested(nested serializable) {
	attr.children = append(attr.children, nested)
}

// Serializes an attribute.
func (attr *attribute) serialize() []byte {
	length := attr.length()
	buf := make([]byte, length)

	// Encode length, excluding the trailing alignment padding.
	encoder.PutUint16(buf[0:2], uint16(attr.unpaddedLength()))

	// Encode type.
	encoder.PutUint16(buf[2:4], attr.Type)

	if attr.value != nil {
		// Encode value.
		copy(buf[unix.SizeofNlAttr:], attr.value)
	} else {
		// Serialize any nested attributes.
		offset := unix.SizeofNlAttr
		for _, child := range attr.children {
			childBuf := child.serialize()
			copy(buf[offset:], childBuf)
			offset += len(childBuf)
		}
	}

	return buf
}

func (attr *attribute) unpaddedLength() int {
	l := unix.SizeofNlAttr + len(attr.value)
	for _, child := range attr.children {
		l += child.length()
	}
	return l
}

// Returns the aligned length of an attribute.
func (attr *attribute) length() int {
	return nlaAlign(attr.unpaddedLength())
}

// attrType returns the attribute type with the nested and byte order flags cleared.
func (attr *attribute) attrType() uint16 {
	return attr.Type & nlaTypeMask
}

func (attr *attribute) uint8() (uint8, error) {
	if len(attr.value) < 1 {
		return 0, fmt.Errorf("attribute %d: short uint8 value", attr.attrType())
	}
	return attr.value[0], nil
}

func (attr *attribute) uint32() (uint32, error) {
	if len(attr.value) < 4 {
		return 0, fmt.Errorf("attribute %d: short uint32 value (%d bytes)", attr.attrType(), len(attr.value))
	}
	return encoder.Uint32(attr.value[0:4]), nil
}

// string decodes a possibly null-terminated string value.
func (attr *attribute) string() string {
	v := attr.value
	for i, c := range v {
		if c == 0 {
			v = v[:i]
			break
		}
	}
	return string(v)
}

func nlaAlign(length int) int {
	return (length + unix.NLA_ALIGNTO - 1) & ^(unix.NLA_ALIGNTO - 1)
}

// parseAttributes decodes a run of attributes. Nested attributes are left
// undecoded in value; callers parse them again with parseAttributes.
func parseAttributes(b []byte) ([]*attribute, error) {
	var attrs []*attribute

	for len(b) >= unix.SizeofNlAttr {
		l := int(encoder.Uint16(b[0:2]))
		t := encoder.Uint16(b[2:4])
		if l < unix.SizeofNlAttr || l > len(b) {
			return nil, fmt.Errorf("invalid attribute length %d, %d bytes left", l, len(b))
		}

		attrs = append(attrs, &attribute{
			NlAttr: unix.NlAttr{Len: uint16(l), Type: t},
			value:  b[unix.SizeofNlAttr:l],
		})

		next := nlaAlign(l)
		if next > len(b) {
			break
		}
		b = b[next:]
	}

	return attrs, nil
}

//
// Network interface service module
//

// Interface info message
type ifInfoMsg struct {
	unix.IfInfomsg
}

// Creates a new interface info message.
func newIfInfoMsg() *ifInfoMsg {
	return &ifInfoMsg{
		IfInfomsg: unix.IfInfomsg{
			Family: uint8(unix.AF_UNSPEC),
		},
	}
}

// Serializes an interface info message.
func (ifInfo *ifInfoMsg) serialize() []byte {
	b := make([]byte, ifInfo.length())
	b[0] = ifInfo.Family
	b[1] = 0 // Padding.
	encoder.PutUint16(b[2:4], ifInfo.Type)
	encoder.PutUint32(b[4:8], uint32(ifInfo.Index))
	encoder.PutUint32(b[8:12], ifInfo.Flags)
	encoder.PutUint32(b[12:16], ifInfo.Change)
	return b
}

// Returns the length of an interface info message.
func (ifInfo *ifInfoMsg) length() int {
	return unix.SizeofIfInfomsg
}

// parseIfInfoMsg decodes the fixed interface info header at the start of a
// link message body.
func parseIfInfoMsg(b []byte) (*ifInfoMsg, error) {
	if len(b) < unix.SizeofIfInfomsg {
		return nil, fmt.Errorf("short ifinfomsg: %d bytes", len(b))
	}

	return &ifInfoMsg{
		IfInfomsg: unix.IfInfomsg{
			Family: b[0],
			Type:   encoder.Uint16(b[2:4]),
			Index:  int32(encoder.Uint32(b[4:8])),
			Flags:  encoder.Uint32(b[8:12]),
			Change: encoder.Uint32(b[12:16]),
		},
	}, nil
}
