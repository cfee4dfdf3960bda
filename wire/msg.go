// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
)

// MsgType is the message type code carried in the header's first byte.
type MsgType uint8

// Message type codes, fixed by the datapath contract.
const (
	MsgReady      MsgType = 0
	MsgCreate     MsgType = 1
	MsgMeasure    MsgType = 2
	MsgInstall    MsgType = 3
	MsgUpdate     MsgType = 4
	MsgChangeProg MsgType = 5
	MsgFree       MsgType = 6
)

func (mt MsgType) String() string {
	switch mt {
	case MsgReady:
		return "Ready"
	case MsgCreate:
		return "Create"
	case MsgMeasure:
		return "Measure"
	case MsgInstall:
		return "Install"
	case MsgUpdate:
		return "Update"
	case MsgChangeProg:
		return "ChangeProg"
	case MsgFree:
		return "Free"
	default:
		return fmt.Sprintf("type(%d)", uint8(mt))
	}
}

// HeaderLen is the wire size of the common message header:
// u8 type, u8 reserved, u16 length, u32 socket id.
const HeaderLen = 8

// MaxMsgLen bounds any message; the length field is 16 bits.
const MaxMsgLen = 1<<16 - 1

// ErrMalformed reports a frame which violates the framing rules: too
// short, length not covering the body, or oversize for the transport.
type ErrMalformed struct {
	Reason string
}

func (e *ErrMalformed) Error() string {
	return "malformed message: " + e.Reason
}

func malformed(format string, args ...interface{}) error {
	return &ErrMalformed{Reason: fmt.Sprintf(format, args...)}
}

// ErrUnknownType is returned in strict decoding mode for unassigned type
// codes.
type ErrUnknownType struct {
	Type MsgType
}

func (e *ErrUnknownType) Error() string {
	return fmt.Sprintf("unknown message type %d", uint8(e.Type))
}

// Msg is one protocol message of any type.
type Msg interface {
	// Type returns the message's wire type code.
	Type() MsgType

	// SocketID returns the flow this message is scoped to, zero for Ready.
	SocketID() uint32

	bodyLen() int
	appendBody(buf []byte) []byte
	parseBody(sid uint32, body []byte) error
}

// Append frames a message onto buf and returns the extended buffer. The
// message is rejected before anything is written if it exceeds mtu, or
// MaxMsgLen if mtu is zero.
func Append(buf []byte, m Msg, mtu int) ([]byte, error) {
	total := HeaderLen + m.bodyLen()
	if mtu <= 0 || mtu > MaxMsgLen {
		mtu = MaxMsgLen
	}
	if total > mtu {
		return buf, malformed("%s message of %d bytes exceeds %d byte limit", m.Type(), total, mtu)
	}

	var hdr [HeaderLen]byte
	hdr[0] = uint8(m.Type())
	hdr[1] = 0
	binary.LittleEndian.PutUint16(hdr[2:4], uint16(total))
	binary.LittleEndian.PutUint32(hdr[4:8], m.SocketID())

	buf = append(buf, hdr[:]...)
	return m.appendBody(buf), nil
}

// Decoder decodes datagrams into messages.
type Decoder struct {
	// Strict makes unknown type codes an error instead of a skip.
	Strict bool

	// MTU bounds the accepted message length; zero means MaxMsgLen.
	MTU int
}

// Decode parses one datagram. A nil message with a nil error is returned
// for an unknown type in non-strict mode.
func (d Decoder) Decode(datagram []byte) (Msg, error) {
	if len(datagram) < HeaderLen {
		return nil, malformed("%d bytes is shorter than a header", len(datagram))
	}

	length := int(binary.LittleEndian.Uint16(datagram[2:4]))
	sid := binary.LittleEndian.Uint32(datagram[4:8])

	mtu := d.MTU
	if mtu <= 0 || mtu > MaxMsgLen {
		mtu = MaxMsgLen
	}
	switch {
	case length < HeaderLen:
		return nil, malformed("header length %d shorter than the header itself", length)
	case length > mtu:
		return nil, malformed("header length %d exceeds %d byte limit", length, mtu)
	case length > len(datagram):
		return nil, malformed("header length %d exceeds datagram of %d bytes", length, len(datagram))
	}

	var m Msg
	switch MsgType(datagram[0]) {
	case MsgReady:
		m = &Ready{}
	case MsgCreate:
		m = &Create{}
	case MsgMeasure:
		m = &Measure{}
	case MsgInstall:
		m = &Install{}
	case MsgUpdate:
		m = &Update{}
	case MsgChangeProg:
		m = &ChangeProg{}
	case MsgFree:
		m = &Free{}
	default:
		if d.Strict {
			return nil, &ErrUnknownType{Type: MsgType(datagram[0])}
		}
		return nil, nil
	}

	if err := m.parseBody(sid, datagram[HeaderLen:length]); err != nil {
		return nil, err
	}
	return m, nil
}
