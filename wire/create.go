// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
	"net"
)

// Create opens a flow. The datapath sends it when a new connection wants
// congestion control, carrying the connection's parameters and 4-tuple.
type Create struct {
	Sid      uint32
	InitCwnd uint32
	Mss      uint32
	SrcIP    uint32
	SrcPort  uint32
	DstIP    uint32
	DstPort  uint32
}

func (m *Create) Type() MsgType    { return MsgCreate }
func (m *Create) SocketID() uint32 { return m.Sid }
func (m *Create) bodyLen() int     { return 24 }

func (m *Create) String() string {
	src := make(net.IP, 4)
	dst := make(net.IP, 4)
	binary.BigEndian.PutUint32(src, m.SrcIP)
	binary.BigEndian.PutUint32(dst, m.DstIP)
	return fmt.Sprintf("Create(sid=%d, %v:%d -> %v:%d, init_cwnd=%d, mss=%d)",
		m.Sid, src, m.SrcPort, dst, m.DstPort, m.InitCwnd, m.Mss)
}

func (m *Create) appendBody(buf []byte) []byte {
	var tmp [4]byte
	for _, v := range []uint32{m.InitCwnd, m.Mss, m.SrcIP, m.SrcPort, m.DstIP, m.DstPort} {
		binary.LittleEndian.PutUint32(tmp[:], v)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func (m *Create) parseBody(sid uint32, body []byte) error {
	if len(body) < 24 {
		return malformed("Create body of %d bytes", len(body))
	}
	m.Sid = sid
	for i, f := range []*uint32{&m.InitCwnd, &m.Mss, &m.SrcIP, &m.SrcPort, &m.DstIP, &m.DstPort} {
		*f = binary.LittleEndian.Uint32(body[4*i:])
	}
	return nil
}
