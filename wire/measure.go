// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
)

// Measure carries a report emitted by a datapath program: the current Cwnd
// and Rate followed by the program's Report fields in declaration order,
// all as 64-bit values. A Measure with no fields signals that the datapath
// has torn the flow down.
type Measure struct {
	Sid        uint32
	ProgramUID uint32
	Fields     []uint64
}

func (m *Measure) Type() MsgType    { return MsgMeasure }
func (m *Measure) SocketID() uint32 { return m.Sid }
func (m *Measure) bodyLen() int     { return 8 + 8*len(m.Fields) }

func (m *Measure) String() string {
	return fmt.Sprintf("Measure(sid=%d, program_uid=%d, %d fields)",
		m.Sid, m.ProgramUID, len(m.Fields))
}

func (m *Measure) appendBody(buf []byte) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint32(tmp[:4], m.ProgramUID)
	buf = append(buf, tmp[:4]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(m.Fields)))
	buf = append(buf, tmp[:4]...)
	for _, f := range m.Fields {
		binary.LittleEndian.PutUint64(tmp[:], f)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func (m *Measure) parseBody(sid uint32, body []byte) error {
	if len(body) < 8 {
		return malformed("Measure body of %d bytes", len(body))
	}
	m.Sid = sid
	m.ProgramUID = binary.LittleEndian.Uint32(body[0:4])
	numFields := binary.LittleEndian.Uint32(body[4:8])
	body = body[8:]

	if len(body) < 8*int(numFields) {
		return malformed("Measure claims %d fields, body has %d bytes", numFields, len(body))
	}
	m.Fields = nil
	for i := 0; i < int(numFields); i++ {
		m.Fields = append(m.Fields, binary.LittleEndian.Uint64(body[8*i:]))
	}
	return nil
}
