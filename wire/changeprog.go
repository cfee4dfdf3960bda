// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
)

// ChangeProg switches a flow to a previously installed program, optionally
// setting field values in the same step. The updates are applied after the
// switch, in list order.
type ChangeProg struct {
	Sid        uint32
	ProgramUID uint32
	Updates    []FieldUpdate
}

func (m *ChangeProg) Type() MsgType    { return MsgChangeProg }
func (m *ChangeProg) SocketID() uint32 { return m.Sid }
func (m *ChangeProg) bodyLen() int     { return 8 + fieldUpdateSize*len(m.Updates) }

func (m *ChangeProg) String() string {
	return fmt.Sprintf("ChangeProg(sid=%d, program_uid=%d, %d fields)",
		m.Sid, m.ProgramUID, len(m.Updates))
}

func (m *ChangeProg) appendBody(buf []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], m.ProgramUID)
	buf = append(buf, tmp[:]...)
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(m.Updates)))
	buf = append(buf, tmp[:]...)
	return appendFieldUpdates(buf, m.Updates)
}

func (m *ChangeProg) parseBody(sid uint32, body []byte) error {
	if len(body) < 8 {
		return malformed("ChangeProg body of %d bytes", len(body))
	}
	m.Sid = sid
	m.ProgramUID = binary.LittleEndian.Uint32(body[0:4])
	num := binary.LittleEndian.Uint32(body[4:8])

	updates, err := parseFieldUpdates(body[8:], num)
	if err != nil {
		return err
	}
	m.Updates = updates
	return nil
}
