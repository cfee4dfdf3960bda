// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
)

// FieldUpdate sets one register to a new value. Class uses the wire
// register-class numbering; writable targets are Permanent and Local
// registers.
type FieldUpdate struct {
	Class uint8
	Idx   uint8
	Value uint64
}

// fieldUpdateSize is the padded wire size of one update entry.
const fieldUpdateSize = 12

func appendFieldUpdates(buf []byte, updates []FieldUpdate) []byte {
	var tmp [8]byte
	for _, u := range updates {
		buf = append(buf, u.Class, u.Idx, 0, 0)
		binary.LittleEndian.PutUint64(tmp[:], u.Value)
		buf = append(buf, tmp[:]...)
	}
	return buf
}

func parseFieldUpdates(body []byte, num uint32) ([]FieldUpdate, error) {
	if len(body) < fieldUpdateSize*int(num) {
		return nil, malformed("%d update entries do not fit in %d bytes", num, len(body))
	}
	var updates []FieldUpdate
	for i := 0; i < int(num); i++ {
		entry := body[fieldUpdateSize*i:]
		updates = append(updates, FieldUpdate{
			Class: entry[0],
			Idx:   entry[1],
			Value: binary.LittleEndian.Uint64(entry[4:12]),
		})
	}
	return updates, nil
}

// Update sets field values on a flow without touching its program.
type Update struct {
	Sid     uint32
	Updates []FieldUpdate
}

func (m *Update) Type() MsgType    { return MsgUpdate }
func (m *Update) SocketID() uint32 { return m.Sid }
func (m *Update) bodyLen() int     { return 4 + fieldUpdateSize*len(m.Updates) }

func (m *Update) String() string {
	return fmt.Sprintf("Update(sid=%d, %d fields)", m.Sid, len(m.Updates))
}

func (m *Update) appendBody(buf []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], uint32(len(m.Updates)))
	buf = append(buf, tmp[:]...)
	return appendFieldUpdates(buf, m.Updates)
}

func (m *Update) parseBody(sid uint32, body []byte) error {
	if len(body) < 4 {
		return malformed("Update body of %d bytes", len(body))
	}
	m.Sid = sid
	num := binary.LittleEndian.Uint32(body[0:4])

	updates, err := parseFieldUpdates(body[4:], num)
	if err != nil {
		return err
	}
	m.Updates = updates
	return nil
}
