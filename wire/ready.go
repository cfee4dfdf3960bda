// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"
)

// Ready announces a datapath. It is the first message a datapath sends
// after startup and carries its build id, which the core records and
// exposes; no wire layout in this package depends on it.
type Ready struct {
	BuildID uint32
}

func (m *Ready) Type() MsgType    { return MsgReady }
func (m *Ready) SocketID() uint32 { return 0 }
func (m *Ready) bodyLen() int     { return 4 }

func (m *Ready) String() string {
	return fmt.Sprintf("Ready(build_id=%d)", m.BuildID)
}

func (m *Ready) appendBody(buf []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], m.BuildID)
	return append(buf, tmp[:]...)
}

func (m *Ready) parseBody(_ uint32, body []byte) error {
	if len(body) < 4 {
		return malformed("Ready body of %d bytes", len(body))
	}
	m.BuildID = binary.LittleEndian.Uint32(body)
	return nil
}
