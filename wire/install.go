// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/ccp-project/goccp/lang"
)

// Install carries a compiled program to a datapath. The body enumerates the
// program's events, register-class sizes, immediate pool, local descriptors
// and instruction vector.
type Install struct {
	Sid        uint32
	ProgramUID uint32
	Bin        *lang.Bin
}

func (m *Install) Type() MsgType    { return MsgInstall }
func (m *Install) SocketID() uint32 { return m.Sid }
func (m *Install) bodyLen() int     { return 4 + m.Bin.BodySize() }

func (m *Install) String() string {
	return fmt.Sprintf("Install(sid=%d, program_uid=%d, %d events, %d instrs)",
		m.Sid, m.ProgramUID, m.Bin.NumEvents(), len(m.Bin.Instrs))
}

func (m *Install) appendBody(buf []byte) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], m.ProgramUID)
	buf = append(buf, tmp[:]...)
	return m.Bin.AppendBody(buf)
}

func (m *Install) parseBody(sid uint32, body []byte) error {
	if len(body) < 4 {
		return malformed("Install body of %d bytes", len(body))
	}
	m.Sid = sid
	m.ProgramUID = binary.LittleEndian.Uint32(body[0:4])

	bin, err := lang.DecodeBody(body[4:])
	if err != nil {
		return malformed("Install program: %v", err)
	}
	m.Bin = bin
	return nil
}
