// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import "fmt"

// Free tears a flow down. The body is empty; the flow is named by the
// header's socket id.
type Free struct {
	Sid uint32
}

func (m *Free) Type() MsgType    { return MsgFree }
func (m *Free) SocketID() uint32 { return m.Sid }
func (m *Free) bodyLen() int     { return 0 }

func (m *Free) String() string {
	return fmt.Sprintf("Free(sid=%d)", m.Sid)
}

func (m *Free) appendBody(buf []byte) []byte {
	return buf
}

func (m *Free) parseBody(sid uint32, _ []byte) error {
	m.Sid = sid
	return nil
}
