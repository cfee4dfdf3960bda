// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import "fmt"

// ProtocolError reports an inbound message referencing unknown state or a
// Response referencing an unknown program.
type ProtocolError struct {
	SocketID uint32
	Msg      string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("protocol error on flow %d: %s", e.SocketID, e.Msg)
}

func protocolError(sid uint32, format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{SocketID: sid, Msg: fmt.Sprintf(format, args...)}
}

// AlgorithmError wraps a panic out of an algorithm callback. The offending
// flow is torn down; the session continues.
type AlgorithmError struct {
	SocketID uint32
	Panic    interface{}
}

func (e *AlgorithmError) Error() string {
	return fmt.Sprintf("algorithm panicked on flow %d: %v", e.SocketID, e.Panic)
}
