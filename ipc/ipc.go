// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package ipc defines the datagram transport between the session core and
// a datapath, together with its implementations.
//
// A Channel moves whole messages: one Send is one datagram, one Recv
// returns one datagram. The core treats the Channel as an opaque
// capability set and picks a concrete implementation once at startup.
package ipc

import "errors"

// ErrClosed is the terminal error a Recv returns once the Channel has been
// closed. The core's receive loop exits cleanly on it.
var ErrClosed = errors.New("ipc channel closed")

// ErrWouldBlock reports a full peer: the datagram was not sent and nothing
// was written. There are no silent drops.
var ErrWouldBlock = errors.New("ipc channel full")

// Channel is a bidirectional datagram transport to one datapath.
type Channel interface {
	// Send transmits one datagram, all-or-nothing.
	Send(msg []byte) error

	// Recv blocks until a datagram arrives and copies it into buf,
	// returning its length. After Close it returns ErrClosed.
	Recv(buf []byte) (int, error)

	// Close shuts the channel down and cancels a blocked Recv.
	Close() error

	// MTU returns the largest datagram this channel can carry.
	MTU() int
}
