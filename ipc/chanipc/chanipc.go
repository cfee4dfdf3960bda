// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package chanipc provides an in-process ipc.Channel pair backed by Go
// channels. It serves tests and datapaths living in the same process.
package chanipc

import (
	"sync"

	"github.com/ccp-project/goccp/ipc"
)

// queueCap bounds each direction; a full queue fails Send with
// ipc.ErrWouldBlock, matching the ring-buffer transports.
const queueCap = 64

// Channel is one endpoint of an in-process pair.
type Channel struct {
	in  chan []byte
	out chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	peer      *Channel
}

// NewPair creates two connected endpoints; what one sends, the other
// receives.
func NewPair() (*Channel, *Channel) {
	ab := make(chan []byte, queueCap)
	ba := make(chan []byte, queueCap)

	a := &Channel{in: ba, out: ab, closed: make(chan struct{})}
	b := &Channel{in: ab, out: ba, closed: make(chan struct{})}
	a.peer = b
	b.peer = a
	return a, b
}

// Send enqueues a copy of msg for the peer.
func (c *Channel) Send(msg []byte) error {
	select {
	case <-c.closed:
		return ipc.ErrClosed
	case <-c.peer.closed:
		return ipc.ErrClosed
	default:
	}

	cp := make([]byte, len(msg))
	copy(cp, msg)

	select {
	case c.out <- cp:
		return nil
	default:
		return ipc.ErrWouldBlock
	}
}

// Recv blocks for the next datagram from the peer.
func (c *Channel) Recv(buf []byte) (int, error) {
	select {
	case msg := <-c.in:
		return copy(buf, msg), nil
	case <-c.closed:
		return 0, ipc.ErrClosed
	case <-c.peer.closed:
		// drain what the peer sent before it went away
		select {
		case msg := <-c.in:
			return copy(buf, msg), nil
		default:
			return 0, ipc.ErrClosed
		}
	}
}

// Close shuts this endpoint down; a blocked Recv on either side returns.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
	})
	return nil
}

// MTU is effectively unbounded in-process; the protocol maximum applies.
func (c *Channel) MTU() int {
	return 1<<16 - 1
}
