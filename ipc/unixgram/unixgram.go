// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package unixgram implements the ipc.Channel over a pair of unix-domain
// datagram sockets: one path is bound and listened on, the other is the
// peer's bind path datagrams are sent to.
package unixgram

import (
	"net"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ccp-project/goccp/ipc"
)

// mtu is the datagram size this transport accepts; generous for unix
// sockets, still within the protocol's 16-bit length.
const mtu = 1<<16 - 1

// Channel is a unix-domain datagram transport.
type Channel struct {
	conn *net.UnixConn
	peer *net.UnixAddr

	closeOnce sync.Once
	closeErr  error
}

// New binds recvPath and directs sends to sendPath. A stale socket file
// under recvPath is removed first, so re-binding after a crash or a peer
// reconnect is idempotent.
func New(recvPath, sendPath string) (*Channel, error) {
	if err := os.Remove(recvPath); err != nil && !os.IsNotExist(err) {
		return nil, errors.Wrapf(err, "cannot clear stale socket %s", recvPath)
	}

	laddr := &net.UnixAddr{Name: recvPath, Net: "unixgram"}
	conn, err := net.ListenUnixgram("unixgram", laddr)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot bind %s", recvPath)
	}

	log.WithFields(log.Fields{
		"recv": recvPath,
		"send": sendPath,
	}).Debug("Opened unix datagram channel")

	return &Channel{
		conn: conn,
		peer: &net.UnixAddr{Name: sendPath, Net: "unixgram"},
	}, nil
}

// Send transmits one datagram to the peer path.
func (c *Channel) Send(msg []byte) error {
	if len(msg) > mtu {
		return errors.Errorf("datagram of %d bytes exceeds mtu %d", len(msg), mtu)
	}

	n, err := c.conn.WriteToUnix(msg, c.peer)
	if err != nil {
		return errors.Wrap(err, "unix send")
	}
	if n != len(msg) {
		return errors.Errorf("short unix send: %d of %d bytes", n, len(msg))
	}
	return nil
}

// Recv blocks for the next datagram.
func (c *Channel) Recv(buf []byte) (int, error) {
	n, _, err := c.conn.ReadFromUnix(buf)
	if err != nil {
		if isClosed(err) {
			return 0, ipc.ErrClosed
		}
		return 0, errors.Wrap(err, "unix recv")
	}
	return n, nil
}

// Close closes the socket; a blocked Recv returns ipc.ErrClosed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.conn.Close()
		if err := os.Remove(c.conn.LocalAddr().String()); err != nil && !os.IsNotExist(err) {
			log.WithFields(log.Fields{
				"path":  c.conn.LocalAddr().String(),
				"error": err,
			}).Warn("Failed to remove socket path")
		}
	})
	return c.closeErr
}

// MTU returns the transport's datagram bound.
func (c *Channel) MTU() int {
	return mtu
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed)
}
