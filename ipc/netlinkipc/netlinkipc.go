// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

// Package netlinkipc implements the ipc.Channel over a raw netlink socket
// in the user protocol family. The kernel datapath and this side join the
// same multicast group and exchange whole netlink-framed messages.
package netlinkipc

import (
	"encoding/binary"
	"os"
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ccp-project/goccp/ipc"
)

// MulticastGroup is the netlink multicast group the kernel datapath joins.
const MulticastGroup = 22

// nlHdrLen is the size of the netlink message header wrapped around every
// payload.
const nlHdrLen = unix.NLMSG_HDRLEN

// sockBufBytes sizes the socket buffers. A message larger than the write
// buffer fails loudly rather than being fragmented.
const sockBufBytes = 1 << 15

// Channel is a netlink multicast transport.
type Channel struct {
	fd  int
	pid uint32

	closeOnce sync.Once
	closeErr  error
	closed    bool
	mu        sync.Mutex
}

// New opens a NETLINK_USERSOCK socket, binds it to this process and joins
// group.
func New(group uint32) (*Channel, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW, unix.NETLINK_USERSOCK)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open netlink socket")
	}

	pid := uint32(os.Getpid())
	sa := &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Pid: pid}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "cannot bind netlink socket")
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_NETLINK, unix.NETLINK_ADD_MEMBERSHIP, int(group)); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "cannot join netlink group %d", group)
	}

	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_SNDBUF, sockBufBytes); err != nil {
		log.WithError(err).Debug("Failed to size netlink send buffer")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_RCVBUF, sockBufBytes); err != nil {
		log.WithError(err).Debug("Failed to size netlink receive buffer")
	}

	log.WithFields(log.Fields{
		"group": group,
		"pid":   pid,
	}).Debug("Opened netlink channel")

	return &Channel{fd: fd, pid: pid}, nil
}

// Send wraps msg in a netlink header and sends it to the kernel (netlink
// pid 0); it is not sent to the multicast group.
func (c *Channel) Send(msg []byte) error {
	if nlHdrLen+len(msg) > sockBufBytes {
		return errors.Errorf("netlink message of %d bytes exceeds the socket buffer", len(msg))
	}

	frame := make([]byte, nlHdrLen+len(msg))
	binary.LittleEndian.PutUint32(frame[0:4], uint32(len(frame)))
	// nlmsg_type and flags stay zero for user protocol traffic
	binary.LittleEndian.PutUint32(frame[8:12], 0)
	binary.LittleEndian.PutUint32(frame[12:16], c.pid)
	copy(frame[nlHdrLen:], msg)

	dst := &unix.SockaddrNetlink{Family: unix.AF_NETLINK}
	if err := unix.Sendto(c.fd, frame, 0, dst); err != nil {
		return errors.Wrap(err, "netlink send")
	}
	return nil
}

// Recv blocks for the next message and strips its netlink header.
func (c *Channel) Recv(buf []byte) (int, error) {
	frame := make([]byte, nlHdrLen+len(buf))
	for {
		n, _, err := unix.Recvfrom(c.fd, frame, 0)
		switch {
		case err == unix.EINTR:
			continue
		case err == unix.EBADF || c.isClosed():
			return 0, ipc.ErrClosed
		case err != nil:
			return 0, errors.Wrap(err, "netlink recv")
		case n < nlHdrLen:
			log.WithField("len", n).Warn("Dropping truncated netlink frame")
			continue
		}

		payload := int(binary.LittleEndian.Uint32(frame[0:4])) - nlHdrLen
		if payload < 0 || nlHdrLen+payload > n {
			log.WithField("len", n).Warn("Dropping netlink frame with bogus length")
			continue
		}
		return copy(buf, frame[nlHdrLen:nlHdrLen+payload]), nil
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close shuts the socket down; a blocked Recv returns ipc.ErrClosed.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.closeErr = unix.Close(c.fd)
	})
	return c.closeErr
}

// MTU returns the usable payload bound under the netlink header.
func (c *Channel) MTU() int {
	return sockBufBytes - nlHdrLen
}
