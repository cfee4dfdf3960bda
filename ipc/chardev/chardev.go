// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

// Package chardev implements the ipc.Channel over the kernel datapath's
// character device. The device is backed by a pair of single-producer,
// single-consumer ring buffers; one read or write moves exactly one
// message, with the message header's length field authoritative.
package chardev

import (
	"sync"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/ccp-project/goccp/ipc"
)

// DefaultDevice is the device node the kernel module registers.
const DefaultDevice = "/dev/ccpkp"

// ringSlotBytes is the ring's slot size and therefore the datagram bound.
const ringSlotBytes = 1 << 12

// pollTimeoutMs bounds each poll so Close can cancel a blocked Recv.
const pollTimeoutMs = 1000

// Channel talks to a kernel datapath through its character device.
type Channel struct {
	fd   int
	path string

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closeErr  error
	mu        sync.Mutex
	closed    bool
}

// New opens the device node. The descriptor is nonblocking: reads block in
// a poll loop instead, and a write against a full ring fails with
// ipc.ErrWouldBlock rather than stalling the send path.
func New(path string) (*Channel, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot open %s", path)
	}

	log.WithField("device", path).Debug("Opened character device channel")

	return &Channel{fd: fd, path: path}, nil
}

// Send writes one message into the kernel's ring. A full ring surfaces as
// ipc.ErrWouldBlock; nothing is partially written.
func (c *Channel) Send(msg []byte) error {
	if len(msg) > ringSlotBytes {
		return errors.Errorf("message of %d bytes exceeds ring slot of %d", len(msg), ringSlotBytes)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	n, err := unix.Write(c.fd, msg)
	switch {
	case err == unix.EAGAIN:
		return ipc.ErrWouldBlock
	case err != nil:
		return errors.Wrapf(err, "write %s", c.path)
	case n != len(msg):
		return errors.Errorf("short write to %s: %d of %d bytes", c.path, n, len(msg))
	}
	return nil
}

// Recv blocks until the kernel ring holds a message, then reads it.
func (c *Channel) Recv(buf []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	for {
		if c.isClosed() {
			return 0, ipc.ErrClosed
		}

		fds := []unix.PollFd{{Fd: int32(c.fd), Events: unix.POLLIN}}
		if _, err := unix.Poll(fds, pollTimeoutMs); err != nil {
			if err == unix.EINTR {
				continue
			}
			if c.isClosed() {
				return 0, ipc.ErrClosed
			}
			return 0, errors.Wrapf(err, "poll %s", c.path)
		}
		if fds[0].Revents&unix.POLLIN == 0 {
			continue
		}

		n, err := unix.Read(c.fd, buf)
		switch {
		case err == unix.EAGAIN:
			// another wakeup raced us to the ring
			continue
		case err == unix.EBADF || c.isClosed():
			return 0, ipc.ErrClosed
		case err != nil:
			return 0, errors.Wrapf(err, "read %s", c.path)
		}
		return n, nil
	}
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Close closes the device; a blocked Recv returns ipc.ErrClosed within one
// poll interval.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.closeErr = unix.Close(c.fd)
	})
	return c.closeErr
}

// MTU returns the ring's slot size.
func (c *Channel) MTU() int {
	return ringSlotBytes
}
