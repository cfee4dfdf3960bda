// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build linux

package main

import (
	"fmt"

	"github.com/ccp-project/goccp/ipc"
	"github.com/ccp-project/goccp/ipc/chardev"
	"github.com/ccp-project/goccp/ipc/netlinkipc"
	"github.com/ccp-project/goccp/ipc/unixgram"
)

// parseTransport inspects the Ipc-configuration block and opens the
// selected channel.
func parseTransport(conf ipcConf) (ipc.Channel, error) {
	switch conf.Transport {
	case "netlink":
		group := conf.Group
		if group == 0 {
			group = netlinkipc.MulticastGroup
		}
		return netlinkipc.New(group)

	case "char-device":
		device := conf.Device
		if device == "" {
			device = chardev.DefaultDevice
		}
		return chardev.New(device)

	case "unix":
		if conf.RecvPath == "" || conf.SendPath == "" {
			return nil, fmt.Errorf("unix transport needs ipc.recv-path and ipc.send-path")
		}
		return unixgram.New(conf.RecvPath, conf.SendPath)

	default:
		return nil, fmt.Errorf("unknown ipc.transport %q", conf.Transport)
	}
}
