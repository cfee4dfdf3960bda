// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

//go:build !linux

package main

import (
	"fmt"

	"github.com/ccp-project/goccp/ipc"
	"github.com/ccp-project/goccp/ipc/unixgram"
)

// parseTransport inspects the Ipc-configuration block and opens the
// selected channel. The netlink and char-device transports are Linux only.
func parseTransport(conf ipcConf) (ipc.Channel, error) {
	switch conf.Transport {
	case "unix":
		if conf.RecvPath == "" || conf.SendPath == "" {
			return nil, fmt.Errorf("unix transport needs ipc.recv-path and ipc.send-path")
		}
		return unixgram.New(conf.RecvPath, conf.SendPath)

	case "netlink", "char-device":
		return nil, fmt.Errorf("ipc.transport %q is only available on Linux", conf.Transport)

	default:
		return nil, fmt.Errorf("unknown ipc.transport %q", conf.Transport)
	}
}
