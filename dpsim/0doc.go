// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package dpsim is a userspace datapath: it decodes installed programs and
// executes them against simulated ACK measurements, emitting reports the
// way a kernel datapath would.
//
// The Machine executes one flow's current program. The Datapath wraps a
// set of Machines behind an ipc.Channel, speaking the full message
// protocol; together with ipc/chanipc it lets a whole control plane run
// in-process, which is how the end-to-end tests drive the system.
package dpsim
