// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package core hosts congestion-control algorithms and drives them from
// datapath events.
//
// A Core owns one ipc.Channel to a datapath and a registry of flows. The
// datapath opens flows with Create messages; the Core builds an algorithm
// instance per flow, compiles and installs the instance's datapath
// programs, and routes every incoming report to the instance. Responses
// from the instance turn into Install, ChangeProg and Update messages.
//
// The Core runs a single cooperative receive loop. Run blocks the calling
// goroutine; Spawn runs the loop on its own goroutine and returns a Handle
// to stop it. All algorithm callbacks happen synchronously on the loop,
// which keeps per-flow ordering trivial.
package core
