// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

// FlowInfo describes one flow as reported by the datapath's Create
// message.
type FlowInfo struct {
	SocketID uint32
	InitCwnd uint32
	Mss      uint32
	SrcIP    uint32
	SrcPort  uint32
	DstIP    uint32
	DstPort  uint32
}

// ProgramSource is one named datapath program in source form.
type ProgramSource struct {
	Name   string
	Source string
}

// FieldValue names a writable field together with its new value. The field
// is either a permanent name (Cwnd, Rate, Micros) or a user variable of
// the flow's current program.
type FieldValue struct {
	Field string
	Value uint64
}

// Alg is the registered capability of one congestion-control algorithm:
// a name and a per-flow factory. Implementations are registered with a
// Core and never called concurrently for the same flow.
type Alg interface {
	// Name identifies the algorithm in the registry.
	Name() string

	// NewFlow builds the algorithm instance for a freshly created flow.
	NewFlow(info FlowInfo) (Flow, error)
}

// Flow is one algorithm instance, owned exclusively by the Core.
type Flow interface {
	// Programs returns the instance's datapath programs. Each is compiled
	// once and installed on the flow before any report arrives.
	Programs() []ProgramSource

	// Init names the program to start with and the initial field values to
	// set on it.
	Init() (initial string, updates []FieldValue)

	// OnReport handles one report from the datapath. The returned Response
	// may be nil if the algorithm has nothing to change.
	OnReport(r Report) Response

	// Close releases the instance. It is called exactly once, on Free,
	// teardown or Core shutdown.
	Close()
}

// ErrorHandler is an optional Flow capability. Compile and protocol errors
// caused by an instance's own Response are delivered here; instances
// without this method only get the log line.
type ErrorHandler interface {
	OnError(err error)
}

// Response is what an algorithm wants done after a report: install new
// source, switch programs, update fields, or nothing (nil).
type Response interface {
	respNode()
}

// InstallResponse compiles and installs a new program source on the flow
// and makes it the flow's current program.
type InstallResponse struct {
	Name    string
	Source  string
	Updates []FieldValue
}

// SwitchResponse switches the flow to a previously installed program.
// Updates, if any, are applied after the switch in the order given.
type SwitchResponse struct {
	Name    string
	Updates []FieldValue
}

// UpdateResponse sets field values without touching the program.
type UpdateResponse struct {
	Updates []FieldValue
}

func (*InstallResponse) respNode() {}
func (*SwitchResponse) respNode()  {}
func (*UpdateResponse) respNode()  {}
