// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

// Type is one of the language's two ground types.
type Type uint8

const (
	TypeNum Type = iota
	TypeBool
)

func (t Type) String() string {
	if t == TypeBool {
		return "bool"
	}
	return "num"
}

// RegClass is one of the four register address spaces visible on the wire.
// The numbering is part of the datapath contract and must not change.
type RegClass uint8

const (
	ClassPerm  RegClass = 0
	ClassImm   RegClass = 1
	ClassImpl  RegClass = 2
	ClassLocal RegClass = 3
)

func (rc RegClass) String() string {
	switch rc {
	case ClassPerm:
		return "perm"
	case ClassImm:
		return "imm"
	case ClassImpl:
		return "impl"
	case ClassLocal:
		return "local"
	default:
		return "invalid"
	}
}

// Reg addresses one register: a class and an index within it.
type Reg struct {
	Class RegClass
	Idx   uint8
	Type  Type
}

// Permanent register indices. Fixed by the datapath contract.
const (
	PermCwnd uint8 = iota
	PermRate
	PermMicros

	NumPermRegs = 3
)

var permRegs = map[string]Reg{
	"Cwnd":   {Class: ClassPerm, Idx: PermCwnd, Type: TypeNum},
	"Rate":   {Class: ClassPerm, Idx: PermRate, Type: TypeNum},
	"Micros": {Class: ClassPerm, Idx: PermMicros, Type: TypeNum},
}

// implNames fixes the implicit register ordering: Ack fields first, Flow
// fields second, each in the order the datapath enumerates them. This
// ordering must match the kernel peer bit-for-bit.
var implNames = []string{
	"Ack.bytes_acked",
	"Ack.packets_acked",
	"Ack.bytes_misordered",
	"Ack.packets_misordered",
	"Ack.ecn_bytes",
	"Ack.ecn_packets",
	"Ack.lost_pkts_sample",
	"Ack.now",
	"Flow.was_timeout",
	"Flow.rtt_sample_us",
	"Flow.rate_incoming",
	"Flow.rate_outgoing",
	"Flow.bytes_in_flight",
	"Flow.packets_in_flight",
	"Flow.bytes_pending",
	"Flow.snd_cwnd",
	"Flow.snd_rate",
}

// NumImplRegs is the size of the implicit register file.
const NumImplRegs = 17

var implRegs = func() map[string]Reg {
	m := make(map[string]Reg, len(implNames))
	for i, name := range implNames {
		t := TypeNum
		if name == "Flow.was_timeout" {
			t = TypeBool
		}
		m[name] = Reg{Class: ClassImpl, Idx: uint8(i), Type: t}
	}
	return m
}()

// Var is the compile-time record of one user-declared variable.
type Var struct {
	Name     string
	Reg      Reg
	Type     Type
	Default  uint64
	Report   bool
	Volatile bool
}

// Scope maps the names visible to a program onto registers. User variables
// occupy the Local class in declaration order starting at index 0;
// temporaries are allocated above them during code generation.
type Scope struct {
	// Vars lists the user-declared variables in declaration order.
	Vars []Var

	byName map[string]Reg
}

func newScope() *Scope {
	return &Scope{byName: make(map[string]Reg)}
}

// resolve looks a name up across the permanent, implicit and user name
// spaces. User variables declared in a Report block are addressed with the
// "Report." prefix; the bare name also resolves for convenience when it is
// unambiguous.
func (sc *Scope) resolve(name string) (Reg, bool) {
	if r, ok := permRegs[name]; ok {
		return r, true
	}
	if r, ok := implRegs[name]; ok {
		return r, true
	}
	r, ok := sc.byName[name]
	return r, ok
}

func (sc *Scope) declare(v Var) {
	sc.Vars = append(sc.Vars, v)
	sc.byName[v.Name] = v.Reg
	if v.Report {
		sc.byName["Report."+v.Name] = v.Reg
	}
}

// NumLocals returns the number of user-declared Local registers.
func (sc *Scope) NumLocals() int {
	return len(sc.Vars)
}

// ReportVars returns the Report-class variables in declaration order. This
// is the field order of every Measure payload after Cwnd and Rate.
func (sc *Scope) ReportVars() []Var {
	var rs []Var
	for _, v := range sc.Vars {
		if v.Report {
			rs = append(rs, v)
		}
	}
	return rs
}

// Lookup resolves a variable by name, accepting both "x" and "Report.x"
// spellings for report variables.
func (sc *Scope) Lookup(name string) (Var, bool) {
	reg, ok := sc.byName[name]
	if !ok {
		return Var{}, false
	}
	for _, v := range sc.Vars {
		if v.Reg == reg {
			return v, true
		}
	}
	return Var{}, false
}
