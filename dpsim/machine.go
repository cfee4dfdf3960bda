// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dpsim

import (
	"fmt"

	"github.com/ccp-project/goccp/lang"
)

// Primitives are the per-ACK measurements a datapath exposes through the
// implicit registers.
type Primitives struct {
	BytesAcked        uint64
	PacketsAcked      uint64
	BytesMisordered   uint64
	PacketsMisordered uint64
	EcnBytes          uint64
	EcnPackets        uint64
	LostPktsSample    uint64
	Now               uint64

	WasTimeout      bool
	RttSampleUs     uint64
	RateIncoming    uint64
	RateOutgoing    uint64
	BytesInFlight   uint64
	PacketsInFlight uint64
	BytesPending    uint64
	SndCwnd         uint64
	SndRate         uint64
}

// byIndex flattens the primitives into the implicit register file's fixed
// ordering.
func (p Primitives) byIndex() [lang.NumImplRegs]uint64 {
	var timeout uint64
	if p.WasTimeout {
		timeout = 1
	}
	return [lang.NumImplRegs]uint64{
		p.BytesAcked, p.PacketsAcked, p.BytesMisordered, p.PacketsMisordered,
		p.EcnBytes, p.EcnPackets, p.LostPktsSample, p.Now,
		timeout, p.RttSampleUs, p.RateIncoming, p.RateOutgoing,
		p.BytesInFlight, p.PacketsInFlight, p.BytesPending, p.SndCwnd, p.SndRate,
	}
}

// Snapshot is one emitted report: the values a Measure message would carry.
type Snapshot struct {
	ProgramUID uint32
	Fields     []uint64
}

// Machine executes one installed program for one flow. It holds the
// permanent registers across program switches, the way a datapath does.
type Machine struct {
	perm   [lang.NumPermRegs]uint64
	progID uint32
	bin    *lang.Bin
	locals []uint64
}

// NewMachine builds a Machine with zeroed permanent registers and no
// program.
func NewMachine() *Machine {
	return &Machine{}
}

// SetPerm writes a permanent register, e.g. the initial Cwnd on Create.
func (m *Machine) SetPerm(idx uint8, val uint64) {
	m.perm[idx] = val
}

// Perm reads a permanent register.
func (m *Machine) Perm(idx uint8) uint64 {
	return m.perm[idx]
}

// Switch makes a program current and initializes its Local register file
// from the declared defaults. The permanent registers survive the switch.
func (m *Machine) Switch(progID uint32, bin *lang.Bin) {
	m.progID = progID
	m.bin = bin
	m.locals = make([]uint64, int(bin.NumLocal))
	for i, d := range bin.Decls {
		m.locals[i] = bin.Pool[d.DefaultImm]
	}
}

// ProgID returns the uid of the running program, zero if none.
func (m *Machine) ProgID() uint32 {
	return m.progID
}

// Update writes one register, as an Update message would.
func (m *Machine) Update(class lang.RegClass, idx uint8, val uint64) error {
	switch class {
	case lang.ClassPerm:
		if int(idx) >= lang.NumPermRegs {
			return fmt.Errorf("permanent register %d out of range", idx)
		}
		m.perm[idx] = val
	case lang.ClassLocal:
		if int(idx) >= len(m.locals) {
			return fmt.Errorf("local register %d out of range", idx)
		}
		m.locals[idx] = val
	default:
		return fmt.Errorf("register class %d is not writable", class)
	}
	return nil
}

// Ack advances the clock by elapsed microseconds and runs the program's
// events against prims, in source order. A clause whose body does not
// reach (fallthrough) stops the evaluation for this event. Every (report)
// snapshot is returned in emission order.
func (m *Machine) Ack(prims Primitives, elapsed uint64) ([]Snapshot, error) {
	if m.bin == nil {
		return nil, nil
	}

	m.perm[lang.PermMicros] += elapsed
	impl := prims.byIndex()

	var reports []Snapshot

	instrs := m.bin.Instrs
	for i := 0; i < len(instrs); {
		hdr := instrs[i]
		if hdr.Op != lang.OcWhenHeader {
			return reports, fmt.Errorf("instruction %d: expected when-header, found %s", i, hdr.Op)
		}
		bodyStart := int(hdr.Src1.Idx)
		bodyLen := int(hdr.Src2.Idx)
		if bodyStart <= i || bodyStart+bodyLen > len(instrs) {
			return reports, fmt.Errorf("when-header at %d has bogus body %d+%d", i, bodyStart, bodyLen)
		}

		// predicate instructions sit between the header and the body
		for j := i + 1; j < bodyStart; j++ {
			if err := m.exec(instrs[j], &impl); err != nil {
				return reports, err
			}
		}
		flag, err := m.read(hdr.Dst, &impl)
		if err != nil {
			return reports, err
		}

		fell := true
		if flag != 0 {
			fell = false
			for j := bodyStart; j < bodyStart+bodyLen; j++ {
				in := instrs[j]
				switch in.Op {
				case lang.OcReport:
					reports = append(reports, m.snapshot())
					m.resetVolatiles()
				case lang.OcFallthrough:
					fell = true
				default:
					if err := m.exec(in, &impl); err != nil {
						return reports, err
					}
				}
			}
		} else {
			fell = true
		}

		if !fell {
			break
		}
		i = bodyStart + bodyLen
	}

	return reports, nil
}

// snapshot captures Cwnd, Rate and the Report-class locals in declaration
// order.
func (m *Machine) snapshot() Snapshot {
	fields := []uint64{m.perm[lang.PermCwnd], m.perm[lang.PermRate]}
	for i, d := range m.bin.Decls {
		if d.Report {
			fields = append(fields, m.locals[i])
		}
	}
	return Snapshot{ProgramUID: m.progID, Fields: fields}
}

func (m *Machine) resetVolatiles() {
	for i, d := range m.bin.Decls {
		if d.Volatile {
			m.locals[i] = m.bin.Pool[d.DefaultImm]
		}
	}
}

func (m *Machine) read(r lang.Reg, impl *[lang.NumImplRegs]uint64) (uint64, error) {
	switch r.Class {
	case lang.ClassPerm:
		if int(r.Idx) >= lang.NumPermRegs {
			return 0, fmt.Errorf("permanent register %d out of range", r.Idx)
		}
		return m.perm[r.Idx], nil
	case lang.ClassImm:
		if int(r.Idx) >= len(m.bin.Pool) {
			return 0, fmt.Errorf("immediate %d out of range", r.Idx)
		}
		return m.bin.Pool[r.Idx], nil
	case lang.ClassImpl:
		if int(r.Idx) >= lang.NumImplRegs {
			return 0, fmt.Errorf("implicit register %d out of range", r.Idx)
		}
		return impl[r.Idx], nil
	case lang.ClassLocal:
		if int(r.Idx) >= len(m.locals) {
			return 0, fmt.Errorf("local register %d out of range", r.Idx)
		}
		return m.locals[r.Idx], nil
	default:
		return 0, fmt.Errorf("invalid register class %d", r.Class)
	}
}

func (m *Machine) write(r lang.Reg, val uint64) error {
	switch r.Class {
	case lang.ClassPerm:
		if int(r.Idx) >= lang.NumPermRegs {
			return fmt.Errorf("permanent register %d out of range", r.Idx)
		}
		m.perm[r.Idx] = val
	case lang.ClassLocal:
		if int(r.Idx) >= len(m.locals) {
			return fmt.Errorf("local register %d out of range", r.Idx)
		}
		m.locals[r.Idx] = val
	default:
		return fmt.Errorf("register class %d is not writable", r.Class)
	}
	return nil
}

func (m *Machine) exec(in lang.Instr, impl *[lang.NumImplRegs]uint64) error {
	a, err := m.read(in.Src1, impl)
	if err != nil {
		return err
	}
	b, err := m.read(in.Src2, impl)
	if err != nil {
		return err
	}

	var res uint64
	switch in.Op {
	case lang.OcAdd:
		res = a + b
	case lang.OcSub:
		res = a - b
	case lang.OcMul:
		res = a * b
	case lang.OcDiv:
		if b == 0 {
			res = 0
		} else {
			res = a / b
		}
	case lang.OcEq:
		res = boolReg(a == b)
	case lang.OcNeq:
		res = boolReg(a != b)
	case lang.OcLt:
		res = boolReg(a < b)
	case lang.OcGt:
		res = boolReg(a > b)
	case lang.OcLte:
		res = boolReg(a <= b)
	case lang.OcGte:
		res = boolReg(a >= b)
	case lang.OcAnd:
		res = boolReg(a != 0 && b != 0)
	case lang.OcOr:
		res = boolReg(a != 0 || b != 0)
	case lang.OcBind:
		res = b
	case lang.OcIf:
		old, err := m.read(in.Dst, impl)
		if err != nil {
			return err
		}
		if a != 0 {
			res = old
		} else {
			res = b
		}
	case lang.OcEwma:
		old, err := m.read(in.Dst, impl)
		if err != nil {
			return err
		}
		res = old*a/10 + b*(10-a)/10
	case lang.OcMax:
		res = a
		if b > a {
			res = b
		}
	case lang.OcMin:
		res = a
		if b < a {
			res = b
		}
	default:
		return fmt.Errorf("cannot execute %s", in.Op)
	}

	return m.write(in.Dst, res)
}

func boolReg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
