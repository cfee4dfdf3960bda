// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

import (
	"encoding/binary"
	"fmt"
)

// Opcode is the on-wire operation number. The numbering is part of the
// datapath contract; do not reorder.
type Opcode uint8

const (
	OcAdd Opcode = iota
	OcSub
	OcMul
	OcDiv
	OcEq
	OcNeq
	OcLt
	OcGt
	OcLte
	OcGte
	OcAnd
	OcOr
	OcBind
	OcIf
	OcWhenHeader
	OcFallthrough
	OcReport
	OcEwma
	OcMax
	OcMin

	numOpcodes
)

var opcodeNames = [numOpcodes]string{
	"add", "sub", "mul", "div", "eq", "neq", "lt", "gt", "lte", "gte",
	"and", "or", "bind", "if", "when", "fallthrough", "report",
	"ewma", "max", "min",
}

func (oc Opcode) String() string {
	if oc < numOpcodes {
		return opcodeNames[oc]
	}
	return fmt.Sprintf("opcode(%d)", uint8(oc))
}

// InstrSize is the fixed wire size of one instruction.
const InstrSize = 8

// Instr is one 3-address operation.
//
// A when-header instruction abuses the source operands: Src1.Idx is the
// absolute index of the first body instruction and Src2.Idx is the body
// length, with both classes zero. Dst addresses the predicate's result
// register.
type Instr struct {
	Op    Opcode
	Dst   Reg
	Src1  Reg
	Src2  Reg
	Flags uint8
}

func (in Instr) String() string {
	if in.Op == OcWhenHeader {
		return fmt.Sprintf("when %s:%d body@%d+%d",
			in.Dst.Class, in.Dst.Idx, in.Src1.Idx, in.Src2.Idx)
	}
	return fmt.Sprintf("%s %s:%d, %s:%d, %s:%d", in.Op,
		in.Dst.Class, in.Dst.Idx, in.Src1.Class, in.Src1.Idx,
		in.Src2.Class, in.Src2.Idx)
}

// LocalDecl is the wire descriptor of one user-declared Local register,
// telling the datapath its default value and reset behavior.
type LocalDecl struct {
	Volatile bool
	Report   bool
	Bool     bool

	// DefaultImm indexes the immediate pool.
	DefaultImm uint8
}

const (
	ldFlagVolatile = 1 << 0
	ldFlagReport   = 1 << 1
	ldFlagBool     = 1 << 2
)

// Bin is a compiled program: the flat instruction vector together with the
// register file layout the datapath must allocate.
type Bin struct {
	Instrs []Instr

	// Pool is the interned immediate pool, addressed by ClassImm indices.
	Pool []uint64

	// Decls describe the user-declared Local registers, in declaration
	// order. Temporaries above them need no descriptors.
	Decls []LocalDecl

	// NumLocal is the total Local-class slot count: user variables plus
	// temporaries.
	NumLocal uint8
}

// NumEvents counts the when-header instructions.
func (b *Bin) NumEvents() int {
	n := 0
	for _, in := range b.Instrs {
		if in.Op == OcWhenHeader {
			n++
		}
	}
	return n
}

// BodySize returns the serialized size in bytes, excluding the program uid.
func (b *Bin) BodySize() int {
	return 8 + 4 + 8*len(b.Pool) + 4 + 4*len(b.Decls) + InstrSize*len(b.Instrs)
}

// AppendBody serializes the Bin in install-body form, little-endian:
// counts, register-class sizes, the immediate pool, the local descriptor
// table and the instruction vector.
func (b *Bin) AppendBody(buf []byte) []byte {
	var tmp [8]byte

	binary.LittleEndian.PutUint32(tmp[:4], uint32(b.NumEvents()))
	buf = append(buf, tmp[:4]...)
	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(b.Instrs)))
	buf = append(buf, tmp[:4]...)

	buf = append(buf, NumPermRegs, uint8(len(b.Pool)), NumImplRegs, b.NumLocal)

	for _, imm := range b.Pool {
		binary.LittleEndian.PutUint64(tmp[:], imm)
		buf = append(buf, tmp[:]...)
	}

	binary.LittleEndian.PutUint32(tmp[:4], uint32(len(b.Decls)))
	buf = append(buf, tmp[:4]...)
	for _, d := range b.Decls {
		var flags uint8
		if d.Volatile {
			flags |= ldFlagVolatile
		}
		if d.Report {
			flags |= ldFlagReport
		}
		if d.Bool {
			flags |= ldFlagBool
		}
		buf = append(buf, flags, d.DefaultImm, 0, 0)
	}

	for _, in := range b.Instrs {
		buf = append(buf,
			uint8(in.Op),
			uint8(in.Dst.Class), in.Dst.Idx,
			uint8(in.Src1.Class), in.Src1.Idx,
			uint8(in.Src2.Class), in.Src2.Idx,
			in.Flags)
	}

	return buf
}

// DecodeBody is the inverse of AppendBody. It is used by datapath-side
// consumers and by round-trip tests; the decoded Bin carries no type
// information beyond the local descriptors.
func DecodeBody(buf []byte) (*Bin, error) {
	if len(buf) < 12 {
		return nil, fmt.Errorf("install body too short: %d bytes", len(buf))
	}

	numEvents := binary.LittleEndian.Uint32(buf[0:4])
	numInstrs := binary.LittleEndian.Uint32(buf[4:8])
	numPerm, numImm, numImpl, numLocal := buf[8], buf[9], buf[10], buf[11]
	if numPerm != NumPermRegs || numImpl != NumImplRegs {
		return nil, fmt.Errorf("unexpected register file: %d perm, %d impl", numPerm, numImpl)
	}
	buf = buf[12:]

	b := &Bin{NumLocal: numLocal}

	if len(buf) < 8*int(numImm) {
		return nil, fmt.Errorf("install body truncated in immediate pool")
	}
	for i := 0; i < int(numImm); i++ {
		b.Pool = append(b.Pool, binary.LittleEndian.Uint64(buf[8*i:]))
	}
	buf = buf[8*int(numImm):]

	if len(buf) < 4 {
		return nil, fmt.Errorf("install body truncated before descriptors")
	}
	numDecls := binary.LittleEndian.Uint32(buf[0:4])
	buf = buf[4:]
	if len(buf) < 4*int(numDecls) {
		return nil, fmt.Errorf("install body truncated in descriptors")
	}
	for i := 0; i < int(numDecls); i++ {
		flags, imm := buf[4*i], buf[4*i+1]
		if imm >= numImm {
			return nil, fmt.Errorf("descriptor %d references immediate %d of %d", i, imm, numImm)
		}
		b.Decls = append(b.Decls, LocalDecl{
			Volatile:   flags&ldFlagVolatile != 0,
			Report:     flags&ldFlagReport != 0,
			Bool:       flags&ldFlagBool != 0,
			DefaultImm: imm,
		})
	}
	buf = buf[4*int(numDecls):]

	if len(buf) != InstrSize*int(numInstrs) {
		return nil, fmt.Errorf("install body has %d instruction bytes, header claims %d instructions",
			len(buf), numInstrs)
	}
	for i := 0; i < int(numInstrs); i++ {
		raw := buf[InstrSize*i : InstrSize*(i+1)]
		b.Instrs = append(b.Instrs, Instr{
			Op:    Opcode(raw[0]),
			Dst:   Reg{Class: RegClass(raw[1]), Idx: raw[2]},
			Src1:  Reg{Class: RegClass(raw[3]), Idx: raw[4]},
			Src2:  Reg{Class: RegClass(raw[5]), Idx: raw[6]},
			Flags: raw[7],
		})
	}

	if got := b.NumEvents(); got != int(numEvents) {
		return nil, fmt.Errorf("install body has %d when-headers, header claims %d", got, numEvents)
	}
	return b, nil
}
