// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
)

func mustCompile(t *testing.T, src string) (*Bin, *Scope) {
	t.Helper()
	bin, sc, err := Compile(src)
	if err != nil {
		t.Fatal(err)
	}
	return bin, sc
}

func TestGenSlowStart(t *testing.T) {
	bin, _ := mustCompile(t, `
		(def (Report (volatile acked 0)))
		(when true
			(:= Report.acked (+ Report.acked Ack.bytes_acked))
			(:= Cwnd (+ Cwnd Ack.bytes_acked))
		)
	`)

	// pool: default 0, true
	if !reflect.DeepEqual(bin.Pool, []uint64{0, 1}) {
		t.Fatalf("pool is wrong: %v", bin.Pool)
	}

	acked := Reg{Class: ClassLocal, Idx: 0, Type: TypeNum}
	tmp := Reg{Class: ClassLocal, Idx: 1, Type: TypeNum}
	cwnd := Reg{Class: ClassPerm, Idx: PermCwnd, Type: TypeNum}
	bytesAcked := Reg{Class: ClassImpl, Idx: 0, Type: TypeNum}

	expected := []Instr{
		{Op: OcWhenHeader,
			Dst:  Reg{Class: ClassImm, Idx: 1, Type: TypeBool},
			Src1: Reg{Idx: 1}, Src2: Reg{Idx: 4}},
		{Op: OcAdd, Dst: tmp, Src1: acked, Src2: bytesAcked},
		{Op: OcBind, Dst: acked, Src1: acked, Src2: tmp},
		{Op: OcAdd, Dst: tmp, Src1: cwnd, Src2: bytesAcked},
		{Op: OcBind, Dst: cwnd, Src1: cwnd, Src2: tmp},
	}
	if !reflect.DeepEqual(bin.Instrs, expected) {
		t.Fatalf("instructions are wrong;\nexpected := %v\ngot      := %v", expected, bin.Instrs)
	}

	if bin.NumLocal != 2 {
		t.Fatalf("expected 2 local slots, got %d", bin.NumLocal)
	}
	if bin.NumEvents() != 1 {
		t.Fatalf("expected 1 event, got %d", bin.NumEvents())
	}

	expectedDecls := []LocalDecl{{Volatile: true, Report: true, DefaultImm: 0}}
	if !reflect.DeepEqual(bin.Decls, expectedDecls) {
		t.Fatalf("decls are wrong: %+v", bin.Decls)
	}
}

func TestGenPredicateInstrs(t *testing.T) {
	bin, _ := mustCompile(t, `
		(def (Report (volatile loss 0)))
		(when (> Ack.lost_pkts_sample 0)
			(:= Cwnd (/ Cwnd 2))
			(report)
		)
	`)

	// header, one predicate compare, then the body
	if bin.Instrs[0].Op != OcWhenHeader {
		t.Fatalf("expected a when-header first, got %v", bin.Instrs[0])
	}
	if bin.Instrs[1].Op != OcGt {
		t.Fatalf("expected the predicate compare second, got %v", bin.Instrs[1])
	}

	hdr := bin.Instrs[0]
	if hdr.Src1.Idx != 2 {
		t.Fatalf("body should start at 2, got %d", hdr.Src1.Idx)
	}
	if hdr.Src2.Idx != 3 {
		t.Fatalf("body should have 3 instructions, got %d", hdr.Src2.Idx)
	}
	if hdr.Dst != (Reg{Class: ClassLocal, Idx: 1, Type: TypeBool}) {
		t.Fatalf("flag register is wrong: %v", hdr.Dst)
	}

	if last := bin.Instrs[len(bin.Instrs)-1]; last.Op != OcReport {
		t.Fatalf("expected a report opcode last, got %v", last)
	}
}

func TestGenImmediateInterning(t *testing.T) {
	bin, _ := mustCompile(t, `
		(def (x 2))
		(when true
			(:= x (+ (+ x 2) 2))
			(:= x (* x 7))
		)
	`)

	// 2 appears as default and literal, interned once; true and 7 follow
	if !reflect.DeepEqual(bin.Pool, []uint64{2, 1, 7}) {
		t.Fatalf("pool is wrong: %v", bin.Pool)
	}
}

func TestGenModLowering(t *testing.T) {
	bin, _ := mustCompile(t, `
		(def (x 0))
		(when true
			(:= x (% Ack.bytes_acked 10))
		)
	`)

	var ops []Opcode
	for _, in := range bin.Instrs {
		ops = append(ops, in.Op)
	}
	expected := []Opcode{OcWhenHeader, OcDiv, OcMul, OcSub, OcBind}
	if !reflect.DeepEqual(ops, expected) {
		t.Fatalf("mod lowering is wrong: %v", ops)
	}
}

func TestGenIfLowering(t *testing.T) {
	bin, _ := mustCompile(t, `
		(def (x 0))
		(when true
			(:= x (if (> x 5) 1 0))
		)
	`)

	var ops []Opcode
	for _, in := range bin.Instrs {
		ops = append(ops, in.Op)
	}
	expected := []Opcode{OcWhenHeader, OcGt, OcBind, OcIf, OcBind}
	if !reflect.DeepEqual(ops, expected) {
		t.Fatalf("if lowering is wrong: %v", ops)
	}

	// the conditional-move pair shares its destination
	if bin.Instrs[2].Dst != bin.Instrs[3].Dst {
		t.Fatalf("conditional-move pair writes different registers: %v vs %v",
			bin.Instrs[2].Dst, bin.Instrs[3].Dst)
	}
}

func TestGenTempReuse(t *testing.T) {
	bin, _ := mustCompile(t, `
		(def (x 0))
		(when true
			(:= x (+ (+ 1 2) 3))
			(:= x (+ (+ 4 5) 6))
		)
	`)

	// freed temporaries are reused; one slot above the user variable serves
	// both statements
	if bin.NumLocal != 2 {
		t.Fatalf("expected 2 local slots, got %d", bin.NumLocal)
	}
}

func TestGenResourceLimits(t *testing.T) {
	t.Run("too many events", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("(def (x 0))")
		for i := 0; i < MaxEvents+1; i++ {
			b.WriteString(" (when true (:= x 1))")
		}
		_, _, err := Compile(b.String())
		checkKind(t, "events", err, Resource)
	})

	t.Run("too many instructions", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("(def (x 0)) (when true")
		for i := 0; i < MaxInstrs; i++ {
			b.WriteString(" (:= x (+ x 1))")
		}
		b.WriteString(")")
		_, _, err := Compile(b.String())
		checkKind(t, "instructions", err, Resource)
	})

	t.Run("too many immediates", func(t *testing.T) {
		var b strings.Builder
		b.WriteString("(def (x 0)) (when true")
		for i := 0; i < MaxImms+1; i++ {
			fmt.Fprintf(&b, " (:= x %d)", i+100)
		}
		b.WriteString(")")
		_, _, err := Compile(b.String())
		checkKind(t, "immediates", err, Resource)
	})
}
