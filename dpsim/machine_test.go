// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package dpsim

import (
	"reflect"
	"testing"

	"github.com/ccp-project/goccp/lang"
)

func loadProgram(t *testing.T, src string) *Machine {
	t.Helper()
	bin, _, err := lang.Compile(src)
	if err != nil {
		t.Fatal(err)
	}

	m := NewMachine()
	m.Switch(1, bin)
	return m
}

func ack(t *testing.T, m *Machine, prims Primitives, elapsed uint64) []Snapshot {
	t.Helper()
	snaps, err := m.Ack(prims, elapsed)
	if err != nil {
		t.Fatal(err)
	}
	return snaps
}

// Slow start: every ACK grows the window and the acked counter; the next
// report carries the accumulated values, and the volatile counter resets
// afterwards.
func TestSlowStartAccumulation(t *testing.T) {
	m := loadProgram(t, `
		(def (Report (volatile acked 0)))
		(when true
			(:= Report.acked (+ Report.acked Ack.bytes_acked))
			(:= Cwnd (+ Cwnd Ack.bytes_acked))
			(fallthrough)
		)
		(when (> Micros 9999)
			(report)
			(:= Micros 0)
		)
	`)
	m.SetPerm(lang.PermCwnd, 10000)
	m.SetPerm(lang.PermRate, 123)

	prims := Primitives{BytesAcked: 1500}

	if snaps := ack(t, m, prims, 3334); len(snaps) != 0 {
		t.Fatalf("no report expected yet, got %v", snaps)
	}
	if snaps := ack(t, m, prims, 3334); len(snaps) != 0 {
		t.Fatalf("no report expected yet, got %v", snaps)
	}

	snaps := ack(t, m, prims, 3334)
	if len(snaps) != 1 {
		t.Fatalf("expected exactly one report, got %v", snaps)
	}

	expected := Snapshot{ProgramUID: 1, Fields: []uint64{14500, 123, 4500}}
	if !reflect.DeepEqual(snaps[0], expected) {
		t.Fatalf("report is wrong;\nexpected := %v\ngot      := %v", expected, snaps[0])
	}

	// the volatile counter must be back at its default after the report
	snaps = ack(t, m, prims, 0)
	if len(snaps) != 0 {
		t.Fatalf("unexpected report: %v", snaps)
	}
	// run one more interval: only the post-report ACKs count
	snaps = ack(t, m, prims, 10000)
	if len(snaps) != 1 {
		t.Fatalf("expected one report, got %v", snaps)
	}
	if acked := snaps[0].Fields[2]; acked != 3000 {
		t.Fatalf("volatile field did not reset; acked = %d", acked)
	}
}

// Once-per-RTT reporting: regardless of the ACK rate, one report per
// elapsed RTT.
func TestOncePerRttReport(t *testing.T) {
	src := `
		(def (Report (volatile acked 0)))
		(when true
			(:= Report.acked (+ Report.acked Ack.bytes_acked))
			(fallthrough)
		)
		(when (> Micros Flow.rtt_sample_us)
			(report)
			(:= Micros 0)
		)
	`

	for _, ackInterval := range []uint64{500, 1000, 2500} {
		m := loadProgram(t, src)
		prims := Primitives{BytesAcked: 1500, RttSampleUs: 10000}

		reports := 0
		var total uint64
		for total = 0; total < 100000; total += ackInterval {
			reports += len(ack(t, m, prims, ackInterval))
		}

		// one report per 10ms of simulated time, give or take the final
		// partial interval
		if reports < 8 || reports > 10 {
			t.Fatalf("ack interval %d: expected ~9 reports over 100ms, got %d",
				ackInterval, reports)
		}
	}
}

// Loss halves the window.
func TestLossHalvesCwnd(t *testing.T) {
	m := loadProgram(t, `
		(def (Report (volatile loss 0)))
		(when (> Ack.lost_pkts_sample 0)
			(:= Report.loss Ack.lost_pkts_sample)
			(:= Cwnd (/ Cwnd 2))
			(report)
		)
	`)
	m.SetPerm(lang.PermCwnd, 20000)

	// a clean ACK triggers nothing
	if snaps := ack(t, m, Primitives{BytesAcked: 1500}, 100); len(snaps) != 0 {
		t.Fatalf("clean ack must not report, got %v", snaps)
	}

	snaps := ack(t, m, Primitives{BytesAcked: 1500, LostPktsSample: 3}, 100)
	if len(snaps) != 1 {
		t.Fatalf("expected one report, got %v", snaps)
	}
	if cwnd := snaps[0].Fields[0]; cwnd != 10000 {
		t.Fatalf("expected Cwnd = 10000, got %d", cwnd)
	}
	if loss := snaps[0].Fields[2]; loss != 3 {
		t.Fatalf("expected loss = 3, got %d", loss)
	}
}

// Clause evaluation follows source order; a body without (fallthrough)
// stops the event.
func TestFallthroughSemantics(t *testing.T) {
	withFallthrough := `
		(def (first 0) (Report (volatile both 0)))
		(when true
			(:= first 1)
			(fallthrough)
		)
		(when true
			(:= Report.both first)
			(report)
		)
	`
	m := loadProgram(t, withFallthrough)
	snaps := ack(t, m, Primitives{}, 1)
	if len(snaps) != 1 || snaps[0].Fields[2] != 1 {
		t.Fatalf("fallthrough should reach the second clause: %v", snaps)
	}

	withoutFallthrough := `
		(def (first 0) (Report (volatile both 0)))
		(when true
			(:= first 1)
		)
		(when true
			(:= Report.both first)
			(report)
		)
	`
	m = loadProgram(t, withoutFallthrough)
	if snaps := ack(t, m, Primitives{}, 1); len(snaps) != 0 {
		t.Fatalf("without fallthrough the second clause must not run: %v", snaps)
	}
}

// A false predicate skips only its own clause.
func TestFalsePredicateContinues(t *testing.T) {
	m := loadProgram(t, `
		(def (Report (volatile x 0)))
		(when (> Ack.lost_pkts_sample 0)
			(:= Report.x 99)
		)
		(when true
			(:= Report.x (+ Report.x 1))
			(report)
		)
	`)

	snaps := ack(t, m, Primitives{}, 1)
	if len(snaps) != 1 || snaps[0].Fields[2] != 1 {
		t.Fatalf("expected the second clause to run alone: %v", snaps)
	}
}

// Conditional-move if: both sides evaluated, condition selects.
func TestIfSelects(t *testing.T) {
	m := loadProgram(t, `
		(def (Report (volatile pick 0)))
		(when true
			(:= Report.pick (if (> Ack.bytes_acked 1000) 7 3))
			(report)
		)
	`)

	snaps := ack(t, m, Primitives{BytesAcked: 2000}, 1)
	if snaps[0].Fields[2] != 7 {
		t.Fatalf("expected the then-branch, got %d", snaps[0].Fields[2])
	}

	snaps = ack(t, m, Primitives{BytesAcked: 10}, 1)
	if snaps[0].Fields[2] != 3 {
		t.Fatalf("expected the else-branch, got %d", snaps[0].Fields[2])
	}
}

// Program switches preserve the permanent registers but reset locals.
func TestSwitchKeepsPermanents(t *testing.T) {
	binA, _, err := lang.Compile(`
		(def (Report (volatile a 5)))
		(when true (:= Report.a (+ Report.a 1)) (report))
	`)
	if err != nil {
		t.Fatal(err)
	}
	binB, _, err := lang.Compile(`
		(def (Report (volatile b 0)))
		(when true (:= Report.b Ack.bytes_acked) (report))
	`)
	if err != nil {
		t.Fatal(err)
	}

	m := NewMachine()
	m.Switch(1, binA)
	m.SetPerm(lang.PermCwnd, 4242)

	if _, err := m.Ack(Primitives{}, 1); err != nil {
		t.Fatal(err)
	}

	m.Switch(2, binB)
	if m.Perm(lang.PermCwnd) != 4242 {
		t.Fatalf("switch lost Cwnd: %d", m.Perm(lang.PermCwnd))
	}

	snaps, err := m.Ack(Primitives{BytesAcked: 77}, 1)
	if err != nil {
		t.Fatal(err)
	}
	expected := Snapshot{ProgramUID: 2, Fields: []uint64{4242, 0, 77}}
	if !reflect.DeepEqual(snaps[0], expected) {
		t.Fatalf("expected %v, got %v", expected, snaps[0])
	}
}
