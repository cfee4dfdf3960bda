// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

import (
	"bytes"
	"reflect"
	"testing"
)

func TestBinSerialize(t *testing.T) {
	bin, _ := mustCompile(t, `
		(def (Report (volatile acked 0)))
		(when true
			(:= Report.acked (+ Report.acked Ack.bytes_acked))
			(:= Cwnd (+ Cwnd Ack.bytes_acked))
		)
	`)

	buf := bin.AppendBody(nil)
	expected := []byte{
		0x01, 0x00, 0x00, 0x00, // num_events = 1
		0x05, 0x00, 0x00, 0x00, // num_instrs = 5
		0x03, 0x02, 0x11, 0x02, // 3 perm, 2 imm, 17 impl, 2 local
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pool[0] = 0
		0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // pool[1] = 1
		0x01, 0x00, 0x00, 0x00, // num_decls = 1
		0x03, 0x00, 0x00, 0x00, // volatile|report, default imm 0
		14, 1, 1, 0, 1, 0, 4, 0, // when imm:1 body@1+4
		0, 3, 1, 3, 0, 2, 0, 0, // add local:1, local:0, impl:0
		12, 3, 0, 3, 0, 3, 1, 0, // bind local:0, local:0, local:1
		0, 3, 1, 0, 0, 2, 0, 0, // add local:1, perm:0, impl:0
		12, 0, 0, 0, 0, 3, 1, 0, // bind perm:0, perm:0, local:1
	}
	if !bytes.Equal(buf, expected) {
		t.Fatalf("serialization is wrong;\nexpected := %v\ngot      := %v", expected, buf)
	}

	if len(buf) != bin.BodySize() {
		t.Fatalf("BodySize claims %d, serialized %d bytes", bin.BodySize(), len(buf))
	}
}

func TestBinRoundTrip(t *testing.T) {
	sources := []string{
		`(def (Report (volatile acked 0)))
		 (when true
			(:= Report.acked (+ Report.acked Ack.bytes_acked))
			(:= Cwnd (+ Cwnd Ack.bytes_acked))
		 )`,
		`(def (Report (minrtt 0) (volatile cnt 0)) (ctl false))
		 (when true
			(:= Report.minrtt (min Report.minrtt Flow.rtt_sample_us))
			(:= Report.cnt (+ Report.cnt 1))
			(fallthrough)
		 )
		 (when (> Micros 42000)
			(report)
			(:= Micros 0)
		 )`,
		`(def (x 0))
		 (when (> Ack.lost_pkts_sample 0)
			(:= Cwnd (/ Cwnd 2))
			(report)
		 )`,
	}

	for _, src := range sources {
		bin, _ := mustCompile(t, src)

		buf := bin.AppendBody(nil)
		decoded, err := DecodeBody(buf)
		if err != nil {
			t.Fatal(err)
		}

		// the wire form carries no types; compare by re-encoding
		buf2 := decoded.AppendBody(nil)
		if !bytes.Equal(buf, buf2) {
			t.Fatalf("round trip changed the encoding;\nfirst  := %v\nsecond := %v", buf, buf2)
		}

		if !reflect.DeepEqual(decoded.Pool, bin.Pool) {
			t.Fatalf("pool changed: %v vs %v", bin.Pool, decoded.Pool)
		}
		if !reflect.DeepEqual(decoded.Decls, bin.Decls) {
			t.Fatalf("decls changed: %+v vs %+v", bin.Decls, decoded.Decls)
		}
		if decoded.NumLocal != bin.NumLocal || decoded.NumEvents() != bin.NumEvents() {
			t.Fatalf("counts changed")
		}
	}
}

func TestDecodeBodyRejects(t *testing.T) {
	bin, _ := mustCompile(t, "(def (x 0)) (when true (:= x 1))")
	good := bin.AppendBody(nil)

	tests := []struct {
		name string
		mut  func([]byte) []byte
	}{
		{"truncated", func(b []byte) []byte { return b[:len(b)-3] }},
		{"short header", func(b []byte) []byte { return b[:8] }},
		{"instr count lies", func(b []byte) []byte { b[4] = 99; return b }},
		{"bad descriptor imm", func(b []byte) []byte {
			// descriptor's default index beyond the pool
			b[12+8*len(bin.Pool)+4+1] = 0xFF
			return b
		}},
	}

	for _, test := range tests {
		mutated := test.mut(append([]byte(nil), good...))
		if _, err := DecodeBody(mutated); err == nil {
			t.Fatalf("%s: expected a decode error", test.name)
		}
	}
}
