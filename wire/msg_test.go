// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/ccp-project/goccp/lang"
)

func TestMessageRoundTrip(t *testing.T) {
	bin, _, err := lang.Compile(`
		(def (Report (volatile acked 0)))
		(when true
			(:= Report.acked (+ Report.acked Ack.bytes_acked))
		)
	`)
	if err != nil {
		t.Fatal(err)
	}

	msgs := []Msg{
		&Ready{BuildID: 0xdeadbeef},
		&Create{Sid: 3, InitCwnd: 14600, Mss: 1460,
			SrcIP: 0x0a000001, SrcPort: 4242, DstIP: 0x0a000002, DstPort: 80},
		&Measure{Sid: 4, ProgramUID: 2, Fields: []uint64{14500, 0, 4500}},
		&Install{Sid: 5, ProgramUID: 2, Bin: bin},
		&Update{Sid: 6, Updates: []FieldUpdate{{Class: 0, Idx: 0, Value: 20000}}},
		&ChangeProg{Sid: 7, ProgramUID: 8,
			Updates: []FieldUpdate{{Class: 3, Idx: 1, Value: 1}}},
		&Free{Sid: 9},
	}

	for _, m := range msgs {
		buf, err := Append(nil, m, 0)
		if err != nil {
			t.Fatalf("%v: %v", m, err)
		}

		decoded, err := Decoder{Strict: true}.Decode(buf)
		if err != nil {
			t.Fatalf("%v: %v", m, err)
		}

		// Install carries a Bin whose in-memory form holds types the wire
		// drops; compare it by re-encoding instead
		if in, ok := m.(*Install); ok {
			out := decoded.(*Install)
			if in.Sid != out.Sid || in.ProgramUID != out.ProgramUID {
				t.Fatalf("install header changed: %v vs %v", in, out)
			}
			if !bytes.Equal(in.Bin.AppendBody(nil), out.Bin.AppendBody(nil)) {
				t.Fatalf("install program changed")
			}
			continue
		}

		if !reflect.DeepEqual(m, decoded) {
			t.Fatalf("round trip changed the message;\nexpected := %#v\ngot      := %#v", m, decoded)
		}
	}
}

func TestMessageEncoding(t *testing.T) {
	tests := []struct {
		msg  Msg
		data []byte
	}{
		{
			&Ready{BuildID: 7},
			[]byte{
				0x00, 0x00, 0x0c, 0x00, // Ready, reserved, length = 12
				0x00, 0x00, 0x00, 0x00, // socket id = 0
				0x07, 0x00, 0x00, 0x00, // build id = 7
			},
		},
		{
			&Measure{Sid: 1, ProgramUID: 2, Fields: []uint64{42}},
			[]byte{
				0x02, 0x00, 0x18, 0x00, // Measure, reserved, length = 24
				0x01, 0x00, 0x00, 0x00, // socket id = 1
				0x02, 0x00, 0x00, 0x00, // program uid = 2
				0x01, 0x00, 0x00, 0x00, // num fields = 1
				0x2a, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // 42
			},
		},
		{
			&Update{Sid: 1, Updates: []FieldUpdate{{Class: 2, Idx: 4, Value: 42}}},
			[]byte{
				0x04, 0x00, 0x18, 0x00, // Update, reserved, length = 24
				0x01, 0x00, 0x00, 0x00, // socket id = 1
				0x01, 0x00, 0x00, 0x00, // num updates = 1
				0x02, 0x04, 0x00, 0x00, // class 2, index 4, padding
				0x2a, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, // 42
			},
		},
		{
			&Free{Sid: 3},
			[]byte{
				0x06, 0x00, 0x08, 0x00, // Free, reserved, length = 8
				0x03, 0x00, 0x00, 0x00, // socket id = 3
			},
		},
	}

	for _, test := range tests {
		buf, err := Append(nil, test.msg, 0)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(buf, test.data) {
			t.Fatalf("%v encoded wrong;\nexpected := %v\ngot      := %v", test.msg, test.data, buf)
		}
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"shorter than header", []byte{0x02, 0x00, 0x08}},
		{"length below header", []byte{0x02, 0x00, 0x04, 0x00, 0x01, 0x00, 0x00, 0x00}},
		{"length beyond datagram", []byte{
			// a Measure of 8 bytes whose header claims 64
			0x02, 0x00, 0x40, 0x00, 0x01, 0x00, 0x00, 0x00,
		}},
		{"measure body too short", []byte{
			0x02, 0x00, 0x0c, 0x00, 0x01, 0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00,
		}},
		{"measure fields lie", []byte{
			0x02, 0x00, 0x10, 0x00, 0x01, 0x00, 0x00, 0x00,
			0x02, 0x00, 0x00, 0x00, 0x09, 0x00, 0x00, 0x00,
		}},
	}

	for _, test := range tests {
		if _, err := (Decoder{}).Decode(test.data); err == nil {
			t.Fatalf("%s: expected a decode error", test.name)
		}
	}
}

func TestDecodeMTU(t *testing.T) {
	m := &Measure{Sid: 1, ProgramUID: 1, Fields: make([]uint64, 16)}
	buf, err := Append(nil, m, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := (Decoder{MTU: 64}).Decode(buf); err == nil {
		t.Fatal("expected the decoder to enforce its MTU")
	}
	if _, err := (Decoder{}).Decode(buf); err != nil {
		t.Fatal(err)
	}

	if _, err := Append(nil, m, 64); err == nil {
		t.Fatal("expected Append to enforce the MTU")
	}
}

func TestDecodeUnknownType(t *testing.T) {
	frame := []byte{0xAA, 0x00, 0x08, 0x00, 0x00, 0x00, 0x00, 0x00}

	if msg, err := (Decoder{}).Decode(frame); err != nil || msg != nil {
		t.Fatalf("lenient mode should skip unknown types, got %v, %v", msg, err)
	}

	if _, err := (Decoder{Strict: true}).Decode(frame); err == nil {
		t.Fatal("strict mode should reject unknown types")
	} else if _, ok := err.(*ErrUnknownType); !ok {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
}

func TestDecodeIgnoresTrailingPadding(t *testing.T) {
	buf, err := Append(nil, &Free{Sid: 2}, 0)
	if err != nil {
		t.Fatal(err)
	}
	padded := append(buf, 0x00, 0x00, 0x00, 0x00)

	msg, err := (Decoder{}).Decode(padded)
	if err != nil {
		t.Fatal(err)
	}
	if f, ok := msg.(*Free); !ok || f.Sid != 2 {
		t.Fatalf("expected Free(sid=2), got %v", msg)
	}
}
