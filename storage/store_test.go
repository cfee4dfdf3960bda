// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package storage

import (
	"testing"

	"github.com/ccp-project/goccp/core"
)

func TestStoreRoundTrip(t *testing.T) {
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()

	reports := []core.Report{
		{SocketID: 1, ProgramUID: 2, Cwnd: 10000, Rate: 0,
			Fields: []core.ReportField{{Name: "acked", Value: 1460}}},
		{SocketID: 1, ProgramUID: 2, Cwnd: 11460, Rate: 0,
			Fields: []core.ReportField{{Name: "acked", Value: 2920}}},
		{SocketID: 9, ProgramUID: 2, Cwnd: 500, Rate: 0, Fields: nil},
	}
	for _, r := range reports {
		if err := store.Push(r); err != nil {
			t.Fatal(err)
		}
	}

	items, err := store.QueryFlow(1)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("expected 2 reports for flow 1, got %d", len(items))
	}
	if items[0].Cwnd != 10000 || items[1].Cwnd != 11460 {
		t.Fatalf("wrong order or values: %+v", items)
	}
	if items[1].Fields["acked"] != 2920 {
		t.Fatalf("field lost: %+v", items[1].Fields)
	}

	other, err := store.QueryFlow(9)
	if err != nil {
		t.Fatal(err)
	}
	if len(other) != 1 || other[0].Cwnd != 500 {
		t.Fatalf("flow 9 is wrong: %+v", other)
	}
}
