// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package core

import (
	"strings"

	"github.com/ccp-project/goccp/lang"
	"github.com/ccp-project/goccp/wire"
)

// ReportField is one named measurement within a report.
type ReportField struct {
	Name  string
	Value uint64
}

// Report is a decoded Measure: the flow's congestion state followed by the
// program's Report variables, mapped back to their names through the
// program's scope.
type Report struct {
	SocketID   uint32
	ProgramUID uint32

	// Cwnd and Rate lead every report payload.
	Cwnd uint64
	Rate uint64

	// Fields lists the program's Report variables in declaration order.
	Fields []ReportField
}

// Field looks a report variable up by name. Both "x" and "Report.x"
// resolve.
func (r Report) Field(name string) (uint64, bool) {
	name = strings.TrimPrefix(name, "Report.")
	for _, f := range r.Fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return 0, false
}

// decodeReport maps a Measure payload onto names using the scope of the
// program that emitted it. The payload layout is fixed: Cwnd, Rate, then
// the Report variables in declaration order.
func decodeReport(sc *lang.Scope, m *wire.Measure) (Report, error) {
	vars := sc.ReportVars()
	if want := 2 + len(vars); len(m.Fields) != want {
		return Report{}, protocolError(m.Sid,
			"report carries %d fields, program scope needs %d", len(m.Fields), want)
	}

	r := Report{
		SocketID:   m.Sid,
		ProgramUID: m.ProgramUID,
		Cwnd:       m.Fields[0],
		Rate:       m.Fields[1],
	}
	for i, v := range vars {
		r.Fields = append(r.Fields, ReportField{Name: v.Name, Value: m.Fields[2+i]})
	}
	return r, nil
}

// resolveUpdates turns named field values into wire register updates using
// the flow's current scope.
func resolveUpdates(sid uint32, sc *lang.Scope, values []FieldValue) ([]wire.FieldUpdate, error) {
	var updates []wire.FieldUpdate
	for _, fv := range values {
		reg, ok := resolveWritable(sc, fv.Field)
		if !ok {
			return nil, protocolError(sid, "unknown or read-only field %q", fv.Field)
		}
		updates = append(updates, wire.FieldUpdate{
			Class: uint8(reg.Class),
			Idx:   reg.Idx,
			Value: fv.Value,
		})
	}
	return updates, nil
}

func resolveWritable(sc *lang.Scope, name string) (lang.Reg, bool) {
	switch name {
	case "Cwnd":
		return lang.Reg{Class: lang.ClassPerm, Idx: lang.PermCwnd}, true
	case "Rate":
		return lang.Reg{Class: lang.ClassPerm, Idx: lang.PermRate}, true
	case "Micros":
		return lang.Reg{Class: lang.ClassPerm, Idx: lang.PermMicros}, true
	}

	v, ok := sc.Lookup(name)
	if !ok {
		return lang.Reg{}, false
	}
	return v.Reg, true
}
