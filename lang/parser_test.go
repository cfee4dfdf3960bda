// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

import (
	"reflect"
	"testing"
)

// stripPos clears positions for structural comparison.
func stripPos(e Expr) Expr {
	switch e := e.(type) {
	case *NumLit:
		return &NumLit{Val: e.Val}
	case *BoolLit:
		return &BoolLit{Val: e.Val}
	case *Ident:
		return &Ident{Name: e.Name}
	case *SExpr:
		out := &SExpr{Op: e.Op}
		for _, arg := range e.Args {
			out.Args = append(out.Args, stripPos(arg))
		}
		return out
	default:
		return e
	}
}

func TestParseProgram(t *testing.T) {
	prog, err := Parse(`
		(def (Bar 10) (Report (Foo 0) (volatile Baz 0)))
		(when (> foo 0) # comment
			(:= Bar (+ Bar 1))
		)
		(when true
			(report)
		)
	`)
	if err != nil {
		t.Fatal(err)
	}

	expectedDecls := []struct {
		name     string
		report   bool
		volatile bool
	}{
		{"Bar", false, false},
		{"Foo", true, false},
		{"Baz", true, true},
	}
	if len(prog.Def.Decls) != len(expectedDecls) {
		t.Fatalf("expected %d decls, got %v", len(expectedDecls), prog.Def.Decls)
	}
	for i, expected := range expectedDecls {
		d := prog.Def.Decls[i]
		if d.Name != expected.name || d.Report != expected.report || d.Volatile != expected.volatile {
			t.Fatalf("decl %d is wrong; expected := %+v, got := %+v", i, expected, d)
		}
	}

	if len(prog.Whens) != 2 {
		t.Fatalf("expected 2 when clauses, got %d", len(prog.Whens))
	}

	cond := stripPos(prog.Whens[0].Cond)
	expectedCond := &SExpr{Op: OpGt, Args: []Expr{&Ident{Name: "foo"}, &NumLit{Val: 0}}}
	if !reflect.DeepEqual(cond, expectedCond) {
		t.Fatalf("condition is wrong; expected := %v, got := %v", expectedCond, cond)
	}

	body := stripPos(prog.Whens[0].Body[0])
	expectedBody := &SExpr{Op: OpBind, Args: []Expr{
		&Ident{Name: "Bar"},
		&SExpr{Op: OpAdd, Args: []Expr{&Ident{Name: "Bar"}, &NumLit{Val: 1}}},
	}}
	if !reflect.DeepEqual(body, expectedBody) {
		t.Fatalf("body is wrong; expected := %v, got := %v", expectedBody, body)
	}

	report := stripPos(prog.Whens[1].Body[0])
	if !reflect.DeepEqual(report, &SExpr{Op: OpReport}) {
		t.Fatalf("expected report statement, got %v", report)
	}
}

func TestParseNested(t *testing.T) {
	prog, err := Parse(`
		(def (x 0))
		(when true
			(:= x (+ (- 17 7) (+ 4 (- 26 20))))
		)
	`)
	if err != nil {
		t.Fatal(err)
	}

	got := stripPos(prog.Whens[0].Body[0])
	expected := &SExpr{Op: OpBind, Args: []Expr{
		&Ident{Name: "x"},
		&SExpr{Op: OpAdd, Args: []Expr{
			&SExpr{Op: OpSub, Args: []Expr{&NumLit{Val: 17}, &NumLit{Val: 7}}},
			&SExpr{Op: OpAdd, Args: []Expr{
				&NumLit{Val: 4},
				&SExpr{Op: OpSub, Args: []Expr{&NumLit{Val: 26}, &NumLit{Val: 20}}},
			}},
		}},
	}}
	if !reflect.DeepEqual(got, expected) {
		t.Fatalf("expected := %v, got := %v", expected, got)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{"no def", "(when true (report))"},
		{"def not first", "(when true (report)) (def (x 0))"},
		{"second def", "(def (x 0)) (def (y 0)) (when true (report))"},
		{"no whens", "(def (x 0))"},
		{"empty def", "(def) (when true (report))"},
		{"empty when body", "(def (x 0)) (when true)"},
		{"non-literal default", "(def (x y)) (when true (report))"},
		{"unknown operator", "(def (x 0)) (when true (blah 1 2))"},
		{"wrong arity", "(def (x 0)) (when true (+ 1 2 3))"},
		{"if arity", "(def (x 0)) (when true (:= x (if true 1)))"},
		{"unbalanced", "(def (x 0)) (when true (:= x (+ 1 2)"},
	}

	for _, test := range tests {
		if _, err := Parse(test.src); err == nil {
			t.Fatalf("%s: expected a parse error", test.name)
		} else if ce, ok := err.(*CompileError); !ok || ce.Kind != Syntax {
			t.Fatalf("%s: expected a syntax error, got %v", test.name, err)
		}
	}
}
