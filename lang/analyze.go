// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

import "strings"

// Hard bounds imposed by the datapath peer. Oversize programs are rejected
// at compile time, before anything reaches the wire.
const (
	MaxEvents    = 16
	MaxInstrs    = 256
	MaxLocalVars = 32
	MaxImms      = 64

	maxIfDepth = 16
)

// Analyze checks a parsed program against the language rules and returns
// its Scope. The program is not modified.
func Analyze(prog *Program) (*Scope, error) {
	sc := newScope()

	if len(prog.Def.Decls) > MaxLocalVars {
		return nil, newResourceError("%d variables declared, datapath supports %d",
			len(prog.Def.Decls), MaxLocalVars)
	}

	for i, d := range prog.Def.Decls {
		if err := checkDeclName(sc, d); err != nil {
			return nil, err
		}

		v := Var{
			Name:     d.Name,
			Reg:      Reg{Class: ClassLocal, Idx: uint8(i)},
			Report:   d.Report,
			Volatile: d.Volatile,
		}
		switch lit := d.Default.(type) {
		case *NumLit:
			v.Type = TypeNum
			v.Default = lit.Val
		case *BoolLit:
			v.Type = TypeBool
			if lit.Val {
				v.Default = 1
			}
		}
		v.Reg.Type = v.Type
		sc.declare(v)
	}

	for _, when := range prog.Whens {
		condType, err := typeOf(when.Cond, sc, 0, false)
		if err != nil {
			return nil, err
		}
		if condType != TypeBool {
			return nil, newSemanticError(when.Cond.Pos(), "when condition must be boolean")
		}

		for _, stmt := range when.Body {
			if _, err := typeOf(stmt, sc, 0, true); err != nil {
				return nil, err
			}
		}
	}

	return sc, nil
}

func checkDeclName(sc *Scope, d VarDecl) error {
	name := d.Name
	if _, clash := permRegs[name]; clash {
		return newSemanticError(d.At, "%q shadows a permanent field", name)
	}
	if _, clash := implRegs[name]; clash {
		return newSemanticError(d.At, "%q shadows a datapath field", name)
	}
	if strings.HasPrefix(name, "Report.") || strings.HasPrefix(name, "Ack.") ||
		strings.HasPrefix(name, "Flow.") {
		return newSemanticError(d.At, "variable %q must not carry a scope prefix", name)
	}
	if _, dup := sc.byName[name]; dup {
		return newSemanticError(d.At, "variable %q declared twice", name)
	}
	return nil
}

// typeOf type-checks an expression. stmt is true only for the direct
// children of a when body; (report) and (fallthrough) are legal nowhere
// else.
func typeOf(e Expr, sc *Scope, ifDepth int, stmt bool) (Type, error) {
	switch e := e.(type) {
	case *NumLit:
		return TypeNum, nil

	case *BoolLit:
		return TypeBool, nil

	case *Ident:
		r, ok := sc.resolve(e.Name)
		if !ok {
			return 0, newSemanticError(e.At, "unknown identifier %q", e.Name)
		}
		return r.Type, nil

	case *SExpr:
		return typeOfSExpr(e, sc, ifDepth, stmt)

	default:
		return 0, newSemanticError(e.Pos(), "unexpected expression")
	}
}

func typeOfSExpr(e *SExpr, sc *Scope, ifDepth int, stmt bool) (Type, error) {
	switch e.Op {
	case OpReport, OpFallthrough:
		if !stmt {
			return 0, newSemanticError(e.At, "(%s) is only allowed directly inside a when body", e.Op)
		}
		return TypeBool, nil

	case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpEwma, OpMax, OpMin:
		if err := checkOperands(e, sc, ifDepth, TypeNum); err != nil {
			return 0, err
		}
		return TypeNum, nil

	case OpEq, OpNeq, OpLt, OpGt, OpLte, OpGte:
		if err := checkOperands(e, sc, ifDepth, TypeNum); err != nil {
			return 0, err
		}
		return TypeBool, nil

	case OpAnd, OpOr:
		if err := checkOperands(e, sc, ifDepth, TypeBool); err != nil {
			return 0, err
		}
		return TypeBool, nil

	case OpBind:
		return typeOfBind(e, sc, ifDepth)

	case OpIf:
		if ifDepth+1 > maxIfDepth {
			return 0, newSemanticError(e.At, "if nesting exceeds depth %d", maxIfDepth)
		}
		condType, err := typeOf(e.Args[0], sc, ifDepth+1, false)
		if err != nil {
			return 0, err
		}
		if condType != TypeBool {
			return 0, newSemanticError(e.Args[0].Pos(), "if condition must be boolean")
		}
		thenType, err := typeOf(e.Args[1], sc, ifDepth+1, false)
		if err != nil {
			return 0, err
		}
		elseType, err := typeOf(e.Args[2], sc, ifDepth+1, false)
		if err != nil {
			return 0, err
		}
		if thenType != elseType {
			return 0, newSemanticError(e.At, "if branches have mismatched types %s and %s",
				thenType, elseType)
		}
		return thenType, nil

	default:
		return 0, newSemanticError(e.At, "unsupported operator %s", e.Op)
	}
}

func checkOperands(e *SExpr, sc *Scope, ifDepth int, want Type) error {
	for _, arg := range e.Args {
		t, err := typeOf(arg, sc, ifDepth, false)
		if err != nil {
			return err
		}
		if t != want {
			return newSemanticError(arg.Pos(), "%s expects %s operands, found %s",
				e.Op, want, t)
		}
	}
	return nil
}

func typeOfBind(e *SExpr, sc *Scope, ifDepth int) (Type, error) {
	lhs, ok := e.Args[0].(*Ident)
	if !ok {
		return 0, newSemanticError(e.Args[0].Pos(), "left side of := must be a variable")
	}

	r, found := sc.resolve(lhs.Name)
	if !found {
		return 0, newSemanticError(lhs.At, "unknown identifier %q", lhs.Name)
	}
	if r.Class == ClassImpl {
		return 0, newSemanticError(lhs.At, "%q is read-only", lhs.Name)
	}

	rhsType, err := typeOf(e.Args[1], sc, ifDepth, false)
	if err != nil {
		return 0, err
	}
	if rhsType != r.Type {
		return 0, newSemanticError(e.At, "cannot assign %s value to %s variable %q",
			rhsType, r.Type, lhs.Name)
	}
	return r.Type, nil
}
