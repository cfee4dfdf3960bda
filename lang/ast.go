// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

// Op enumerates the language's operators.
type Op uint8

const (
	OpAdd Op = iota
	OpSub
	OpMul
	OpDiv
	OpMod
	OpEq
	OpNeq
	OpLt
	OpGt
	OpLte
	OpGte
	OpAnd
	OpOr
	OpBind
	OpIf
	OpReport
	OpFallthrough
	OpEwma
	OpMax
	OpMin
)

var opNames = map[string]Op{
	"+":           OpAdd,
	"-":           OpSub,
	"*":           OpMul,
	"/":           OpDiv,
	"%":           OpMod,
	"==":          OpEq,
	"!=":          OpNeq,
	"<":           OpLt,
	">":           OpGt,
	"<=":          OpLte,
	">=":          OpGte,
	"&&":          OpAnd,
	"||":          OpOr,
	":=":          OpBind,
	"bind":        OpBind,
	"if":          OpIf,
	"report":      OpReport,
	"fallthrough": OpFallthrough,
	"ewma":        OpEwma,
	"max":         OpMax,
	"min":         OpMin,
}

func (o Op) String() string {
	for name, op := range opNames {
		if op == o && name != "bind" {
			return name
		}
	}
	return "?"
}

// arity gives the operand count for each operator; -1 means variable.
func (o Op) arity() int {
	switch o {
	case OpReport, OpFallthrough:
		return 0
	case OpIf:
		return 3
	default:
		return 2
	}
}

// Expr is a node of the program AST.
type Expr interface {
	Pos() Pos
	exprNode()
}

// NumLit is an unsigned 64-bit integer literal.
type NumLit struct {
	Val uint64
	At  Pos
}

// BoolLit is a true/false literal.
type BoolLit struct {
	Val bool
	At  Pos
}

// Ident names a permanent field, an Ack.*/Flow.* field or a user variable.
type Ident struct {
	Name string
	At   Pos
}

// SExpr is an operator application.
type SExpr struct {
	Op   Op
	Args []Expr
	At   Pos
}

func (e *NumLit) Pos() Pos  { return e.At }
func (e *BoolLit) Pos() Pos { return e.At }
func (e *Ident) Pos() Pos   { return e.At }
func (e *SExpr) Pos() Pos   { return e.At }

func (*NumLit) exprNode()  {}
func (*BoolLit) exprNode() {}
func (*Ident) exprNode()   {}
func (*SExpr) exprNode()   {}

// VarDecl is one (name default) declaration inside the def clause.
type VarDecl struct {
	Name     string
	Volatile bool
	Report   bool
	Default  Expr
	At       Pos
}

// DefClause is the program's single variable declaration block.
type DefClause struct {
	Decls []VarDecl
	At    Pos
}

// WhenClause is a predicate paired with a statement sequence.
type WhenClause struct {
	Cond Expr
	Body []Expr
	At   Pos
}

// Program is a parsed datapath program: one def clause followed by one or
// more when clauses, in source order.
type Program struct {
	Def   DefClause
	Whens []WhenClause
}
