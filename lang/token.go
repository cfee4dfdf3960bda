// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

import "fmt"

// tokenKind enumerates the lexical classes of the program source.
type tokenKind uint8

const (
	tokLParen tokenKind = iota
	tokRParen
	tokNum
	tokBool
	tokIdent
	tokOp
	tokEOF
)

func (tk tokenKind) String() string {
	switch tk {
	case tokLParen:
		return "("
	case tokRParen:
		return ")"
	case tokNum:
		return "number"
	case tokBool:
		return "boolean"
	case tokIdent:
		return "identifier"
	case tokOp:
		return "operator"
	case tokEOF:
		return "end of input"
	default:
		return "invalid"
	}
}

// Pos is a line/column position within a program source, 1-based.
type Pos struct {
	Line int
	Col  int
}

func (p Pos) String() string {
	return fmt.Sprintf("%d:%d", p.Line, p.Col)
}

// token is a single lexeme together with its source position.
type token struct {
	kind tokenKind
	text string
	num  uint64
	b    bool
	pos  Pos
}

func (t token) String() string {
	switch t.kind {
	case tokLParen, tokRParen, tokEOF:
		return t.kind.String()
	default:
		return fmt.Sprintf("%s %q", t.kind, t.text)
	}
}
