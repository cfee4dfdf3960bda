// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

import (
	"math"
	"strconv"
	"strings"
)

// operator tokens which are not identifier-shaped
var symbolOps = []string{
	":=", "==", "!=", "<=", ">=", "&&", "||", "+", "-", "*", "/", "%", "<", ">",
}

// identifier-shaped keywords the parser treats as operators or structure
var wordOps = map[string]bool{
	"bind":        true,
	"if":          true,
	"when":        true,
	"def":         true,
	"report":      true,
	"fallthrough": true,
	"volatile":    true,
	"ewma":        true,
	"max":         true,
	"min":         true,
}

// lexer turns program source into a token stream. Whitespace and
// #-comments are skipped.
type lexer struct {
	src  string
	off  int
	line int
	col  int
}

func newLexer(src string) *lexer {
	return &lexer{src: src, line: 1, col: 1}
}

func (l *lexer) pos() Pos {
	return Pos{Line: l.line, Col: l.col}
}

func (l *lexer) advance(n int) {
	for i := 0; i < n; i++ {
		if l.src[l.off+i] == '\n' {
			l.line++
			l.col = 1
		} else {
			l.col++
		}
	}
	l.off += n
}

func (l *lexer) skipBlank() {
	for l.off < len(l.src) {
		c := l.src[l.off]
		if c == ' ' || c == '\t' || c == '\r' || c == '\n' {
			l.advance(1)
			continue
		}
		if c == '#' {
			for l.off < len(l.src) && l.src[l.off] != '\n' {
				l.advance(1)
			}
			continue
		}
		break
	}
}

func isIdentByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' ||
		c >= '0' && c <= '9' || c == '.' || c == '_'
}

// next returns the next token, or a Syntax error on an unknown byte
// sequence or an out-of-range integer literal.
func (l *lexer) next() (token, error) {
	l.skipBlank()
	pos := l.pos()

	if l.off >= len(l.src) {
		return token{kind: tokEOF, pos: pos}, nil
	}

	switch c := l.src[l.off]; {
	case c == '(':
		l.advance(1)
		return token{kind: tokLParen, text: "(", pos: pos}, nil

	case c == ')':
		l.advance(1)
		return token{kind: tokRParen, text: ")", pos: pos}, nil

	case c >= '0' && c <= '9':
		start := l.off
		for l.off < len(l.src) && l.src[l.off] >= '0' && l.src[l.off] <= '9' {
			l.advance(1)
		}
		if l.off < len(l.src) && isIdentByte(l.src[l.off]) {
			return token{}, newSyntaxError(pos, "identifier must not start with a digit")
		}
		text := l.src[start:l.off]
		n, err := strconv.ParseUint(text, 10, 64)
		if err != nil {
			return token{}, newSyntaxError(pos, "integer literal %q out of range", text)
		}
		return token{kind: tokNum, text: text, num: n, pos: pos}, nil

	case isIdentByte(c):
		start := l.off
		for l.off < len(l.src) && isIdentByte(l.src[l.off]) {
			l.advance(1)
		}
		text := l.src[start:l.off]
		switch {
		case text == "true" || text == "false":
			return token{kind: tokBool, text: text, b: text == "true", pos: pos}, nil
		case wordOps[text]:
			return token{kind: tokOp, text: text, pos: pos}, nil
		default:
			return token{kind: tokIdent, text: text, pos: pos}, nil
		}

	case c == '+' && strings.HasPrefix(l.src[l.off:], "+infinity"):
		l.advance(len("+infinity"))
		return token{kind: tokNum, text: "+infinity", num: math.MaxUint64, pos: pos}, nil

	default:
		for _, op := range symbolOps {
			if strings.HasPrefix(l.src[l.off:], op) {
				l.advance(len(op))
				return token{kind: tokOp, text: op, pos: pos}, nil
			}
		}
		return token{}, newSyntaxError(pos, "unexpected character %q", string(l.src[l.off]))
	}
}

// lex tokenizes the whole source up front; programs are small.
func lex(src string) ([]token, error) {
	l := newLexer(src)
	var toks []token
	for {
		t, err := l.next()
		if err != nil {
			return nil, err
		}
		toks = append(toks, t)
		if t.kind == tokEOF {
			return toks, nil
		}
	}
}
