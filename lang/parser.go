// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

// parser is a recursive descent parser over the token stream.
type parser struct {
	toks []token
	off  int
}

func (p *parser) peek() token {
	return p.toks[p.off]
}

func (p *parser) take() token {
	t := p.toks[p.off]
	if t.kind != tokEOF {
		p.off++
	}
	return t
}

func (p *parser) expect(kind tokenKind) (token, error) {
	t := p.take()
	if t.kind != kind {
		return t, newSyntaxError(t.pos, "expected %s, found %s", kind, t)
	}
	return t, nil
}

func (p *parser) expectOp(name string) (token, error) {
	t := p.take()
	if t.kind != tokOp || t.text != name {
		return t, newSyntaxError(t.pos, "expected %q, found %s", name, t)
	}
	return t, nil
}

// Parse turns program source into its AST. The result is not yet checked
// against the scope and typing rules; see Analyze.
func Parse(src string) (*Program, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}

	p := &parser{toks: toks}
	prog := &Program{}

	def, err := p.parseDef()
	if err != nil {
		return nil, err
	}
	prog.Def = *def

	for p.peek().kind != tokEOF {
		when, err := p.parseWhen()
		if err != nil {
			return nil, err
		}
		prog.Whens = append(prog.Whens, *when)
	}

	if len(prog.Whens) == 0 {
		return nil, newSyntaxError(p.peek().pos, "program needs at least one when clause")
	}
	return prog, nil
}

// parseDef parses '(' 'def' { vardecl | reportblock } ')'. Only the leading
// def is recognized; a later one fails in parseWhen, which expects "when".
func (p *parser) parseDef() (*DefClause, error) {
	lp, err := p.expect(tokLParen)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp("def"); err != nil {
		return nil, newSyntaxError(lp.pos, "program must start with a def clause")
	}

	def := &DefClause{At: lp.pos}
	for p.peek().kind == tokLParen {
		decls, err := p.parseDeclOrReport()
		if err != nil {
			return nil, err
		}
		def.Decls = append(def.Decls, decls...)
	}

	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if len(def.Decls) == 0 {
		return nil, newSyntaxError(lp.pos, "def clause declares no variables")
	}
	return def, nil
}

// parseDeclOrReport parses either a single vardecl or a
// '(' 'Report' { vardecl } ')' block.
func (p *parser) parseDeclOrReport() ([]VarDecl, error) {
	lp, err := p.expect(tokLParen)
	if err != nil {
		return nil, err
	}

	if t := p.peek(); t.kind == tokIdent && t.text == "Report" {
		p.take()
		var decls []VarDecl
		for p.peek().kind == tokLParen {
			d, err := p.parseDecl()
			if err != nil {
				return nil, err
			}
			d.Report = true
			decls = append(decls, *d)
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}
		if len(decls) == 0 {
			return nil, newSyntaxError(lp.pos, "Report block declares no variables")
		}
		return decls, nil
	}

	d, err := p.parseDeclBody(lp.pos)
	if err != nil {
		return nil, err
	}
	return []VarDecl{*d}, nil
}

func (p *parser) parseDecl() (*VarDecl, error) {
	lp, err := p.expect(tokLParen)
	if err != nil {
		return nil, err
	}
	return p.parseDeclBody(lp.pos)
}

// parseDeclBody parses [ 'volatile' ] IDENT literal ')' after the opening
// parenthesis has been consumed.
func (p *parser) parseDeclBody(at Pos) (*VarDecl, error) {
	d := &VarDecl{At: at}

	if t := p.peek(); t.kind == tokOp && t.text == "volatile" {
		p.take()
		d.Volatile = true
	}

	name, err := p.expect(tokIdent)
	if err != nil {
		return nil, err
	}
	d.Name = name.text

	switch t := p.take(); t.kind {
	case tokNum:
		d.Default = &NumLit{Val: t.num, At: t.pos}
	case tokBool:
		d.Default = &BoolLit{Val: t.b, At: t.pos}
	default:
		return nil, newSyntaxError(t.pos, "variable default must be a literal, found %s", t)
	}

	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	return d, nil
}

// parseWhen parses '(' 'when' expr { stmt } ')'.
func (p *parser) parseWhen() (*WhenClause, error) {
	lp, err := p.expect(tokLParen)
	if err != nil {
		return nil, err
	}
	if _, err := p.expectOp("when"); err != nil {
		return nil, err
	}

	when := &WhenClause{At: lp.pos}
	when.Cond, err = p.parseExpr()
	if err != nil {
		return nil, err
	}

	for p.peek().kind != tokRParen && p.peek().kind != tokEOF {
		stmt, err := p.parseExpr()
		if err != nil {
			return nil, err
		}
		when.Body = append(when.Body, stmt)
	}

	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	if len(when.Body) == 0 {
		return nil, newSyntaxError(lp.pos, "when clause has an empty body")
	}
	return when, nil
}

// parseExpr parses literal | ident | '(' op { expr } ')'.
func (p *parser) parseExpr() (Expr, error) {
	switch t := p.take(); t.kind {
	case tokNum:
		return &NumLit{Val: t.num, At: t.pos}, nil

	case tokBool:
		return &BoolLit{Val: t.b, At: t.pos}, nil

	case tokIdent:
		return &Ident{Name: t.text, At: t.pos}, nil

	case tokLParen:
		op, err := p.expect(tokOp)
		if err != nil {
			return nil, err
		}
		o, ok := opNames[op.text]
		if !ok {
			return nil, newSyntaxError(op.pos, "%q is not an operator", op.text)
		}

		e := &SExpr{Op: o, At: t.pos}
		for p.peek().kind != tokRParen && p.peek().kind != tokEOF {
			arg, err := p.parseExpr()
			if err != nil {
				return nil, err
			}
			e.Args = append(e.Args, arg)
		}
		if _, err := p.expect(tokRParen); err != nil {
			return nil, err
		}

		if want := o.arity(); want >= 0 && len(e.Args) != want {
			return nil, newSyntaxError(t.pos, "%s takes %d operands, found %d",
				o, want, len(e.Args))
		}
		return e, nil

	default:
		return nil, newSyntaxError(t.pos, "expected expression, found %s", t)
	}
}
