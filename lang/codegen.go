// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

package lang

// opcodeOf maps the two-operand AST operators onto wire opcodes. OpMod is
// absent: it is lowered to a div/mul/sub sequence.
var opcodeOf = map[Op]Opcode{
	OpAdd:  OcAdd,
	OpSub:  OcSub,
	OpMul:  OcMul,
	OpDiv:  OcDiv,
	OpEq:   OcEq,
	OpNeq:  OcNeq,
	OpLt:   OcLt,
	OpGt:   OcGt,
	OpLte:  OcLte,
	OpGte:  OcGte,
	OpAnd:  OcAnd,
	OpOr:   OcOr,
	OpEwma: OcEwma,
	OpMax:  OcMax,
	OpMin:  OcMin,
}

type poolKey struct {
	val    uint64
	isBool bool
}

// gen lowers an analyzed program to a Bin. Temporaries live in the Local
// class above the user variables and are reused once freed; the language
// has no loops, so a linear walk suffices.
type gen struct {
	sc  *Scope
	bin *Bin

	pool     map[poolKey]uint8
	tempBase uint8
	tempUsed []bool
	maxTemps int
}

// Gen lowers a program. The scope must come from Analyze on the same
// program.
func Gen(prog *Program, sc *Scope) (*Bin, error) {
	g := &gen{
		sc:       sc,
		bin:      &Bin{},
		pool:     map[poolKey]uint8{},
		tempBase: uint8(len(sc.Vars)),
	}

	for _, v := range sc.Vars {
		imm, err := g.intern(v.Default, v.Type)
		if err != nil {
			return nil, err
		}
		g.bin.Decls = append(g.bin.Decls, LocalDecl{
			Volatile:   v.Volatile,
			Report:     v.Report,
			Bool:       v.Type == TypeBool,
			DefaultImm: imm.Idx,
		})
	}

	if len(prog.Whens) > MaxEvents {
		return nil, newResourceError("%d events, datapath supports %d",
			len(prog.Whens), MaxEvents)
	}

	for _, when := range prog.Whens {
		if err := g.event(when); err != nil {
			return nil, err
		}
	}

	if n := len(g.bin.Instrs); n > MaxInstrs {
		return nil, newResourceError("%d instructions, datapath supports %d", n, MaxInstrs)
	}

	total := int(g.tempBase) + g.maxTemps
	if total > 255 {
		return nil, newResourceError("%d local registers, datapath supports 255", total)
	}
	g.bin.NumLocal = uint8(total)

	return g.bin, nil
}

func (g *gen) emit(in Instr) {
	g.bin.Instrs = append(g.bin.Instrs, in)
}

func (g *gen) intern(val uint64, t Type) (Reg, error) {
	key := poolKey{val: val, isBool: t == TypeBool}
	if idx, ok := g.pool[key]; ok {
		return Reg{Class: ClassImm, Idx: idx, Type: t}, nil
	}
	if len(g.bin.Pool) >= MaxImms {
		return Reg{}, newResourceError("%d immediates, datapath supports %d",
			len(g.bin.Pool)+1, MaxImms)
	}
	idx := uint8(len(g.bin.Pool))
	g.bin.Pool = append(g.bin.Pool, val)
	g.pool[key] = idx
	return Reg{Class: ClassImm, Idx: idx, Type: t}, nil
}

func (g *gen) allocTemp(t Type) Reg {
	for i, used := range g.tempUsed {
		if !used {
			g.tempUsed[i] = true
			return Reg{Class: ClassLocal, Idx: g.tempBase + uint8(i), Type: t}
		}
	}
	g.tempUsed = append(g.tempUsed, true)
	if len(g.tempUsed) > g.maxTemps {
		g.maxTemps = len(g.tempUsed)
	}
	return Reg{Class: ClassLocal, Idx: g.tempBase + uint8(len(g.tempUsed)-1), Type: t}
}

// free releases a register if it is a temporary; user variables and other
// classes pass through untouched.
func (g *gen) free(r Reg) {
	if r.Class == ClassLocal && r.Idx >= g.tempBase {
		g.tempUsed[r.Idx-g.tempBase] = false
	}
}

// event emits a when-header followed by the predicate and body
// instructions, then patches the header with the body's location.
func (g *gen) event(when WhenClause) error {
	hdr := len(g.bin.Instrs)
	g.emit(Instr{Op: OcWhenHeader})

	condReg, err := g.expr(when.Cond)
	if err != nil {
		return err
	}

	bodyStart := len(g.bin.Instrs)
	for _, stmt := range when.Body {
		r, err := g.expr(stmt)
		if err != nil {
			return err
		}
		g.free(r)
	}
	bodyLen := len(g.bin.Instrs) - bodyStart
	g.free(condReg)

	if bodyStart > 255 || bodyLen > 255 {
		return newResourceError("event body at %d+%d does not fit the datapath encoding",
			bodyStart, bodyLen)
	}

	g.bin.Instrs[hdr].Dst = condReg
	g.bin.Instrs[hdr].Src1 = Reg{Idx: uint8(bodyStart)}
	g.bin.Instrs[hdr].Src2 = Reg{Idx: uint8(bodyLen)}
	return nil
}

// expr compiles an expression and returns the register holding its value.
func (g *gen) expr(e Expr) (Reg, error) {
	switch e := e.(type) {
	case *NumLit:
		return g.intern(e.Val, TypeNum)

	case *BoolLit:
		var v uint64
		if e.Val {
			v = 1
		}
		return g.intern(v, TypeBool)

	case *Ident:
		r, ok := g.sc.resolve(e.Name)
		if !ok {
			return Reg{}, newSemanticError(e.At, "unknown identifier %q", e.Name)
		}
		return r, nil

	case *SExpr:
		return g.sexpr(e)

	default:
		return Reg{}, newSemanticError(e.Pos(), "unexpected expression")
	}
}

func (g *gen) sexpr(e *SExpr) (Reg, error) {
	switch e.Op {
	case OpReport:
		g.emit(Instr{Op: OcReport})
		return Reg{}, nil

	case OpFallthrough:
		g.emit(Instr{Op: OcFallthrough})
		return Reg{}, nil

	case OpBind:
		return g.bind(e)

	case OpIf:
		return g.ifExpr(e)

	case OpMod:
		return g.mod(e)

	default:
		return g.binop(e)
	}
}

func (g *gen) binop(e *SExpr) (Reg, error) {
	oc, ok := opcodeOf[e.Op]
	if !ok {
		return Reg{}, newSemanticError(e.At, "unsupported operator %s", e.Op)
	}

	left, err := g.expr(e.Args[0])
	if err != nil {
		return Reg{}, err
	}
	right, err := g.expr(e.Args[1])
	if err != nil {
		return Reg{}, err
	}
	g.free(left)
	g.free(right)

	resType := TypeNum
	switch e.Op {
	case OpEq, OpNeq, OpLt, OpGt, OpLte, OpGte, OpAnd, OpOr:
		resType = TypeBool
	}

	dst := g.allocTemp(resType)
	g.emit(Instr{Op: oc, Dst: dst, Src1: left, Src2: right})
	return dst, nil
}

// mod lowers (% a b) to a - (a/b)*b; the instruction set has no remainder
// opcode.
func (g *gen) mod(e *SExpr) (Reg, error) {
	left, err := g.expr(e.Args[0])
	if err != nil {
		return Reg{}, err
	}
	right, err := g.expr(e.Args[1])
	if err != nil {
		return Reg{}, err
	}

	quot := g.allocTemp(TypeNum)
	g.emit(Instr{Op: OcDiv, Dst: quot, Src1: left, Src2: right})
	prod := g.allocTemp(TypeNum)
	g.emit(Instr{Op: OcMul, Dst: prod, Src1: quot, Src2: right})
	g.free(quot)
	g.free(right)
	g.free(left)

	dst := g.allocTemp(TypeNum)
	g.emit(Instr{Op: OcSub, Dst: dst, Src1: left, Src2: prod})
	g.free(prod)
	return dst, nil
}

func (g *gen) bind(e *SExpr) (Reg, error) {
	lhs := e.Args[0].(*Ident)
	dst, ok := g.sc.resolve(lhs.Name)
	if !ok {
		return Reg{}, newSemanticError(lhs.At, "unknown identifier %q", lhs.Name)
	}

	rhs, err := g.expr(e.Args[1])
	if err != nil {
		return Reg{}, err
	}
	g.free(rhs)

	g.emit(Instr{Op: OcBind, Dst: dst, Src1: dst, Src2: rhs})
	return dst, nil
}

// ifExpr lowers (if c t e) to a conditional-move pair: the then-value is
// moved into the destination, then the if instruction replaces it with the
// else-value when the condition is false.
func (g *gen) ifExpr(e *SExpr) (Reg, error) {
	cond, err := g.expr(e.Args[0])
	if err != nil {
		return Reg{}, err
	}
	thenVal, err := g.expr(e.Args[1])
	if err != nil {
		return Reg{}, err
	}
	elseVal, err := g.expr(e.Args[2])
	if err != nil {
		return Reg{}, err
	}
	g.free(thenVal)

	dst := g.allocTemp(thenVal.Type)
	g.emit(Instr{Op: OcBind, Dst: dst, Src1: dst, Src2: thenVal})
	g.emit(Instr{Op: OcIf, Dst: dst, Src1: cond, Src2: elseVal})

	g.free(cond)
	g.free(elseVal)
	return dst, nil
}
