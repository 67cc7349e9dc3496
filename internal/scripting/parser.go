package scripting

import "fmt"

// parse builds the statement list for a script. Recursive descent; the
// grammar is a deliberately small Python-flavored subset: assignments,
// expression statements, if/elif/else, while, for-in, def, return,
// break/continue/pass.
func parse(toks []token) ([]stmt, *CompileError) {
	p := &parser{toks: toks}
	var out []stmt
	for !p.at(tokEOF) {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

type parser struct {
	toks []token
	pos  int
}

func (p *parser) cur() token        { return p.toks[p.pos] }
func (p *parser) at(k tokKind) bool { return p.cur().kind == k }

func (p *parser) next() token {
	t := p.toks[p.pos]
	if p.pos < len(p.toks)-1 {
		p.pos++
	}
	return t
}

func (p *parser) accept(k tokKind) bool {
	if p.at(k) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(k tokKind) (token, *CompileError) {
	if p.at(k) {
		return p.next(), nil
	}
	t := p.cur()
	return t, &CompileError{Line: t.line, Message: fmt.Sprintf("expected %s, found %s", k, t.kind)}
}

func (p *parser) statement() (stmt, *CompileError) {
	t := p.cur()
	switch t.kind {
	case tokIf:
		return p.ifStatement()
	case tokWhile:
		return p.whileStatement()
	case tokFor:
		return p.forStatement()
	case tokDef:
		return p.defStatement()
	default:
		return p.simpleStatement()
	}
}

func (p *parser) simpleStatement() (stmt, *CompileError) {
	t := p.cur()
	var s stmt
	switch t.kind {
	case tokReturn:
		p.next()
		rs := &returnStmt{line: t.line}
		if !p.at(tokNewline) {
			v, err := p.expression()
			if err != nil {
				return nil, err
			}
			rs.value = v
		}
		s = rs
	case tokBreak:
		p.next()
		s = &breakStmt{line: t.line}
	case tokContinue:
		p.next()
		s = &continueStmt{line: t.line}
	case tokPass:
		p.next()
		s = &passStmt{line: t.line}
	default:
		var err *CompileError
		s, err = p.assignOrExpr()
		if err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokNewline); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *parser) assignOrExpr() (stmt, *CompileError) {
	line := p.cur().line
	x, err := p.expression()
	if err != nil {
		return nil, err
	}
	k := p.cur().kind
	if k == tokAssign || k == tokPlusAssign || k == tokMinusAssign || k == tokStarAssign {
		p.next()
		switch x.(type) {
		case *nameExpr, *indexExpr:
		default:
			return nil, &CompileError{Line: line, Message: "cannot assign to this expression"}
		}
		v, err := p.expression()
		if err != nil {
			return nil, err
		}
		return &assignStmt{line: line, target: x, op: k, value: v}, nil
	}
	return &exprStmt{line: line, x: x}, nil
}

func (p *parser) block() ([]stmt, *CompileError) {
	if _, err := p.expect(tokColon); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokNewline); err != nil {
		return nil, err
	}
	if _, err := p.expect(tokIndent); err != nil {
		return nil, err
	}
	var out []stmt
	for !p.at(tokDedent) && !p.at(tokEOF) {
		s, err := p.statement()
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if _, err := p.expect(tokDedent); err != nil {
		return nil, err
	}
	return out, nil
}

func (p *parser) ifStatement() (stmt, *CompileError) {
	t := p.next() // if / elif
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	node := &ifStmt{line: t.line, cond: cond, body: body}
	switch {
	case p.at(tokElif):
		nested, err := p.ifStatement()
		if err != nil {
			return nil, err
		}
		node.els = []stmt{nested}
	case p.accept(tokElse):
		els, err := p.block()
		if err != nil {
			return nil, err
		}
		node.els = els
	}
	return node, nil
}

func (p *parser) whileStatement() (stmt, *CompileError) {
	t := p.next()
	cond, err := p.expression()
	if err != nil {
		return nil, err
	}
	body, err := p.block()
	if err != nil {
		return nil, err
	}
	return &whileStmt{line: t.line, cond: cond, body: body}, nil
}

func (p *parser) forStatement() (stmt, *CompileError) {
	t := p.next()
	name, err := p.expect(tokName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokIn); err != nil {
		return nil, err
	}
	iter, cerr := p.expression()
	if cerr != nil {
		return nil, cerr
	}
	body, cerr := p.block()
	if cerr != nil {
		return nil, cerr
	}
	return &forStmt{line: t.line, varName: name.lit, iter: iter, body: body}, nil
}

func (p *parser) defStatement() (stmt, *CompileError) {
	t := p.next()
	name, err := p.expect(tokName)
	if err != nil {
		return nil, err
	}
	if _, err := p.expect(tokLParen); err != nil {
		return nil, err
	}
	var params []string
	seen := map[string]bool{}
	for !p.at(tokRParen) {
		pn, err := p.expect(tokName)
		if err != nil {
			return nil, err
		}
		if seen[pn.lit] {
			return nil, &CompileError{Line: pn.line, Message: "duplicate parameter " + pn.lit}
		}
		seen[pn.lit] = true
		params = append(params, pn.lit)
		if !p.accept(tokComma) {
			break
		}
	}
	if _, err := p.expect(tokRParen); err != nil {
		return nil, err
	}
	body, cerr := p.block()
	if cerr != nil {
		return nil, cerr
	}
	return &defStmt{line: t.line, name: name.lit, params: params, body: body}, nil
}

// Expression precedence, loosest first: or, and, not, comparison,
// additive, multiplicative, unary minus, postfix, atom.

func (p *parser) expression() (expr, *CompileError) {
	return p.orExpr()
}

func (p *parser) orExpr() (expr, *CompileError) {
	l, err := p.andExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokOr) {
		t := p.next()
		r, err := p.andExpr()
		if err != nil {
			return nil, err
		}
		l = &logicalExpr{line: t.line, isAnd: false, l: l, r: r}
	}
	return l, nil
}

func (p *parser) andExpr() (expr, *CompileError) {
	l, err := p.notExpr()
	if err != nil {
		return nil, err
	}
	for p.at(tokAnd) {
		t := p.next()
		r, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		l = &logicalExpr{line: t.line, isAnd: true, l: l, r: r}
	}
	return l, nil
}

func (p *parser) notExpr() (expr, *CompileError) {
	if p.at(tokNot) {
		t := p.next()
		x, err := p.notExpr()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{line: t.line, isNot: true, x: x}, nil
	}
	return p.comparison()
}

func (p *parser) comparison() (expr, *CompileError) {
	l, err := p.additive()
	if err != nil {
		return nil, err
	}
	op, ok := cmpOp(p.cur().kind)
	if !ok {
		return l, nil
	}
	t := p.next()
	r, err := p.additive()
	if err != nil {
		return nil, err
	}
	return &binaryExpr{line: t.line, op: op, l: l, r: r}, nil
}

func cmpOp(k tokKind) (int, bool) {
	switch k {
	case tokEq:
		return cmpEq, true
	case tokNe:
		return cmpNe, true
	case tokLt:
		return cmpLt, true
	case tokLe:
		return cmpLe, true
	case tokGt:
		return cmpGt, true
	case tokGe:
		return cmpGe, true
	}
	return 0, false
}

func (p *parser) additive() (expr, *CompileError) {
	l, err := p.multiplicative()
	if err != nil {
		return nil, err
	}
	for p.at(tokPlus) || p.at(tokMinus) {
		t := p.next()
		op := binAdd
		if t.kind == tokMinus {
			op = binSub
		}
		r, err := p.multiplicative()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{line: t.line, op: op, l: l, r: r}
	}
	return l, nil
}

func (p *parser) multiplicative() (expr, *CompileError) {
	l, err := p.unary()
	if err != nil {
		return nil, err
	}
	for {
		var op int
		switch p.cur().kind {
		case tokStar:
			op = binMul
		case tokSlash:
			op = binDiv
		case tokSlashSlash:
			op = binFloorDiv
		case tokPercent:
			op = binMod
		default:
			return l, nil
		}
		t := p.next()
		r, err := p.unary()
		if err != nil {
			return nil, err
		}
		l = &binaryExpr{line: t.line, op: op, l: l, r: r}
	}
}

func (p *parser) unary() (expr, *CompileError) {
	switch p.cur().kind {
	case tokMinus:
		t := p.next()
		x, err := p.unary()
		if err != nil {
			return nil, err
		}
		return &unaryExpr{line: t.line, x: x}, nil
	case tokPlus:
		p.next()
		return p.unary()
	}
	return p.postfix()
}

func (p *parser) postfix() (expr, *CompileError) {
	x, err := p.atom()
	if err != nil {
		return nil, err
	}
	for {
		switch p.cur().kind {
		case tokLParen:
			t := p.next()
			var args []expr
			for !p.at(tokRParen) {
				a, err := p.expression()
				if err != nil {
					return nil, err
				}
				args = append(args, a)
				if !p.accept(tokComma) {
					break
				}
			}
			if _, err := p.expect(tokRParen); err != nil {
				return nil, err
			}
			x = &callExpr{line: t.line, fn: x, args: args}
		case tokLBracket:
			t := p.next()
			idx, err := p.expression()
			if err != nil {
				return nil, err
			}
			if _, cerr := p.expect(tokRBracket); cerr != nil {
				return nil, cerr
			}
			x = &indexExpr{line: t.line, x: x, index: idx}
		case tokDot:
			t := p.next()
			name, err := p.expect(tokName)
			if err != nil {
				return nil, err
			}
			x = &attrExpr{line: t.line, x: x, name: name.lit}
		default:
			return x, nil
		}
	}
}

func (p *parser) atom() (expr, *CompileError) {
	t := p.cur()
	switch t.kind {
	case tokName:
		p.next()
		return &nameExpr{line: t.line, name: t.lit}, nil
	case tokNumber:
		p.next()
		return &numberLit{line: t.line, isFloat: t.isFloat, intVal: t.intVal, fltVal: t.fltVal}, nil
	case tokString:
		p.next()
		return &stringLit{line: t.line, val: t.lit}, nil
	case tokTrue:
		p.next()
		return &boolLit{line: t.line, val: true}, nil
	case tokFalse:
		p.next()
		return &boolLit{line: t.line, val: false}, nil
	case tokNone:
		p.next()
		return &noneLit{line: t.line}, nil
	case tokLParen:
		p.next()
		x, err := p.expression()
		if err != nil {
			return nil, err
		}
		if _, cerr := p.expect(tokRParen); cerr != nil {
			return nil, cerr
		}
		return x, nil
	case tokLBracket:
		p.next()
		lit := &listLit{line: t.line}
		for !p.at(tokRBracket) {
			item, err := p.expression()
			if err != nil {
				return nil, err
			}
			lit.items = append(lit.items, item)
			if !p.accept(tokComma) {
				break
			}
		}
		if _, err := p.expect(tokRBracket); err != nil {
			return nil, err
		}
		return lit, nil
	default:
		return nil, &CompileError{Line: t.line, Message: fmt.Sprintf("unexpected %s", t.kind)}
	}
}
