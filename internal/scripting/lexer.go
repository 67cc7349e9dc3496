package scripting

import (
	"strconv"
	"strings"
)

// lex turns source text into a token stream with INDENT/DEDENT tokens
// marking block structure. Lines are 1-based throughout so faults map
// straight back to the editor.
func lex(source string) ([]token, *CompileError) {
	l := &lexer{
		lines:   strings.Split(strings.ReplaceAll(source, "\r\n", "\n"), "\n"),
		indents: []int{0},
	}
	return l.run()
}

type lexer struct {
	lines   []string
	indents []int
	toks    []token
	depth   int // bracket nesting; newlines inside brackets are ignored
}

func (l *lexer) emit(t token) { l.toks = append(l.toks, t) }

func (l *lexer) run() ([]token, *CompileError) {
	for lineNo := 1; lineNo <= len(l.lines); lineNo++ {
		text := l.lines[lineNo-1]

		body, width := measureIndent(text)
		if isBlank(body) {
			continue
		}
		if l.depth == 0 {
			if err := l.applyIndent(width, lineNo); err != nil {
				return nil, err
			}
		}
		if err := l.lexLine(body, lineNo); err != nil {
			return nil, err
		}
		if l.depth == 0 {
			l.emit(token{kind: tokNewline, line: lineNo})
		}
	}
	last := len(l.lines)
	if l.depth != 0 {
		return nil, &CompileError{Line: last, Message: "unclosed bracket"}
	}
	for len(l.indents) > 1 {
		l.indents = l.indents[:len(l.indents)-1]
		l.emit(token{kind: tokDedent, line: last})
	}
	l.emit(token{kind: tokEOF, line: last})
	return l.toks, nil
}

// measureIndent returns the line body after leading whitespace and the
// indentation width, with tabs counting as four columns.
func measureIndent(text string) (string, int) {
	width := 0
	for i, r := range text {
		switch r {
		case ' ':
			width++
		case '\t':
			width += 4
		default:
			return text[i:], width
		}
	}
	return "", width
}

func isBlank(body string) bool {
	return body == "" || body[0] == '#'
}

func (l *lexer) applyIndent(width, line int) *CompileError {
	top := l.indents[len(l.indents)-1]
	switch {
	case width > top:
		l.indents = append(l.indents, width)
		l.emit(token{kind: tokIndent, line: line})
	case width < top:
		for len(l.indents) > 1 && l.indents[len(l.indents)-1] > width {
			l.indents = l.indents[:len(l.indents)-1]
			l.emit(token{kind: tokDedent, line: line})
		}
		if l.indents[len(l.indents)-1] != width {
			return &CompileError{Line: line, Message: "inconsistent indentation"}
		}
	}
	return nil
}

func (l *lexer) lexLine(body string, line int) *CompileError {
	i := 0
	for i < len(body) {
		c := body[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c == '#':
			return nil
		case isNameStart(c):
			j := i + 1
			for j < len(body) && isNamePart(body[j]) {
				j++
			}
			word := body[i:j]
			if kw, ok := keywords[word]; ok {
				l.emit(token{kind: kw, lit: word, line: line})
			} else {
				l.emit(token{kind: tokName, lit: word, line: line})
			}
			i = j
		case c >= '0' && c <= '9':
			var err *CompileError
			i, err = l.lexNumber(body, i, line)
			if err != nil {
				return err
			}
		case c == '"' || c == '\'':
			var err *CompileError
			i, err = l.lexString(body, i, line)
			if err != nil {
				return err
			}
		default:
			var err *CompileError
			i, err = l.lexOperator(body, i, line)
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func (l *lexer) lexNumber(body string, i, line int) (int, *CompileError) {
	j := i
	isFloat := false
	for j < len(body) && (body[j] >= '0' && body[j] <= '9') {
		j++
	}
	if j < len(body) && body[j] == '.' && j+1 < len(body) && body[j+1] >= '0' && body[j+1] <= '9' {
		isFloat = true
		j++
		for j < len(body) && (body[j] >= '0' && body[j] <= '9') {
			j++
		}
	}
	lit := body[i:j]
	t := token{kind: tokNumber, lit: lit, isFloat: isFloat, line: line}
	if isFloat {
		f, err := strconv.ParseFloat(lit, 64)
		if err != nil {
			return 0, &CompileError{Line: line, Message: "bad number " + lit}
		}
		t.fltVal = f
	} else {
		n, err := strconv.ParseInt(lit, 10, 64)
		if err != nil {
			return 0, &CompileError{Line: line, Message: "number too large: " + lit}
		}
		t.intVal = n
	}
	l.emit(t)
	return j, nil
}

func (l *lexer) lexString(body string, i, line int) (int, *CompileError) {
	quote := body[i]
	var sb strings.Builder
	j := i + 1
	for j < len(body) {
		c := body[j]
		if c == quote {
			l.emit(token{kind: tokString, lit: sb.String(), line: line})
			return j + 1, nil
		}
		if c == '\\' {
			if j+1 >= len(body) {
				break
			}
			switch body[j+1] {
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			case '\\':
				sb.WriteByte('\\')
			case '\'':
				sb.WriteByte('\'')
			case '"':
				sb.WriteByte('"')
			default:
				sb.WriteByte(body[j+1])
			}
			j += 2
			continue
		}
		sb.WriteByte(c)
		j++
	}
	return 0, &CompileError{Line: line, Message: "unterminated string"}
}

func (l *lexer) lexOperator(body string, i, line int) (int, *CompileError) {
	two := ""
	if i+1 < len(body) {
		two = body[i : i+2]
	}
	switch two {
	case "==":
		l.emit(token{kind: tokEq, lit: two, line: line})
		return i + 2, nil
	case "!=":
		l.emit(token{kind: tokNe, lit: two, line: line})
		return i + 2, nil
	case "<=":
		l.emit(token{kind: tokLe, lit: two, line: line})
		return i + 2, nil
	case ">=":
		l.emit(token{kind: tokGe, lit: two, line: line})
		return i + 2, nil
	case "+=":
		l.emit(token{kind: tokPlusAssign, lit: two, line: line})
		return i + 2, nil
	case "-=":
		l.emit(token{kind: tokMinusAssign, lit: two, line: line})
		return i + 2, nil
	case "*=":
		l.emit(token{kind: tokStarAssign, lit: two, line: line})
		return i + 2, nil
	case "//":
		l.emit(token{kind: tokSlashSlash, lit: two, line: line})
		return i + 2, nil
	}

	var kind tokKind
	switch body[i] {
	case '+':
		kind = tokPlus
	case '-':
		kind = tokMinus
	case '*':
		kind = tokStar
	case '/':
		kind = tokSlash
	case '%':
		kind = tokPercent
	case '<':
		kind = tokLt
	case '>':
		kind = tokGt
	case '=':
		kind = tokAssign
	case ',':
		kind = tokComma
	case ':':
		kind = tokColon
	case '.':
		kind = tokDot
	case '(':
		kind = tokLParen
		l.depth++
	case ')':
		kind = tokRParen
		l.depth--
	case '[':
		kind = tokLBracket
		l.depth++
	case ']':
		kind = tokRBracket
		l.depth--
	default:
		return 0, &CompileError{Line: line, Message: "unexpected character " + strconv.QuoteRune(rune(body[i]))}
	}
	if l.depth < 0 {
		return 0, &CompileError{Line: line, Message: "unbalanced bracket"}
	}
	l.emit(token{kind: kind, lit: body[i : i+1], line: line})
	return i + 1, nil
}

func isNameStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isNamePart(c byte) bool {
	return isNameStart(c) || (c >= '0' && c <= '9')
}
