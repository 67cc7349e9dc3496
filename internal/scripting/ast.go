package scripting

// Statement and expression nodes. Every node remembers its 1-based
// source line for fault reporting.

type stmt interface{ stmtLine() int }

type assignStmt struct {
	line   int
	target expr // nameExpr or indexExpr
	op     tokKind
	value  expr
}

type exprStmt struct {
	line int
	x    expr
}

type ifStmt struct {
	line int
	cond expr
	body []stmt
	els  []stmt // empty, an else block, or a single nested ifStmt for elif
}

type whileStmt struct {
	line int
	cond expr
	body []stmt
}

type forStmt struct {
	line    int
	varName string
	iter    expr
	body    []stmt
}

type defStmt struct {
	line   int
	name   string
	params []string
	body   []stmt
}

type returnStmt struct {
	line  int
	value expr // nil means None
}

type breakStmt struct{ line int }
type continueStmt struct{ line int }
type passStmt struct{ line int }

func (s *assignStmt) stmtLine() int   { return s.line }
func (s *exprStmt) stmtLine() int     { return s.line }
func (s *ifStmt) stmtLine() int       { return s.line }
func (s *whileStmt) stmtLine() int    { return s.line }
func (s *forStmt) stmtLine() int      { return s.line }
func (s *defStmt) stmtLine() int      { return s.line }
func (s *returnStmt) stmtLine() int   { return s.line }
func (s *breakStmt) stmtLine() int    { return s.line }
func (s *continueStmt) stmtLine() int { return s.line }
func (s *passStmt) stmtLine() int     { return s.line }

type expr interface{ exprLine() int }

type nameExpr struct {
	line int
	name string
}

type numberLit struct {
	line    int
	isFloat bool
	intVal  int64
	fltVal  float64
}

type stringLit struct {
	line int
	val  string
}

type boolLit struct {
	line int
	val  bool
}

type noneLit struct{ line int }

type listLit struct {
	line  int
	items []expr
}

type binaryExpr struct {
	line int
	op   int // binAdd..cmpGe
	l, r expr
}

type logicalExpr struct {
	line  int
	isAnd bool
	l, r  expr
}

type unaryExpr struct {
	line  int
	isNot bool // otherwise negation
	x     expr
}

type callExpr struct {
	line int
	fn   expr
	args []expr
}

type attrExpr struct {
	line int
	x    expr
	name string
}

type indexExpr struct {
	line  int
	x     expr
	index expr
}

func (e *nameExpr) exprLine() int    { return e.line }
func (e *numberLit) exprLine() int   { return e.line }
func (e *stringLit) exprLine() int   { return e.line }
func (e *boolLit) exprLine() int     { return e.line }
func (e *noneLit) exprLine() int     { return e.line }
func (e *listLit) exprLine() int     { return e.line }
func (e *binaryExpr) exprLine() int  { return e.line }
func (e *logicalExpr) exprLine() int { return e.line }
func (e *unaryExpr) exprLine() int   { return e.line }
func (e *callExpr) exprLine() int    { return e.line }
func (e *attrExpr) exprLine() int    { return e.line }
func (e *indexExpr) exprLine() int   { return e.line }
