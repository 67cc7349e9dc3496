package scripting

// tokKind enumerates drillscript token kinds.
type tokKind int

const (
	tokEOF tokKind = iota
	tokNewline
	tokIndent
	tokDedent
	tokName
	tokNumber
	tokString

	tokPlus
	tokMinus
	tokStar
	tokSlash
	tokSlashSlash
	tokPercent
	tokEq
	tokNe
	tokLt
	tokLe
	tokGt
	tokGe
	tokAssign
	tokPlusAssign
	tokMinusAssign
	tokStarAssign
	tokLParen
	tokRParen
	tokLBracket
	tokRBracket
	tokComma
	tokColon
	tokDot

	tokIf
	tokElif
	tokElse
	tokWhile
	tokFor
	tokIn
	tokDef
	tokReturn
	tokBreak
	tokContinue
	tokPass
	tokAnd
	tokOr
	tokNot
	tokTrue
	tokFalse
	tokNone
)

var keywords = map[string]tokKind{
	"if":       tokIf,
	"elif":     tokElif,
	"else":     tokElse,
	"while":    tokWhile,
	"for":      tokFor,
	"in":       tokIn,
	"def":      tokDef,
	"return":   tokReturn,
	"break":    tokBreak,
	"continue": tokContinue,
	"pass":     tokPass,
	"and":      tokAnd,
	"or":       tokOr,
	"not":      tokNot,
	"True":     tokTrue,
	"False":    tokFalse,
	"None":     tokNone,
}

var tokNames = map[tokKind]string{
	tokEOF:         "end of script",
	tokNewline:     "end of line",
	tokIndent:      "indent",
	tokDedent:      "dedent",
	tokName:        "name",
	tokNumber:      "number",
	tokString:      "string",
	tokPlus:        "'+'",
	tokMinus:       "'-'",
	tokStar:        "'*'",
	tokSlash:       "'/'",
	tokSlashSlash:  "'//'",
	tokPercent:     "'%'",
	tokEq:          "'=='",
	tokNe:          "'!='",
	tokLt:          "'<'",
	tokLe:          "'<='",
	tokGt:          "'>'",
	tokGe:          "'>='",
	tokAssign:      "'='",
	tokPlusAssign:  "'+='",
	tokMinusAssign: "'-='",
	tokStarAssign:  "'*='",
	tokLParen:      "'('",
	tokRParen:      "')'",
	tokLBracket:    "'['",
	tokRBracket:    "']'",
	tokComma:       "','",
	tokColon:       "':'",
	tokDot:         "'.'",
	tokIf:          "'if'",
	tokElif:        "'elif'",
	tokElse:        "'else'",
	tokWhile:       "'while'",
	tokFor:         "'for'",
	tokIn:          "'in'",
	tokDef:         "'def'",
	tokReturn:      "'return'",
	tokBreak:       "'break'",
	tokContinue:    "'continue'",
	tokPass:        "'pass'",
	tokAnd:         "'and'",
	tokOr:          "'or'",
	tokNot:         "'not'",
	tokTrue:        "'True'",
	tokFalse:       "'False'",
	tokNone:        "'None'",
}

func (k tokKind) String() string {
	if s, ok := tokNames[k]; ok {
		return s
	}
	return "token"
}

type token struct {
	kind    tokKind
	lit     string
	isFloat bool
	intVal  int64
	fltVal  float64
	line    int
}
