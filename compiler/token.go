package compiler

import (
	"fmt"
	"slices"

	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Token types
// ---------------------------------------------------------------------------

// TokenType is a token kind. Single-character tokens are represented by
// their own byte value; everything else starts at FirstReserved.
type TokenType int

// FirstReserved is the first value past the single-byte token range.
const FirstReserved = 257

const (
	// Reserved words
	TokenAnd TokenType = iota + FirstReserved
	TokenBreak
	TokenDo
	TokenElse
	TokenElseif
	TokenEnd
	TokenFalse
	TokenFor
	TokenFunction
	TokenGlobal
	TokenGoto
	TokenIf
	TokenIn
	TokenLocal
	TokenNil
	TokenNot
	TokenOr
	TokenRepeat
	TokenReturn
	TokenThen
	TokenTrue
	TokenUntil
	TokenWhile

	// Multi-character operators
	TokenIDiv   // //
	TokenConcat // ..
	TokenDots   // ...
	TokenEq     // ==
	TokenGE     // >=
	TokenLE     // <=
	TokenNE     // ~=
	TokenShl    // <<
	TokenShr    // >>
	TokenDBColon

	// Special tokens
	TokenEOS
	TokenFloat
	TokenInteger
	TokenName
	TokenString
)

// reservedWords are the words the lexer turns into keyword tokens, in
// TokenType order.
var reservedWords = []string{
	"and", "break", "do", "else", "elseif", "end", "false", "for",
	"function", "global", "goto", "if", "in", "local", "nil", "not", "or",
	"repeat", "return", "then", "true", "until", "while",
}

// IsReserved reports whether name is a reserved word and so cannot be used
// as a variable or field name without quoting.
func IsReserved(name string) bool {
	return slices.Contains(reservedWords, name)
}

// ReservedWords returns a copy of the reserved word list.
func ReservedWords() []string {
	return slices.Clone(reservedWords)
}

var tokenNames = [...]string{
	"and", "break", "do", "else", "elseif", "end", "false", "for",
	"function", "global", "goto", "if", "in", "local", "nil", "not", "or",
	"repeat", "return", "then", "true", "until", "while",
	"//", "..", "...", "==", ">=", "<=", "~=", "<<", ">>", "::",
	"<eof>", "<number>", "<integer>", "<name>", "<string>",
}

// String returns the token as it appears in error messages.
func (t TokenType) String() string {
	if t < FirstReserved {
		if t >= ' ' && t < 0x7f {
			return fmt.Sprintf("'%c'", rune(t))
		}
		return fmt.Sprintf("'<\\%d>'", int(t))
	}
	name := tokenNames[t-FirstReserved]
	if t < TokenEOS {
		return "'" + name + "'"
	}
	return name
}

// Token is the current token and its semantic payload.
type Token struct {
	Type TokenType
	Int  int64
	Num  float64
	Str  *vm.String // names and strings
	Raw  string     // source text of names, strings and numerals
}
