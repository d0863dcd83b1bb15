package compiler

import (
	"errors"
	"io"

	"github.com/chazu/lunac/vm"
)

// ---------------------------------------------------------------------------
// Lexer: on-demand tokenizer over a byte stream
// ---------------------------------------------------------------------------

const eoz = -1 // end of stream

// MaxTokenSize bounds the text of a single token.
const MaxTokenSize = 1 << 30

// readError carries a failure of the underlying reader through the panic
// used for compile errors.
type readError struct{ err error }

type lexer struct {
	r          io.ByteReader
	current    int // current character, or eoz
	lineNumber int // line of the current character
	lastLine   int // line of the last token consumed
	t          Token
	ahead      Token
	hasAhead   bool
	buf        []byte
	strings    *vm.StringTable
	source     string
}

func newLexer(r io.ByteReader, source string, strings *vm.StringTable) *lexer {
	strings.MarkReserved(reservedWords)
	l := &lexer{
		r:          r,
		lineNumber: 1,
		lastLine:   1,
		strings:    strings,
		source:     source,
		buf:        make([]byte, 0, 32),
	}
	l.advance()
	return l
}

// advance reads the next character.
func (l *lexer) advance() {
	c, err := l.r.ReadByte()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			panic(readError{err})
		}
		l.current = eoz
		return
	}
	l.current = int(c)
}

func (l *lexer) save(c int) {
	if len(l.buf) >= MaxTokenSize {
		l.lexError("lexical element too long", 0)
	}
	l.buf = append(l.buf, byte(c))
}

func (l *lexer) saveAndAdvance() {
	l.save(l.current)
	l.advance()
}

// checkNext consumes the current character if it is one of set.
func (l *lexer) checkNext(set string) bool {
	for i := 0; i < len(set); i++ {
		if l.current == int(set[i]) {
			l.saveAndAdvance()
			return true
		}
	}
	return false
}

func isNewline(c int) bool { return c == '\n' || c == '\r' }
func isDigit(c int) bool   { return '0' <= c && c <= '9' }
func isAlpha(c int) bool   { return c == '_' || 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z' }
func isAlnum(c int) bool   { return isAlpha(c) || isDigit(c) }
func isSpace(c int) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}
func isHexDigit(c int) bool {
	return isDigit(c) || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func hexValue(c int) int {
	if isDigit(c) {
		return c - '0'
	}
	return (c | 0x20) - 'a' + 10
}

// incLineNumber skips one newline sequence: \n, \r, \n\r or \r\n.
func (l *lexer) incLineNumber() {
	old := l.current
	l.advance()
	if isNewline(l.current) && l.current != old {
		l.advance()
	}
	l.lineNumber++
	if l.lineNumber >= 1<<31-1 {
		l.lexError("chunk has too many lines", 0)
	}
}

// ---------------------------------------------------------------------------
// Errors
// ---------------------------------------------------------------------------

// nearText renders a token for the "near" part of an error message.
func (l *lexer) nearText(tok TokenType) string {
	switch tok {
	case 0:
		return ""
	case TokenName, TokenString, TokenFloat, TokenInteger:
		return "'" + string(l.buf) + "'"
	}
	return tok.String()
}

func (l *lexer) fail(kind ErrorKind, msg, near string) {
	panic(&Error{Kind: kind, Source: l.source, Line: l.lineNumber, Msg: msg, Near: near})
}

// lexError aborts with a lexical error near the text scanned so far.
func (l *lexer) lexError(msg string, tok TokenType) {
	l.fail(ErrLexical, msg, l.nearText(tok))
}

// currentNear renders the current token for an error message.
func (l *lexer) currentNear() string {
	switch l.t.Type {
	case TokenName, TokenString, TokenFloat, TokenInteger:
		return "'" + l.t.Raw + "'"
	}
	return l.t.Type.String()
}

// syntaxError aborts with an error near the current token.
func (l *lexer) syntaxError(msg string) {
	l.fail(ErrSyntax, msg, l.currentNear())
}

// ---------------------------------------------------------------------------
// Token stream
// ---------------------------------------------------------------------------

func (l *lexer) next() {
	l.lastLine = l.lineNumber
	if l.hasAhead {
		l.t = l.ahead
		l.hasAhead = false
		return
	}
	l.t = l.scan()
}

func (l *lexer) lookahead() TokenType {
	if !l.hasAhead {
		l.ahead = l.scan()
		l.hasAhead = true
	}
	return l.ahead.Type
}

func (l *lexer) scan() Token {
	l.buf = l.buf[:0]
	for {
		switch c := l.current; c {
		case '\n', '\r':
			l.incLineNumber()
		case ' ', '\f', '\t', '\v':
			l.advance()
		case '-':
			l.advance()
			if l.current != '-' {
				return Token{Type: '-'}
			}
			l.advance()
			if l.current == '[' {
				sep := l.skipSep()
				l.buf = l.buf[:0]
				if sep >= 2 {
					l.readLongString(false, sep)
					l.buf = l.buf[:0]
					continue
				}
			}
			for !isNewline(l.current) && l.current != eoz {
				l.advance()
			}
		case '[':
			sep := l.skipSep()
			if sep >= 2 {
				return l.readLongString(true, sep)
			} else if sep == 0 {
				l.lexError("invalid long string delimiter", TokenString)
			}
			return Token{Type: '['}
		case '=':
			return l.twoChar('=', '=', TokenEq)
		case '<':
			l.advance()
			if l.current == '=' {
				l.advance()
				return Token{Type: TokenLE}
			} else if l.current == '<' {
				l.advance()
				return Token{Type: TokenShl}
			}
			return Token{Type: '<'}
		case '>':
			l.advance()
			if l.current == '=' {
				l.advance()
				return Token{Type: TokenGE}
			} else if l.current == '>' {
				l.advance()
				return Token{Type: TokenShr}
			}
			return Token{Type: '>'}
		case '/':
			return l.twoChar('/', '/', TokenIDiv)
		case '~':
			return l.twoChar('~', '=', TokenNE)
		case ':':
			return l.twoChar(':', ':', TokenDBColon)
		case '"', '\'':
			return l.readString(c)
		case '.':
			l.saveAndAdvance()
			if l.checkNext(".") {
				if l.checkNext(".") {
					return Token{Type: TokenDots}
				}
				return Token{Type: TokenConcat}
			} else if !isDigit(l.current) {
				return Token{Type: '.'}
			}
			return l.readNumeral()
		case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
			return l.readNumeral()
		case eoz:
			return Token{Type: TokenEOS}
		default:
			if isAlpha(c) {
				for isAlnum(l.current) {
					l.saveAndAdvance()
				}
				s := l.strings.InternBytes(l.buf)
				if r := s.Reserved(); r > 0 {
					return Token{Type: TokenType(FirstReserved + r - 1)}
				}
				return Token{Type: TokenName, Str: s, Raw: s.String()}
			}
			l.advance()
			return Token{Type: TokenType(c)}
		}
	}
}

// twoChar scans first, then returns double if second follows.
func (l *lexer) twoChar(first, second int, double TokenType) Token {
	l.advance()
	if l.current == second {
		l.advance()
		return Token{Type: double}
	}
	return Token{Type: TokenType(first)}
}

// readNumeral scans permissively and lets vm.StringToNumber decide whether
// the text is a valid numeral.
func (l *lexer) readNumeral() Token {
	expo := "Ee"
	first := l.current
	l.saveAndAdvance()
	if first == '0' && l.checkNext("xX") {
		expo = "Pp"
	}
	for {
		if l.checkNext(expo) {
			l.checkNext("-+")
		} else if isHexDigit(l.current) || l.current == '.' {
			l.saveAndAdvance()
		} else {
			break
		}
	}
	if isAlpha(l.current) {
		l.saveAndAdvance() // numeral touching a letter: force an error
	}
	v, ok := vm.StringToNumber(string(l.buf))
	if !ok {
		l.lexError("malformed number", TokenFloat)
	}
	if v.Type == vm.TypeInt {
		return Token{Type: TokenInteger, Int: v.Int, Raw: string(l.buf)}
	}
	return Token{Type: TokenFloat, Num: v.Float, Raw: string(l.buf)}
}
