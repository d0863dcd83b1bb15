package compiler

import "fmt"

// ---------------------------------------------------------------------------
// String literals and long brackets
// ---------------------------------------------------------------------------

// skipSep scans a bracket run '[' '='* or ']' '='*. It returns the level
// plus 2 for a well-formed bracket, 1 for a lone bracket and 0 for a run of
// '=' not closed by a second bracket.
func (l *lexer) skipSep() int {
	count := 0
	s := l.current
	l.saveAndAdvance()
	for l.current == '=' {
		l.saveAndAdvance()
		count++
	}
	switch {
	case l.current == s:
		return count + 2
	case count == 0:
		return 1
	}
	return 0
}

// readLongString scans the body of a long string or long comment after its
// opening bracket. Comments keep nothing.
func (l *lexer) readLongString(keep bool, sep int) Token {
	line := l.lineNumber
	l.saveAndAdvance() // second '['
	if isNewline(l.current) {
		l.incLineNumber()
	}
	for {
		switch l.current {
		case eoz:
			what := "comment"
			if keep {
				what = "string"
			}
			l.lexError(fmt.Sprintf("unfinished long %s (starting at line %d)", what, line), TokenEOS)
		case ']':
			if l.skipSep() == sep {
				l.saveAndAdvance() // second ']'
				if !keep {
					return Token{}
				}
				body := l.buf[sep : len(l.buf)-sep]
				return Token{Type: TokenString, Str: l.strings.InternBytes(body), Raw: string(l.buf)}
			}
		case '\n', '\r':
			l.save('\n')
			l.incLineNumber()
			if !keep {
				l.buf = l.buf[:0]
			}
		default:
			if keep {
				l.saveAndAdvance()
			} else {
				l.advance()
			}
		}
	}
}

// readString scans a quoted string. The buffer keeps the delimiters and
// the text of a bad escape so error messages can show them.
func (l *lexer) readString(del int) Token {
	l.saveAndAdvance()
	for l.current != del {
		switch l.current {
		case eoz:
			l.lexError("unfinished string", TokenEOS)
		case '\n', '\r':
			l.lexError("unfinished string", TokenString)
		case '\\':
			l.readEscape()
		default:
			l.saveAndAdvance()
		}
	}
	l.saveAndAdvance()
	body := l.buf[1 : len(l.buf)-1]
	return Token{Type: TokenString, Str: l.strings.InternBytes(body), Raw: string(l.buf)}
}

// readEscape handles one backslash sequence inside a quoted string,
// replacing its text in the buffer with the bytes it denotes.
func (l *lexer) readEscape() {
	l.saveAndAdvance() // keep '\\' for error messages
	var c int
	switch l.current {
	case 'a':
		c = '\a'
	case 'b':
		c = '\b'
	case 'f':
		c = '\f'
	case 'n':
		c = '\n'
	case 'r':
		c = '\r'
	case 't':
		c = '\t'
	case 'v':
		c = '\v'
	case 'x':
		c = l.readHexEscape()
	case '\\', '"', '\'':
		c = l.current
	case 'u':
		l.readUTF8Escape()
		return
	case '\n', '\r':
		l.incLineNumber()
		l.unsave(1)
		l.save('\n')
		return
	case eoz:
		return // reported by the caller's loop
	case 'z':
		l.unsave(1)
		l.advance()
		for isSpace(l.current) {
			if isNewline(l.current) {
				l.incLineNumber()
			} else {
				l.advance()
			}
		}
		return
	default:
		l.escCheck(isDigit(l.current), "invalid escape sequence")
		c = l.readDecEscape()
		l.unsave(1)
		l.save(c)
		return
	}
	l.advance()
	l.unsave(1)
	l.save(c)
}

// unsave drops the last n bytes of the buffer.
func (l *lexer) unsave(n int) { l.buf = l.buf[:len(l.buf)-n] }

func (l *lexer) escCheck(ok bool, msg string) {
	if !ok {
		if l.current != eoz {
			l.saveAndAdvance() // show the offending character
		}
		l.lexError(msg, TokenString)
	}
}

func (l *lexer) hexDigit() int {
	l.saveAndAdvance()
	l.escCheck(isHexDigit(l.current), "hexadecimal digit expected")
	return hexValue(l.current)
}

func (l *lexer) readHexEscape() int {
	r := l.hexDigit()
	r = r<<4 + l.hexDigit()
	l.unsave(2)
	return r
}

func (l *lexer) readDecEscape() int {
	r, i := 0, 0
	for ; i < 3 && isDigit(l.current); i++ {
		r = 10*r + l.current - '0'
		l.saveAndAdvance()
	}
	l.escCheck(r <= 0xff, "decimal escape too large")
	l.unsave(i)
	return r
}

// readUTF8Escape handles \u{XXX}, accepting values up to 2^31-1 and
// encoding them with the extended UTF-8 scheme.
func (l *lexer) readUTF8Escape() {
	n := 4 // '\\', 'u', '{' and the first digit
	l.saveAndAdvance()
	l.escCheck(l.current == '{', "missing '{' in \\u{xxxx}")
	r := uint32(l.hexDigit())
	for {
		l.saveAndAdvance()
		if !isHexDigit(l.current) {
			break
		}
		n++
		l.escCheck(r <= 0x7FFFFFFF>>4, "UTF-8 value too large")
		r = r<<4 + uint32(hexValue(l.current))
	}
	l.escCheck(l.current == '}', "missing '}' in \\u{xxxx}")
	l.advance()
	l.unsave(n)
	for _, b := range utf8Escape(r) {
		l.save(int(b))
	}
}

// utf8Escape encodes x, which may exceed the Unicode range, as UTF-8
// using up to six bytes.
func utf8Escape(x uint32) []byte {
	if x < 0x80 {
		return []byte{byte(x)}
	}
	var buf [6]byte
	n := len(buf)
	mfb := uint32(0x3f) // largest value that fits in the first byte
	for {
		n--
		buf[n] = byte(0x80 | x&0x3f)
		x >>= 6
		mfb >>= 1
		if x <= mfb {
			break
		}
	}
	n--
	buf[n] = byte(^mfb<<1 | x)
	return buf[n:]
}
