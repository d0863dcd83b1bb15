package compiler

import (
	"errors"
	"fmt"
	"strings"
)

// ---------------------------------------------------------------------------
// Compile errors
// ---------------------------------------------------------------------------

// ErrorKind classifies a compile error.
type ErrorKind int

const (
	ErrLexical  ErrorKind = iota // malformed token
	ErrSyntax                    // unexpected token or mismatched delimiter
	ErrSemantic                  // scope, goto, const and declaration errors
	ErrLimit                     // a fixed resource limit was exceeded
)

var errorKindNames = [...]string{"lexical", "syntax", "semantic", "limit"}

func (k ErrorKind) String() string {
	if int(k) < len(errorKindNames) {
		return errorKindNames[k]
	}
	return fmt.Sprintf("ErrorKind(%d)", int(k))
}

// Error is the single error a failed compilation reports.
type Error struct {
	Kind   ErrorKind
	Source string // chunk name as given to Compile
	Line   int
	Msg    string
	Near   string // offending token, empty for semantic errors
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s:%d: %s", ChunkID(e.Source), e.Line, e.Msg)
	if e.Near != "" {
		s += " near " + e.Near
	}
	return s
}

// IsIncomplete reports whether err was caused by input ending too early,
// which an interactive reader can fix by asking for more lines.
func IsIncomplete(err error) bool {
	var ce *Error
	if !errors.As(err, &ce) {
		return false
	}
	return ce.Near == tokenNames[TokenEOS-FirstReserved]
}

const idSize = 60

// ChunkID turns a chunk name into the short form used in messages:
// "=name" and "@file" print as given, anything else is treated as source
// text and shown as [string "..."].
func ChunkID(source string) string {
	switch {
	case strings.HasPrefix(source, "="):
		s := source[1:]
		if len(s) > idSize-1 {
			s = s[:idSize-1]
		}
		return s
	case strings.HasPrefix(source, "@"):
		s := source[1:]
		if len(s) <= idSize-1 {
			return s
		}
		return "..." + s[len(s)-(idSize-1-3):]
	default:
		const pre, dots, pos = `[string "`, "...", `"]`
		avail := idSize - len(pre) - len(dots) - len(pos) - 1
		nl := strings.IndexByte(source, '\n')
		if len(source) < avail && nl < 0 {
			return pre + source + pos
		}
		s := source
		if nl >= 0 {
			s = s[:nl]
		}
		if len(s) > avail {
			s = s[:avail]
		}
		return pre + s + dots + pos
	}
}
