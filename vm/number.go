package vm

import (
	"math"
	"strconv"
	"strings"
)

// ---------------------------------------------------------------------------
// Numeral conversion
// ---------------------------------------------------------------------------

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f' || c == '\v'
}

func hexValue(c byte) (int, bool) {
	switch {
	case '0' <= c && c <= '9':
		return int(c - '0'), true
	case 'a' <= c && c <= 'f':
		return int(c-'a') + 10, true
	case 'A' <= c && c <= 'F':
		return int(c-'A') + 10, true
	}
	return 0, false
}

// StringToNumber converts a numeral to an integer or float Value. Decimal
// integers that overflow become floats; hexadecimal integers wrap around.
// Surrounding whitespace is accepted.
func StringToNumber(s string) (Value, bool) {
	if i, ok := stringToInt(s); ok {
		return Int(i), true
	}
	if f, ok := stringToFloat(s); ok {
		return Float(f), true
	}
	return Nil, false
}

func stringToInt(s string) (int64, bool) {
	i := 0
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	neg := false
	if i < len(s) && (s[i] == '-' || s[i] == '+') {
		neg = s[i] == '-'
		i++
	}
	var a uint64
	empty := true
	if i+1 < len(s) && s[i] == '0' && (s[i+1] == 'x' || s[i+1] == 'X') {
		i += 2
		for ; i < len(s); i++ {
			d, ok := hexValue(s[i])
			if !ok {
				break
			}
			a = a*16 + uint64(d)
			empty = false
		}
	} else {
		const maxBy10 = uint64(math.MaxInt64 / 10)
		const maxLastD = uint64(math.MaxInt64 % 10)
		for ; i < len(s) && '0' <= s[i] && s[i] <= '9'; i++ {
			d := uint64(s[i] - '0')
			if a >= maxBy10 && (a > maxBy10 || d > maxLastD+boolToUint(neg)) {
				return 0, false // overflow: let it be read as a float
			}
			a = a*10 + d
			empty = false
		}
	}
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	if empty || i != len(s) {
		return 0, false
	}
	if neg {
		return int64(0 - a), true
	}
	return int64(a), true
}

func boolToUint(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}

func stringToFloat(s string) (float64, bool) {
	s = strings.TrimFunc(s, func(r rune) bool { return r < 0x80 && isSpace(byte(r)) })
	if s == "" || strings.ContainsAny(s, "nN_ \t\n\r\f\v") {
		// reject 'inf', 'nan' and anything strconv would be lenient about
		return 0, false
	}
	body := s
	if body[0] == '-' || body[0] == '+' {
		body = body[1:]
	}
	if len(body) > 1 && body[0] == '0' && (body[1] == 'x' || body[1] == 'X') {
		return hexToFloat(s)
	}
	for i := 0; i < len(body); i++ {
		c := body[i]
		if !('0' <= c && c <= '9' || c == '.' || c == 'e' || c == 'E' || c == '-' || c == '+') {
			return 0, false
		}
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		if ne, ok := err.(*strconv.NumError); ok && ne.Err == strconv.ErrRange {
			return f, true
		}
		return 0, false
	}
	return f, true
}

// hexToFloat reads a hexadecimal numeral with optional fraction and
// optional binary exponent.
func hexToFloat(s string) (float64, bool) {
	i := 0
	neg := false
	if s[i] == '-' || s[i] == '+' {
		neg = s[i] == '-'
		i++
	}
	i += 2 // skip 0x
	var r float64
	exp := 0
	sigdig := 0
	hasDot, seen := false, false
	for ; i < len(s); i++ {
		if s[i] == '.' {
			if hasDot {
				return 0, false
			}
			hasDot = true
			continue
		}
		d, ok := hexValue(s[i])
		if !ok {
			break
		}
		seen = true
		if sigdig > 0 || d != 0 { // leading zeros carry no information
			sigdig++
			if sigdig <= 30 {
				r = r*16 + float64(d)
			} else {
				exp++ // too many digits; ignore but still count for exponent
			}
		}
		if hasDot {
			exp--
		}
	}
	if !seen {
		return 0, false
	}
	exp *= 4
	if i < len(s) && (s[i] == 'p' || s[i] == 'P') {
		i++
		eneg := false
		if i < len(s) && (s[i] == '-' || s[i] == '+') {
			eneg = s[i] == '-'
			i++
		}
		if i >= len(s) || s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		e := 0
		for ; i < len(s) && '0' <= s[i] && s[i] <= '9'; i++ {
			if e < 1<<20 {
				e = e*10 + int(s[i]-'0')
			}
		}
		if eneg {
			e = -e
		}
		exp += e
	}
	if i != len(s) {
		return 0, false
	}
	if neg {
		r = -r
	}
	return math.Ldexp(r, exp), true
}
