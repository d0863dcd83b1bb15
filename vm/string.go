package vm

import "sync"

// ---------------------------------------------------------------------------
// String: interned string objects
// ---------------------------------------------------------------------------

// MaxShortLen is the longest string usable as a short-string key operand.
const MaxShortLen = 40

// String is an interned string. Two Strings with the same contents obtained
// from the same StringTable are the same pointer, so identity comparison is
// string equality.
type String struct {
	s        string
	reserved int // 1-based reserved word index, 0 for ordinary names
}

func (s *String) String() string { return s.s }
func (s *String) Len() int       { return len(s.s) }
func (s *String) IsShort() bool  { return len(s.s) <= MaxShortLen }

// Reserved returns the reserved word index recorded by MarkReserved, or 0.
func (s *String) Reserved() int { return s.reserved }

// ---------------------------------------------------------------------------
// StringTable
// ---------------------------------------------------------------------------

// StringTable interns strings. It is safe for concurrent use, so one table
// can back many compilations.
type StringTable struct {
	mu     sync.RWMutex
	byText map[string]*String
}

// NewStringTable creates a new empty string table.
func NewStringTable() *StringTable {
	return &StringTable{
		byText: make(map[string]*String, 256),
	}
}

// Intern returns the unique String for s, creating it if needed.
func (st *StringTable) Intern(s string) *String {
	// Fast path: read-only lookup
	st.mu.RLock()
	if str, ok := st.byText[s]; ok {
		st.mu.RUnlock()
		return str
	}
	st.mu.RUnlock()

	st.mu.Lock()
	defer st.mu.Unlock()

	// Double-check after acquiring write lock
	if str, ok := st.byText[s]; ok {
		return str
	}
	str := &String{s: s}
	st.byText[s] = str
	return str
}

// InternBytes interns the contents of b.
func (st *StringTable) InternBytes(b []byte) *String {
	st.mu.RLock()
	if str, ok := st.byText[string(b)]; ok {
		st.mu.RUnlock()
		return str
	}
	st.mu.RUnlock()
	return st.Intern(string(b))
}

// Lookup returns the String for s if it was interned.
func (st *StringTable) Lookup(s string) (*String, bool) {
	st.mu.RLock()
	defer st.mu.RUnlock()
	str, ok := st.byText[s]
	return str, ok
}

// MarkReserved interns each word and records its 1-based position in words
// as the reserved index.
func (st *StringTable) MarkReserved(words []string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	for i, w := range words {
		str, ok := st.byText[w]
		if !ok {
			str = &String{s: w}
			st.byText[w] = str
		}
		if str.reserved != i+1 {
			str.reserved = i + 1
		}
	}
}

// Len returns the number of interned strings.
func (st *StringTable) Len() int {
	st.mu.RLock()
	defer st.mu.RUnlock()
	return len(st.byText)
}
