// Package vm holds the data contract between the compiler and the
// interpreter.
//
// This package contains:
//   - Opcodes and the six instruction layouts
//   - Constant values and interned strings
//   - Function prototypes with their debug information
//   - Numeral conversion and the raw arithmetic used for constant folding
//   - A textual listing of compiled prototypes
package vm
