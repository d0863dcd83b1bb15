package manifest

import (
	"fmt"
	"strings"

	"github.com/chazu/lunac/compiler"
)

// ModuleName converts a dependency name to the identifier its chunks are
// grouped under: "my-lib" -> "my_lib", "2d" -> "_2d".
func ModuleName(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r == '-' || r == '.' || r == ' ':
			b.WriteByte('_')
		case r == '_' || r >= 'a' && r <= 'z' || r >= 'A' && r <= 'Z':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

// checkModuleName rejects names that are empty or reserved words once
// converted.
func checkModuleName(dep string) (string, error) {
	name := ModuleName(dep)
	if name == "" {
		return "", fmt.Errorf("dependency %q has no usable module name", dep)
	}
	if compiler.IsReserved(name) {
		return "", fmt.Errorf("dependency %q resolves to reserved word %q", dep, name)
	}
	return name, nil
}
