package manifest

import "testing"

func TestModuleName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"my-lib", "my_lib"},
		{"strings", "strings"},
		{"json.lua", "json_lua"},
		{"2d", "_2d"},
		{"CamelCase", "CamelCase"},
		{"a+b", "ab"},
	}
	for _, tc := range tests {
		if got := ModuleName(tc.in); got != tc.want {
			t.Errorf("ModuleName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestCheckModuleName(t *testing.T) {
	if _, err := checkModuleName("end"); err == nil {
		t.Error("a reserved word should be rejected")
	}
	if _, err := checkModuleName("+++"); err == nil {
		t.Error("an empty module name should be rejected")
	}
	if name, err := checkModuleName("my-lib"); err != nil || name != "my_lib" {
		t.Errorf("checkModuleName(my-lib) = %q, %v", name, err)
	}
}
