package manifest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// project creates dir/name with a manifest and returns its path.
func project(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.MkdirAll(p, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, p, content)
	return p
}

func TestResolvePathDependencies(t *testing.T) {
	root := t.TempDir()
	project(t, root, "base", "[project]\nname = \"base\"\n")
	project(t, root, "util-lib", "[project]\nname = \"util\"\n[dependencies]\nbase = { path = \"../base\" }\n")
	app := project(t, root, "app", "[project]\nname = \"app\"\n[dependencies]\nutil-lib = { path = \"../util-lib\" }\n")

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	if len(deps) != 2 {
		t.Fatalf("resolved %d deps, want 2", len(deps))
	}
	// dependencies come before their dependents
	if deps[0].Name != "base" || deps[1].Name != "util-lib" {
		t.Errorf("order = %s, %s; want base, util-lib", deps[0].Name, deps[1].Name)
	}
	if deps[1].Module != "util_lib" {
		t.Errorf("module = %q, want util_lib", deps[1].Module)
	}
	if got := deps[0].SourceDirPaths(); len(got) != 1 || !strings.HasSuffix(got[0], filepath.Join("base", "src")) {
		t.Errorf("source dirs = %v", got)
	}

	lf, err := ReadLock(m.LockFilePath())
	if err != nil || lf == nil {
		t.Fatalf("lock file not written: %v", err)
	}
	if d := lf.FindLockedDep("util-lib"); d == nil || d.Path != "../util-lib" {
		t.Errorf("locked util-lib = %+v", d)
	}
	if lf.FindLockedDep("base") != nil {
		t.Error("transitive dependencies are pinned by their own project")
	}
}

func TestResolvePlainSourceTree(t *testing.T) {
	root := t.TempDir()
	plain := filepath.Join(root, "plain")
	if err := os.MkdirAll(plain, 0755); err != nil {
		t.Fatal(err)
	}
	app := project(t, root, "app", "[dependencies]\nplain = { path = \"../plain\" }\n")

	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if len(deps) != 1 || deps[0].Manifest != nil {
		t.Fatalf("deps = %+v", deps)
	}
	if got := deps[0].SourceDirPaths(); len(got) != 1 || got[0] != plain {
		t.Errorf("source dirs = %v, want [%s]", got, plain)
	}
}

func TestResolveErrors(t *testing.T) {
	tests := []struct {
		name string
		deps string
		want string
	}{
		{"missing path", "gone = { path = \"../gone\" }", "not found"},
		{"no source", "empty = { tag = \"v1\" }", "no git or path"},
		{"reserved word", "end = { path = \".\" }", "reserved word"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			app := project(t, t.TempDir(), "app", "[dependencies]\n"+tc.deps+"\n")
			m, err := Load(app)
			if err != nil {
				t.Fatal(err)
			}
			_, err = NewResolver(m).Resolve()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want it to mention %q", err, tc.want)
			}
		})
	}
}

func TestResolveNoDependencies(t *testing.T) {
	app := project(t, t.TempDir(), "app", "[project]\nname = \"app\"\n")
	m, err := Load(app)
	if err != nil {
		t.Fatal(err)
	}
	deps, err := NewResolver(m).Resolve()
	if err != nil || deps != nil {
		t.Errorf("Resolve = %v, %v; want nothing", deps, err)
	}
	if _, err := os.Stat(m.LockFilePath()); !os.IsNotExist(err) {
		t.Error("no lock file should be written without dependencies")
	}
}
