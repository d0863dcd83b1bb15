package manifest

import (
	"os"
	"path/filepath"
	"testing"
)

func writeManifest(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadManifest(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "test-app"
version = "0.1.0"

[source]
dirs = ["src", "lib"]
exclude = ["*_spec.lua"]

[compile]
strip = true
chunk-prefix = "="

[cache]
enabled = false
path = "/tmp/lunac-cache.db"

[dependencies]
helper = { path = "../helper" }
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if m.Project.Name != "test-app" {
		t.Errorf("project name = %q, want test-app", m.Project.Name)
	}
	if m.Project.Version != "0.1.0" {
		t.Errorf("project version = %q, want 0.1.0", m.Project.Version)
	}
	if len(m.Source.Dirs) != 2 {
		t.Errorf("source dirs count = %d, want 2", len(m.Source.Dirs))
	}
	if !m.Compile.Strip {
		t.Error("compile strip = false, want true")
	}
	if m.Compile.ChunkPrefix != "=" {
		t.Errorf("chunk prefix = %q, want =", m.Compile.ChunkPrefix)
	}
	if m.CacheEnabled() {
		t.Error("cache enabled, want disabled")
	}
	if m.CachePath() != "/tmp/lunac-cache.db" {
		t.Errorf("cache path = %q", m.CachePath())
	}
	if dep, ok := m.Dependencies["helper"]; !ok || dep.Path != "../helper" {
		t.Errorf("helper dep = %v, want path ../helper", m.Dependencies["helper"])
	}
}

func TestLoadManifestDefaults(t *testing.T) {
	dir := t.TempDir()
	writeManifest(t, dir, `
[project]
name = "minimal"
`)

	m, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if len(m.Source.Dirs) != 1 || m.Source.Dirs[0] != "src" {
		t.Errorf("default source dirs = %v, want [src]", m.Source.Dirs)
	}
	if m.Compile.ChunkPrefix != "@" {
		t.Errorf("default chunk prefix = %q, want @", m.Compile.ChunkPrefix)
	}
	if m.Compile.Strip {
		t.Error("strip should default to false")
	}
	if !m.CacheEnabled() {
		t.Error("cache should default to enabled")
	}
	if want := filepath.Join(m.Dir, ".lunac", "cache.db"); m.CachePath() != want {
		t.Errorf("cache path = %q, want %q", m.CachePath(), want)
	}
}

func TestLoadManifestInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad toml", "[project\nname = 1"},
		{"bad prefix", "[compile]\nchunk-prefix = \"#\""},
		{"bad pattern", "[source]\nexclude = [\"[\"]"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			writeManifest(t, dir, tc.content)
			if _, err := Load(dir); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeManifest(t, dir, "[project]\nname = \"found-project\"\n")

	// Should find manifest when starting from a deep subdirectory
	m, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if m == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if m.Project.Name != "found-project" {
		t.Errorf("project name = %q, want found-project", m.Project.Name)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	dir := t.TempDir()
	m, err := FindAndLoad(dir)
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if m != nil {
		t.Error("expected nil manifest when no lunac.toml exists")
	}
}

func TestSourceDirPaths(t *testing.T) {
	m := &Manifest{
		Dir:    "/app",
		Source: Source{Dirs: []string{"src", "lib"}},
	}

	paths := m.SourceDirPaths()
	if len(paths) != 2 {
		t.Fatalf("expected 2 paths, got %d", len(paths))
	}
	if paths[0] != "/app/src" {
		t.Errorf("paths[0] = %q, want /app/src", paths[0])
	}
	if paths[1] != "/app/lib" {
		t.Errorf("paths[1] = %q, want /app/lib", paths[1])
	}
}

func TestChunkName(t *testing.T) {
	m := &Manifest{Dir: "/app", Compile: Compile{ChunkPrefix: "@"}}
	if got := m.ChunkName("/app/src/main.lua"); got != "@src/main.lua" {
		t.Errorf("ChunkName = %q, want @src/main.lua", got)
	}
	if got := m.ChunkName("/elsewhere/x.lua"); got != "@/elsewhere/x.lua" {
		t.Errorf("ChunkName outside the project = %q", got)
	}
}

func TestExcluded(t *testing.T) {
	m := &Manifest{Source: Source{Exclude: []string{"*_spec.lua", "scratch.lua"}}}
	tests := map[string]bool{
		"/app/src/main.lua":      false,
		"/app/src/main_spec.lua": true,
		"/app/scratch.lua":       true,
	}
	for path, want := range tests {
		if got := m.Excluded(path); got != want {
			t.Errorf("Excluded(%q) = %v, want %v", path, got, want)
		}
	}
}

func TestLockFileRoundTrip(t *testing.T) {
	dir := t.TempDir()
	lockPath := filepath.Join(dir, "lock.toml")

	lf := &LockFile{
		Deps: []LockedDep{
			{Name: "strings", Git: "https://example.com/strings.git", Commit: "abc123", Tag: "v0.5.0"},
			{Name: "helper", Path: "../helper"},
		},
	}

	if err := WriteLock(lockPath, lf); err != nil {
		t.Fatalf("WriteLock failed: %v", err)
	}

	loaded, err := ReadLock(lockPath)
	if err != nil {
		t.Fatalf("ReadLock failed: %v", err)
	}

	if len(loaded.Deps) != 2 {
		t.Fatalf("expected 2 deps, got %d", len(loaded.Deps))
	}
	// written sorted by name
	if loaded.Deps[0].Name != "helper" {
		t.Errorf("dep[0].Name = %q, want helper", loaded.Deps[0].Name)
	}
	if loaded.Deps[1].Commit != "abc123" {
		t.Errorf("dep[1].Commit = %q, want abc123", loaded.Deps[1].Commit)
	}

	found := loaded.FindLockedDep("helper")
	if found == nil || found.Path != "../helper" {
		t.Errorf("FindLockedDep(helper) = %v, want path ../helper", found)
	}

	notFound := loaded.FindLockedDep("nonexistent")
	if notFound != nil {
		t.Errorf("FindLockedDep(nonexistent) = %v, want nil", notFound)
	}
}

func TestReadLockNotFound(t *testing.T) {
	lf, err := ReadLock("/nonexistent/path/lock.toml")
	if err != nil {
		t.Errorf("ReadLock should return nil,nil for missing file, got err: %v", err)
	}
	if lf != nil {
		t.Errorf("ReadLock should return nil for missing file, got %v", lf)
	}
	if lf.FindLockedDep("x") != nil {
		t.Error("a nil lock file pins nothing")
	}
}
