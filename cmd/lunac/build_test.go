package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/nalgeon/be"

	"github.com/chazu/lunac/cache"
	"github.com/chazu/lunac/manifest"
	"github.com/chazu/lunac/vm"
)

// newProject lays out an app with one path dependency and returns its
// loaded manifest.
func newProject(t *testing.T) *manifest.Manifest {
	t.Helper()
	root := t.TempDir()
	app := filepath.Join(root, "app")

	writeFile(t, filepath.Join(app, manifest.FileName), `
[project]
name = "app"

[source]
exclude = ["*_spec.lua"]

[dependencies]
util-lib = { path = "../util" }
`)
	writeFile(t, filepath.Join(app, "src", "main.lua"), "local u = require 'util_lib.strings'\nreturn u\n")
	writeFile(t, filepath.Join(app, "src", "sub", "helper.lua"), "return function(x) return x * 2 end\n")
	writeFile(t, filepath.Join(app, "src", "main_spec.lua"), "this is not lua")
	writeFile(t, filepath.Join(root, "util", "strings.lua"), "local M = {}\nfunction M.trim(s) return s end\nreturn M\n")

	m, err := manifest.Load(app)
	be.Err(t, err, nil)
	return m
}

func TestBuildProject(t *testing.T) {
	m := newProject(t)

	var out bytes.Buffer
	report, err := buildProject(m, buildOptions{OutDir: "out", Verbose: true}, &out)
	be.Err(t, err, nil)
	be.Equal(t, report.Compiled, 3)
	be.Equal(t, report.Cached, 0)
	be.Equal(t, len(report.Failed), 0)
	be.True(t, strings.Contains(out.String(), "@src/main.lua"))

	for _, rel := range []string{"main.luac", "sub/helper.luac", "util_lib/strings.luac"} {
		data, err := os.ReadFile(filepath.Join(m.Dir, "out", filepath.FromSlash(rel)))
		be.Err(t, err, nil)
		_, err = cache.UnmarshalPrototype(data, vm.NewStringTable())
		be.Err(t, err, nil)
	}
	_, err = os.Stat(filepath.Join(m.Dir, "out", "main_spec.luac"))
	be.True(t, os.IsNotExist(err))

	// The lock file pins the path dependency.
	lock, err := manifest.ReadLock(m.LockFilePath())
	be.Err(t, err, nil)
	be.Equal(t, lock.FindLockedDep("util-lib").Path, "../util")
}

func TestBuildProjectUsesCache(t *testing.T) {
	m := newProject(t)

	_, err := buildProject(m, buildOptions{OutDir: "out"}, &bytes.Buffer{})
	be.Err(t, err, nil)

	report, err := buildProject(m, buildOptions{OutDir: "out"}, &bytes.Buffer{})
	be.Err(t, err, nil)
	be.Equal(t, report.Cached, 3)
	be.Equal(t, report.Compiled, 0)

	// An edited file misses the cache.
	writeFile(t, filepath.Join(m.Dir, "src", "main.lua"), "return 42\n")
	report, err = buildProject(m, buildOptions{OutDir: "out"}, &bytes.Buffer{})
	be.Err(t, err, nil)
	be.Equal(t, report.Cached, 2)
	be.Equal(t, report.Compiled, 1)

	report, err = buildProject(m, buildOptions{OutDir: "out", Force: true}, &bytes.Buffer{})
	be.Err(t, err, nil)
	be.Equal(t, report.Compiled, 3)
}

func TestBuildProjectCollectsErrors(t *testing.T) {
	m := newProject(t)
	writeFile(t, filepath.Join(m.Dir, "src", "broken.lua"), "local x = \n")
	writeFile(t, filepath.Join(m.Dir, "src", "also_broken.lua"), "goto nowhere\n")

	report, err := buildProject(m, buildOptions{OutDir: "out"}, &bytes.Buffer{})
	be.Err(t, err, nil)
	be.Equal(t, report.Compiled, 3)
	be.Equal(t, len(report.Failed), 2)

	var msgs []string
	for _, e := range report.Failed {
		msgs = append(msgs, e.Error())
	}
	joined := strings.Join(msgs, "\n")
	be.True(t, strings.Contains(joined, "src/broken.lua:2: unexpected symbol near <eof>"))
	be.True(t, strings.Contains(joined, "src/also_broken.lua:2: no visible label 'nowhere' for <goto> at line 1"))
}

func TestBuildProjectWithoutCache(t *testing.T) {
	m := newProject(t)
	off := false
	m.Cache.Enabled = &off

	report, err := buildProject(m, buildOptions{OutDir: "out"}, &bytes.Buffer{})
	be.Err(t, err, nil)
	be.Equal(t, report.Compiled, 3)
	_, err = os.Stat(m.CachePath())
	be.True(t, os.IsNotExist(err))
}

func TestBuildProjectStrip(t *testing.T) {
	m := newProject(t)
	m.Compile.Strip = true

	_, err := buildProject(m, buildOptions{OutDir: "out"}, &bytes.Buffer{})
	be.Err(t, err, nil)
	data, err := os.ReadFile(filepath.Join(m.Dir, "out", "main.luac"))
	be.Err(t, err, nil)
	p, err := cache.UnmarshalPrototype(data, vm.NewStringTable())
	be.Err(t, err, nil)
	be.Equal(t, len(p.LineInfo), 0)
	be.Equal(t, p.Source, "=?")
}
