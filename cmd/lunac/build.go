package main

import (
	"bytes"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/chazu/lunac/cache"
	"github.com/chazu/lunac/compiler"
	"github.com/chazu/lunac/compiler/hash"
	"github.com/chazu/lunac/manifest"
	"github.com/chazu/lunac/vm"
)

// buildOptions configure a project build.
type buildOptions struct {
	OutDir  string // where compiled chunks are written, relative to the project
	Force   bool   // ignore cached chunks
	Verbose bool
}

// buildReport summarizes a build.
type buildReport struct {
	Compiled int
	Cached   int
	Failed   []error
}

// sourceFile is one file taking part in a build.
type sourceFile struct {
	path   string // absolute path
	rel    string // path under its source directory, slash separated
	module string // dependency module, empty for the project itself
	owner  *manifest.Manifest
}

// handleBuildCommand processes the `lunac build` subcommand.
// Usage:
//
//	lunac build              # .lunac/build
//	lunac build -o out       # custom output directory
//	lunac build -force       # recompile everything
func handleBuildCommand(args []string) int {
	fset := flag.NewFlagSet("build", flag.ContinueOnError)
	outDir := fset.String("o", filepath.Join(".lunac", "build"), "Output directory")
	force := fset.Bool("force", false, "Ignore the compile cache")
	verbose := fset.Bool("v", false, "Report every file")
	if err := fset.Parse(args); err != nil {
		return 2
	}

	m, err := manifest.FindAndLoad(".")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading manifest: %v\n", err)
		return 1
	}
	if m == nil {
		fmt.Fprintf(os.Stderr, "Error: no %s found\n", manifest.FileName)
		return 1
	}

	report, err := buildProject(m, buildOptions{OutDir: *outDir, Force: *force, Verbose: *verbose}, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	for _, e := range report.Failed {
		fmt.Fprintln(os.Stderr, e)
	}
	fmt.Printf("%d compiled, %d cached, %d failed\n", report.Compiled, report.Cached, len(report.Failed))
	if len(report.Failed) > 0 {
		return 1
	}
	return 0
}

// buildProject compiles every source file of m and its dependencies into
// opts.OutDir. Compile errors are collected per file; the returned error
// is reserved for problems that stop the whole build.
func buildProject(m *manifest.Manifest, opts buildOptions, out io.Writer) (*buildReport, error) {
	deps, err := manifest.NewResolver(m).Resolve()
	if err != nil {
		return nil, err
	}

	var files []sourceFile
	for i := range deps {
		d := &deps[i]
		owner := d.Manifest
		if owner == nil {
			owner = &manifest.Manifest{Dir: d.LocalPath, Compile: m.Compile}
		}
		found, err := collectSources(d.SourceDirPaths(), d.Module, owner)
		if err != nil {
			return nil, err
		}
		files = append(files, found...)
	}
	found, err := collectSources(m.SourceDirPaths(), "", m)
	if err != nil {
		return nil, err
	}
	files = append(files, found...)

	var store *cache.Store
	if m.CacheEnabled() {
		store, err = cache.Open(m.CachePath())
		if err != nil {
			return nil, err
		}
		defer store.Close()
	}

	outDir := opts.OutDir
	if !filepath.IsAbs(outDir) {
		outDir = filepath.Join(m.Dir, outDir)
	}

	strs := vm.NewStringTable()
	report := &buildReport{}
	for _, f := range files {
		p, cached, err := buildFile(f, m.Compile.Strip, store, strs, opts.Force)
		if err != nil {
			report.Failed = append(report.Failed, err)
			continue
		}
		if cached {
			report.Cached++
		} else {
			report.Compiled++
		}
		if err := writeChunk(outDir, f, p); err != nil {
			return nil, err
		}
		if opts.Verbose {
			state := "compiled"
			if cached {
				state = "cached"
			}
			fmt.Fprintf(out, "%-8s %s %s\n", state, hash.Hex(p)[:12], f.owner.ChunkName(f.path))
		}
	}
	return report, nil
}

// collectSources finds the .lua files below dirs, skipping excluded ones.
// Missing directories are ignored.
func collectSources(dirs []string, module string, owner *manifest.Manifest) ([]sourceFile, error) {
	var files []sourceFile
	for _, dir := range dirs {
		err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) && path == dir {
					return filepath.SkipDir
				}
				return err
			}
			if d.IsDir() || !strings.HasSuffix(path, ".lua") || owner.Excluded(path) {
				return nil
			}
			rel, err := filepath.Rel(dir, path)
			if err != nil {
				return err
			}
			files = append(files, sourceFile{
				path:   path,
				rel:    filepath.ToSlash(rel),
				module: module,
				owner:  owner,
			})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}

// buildFile compiles f, consulting the cache first unless force is set.
func buildFile(f sourceFile, strip bool, store *cache.Store, strs *vm.StringTable, force bool) (*vm.Prototype, bool, error) {
	src, err := os.ReadFile(f.path)
	if err != nil {
		return nil, false, err
	}
	chunk := f.owner.ChunkName(f.path)
	key := cache.Key(chunk, string(src), strip)

	if store != nil && !force {
		p, err := store.Get(key, strs)
		switch {
		case err == nil:
			return p, true, nil
		case errors.Is(err, cache.ErrCorrupt):
			log.Warningf("dropping cache entry: %s", err)
			if err := store.Delete(key); err != nil {
				return nil, false, err
			}
		case !errors.Is(err, cache.ErrNotFound):
			return nil, false, err
		}
	}

	p, err := compiler.Compile(bytes.NewReader(skipShebang(src)), chunk, &compiler.Options{Strings: strs})
	if err != nil {
		return nil, false, err
	}
	if strip {
		vm.Strip(p)
	}
	if store != nil {
		if err := store.Put(key, chunk, p); err != nil {
			log.Warningf("%s", err)
		}
	}
	return p, false, nil
}

// writeChunk stores p under outDir, dependencies in a directory named
// after their module.
func writeChunk(outDir string, f sourceFile, p *vm.Prototype) error {
	data, err := cache.MarshalPrototype(p)
	if err != nil {
		return err
	}
	rel := strings.TrimSuffix(f.rel, ".lua") + ".luac"
	dest := filepath.Join(outDir, filepath.FromSlash(rel))
	if f.module != "" {
		dest = filepath.Join(outDir, f.module, filepath.FromSlash(rel))
	}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return err
	}
	return os.WriteFile(dest, data, 0o644)
}
