// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package searchpath assembles, per target executable, the ordered
// directory search path the Windows loader documents for resolving an
// imported DLL name. API-Set and KnownDLLs short-circuit the directory
// walk entirely; everything else is a plain ordered list of (category,
// directory) entries, first match wins.
package searchpath

import (
	"path"
	"path/filepath"
	"strings"

	"github.com/ntdeps/depwalk/apiset"
	"github.com/ntdeps/depwalk/depgraph"
)

// Entry is one directory in the ordered search path, tagged with the
// category the Resolver reports back on a hit.
type Entry struct {
	Category depgraph.FoundCategory
	Dir      string
}

// Config carries the options that change which entries build() produces.
// The zero value reproduces the loader's default precedence.
type Config struct {
	// OverrideSystemDirs, if non-empty, replaces the system/16-bit-system/
	// Windows-directory entries (steps 4-6) with these directories, in order.
	OverrideSystemDirs []string

	// SkipSystemDirs drops steps 4-6 entirely; any SystemLibrary
	// classification that would have matched there becomes Missing instead.
	SkipSystemDirs bool

	// RecurseIntoSystem controls whether a dependency resolved under a
	// system directory is expanded by the resolver. It does not affect the
	// path itself; it is threaded through so callers building a Context
	// have one place to read it from alongside the path-affecting options.
	RecurseIntoSystem bool

	// Cwd is the process's current working directory, step 7. Omitted
	// entirely when empty.
	Cwd string

	// EnvPath is the ordered list of directories from the PATH environment
	// variable, step 8.
	EnvPath []string

	// UserPath is the caller-supplied supplementary search list, step 9.
	UserPath []string

	// SystemDir, System16Dir and WindowsDir are the default system
	// directories used unless OverrideSystemDirs or SkipSystemDirs apply.
	SystemDir   string
	System16Dir string
	WindowsDir  string
}

// Builder constructs an ordered search path for one resolution run, given
// a shared API-Set/KnownDLLs map and the resolved options.
type Builder struct {
	apiSet *apiset.Map
	cfg    Config
}

// New returns a Builder that consults apiSet for API-Set/KnownDLLs
// short-circuiting and otherwise follows cfg.
func New(apiSet *apiset.Map, cfg Config) *Builder {
	if apiSet == nil {
		apiSet = apiset.New()
	}
	return &Builder{apiSet: apiSet, cfg: cfg}
}

// Substitution is returned when a requested name resolves through the
// API-Set virtual namespace or the KnownDLLs set instead of a directory
// walk. Found is false when neither applies and the ordinary Build path
// should be probed.
type Substitution struct {
	Found    bool
	Category depgraph.FoundCategory
	HostName string
	Dir      string
}

// Substitute runs steps 1-2 of the precedence order for requestedName: API
// Set first, then KnownDLLs. Callers re-dispatch the returned HostName
// through the ordinary search path when Category is CategoryApiSet, since
// an API-Set contract may itself resolve to another contract.
func (b *Builder) Substitute(requestedName string) Substitution {
	if apiset.IsApiSetName(requestedName) {
		if host, ok := b.apiSet.Resolve(requestedName); ok {
			return Substitution{Found: true, Category: depgraph.CategoryApiSet, HostName: host}
		}
		return Substitution{}
	}

	if b.apiSet.IsKnownDll(requestedName) {
		dirs := b.systemDirs()
		if len(dirs) == 0 {
			return Substitution{}
		}
		return Substitution{
			Found:    true,
			Category: depgraph.CategoryKnownDll,
			HostName: requestedName,
			Dir:      dirs[0],
		}
	}

	return Substitution{}
}

func (b *Builder) systemDirs() []string {
	if b.cfg.SkipSystemDirs {
		return nil
	}
	if len(b.cfg.OverrideSystemDirs) > 0 {
		return b.cfg.OverrideSystemDirs
	}
	var dirs []string
	for _, d := range []string{b.cfg.SystemDir, b.cfg.System16Dir, b.cfg.WindowsDir} {
		if d != "" {
			dirs = append(dirs, d)
		}
	}
	return dirs
}

// Build assembles the ordered directory search path for a dependency of
// importerDir (steps 3, 7-9) plus the system/Windows directories (steps
// 4-6) honoring overrides. API-Set and KnownDLLs are not directory entries
// and must be checked first via Substitute.
func (b *Builder) Build(importerDir string) []Entry {
	var entries []Entry

	if importerDir != "" {
		entries = append(entries, Entry{Category: depgraph.CategoryImporterDir, Dir: importerDir})
	}

	if !b.cfg.SkipSystemDirs {
		cats := []depgraph.FoundCategory{
			depgraph.CategorySystemDir,
			depgraph.CategorySystem16Dir,
			depgraph.CategoryWindowsDir,
		}
		dirs := b.systemDirs()
		for i, d := range dirs {
			cat := depgraph.CategorySystemDir
			if len(b.cfg.OverrideSystemDirs) == 0 && i < len(cats) {
				cat = cats[i]
			}
			entries = append(entries, Entry{Category: cat, Dir: d})
		}
	}

	if b.cfg.Cwd != "" {
		entries = append(entries, Entry{Category: depgraph.CategoryCwd, Dir: b.cfg.Cwd})
	}

	for _, d := range b.cfg.EnvPath {
		entries = append(entries, Entry{Category: depgraph.CategoryEnvPath, Dir: d})
	}

	for _, d := range b.cfg.UserPath {
		entries = append(entries, Entry{Category: depgraph.CategoryUserPath, Dir: d})
	}

	return entries
}

// Signature returns a stable string describing the resulting path, used by
// the resolver as part of the negative-cache key: two otherwise-identical
// probes against different importer directories must not share a miss.
func (e Entry) Signature() string {
	return string(e.Category) + ":" + filepath.ToSlash(e.Dir)
}

// InSystemDir reports whether path lies inside any of the configured
// system directories, used by the resolver to decide whether to elide a
// node's further expansion.
func (b *Builder) InSystemDir(p string) bool {
	norm := strings.ReplaceAll(filepath.ToSlash(filepath.Clean(p)), `\`, "/")
	for _, d := range b.systemDirs() {
		if d == "" {
			continue
		}
		dn := strings.ReplaceAll(filepath.ToSlash(filepath.Clean(d)), `\`, "/")
		if strings.EqualFold(path.Dir(norm), dn) {
			return true
		}
	}
	return false
}
