// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resolver

import "github.com/ntdeps/depwalk/apiset"

// Context is the full input configuration for one resolve() run: the root
// executable, the effective search-path options, and the policy knobs that
// change how far the walk goes and what it reports.
type Context struct {
	// RootPath is the executable or DLL to start from, absolute or
	// resolvable relative to Cwd.
	RootPath string

	// Cwd is the process's current working directory; used both as a
	// search-path entry and to resolve a relative RootPath.
	Cwd string

	// UserPath is the caller's ordered list of supplementary search
	// directories (step 9 of the precedence order).
	UserPath []string

	// SystemDir, System16Dir, WindowsDir are the default system
	// directories (steps 4-6); OverrideSystemDirs replaces them and
	// SkipSystemDirs drops them.
	SystemDir          string
	System16Dir        string
	WindowsDir         string
	OverrideSystemDirs []string
	SkipSystemDirs     bool

	// RecurseIntoSystem, when false (the default), records a system
	// library's exports for symbol checking but does not expand its own
	// dependencies.
	RecurseIntoSystem bool

	// EnvPath is the ordered list of directories from the PATH
	// environment variable (step 8).
	EnvPath []string

	// MaxDepth caps how deep the walk expands nodes; nodes at or beyond
	// this depth are recorded but never expanded. Zero means unbounded.
	MaxDepth int

	// Filter, if non-empty, is a case-insensitive glob/substring pattern:
	// after the walk completes, only nodes on a path to a name matching
	// Filter are retained.
	Filter string

	// CheckSymbols runs the symbol checker over the assembled graph.
	CheckSymbols bool

	// Context has no architecture preference: a dependency whose known
	// architecture differs from the root's is always fatal (see
	// ArchitectureMismatchError).

	// APISet is injected configuration holding both the API-Set contracts
	// and the KnownDLLs set. With a nil or empty map no name is treated as
	// a KnownDll, and an api-ms-*/ext-ms-* name is searched for like any
	// other DLL name; when no file by that name is found it becomes an
	// ordinary Missing node, not marked apart from other missing names.
	APISet *apiset.Map
}
