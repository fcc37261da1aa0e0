// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package resolver walks the dependency graph of a PE binary, emulating
// the Windows loader's DLL search-path precedence on any host OS. It
// drives the PE inspector and the search-path builder from a single
// goroutine, FIFO work queue, exactly as the single-threaded contract
// requires: one resolve() call, no suspension points, every step
// synchronous I/O.
package resolver

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/cespare/xxhash/v2"

	"github.com/ntdeps/depwalk/depgraph"
	"github.com/ntdeps/depwalk/searchpath"
)

// Resolver runs one resolve() call. It owns the node cache and negative
// cache for the duration of the run and is not safe for concurrent use or
// reuse across runs — construct a fresh Resolver per Resolve call.
type Resolver struct {
	ctx     Context
	builder *searchpath.Builder

	report *depgraph.Report

	// expanded tracks identities whose dependency enumeration has already
	// run, enforcing the "each identity expanded at most once" cycle rule.
	expanded map[string]bool

	// negative caches an (folded requested name, path signature) pair that
	// has already been probed and found nowhere, so repeated imports of an
	// unresolvable name are not re-searched.
	negative map[uint64]bool

	// queue is the FIFO work queue of nodes awaiting expansion. It is a
	// Resolver field, rather than a local in Resolve, so that a nested
	// resolution (an API-Set contract re-dispatching to its host DLL)
	// can enqueue the host's own expansion.
	queue []queueItem
}

// queueItem is one pending expansion: the already-created-but-unexpanded
// node identified by identity, at the given depth, with the importer
// directory its own imports should be probed relative to.
type queueItem struct {
	identity    string
	importerDir string
	depth       int
}

// New constructs a Resolver for one run against ctx.
func New(ctx Context) *Resolver {
	cfg := searchpath.Config{
		OverrideSystemDirs: ctx.OverrideSystemDirs,
		SkipSystemDirs:     ctx.SkipSystemDirs,
		RecurseIntoSystem:  ctx.RecurseIntoSystem,
		Cwd:                ctx.Cwd,
		EnvPath:            ctx.EnvPath,
		UserPath:           ctx.UserPath,
		SystemDir:          ctx.SystemDir,
		System16Dir:        ctx.System16Dir,
		WindowsDir:         ctx.WindowsDir,
	}
	return &Resolver{
		ctx:      ctx,
		builder:  searchpath.New(ctx.APISet, cfg),
		expanded: make(map[string]bool),
		negative: make(map[uint64]bool),
	}
}

// Resolve walks the dependency graph rooted at ctx.RootPath and returns the
// assembled Report. A RootNotFoundError, RootNotPeError or
// ArchitectureMismatchError aborts the run; every other failure degrades
// to a Missing/Unreadable node or edge and the walk continues.
func (r *Resolver) Resolve() (*depgraph.Report, error) {
	rootPath := r.ctx.RootPath
	if !filepath.IsAbs(rootPath) && r.ctx.Cwd != "" {
		rootPath = filepath.Join(r.ctx.Cwd, rootPath)
	}

	data, err := os.ReadFile(rootPath)
	if err != nil {
		return nil, &RootNotFoundError{Path: r.ctx.RootPath}
	}

	info, err := inspect(data)
	if err != nil {
		return nil, &RootNotPeError{Path: r.ctx.RootPath, Why: err.Error()}
	}

	identity, err := depgraph.NormalizeIdentity(rootPath)
	if err != nil {
		return nil, &RootNotFoundError{Path: r.ctx.RootPath}
	}

	r.report = depgraph.NewReport(identity)
	root := &depgraph.Node{
		Identity:      identity,
		RequestedName: depgraph.BaseName(rootPath),
		Kind:          depgraph.KindRoot,
		Architecture:  info.architecture,
		FoundIn:       depgraph.FoundIn{Category: depgraph.CategoryNotFound, Index: -1},
		Depth:         0,
		State:         depgraph.StateParsed,
		Exports:       info.exports,
	}
	r.report.Nodes[identity] = root
	r.attachDependencies(root, info)

	r.queue = []queueItem{{identity: identity, importerDir: filepath.Dir(rootPath), depth: 0}}
	for len(r.queue) > 0 {
		item := r.queue[0]
		r.queue = r.queue[1:]

		node := r.report.Nodes[item.identity]
		if node == nil || r.expanded[item.identity] {
			continue
		}
		r.expanded[item.identity] = true

		if r.ctx.MaxDepth > 0 && item.depth >= r.ctx.MaxDepth {
			continue
		}
		if node.DependenciesElided {
			continue
		}

		for i := range node.Dependencies {
			edge := &node.Dependencies[i]
			child, _, err := r.resolveOne(edge.RequestedName, item.importerDir, item.depth+1)
			if err != nil {
				return nil, err
			}
			edge.TargetIdentity = child.Identity

			if root.Architecture != depgraph.ArchUnknown &&
				child.Architecture != depgraph.ArchUnknown &&
				child.Kind != depgraph.KindMissing &&
				child.Architecture != root.Architecture {
				return nil, &ArchitectureMismatchError{
					RootArch: string(root.Architecture),
					NodePath: child.Identity,
					NodeArch: string(child.Architecture),
				}
			}
		}
		node.State = depgraph.StateSealed
	}

	if r.ctx.Filter != "" {
		r.applyFilter()
	}

	return r.report, nil
}

// attachDependencies converts the inspector's flat dependency list into
// graph edges on node, preserving import-directory order.
func (r *Resolver) attachDependencies(node *depgraph.Node, info *inspected) {
	for _, dep := range info.dependencies {
		node.Dependencies = append(node.Dependencies, depgraph.Edge{
			RequestedName: dep.name,
			DelayLoaded:   dep.delayLoaded,
			Imports:       dep.imports,
		})
	}
}

// resolveOne locates or reuses the node for requestedName as imported from
// importerDir at the given depth, creating it in the report and enqueueing
// it for expansion if this is the first time this identity has been seen.
func (r *Resolver) resolveOne(requestedName, importerDir string, depth int) (*depgraph.Node, bool, error) {
	folded := depgraph.FoldName(requestedName)

	if sub := r.builder.Substitute(requestedName); sub.Found {
		switch sub.Category {
		case depgraph.CategoryApiSet:
			return r.resolveApiSet(requestedName, sub.HostName, importerDir, depth)
		case depgraph.CategoryKnownDll:
			return r.resolveKnownDll(requestedName, sub.Dir, depth)
		}
	}

	entries := r.builder.Build(importerDir)
	negKey := r.negativeKey(folded, entries)
	if r.negative[negKey] {
		return r.missingNode(requestedName, depth), false, nil
	}

	for i, entry := range entries {
		if entry.Dir == "" {
			continue
		}
		match, ok := findCaseInsensitive(entry.Dir, requestedName)
		if !ok {
			continue
		}

		identity, err := depgraph.NormalizeIdentity(match)
		if err != nil {
			continue
		}
		if existing, ok := r.report.Nodes[identity]; ok {
			return existing, false, nil
		}

		node := r.createLocatedNode(requestedName, match, identity, entry.Category, depth)
		// Index is the entry's position among the entries of its category.
		for _, prev := range entries[:i] {
			if prev.Category == entry.Category {
				node.FoundIn.Index++
			}
		}
		r.enqueue(node, depth)
		return node, true, nil
	}

	r.negative[negKey] = true
	return r.missingNode(requestedName, depth), false, nil
}

// enqueue schedules node for expansion unless it is terminal (Missing or
// Unreadable) or its dependencies were already elided at creation time.
func (r *Resolver) enqueue(node *depgraph.Node, depth int) {
	if node.Kind == depgraph.KindMissing || node.Kind == depgraph.KindUnreadable {
		return
	}
	if node.DependenciesElided {
		return
	}
	r.queue = append(r.queue, queueItem{
		identity:    node.Identity,
		importerDir: filepath.Dir(node.Identity),
		depth:       depth,
	})
}

func (r *Resolver) negativeKey(foldedName string, entries []searchpath.Entry) uint64 {
	var sb strings.Builder
	sb.WriteString(foldedName)
	for _, e := range entries {
		sb.WriteByte('|')
		sb.WriteString(e.Signature())
	}
	return xxhash.Sum64String(sb.String())
}

// createLocatedNode inspects the file at match and installs a node for it,
// classifying it SystemLibrary (exports recorded, dependencies elided) when
// it lives in a system directory and recursion into system libraries is
// disabled. A node created at or beyond ctx.MaxDepth also has its
// dependencies elided.
func (r *Resolver) createLocatedNode(requestedName, match, identity string, category depgraph.FoundCategory, depth int) *depgraph.Node {
	node := &depgraph.Node{
		Identity:      identity,
		RequestedName: requestedName,
		FoundIn:       depgraph.FoundIn{Category: category, Index: 0},
		Depth:         depth,
		Kind:          depgraph.KindUserLibrary,
	}

	data, err := os.ReadFile(match)
	if err != nil {
		node.Kind = depgraph.KindUnreadable
		node.State = depgraph.StateUnreadable
		node.UnreadableWhy = err.Error()
		r.report.Nodes[identity] = node
		return node
	}

	info, err := inspect(data)
	if err != nil {
		node.Kind = depgraph.KindUnreadable
		node.State = depgraph.StateUnreadable
		node.UnreadableWhy = err.Error()
		r.report.Nodes[identity] = node
		return node
	}

	node.Architecture = info.architecture
	node.Exports = info.exports
	node.State = depgraph.StateParsed

	inSystem := r.builder.InSystemDir(match)
	if inSystem {
		node.Kind = depgraph.KindSystemLibrary
	}

	if (inSystem && !r.ctx.RecurseIntoSystem) || (r.ctx.MaxDepth > 0 && depth >= r.ctx.MaxDepth) {
		node.DependenciesElided = true
	} else {
		r.attachDependencies(node, info)
	}

	r.report.Nodes[identity] = node
	return node
}

func (r *Resolver) resolveApiSet(requestedName, hostName, importerDir string, depth int) (*depgraph.Node, bool, error) {
	contractIdentity := "apiset://" + depgraph.FoldName(requestedName)
	if existing, ok := r.report.Nodes[contractIdentity]; ok {
		return existing, false, nil
	}

	contract := &depgraph.Node{
		Identity:      contractIdentity,
		RequestedName: requestedName,
		Kind:          depgraph.KindApiSetContract,
		Architecture:  depgraph.ArchUnknown,
		FoundIn:       depgraph.FoundIn{Category: depgraph.CategoryVirtualized, Index: -1},
		Depth:         depth,
		State:         depgraph.StateParsed,
	}
	r.report.Nodes[contractIdentity] = contract

	provider, _, err := r.resolveOne(hostName, importerDir, depth)
	if err != nil {
		return nil, false, err
	}
	contract.Dependencies = append(contract.Dependencies, depgraph.Edge{
		TargetIdentity: provider.Identity,
		RequestedName:  hostName,
	})
	contract.State = depgraph.StateSealed
	r.expanded[contractIdentity] = true

	return contract, true, nil
}

func (r *Resolver) resolveKnownDll(requestedName, systemDir string, depth int) (*depgraph.Node, bool, error) {
	match, ok := findCaseInsensitive(systemDir, requestedName)
	if !ok {
		node := r.missingNode(requestedName, depth)
		node.Kind = depgraph.KindMissing
		return node, false, nil
	}

	identity, err := depgraph.NormalizeIdentity(match)
	if err != nil {
		return r.missingNode(requestedName, depth), false, nil
	}
	if existing, ok := r.report.Nodes[identity]; ok {
		return existing, false, nil
	}

	node := r.createLocatedNode(requestedName, match, identity, depgraph.CategoryVirtualized, depth)
	node.FoundIn.Index = -1
	node.Kind = depgraph.KindKnownDll
	node.DependenciesElided = true
	return node, false, nil
}

func (r *Resolver) missingNode(requestedName string, depth int) *depgraph.Node {
	identity := "missing://" + depgraph.FoldName(requestedName)
	if existing, ok := r.report.Nodes[identity]; ok {
		return existing
	}
	node := &depgraph.Node{
		Identity:      identity,
		RequestedName: requestedName,
		Kind:          depgraph.KindMissing,
		Architecture:  depgraph.ArchUnknown,
		FoundIn:       depgraph.FoundIn{Category: depgraph.CategoryNotFound, Index: -1},
		Depth:         depth,
		State:         depgraph.StateMissing,
	}
	r.report.Nodes[identity] = node
	r.expanded[identity] = true
	return node
}

// findCaseInsensitive looks for a file named requestedName inside dir,
// case-insensitively, the way the Windows filesystem would match it. It
// tries the exact name first to avoid a directory scan on the common path.
func findCaseInsensitive(dir, requestedName string) (string, bool) {
	direct := filepath.Join(dir, requestedName)
	if st, err := os.Stat(direct); err == nil && !st.IsDir() {
		return direct, true
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	folded := depgraph.FoldName(requestedName)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if depgraph.FoldName(e.Name()) == folded {
			return filepath.Join(dir, e.Name()), true
		}
	}
	return "", false
}

// applyFilter retains only nodes that sit on a path from the root to a
// node whose requested name matches ctx.Filter, per the "filter pass"
// contract. The pattern may be a doublestar glob; a pattern with no glob
// metacharacters falls back to a case-insensitive substring match.
func (r *Resolver) applyFilter() {
	matches := func(name string) bool {
		folded := depgraph.FoldName(name)
		pattern := depgraph.FoldName(r.ctx.Filter)
		if strings.ContainsAny(pattern, "*?[") {
			ok, err := doublestar.Match(pattern, folded)
			return err == nil && ok
		}
		return strings.Contains(folded, pattern)
	}

	keep := make(map[string]bool)
	var walk func(identity string) bool
	visiting := make(map[string]bool)
	walk = func(identity string) bool {
		if keep[identity] {
			return true
		}
		if visiting[identity] {
			return false
		}
		visiting[identity] = true
		defer delete(visiting, identity)

		node := r.report.Nodes[identity]
		if node == nil {
			return false
		}
		hit := matches(node.RequestedName)
		for _, edge := range node.Dependencies {
			if walk(edge.TargetIdentity) {
				hit = true
			}
		}
		if hit {
			keep[identity] = true
		}
		return hit
	}
	walk(r.report.RootIdentity)

	for identity := range r.report.Nodes {
		if !keep[identity] {
			delete(r.report.Nodes, identity)
		}
	}
}
