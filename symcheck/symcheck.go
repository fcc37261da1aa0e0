// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package symcheck reconciles, over an assembled dependency report, every
// import an edge records against the export set of the node it resolved
// to, following forwarder chains where an export simply redirects to
// another DLL's symbol of the same or a different name.
package symcheck

import (
	"strings"

	"github.com/ntdeps/depwalk/depgraph"
)

// maxForwarderChain bounds how many forwarder hops are followed before the
// chain is treated as a loop. A length-16 chain resolves; a length-17
// chain is left unsatisfied and Check reports it as an ordinary
// SymbolMismatch.
const maxForwarderChain = 16

// ForwarderLoopError is a symbol-level error: a forwarder chain exceeded
// maxForwarderChain hops without terminating in a concrete export.
type ForwarderLoopError struct {
	Chain []string
}

func (e *ForwarderLoopError) Error() string {
	return "symcheck: forwarder loop: " + strings.Join(e.Chain, " -> ")
}

// Check walks every edge in report and returns the list of SymbolMismatch
// entries for imports that could not be satisfied, either directly or
// through a forwarder chain. System-library exporters are included since
// their exports were recorded even when their own dependencies were
// elided; when a system library's dependencies were elided, no symbol
// check runs on its own outbound edges (there are none to check).
func Check(report *depgraph.Report) []depgraph.SymbolMismatch {
	var mismatches []depgraph.SymbolMismatch

	for _, node := range report.Nodes {
		for _, edge := range node.Dependencies {
			exporter, ok := report.Nodes[edge.TargetIdentity]
			if !ok {
				continue
			}
			for _, ref := range edge.Imports {
				if satisfied(report, exporter, ref) {
					continue
				}
				mismatches = append(mismatches, depgraph.SymbolMismatch{
					ImporterIdentity: node.Identity,
					ExporterIdentity: exporter.Identity,
					Symbol:           ref,
				})
			}
		}
	}

	return mismatches
}

// satisfied reports whether ref is exported by exporter, directly or
// through a chain of forwarders terminating in a concrete export.
func satisfied(report *depgraph.Report, exporter *depgraph.Node, ref depgraph.SymbolReference) bool {
	visited := 0
	current := exporter

	for {
		var export depgraph.SymbolExport
		var ok bool
		if ref.Name != "" {
			export, ok = current.ExportByName(ref.Name)
		} else {
			export, ok = current.ExportByOrdinal(ref.Ordinal)
		}
		if !ok {
			return false
		}
		if export.Forwarder == "" {
			return true
		}

		visited++
		if visited > maxForwarderChain {
			return false
		}

		dllName, symName, ok := splitForwarder(export.Forwarder)
		if !ok {
			return false
		}

		next := findProvider(report, current, dllName)
		if next == nil {
			return false
		}
		current = next
		ref = depgraph.SymbolReference{Name: symName}
	}
}

// splitForwarder parses a forwarder string of the form "TARGET.FunctionName".
func splitForwarder(forwarder string) (dll, symbol string, ok bool) {
	idx := strings.LastIndexByte(forwarder, '.')
	if idx <= 0 || idx == len(forwarder)-1 {
		return "", "", false
	}
	return forwarder[:idx], forwarder[idx+1:], true
}

// findProvider locates the node for dllName among from's own resolved
// dependencies, following an ApiSetContract indirection if the forwardee
// target itself named an API-Set contract.
func findProvider(report *depgraph.Report, from *depgraph.Node, dllName string) *depgraph.Node {
	folded := depgraph.FoldName(dllName)
	for _, edge := range from.Dependencies {
		if depgraph.FoldName(strings.TrimSuffix(edge.RequestedName, ".dll")) == strings.TrimSuffix(folded, ".dll") {
			target := report.Nodes[edge.TargetIdentity]
			if target != nil && target.Kind == depgraph.KindApiSetContract {
				return followApiSetContract(report, target)
			}
			return target
		}
	}

	// The forwardee may not be an explicit import of `from` (forwarders can
	// target any loaded module); fall back to a direct graph lookup by
	// folded requested name.
	for _, node := range report.Nodes {
		if depgraph.FoldName(strings.TrimSuffix(node.RequestedName, ".dll")) == strings.TrimSuffix(folded, ".dll") {
			if node.Kind == depgraph.KindApiSetContract {
				return followApiSetContract(report, node)
			}
			return node
		}
	}
	return nil
}

func followApiSetContract(report *depgraph.Report, contract *depgraph.Node) *depgraph.Node {
	if len(contract.Dependencies) == 0 {
		return nil
	}
	return report.Nodes[contract.Dependencies[0].TargetIdentity]
}
