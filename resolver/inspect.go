// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package resolver

import (
	"fmt"

	peparser "github.com/ntdeps/depwalk"
	"github.com/ntdeps/depwalk/depgraph"
)

// inspectedDependency is one entry in the import directory of an
// inspected PE, before it has been located on disk.
type inspectedDependency struct {
	name        string
	delayLoaded bool
	imports     []depgraph.SymbolReference
}

// inspected is the PE Inspector's pure-function output: everything the
// resolver needs from one file's headers and directories, stripped of any
// notion of where on disk the file lives.
type inspected struct {
	architecture depgraph.Architecture
	dependencies []inspectedDependency
	exports      []depgraph.SymbolExport
}

func architectureOf(machine uint16) depgraph.Architecture {
	switch machine {
	case uint16(peparser.ImageFileMachineI386):
		return depgraph.ArchX86
	case uint16(peparser.ImageFileMachineAMD64):
		return depgraph.ArchX64
	case uint16(peparser.ImageFileMachineARM64):
		return depgraph.ArchArm64
	default:
		return depgraph.ArchUnknown
	}
}

// isMangled reports whether name carries MSVC C++ name-mangling, signaled
// by the leading '?' Microsoft's compiler prefixes decorated names with.
// Mangled names are preserved raw; they are never demangled for
// comparison, only (optionally) for display.
func isMangled(name string) bool {
	return len(name) > 0 && name[0] == '?'
}

// inspect parses one PE file already read into memory and reduces it to
// the stateless shape the resolver consumes. It never touches the
// filesystem itself beyond the byte slice handed to it.
func inspect(data []byte) (*inspected, error) {
	file, err := peparser.NewBytes(data, &peparser.Options{})
	if err != nil {
		return nil, fmt.Errorf("opening PE: %w", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		return nil, fmt.Errorf("parsing PE: %w", err)
	}

	info := &inspected{
		architecture: architectureOf(uint16(file.NtHeader.FileHeader.Machine)),
	}

	for _, imp := range file.Imports {
		dep := inspectedDependency{name: imp.Name}
		for _, fn := range imp.Functions {
			ref := depgraph.SymbolReference{}
			if fn.ByOrdinal {
				ref.Ordinal = uint16(fn.Ordinal)
			} else {
				ref.Name = fn.Name
				ref.Mangled = isMangled(fn.Name)
			}
			dep.imports = append(dep.imports, ref)
		}
		info.dependencies = append(info.dependencies, dep)
	}

	for _, delay := range file.DelayImports {
		dep := inspectedDependency{name: delay.Name, delayLoaded: true}
		for _, fn := range delay.Functions {
			ref := depgraph.SymbolReference{}
			if fn.ByOrdinal {
				ref.Ordinal = uint16(fn.Ordinal)
			} else {
				ref.Name = fn.Name
				ref.Mangled = isMangled(fn.Name)
			}
			dep.imports = append(dep.imports, ref)
		}
		info.dependencies = append(info.dependencies, dep)
	}

	for _, fn := range file.Export.Functions {
		info.exports = append(info.exports, depgraph.SymbolExport{
			Name:      fn.Name,
			Ordinal:   uint16(fn.Ordinal),
			Forwarder: fn.Forwarder,
		})
	}

	return info, nil
}
