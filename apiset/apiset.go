// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

// Package apiset loads the two pieces of Windows loader configuration that
// cannot be queried from a non-Windows host: the API-Set virtual namespace
// (api-ms-*, ext-ms-* contract names, each mapping to a concrete host DLL)
// and the KnownDLLs set (system DLLs that always resolve to the system
// directory regardless of the caller's search path). Both are sourced from
// a TOML snapshot, typically taken from a mounted Windows installation or
// shipped as an embedded table; this package never inspects a live registry.
package apiset

import (
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

// Map resolves API-Set contract names to the concrete DLL that backs them,
// and tracks the set of KnownDLLs that must never be shadowed by a
// user-supplied search path entry.
type Map struct {
	contracts map[string]string
	knownDlls map[string]struct{}
}

// file is the on-disk TOML shape: a table of [[contract]] entries mapping
// a virtual name to its host DLL, and a flat list of known DLL base names.
type file struct {
	Contract []struct {
		Name string `toml:"name"`
		Host string `toml:"host"`
	} `toml:"contract"`
	KnownDlls []string `toml:"known_dlls"`
}

// New returns an empty Map, equivalent to an absent configuration: no
// api-ms-*/ext-ms-* name resolves to a host DLL and no DLL is treated as a
// KnownDll.
func New() *Map {
	return &Map{
		contracts: make(map[string]string),
		knownDlls: make(map[string]struct{}),
	}
}

// Load parses a TOML API-set/KnownDLLs snapshot from path.
func Load(path string) (*Map, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("apiset: reading %s: %w", path, err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a TOML API-set/KnownDLLs snapshot already in memory.
func LoadBytes(data []byte) (*Map, error) {
	var f file
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("apiset: decoding snapshot: %w", err)
	}

	m := New()
	for _, c := range f.Contract {
		m.contracts[strings.ToLower(c.Name)] = c.Host
	}
	for _, d := range f.KnownDlls {
		m.knownDlls[strings.ToLower(d)] = struct{}{}
	}
	return m, nil
}

// IsApiSetName reports whether name has the shape of an API-Set or
// extension-Set contract, independent of whether the contract is known.
func IsApiSetName(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasPrefix(lower, "api-ms-") || strings.HasPrefix(lower, "ext-ms-")
}

// Resolve looks up the concrete host DLL for an API-Set contract name. The
// second return value is false when the name is not present in the map; the
// searchpath builder then treats the name as an ordinary DLL name.
func (m *Map) Resolve(contractName string) (string, bool) {
	host, ok := m.contracts[strings.ToLower(contractName)]
	return host, ok
}

// IsKnownDll reports whether name is a member of the KnownDLLs set.
func (m *Map) IsKnownDll(name string) bool {
	_, ok := m.knownDlls[strings.ToLower(name)]
	return ok
}

// Len reports how many contracts are loaded, primarily for diagnostics.
func (m *Map) Len() int {
	return len(m.contracts)
}
