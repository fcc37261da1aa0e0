// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package searchpath

import (
	"testing"

	"github.com/ntdeps/depwalk/apiset"
	"github.com/ntdeps/depwalk/depgraph"
)

const snapshot = `
known_dlls = ["ntdll.dll"]

[[contract]]
name = "api-ms-win-core-namedpipe-l1-2-1.dll"
host = "kernelbase.dll"
`

func testMap(t *testing.T) *apiset.Map {
	t.Helper()
	m, err := apiset.LoadBytes([]byte(snapshot))
	if err != nil {
		t.Fatalf("apiset.LoadBytes() failed: %v", err)
	}
	return m
}

func TestBuildDefaultPrecedence(t *testing.T) {
	cfg := Config{
		SystemDir:   `C:\Windows\System32`,
		System16Dir: `C:\Windows\System`,
		WindowsDir:  `C:\Windows`,
		Cwd:         `C:\work`,
		EnvPath:     []string{`C:\tools`},
		UserPath:    []string{`C:\mylibs`},
	}
	b := New(testMap(t), cfg)
	entries := b.Build(`C:\app`)

	wantCats := []depgraph.FoundCategory{
		depgraph.CategoryImporterDir,
		depgraph.CategorySystemDir,
		depgraph.CategorySystem16Dir,
		depgraph.CategoryWindowsDir,
		depgraph.CategoryCwd,
		depgraph.CategoryEnvPath,
		depgraph.CategoryUserPath,
	}
	if len(entries) != len(wantCats) {
		t.Fatalf("len(entries) = %d, want %d: %+v", len(entries), len(wantCats), entries)
	}
	for i, cat := range wantCats {
		if entries[i].Category != cat {
			t.Errorf("entries[%d].Category = %v, want %v", i, entries[i].Category, cat)
		}
	}
}

func TestBuildSkipSystemDirs(t *testing.T) {
	cfg := Config{
		SystemDir: `C:\Windows\System32`,
		Cwd:       `C:\work`,
	}
	cfg.SkipSystemDirs = true
	b := New(testMap(t), cfg)
	entries := b.Build(`C:\app`)

	for _, e := range entries {
		if e.Category == depgraph.CategorySystemDir {
			t.Errorf("found CategorySystemDir entry despite SkipSystemDirs: %+v", entries)
		}
	}
}

func TestBuildOverrideSystemDirs(t *testing.T) {
	cfg := Config{
		SystemDir:          `C:\Windows\System32`,
		OverrideSystemDirs: []string{`D:\override1`, `D:\override2`},
	}
	b := New(testMap(t), cfg)
	entries := b.Build("")

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2: %+v", len(entries), entries)
	}
	if entries[0].Dir != `D:\override1` || entries[1].Dir != `D:\override2` {
		t.Errorf("entries = %+v, want override dirs in order", entries)
	}
}

func TestSubstituteApiSet(t *testing.T) {
	b := New(testMap(t), Config{})

	sub := b.Substitute("api-ms-win-core-namedpipe-l1-2-1.dll")
	if !sub.Found || sub.Category != depgraph.CategoryApiSet || sub.HostName != "kernelbase.dll" {
		t.Errorf("Substitute(api-set) = %+v, want Found with host kernelbase.dll", sub)
	}

	sub = b.Substitute("api-ms-win-core-unknown-l1-1-0.dll")
	if sub.Found {
		t.Errorf("Substitute(unknown api-set) = %+v, want not found", sub)
	}
}

func TestSubstituteKnownDll(t *testing.T) {
	cfg := Config{SystemDir: `C:\Windows\System32`}
	b := New(testMap(t), cfg)

	sub := b.Substitute("ntdll.dll")
	if !sub.Found || sub.Category != depgraph.CategoryKnownDll || sub.Dir != `C:\Windows\System32` {
		t.Errorf("Substitute(ntdll.dll) = %+v, want KnownDll resolving to system dir", sub)
	}
}

func TestSubstituteKnownDllWithSkipSystemDirs(t *testing.T) {
	cfg := Config{SystemDir: `C:\Windows\System32`, SkipSystemDirs: true}
	b := New(testMap(t), cfg)

	sub := b.Substitute("ntdll.dll")
	if sub.Found {
		t.Errorf("Substitute(ntdll.dll) with SkipSystemDirs = %+v, want not found rather than a panic", sub)
	}
}

func TestSubstituteOrdinaryName(t *testing.T) {
	b := New(testMap(t), Config{})
	sub := b.Substitute("mylib.dll")
	if sub.Found {
		t.Errorf("Substitute(mylib.dll) = %+v, want not found (ordinary search)", sub)
	}
}

func TestInSystemDir(t *testing.T) {
	cfg := Config{SystemDir: `C:\Windows\System32`}
	b := New(testMap(t), cfg)

	if !b.InSystemDir(`C:\Windows\System32\kernel32.dll`) {
		t.Errorf("InSystemDir(system file) = false, want true")
	}
	if b.InSystemDir(`C:\app\mylib.dll`) {
		t.Errorf("InSystemDir(app file) = true, want false")
	}
}

func TestEntrySignatureDistinguishesDirs(t *testing.T) {
	a := Entry{Category: depgraph.CategoryUserPath, Dir: `C:\a`}
	b := Entry{Category: depgraph.CategoryUserPath, Dir: `C:\b`}
	if a.Signature() == b.Signature() {
		t.Errorf("Signature() collided for distinct directories: %q", a.Signature())
	}
}
