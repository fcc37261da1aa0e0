// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func buildWithCharacteristics(characteristics int) []byte {
	b := newPEBuilder()
	data := b.build()
	// Characteristics sits right after NumberOfSections/TimeDateStamp/
	// PointerToSymbolTable/NumberOfSymbols/SizeOfOptionalHeader in the
	// file header, 18 bytes into it; the file header itself starts 4
	// bytes after AddressOfNewEXEHeader (past the "PE\0\0" signature).
	fileHeaderOffset := 0x80 + 4
	characteristicsOffset := fileHeaderOffset + 18
	data[characteristicsOffset] = byte(characteristics)
	data[characteristicsOffset+1] = byte(characteristics >> 8)
	return data
}

func TestIsEXE(t *testing.T) {
	data := buildWithCharacteristics(ImageFileExecutableImage)

	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if !file.IsEXE() {
		t.Errorf("IsEXE() = false, want true")
	}
	if file.IsDLL() {
		t.Errorf("IsDLL() = true, want false")
	}
}

func TestIsDLL(t *testing.T) {
	data := buildWithCharacteristics(ImageFileExecutableImage | ImageFileDLL)

	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if !file.IsDLL() {
		t.Errorf("IsDLL() = false, want true")
	}
	if file.IsEXE() {
		t.Errorf("IsEXE() = true, want false")
	}
}

func TestIsDriver(t *testing.T) {
	b := newPEBuilder()
	b.addImport("ntoskrnl.exe", []string{"ExFreePool"})
	data := b.build()

	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if !file.IsDriver() {
		t.Errorf("IsDriver() = false, want true when importing from ntoskrnl.exe")
	}
}

func TestIsDriverFalseWithoutImports(t *testing.T) {
	b := newPEBuilder()
	data := b.build()

	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if file.IsDriver() {
		t.Errorf("IsDriver() = true, want false for an image with no imports")
	}
}
