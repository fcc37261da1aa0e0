// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func TestParseSectionHeaders(t *testing.T) {
	b := newPEBuilder()
	b.place([]byte{0x90, 0x90, 0xC3})
	data := b.build()

	file, err := NewBytes(data, &Options{SectionEntropy: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	if len(file.Sections) != 1 {
		t.Fatalf("len(Sections) = %d, want 1", len(file.Sections))
	}

	section := file.Sections[0]
	if got := section.String(); got != ".text" {
		t.Errorf("section name = %q, want %q", got, ".text")
	}
	if section.Header.VirtualAddress != testSectionRVA {
		t.Errorf("VirtualAddress = 0x%x, want 0x%x", section.Header.VirtualAddress, testSectionRVA)
	}

	flags := section.PrettySectionFlags()
	wantExec, wantRead := false, false
	for _, f := range flags {
		if f == "Executable" {
			wantExec = true
		}
		if f == "Readable" {
			wantRead = true
		}
	}
	if !wantExec || !wantRead {
		t.Errorf("PrettySectionFlags() = %v, want Executable and Readable", flags)
	}
}

func TestSectionEntropy(t *testing.T) {
	b := newPEBuilder()
	b.place([]byte{0x90, 0x90, 0xC3, 0x01, 0x02, 0x03, 0x04, 0x05})
	data := b.build()

	file, err := NewBytes(data, &Options{SectionEntropy: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}

	entropy := file.Sections[0].CalculateEntropy(file)
	if entropy <= 0 {
		t.Errorf("CalculateEntropy() = %v, want > 0 for non-uniform data", entropy)
	}
}
