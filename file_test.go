// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func TestParse(t *testing.T) {
	b := newPEBuilder()
	data := b.build()

	file, err := NewBytes(data, nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Errorf("Parse() got %v, want nil", err)
	}
	if !file.HasDOSHdr || !file.HasNTHdr || !file.HasSections {
		t.Errorf("Parse() left FileInfo incomplete: %+v", file.FileInfo)
	}
}

func TestNewBytesFastMode(t *testing.T) {
	b := newPEBuilder()
	b.addImport("KERNEL32.DLL", []string{"ExitProcess"})
	data := b.build()

	file, err := NewBytes(data, &Options{Fast: true})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Errorf("Parse() got %v, want nil", err)
	}
	if file.HasImport {
		t.Errorf("Parse() in Fast mode should not parse data directories, but HasImport is set")
	}
}

func TestChecksum(t *testing.T) {
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

	// A freshly built image was never stamped with its own checksum, so the
	// computed value need not match the (zero) CheckSum field; this only
	// verifies Checksum() runs over the whole image without error.
	if got := file.Checksum(); got == 0 && len(data)%2 != 0 {
		t.Errorf("Checksum() unexpectedly 0 for %d byte image", len(data))
	}
}

func TestTooSmall(t *testing.T) {
	file, err := NewBytes(make([]byte, 10), nil)
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != ErrInvalidPESize {
		t.Errorf("Parse() got %v, want %v", err, ErrInvalidPESize)
	}
}
