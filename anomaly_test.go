// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "testing"

func TestGetAnomaliesReservedDataDirectoryEntry(t *testing.T) {
	b := newPEBuilder()
	b.entryPoint = testSectionRVA
	// Stamp a non-zero value into the reserved (last) data directory entry;
	// it must never be populated, so parsing the data directories should
	// flag it.
	b.setDataDirectory(ImageDirectoryEntryReserved, testSectionRVA, 4)
	data := b.build()

	file, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if err := file.GetAnomalies(); err != nil {
		t.Fatalf("GetAnomalies() failed: %v", err)
	}

	if !stringInSlice(AnoReservedDataDirectoryEntry, file.Anomalies) {
		t.Errorf("anomaly %q not found in anomalies, got: %v", AnoReservedDataDirectoryEntry, file.Anomalies)
	}
}

func TestGetAnomaliesEntryPointAndSubsystemVersion(t *testing.T) {
	b := newPEBuilder()
	data := b.build()

	file, err := NewBytes(data, &Options{})
	if err != nil {
		t.Fatalf("NewBytes failed: %v", err)
	}
	defer file.Close()

	if err := file.Parse(); err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	if err := file.GetAnomalies(); err != nil {
		t.Fatalf("GetAnomalies() failed: %v", err)
	}

	want := []string{AnoAddressOfEntryPointNull, AnoMajorSubsystemVersion}
	for _, ano := range want {
		if !stringInSlice(ano, file.Anomalies) {
			t.Errorf("anomaly %q not found in anomalies, got: %v", ano, file.Anomalies)
		}
	}
}
