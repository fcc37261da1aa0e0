// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "encoding/binary"

// ImageDelayImportDescriptor represents the IMAGE_DELAYLOAD_DESCRIPTOR,
// the delay-load equivalent of ImageImportDescriptor. A delay-loaded DLL is
// not pulled in at process start; the loader only resolves it the first
// time one of its imports is actually called, through a small stub the
// linker generates per-function.
type ImageDelayImportDescriptor struct {
	// Must be zero for the old (pre-VC7) format and non-zero, with bit 0
	// set, for the new RVA-based format this package parses.
	Attributes uint32 `json:"attributes"`

	// RVA of the ASCII string naming the target DLL.
	Name uint32 `json:"name"`

	// RVA of the module handle, caching whether the DLL has been loaded.
	ModuleHandleRVA uint32 `json:"module_handle_rva"`

	// RVA of the delay-load import address table (IAT).
	ImportAddressTableRVA uint32 `json:"import_address_table_rva"`

	// RVA of the delay-load import name table (INT), parallel in layout to
	// a regular import's OriginalFirstThunk.
	ImportNameTableRVA uint32 `json:"import_name_table_rva"`

	// RVA of the optional bound IAT, zero if unused.
	BoundImportAddressTableRVA uint32 `json:"bound_import_address_table_rva"`

	// RVA of the optional unload IAT, used to restore the original, unbound
	// IAT contents if the DLL is explicitly unloaded.
	UnloadInformationTableRVA uint32 `json:"unload_information_table_rva"`

	// Timestamp the image was bound, zero if not bound.
	TimeDateStamp uint32 `json:"time_date_stamp"`
}

// DelayImport groups one delay-loaded DLL with the functions resolved out
// of its name/address tables.
type DelayImport struct {
	Offset     uint32                      `json:"offset"`
	Name       string                      `json:"name"`
	Functions  []ImportFunction            `json:"functions"`
	Descriptor ImageDelayImportDescriptor  `json:"descriptor"`
}

// parseDelayImportDirectory walks the array of ImageDelayImportDescriptor
// entries, terminated like the regular import table by an all-zero entry,
// and resolves each one's functions through the same thunk-table walker
// parseImportDirectory uses, since the delay-load name/address tables share
// IMAGE_THUNK_DATA's layout.
func (pe *File) parseDelayImportDirectory(rva, size uint32) error {

	for {
		delayDesc := ImageDelayImportDescriptor{}
		fileOffset := pe.GetOffsetFromRva(rva)
		delayDescSize := uint32(binary.Size(delayDesc))
		err := pe.structUnpack(&delayDesc, fileOffset, delayDescSize)
		if err != nil {
			return err
		}

		if delayDesc == (ImageDelayImportDescriptor{}) {
			break
		}

		rva += delayDescSize

		maxLen := uint32(len(pe.data)) - fileOffset
		if rva > delayDesc.ImportNameTableRVA || rva > delayDesc.ImportAddressTableRVA {
			if rva < delayDesc.ImportNameTableRVA {
				maxLen = rva - delayDesc.ImportAddressTableRVA
			} else if rva < delayDesc.ImportAddressTableRVA {
				maxLen = rva - delayDesc.ImportNameTableRVA
			} else {
				maxLen = Max(rva-delayDesc.ImportNameTableRVA,
					rva-delayDesc.ImportAddressTableRVA)
			}
		}

		var importedFunctions []ImportFunction
		if pe.Is64 {
			importedFunctions, err = pe.parseImports64(&delayDesc, maxLen)
		} else {
			importedFunctions, err = pe.parseImports32(&delayDesc, maxLen)
		}
		if err != nil {
			return err
		}

		dllName := pe.getStringAtRVA(delayDesc.Name, maxDllLength)
		if !IsValidDosFilename(dllName) {
			dllName = "*invalid*"
			continue
		}

		pe.DelayImports = append(pe.DelayImports, DelayImport{
			Offset:     fileOffset,
			Name:       dllName,
			Functions:  importedFunctions,
			Descriptor: delayDesc,
		})
	}

	if len(pe.DelayImports) > 0 {
		pe.HasDelayImp = true
	}

	return nil
}
