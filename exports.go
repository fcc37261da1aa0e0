// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import "encoding/binary"

const maxExportNameLength = 0x200

// ImageExportDirectory represents the IMAGE_EXPORT_DIRECTORY, the structure
// found at the export data directory's RVA. Every public symbol a DLL offers
// to its importers is reachable through the three parallel arrays this
// header points at: AddressOfFunctions, AddressOfNames and
// AddressOfNameOrdinals.
type ImageExportDirectory struct {
	// Reserved, must be 0.
	Characteristics uint32 `json:"characteristics"`

	// The time and date that the export data was created.
	TimeDateStamp uint32 `json:"time_date_stamp"`

	// The major version number. The major and minor version numbers can be
	// set by the user.
	MajorVersion uint16 `json:"major_version"`

	// The minor version number.
	MinorVersion uint16 `json:"minor_version"`

	// The address of the ASCII string that contains the name of the DLL.
	// This address is relative to the image base.
	Name uint32 `json:"name"`

	// The starting ordinal number for exports in this image. This field
	// specifies the starting ordinal number for the export address table.
	// It is usually set to 1.
	Base uint32 `json:"base"`

	// The number of entries in the export address table.
	NumberOfFunctions uint32 `json:"number_of_functions"`

	// The number of entries in the name pointer table. This is also the
	// number of entries in the ordinal table.
	NumberOfNames uint32 `json:"number_of_names"`

	// The address of the export address table, relative to the image base.
	AddressOfFunctions uint32 `json:"address_of_functions"`

	// The address of the export name pointer table, relative to the image
	// base. The table size is given by NumberOfNames.
	AddressOfNames uint32 `json:"address_of_names"`

	// The address of the ordinal table, relative to the image base.
	AddressOfNameOrdinals uint32 `json:"address_of_name_ordinals"`
}

// ExportFunction represents an exported function, resolved by ordinal and,
// when present, by name. A Forwarder is set when the function RVA points
// inside the export directory itself: instead of code, it holds an ASCII
// string of the form "DLLName.ExportName" naming where the symbol actually
// lives.
type ExportFunction struct {
	// The symbol's ordinal, counted from the directory's Base.
	Ordinal uint32 `json:"ordinal"`

	// The RVA of the exported symbol, relative to the image base, when this
	// export is not a forwarder.
	FunctionRVA uint32 `json:"function_rva"`

	// The RVA of the ASCII name string for this export, 0 when the export
	// is ordinal-only.
	NameRVA uint32 `json:"name_rva"`

	// The decoded ASCII name, empty when the export is ordinal-only.
	Name string `json:"name"`

	// Set to "DLLName.ExportName" when this entry forwards to another
	// module instead of defining code of its own.
	Forwarder string `json:"forwarder,omitempty"`

	// The RVA the forwarder string was read from. Zero when Forwarder is
	// empty.
	ForwarderRVA uint32 `json:"forwarder_rva,omitempty"`
}

// Export wraps the raw export directory header, the name of the module as
// it self-identifies, and the resolved list of exported functions.
type Export struct {
	Struct    ImageExportDirectory `json:"struct"`
	Name      string               `json:"name"`
	Functions []ExportFunction     `json:"functions"`
}

// parseExportDirectory parses the export directory, walking the three
// parallel tables (functions, names, name ordinals) into a single list of
// ExportFunction entries indexed by ordinal. A function RVA that falls
// inside [rva, rva+size) names a forwarder rather than code, per the PE
// specification, and is resolved to its "Module.Export" string instead.
func (pe *File) parseExportDirectory(rva, size uint32) error {

	exportDir := ImageExportDirectory{}
	exportDirSize := uint32(binary.Size(exportDir))
	offset := pe.GetOffsetFromRva(rva)
	err := pe.structUnpack(&exportDir, offset, exportDirSize)
	if err != nil {
		return err
	}

	startRVA := rva
	endRVA := rva + size

	moduleName := pe.getStringAtRVA(exportDir.Name, maxDllLength)

	functions := make([]ExportFunction, exportDir.NumberOfFunctions)
	for i := uint32(0); i < exportDir.NumberOfFunctions; i++ {
		functionOffset := pe.GetOffsetFromRva(exportDir.AddressOfFunctions + i*4)
		functionRVA, err := pe.ReadUint32(functionOffset)
		if err != nil {
			break
		}

		fn := ExportFunction{
			Ordinal:     exportDir.Base + i,
			FunctionRVA: functionRVA,
		}

		// A function RVA landing inside the export directory itself is a
		// forwarder: its bytes are an ASCII "Module.Export" string, not code.
		if functionRVA >= startRVA && functionRVA < endRVA {
			fn.Forwarder = pe.getStringAtRVA(functionRVA, maxExportNameLength)
			fn.ForwarderRVA = functionRVA
			fn.FunctionRVA = 0
		}

		functions[i] = fn
	}

	for i := uint32(0); i < exportDir.NumberOfNames; i++ {
		nameRVAOffset := pe.GetOffsetFromRva(exportDir.AddressOfNames + i*4)
		nameRVA, err := pe.ReadUint32(nameRVAOffset)
		if err != nil {
			break
		}

		ordinalOffset := pe.GetOffsetFromRva(exportDir.AddressOfNameOrdinals + i*2)
		nameOrdinalIndex, err := pe.ReadUint16(ordinalOffset)
		if err != nil {
			break
		}

		if uint32(nameOrdinalIndex) >= exportDir.NumberOfFunctions {
			continue
		}

		name := pe.getStringAtRVA(nameRVA, maxExportNameLength)
		if !IsValidFunctionName(name) {
			continue
		}

		functions[nameOrdinalIndex].Name = name
		functions[nameOrdinalIndex].NameRVA = nameRVA
	}

	pe.Export = Export{
		Struct:    exportDir,
		Name:      moduleName,
		Functions: functions,
	}
	if len(functions) > 0 {
		pe.HasExport = true
	}

	return nil
}
