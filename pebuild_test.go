// Copyright 2021 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"bytes"
	"encoding/binary"
)

// No binary fixtures ship alongside this package, so every test in this
// package builds the smallest valid PE32+ image that exercises the
// structure under test, byte by byte, instead of loading one from disk.
//
// Layout used throughout: a single .text section whose VirtualAddress and
// PointerToRawData are both 0x1000, with SectionAlignment 0x1000 and
// FileAlignment 0x200. Both values are already aligned multiples, so
// GetOffsetFromRva resolves to the identity function for any RVA at or
// past 0x1000 - an RVA used below can be read directly as a byte offset
// into the returned buffer.

const (
	testSectionRVA = 0x1000
	testImageBase  = 0x140000000
)

// peBuilder assembles a minimal PE32+ image in memory.
type peBuilder struct {
	section    []byte
	dataDirs   [16]DataDirectory
	entryPoint uint32
}

func newPEBuilder() *peBuilder {
	return &peBuilder{
		section: make([]byte, 0, 0x400),
	}
}

// place appends data to the section payload, padding as needed, and
// returns the RVA at which it was written.
func (b *peBuilder) place(data []byte) uint32 {
	rva := testSectionRVA + uint32(len(b.section))
	b.section = append(b.section, data...)
	return rva
}

// placeString writes a NUL-terminated ASCII string and returns its RVA.
func (b *peBuilder) placeString(s string) uint32 {
	return b.place(append([]byte(s), 0))
}

func (b *peBuilder) align(n uint32) {
	for uint32(len(b.section))%n != 0 {
		b.section = append(b.section, 0)
	}
}

func (b *peBuilder) setDataDirectory(entry ImageDirectoryEntry, rva, size uint32) {
	b.dataDirs[entry] = DataDirectory{VirtualAddress: rva, Size: size}
}

// build serializes the DOS header, NT header (PE32+), a single section
// header and the accumulated section payload into one byte slice.
func (b *peBuilder) build() []byte {
	var buf bytes.Buffer

	dos := ImageDOSHeader{
		Magic:                 ImageDOSSignature,
		AddressOfNewEXEHeader: 0x80,
	}
	binary.Write(&buf, binary.LittleEndian, &dos)
	buf.Write(make([]byte, 0x80-buf.Len()))

	buf.Write([]byte{'P', 'E', 0, 0})

	fileHeader := ImageFileHeader{
		Machine:              ImageFileHeaderMachineType(ImageFileMachineAMD64),
		NumberOfSections:     1,
		SizeOfOptionalHeader: uint16(binary.Size(ImageOptionalHeader64{})),
		Characteristics:      ImageFileHeaderCharacteristicsType(ImageFileExecutableImage | ImageFileLargeAddressAware),
	}
	binary.Write(&buf, binary.LittleEndian, &fileHeader)

	opt := ImageOptionalHeader64{
		Magic:               ImageNtOptionalHeader64Magic,
		AddressOfEntryPoint: b.entryPoint,
		BaseOfCode:          testSectionRVA,
		ImageBase:           testImageBase,
		SectionAlignment:    0x1000,
		FileAlignment:       0x200,
		SizeOfImage:         testSectionRVA + align0x1000(uint32(len(b.section))),
		SizeOfHeaders:       testSectionRVA,
		Subsystem:           ImageOptionalHeaderSubsystemType(ImageSubsystemWindowsCUI),
		NumberOfRvaAndSizes: uint32(ImageNumberOfDirectoryEntries),
		DataDirectory:       b.dataDirs,
	}
	binary.Write(&buf, binary.LittleEndian, &opt)

	sectionName := [8]byte{'.', 't', 'e', 'x', 't'}
	sec := ImageSectionHeader{
		Name:             sectionName,
		VirtualSize:      uint32(len(b.section)),
		VirtualAddress:   testSectionRVA,
		SizeOfRawData:    align0x200(uint32(len(b.section))),
		PointerToRawData: testSectionRVA,
		Characteristics:  ImageScnCntCode | ImageScnMemExecute | ImageScnMemRead,
	}
	binary.Write(&buf, binary.LittleEndian, &sec)

	// Pad the header region up to the section's PointerToRawData.
	if uint32(buf.Len()) < testSectionRVA {
		buf.Write(make([]byte, testSectionRVA-uint32(buf.Len())))
	}

	buf.Write(b.section)
	// Pad the file out to the declared SizeOfRawData.
	for uint32(buf.Len()) < testSectionRVA+align0x200(uint32(len(b.section))) {
		buf.WriteByte(0)
	}

	return buf.Bytes()
}

func align0x1000(n uint32) uint32 {
	if n%0x1000 == 0 {
		return n
	}
	return (n/0x1000 + 1) * 0x1000
}

func align0x200(n uint32) uint32 {
	if n%0x200 == 0 {
		return n
	}
	return (n/0x200 + 1) * 0x200
}

// parseBuilt parses the built image with the given options and returns the
// file together with any error from NewBytes or Parse.
func parseBuilt(data []byte, opts *Options) (*File, error) {
	file, err := NewBytes(data, opts)
	if err != nil {
		return nil, err
	}
	return file, file.Parse()
}

// --- import table helpers ---

// addImport writes an import descriptor for dllName importing the given
// function names (plain, by name) into the section payload.
func (b *peBuilder) addImport(dllName string, funcNames []string) {
	// Hint/name entries, one per imported function.
	thunkRVAs := make([]uint32, len(funcNames))
	for i, name := range funcNames {
		b.align(2)
		hintName := append([]byte{0, 0}, append([]byte(name), 0)...)
		thunkRVAs[i] = b.place(hintName)
	}

	b.align(8)
	iltRVA := uint32(len(b.section)) + testSectionRVA
	for _, rva := range thunkRVAs {
		var thunk ImageThunkData64
		thunk.AddressOfData = uint64(rva)
		var tmp bytes.Buffer
		binary.Write(&tmp, binary.LittleEndian, &thunk)
		b.place(tmp.Bytes())
	}
	b.place(make([]byte, 8)) // null terminator

	iatRVA := uint32(len(b.section)) + testSectionRVA
	for _, rva := range thunkRVAs {
		var thunk ImageThunkData64
		thunk.AddressOfData = uint64(rva)
		var tmp bytes.Buffer
		binary.Write(&tmp, binary.LittleEndian, &thunk)
		b.place(tmp.Bytes())
	}
	b.place(make([]byte, 8))

	nameRVA := b.placeString(dllName)

	b.align(8)
	descRVA := uint32(len(b.section)) + testSectionRVA
	desc := ImageImportDescriptor{
		OriginalFirstThunk: iltRVA,
		Name:               nameRVA,
		FirstThunk:         iatRVA,
	}
	var tmp bytes.Buffer
	binary.Write(&tmp, binary.LittleEndian, &desc)
	b.place(tmp.Bytes())
	b.place(make([]byte, uint32(binary.Size(desc)))) // null terminator descriptor

	b.setDataDirectory(ImageDirectoryEntryImport, descRVA, uint32(binary.Size(desc))*2)
}

// addImportOrdinal writes a single import-by-ordinal descriptor for dllName.
func (b *peBuilder) addImportOrdinal(dllName string, ordinal uint16) {
	b.align(8)
	iltRVA := uint32(len(b.section)) + testSectionRVA
	var thunk ImageThunkData64
	thunk.AddressOfData = 0x8000000000000000 | uint64(ordinal)
	var tmp bytes.Buffer
	binary.Write(&tmp, binary.LittleEndian, &thunk)
	b.place(tmp.Bytes())
	b.place(make([]byte, 8)) // null terminator

	iatRVA := uint32(len(b.section)) + testSectionRVA
	tmp.Reset()
	binary.Write(&tmp, binary.LittleEndian, &thunk)
	b.place(tmp.Bytes())
	b.place(make([]byte, 8))

	nameRVA := b.placeString(dllName)

	b.align(8)
	descRVA := uint32(len(b.section)) + testSectionRVA
	desc := ImageImportDescriptor{
		OriginalFirstThunk: iltRVA,
		Name:               nameRVA,
		FirstThunk:         iatRVA,
	}
	tmp.Reset()
	binary.Write(&tmp, binary.LittleEndian, &desc)
	b.place(tmp.Bytes())
	b.place(make([]byte, uint32(binary.Size(desc))))

	b.setDataDirectory(ImageDirectoryEntryImport, descRVA, uint32(binary.Size(desc))*2)
}

// addExport writes an export directory exposing the given named functions,
// each pointing back at a byte inside the section (a plausible function
// body stand-in).
func (b *peBuilder) addExport(moduleName string, funcNames []string) {
	b.align(8)
	bodyRVA := b.place([]byte{0x90, 0x90, 0xC3}) // a harmless ret stub

	nameRVAs := make([]uint32, len(funcNames))
	for i, n := range funcNames {
		nameRVAs[i] = b.placeString(n)
	}
	dllNameRVA := b.placeString(moduleName)

	b.align(4)
	eatRVA := uint32(len(b.section)) + testSectionRVA
	for range funcNames {
		b.place(u32le(bodyRVA))
	}

	enptRVA := uint32(len(b.section)) + testSectionRVA
	for _, rva := range nameRVAs {
		b.place(u32le(rva))
	}

	eotRVA := uint32(len(b.section)) + testSectionRVA
	for i := range funcNames {
		b.place(u16le(uint16(i)))
	}

	b.align(8)
	dirRVA := uint32(len(b.section)) + testSectionRVA
	dir := ImageExportDirectory{
		Name:                  dllNameRVA,
		Base:                  1,
		NumberOfFunctions:     uint32(len(funcNames)),
		NumberOfNames:         uint32(len(funcNames)),
		AddressOfFunctions:    eatRVA,
		AddressOfNames:        enptRVA,
		AddressOfNameOrdinals: eotRVA,
	}
	var tmp bytes.Buffer
	binary.Write(&tmp, binary.LittleEndian, &dir)
	b.place(tmp.Bytes())

	b.setDataDirectory(ImageDirectoryEntryExport, dirRVA, uint32(binary.Size(dir)))
}

// addExportForwarder writes an export directory with a single ordinal-1
// entry whose function RVA lands inside the directory's own byte range,
// marking it as a forwarder to another module's export.
func (b *peBuilder) addExportForwarder(moduleName, forwarder string) {
	b.align(8)
	dirRVA := uint32(len(b.section)) + testSectionRVA
	structSize := uint32(binary.Size(ImageExportDirectory{}))
	b.place(make([]byte, structSize)) // patched once real field values are known

	forwarderRVA := b.placeString(forwarder)
	dllNameRVA := b.placeString(moduleName)

	b.align(4)
	eatRVA := uint32(len(b.section)) + testSectionRVA
	b.place(u32le(forwarderRVA))
	enptRVA := uint32(len(b.section)) + testSectionRVA

	dirSize := uint32(len(b.section)) + testSectionRVA - dirRVA

	dir := ImageExportDirectory{
		Name:                  dllNameRVA,
		Base:                  1,
		NumberOfFunctions:     1,
		NumberOfNames:         0,
		AddressOfFunctions:    eatRVA,
		AddressOfNames:        enptRVA,
		AddressOfNameOrdinals: enptRVA,
	}
	var tmp bytes.Buffer
	binary.Write(&tmp, binary.LittleEndian, &dir)
	copy(b.section[dirRVA-testSectionRVA:], tmp.Bytes())

	b.setDataDirectory(ImageDirectoryEntryExport, dirRVA, dirSize)
}

// addDelayImport writes a new-format (Attributes=1) delay-load descriptor
// for dllName importing funcNames by name.
func (b *peBuilder) addDelayImport(dllName string, funcNames []string) {
	thunkRVAs := make([]uint32, len(funcNames))
	for i, name := range funcNames {
		b.align(2)
		hintName := append([]byte{0, 0}, append([]byte(name), 0)...)
		thunkRVAs[i] = b.place(hintName)
	}

	b.align(8)
	intRVA := uint32(len(b.section)) + testSectionRVA
	for _, rva := range thunkRVAs {
		b.place(u64le(uint64(rva)))
	}
	b.place(make([]byte, 8))

	iatRVA := uint32(len(b.section)) + testSectionRVA
	for _, rva := range thunkRVAs {
		b.place(u64le(uint64(rva)))
	}
	b.place(make([]byte, 8))

	nameRVA := b.placeString(dllName)

	b.align(8)
	descRVA := uint32(len(b.section)) + testSectionRVA
	desc := ImageDelayImportDescriptor{
		Attributes:            1,
		Name:                  nameRVA,
		ImportAddressTableRVA: iatRVA,
		ImportNameTableRVA:    intRVA,
	}
	var tmp bytes.Buffer
	binary.Write(&tmp, binary.LittleEndian, &desc)
	b.place(tmp.Bytes())
	b.place(make([]byte, uint32(binary.Size(desc))))

	b.setDataDirectory(ImageDirectoryEntryDelayImport, descRVA, uint32(binary.Size(desc))*2)
}

// addBoundImport writes a bound-import descriptor for dllName with no
// forwarder refs. Offsets inside the directory are counted from the
// directory's own start, per IMAGE_BOUND_IMPORT_DESCRIPTOR.
func (b *peBuilder) addBoundImport(dllName string) {
	b.align(4)
	dirRVA := uint32(len(b.section)) + testSectionRVA

	descSize := uint32(binary.Size(ImageBoundImportDescriptor{}))

	desc := ImageBoundImportDescriptor{
		OffsetModuleName:            uint16(descSize * 2), // right after the null-terminator descriptor
		NumberOfModuleForwarderRefs: 0,
	}

	var tmp bytes.Buffer
	binary.Write(&tmp, binary.LittleEndian, &desc)
	b.place(tmp.Bytes())
	b.place(make([]byte, descSize)) // null terminator descriptor
	b.placeString(dllName)

	b.setDataDirectory(ImageDirectoryEntryBoundImport, dirRVA, descSize*2)
}

func u64le(v uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, v)
	return out
}

func u32le(v uint32) []byte {
	out := make([]byte, 4)
	binary.LittleEndian.PutUint32(out, v)
	return out
}

func u16le(v uint16) []byte {
	out := make([]byte, 2)
	binary.LittleEndian.PutUint16(out, v)
	return out
}
