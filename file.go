// Copyright 2018 Saferwall. All rights reserved.
// Use of this source code is governed by Apache v2 license
// license that can be found in the LICENSE file.

package pe

import (
	"errors"
	"os"

	mmap "github.com/edsrzf/mmap-go"

	"github.com/ntdeps/depwalk/internal/log"
)

// FileInfo records which parts of a PE file were actually present and
// successfully parsed.
type FileInfo struct {
	Is32        bool
	Is64        bool
	HasDOSHdr   bool
	HasNTHdr    bool
	HasSections bool
	HasExport   bool
	HasImport   bool
	HasBoundImp bool
	HasIAT      bool
	HasDelayImp bool
}

// A File represents an open PE file.
type File struct {
	DOSHeader    ImageDOSHeader              `json:"dos_header,omitempty"`
	NtHeader     ImageNtHeader               `json:"nt_header,omitempty"`
	Sections     []Section                   `json:"sections,omitempty"`
	Imports      []Import                    `json:"imports,omitempty"`
	Export       Export                      `json:"export,omitempty"`
	DelayImports []DelayImport               `json:"delay_imports,omitempty"`
	BoundImports []BoundImportDescriptorData `json:"bound_imports,omitempty"`
	IAT          []IATEntry                  `json:"iat,omitempty"`
	Anomalies    []string                    `json:"anomalies,omitempty"`
	Header       []byte
	data         mmap.MMap
	FileInfo
	size   uint32
	f      *os.File
	opts   *Options
	logger *log.Helper
}

// Options for Parsing.
type Options struct {

	// Parse only the PE header and do not parse data directories, by default (false).
	Fast bool

	// Includes section entropy, by default (false).
	SectionEntropy bool

	// A custom logger.
	Logger log.Logger
}

func newLogger(opts *Options) *log.Helper {
	if opts.Logger == nil {
		stdLogger := log.NewStdLogger(os.Stdout)
		return log.NewHelper(log.NewFilter(stdLogger, log.FilterLevel(log.LevelError)))
	}
	return log.NewHelper(opts.Logger)
}

// New instantiates a file instance with options given a file name.
func New(name string, opts *Options) (*File, error) {

	f, err := os.Open(name)
	if err != nil {
		return nil, err
	}

	// Memory map the file instead of using read/write.
	data, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		f.Close()
		return nil, err
	}

	file := File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}
	file.logger = newLogger(file.opts)

	file.data = data
	file.size = uint32(len(file.data))
	file.f = f
	return &file, nil
}

// NewBytes instantiates a file instance with options given a memory buffer.
func NewBytes(data []byte, opts *Options) (*File, error) {

	file := File{}
	if opts != nil {
		file.opts = opts
	} else {
		file.opts = &Options{}
	}
	file.logger = newLogger(file.opts)

	file.data = data
	file.size = uint32(len(file.data))
	return &file, nil
}

// Close closes the File.
func (pe *File) Close() error {
	if pe.data != nil {
		_ = pe.data.Unmap()
	}

	if pe.f != nil {
		return pe.f.Close()
	}
	return nil
}

// Parse performs the file parsing for a PE binary. It stops at the first
// structural error (a malformed DOS, NT or section header); a data directory
// that fails to parse is logged and the remaining directories are still
// parsed, since a resolver walking a large dependency tree needs to keep
// going even when one directory in one module is corrupt. A panic while
// parsing a directory is recovered and makes Parse return an error once
// every directory has been tried.
func (pe *File) Parse() error {

	// check for the smallest PE size.
	if len(pe.data) < TinyPESize {
		return ErrInvalidPESize
	}

	// Parse the DOS header.
	err := pe.ParseDOSHeader()
	if err != nil {
		return err
	}

	// Parse the NT header.
	err = pe.ParseNTHeader()
	if err != nil {
		return err
	}

	// Parse the Section Header.
	err = pe.ParseSectionHeader()
	if err != nil {
		return err
	}

	// In fast mode, do not parse data directories.
	if pe.opts.Fast {
		return nil
	}

	// Parse the Data Directory entries.
	return pe.ParseDataDirectories()
}

// ParseDataDirectories parses the data directories that matter to a
// dependency walker: imports, delay-imports, bound-imports, the IAT and
// exports. The DataDirectory is an array of 16 structures; entries that do
// not name a directory this package understands are skipped.
func (pe *File) ParseDataDirectories() error {

	foundErr := false
	oh32 := ImageOptionalHeader32{}
	oh64 := ImageOptionalHeader64{}

	switch pe.Is64 {
	case true:
		oh64 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader64)
	case false:
		oh32 = pe.NtHeader.OptionalHeader.(ImageOptionalHeader32)
	}

	// Maps data directory index to the function which parses that directory.
	funcMaps := map[ImageDirectoryEntry](func(uint32, uint32) error){
		ImageDirectoryEntryExport:      pe.parseExportDirectory,
		ImageDirectoryEntryImport:      pe.parseImportDirectory,
		ImageDirectoryEntryBoundImport: pe.parseBoundImportDirectory,
		ImageDirectoryEntryIAT:         pe.parseIATDirectory,
		ImageDirectoryEntryDelayImport: pe.parseDelayImportDirectory,
	}

	// Iterate over data directories and call the appropriate function.
	for entryIndex := ImageDirectoryEntry(0); entryIndex < ImageNumberOfDirectoryEntries; entryIndex++ {

		var va, size uint32
		switch pe.Is64 {
		case true:
			dirEntry := oh64.DataDirectory[entryIndex]
			va = dirEntry.VirtualAddress
			size = dirEntry.Size
		case false:
			dirEntry := oh32.DataDirectory[entryIndex]
			va = dirEntry.VirtualAddress
			size = dirEntry.Size
		}

		if va == 0 {
			continue
		}

		// the last entry in the data directories is reserved and must be zero.
		if entryIndex == ImageDirectoryEntryReserved {
			pe.Anomalies = append(pe.Anomalies, AnoReservedDataDirectoryEntry)
			continue
		}

		parseFn, known := funcMaps[entryIndex]
		if !known {
			continue
		}

		func() {
			// keep parsing data directories even though some entries fail.
			defer func() {
				if e := recover(); e != nil {
					pe.logger.Errorf("unhandled exception when parsing data directory %s, reason: %v",
						entryIndex.String(), e)
					foundErr = true
				}
			}()

			err := parseFn(va, size)
			if err != nil {
				pe.logger.Warnf("failed to parse data directory %s, reason: %v",
					entryIndex.String(), err)
			}
		}()
	}

	if foundErr {
		return errors.New("data directory parsing failed")
	}
	return nil
}
