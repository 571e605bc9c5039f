package features

import (
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"strings"
)

// StructuralInfo holds the executable-container metadata used by the
// structural feature columns.
type StructuralInfo struct {
	SectionCount     int
	ImportCount      int
	ExportCount      int
	HasDebug         bool
	SectionEntropies []float64
}

// PackedRatio is the fraction of sections whose entropy exceeds the
// high-entropy threshold, a packing/encryption heuristic.
func (s StructuralInfo) PackedRatio() float64 {
	if s.SectionCount == 0 {
		return 0
	}
	return float64(countHighEntropy(s.SectionEntropies, highEntropyThreshold)) / float64(s.SectionCount)
}

// StructuralParser extracts container metadata from a raw buffer.
// Implementations must be stateless and safe for concurrent use.
type StructuralParser interface {
	// Parse returns the structural info and true when the buffer is a
	// container the parser understands, or ok=false otherwise.
	Parse(buf []byte) (info StructuralInfo, ok bool)
	// Available reports whether structural parsing is enabled at all.
	// When false, structural feature columns are non-discriminative for
	// the whole batch and carry the sentinel value.
	Available() bool
}

// ExeParser parses PE and ELF containers.
type ExeParser struct{}

// NoStructural disables structural parsing; all structural fields are
// sentineled and the capability flag is off.
type NoStructural struct{}

// Available always reports true for ExeParser.
func (ExeParser) Available() bool { return true }

// Available always reports false for NoStructural.
func (NoStructural) Available() bool { return false }

// Parse never recognizes anything.
func (NoStructural) Parse([]byte) (StructuralInfo, bool) {
	return StructuralInfo{}, false
}

// Parse dispatches on the leading magic bytes. Malformed containers are
// reported as not-ok rather than as errors; the extractor sentinels the
// corresponding fields.
func (ExeParser) Parse(buf []byte) (StructuralInfo, bool) {
	switch {
	case bytes.HasPrefix(buf, []byte{'M', 'Z'}):
		return parsePE(buf)
	case bytes.HasPrefix(buf, []byte{0x7f, 'E', 'L', 'F'}):
		return parseELF(buf)
	default:
		return StructuralInfo{}, false
	}
}

func parsePE(buf []byte) (StructuralInfo, bool) {
	f, err := pe.NewFile(bytes.NewReader(buf))
	if err != nil {
		return StructuralInfo{}, false
	}
	defer f.Close()

	info := StructuralInfo{SectionCount: len(f.Sections)}

	for _, sec := range f.Sections {
		data, err := sec.Data()
		if err != nil {
			continue
		}
		info.SectionEntropies = append(info.SectionEntropies, Entropy(data))
	}

	if syms, err := f.ImportedSymbols(); err == nil {
		info.ImportCount = len(syms)
	}
	info.ExportCount = peExportCount(f)
	info.HasDebug = peDataDirSize(f, pe.IMAGE_DIRECTORY_ENTRY_DEBUG) > 0

	return info, true
}

func parseELF(buf []byte) (StructuralInfo, bool) {
	f, err := elf.NewFile(bytes.NewReader(buf))
	if err != nil {
		return StructuralInfo{}, false
	}
	defer f.Close()

	info := StructuralInfo{SectionCount: len(f.Sections)}

	for _, sec := range f.Sections {
		if sec.Type == elf.SHT_NOBITS {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			continue
		}
		info.SectionEntropies = append(info.SectionEntropies, Entropy(data))
		if strings.HasPrefix(sec.Name, ".debug") {
			info.HasDebug = true
		}
	}

	if syms, err := f.ImportedSymbols(); err == nil {
		info.ImportCount = len(syms)
	}
	if syms, err := f.DynamicSymbols(); err == nil {
		// Defined dynamic symbols are exported entry points.
		for _, s := range syms {
			if s.Section != elf.SHN_UNDEF {
				info.ExportCount++
			}
		}
	}

	return info, true
}

// peDataDirSize returns the size of the given optional-header data
// directory, or 0 when the header is missing or too short.
func peDataDirSize(f *pe.File, index int) uint32 {
	var dirs []pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dirs = oh.DataDirectory[:]
	case *pe.OptionalHeader64:
		dirs = oh.DataDirectory[:]
	default:
		return 0
	}
	if index >= len(dirs) {
		return 0
	}
	return dirs[index].Size
}

// peExportCount reads NumberOfFunctions out of the export directory.
// debug/pe does not parse the export table, so we locate the directory's
// RVA inside a section and read the count field directly.
func peExportCount(f *pe.File) int {
	var dir pe.DataDirectory
	switch oh := f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	case *pe.OptionalHeader64:
		dir = oh.DataDirectory[pe.IMAGE_DIRECTORY_ENTRY_EXPORT]
	default:
		return 0
	}
	if dir.VirtualAddress == 0 || dir.Size < 40 {
		return 0
	}

	for _, sec := range f.Sections {
		if dir.VirtualAddress < sec.VirtualAddress ||
			dir.VirtualAddress >= sec.VirtualAddress+sec.VirtualSize {
			continue
		}
		data, err := sec.Data()
		if err != nil {
			return 0
		}
		off := dir.VirtualAddress - sec.VirtualAddress
		// NumberOfFunctions sits 20 bytes into IMAGE_EXPORT_DIRECTORY.
		if int(off)+24 > len(data) {
			return 0
		}
		return int(binary.LittleEndian.Uint32(data[off+20 : off+24]))
	}
	return 0
}
