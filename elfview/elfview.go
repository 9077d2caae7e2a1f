// This file is part of GenFw.
//
// GenFw is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// GenFw is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with GenFw.  If not, see <https://www.gnu.org/licenses/>.

package elfview

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// File is the parsed view of an ELF image.
type File struct {
	ef   *elf.File
	data []byte

	// header fields
	Class   elf.Class
	Machine elf.Machine
	Type    elf.Type
	Entry   uint64

	// Sections in the order of the section header table. index zero is the
	// null section
	Sections []*elf.Section

	// Progs is empty if the image has no program header table
	Progs []*elf.Prog

	// symbol tables are decoded on first use and keyed by the index of the
	// symbol table section
	symbols map[int][]elf.Symbol
}

// Is64 returns true if the image is ELF64.
func (f *File) Is64() bool {
	return f.Class == elf.ELFCLASS64
}

// Parse the data as an ELF image. The identification bytes and the header
// fields that decide whether the image can be converted are checked before
// the rest of the image is parsed.
func Parse(data []byte) (*File, error) {
	if len(data) < elf.EI_NIDENT {
		return nil, curated.Errorf(faults.Format, "file is too short to be an ELF image")
	}
	if !bytes.Equal(data[:4], []byte(elf.ELFMAG)) {
		return nil, curated.Errorf(faults.Format, "bad ELF magic")
	}

	switch elf.Class(data[elf.EI_CLASS]) {
	case elf.ELFCLASS32, elf.ELFCLASS64:
	default:
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("unrecognised class (%v)", elf.Class(data[elf.EI_CLASS])))
	}

	if elf.Data(data[elf.EI_DATA]) != elf.ELFDATA2LSB {
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("only little-endian images are supported (%v)", elf.Data(data[elf.EI_DATA])))
	}

	if elf.Version(data[elf.EI_VERSION]) != elf.EV_CURRENT {
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("unrecognised ELF version (%v)", elf.Version(data[elf.EI_VERSION])))
	}

	ef, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, curated.Errorf(faults.Format, err)
	}

	switch ef.Type {
	case elf.ET_EXEC, elf.ET_DYN:
	default:
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("unsupported object type (%v)", ef.Type))
	}

	f := &File{
		ef:       ef,
		data:     data,
		Class:    ef.Class,
		Machine:  ef.Machine,
		Type:     ef.Type,
		Entry:    ef.Entry,
		Sections: ef.Sections,
		Progs:    ef.Progs,
		symbols:  make(map[int][]elf.Symbol),
	}

	return f, nil
}

// Section returns the section with the index. The index is bounds checked.
func (f *File) Section(idx int) (*elf.Section, error) {
	if idx < 0 || idx >= len(f.Sections) {
		return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("section index %d outside of section table (%d entries)", idx, len(f.Sections)))
	}
	return f.Sections[idx], nil
}

// SectionData returns the bytes of the section in the image. The slice must
// not be modified. NOBITS sections have no data and an empty slice is
// returned.
func (f *File) SectionData(idx int) ([]byte, error) {
	sec, err := f.Section(idx)
	if err != nil {
		return nil, err
	}
	if sec.Type == elf.SHT_NOBITS {
		return []byte{}, nil
	}
	return f.fileBytes(sec.Offset, sec.FileSize, sec.Name)
}

// fileBytes returns a bounds checked view of the image.
func (f *File) fileBytes(offset uint64, size uint64, what string) ([]byte, error) {
	if offset > uint64(len(f.data)) || size > uint64(len(f.data))-offset {
		return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("%s (%#x bytes at %#x) extends beyond end of file (%#x bytes)", what, size, offset, len(f.data)))
	}
	return f.data[offset : offset+size : offset+size], nil
}

// Symbols returns the symbol table named by the sh_link field of a relocation
// section. Index zero of the ELF symbol table (the null symbol) is not
// included so symbol N is at index N-1 of the returned slice.
func (f *File) Symbols(relsec int) ([]elf.Symbol, error) {
	sec, err := f.Section(relsec)
	if err != nil {
		return nil, err
	}

	link := int(sec.Link)
	if syms, ok := f.symbols[link]; ok {
		return syms, nil
	}

	symsec, err := f.Section(link)
	if err != nil {
		return nil, err
	}

	var syms []elf.Symbol
	switch symsec.Type {
	case elf.SHT_SYMTAB:
		syms, err = f.ef.Symbols()
	case elf.SHT_DYNSYM:
		syms, err = f.ef.DynamicSymbols()
	default:
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("%s links to %s which is not a symbol table", sec.Name, symsec.Name))
	}
	if err != nil {
		return nil, curated.Errorf(faults.Format, err)
	}

	f.symbols[link] = syms
	return syms, nil
}

// Symbol returns symbol idx from the symbol table used by the relocation
// section. Symbol zero is the null symbol and is returned as an undefined
// symbol with no name.
func (f *File) Symbol(relsec int, idx uint32) (elf.Symbol, error) {
	if idx == 0 {
		return elf.Symbol{Section: elf.SHN_UNDEF}, nil
	}
	syms, err := f.Symbols(relsec)
	if err != nil {
		return elf.Symbol{}, err
	}
	if int(idx) > len(syms) {
		return elf.Symbol{}, curated.Errorf(faults.Bounds, fmt.Sprintf("symbol index %d outside of symbol table (%d entries)", idx, len(syms)+1))
	}
	return syms[idx-1], nil
}

// LookupSymbol searches the static symbol table for the named symbol. Returns
// false if there is no symbol table or no symbol with the name.
func (f *File) LookupSymbol(name string) (elf.Symbol, bool) {
	syms, err := f.ef.Symbols()
	if err != nil {
		return elf.Symbol{}, false
	}
	for _, s := range syms {
		if s.Name == name {
			return s, true
		}
	}
	return elf.Symbol{}, false
}

// Bytes returns count bytes of the file at the virtual address, as found in
// the section containing the address. The section must have data in the file.
func (f *File) Bytes(secIdx int, addr uint64, count uint64) ([]byte, error) {
	sec, err := f.Section(secIdx)
	if err != nil {
		return nil, err
	}
	if sec.Type == elf.SHT_NOBITS {
		return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("%s has no data in the file", sec.Name))
	}
	if addr < sec.Addr || count > sec.Size || addr-sec.Addr > sec.Size-count {
		return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("%#x bytes at %#x outside of section %s", count, addr, sec.Name))
	}
	data, err := f.SectionData(secIdx)
	if err != nil {
		return nil, err
	}
	off := addr - sec.Addr
	if off+count > uint64(len(data)) {
		return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("%#x bytes at %#x outside of section data %s", count, addr, sec.Name))
	}
	return data[off : off+count], nil
}
