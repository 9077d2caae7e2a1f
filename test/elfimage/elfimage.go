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

// Package elfimage builds small, well formed ELF images for use as test
// fixtures. Images are built from a list of sections, a list of symbols, any
// number of relocation sections and an optional list of segments:
//
//	b := elfimage.New(elf.ELFCLASS64, elf.EM_X86_64)
//	text := b.Text(".text", 0x1000, 16, code)
//	sym := b.AddSymbol("main", text, 0x1000)
//	b.AddRela(text, elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_X86_64_PC32), Sym: sym, Addend: -4})
//	b.Entry = 0x1000
//	data := b.Bytes()
//
// Section indexes returned by the builder are the indexes in the final image.
// The symbol table, string table and section name table are always the last
// three sections of the image.
package elfimage

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
)

// Section is a section to be added to the image.
type Section struct {
	Name    string
	Type    elf.SectionType
	Flags   elf.SectionFlag
	Addr    uint64
	Align   uint64
	Data    []byte
	Link    uint32
	Info    uint32
	Entsize uint64

	// Size is only used for SHT_NOBITS sections. For all other sections the
	// size is the length of Data
	Size uint64

	// link to the symbol table when the image is built
	linkSymtab bool
}

// Symbol is an entry in the symbol table.
type Symbol struct {
	Name    string
	Section int
	Value   uint64
	Size    uint64
	Info    uint8
}

// Rel is a relocation entry. The Addend field is ignored for REL sections.
type Rel struct {
	Offset uint64
	Type   uint32
	Sym    uint32
	Addend int64
}

// Prog is a segment. The data of the segment is placed in the file and the
// file offset and size of the program header are set accordingly.
type Prog struct {
	Type  elf.ProgType
	Flags elf.ProgFlag
	Vaddr uint64
	Memsz uint64
	Align uint64
	Data  []byte
}

// Builder collects the parts of an image.
type Builder struct {
	Class   elf.Class
	Machine elf.Machine
	Type    elf.Type
	Entry   uint64
	Flags   uint32

	sections []Section
	symbols  []Symbol
	progs    []Prog
}

// New is the preferred method of initialisation for the Builder type. The
// image type is ET_EXEC.
func New(class elf.Class, machine elf.Machine) *Builder {
	return &Builder{
		Class:   class,
		Machine: machine,
		Type:    elf.ET_EXEC,
	}
}

func (b *Builder) is64() bool {
	return b.Class == elf.ELFCLASS64
}

// AddSection adds a section and returns its index.
func (b *Builder) AddSection(s Section) int {
	b.sections = append(b.sections, s)
	return len(b.sections)
}

// Text adds an allocated, executable PROGBITS section.
func (b *Builder) Text(name string, addr uint64, align uint64, data []byte) int {
	return b.AddSection(Section{
		Name:  name,
		Type:  elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR,
		Addr:  addr,
		Align: align,
		Data:  data,
	})
}

// ROData adds an allocated, read-only PROGBITS section.
func (b *Builder) ROData(name string, addr uint64, align uint64, data []byte) int {
	return b.AddSection(Section{
		Name:  name,
		Type:  elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC,
		Addr:  addr,
		Align: align,
		Data:  data,
	})
}

// Data adds an allocated, writable PROGBITS section.
func (b *Builder) Data(name string, addr uint64, align uint64, data []byte) int {
	return b.AddSection(Section{
		Name:  name,
		Type:  elf.SHT_PROGBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_WRITE,
		Addr:  addr,
		Align: align,
		Data:  data,
	})
}

// BSS adds an allocated, writable NOBITS section.
func (b *Builder) BSS(name string, addr uint64, align uint64, size uint64) int {
	return b.AddSection(Section{
		Name:  name,
		Type:  elf.SHT_NOBITS,
		Flags: elf.SHF_ALLOC | elf.SHF_WRITE,
		Addr:  addr,
		Align: align,
		Size:  size,
	})
}

// AddSymbol adds a global symbol and returns its index in the symbol table.
func (b *Builder) AddSymbol(name string, section int, value uint64) uint32 {
	return b.AddSymbolEntry(Symbol{
		Name:    name,
		Section: section,
		Value:   value,
		Info:    elf.ST_INFO(elf.STB_GLOBAL, elf.STT_NOTYPE),
	})
}

// AddSymbolEntry adds a symbol and returns its index in the symbol table.
func (b *Builder) AddSymbolEntry(s Symbol) uint32 {
	b.symbols = append(b.symbols, s)
	return uint32(len(b.symbols))
}

// AddRela adds a RELA section for the target section and returns its index.
func (b *Builder) AddRela(target int, rels ...Rel) int {
	return b.addRelocations(target, true, rels)
}

// AddRel adds a REL section for the target section and returns its index.
func (b *Builder) AddRel(target int, rels ...Rel) int {
	return b.addRelocations(target, false, rels)
}

func (b *Builder) addRelocations(target int, rela bool, rels []Rel) int {
	name := ".rel"
	typ := elf.SHT_REL
	if rela {
		name = ".rela"
		typ = elf.SHT_RELA
	}
	if target > 0 && target <= len(b.sections) {
		name += b.sections[target-1].Name
	}

	data := b.EncodeRelocations(rela, rels...)
	return b.AddSection(Section{
		Name:       name,
		Type:       typ,
		Align:      8,
		Data:       data,
		Info:       uint32(target),
		Entsize:    uint64(len(data) / max(len(rels), 1)),
		linkSymtab: true,
	})
}

// EncodeRelocations returns the encoded relocation entries for the class of
// the image.
func (b *Builder) EncodeRelocations(rela bool, rels ...Rel) []byte {
	var buf bytes.Buffer
	for _, r := range rels {
		switch {
		case b.is64() && rela:
			binary.Write(&buf, binary.LittleEndian, elf.Rela64{Off: r.Offset, Info: elf.R_INFO(r.Sym, r.Type), Addend: r.Addend})
		case b.is64():
			binary.Write(&buf, binary.LittleEndian, elf.Rel64{Off: r.Offset, Info: elf.R_INFO(r.Sym, r.Type)})
		case rela:
			binary.Write(&buf, binary.LittleEndian, elf.Rela32{Off: uint32(r.Offset), Info: elf.R_INFO32(r.Sym, r.Type), Addend: int32(r.Addend)})
		default:
			binary.Write(&buf, binary.LittleEndian, elf.Rel32{Off: uint32(r.Offset), Info: elf.R_INFO32(r.Sym, r.Type)})
		}
	}
	return buf.Bytes()
}

// AddProg adds a segment.
func (b *Builder) AddProg(p Prog) {
	b.progs = append(b.progs, p)
}

// strtab is a string table under construction.
type strtab struct {
	buf bytes.Buffer
}

func newStrtab() *strtab {
	s := &strtab{}
	s.buf.WriteByte(0)
	return s
}

func (s *strtab) add(str string) uint32 {
	if str == "" {
		return 0
	}
	off := uint32(s.buf.Len())
	s.buf.WriteString(str)
	s.buf.WriteByte(0)
	return off
}

func align(v uint64, a uint64) uint64 {
	return (v + a - 1) &^ (a - 1)
}

// Bytes builds the image.
func (b *Builder) Bytes() []byte {
	// symbol table, string table and section names
	symtabIdx := len(b.sections) + 1
	strtabIdx := symtabIdx + 1
	shstrtabIdx := strtabIdx + 1

	strs := newStrtab()
	var symbuf bytes.Buffer
	if b.is64() {
		binary.Write(&symbuf, binary.LittleEndian, elf.Sym64{})
		for _, s := range b.symbols {
			binary.Write(&symbuf, binary.LittleEndian, elf.Sym64{
				Name:  strs.add(s.Name),
				Info:  s.Info,
				Shndx: uint16(s.Section),
				Value: s.Value,
				Size:  s.Size,
			})
		}
	} else {
		binary.Write(&symbuf, binary.LittleEndian, elf.Sym32{})
		for _, s := range b.symbols {
			binary.Write(&symbuf, binary.LittleEndian, elf.Sym32{
				Name:  strs.add(s.Name),
				Value: uint32(s.Value),
				Size:  uint32(s.Size),
				Info:  s.Info,
				Shndx: uint16(s.Section),
			})
		}
	}

	symentsize := uint64(elf.Sym32Size)
	if b.is64() {
		symentsize = elf.Sym64Size
	}

	sections := append([]Section{}, b.sections...)
	sections = append(sections,
		Section{Name: ".symtab", Type: elf.SHT_SYMTAB, Align: 8, Data: symbuf.Bytes(), Link: uint32(strtabIdx), Info: 1, Entsize: symentsize},
		Section{Name: ".strtab", Type: elf.SHT_STRTAB, Align: 1, Data: strs.buf.Bytes()},
	)

	names := newStrtab()
	nameOffsets := make([]uint32, len(sections)+1)
	for i, s := range sections {
		nameOffsets[i] = names.add(s.Name)
	}
	nameOffsets[len(sections)] = names.add(".shstrtab")
	sections = append(sections, Section{Name: ".shstrtab", Type: elf.SHT_STRTAB, Align: 1, Data: names.buf.Bytes()})

	var ehsize, phentsize, shentsize uint64
	if b.is64() {
		ehsize, phentsize, shentsize = 64, 56, 64
	} else {
		ehsize, phentsize, shentsize = 52, 32, 40
	}

	// file layout: header, program headers, section data, segment data,
	// section headers
	phoff := uint64(0)
	if len(b.progs) > 0 {
		phoff = ehsize
	}
	cursor := ehsize + phentsize*uint64(len(b.progs))

	offsets := make([]uint64, len(sections))
	for i, s := range sections {
		cursor = align(cursor, 8)
		offsets[i] = cursor
		if s.Type != elf.SHT_NOBITS {
			cursor += uint64(len(s.Data))
		}
	}

	progOffsets := make([]uint64, len(b.progs))
	for i, p := range b.progs {
		cursor = align(cursor, 8)
		progOffsets[i] = cursor
		cursor += uint64(len(p.Data))
	}

	shoff := align(cursor, 8)
	total := shoff + shentsize*uint64(len(sections)+1)

	out := make([]byte, total)
	w := &writer{out: out}

	// header
	var ident [elf.EI_NIDENT]byte
	copy(ident[:], elf.ELFMAG)
	ident[elf.EI_CLASS] = byte(b.Class)
	ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	if b.is64() {
		w.put(0, elf.Header64{
			Ident:     ident,
			Type:      uint16(b.Type),
			Machine:   uint16(b.Machine),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     b.Entry,
			Phoff:     phoff,
			Shoff:     shoff,
			Flags:     b.Flags,
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(len(b.progs)),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(len(sections) + 1),
			Shstrndx:  uint16(shstrtabIdx),
		})
	} else {
		w.put(0, elf.Header32{
			Ident:     ident,
			Type:      uint16(b.Type),
			Machine:   uint16(b.Machine),
			Version:   uint32(elf.EV_CURRENT),
			Entry:     uint32(b.Entry),
			Phoff:     uint32(phoff),
			Shoff:     uint32(shoff),
			Flags:     b.Flags,
			Ehsize:    uint16(ehsize),
			Phentsize: uint16(phentsize),
			Phnum:     uint16(len(b.progs)),
			Shentsize: uint16(shentsize),
			Shnum:     uint16(len(sections) + 1),
			Shstrndx:  uint16(shstrtabIdx),
		})
	}

	// program headers and segment data
	for i, p := range b.progs {
		copy(out[progOffsets[i]:], p.Data)
		memsz := p.Memsz
		if memsz == 0 {
			memsz = uint64(len(p.Data))
		}
		off := phoff + uint64(i)*phentsize
		if b.is64() {
			w.put(off, elf.Prog64{
				Type:   uint32(p.Type),
				Flags:  uint32(p.Flags),
				Off:    progOffsets[i],
				Vaddr:  p.Vaddr,
				Paddr:  p.Vaddr,
				Filesz: uint64(len(p.Data)),
				Memsz:  memsz,
				Align:  p.Align,
			})
		} else {
			w.put(off, elf.Prog32{
				Type:   uint32(p.Type),
				Off:    uint32(progOffsets[i]),
				Vaddr:  uint32(p.Vaddr),
				Paddr:  uint32(p.Vaddr),
				Filesz: uint32(len(p.Data)),
				Memsz:  uint32(memsz),
				Flags:  uint32(p.Flags),
				Align:  uint32(p.Align),
			})
		}
	}

	// section data and headers. the null section header is left as zero
	for i, s := range sections {
		size := uint64(len(s.Data))
		if s.Type == elf.SHT_NOBITS {
			size = s.Size
		} else {
			copy(out[offsets[i]:], s.Data)
		}

		link := s.Link
		if s.linkSymtab {
			link = uint32(symtabIdx)
		}

		off := shoff + uint64(i+1)*shentsize
		if b.is64() {
			w.put(off, elf.Section64{
				Name:      nameOffsets[i],
				Type:      uint32(s.Type),
				Flags:     uint64(s.Flags),
				Addr:      s.Addr,
				Off:       offsets[i],
				Size:      size,
				Link:      link,
				Info:      s.Info,
				Addralign: s.Align,
				Entsize:   s.Entsize,
			})
		} else {
			w.put(off, elf.Section32{
				Name:      nameOffsets[i],
				Type:      uint32(s.Type),
				Flags:     uint32(s.Flags),
				Addr:      uint32(s.Addr),
				Off:       uint32(offsets[i]),
				Size:      uint32(size),
				Link:      link,
				Info:      s.Info,
				Addralign: uint32(s.Align),
				Entsize:   uint32(s.Entsize),
			})
		}
	}

	return out
}

// writer places the binary encoding of fixed size values in a byte slice.
type writer struct {
	out []byte
}

func (w *writer) put(off uint64, v any) {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, v)
	copy(w.out[off:], buf.Bytes())
}

// Dynamic32 encodes ELF32 dynamic section entries. A DT_NULL entry is added
// to the end of the list.
func Dynamic32(entries ...[2]uint32) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, elf.Dyn32{Tag: int32(e[0]), Val: e[1]})
	}
	binary.Write(&buf, binary.LittleEndian, elf.Dyn32{})
	return buf.Bytes()
}

// Dynamic64 encodes ELF64 dynamic section entries. A DT_NULL entry is added
// to the end of the list.
func Dynamic64(entries ...[2]uint64) []byte {
	var buf bytes.Buffer
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, elf.Dyn64{Tag: int64(e[0]), Val: e[1]})
	}
	binary.Write(&buf, binary.LittleEndian, elf.Dyn64{})
	return buf.Bytes()
}
