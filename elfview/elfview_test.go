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

package elfview_test

import (
	"debug/elf"
	"testing"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/elfview"
	"github.com/jetsetilly/genfw/faults"
	"github.com/jetsetilly/genfw/test"
	"github.com/jetsetilly/genfw/test/elfimage"
)

func simpleImage(class elf.Class, machine elf.Machine) *elfimage.Builder {
	b := elfimage.New(class, machine)
	text := b.Text(".text", 0x1000, 16, []byte{0x90, 0x90, 0x90, 0xc3})
	b.BSS(".bss", 0x2000, 8, 0x40)
	sym := b.AddSymbol("start", text, 0x1000)
	b.AddRela(text, elfimage.Rel{Offset: 0x1000, Type: 1, Sym: sym, Addend: 8})
	b.Entry = 0x1000
	return b
}

func TestParse(t *testing.T) {
	for _, class := range []elf.Class{elf.ELFCLASS32, elf.ELFCLASS64} {
		f, err := elfview.Parse(simpleImage(class, elf.EM_RISCV).Bytes())
		test.DemandSuccess(t, err, class)
		test.ExpectEquality(t, f.Class, class)
		test.ExpectEquality(t, f.Is64(), class == elf.ELFCLASS64)
		test.ExpectEquality(t, f.Machine, elf.EM_RISCV)
		test.ExpectEquality(t, f.Entry, uint64(0x1000))

		// null, .text, .bss, .rela.text, .symtab, .strtab, .shstrtab
		test.ExpectEquality(t, len(f.Sections), 7)
		test.ExpectEquality(t, f.Sections[1].Name, ".text")
		test.ExpectEquality(t, f.Sections[3].Name, ".rela.text")
	}
}

func TestParseRejection(t *testing.T) {
	good := simpleImage(elf.ELFCLASS64, elf.EM_X86_64).Bytes()

	mutate := func(off int, v byte) []byte {
		d := append([]byte{}, good...)
		d[off] = v
		return d
	}

	_, err := elfview.Parse(good[:8])
	test.ExpectEquality(t, curated.Is(err, faults.Format), true, "short")

	_, err = elfview.Parse(mutate(0, 0x7e))
	test.ExpectEquality(t, curated.Is(err, faults.Format), true, "magic")

	_, err = elfview.Parse(mutate(elf.EI_CLASS, 3))
	test.ExpectEquality(t, curated.Is(err, faults.Format), true, "class")

	_, err = elfview.Parse(mutate(elf.EI_DATA, byte(elf.ELFDATA2MSB)))
	test.ExpectEquality(t, curated.Is(err, faults.Format), true, "endianness")

	_, err = elfview.Parse(mutate(elf.EI_VERSION, 0))
	test.ExpectEquality(t, curated.Is(err, faults.Format), true, "version")

	b := simpleImage(elf.ELFCLASS64, elf.EM_X86_64)
	b.Type = elf.ET_REL
	_, err = elfview.Parse(b.Bytes())
	test.ExpectEquality(t, curated.Is(err, faults.Format), true, "object type")

	b.Type = elf.ET_DYN
	_, err = elfview.Parse(b.Bytes())
	test.ExpectSuccess(t, err, "shared object")
}

func TestSections(t *testing.T) {
	f, err := elfview.Parse(simpleImage(elf.ELFCLASS64, elf.EM_X86_64).Bytes())
	test.DemandSuccess(t, err)

	d, err := f.SectionData(1)
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, string(d), string([]byte{0x90, 0x90, 0x90, 0xc3}))

	d, err = f.SectionData(2)
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, len(d), 0)

	_, err = f.Section(100)
	test.ExpectEquality(t, curated.Is(err, faults.Bounds), true)
	_, err = f.Section(-1)
	test.ExpectEquality(t, curated.Is(err, faults.Bounds), true)

	d, err = f.Bytes(1, 0x1002, 2)
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, d[1], byte(0xc3))

	_, err = f.Bytes(1, 0x1003, 2)
	test.ExpectEquality(t, curated.Is(err, faults.Bounds), true, "past end of section")

	_, err = f.Bytes(2, 0x2000, 4)
	test.ExpectEquality(t, curated.Is(err, faults.Bounds), true, "nobits")
}

func TestRelocations(t *testing.T) {
	for _, class := range []elf.Class{elf.ELFCLASS32, elf.ELFCLASS64} {
		f, err := elfview.Parse(simpleImage(class, elf.EM_RISCV).Bytes())
		test.DemandSuccess(t, err, class)

		rels, err := f.Relocations(3)
		test.DemandSuccess(t, err, class)
		test.DemandEquality(t, len(rels), 1, class)
		test.ExpectEquality(t, rels[0].Offset, uint64(0x1000), class)
		test.ExpectEquality(t, rels[0].Type, uint32(1), class)
		test.ExpectEquality(t, rels[0].Sym, uint32(1), class)
		test.ExpectEquality(t, rels[0].Addend, int64(8), class)
		test.ExpectEquality(t, rels[0].HasAddend, true, class)

		_, err = f.Relocations(1)
		test.ExpectEquality(t, curated.Is(err, faults.Format), true, "not a relocation section")
	}
}

func TestRel(t *testing.T) {
	b := elfimage.New(elf.ELFCLASS32, elf.EM_386)
	text := b.Text(".text", 0x1000, 4, make([]byte, 16))
	sym := b.AddSymbol("data", text, 0x1008)
	rel := b.AddRel(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_386_32), Sym: sym},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_386_PC32), Sym: sym, Addend: 100},
	)
	b.Entry = 0x1000

	f, err := elfview.Parse(b.Bytes())
	test.DemandSuccess(t, err)

	rels, err := f.Relocations(rel)
	test.DemandSuccess(t, err)
	test.DemandEquality(t, len(rels), 2)
	test.ExpectEquality(t, rels[1].Type, uint32(elf.R_386_PC32))
	test.ExpectEquality(t, rels[1].Offset, uint64(0x1004))

	// addend is never encoded in a REL entry
	test.ExpectEquality(t, rels[1].Addend, int64(0))
	test.ExpectEquality(t, rels[1].HasAddend, false)
}

func TestSymbols(t *testing.T) {
	f, err := elfview.Parse(simpleImage(elf.ELFCLASS64, elf.EM_AARCH64).Bytes())
	test.DemandSuccess(t, err)

	s, err := f.Symbol(3, 0)
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, s.Section, elf.SHN_UNDEF)

	s, err = f.Symbol(3, 1)
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, s.Name, "start")
	test.ExpectEquality(t, s.Section, elf.SectionIndex(1))
	test.ExpectEquality(t, s.Value, uint64(0x1000))

	_, err = f.Symbol(3, 2)
	test.ExpectEquality(t, curated.Is(err, faults.Bounds), true)

	s, ok := f.LookupSymbol("start")
	test.ExpectEquality(t, ok, true)
	test.ExpectEquality(t, s.Value, uint64(0x1000))

	_, ok = f.LookupSymbol("nosuchsymbol")
	test.ExpectEquality(t, ok, false)
}

func TestDynamicRelocations(t *testing.T) {
	b := elfimage.New(elf.ELFCLASS32, elf.EM_ARM)
	text := b.Text(".text", 0x8000, 4, make([]byte, 16))
	b.AddSymbol("start", text, 0x8000)
	b.Entry = 0x8000

	table := b.EncodeRelocations(false,
		elfimage.Rel{Offset: 0x8004, Type: uint32(elf.R_ARM_RBASE), Sym: 1},
		elfimage.Rel{Offset: 0x8008, Type: uint32(elf.R_ARM_RABS32), Sym: 1},
	)
	b.AddProg(elfimage.Prog{Type: elf.PT_LOAD, Vaddr: 0x9000, Data: table})
	b.AddProg(elfimage.Prog{Type: elf.PT_DYNAMIC, Vaddr: 0xa000, Data: elfimage.Dynamic32(
		[2]uint32{uint32(elf.DT_REL), 0x9000},
		[2]uint32{uint32(elf.DT_RELSZ), uint32(len(table))},
		[2]uint32{uint32(elf.DT_RELENT), 8},
	)})

	f, err := elfview.Parse(b.Bytes())
	test.DemandSuccess(t, err)

	dyn, err := f.DynamicRelocations()
	test.DemandSuccess(t, err)
	test.DemandEquality(t, dyn != nil, true)
	test.DemandEquality(t, len(dyn.Rels), 2)
	test.ExpectEquality(t, dyn.Rels[1].Type, uint32(elf.R_ARM_RABS32))
	test.ExpectEquality(t, dyn.Rels[1].Offset, uint64(0x8008))

	// no dynamic segment
	f, err = elfview.Parse(simpleImage(elf.ELFCLASS32, elf.EM_ARM).Bytes())
	test.DemandSuccess(t, err)
	dyn, err = f.DynamicRelocations()
	test.ExpectSuccess(t, err)
	test.ExpectEquality(t, dyn == nil, true)
}
