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

package convert_test

import (
	"debug/elf"
	"debug/pe"
	"testing"

	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/convert"
	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
	"github.com/jetsetilly/genfw/test"
	"github.com/jetsetilly/genfw/test/elfimage"
)

// LoongArch instructions with rd (and rj where used) of r4 or r5.
const (
	laLU12I    = 0x14000004
	laORI      = 0x03800084
	laLU32I    = 0x16000004
	laLU52I    = 0x03000084
	laPCALAU12 = 0x1a000004
	laADDID    = 0x02c00084
	laLDD      = 0x28c000a5
)

func laSI20(insn uint32, v uint32) uint32 {
	return insn | (v&0xfffff)<<5
}

func laSI12(insn uint32, v uint32) uint32 {
	return insn | (v&0xfff)<<10
}

func laGet20(insn uint32) uint64 {
	return uint64(insn>>5) & 0xfffff
}

func laGet12(insn uint32) uint64 {
	return uint64(insn>>10) & 0xfff
}

// laPCAddr is the address formed by PCALAU12I at pc and the 12bit immediate
// of the instruction that follows it.
func laPCAddr(pc uint32, hi uint32, lo uint32) uint32 {
	return pc&^0xfff + uint32(laGet20(hi))<<12 + sext12(uint32(laGet12(lo)))
}

// as with the RISC-V tests the data section moves by an amount that is not a
// multiple of 4KB.
const laData = 0x21c0

func laImage(code []byte) (*elfimage.Builder, int, int) {
	code = append(code, make([]byte, 0x40-len(code))...)
	b := elfimage.New(elf.ELFCLASS64, elf.EM_LOONGARCH)
	text := b.Text(".text", 0x1000, 16, code)
	data := b.Data(".data", laData, 16, make([]byte, 0x1000))
	b.Entry = 0x1000
	return b, text, data
}

func TestLoongArchAbsolute(t *testing.T) {
	const addr = laData + 0x1185

	b, text, data := laImage(words(
		laSI20(laLU12I, addr>>12),
		laSI12(laORI, addr&0xfff),
		laSI20(laLU32I, 0),
		laSI12(laLU52I, 0),
	))
	value := b.AddSymbol("value", data, addr)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_LARCH_ABS_HI20), Sym: value},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_LARCH_ABS_LO12), Sym: value},
		elfimage.Rel{Offset: 0x1008, Type: uint32(elf.R_LARCH_ABS64_LO20), Sym: value},
		elfimage.Rel{Offset: 0x100c, Type: uint32(elf.R_LARCH_ABS64_HI12), Sym: value},
	)

	p := placements(t, b)
	T := p[".text"]
	test.DemandEquality(t, p[".data"], uint32(0x280))

	res := mustConvert(t, b, quiet)
	img := res.Image
	test.ExpectEquality(t, res.Machine, uint16(pe.IMAGE_FILE_MACHINE_LOONGARCH64))

	v := laGet12(u32(img, T+0xc))<<52 | laGet20(u32(img, T+8))<<32 | laGet20(u32(img, T))<<12 | laGet12(u32(img, T+4))
	test.ExpectEquality(t, v, uint64(p[".data"])+0x1185)

	// opcodes and registers are unchanged
	test.ExpectEquality(t, u32(img, T)&0xfe00001f, uint32(laLU12I))
	test.ExpectEquality(t, u32(img, T+4)&0xffc003ff, uint32(laORI))

	f := fixups(t, img)
	test.DemandEquality(t, len(f), 1)
	test.ExpectEquality(t, f[0], fixup{rva: T, typ: coff.RelBasedLoongArch64MarkLA})
}

func TestLoongArchIncompleteAbsolute(t *testing.T) {
	const addr = laData + 0x10

	b, text, data := laImage(words(
		laSI20(laLU12I, addr>>12),
		laSI12(laORI, addr&0xfff),
	))
	value := b.AddSymbol("value", data, addr)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_LARCH_ABS_HI20), Sym: value},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_LARCH_ABS_LO12), Sym: value},
	)

	p := placements(t, b)
	T := p[".text"]

	// the lower 32 bits are still rebased but the sequence is counted as
	// unpaired and the loader is not asked to relocate it
	res := mustConvert(t, b, quiet)
	test.ExpectEquality(t, res.UnpairedHigh, 1)
	test.ExpectEquality(t, laGet20(u32(res.Image, T))<<12|laGet12(u32(res.Image, T+4)), uint64(p[".data"])+0x10)
	test.ExpectEquality(t, res.Fixups, 0)
	test.ExpectEquality(t, len(fixups(t, res.Image)), 0)
}

func TestLoongArchLoneHigh(t *testing.T) {
	const addr = laData + 0x10

	code := words(laSI20(laLU12I, addr>>12), laSI12(laADDID, 0x20))
	b, text, data := laImage(code)
	value := b.AddSymbol("value", data, addr)
	b.AddRela(text, elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_LARCH_ABS_HI20), Sym: value})

	p := placements(t, b)
	T := p[".text"]

	res := mustConvert(t, b, quiet)
	test.ExpectEquality(t, res.UnpairedHigh, 1)
	test.ExpectEquality(t, res.Fixups, 0)

	// the dropped instruction is left as it was
	test.ExpectEquality(t, u32(res.Image, T), u32(code, 0))
}

func TestLoongArchPCRelative(t *testing.T) {
	// the ELF encoding of a PC relative address
	pcrel := func(pc uint32, target uint32) (uint32, uint32) {
		return ((target + 0x800) >> 12) - (pc >> 12), target & 0xfff
	}

	h0, l0 := pcrel(0x1000, laData+0x7f0)
	h1, l1 := pcrel(0x1008, 0x3100)

	b, text, data := laImage(words(
		laSI20(laPCALAU12, h0), laSI12(laADDID, l0),
		laSI20(laPCALAU12|1, h1), laSI12(laLDD, l1),
	))
	table := b.AddSymbol("table", data, laData+0x7f0)
	value := b.AddSymbol("value", data, laData+0x40)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_LARCH_PCALA_HI20), Sym: table},
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_LARCH_RELAX), Sym: table},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_LARCH_PCALA_LO12), Sym: table},
		elfimage.Rel{Offset: 0x1008, Type: uint32(elf.R_LARCH_GOT_PC_HI20), Sym: value},
		elfimage.Rel{Offset: 0x100c, Type: uint32(elf.R_LARCH_GOT_PC_LO12), Sym: value},
	)

	p := placements(t, b)
	T := p[".text"]
	D := p[".data"]

	res := mustConvert(t, b, quiet)
	img := res.Image

	test.ExpectEquality(t, laPCAddr(T, u32(img, T), u32(img, T+4)), D+0x7f0)

	// the load from the GOT becomes addi.d of the symbol's address
	ld := u32(img, T+0xc)
	test.ExpectEquality(t, ld&0xffc00000, uint32(0x02c00000))
	test.ExpectEquality(t, ld&0x3ff, uint32(laLDD&0x3ff))
	test.ExpectEquality(t, laPCAddr(T+8, u32(img, T+8), ld), D+0x40)

	test.ExpectEquality(t, res.Fixups, 0)
}

func TestLoongArchGOTNotLoad(t *testing.T) {
	b, text, data := laImage(words(laSI20(laPCALAU12, 2), laSI12(laADDID, 0x100)))
	value := b.AddSymbol("value", data, laData)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_LARCH_GOT_PC_HI20), Sym: value},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_LARCH_GOT_PC_LO12), Sym: value},
	)

	_, err := convert.Convert(b.Bytes(), quiet)
	test.ExpectEquality(t, curated.Has(err, faults.UnsupportedRelocation), true)
}

func TestLoongArchData(t *testing.T) {
	b, _, data := laImage(nil)
	rel := b.Data(".data.rel", laData+0x1000, 8, words(laData+8, 0))
	value := b.AddSymbol("value", data, laData+8)
	b.AddRela(rel, elfimage.Rel{Offset: laData + 0x1000, Type: uint32(elf.R_LARCH_64), Sym: value})

	p := placements(t, b)
	res := mustConvert(t, b, quiet)
	test.ExpectEquality(t, u64(res.Image, p[".data.rel"]), uint64(p[".data"])+8)

	f := fixups(t, res.Image)
	test.DemandEquality(t, len(f), 1)
	test.ExpectEquality(t, f[0], fixup{rva: p[".data.rel"], typ: coff.RelBasedDir64})
}

func TestLoongArchPCRelativeRange(t *testing.T) {
	const pc = 0x200000

	for _, offset := range []int32{-0x800, -0x801, 0x7ff, 0x800, 0xfffff, 0x100000, -0x100000, -0x100001} {
		target := uint32(int32(pc) + offset)
		hi := ((target + 0x800) >> 12) - (pc >> 12)
		lo := target & 0xfff

		code := words(laSI20(laPCALAU12, hi), laSI12(laADDID, lo))
		code = append(code, make([]byte, 0x40-len(code))...)

		// the data section is below the code for negative offsets but is
		// always placed after it in the output
		dataAddr := uint64(target&^0xf) - 0x40

		b := elfimage.New(elf.ELFCLASS64, elf.EM_LOONGARCH)
		text := b.Text(".text", pc, 16, code)
		data := b.Data(".data", dataAddr, 16, make([]byte, 0x100))
		b.Entry = pc
		sym := b.AddSymbol("target", data, uint64(target))
		b.AddRela(text,
			elfimage.Rel{Offset: pc, Type: uint32(elf.R_LARCH_PCALA_HI20), Sym: sym},
			elfimage.Rel{Offset: pc + 4, Type: uint32(elf.R_LARCH_PCALA_LO12), Sym: sym},
		)

		// the ELF encoding is correct before conversion
		test.DemandEquality(t, laPCAddr(pc, u32(code, 0), u32(code, 4)), target)

		p := placements(t, b)
		T := p[".text"]
		want := p[".data"] + uint32(uint64(target)-dataAddr)

		res := mustConvert(t, b, quiet)
		test.ExpectEquality(t, laPCAddr(T, u32(res.Image, T), u32(res.Image, T+4)), want)
		test.ExpectEquality(t, res.UnpairedHigh, 0)
	}
}
