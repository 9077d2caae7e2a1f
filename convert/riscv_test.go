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

// RISC-V registers used by the tests.
const (
	rvA0 = 10
	rvA1 = 11
	rvA2 = 12
)

func rvSplit(v uint32) (uint32, uint32) {
	return ((v + 0x800) >> 12) & 0xfffff, v & 0xfff
}

func rvLUI(rd uint32, hi uint32) uint32 {
	return hi<<12 | rd<<7 | 0x37
}

func rvAUIPC(rd uint32, hi uint32) uint32 {
	return hi<<12 | rd<<7 | 0x17
}

func rvADDI(rd uint32, rs1 uint32, lo uint32) uint32 {
	return lo<<20 | rs1<<15 | rd<<7 | 0x13
}

func rvLD(rd uint32, rs1 uint32, lo uint32) uint32 {
	return lo<<20 | rs1<<15 | 3<<12 | rd<<7 | 0x03
}

func rvLW(rd uint32, rs1 uint32, lo uint32) uint32 {
	return lo<<20 | rs1<<15 | 2<<12 | rd<<7 | 0x03
}

func rvSW(rs2 uint32, rs1 uint32, lo uint32) uint32 {
	return (lo>>5)<<25 | rs2<<20 | rs1<<15 | 2<<12 | (lo&0x1f)<<7 | 0x23
}

func sext12(v uint32) uint32 {
	return uint32(int32(v<<20) >> 20)
}

func rvIImm(insn uint32) uint32 {
	return insn >> 20
}

func rvSImm(insn uint32) uint32 {
	return (insn>>25)<<5 | (insn>>7)&0x1f
}

// rvAddr is the address formed by a LUI or AUIPC and the 12bit immediate of
// the instruction that follows it. the PC is added for AUIPC.
func rvAddr(pc uint32, hi uint32, lo uint32) uint32 {
	return pc + hi&0xfffff000 + sext12(lo)
}

// the data section is placed so that its output address is 0xc0 bytes
// further into a 4KB page than its address in the ELF image.
const rvData = 0x21c0

func rvImage(class elf.Class, code []byte) (*elfimage.Builder, int, int) {
	code = append(code, make([]byte, 0x40-len(code))...)
	b := elfimage.New(class, elf.EM_RISCV)
	text := b.Text(".text", 0x1000, 16, code)
	data := b.Data(".data", rvData, 16, make([]byte, 0x1000))
	b.Entry = 0x1000
	return b, text, data
}

func TestRISCVAbsolute(t *testing.T) {
	lows := []uint32{0x000, 0x73f, 0x740, 0x7ff, 0xf40, 0xfff}

	var code []byte
	var rels []elfimage.Rel
	var targets []uint32

	for i, lo := range lows {
		x := 0x3000 | lo
		h, l := rvSplit(x)
		code = append(code, words(rvLUI(rvA0, h), rvADDI(rvA0, rvA0, l))...)
		sym := uint32(i + 1)
		off := uint64(0x1000 + i*8)
		rels = append(rels,
			elfimage.Rel{Offset: off, Type: uint32(elf.R_RISCV_HI20), Sym: sym},
			elfimage.Rel{Offset: off + 4, Type: uint32(elf.R_RISCV_LO12_I), Sym: sym},
		)
		targets = append(targets, x)
	}

	// one LUI shared by an ADDI and a SW
	shared := uint32(0x3f3f)
	sharedSym := uint32(len(lows) + 1)
	h, l := rvSplit(shared)
	code = append(code, words(rvLUI(rvA0, h), rvADDI(rvA1, rvA0, l), rvSW(rvA2, rvA0, l))...)
	rels = append(rels,
		elfimage.Rel{Offset: 0x1030, Type: uint32(elf.R_RISCV_HI20), Sym: sharedSym},
		elfimage.Rel{Offset: 0x1030, Type: uint32(elf.R_RISCV_RELAX), Sym: sharedSym},
		elfimage.Rel{Offset: 0x1034, Type: uint32(elf.R_RISCV_LO12_I), Sym: sharedSym},
		elfimage.Rel{Offset: 0x1038, Type: uint32(elf.R_RISCV_LO12_S), Sym: sharedSym},
	)

	b, text, data := rvImage(elf.ELFCLASS64, code)
	for _, x := range targets {
		b.AddSymbol("", data, uint64(x))
	}
	b.AddSymbol("shared", data, uint64(shared))
	b.AddRela(text, rels...)

	p := placements(t, b)
	T := p[".text"]
	test.DemandEquality(t, p[".data"], uint32(0x280))
	d := p[".data"] - rvData

	res := mustConvert(t, b, quiet)
	img := res.Image
	test.ExpectEquality(t, res.Machine, uint16(pe.IMAGE_FILE_MACHINE_RISCV64))
	test.ExpectEquality(t, res.UnpairedHigh, 0)

	for i, x := range targets {
		off := T + uint32(i*8)
		test.ExpectEquality(t, rvAddr(0, u32(img, off), rvIImm(u32(img, off+4))), x+d, i)
	}

	off := T + 0x30
	test.ExpectEquality(t, rvAddr(0, u32(img, off), rvIImm(u32(img, off+4))), shared+d)
	test.ExpectEquality(t, rvAddr(0, u32(img, off), rvSImm(u32(img, off+8))), shared+d)

	// registers and opcodes are unchanged
	test.ExpectEquality(t, u32(img, off+4)&0xfffff, rvADDI(rvA1, rvA0, 0))
	test.ExpectEquality(t, u32(img, off+8)&0x01fff07f, rvSW(rvA2, rvA0, 0))

	f := fixups(t, img)
	test.DemandEquality(t, len(f), len(lows)*2+4)
	test.ExpectEquality(t, f[0], fixup{rva: T, typ: coff.RelBasedRISCVHi20})
	test.ExpectEquality(t, f[1], fixup{rva: T + 4, typ: coff.RelBasedRISCVLow12I})
	test.ExpectEquality(t, f[len(f)-2], fixup{rva: T + 0x30, typ: coff.RelBasedRISCVHi20})
	test.ExpectEquality(t, f[len(f)-1], fixup{rva: T + 0x38, typ: coff.RelBasedRISCVLow12S})
}

func TestRISCVSharedHighConflict(t *testing.T) {
	// both addresses have a high part of 2 in the ELF image. in the output
	// image only the second needs the high part to be rounded up
	a, b := uint32(0x2700), uint32(0x27f0)
	ha, la := rvSplit(a)
	hb, lb := rvSplit(b)
	test.DemandEquality(t, ha, hb)

	img, text, data := rvImage(elf.ELFCLASS64, words(rvLUI(rvA0, ha), rvADDI(rvA0, rvA0, la), rvADDI(rvA1, rvA0, lb)))
	symA := img.AddSymbol("a", data, uint64(a))
	symB := img.AddSymbol("b", data, uint64(b))
	img.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_RISCV_HI20), Sym: symA},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_RISCV_LO12_I), Sym: symA},
		elfimage.Rel{Offset: 0x1008, Type: uint32(elf.R_RISCV_LO12_I), Sym: symB},
	)
	test.DemandEquality(t, placements(t, img)[".data"], uint32(0x280))

	_, err := convert.Convert(img.Bytes(), quiet)
	test.ExpectEquality(t, curated.Has(err, faults.LayoutInvariant), true)
}

func TestRISCVPCRelative(t *testing.T) {
	pcrel := func(pc uint32, target uint32) (uint32, uint32) {
		return rvSplit(target - pc)
	}

	h0, l0 := pcrel(0x1000, rvData)
	h1, l1 := pcrel(0x1008, 0x3100)
	h2, l2 := pcrel(0x1010, rvData+0x7f8)

	b, text, data := rvImage(elf.ELFCLASS64, words(
		rvAUIPC(rvA0, h0), rvADDI(rvA0, rvA0, l0),
		rvAUIPC(rvA1, h1), rvLD(rvA1, rvA1, l1),
		rvAUIPC(rvA0, h2), rvSW(rvA2, rvA0, l2),
	))
	l0Sym := b.AddSymbol(".L0", text, 0x1000)
	l1Sym := b.AddSymbol(".L1", text, 0x1008)
	l2Sym := b.AddSymbol(".L2", text, 0x1010)
	table := b.AddSymbol("table", data, rvData)
	value := b.AddSymbol("value", data, rvData+0x40)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_RISCV_PCREL_HI20), Sym: table},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_RISCV_PCREL_LO12_I), Sym: l0Sym},
		elfimage.Rel{Offset: 0x1008, Type: uint32(elf.R_RISCV_GOT_HI20), Sym: value, Addend: 8},
		elfimage.Rel{Offset: 0x100c, Type: uint32(elf.R_RISCV_PCREL_LO12_I), Sym: l1Sym},
		elfimage.Rel{Offset: 0x1010, Type: uint32(elf.R_RISCV_PCREL_HI20), Sym: table, Addend: 0x7f8},
		elfimage.Rel{Offset: 0x1014, Type: uint32(elf.R_RISCV_PCREL_LO12_S), Sym: l2Sym},
	)

	p := placements(t, b)
	T := p[".text"]
	D := p[".data"]

	res := mustConvert(t, b, quiet)
	img := res.Image

	test.ExpectEquality(t, rvAddr(T, u32(img, T), rvIImm(u32(img, T+4))), D)
	test.ExpectEquality(t, rvAddr(T+0x10, u32(img, T+0x10), rvSImm(u32(img, T+0x14))), D+0x7f8)

	// the load from the GOT becomes an addi of the symbol's address
	ld := u32(img, T+0xc)
	test.ExpectEquality(t, ld&0x707f, uint32(0x13))
	test.ExpectEquality(t, ld&0xfff80, rvADDI(rvA1, rvA1, 0)&0xfff80)
	test.ExpectEquality(t, rvAddr(T+8, u32(img, T+8), rvIImm(ld)), D+0x48)

	// nothing needs a base relocation
	test.ExpectEquality(t, res.Fixups, 0)
	test.ExpectEquality(t, res.GOTSlots, 0)
}

func TestRISCVGOTStore(t *testing.T) {
	h, l := rvSplit(0x3100 - 0x1000)
	b, text, data := rvImage(elf.ELFCLASS64, words(rvAUIPC(rvA0, h), rvSW(rvA2, rvA0, l)))
	label := b.AddSymbol(".L0", text, 0x1000)
	value := b.AddSymbol("value", data, rvData)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_RISCV_GOT_HI20), Sym: value},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_RISCV_PCREL_LO12_S), Sym: label},
	)

	_, err := convert.Convert(b.Bytes(), quiet)
	test.ExpectEquality(t, curated.Has(err, faults.UnsupportedRelocation), true)
}

func TestRISCVLenient(t *testing.T) {
	h, _ := rvSplit(rvData)
	call := uint32(0x1020 - 0x1008)
	ch, cl := rvSplit(call)
	code := words(rvLUI(rvA0, h), 0, rvAUIPC(1, ch), cl<<20|1<<15|1<<7|0x67, 0xdeadbeef, 0xfeedface)
	b, text, data := rvImage(elf.ELFCLASS64, code)
	value := b.AddSymbol("value", data, rvData)
	target := b.AddSymbol("target", text, 0x1020)
	undefined := b.AddSymbol("undefined", 0, 0)
	b.AddRela(text,
		// high part with no low part
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_RISCV_HI20), Sym: value},
		elfimage.Rel{Offset: 0x1008, Type: uint32(elf.R_RISCV_CALL), Sym: target},
		// symbol with no section
		elfimage.Rel{Offset: 0x1010, Type: uint32(elf.R_RISCV_64), Sym: undefined},
	)

	T := placements(t, b)[".text"]
	res := mustConvert(t, b, quiet)
	test.ExpectEquality(t, res.UnpairedHigh, 1)
	test.ExpectEquality(t, res.Fixups, 0)
	test.ExpectEquality(t, u32(res.Image, T), rvLUI(rvA0, h))
	test.ExpectEquality(t, u32(res.Image, T+0xc), cl<<20|1<<15|1<<7|0x67)
	test.ExpectEquality(t, u64(res.Image, T+0x10), uint64(0xfeedfacedeadbeef))
}

func TestRISCV32(t *testing.T) {
	b, text, data := rvImage(elf.ELFCLASS32, words(rvData+4))
	value := b.AddSymbol("value", data, rvData)
	b.AddRela(text, elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_RISCV_32), Sym: value, Addend: 4})

	p := placements(t, b)
	res := mustConvert(t, b, quiet)
	test.ExpectEquality(t, res.Machine, uint16(pe.IMAGE_FILE_MACHINE_RISCV32))
	test.ExpectEquality(t, u32(res.Image, p[".text"]), p[".data"]+4)

	f := fixups(t, res.Image)
	test.DemandEquality(t, len(f), 1)
	test.ExpectEquality(t, f[0], fixup{rva: p[".text"], typ: coff.RelBasedHighLow})
}

func TestRISCV32GOT(t *testing.T) {
	h, l := rvSplit(0x3100 - 0x1000)
	b, text, data := rvImage(elf.ELFCLASS32, words(rvAUIPC(rvA1, h), rvLW(rvA1, rvA1, l)))
	label := b.AddSymbol(".L0", text, 0x1000)
	value := b.AddSymbol("value", data, rvData+0x40)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_RISCV_GOT_HI20), Sym: value},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_RISCV_PCREL_LO12_I), Sym: label},
	)

	p := placements(t, b)
	T := p[".text"]

	res := mustConvert(t, b, quiet)

	// lw from the GOT becomes an addi of the symbol's address
	lw := u32(res.Image, T+4)
	test.ExpectEquality(t, lw&0x707f, uint32(0x13))
	test.ExpectEquality(t, lw&0xfff80, rvADDI(rvA1, rvA1, 0)&0xfff80)
	test.ExpectEquality(t, rvAddr(T, u32(res.Image, T), rvIImm(lw)), p[".data"]+0x40)
	test.ExpectEquality(t, res.Fixups, 0)

	// ld is not a valid load of a 32bit GOT slot
	b, text, data = rvImage(elf.ELFCLASS32, words(rvAUIPC(rvA1, h), rvLD(rvA1, rvA1, l)))
	label = b.AddSymbol(".L0", text, 0x1000)
	value = b.AddSymbol("value", data, rvData+0x40)
	b.AddRela(text,
		elfimage.Rel{Offset: 0x1000, Type: uint32(elf.R_RISCV_GOT_HI20), Sym: value},
		elfimage.Rel{Offset: 0x1004, Type: uint32(elf.R_RISCV_PCREL_LO12_I), Sym: label},
	)
	_, err := convert.Convert(b.Bytes(), quiet)
	test.ExpectEquality(t, curated.Has(err, faults.UnsupportedRelocation), true)
}

func TestRISCVPCRelativeRange(t *testing.T) {
	const pc = 0x200000

	for _, offset := range []int32{-0x800, -0x801, 0x7ff, 0x800, 0xfffff, 0x100000, -0x100000, -0x100001} {
		target := uint32(int32(pc) + offset)
		hi, lo := rvSplit(uint32(offset))

		code := words(rvAUIPC(rvA0, hi), rvADDI(rvA0, rvA0, lo))
		code = append(code, make([]byte, 0x40-len(code))...)

		// the data section is below the code for negative offsets but is
		// always placed after it in the output
		dataAddr := uint64(target&^0xf) - 0x40

		b := elfimage.New(elf.ELFCLASS64, elf.EM_RISCV)
		text := b.Text(".text", pc, 16, code)
		data := b.Data(".data", dataAddr, 16, make([]byte, 0x100))
		b.Entry = pc
		label := b.AddSymbol(".L0", text, pc)
		sym := b.AddSymbol("target", data, uint64(target))
		b.AddRela(text,
			elfimage.Rel{Offset: pc, Type: uint32(elf.R_RISCV_PCREL_HI20), Sym: sym},
			elfimage.Rel{Offset: pc + 4, Type: uint32(elf.R_RISCV_PCREL_LO12_I), Sym: label},
		)

		// the ELF encoding is correct before conversion
		test.DemandEquality(t, rvAddr(pc, u32(code, 0), rvIImm(u32(code, 4))), target)

		p := placements(t, b)
		T := p[".text"]
		want := p[".data"] + uint32(uint64(target)-dataAddr)

		res := mustConvert(t, b, quiet)
		test.ExpectEquality(t, rvAddr(T, u32(res.Image, T), rvIImm(u32(res.Image, T+4))), want)
		test.ExpectEquality(t, res.UnpairedHigh, 0)
	}
}
