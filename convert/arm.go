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

package convert

import (
	"debug/elf"
	"debug/pe"
	"fmt"

	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/elfview"
	"github.com/jetsetilly/genfw/faults"
)

// arm is the translator for 32bit ARM images. The output image is marked as
// Thumb, which is the machine type UEFI uses for all 32bit ARM code.
type arm struct{}

func (arm) Machine() uint16 {
	return pe.IMAGE_FILE_MACHINE_THUMB
}

func (arm) TypeName(typ uint32) string {
	return elf.R_ARM(typ).String()
}

func (arm) Lenient() bool {
	return false
}

func (arm) Ignored(typ uint32) bool {
	switch elf.R_ARM(typ) {
	case elf.R_ARM_NONE, elf.R_ARM_RBASE:
		return true
	}
	return false
}

// armPCRelative returns true for the relocation types that are relative to the
// location being relocated. None of them need patching provided the sections
// move together.
func armPCRelative(typ elf.R_ARM) bool {
	switch typ {
	case elf.R_ARM_PC24, elf.R_ARM_REL32, elf.R_ARM_XPC25, elf.R_ARM_THM_PC22,
		elf.R_ARM_THM_JUMP19, elf.R_ARM_CALL, elf.R_ARM_JUMP24, elf.R_ARM_THM_JUMP24,
		elf.R_ARM_PREL31, elf.R_ARM_MOVW_PREL_NC, elf.R_ARM_MOVT_PREL,
		elf.R_ARM_THM_MOVW_PREL_NC, elf.R_ARM_THM_MOVT_PREL, elf.R_ARM_THM_JUMP6,
		elf.R_ARM_THM_ALU_PREL_11_0, elf.R_ARM_THM_PC12, elf.R_ARM_REL32_NOI,
		elf.R_ARM_ALU_PC_G0_NC, elf.R_ARM_ALU_PC_G0, elf.R_ARM_ALU_PC_G1_NC,
		elf.R_ARM_ALU_PC_G1, elf.R_ARM_ALU_PC_G2, elf.R_ARM_LDR_PC_G1,
		elf.R_ARM_LDR_PC_G2, elf.R_ARM_LDRS_PC_G0, elf.R_ARM_LDRS_PC_G1,
		elf.R_ARM_LDRS_PC_G2, elf.R_ARM_LDC_PC_G0, elf.R_ARM_LDC_PC_G1,
		elf.R_ARM_LDC_PC_G2, elf.R_ARM_GOT_PREL, elf.R_ARM_THM_JUMP11,
		elf.R_ARM_THM_JUMP8, elf.R_ARM_PLT32, elf.R_ARM_TLS_GD32,
		elf.R_ARM_TLS_LDM32, elf.R_ARM_TLS_IE32:
		return true
	}
	return false
}

func (arm) Patch(ctx *Context, s *Site) error {
	typ := elf.R_ARM(s.Rel.Type)

	switch typ {
	case elf.R_ARM_ABS32, elf.R_ARM_RABS32, elf.R_ARM_TARGET1:
		return ctx.rebase32(s)

	case elf.R_ARM_MOVW_ABS_NC:
		v, err := armMovImm(ctx, s.Off)
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingMovw, s, uint32(v), true)

	case elf.R_ARM_THM_MOVW_ABS_NC:
		v, err := thumbMovImm(ctx, s.Off)
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingThumbMovw, s, uint32(v), true)

	case elf.R_ARM_MOVT_ABS, elf.R_ARM_THM_MOVT_ABS:
		return armMovt(ctx, s)
	}

	if armPCRelative(typ) {
		return ctx.preserved(s)
	}

	return ctx.unsupported(s)
}

func (arm) Classify(ctx *Context, s *Site) error {
	typ := elf.R_ARM(s.Rel.Type)

	switch typ {
	case elf.R_ARM_ABS32, elf.R_ARM_RABS32, elf.R_ARM_TARGET1:
		ctx.addFixup(s, coff.RelBasedHighLow)
		return nil

	case elf.R_ARM_MOVW_ABS_NC:
		return ctx.holdHigh(pendingMovw, s, 0, true)

	case elf.R_ARM_THM_MOVW_ABS_NC:
		return ctx.holdHigh(pendingThumbMovw, s, 0, true)

	case elf.R_ARM_MOVT_ABS, elf.R_ARM_THM_MOVT_ABS:
		p, err := matchMovw(ctx, s)
		if err != nil {
			return err
		}
		if p.kind == pendingThumbMovw {
			ctx.addFixupAt(p.site.Off, coff.RelBasedThumbMov32)
		} else {
			ctx.addFixupAt(p.site.Off, coff.RelBasedARMMov32)
		}
		ctx.releaseHigh()
		return nil
	}

	if armPCRelative(typ) {
		return nil
	}

	return ctx.unsupported(s)
}

// matchMovw returns the MOVW that pairs with the MOVT. The MOVW must be the
// instruction immediately before the MOVT and refer to the same section.
func matchMovw(ctx *Context, s *Site) (*pending, error) {
	kind := pendingMovw
	if elf.R_ARM(s.Rel.Type) == elf.R_ARM_THM_MOVT_ABS {
		kind = pendingThumbMovw
	}

	// the pending MOVW is strict and will result in an error if it is dropped
	// by matchHigh(). a MOVT with nothing pending at all must be caught here
	if ctx.pending.kind == pendingNone {
		return nil, curated.Errorf(faults.UnsupportedRelocation, fmt.Sprintf("%s at %#x has no matching MOVW", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset))
	}

	p, err := ctx.matchHigh(s, func(p *pending) bool {
		return p.kind == kind && p.site.Off+4 == s.Off && p.site.SymIdx == s.SymIdx
	})
	if err != nil {
		return nil, err
	}
	if p == nil {
		return nil, curated.Errorf(faults.UnsupportedRelocation, fmt.Sprintf("%s at %#x has no matching MOVW", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset))
	}
	return p, nil
}

// armMovt rebases the 32bit value split across a MOVW/MOVT pair.
func armMovt(ctx *Context, s *Site) error {
	p, err := matchMovw(ctx, s)
	if err != nil {
		return err
	}

	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}

	get := armMovImm
	put := putARMMovImm
	if p.kind == pendingThumbMovw {
		get = thumbMovImm
		put = putThumbMovImm
	}

	hi, err := get(ctx, s.Off)
	if err != nil {
		return err
	}

	v := uint32(hi)<<16 | p.high
	v += uint32(d)

	if err := put(ctx, p.site.Off, uint16(v)); err != nil {
		return err
	}
	if err := put(ctx, s.Off, uint16(v>>16)); err != nil {
		return err
	}

	ctx.logf("reloc", "%v pair at %#x rebased to %#08x", p.kind, p.site.Off, v)
	ctx.releaseHigh()

	return nil
}

// the imm16 field of an ARM MOVW or MOVT instruction is split into imm4 (bits
// 19 to 16) and imm12 (bits 11 to 0).
func armMovImm(ctx *Context, off uint32) (uint16, error) {
	insn, err := ctx.out.Uint32(int(off))
	if err != nil {
		return 0, err
	}
	return uint16((insn>>16&0xf)<<12 | insn&0xfff), nil
}

func putARMMovImm(ctx *Context, off uint32, v uint16) error {
	insn, err := ctx.out.Uint32(int(off))
	if err != nil {
		return err
	}
	insn &^= 0x000f0fff
	insn |= uint32(v>>12)<<16 | uint32(v&0xfff)
	return ctx.out.PutUint32(int(off), insn)
}

// the Thumb-2 MOVW and MOVT instructions are two halfwords. the imm16 field is
// split into imm4 (first halfword, bits 3 to 0), i (first halfword, bit 10),
// imm3 (second halfword, bits 14 to 12) and imm8 (second halfword, bits 7 to
// 0).
func thumbMovImm(ctx *Context, off uint32) (uint16, error) {
	hw1, err := ctx.out.Uint16(int(off))
	if err != nil {
		return 0, err
	}
	hw2, err := ctx.out.Uint16(int(off) + 2)
	if err != nil {
		return 0, err
	}
	imm4 := hw1 & 0xf
	i := (hw1 >> 10) & 1
	imm3 := (hw2 >> 12) & 7
	imm8 := hw2 & 0xff
	return imm4<<12 | i<<11 | imm3<<8 | imm8, nil
}

func putThumbMovImm(ctx *Context, off uint32, v uint16) error {
	hw1, err := ctx.out.Uint16(int(off))
	if err != nil {
		return err
	}
	hw2, err := ctx.out.Uint16(int(off) + 2)
	if err != nil {
		return err
	}
	hw1 = hw1&^0x040f | (v>>12)&0xf | ((v>>11)&1)<<10
	hw2 = hw2&^0x70ff | ((v>>8)&7)<<12 | v&0xff
	if err := ctx.out.PutUint16(int(off), hw1); err != nil {
		return err
	}
	return ctx.out.PutUint16(int(off)+2, hw2)
}

// Dynamic implements the dynamicTranslator interface. Images linked without
// relocation sections are relocated with the DT_REL table. The symbol field of
// these relocations is the index of the segment containing the relocated
// location, plus one.
func (arm) Dynamic(ctx *Context, table *elfview.DynamicTable) error {
	for _, r := range table.Rels {
		switch elf.R_ARM(r.Type) {
		case elf.R_ARM_NONE, elf.R_ARM_RBASE:
			continue

		case elf.R_ARM_RABS32:
			if r.Sym == 0 {
				return curated.Errorf(faults.Bounds, fmt.Sprintf("%s at %#x has no segment", ctx.tr.TypeName(r.Type), r.Offset))
			}
			seg, err := ctx.elf.Prog(int(r.Sym) - 1)
			if err != nil {
				return err
			}
			if r.Offset < seg.Vaddr || r.Offset-seg.Vaddr+4 > seg.Memsz {
				return curated.Errorf(faults.Bounds, fmt.Sprintf("%s at %#x is outside of segment %d", ctx.tr.TypeName(r.Type), r.Offset, r.Sym-1))
			}

			p, err := ctx.layout.Placement(int(r.Sym))
			if err != nil {
				return err
			}
			off := p + uint32(r.Offset-seg.Vaddr)

			v, err := ctx.out.Uint32(int(off))
			if err != nil {
				return err
			}
			if err := ctx.out.PutUint32(int(off), v+p-uint32(seg.Vaddr)); err != nil {
				return err
			}
			ctx.addFixupAt(off, coff.RelBasedHighLow)

		default:
			return curated.Errorf(faults.UnsupportedRelocation, fmt.Sprintf("%s at %#x in dynamic relocation table", ctx.tr.TypeName(r.Type), r.Offset))
		}
	}

	return nil
}
