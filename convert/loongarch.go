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

	"github.com/jetsetilly/genfw/coff"
)

// relocation types not in the debug/elf package.
const (
	rLArchDelete     = elf.R_LARCH(101)
	rLArchAlign      = elf.R_LARCH(102)
	rLArchPCRel20S2  = elf.R_LARCH(103)
	rLArchCFA        = elf.R_LARCH(104)
	rLArchAdd6       = elf.R_LARCH(105)
	rLArchSub6       = elf.R_LARCH(106)
	rLArchAddULEB128 = elf.R_LARCH(107)
	rLArchSubULEB128 = elf.R_LARCH(108)
	rLArch64PCRel    = elf.R_LARCH(109)
	rLArchCall36     = elf.R_LARCH(110)
)

var larchNames = map[elf.R_LARCH]string{
	rLArchDelete:     "R_LARCH_DELETE",
	rLArchAlign:      "R_LARCH_ALIGN",
	rLArchPCRel20S2:  "R_LARCH_PCREL20_S2",
	rLArchCFA:        "R_LARCH_CFA",
	rLArchAdd6:       "R_LARCH_ADD6",
	rLArchSub6:       "R_LARCH_SUB6",
	rLArchAddULEB128: "R_LARCH_ADD_ULEB128",
	rLArchSubULEB128: "R_LARCH_SUB_ULEB128",
	rLArch64PCRel:    "R_LARCH_64_PCREL",
	rLArchCall36:     "R_LARCH_CALL36",
}

// loongarch is the translator for 64bit LoongArch images.
type loongarch struct{}

func (loongarch) Machine() uint16 {
	return pe.IMAGE_FILE_MACHINE_LOONGARCH64
}

func (loongarch) TypeName(typ uint32) string {
	if n, ok := larchNames[elf.R_LARCH(typ)]; ok {
		return n
	}
	return elf.R_LARCH(typ).String()
}

func (loongarch) Lenient() bool {
	return true
}

func (loongarch) Ignored(typ uint32) bool {
	switch t := elf.R_LARCH(typ); t {
	case elf.R_LARCH_NONE, elf.R_LARCH_RELAX, elf.R_LARCH_MARK_LA, elf.R_LARCH_MARK_PCREL,
		rLArchDelete, rLArchAlign, rLArchCFA,
		rLArchAdd6, rLArchSub6, rLArchAddULEB128, rLArchSubULEB128:
		return true
	default:
		return t >= elf.R_LARCH_ADD8 && t <= elf.R_LARCH_SUB64
	}
}

// instruction fields. the si20 immediate of LU12I.W, LU32I.D and PCALAU12I
// is in bits 24 to 5. the si12 (or ui12) immediate of ORI, ADDI.D, LD.D and
// LU52I.D is in bits 21 to 10.
const (
	laLDDMask = 0xffc00000
	laLDD     = 0x28c00000
	laADDID   = 0x02c00000
	laRdRj    = 0x3ff
)

func laImm20(insn uint32) uint32 {
	return (insn >> 5) & 0xfffff
}

func laPutImm20(insn uint32, v uint32) uint32 {
	return insn&^(0xfffff<<5) | (v&0xfffff)<<5
}

func laImm12(insn uint32) uint32 {
	return (insn >> 10) & 0xfff
}

func laPutImm12(insn uint32, v uint32) uint32 {
	return insn&^(0xfff<<10) | (v&0xfff)<<10
}

// laRewrite replaces the immediate of the instruction at the offset.
func laRewrite(ctx *Context, off uint32, put func(uint32, uint32) uint32, v uint32) error {
	insn, err := ctx.out.Uint32(int(off))
	if err != nil {
		return err
	}
	return ctx.out.PutUint32(int(off), put(insn, v))
}

func (loongarch) Patch(ctx *Context, s *Site) error {
	switch t := elf.R_LARCH(s.Rel.Type); t {
	case elf.R_LARCH_32:
		return ctx.rebase32(s)

	case elf.R_LARCH_64:
		return ctx.rebase64(s)

	case elf.R_LARCH_ABS_HI20:
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingAbsolute, s, laImm20(insn), false)

	case elf.R_LARCH_PCALA_HI20:
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingPCRel, s, laImm20(insn), false)

	case elf.R_LARCH_GOT_PC_HI20:
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingGOT, s, laImm20(insn), false)

	case elf.R_LARCH_ABS_LO12:
		return laAbsoluteLow(ctx, s)

	case elf.R_LARCH_ABS64_LO20:
		return laAbsoluteUpper(ctx, s)

	case elf.R_LARCH_ABS64_HI12:
		return laAbsoluteTop(ctx, s)

	case elf.R_LARCH_PCALA_LO12, elf.R_LARCH_GOT_PC_LO12:
		return laPCRelLow(ctx, s)

	case elf.R_LARCH_B16, elf.R_LARCH_B21, elf.R_LARCH_B26, rLArchPCRel20S2,
		rLArchCall36, elf.R_LARCH_32_PCREL, rLArch64PCRel:
		return ctx.preserved(s)
	}

	return ctx.unsupported(s)
}

// the stage of the pending state for an absolute address is the number of
// instructions of the sequence seen so far.
const (
	laStageHigh  = 0
	laStageLow   = 1
	laStageUpper = 2
)

func laAbsolute(ctx *Context, s *Site, stage int) (*pending, error) {
	p, err := ctx.matchHigh(s, func(p *pending) bool {
		return p.kind == pendingAbsolute && p.site.SymIdx == s.SymIdx && p.stage == stage
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

// laAbsoluteLow rebases the lower 32 bits of an absolute address split across
// LU12I.W and ORI.
func laAbsoluteLow(ctx *Context, s *Site) error {
	p, err := laAbsolute(ctx, s, laStageHigh)
	if err != nil || p == nil {
		return err
	}

	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}

	insn, err := ctx.out.Uint32(int(s.Off))
	if err != nil {
		return err
	}

	p.low = p.high<<12 | laImm12(insn)
	v := p.low + uint32(d)

	if err := laRewrite(ctx, p.site.Off, laPutImm20, v>>12); err != nil {
		return err
	}
	if err := ctx.out.PutUint32(int(s.Off), laPutImm12(insn, v)); err != nil {
		return err
	}

	p.consumed = true
	p.partial = true
	p.stage = laStageLow
	return nil
}

// laAbsoluteUpper rebases bits 32 to 51 of the address, held by LU32I.D.
func laAbsoluteUpper(ctx *Context, s *Site) error {
	p, err := laAbsolute(ctx, s, laStageLow)
	if err != nil || p == nil {
		return err
	}

	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}

	insn, err := ctx.out.Uint32(int(s.Off))
	if err != nil {
		return err
	}

	p.upper = laImm20(insn)
	v := (uint64(p.upper)<<32 | uint64(p.low)) + d
	if err := ctx.out.PutUint32(int(s.Off), laPutImm20(insn, uint32(v>>32))); err != nil {
		return err
	}

	p.stage = laStageUpper
	return nil
}

// laAbsoluteTop rebases bits 52 to 63 of the address, held by LU52I.D. this
// is the last instruction of the sequence.
func laAbsoluteTop(ctx *Context, s *Site) error {
	p, err := laAbsolute(ctx, s, laStageUpper)
	if err != nil || p == nil {
		return err
	}

	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}

	insn, err := ctx.out.Uint32(int(s.Off))
	if err != nil {
		return err
	}

	v := (uint64(laImm12(insn))<<52 | uint64(p.upper)<<32 | uint64(p.low)) + d
	if err := ctx.out.PutUint32(int(s.Off), laPutImm12(insn, uint32(v>>52))); err != nil {
		return err
	}

	ctx.logf("reloc", "absolute address at %#x rebased to %#016x", p.site.Off, v)
	ctx.releaseHigh()
	return nil
}

// laPCRelLow re-encodes the PC relative address split across PCALAU12I and
// the instruction with the low part. a load from a GOT slot is rewritten as
// ADDI.D of the symbol's address.
func laPCRelLow(ctx *Context, s *Site) error {
	kind := pendingPCRel
	if elf.R_LARCH(s.Rel.Type) == elf.R_LARCH_GOT_PC_LO12 {
		kind = pendingGOT
	}

	p, err := ctx.matchHigh(s, func(p *pending) bool {
		return p.kind == kind && p.site.SymIdx == s.SymIdx
	})
	if err != nil || p == nil {
		return err
	}

	insn, err := ctx.out.Uint32(int(s.Off))
	if err != nil {
		return err
	}

	var target uint64

	switch kind {
	case pendingGOT:
		if insn&laLDDMask != laLDD {
			return ctx.unsupported(s)
		}
		target, err = ctx.symbolAddress(&p.site)
		if err != nil {
			return err
		}
		target += uint64(p.site.Rel.Addend)
		insn = insn&laRdRj | laADDID

	default:
		d, err := ctx.symbolDelta(s)
		if err != nil {
			return err
		}
		t := int64(p.site.Rel.Offset&^0xfff) + int64(sext(p.high<<12, 32)) + int64(sext(laImm12(insn), 12))
		target = uint64(t) + d
	}

	x := uint64(p.site.Off)
	hi := uint32(((target+0x800)>>12)-(x>>12)) & 0xfffff
	lo := uint32(target) & 0xfff

	err = ctx.settleHigh(p, s, hi, func(hi uint32) error {
		return laRewrite(ctx, p.site.Off, laPutImm20, hi)
	})
	if err != nil {
		return err
	}

	if err := ctx.out.PutUint32(int(s.Off), laPutImm12(insn, lo)); err != nil {
		return err
	}
	if kind == pendingGOT {
		ctx.logf("got", "ld.d at %#x relaxed to addi.d", s.Off)
	}

	return nil
}

func (loongarch) Classify(ctx *Context, s *Site) error {
	switch t := elf.R_LARCH(s.Rel.Type); t {
	case elf.R_LARCH_32:
		ctx.addFixup(s, coff.RelBasedHighLow)
		return nil

	case elf.R_LARCH_64:
		ctx.addFixup(s, coff.RelBasedDir64)
		return nil

	// the loader rebases the four instructions of an absolute address
	// together. an incomplete sequence has no base relocation
	case elf.R_LARCH_ABS_HI20:
		return ctx.holdHigh(pendingAbsolute, s, 0, false)

	case elf.R_LARCH_ABS_LO12, elf.R_LARCH_ABS64_LO20, elf.R_LARCH_ABS64_HI12:
		stage := laStageHigh
		switch t {
		case elf.R_LARCH_ABS64_LO20:
			stage = laStageLow
		case elf.R_LARCH_ABS64_HI12:
			stage = laStageUpper
		}

		p, err := laAbsolute(ctx, s, stage)
		if err != nil || p == nil {
			return err
		}

		if t == elf.R_LARCH_ABS64_HI12 {
			ctx.addFixupAt(p.site.Off, coff.RelBasedLoongArch64MarkLA)
			ctx.releaseHigh()
			return nil
		}
		p.stage++
		return nil

	case elf.R_LARCH_PCALA_HI20, elf.R_LARCH_PCALA_LO12, elf.R_LARCH_GOT_PC_HI20,
		elf.R_LARCH_GOT_PC_LO12, elf.R_LARCH_B16, elf.R_LARCH_B21, elf.R_LARCH_B26,
		rLArchPCRel20S2, rLArchCall36, elf.R_LARCH_32_PCREL, rLArch64PCRel:
		return nil
	}

	return ctx.unsupported(s)
}
