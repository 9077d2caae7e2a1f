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
	rRISCVSetULEB128 = elf.R_RISCV(60)
	rRISCVSubULEB128 = elf.R_RISCV(61)
)

// riscv is the translator for RISC-V images, 32bit and 64bit.
type riscv struct {
	is64 bool
}

func (r riscv) Machine() uint16 {
	if r.is64 {
		return pe.IMAGE_FILE_MACHINE_RISCV64
	}
	return pe.IMAGE_FILE_MACHINE_RISCV32
}

func (riscv) TypeName(typ uint32) string {
	switch elf.R_RISCV(typ) {
	case rRISCVSetULEB128:
		return "R_RISCV_SET_ULEB128"
	case rRISCVSubULEB128:
		return "R_RISCV_SUB_ULEB128"
	}
	return elf.R_RISCV(typ).String()
}

// Lenient is true because RISC-V toolchains emit relocations against
// undefined local labels that have no effect on the linked image.
func (riscv) Lenient() bool {
	return true
}

func (riscv) Ignored(typ uint32) bool {
	switch elf.R_RISCV(typ) {
	case elf.R_RISCV_NONE,
		elf.R_RISCV_ADD8, elf.R_RISCV_ADD16, elf.R_RISCV_ADD32, elf.R_RISCV_ADD64,
		elf.R_RISCV_SUB6, elf.R_RISCV_SUB8, elf.R_RISCV_SUB16, elf.R_RISCV_SUB32, elf.R_RISCV_SUB64,
		elf.R_RISCV_SET6, elf.R_RISCV_SET8, elf.R_RISCV_SET16, elf.R_RISCV_SET32,
		elf.R_RISCV_RELAX, elf.R_RISCV_ALIGN,
		rRISCVSetULEB128, rRISCVSubULEB128:
		return true
	}
	return false
}

// instruction fields.
const (
	rvOpcodeMask = 0x7f
	rvFunct3Mask = 0x7000
	rvLoad       = 0x03
	rvOpImm      = 0x13
	rvFunct3LW   = 0x2000
	rvFunct3LD   = 0x3000
)

// sext sign extends the lower bits of v.
func sext(v uint32, bits int) int32 {
	s := 32 - bits
	return int32(v<<s) >> s
}

// the immediate of a U-type instruction (LUI and AUIPC) is in bits 31 to 12.
func rvUImm(insn uint32) uint32 {
	return insn >> 12
}

func rvPutUImm(insn uint32, v uint32) uint32 {
	return insn&0xfff | (v&0xfffff)<<12
}

// the immediate of an I-type instruction is in bits 31 to 20. an S-type
// instruction splits the immediate across bits 31 to 25 and bits 11 to 7.
func rvLowImm(insn uint32, store bool) uint32 {
	if store {
		return (insn>>25)<<5 | (insn>>7)&0x1f
	}
	return insn >> 20
}

func rvPutLowImm(insn uint32, v uint32, store bool) uint32 {
	v &= 0xfff
	if store {
		return insn&0x01fff07f | (v>>5)<<25 | (v&0x1f)<<7
	}
	return insn&0x000fffff | v<<20
}

// rvSplit divides a value into the immediates of a U-type and I-type (or
// S-type) instruction pair. the low immediate is sign extended by the
// processor so the high immediate is rounded.
func rvSplit(v uint32) (uint32, uint32) {
	return ((v + 0x800) >> 12) & 0xfffff, v & 0xfff
}

func (riscv) Patch(ctx *Context, s *Site) error {
	switch elf.R_RISCV(s.Rel.Type) {
	case elf.R_RISCV_32:
		return ctx.rebase32(s)

	case elf.R_RISCV_64:
		return ctx.rebase64(s)

	case elf.R_RISCV_HI20:
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingAbsolute, s, rvUImm(insn), false)

	case elf.R_RISCV_PCREL_HI20:
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingPCRel, s, rvUImm(insn), false)

	case elf.R_RISCV_GOT_HI20:
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		return ctx.holdHigh(pendingGOT, s, rvUImm(insn), false)

	case elf.R_RISCV_LO12_I:
		return rvAbsoluteLow(ctx, s, false)

	case elf.R_RISCV_LO12_S:
		return rvAbsoluteLow(ctx, s, true)

	case elf.R_RISCV_PCREL_LO12_I:
		return rvPCRelLow(ctx, s, false)

	case elf.R_RISCV_PCREL_LO12_S:
		return rvPCRelLow(ctx, s, true)

	case elf.R_RISCV_BRANCH, elf.R_RISCV_JAL, elf.R_RISCV_CALL, elf.R_RISCV_CALL_PLT,
		elf.R_RISCV_RVC_BRANCH, elf.R_RISCV_RVC_JUMP, elf.R_RISCV_32_PCREL:
		return ctx.preserved(s)
	}

	return ctx.unsupported(s)
}

// rvAbsoluteLow rebases the absolute address split across a LUI and the
// instruction with the low part.
func rvAbsoluteLow(ctx *Context, s *Site, store bool) error {
	p, err := ctx.matchHigh(s, func(p *pending) bool {
		return p.kind == pendingAbsolute && p.site.SymIdx == s.SymIdx
	})
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

	v := p.high<<12 + uint32(sext(rvLowImm(insn, store), 12)) + uint32(d)
	hi, lo := rvSplit(v)

	err = ctx.settleHigh(p, s, hi, func(hi uint32) error {
		return rvPutHigh(ctx, p.site.Off, hi)
	})
	if err != nil {
		return err
	}

	return ctx.out.PutUint32(int(s.Off), rvPutLowImm(insn, lo, store))
}

// rvPCRelLow re-encodes the PC relative address split across an AUIPC and
// the instruction with the low part. the symbol of the low part is the label
// of the AUIPC.
//
// an AUIPC with a GOT_HI20 relocation is followed by a load from the GOT
// slot. the load is rewritten as an ADDI of the symbol's address.
func rvPCRelLow(ctx *Context, s *Site, store bool) error {
	p, err := ctx.matchHigh(s, func(p *pending) bool {
		return (p.kind == pendingPCRel || p.kind == pendingGOT) && p.site.Rel.Offset == s.Sym.Value
	})
	if err != nil || p == nil {
		return err
	}

	insn, err := ctx.out.Uint32(int(s.Off))
	if err != nil {
		return err
	}

	var target uint64

	switch p.kind {
	case pendingGOT:
		// the slot is loaded with ld, or with lw in a 32bit image
		width := uint32(rvFunct3LD)
		if !ctx.elf.Is64() {
			width = rvFunct3LW
		}
		if store || insn&rvOpcodeMask != rvLoad || insn&rvFunct3Mask != width {
			return ctx.unsupported(s)
		}
		target, err = ctx.symbolAddress(&p.site)
		if err != nil {
			return err
		}
		target += uint64(p.site.Rel.Addend)
		insn = insn&^(rvFunct3Mask|rvOpcodeMask) | rvOpImm

	default:
		d, err := ctx.symbolDelta(&p.site)
		if err != nil {
			return err
		}
		t := int64(p.site.Rel.Offset) + int64(sext(p.high<<12, 32)) + int64(sext(rvLowImm(insn, store), 12))
		target = uint64(t) + d
	}

	hi, lo := rvSplit(uint32(target - uint64(p.site.Off)))

	err = ctx.settleHigh(p, s, hi, func(hi uint32) error {
		return rvPutHigh(ctx, p.site.Off, hi)
	})
	if err != nil {
		return err
	}

	if err := ctx.out.PutUint32(int(s.Off), rvPutLowImm(insn, lo, store)); err != nil {
		return err
	}
	if p.kind == pendingGOT {
		ctx.logf("got", "load at %#x relaxed to addi", s.Off)
	}

	return nil
}

func rvPutHigh(ctx *Context, off uint32, hi uint32) error {
	insn, err := ctx.out.Uint32(int(off))
	if err != nil {
		return err
	}
	return ctx.out.PutUint32(int(off), rvPutUImm(insn, hi))
}

func (riscv) Classify(ctx *Context, s *Site) error {
	switch elf.R_RISCV(s.Rel.Type) {
	case elf.R_RISCV_32:
		ctx.addFixup(s, coff.RelBasedHighLow)
		return nil

	case elf.R_RISCV_64:
		ctx.addFixup(s, coff.RelBasedDir64)
		return nil

	case elf.R_RISCV_HI20:
		return ctx.holdHigh(pendingAbsolute, s, 0, false)

	case elf.R_RISCV_LO12_I, elf.R_RISCV_LO12_S:
		p, err := ctx.matchHigh(s, func(p *pending) bool {
			return p.kind == pendingAbsolute && p.site.SymIdx == s.SymIdx
		})
		if err != nil || p == nil {
			return err
		}

		// every low part is preceded by the high part so that the loader
		// can rebase them together
		ctx.addFixupAt(p.site.Off, coff.RelBasedRISCVHi20)
		if elf.R_RISCV(s.Rel.Type) == elf.R_RISCV_LO12_S {
			ctx.addFixup(s, coff.RelBasedRISCVLow12S)
		} else {
			ctx.addFixup(s, coff.RelBasedRISCVLow12I)
		}
		p.consumed = true
		return nil

	case elf.R_RISCV_PCREL_HI20, elf.R_RISCV_GOT_HI20, elf.R_RISCV_PCREL_LO12_I,
		elf.R_RISCV_PCREL_LO12_S, elf.R_RISCV_BRANCH, elf.R_RISCV_JAL, elf.R_RISCV_CALL,
		elf.R_RISCV_CALL_PLT, elf.R_RISCV_RVC_BRANCH, elf.R_RISCV_RVC_JUMP, elf.R_RISCV_32_PCREL:
		return nil
	}

	return ctx.unsupported(s)
}
