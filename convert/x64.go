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

// x64 is the translator for x86-64 images.
type x64 struct{}

func (x64) Machine() uint16 {
	return pe.IMAGE_FILE_MACHINE_AMD64
}

func (x64) TypeName(typ uint32) string {
	return elf.R_X86_64(typ).String()
}

func (x64) Lenient() bool {
	return false
}

func (x64) Ignored(typ uint32) bool {
	return elf.R_X86_64(typ) == elf.R_X86_64_NONE
}

func (x64) Patch(ctx *Context, s *Site) error {
	switch elf.R_X86_64(s.Rel.Type) {
	case elf.R_X86_64_64:
		return ctx.rebase64(s)
	case elf.R_X86_64_32, elf.R_X86_64_32S:
		return ctx.rebase32(s)
	case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
		return ctx.adjust32(s)
	case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
		return x64GOTPCRel(ctx, s)
	}
	return ctx.unsupported(s)
}

func (x64) Classify(ctx *Context, s *Site) error {
	switch elf.R_X86_64(s.Rel.Type) {
	case elf.R_X86_64_64:
		ctx.addFixup(s, coff.RelBasedDir64)
		return nil
	case elf.R_X86_64_32, elf.R_X86_64_32S:
		ctx.addFixup(s, coff.RelBasedHighLow)
		return nil
	case elf.R_X86_64_PC32, elf.R_X86_64_PLT32:
		return nil
	case elf.R_X86_64_GOTPCREL, elf.R_X86_64_GOTPCRELX, elf.R_X86_64_REX_GOTPCRELX:
		// the GOT slots are added by emitGOT()
		return nil
	}
	return ctx.unsupported(s)
}

// x86 opcodes used by GOT relaxation.
const (
	opMov       = 0x8b
	opLea       = 0x8d
	opIndirect  = 0xff
	opAddr32    = 0x67
	opCall      = 0xe8
	opJmp       = 0xe9
	opNop       = 0x90
	modrmCall   = 0x15
	modrmJmp    = 0x25
	modrmRIPRel = 0x05
)

// x64GOTPCRel handles a PC relative reference to a GOT slot. The slot is
// recorded so that it is written and relocated once. If possible the
// instruction is rewritten to refer to the symbol directly. Otherwise the
// displacement is corrected so that it still refers to the slot.
func x64GOTPCRel(ctx *Context, s *Site) error {
	off := int(s.Off)

	// the two bytes before the displacement are the opcode and modrm of the
	// instruction
	if s.Off < s.SecOut+2 {
		return ctx.unsupported(s)
	}
	op, err := ctx.out.Uint8(off - 2)
	if err != nil {
		return err
	}
	modrm, err := ctx.out.Uint8(off - 1)
	if err != nil {
		return err
	}

	// instructions already relaxed by the linker are plain PC relative
	// references
	if op == opLea || (op == opAddr32 && modrm == opCall) {
		return ctx.adjust32(s)
	}

	// a relaxed jmp is followed by a nop and its displacement starts at the
	// byte before the relocated offset
	if op == opJmp {
		if nop, err := ctx.out.Uint8(off + 3); err == nil && nop == opNop {
			return ctx.adjust32At(s, off-1)
		}
	}

	disp, err := ctx.out.Uint32(off)
	if err != nil {
		return err
	}

	slot := s.Rel.Offset - uint64(s.Rel.Addend) + uint64(int64(int32(disp)))
	rva, err := ctx.slotRVA(slot)
	if err != nil {
		return err
	}

	target, err := ctx.symbolAddress(s)
	if err != nil {
		return err
	}
	ctx.recordSlot(rva, target)

	if s.Rel.Addend == -4 {
		next := uint64(s.Off) + 4

		switch {
		case op == opMov && modrm&0xc7 == modrmRIPRel:
			if err := ctx.out.PutUint8(off-2, opLea); err != nil {
				return err
			}
			if err := ctx.out.PutUint32(off, uint32(target-next)); err != nil {
				return err
			}
			ctx.logPatch("got", "mov relaxed to lea", s.Off-2, 6)
			return nil

		case op == opIndirect && modrm == modrmCall:
			if err := ctx.out.PutUint8(off-2, opAddr32); err != nil {
				return err
			}
			if err := ctx.out.PutUint8(off-1, opCall); err != nil {
				return err
			}
			if err := ctx.out.PutUint32(off, uint32(target-next)); err != nil {
				return err
			}
			ctx.logPatch("got", "indirect call relaxed", s.Off-2, 6)
			return nil

		case op == opIndirect && modrm == modrmJmp:
			if err := ctx.out.PutUint8(off-2, opJmp); err != nil {
				return err
			}
			if err := ctx.out.PutUint32(off-1, uint32(target-(next-1))); err != nil {
				return err
			}
			if err := ctx.out.PutUint8(off+3, opNop); err != nil {
				return err
			}
			ctx.logPatch("got", "indirect jmp relaxed", s.Off-2, 6)
			return nil
		}
	}

	// the instruction keeps the indirection through the slot
	p, err := ctx.layout.Placement(ctx.got.section)
	if err != nil {
		return err
	}
	gotDelta := uint64(p) - ctx.elf.Sections[ctx.got.section].Addr
	if err := ctx.out.PutUint32(off, disp+uint32(gotDelta-s.sectionDelta())); err != nil {
		return err
	}
	ctx.logf("got", "%s at %#x refers to GOT slot at %#x", ctx.tr.TypeName(s.Rel.Type), s.Off, rva)

	return nil
}
