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
	"github.com/jetsetilly/genfw/faults"
)

// aarch64 is the translator for 64bit ARM images.
type aarch64 struct{}

func (aarch64) Machine() uint16 {
	return pe.IMAGE_FILE_MACHINE_ARM64
}

func (aarch64) TypeName(typ uint32) string {
	return elf.R_AARCH64(typ).String()
}

func (aarch64) Lenient() bool {
	return false
}

func (aarch64) Ignored(typ uint32) bool {
	switch elf.R_AARCH64(typ) {
	case elf.R_AARCH64_NONE, elf.R_AARCH64_NULL:
		return true
	}
	return false
}

// instruction encodings used when rewriting instructions.
const (
	a64ADRPBit = 0x80000000

	// keep the register and the ADR/ADRP bit
	a64KeepOp = 0x9000001f

	// keep the register and force an ADR
	a64MakeADR = 0x1000001f

	a64ADDX   = 0x91000000
	a64RdRn   = 0x3ff
	a64OneMiB = 1 << 20
)

// encADR returns the immhi and immlo fields of an ADR or ADRP instruction.
func encADR(o int64) uint32 {
	return uint32((o&0x1ffffc)<<3) | uint32((o&3)<<29)
}

// decADR returns the sign extended 21bit immediate of an ADR or ADRP
// instruction.
func decADR(insn uint32) int64 {
	v := int64((insn>>5)&0x7ffff)<<2 | int64((insn>>29)&3)
	return v << 43 >> 43
}

func (aarch64) Patch(ctx *Context, s *Site) error {
	switch elf.R_AARCH64(s.Rel.Type) {
	case elf.R_AARCH64_ADR_GOT_PAGE:
		// the GOT page is replaced with the page of the symbol itself
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		page := int64(s.Sym.Value-(s.Rel.Offset&^0xfff)) >> 12
		if err := ctx.out.PutUint32(int(s.Off), insn&a64KeepOp|encADR(page)); err != nil {
			return err
		}
		return a64Page(ctx, s)

	case elf.R_AARCH64_ADR_PREL_PG_HI21:
		return a64Page(ctx, s)

	case elf.R_AARCH64_LD64_GOT_LO12_NC:
		// the load from the GOT slot becomes an add of the symbol's page
		// offset
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		insn = insn&a64RdRn | a64ADDX | uint32(s.Sym.Value&0xfff)<<10
		if err := ctx.out.PutUint32(int(s.Off), insn); err != nil {
			return err
		}
		ctx.logPatch("got", "ldr relaxed to add", s.Off, 4)
		return a64Low12(ctx, s)

	case elf.R_AARCH64_ADD_ABS_LO12_NC, elf.R_AARCH64_LDST8_ABS_LO12_NC,
		elf.R_AARCH64_LDST16_ABS_LO12_NC, elf.R_AARCH64_LDST32_ABS_LO12_NC,
		elf.R_AARCH64_LDST64_ABS_LO12_NC, elf.R_AARCH64_LDST128_ABS_LO12_NC:
		return a64Low12(ctx, s)

	case elf.R_AARCH64_LD64_GOTOFF_LO15, elf.R_AARCH64_LD64_GOTPAGE_LO15:
		// the load from the GOT becomes an ADR of the symbol
		insn, err := ctx.out.Uint32(int(s.Off))
		if err != nil {
			return err
		}
		o := int64(s.Sym.Value - s.Rel.Offset)
		if o < -a64OneMiB || o >= a64OneMiB {
			return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("%s at %#x: symbol %q is out of range for ADR", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset, s.Sym.Name))
		}
		if err := ctx.out.PutUint32(int(s.Off), insn&a64MakeADR|encADR(o)); err != nil {
			return err
		}
		ctx.logPatch("got", "ldr relaxed to adr", s.Off, 4)
		return ctx.preserved(s)

	case elf.R_AARCH64_ADR_PREL_LO21, elf.R_AARCH64_CONDBR19, elf.R_AARCH64_LD_PREL_LO19,
		elf.R_AARCH64_CALL26, elf.R_AARCH64_JUMP26, elf.R_AARCH64_PREL64,
		elf.R_AARCH64_PREL32, elf.R_AARCH64_PREL16, elf.R_AARCH64_TSTBR14:
		return ctx.preserved(s)

	case elf.R_AARCH64_ABS64:
		return ctx.rebase64(s)

	case elf.R_AARCH64_ABS32:
		return ctx.rebase32(s)
	}

	return ctx.unsupported(s)
}

// a64Page handles an ADRP instruction. If the output image does not keep
// sections on the same 4KB page offsets the ADRP is rewritten as an ADR.
func a64Page(ctx *Context, s *Site) error {
	insn, err := ctx.out.Uint32(int(s.Off))
	if err != nil {
		return err
	}

	// the instruction has already been rewritten as an ADR
	if insn&a64ADRPBit == 0 {
		return nil
	}

	if ctx.layout.Alignment < 0x1000 {
		o := decADR(insn)<<12 - int64(s.Rel.Offset&0xfff)
		if o < -a64OneMiB || o >= a64OneMiB {
			return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("%s at %#x: ADRP can not be relaxed to ADR", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset))
		}
		if err := ctx.out.PutUint32(int(s.Off), insn&a64MakeADR|encADR(o)); err != nil {
			return err
		}
		ctx.logPatch("reloc", "adrp relaxed to adr", s.Off, 4)
	}

	return ctx.preserved(s)
}

// a64Low12 checks that the relocated location and the symbol keep their 4KB
// page offsets in the output image.
func a64Low12(ctx *Context, s *Site) error {
	if (s.Sec.Addr^uint64(s.SecOut))&0xfff != 0 {
		return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("%s at %#x: page offset of %s is not preserved", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset, s.Sec.Name))
	}
	p, err := ctx.layout.Placement(s.SymIdx)
	if err != nil {
		return err
	}
	if (s.SymSec.Addr^uint64(p))&0xfff != 0 {
		return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("%s at %#x: page offset of %s is not preserved", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset, s.SymSec.Name))
	}
	return ctx.preserved(s)
}

func (aarch64) Classify(ctx *Context, s *Site) error {
	switch elf.R_AARCH64(s.Rel.Type) {
	case elf.R_AARCH64_ABS64:
		ctx.addFixup(s, coff.RelBasedDir64)
		return nil

	case elf.R_AARCH64_ABS32:
		ctx.addFixup(s, coff.RelBasedHighLow)
		return nil

	case elf.R_AARCH64_ADR_GOT_PAGE, elf.R_AARCH64_ADR_PREL_PG_HI21,
		elf.R_AARCH64_LD64_GOT_LO12_NC, elf.R_AARCH64_ADD_ABS_LO12_NC,
		elf.R_AARCH64_LDST8_ABS_LO12_NC, elf.R_AARCH64_LDST16_ABS_LO12_NC,
		elf.R_AARCH64_LDST32_ABS_LO12_NC, elf.R_AARCH64_LDST64_ABS_LO12_NC,
		elf.R_AARCH64_LDST128_ABS_LO12_NC, elf.R_AARCH64_LD64_GOTOFF_LO15,
		elf.R_AARCH64_LD64_GOTPAGE_LO15, elf.R_AARCH64_ADR_PREL_LO21,
		elf.R_AARCH64_CONDBR19, elf.R_AARCH64_LD_PREL_LO19, elf.R_AARCH64_CALL26,
		elf.R_AARCH64_JUMP26, elf.R_AARCH64_PREL64, elf.R_AARCH64_PREL32,
		elf.R_AARCH64_PREL16, elf.R_AARCH64_TSTBR14:
		return nil
	}

	return ctx.unsupported(s)
}
