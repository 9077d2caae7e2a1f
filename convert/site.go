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
	"fmt"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/disasm"
	"github.com/jetsetilly/genfw/elfview"
	"github.com/jetsetilly/genfw/faults"
)

// Site is a relocation with its section and symbol resolved.
type Site struct {
	Rel elfview.Rel

	// the section being relocated and its placement in the output
	Sec    *elf.Section
	SecIdx int
	SecOut uint32

	// the symbol of the relocation and the section containing it. the
	// placement of the symbol's section is found when needed because some
	// relocations never need it
	Sym    elf.Symbol
	SymSec *elf.Section
	SymIdx int

	// the output offset of the relocated location
	Off uint32
}

// resolve a relocation entry. returns nil without an error if the relocation
// should be skipped.
func (ctx *Context) resolve(relsec int, target int, sec *elf.Section, r elfview.Rel) (*Site, error) {
	sym, err := ctx.elf.Symbol(relsec, r.Sym)
	if err != nil {
		return nil, err
	}

	if sym.Section == elf.SHN_UNDEF || int(sym.Section) >= len(ctx.elf.Sections) {
		if ctx.tr.Lenient() {
			ctx.logf("reloc", "skipping %s at %#x: symbol %q has no section", ctx.tr.TypeName(r.Type), r.Offset, sym.Name)
			return nil, nil
		}
		return nil, curated.Errorf(faults.UnsupportedRelocation, fmt.Sprintf("%s at %#x: bad symbol definition for %q (section %v)", ctx.tr.TypeName(r.Type), r.Offset, sym.Name, sym.Section))
	}

	if r.Offset < sec.Addr || r.Offset-sec.Addr >= sec.Size {
		return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("%s at %#x is outside of %s", ctx.tr.TypeName(r.Type), r.Offset, sec.Name))
	}

	secOut, err := ctx.layout.Placement(target)
	if err != nil {
		return nil, err
	}

	return &Site{
		Rel:    r,
		Sec:    sec,
		SecIdx: target,
		SecOut: secOut,
		Sym:    sym,
		SymSec: ctx.elf.Sections[sym.Section],
		SymIdx: int(sym.Section),
		Off:    secOut + uint32(r.Offset-sec.Addr),
	}, nil
}

// sectionDelta is the change in address of the section being relocated.
func (s *Site) sectionDelta() uint64 {
	return uint64(s.SecOut) - s.Sec.Addr
}

// symbolDelta is the change in address of the section containing the symbol.
func (ctx *Context) symbolDelta(s *Site) (uint64, error) {
	p, err := ctx.layout.Placement(s.SymIdx)
	if err != nil {
		return 0, err
	}
	return uint64(p) - s.SymSec.Addr, nil
}

// symbolAddress is the address of the symbol in the output image.
func (ctx *Context) symbolAddress(s *Site) (uint64, error) {
	d, err := ctx.symbolDelta(s)
	if err != nil {
		return 0, err
	}
	return s.Sym.Value + d, nil
}

// addressOf converts an ELF address in the section to an output address.
func (ctx *Context) addressOf(idx int, addr uint64) (uint64, error) {
	p, err := ctx.layout.Placement(idx)
	if err != nil {
		return 0, err
	}
	return uint64(p) + addr - ctx.elf.Sections[idx].Addr, nil
}

// preserved checks that the distance between the relocated location and the
// symbol is the same in the output as in the ELF image.
func (ctx *Context) preserved(s *Site) error {
	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}
	if d != s.sectionDelta() {
		return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("%s at %#x: relative offset between %s and %s is not preserved", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset, s.Sec.Name, s.SymSec.Name))
	}
	return nil
}

// rebase32 adds the change in address of the symbol's section to the 32bit
// value at the relocated location.
func (ctx *Context) rebase32(s *Site) error {
	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}
	v, err := ctx.out.Uint32(int(s.Off))
	if err != nil {
		return err
	}
	return ctx.out.PutUint32(int(s.Off), v+uint32(d))
}

// rebase64 adds the change in address of the symbol's section to the 64bit
// value at the relocated location.
func (ctx *Context) rebase64(s *Site) error {
	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}
	v, err := ctx.out.Uint64(int(s.Off))
	if err != nil {
		return err
	}
	return ctx.out.PutUint64(int(s.Off), v+d)
}

// adjust32 corrects a 32bit PC relative value for any difference between the
// change in address of the symbol's section and the relocated section.
func (ctx *Context) adjust32(s *Site) error {
	return ctx.adjust32At(s, int(s.Off))
}

// adjust32At is the same as adjust32 for a displacement that is not at the
// relocated offset.
func (ctx *Context) adjust32At(s *Site, off int) error {
	d, err := ctx.symbolDelta(s)
	if err != nil {
		return err
	}
	v, err := ctx.out.Uint32(off)
	if err != nil {
		return err
	}
	return ctx.out.PutUint32(off, v+uint32(d-s.sectionDelta()))
}

// addFixup adds a base relocation for the relocated location.
func (ctx *Context) addFixup(s *Site, typ uint16) {
	ctx.addFixupAt(s.Off, typ)
}

func (ctx *Context) addFixupAt(rva uint32, typ uint16) {
	ctx.fixups.Add(rva, typ)
}

// logPatch logs the instructions at the output offset after they have been
// rewritten.
func (ctx *Context) logPatch(tag string, what string, off uint32, n int) {
	machine := ctx.tr.Machine()
	if !disasm.Supported(machine) {
		ctx.logf(tag, "%s at %#x", what, off)
		return
	}
	code, err := ctx.out.Slice(int(off), n)
	if err != nil {
		ctx.logf(tag, "%s at %#x", what, off)
		return
	}
	lines, err := disasm.Disassemble(machine, code, uint64(off), 2)
	if err != nil || len(lines) == 0 {
		ctx.logf(tag, "%s at %#x", what, off)
		return
	}
	ctx.logf(tag, "%s: %s", what, lines[0])
}
