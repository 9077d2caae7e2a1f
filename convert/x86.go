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

// x86 is the translator for 32bit x86 images.
type x86 struct{}

func (x86) Machine() uint16 {
	return pe.IMAGE_FILE_MACHINE_I386
}

func (x86) TypeName(typ uint32) string {
	return elf.R_386(typ).String()
}

func (x86) Lenient() bool {
	return false
}

func (x86) Ignored(typ uint32) bool {
	return elf.R_386(typ) == elf.R_386_NONE
}

func (x86) Patch(ctx *Context, s *Site) error {
	switch elf.R_386(s.Rel.Type) {
	case elf.R_386_32:
		return ctx.rebase32(s)
	case elf.R_386_PC32, elf.R_386_PLT32:
		return ctx.adjust32(s)
	}
	return ctx.unsupported(s)
}

func (x86) Classify(ctx *Context, s *Site) error {
	switch elf.R_386(s.Rel.Type) {
	case elf.R_386_32:
		ctx.addFixup(s, coff.RelBasedHighLow)
		return nil
	case elf.R_386_PC32, elf.R_386_PLT32:
		return nil
	}
	return ctx.unsupported(s)
}
