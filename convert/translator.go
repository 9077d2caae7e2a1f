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
	"github.com/jetsetilly/genfw/elfview"
	"github.com/jetsetilly/genfw/faults"
)

// Translator implements the relocation rules for one instruction set.
// Implementations are stateless. Any state required between relocations is
// held in the Context.
type Translator interface {
	// the PE machine type for the output image
	Machine() uint16

	// the name of a relocation type, for logging
	TypeName(typ uint32) string

	// relocations with a symbol that is undefined or outside of the section
	// table are skipped rather than being an error
	Lenient() bool

	// relocation types that need no action of any kind. these relocations are
	// skipped before the symbol is resolved
	Ignored(typ uint32) bool

	// Patch applies the relocation to the copied section data
	Patch(ctx *Context, s *Site) error

	// Classify adds base relocations for the relocation, if required
	Classify(ctx *Context, s *Site) error
}

// dynamicTranslator is implemented by translators that can fall back to the
// dynamic relocation table when the image has no relocation sections.
type dynamicTranslator interface {
	Dynamic(ctx *Context, table *elfview.DynamicTable) error
}

func selectTranslator(f *elfview.File) (Translator, error) {
	switch f.Machine {
	case elf.EM_386:
		if !f.Is64() {
			return x86{}, nil
		}
	case elf.EM_ARM:
		if !f.Is64() {
			return arm{}, nil
		}
	case elf.EM_X86_64:
		if f.Is64() {
			return x64{}, nil
		}
	case elf.EM_AARCH64:
		if f.Is64() {
			return aarch64{}, nil
		}
	case elf.EM_LOONGARCH:
		if f.Is64() {
			return loongarch{}, nil
		}
	case elf.EM_RISCV:
		return riscv{is64: f.Is64()}, nil
	default:
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("unsupported machine (%v)", f.Machine))
	}
	return nil, curated.Errorf(faults.Format, fmt.Sprintf("unsupported machine (%v) for %v", f.Machine, f.Class))
}

// unsupported returns the error for a relocation type that a translator does
// not recognise.
func (ctx *Context) unsupported(s *Site) error {
	return curated.Errorf(faults.UnsupportedRelocation, fmt.Sprintf("%s in %s at %#x", ctx.tr.TypeName(s.Rel.Type), s.Sec.Name, s.Rel.Offset))
}
