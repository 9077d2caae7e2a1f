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

// buildRelocations walks the relocations of the text and data sections a
// second time, collecting the base relocations required by the image, and
// appends the base relocation directory to the output.
func (ctx *Context) buildRelocations() error {
	ctx.classifying = true
	defer func() {
		ctx.classifying = false
	}()

	var found bool
	for _, sec := range ctx.elf.Sections {
		if sec.Type == elf.SHT_REL || sec.Type == elf.SHT_RELA {
			found = true
			break // for loop
		}
	}

	err := ctx.walk(func(idx int) bool {
		c := ctx.layout.Class(idx)
		return c == classText || c == classData
	}, ctx.tr.Classify, func(target int) error {
		// GOT relocations follow the relocations of the section containing
		// the GOT
		if ctx.got.section != 0 && target == ctx.got.section {
			return ctx.emitGOT()
		}
		return nil
	})
	if err != nil {
		return err
	}

	// the GOT may be in a section with no relocations of its own
	if err := ctx.emitGOT(); err != nil {
		return err
	}

	if !found {
		if dt, ok := ctx.tr.(dynamicTranslator); ok {
			table, err := ctx.elf.DynamicRelocations()
			if err != nil {
				return err
			}
			if table != nil {
				ctx.logf("reloc", "no relocation sections. using %d dynamic relocations", len(table.Rels))
				if err := dt.Dynamic(ctx, table); err != nil {
					return err
				}
			}
		}
	}

	data := ctx.fixups.Finish(int(ctx.layout.Alignment))
	if len(data) == 0 {
		ctx.logf("reloc", "no base relocations")
		return nil
	}

	off, err := ctx.out.Append(data)
	if err != nil {
		return err
	}

	ctx.logf("reloc", "%d base relocations (%#x bytes) at %#x", ctx.fixups.Entries(), len(data), off)

	if err := ctx.addSection(".reloc", uint32(off), uint32(len(data)), coff.RelocCharacteristics); err != nil {
		return err
	}
	return ctx.setDirectory(pe.IMAGE_DIRECTORY_ENTRY_BASERELOC, uint32(off), uint32(len(data)))
}
