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
)

// copySections copies the sections of the class into the output image and
// then applies the relocations for those sections.
func (ctx *Context) copySections(c class) error {
	for i, sec := range ctx.elf.Sections {
		if ctx.layout.Class(i) != c {
			continue
		}

		off, err := ctx.layout.Placement(i)
		if err != nil {
			return err
		}

		switch sec.Type {
		case elf.SHT_PROGBITS:
			data, err := ctx.elf.SectionData(i)
			if err != nil {
				return err
			}
			if err := ctx.out.Copy(int(off), data); err != nil {
				return err
			}
		case elf.SHT_NOBITS:
			if err := ctx.out.Zero(int(off), int(sec.Size)); err != nil {
				return err
			}
		default:
			ctx.logf("copy", "%s: ignoring section type %v", sec.Name, sec.Type)
		}
	}

	return ctx.walk(func(idx int) bool {
		return ctx.layout.Class(idx) == c
	}, ctx.tr.Patch, nil)
}

// walk visits the relocations of every relocation section that applies to a
// section accepted by the filter. the after function, if not nil, is called
// at the end of each relocation section with the index of the section the
// relocations apply to.
func (ctx *Context) walk(filter func(int) bool, visit func(*Context, *Site) error, after func(target int) error) error {
	f := ctx.elf

	for i, rs := range f.Sections {
		if rs.Type != elf.SHT_REL && rs.Type != elf.SHT_RELA {
			continue
		}

		// relocation sections that don't apply to a single section (.rela.dyn
		// for example)
		if rs.Info == 0 {
			continue
		}

		target := int(rs.Info)
		sec, err := f.Section(target)
		if err != nil {
			return err
		}
		if !filter(target) {
			continue
		}

		rels, err := f.Relocations(i)
		if err != nil {
			return err
		}

		if err := ctx.dropHigh("start of relocation section"); err != nil {
			return err
		}

		for _, r := range rels {
			if r.Type == 0 || ctx.tr.Ignored(r.Type) {
				continue
			}

			s, err := ctx.resolve(i, target, sec, r)
			if err != nil {
				return err
			}
			if s == nil {
				continue
			}

			if err := visit(ctx, s); err != nil {
				return err
			}
		}

		if err := ctx.dropHigh("end of relocation section"); err != nil {
			return err
		}

		if after != nil {
			if err := after(target); err != nil {
				return err
			}
		}
	}

	return nil
}
