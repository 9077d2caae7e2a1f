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
	"fmt"

	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// the name of the resource type containing the HII package list, as it
// appears in the resource directory.
var hiiResourceName = []uint16{'H', 'I', 'I'}

// patchResource makes the data offset of the HII resource relative to the
// start of the image rather than to the start of the resource section.
func (ctx *Context) patchResource() error {
	for i, sec := range ctx.elf.Sections {
		if ctx.layout.Class(i) != classResource {
			continue
		}
		off, err := ctx.layout.Placement(i)
		if err != nil {
			return err
		}
		return ctx.patchHII(off, uint32(sec.Size))
	}
	return nil
}

// hiiReader is a bounds checked view of the resource section in the output.
type hiiReader struct {
	ctx  *Context
	base uint32
	size uint32
}

func (r hiiReader) check(off uint32, n uint32) error {
	if off > r.size || n > r.size-off {
		return curated.Errorf(faults.Bounds, fmt.Sprintf("resource directory access of %d bytes at %#x outside of section (%#x bytes)", n, off, r.size))
	}
	return nil
}

func (r hiiReader) uint16(off uint32) (uint16, error) {
	if err := r.check(off, 2); err != nil {
		return 0, err
	}
	return r.ctx.out.Uint16(int(r.base + off))
}

func (r hiiReader) uint32(off uint32) (uint32, error) {
	if err := r.check(off, 4); err != nil {
		return 0, err
	}
	return r.ctx.out.Uint32(int(r.base + off))
}

// isHII returns true if the directory string at the offset is "HII".
func (r hiiReader) isHII(off uint32) (bool, error) {
	n, err := r.uint16(off)
	if err != nil {
		return false, err
	}
	if int(n) != len(hiiResourceName) {
		return false, nil
	}
	for i, c := range hiiResourceName {
		v, err := r.uint16(off + 2 + uint32(i)*2)
		if err != nil {
			return false, err
		}
		if v != c {
			return false, nil
		}
	}
	return true, nil
}

// patchHII walks the resource directory at the start of the resource section.
// The named entry "HII" leads, through at most two further directory levels,
// to a data entry. The OffsetToData field of that data entry is adjusted by
// the offset of the section.
func (ctx *Context) patchHII(base uint32, size uint32) error {
	r := hiiReader{ctx: ctx, base: base, size: size}

	named, err := r.uint16(coff.ResourceDirectoryNamedEntries)
	if err != nil {
		return err
	}

	entry := uint32(coff.ResourceDirectorySize)
	for i := 0; i < int(named); i++ {
		name, err := r.uint32(entry)
		if err != nil {
			return err
		}

		if name&coff.ResourceNameIsString == coff.ResourceNameIsString {
			ok, err := r.isHII(name & coff.ResourceOffsetMask)
			if err != nil {
				return err
			}

			if ok {
				data, err := r.uint32(entry + 4)
				if err != nil {
					return err
				}

				// name and language levels
				e := entry
				for level := 0; level < 2 && data&coff.ResourceDataIsDirectory == coff.ResourceDataIsDirectory; level++ {
					e = data&coff.ResourceOffsetMask + coff.ResourceDirectorySize
					data, err = r.uint32(e + 4)
					if err != nil {
						return err
					}
				}

				if data&coff.ResourceDataIsDirectory == 0 {
					v, err := r.uint32(data)
					if err != nil {
						return err
					}
					if err := ctx.out.PutUint32(int(base+data), v+base); err != nil {
						return err
					}
					ctx.logf("hii", "HII data at %#x (was %#x)", v+base, v)
					return nil
				}
			}
		}

		entry += coff.ResourceDirectoryEntrySize
	}

	ctx.logf("hii", "no HII resource found in %s", hiiSectionName)
	return nil
}
