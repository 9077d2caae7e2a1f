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

package elfview

import (
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// Rel is a single relocation entry decoded from a REL or RELA section.
type Rel struct {
	// the virtual address of the location being relocated
	Offset uint64

	// relocation type and symbol index decoded from the info field
	Type uint32
	Sym  uint32

	// the explicit addend. always zero for REL entries
	Addend    int64
	HasAddend bool
}

func (r Rel) String() string {
	if r.HasAddend {
		return fmt.Sprintf("type %d sym %d at %#x addend %d", r.Type, r.Sym, r.Offset, r.Addend)
	}
	return fmt.Sprintf("type %d sym %d at %#x", r.Type, r.Sym, r.Offset)
}

// natural size of each entry type.
const (
	rel32Size  = 8
	rela32Size = 12
	rel64Size  = 16
	rela64Size = 24
)

func (f *File) entrySize(rela bool) int {
	switch {
	case f.Is64() && rela:
		return rela64Size
	case f.Is64():
		return rel64Size
	case rela:
		return rela32Size
	}
	return rel32Size
}

// Relocations decodes every entry in the relocation section. The section's
// entry size is used as the stride through the data. An entry size of zero
// is taken to mean the natural size of the entry type.
func (f *File) Relocations(relsec int) ([]Rel, error) {
	sec, err := f.Section(relsec)
	if err != nil {
		return nil, err
	}

	var rela bool
	switch sec.Type {
	case elf.SHT_REL:
	case elf.SHT_RELA:
		rela = true
	default:
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("%s is not a relocation section", sec.Name))
	}

	data, err := f.SectionData(relsec)
	if err != nil {
		return nil, err
	}

	return f.decodeRelocations(data, int(sec.Entsize), rela, sec.Name)
}

func (f *File) decodeRelocations(data []byte, stride int, rela bool, what string) ([]Rel, error) {
	size := f.entrySize(rela)
	if stride == 0 {
		stride = size
	}
	if stride < size {
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("%s entry size (%d) is smaller than a relocation entry (%d)", what, stride, size))
	}

	rels := make([]Rel, 0, len(data)/stride)

	// a partial entry at the end of the data is ignored in the same way that
	// a loop over sh_size with a stride of sh_entsize would ignore it
	for i := 0; i+size <= len(data); i += stride {
		var r Rel
		e := data[i : i+size]

		if f.Is64() {
			r.Offset = binary.LittleEndian.Uint64(e)
			info := binary.LittleEndian.Uint64(e[8:])
			r.Sym = uint32(info >> 32)
			r.Type = uint32(info & 0xffffffff)
			if rela {
				r.Addend = int64(binary.LittleEndian.Uint64(e[16:]))
				r.HasAddend = true
			}
		} else {
			r.Offset = uint64(binary.LittleEndian.Uint32(e))
			info := binary.LittleEndian.Uint32(e[4:])
			r.Sym = info >> 8
			r.Type = info & 0xff
			if rela {
				r.Addend = int64(int32(binary.LittleEndian.Uint32(e[8:])))
				r.HasAddend = true
			}
		}

		rels = append(rels, r)
	}

	return rels, nil
}
