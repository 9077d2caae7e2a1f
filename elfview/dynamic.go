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

// DynamicTable is the dynamic relocation table of an image, as described by
// the DT_REL, DT_RELSZ and DT_RELENT entries of the PT_DYNAMIC segment.
type DynamicTable struct {
	Rels []Rel
}

// Prog returns the program header with the index. The index is bounds
// checked.
func (f *File) Prog(idx int) (*elf.Prog, error) {
	if idx < 0 || idx >= len(f.Progs) {
		return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("program header index %d outside of program header table (%d entries)", idx, len(f.Progs)))
	}
	return f.Progs[idx], nil
}

// ProgData returns the file bytes of the segment.
func (f *File) ProgData(p *elf.Prog) ([]byte, error) {
	return f.fileBytes(p.Off, p.Filesz, fmt.Sprintf("segment %v", p.Type))
}

// dynamic returns the tag/value pairs of the PT_DYNAMIC segment. Returns nil
// if there is no such segment.
func (f *File) dynamic() ([][2]uint64, error) {
	for _, p := range f.Progs {
		if p.Type != elf.PT_DYNAMIC {
			continue
		}

		data, err := f.ProgData(p)
		if err != nil {
			return nil, err
		}

		var entries [][2]uint64
		if f.Is64() {
			for i := 0; i+16 <= len(data); i += 16 {
				tag := binary.LittleEndian.Uint64(data[i:])
				if elf.DynTag(tag) == elf.DT_NULL {
					break // for loop
				}
				entries = append(entries, [2]uint64{tag, binary.LittleEndian.Uint64(data[i+8:])})
			}
		} else {
			for i := 0; i+8 <= len(data); i += 8 {
				tag := binary.LittleEndian.Uint32(data[i:])
				if elf.DynTag(tag) == elf.DT_NULL {
					break // for loop
				}
				entries = append(entries, [2]uint64{uint64(tag), uint64(binary.LittleEndian.Uint32(data[i+4:]))})
			}
		}

		return entries, nil
	}

	return nil, nil
}

// DynamicRelocations decodes the DT_REL table of the image. Returns nil if
// the image has no PT_DYNAMIC segment or if the dynamic segment has no DT_REL
// entry.
//
// The DT_REL value is a virtual address and is found in the file through the
// first program header that contains it.
func (f *File) DynamicRelocations() (*DynamicTable, error) {
	entries, err := f.dynamic()
	if err != nil {
		return nil, err
	}

	var addr, size, ent uint64
	var found bool
	for _, e := range entries {
		switch elf.DynTag(e[0]) {
		case elf.DT_REL:
			addr = e[1]
			found = true
		case elf.DT_RELSZ:
			size = e[1]
		case elf.DT_RELENT:
			ent = e[1]
		}
	}

	if !found {
		return nil, nil
	}

	for _, p := range f.Progs {
		if addr < p.Vaddr || addr-p.Vaddr >= p.Filesz {
			continue
		}
		off := p.Off + (addr - p.Vaddr)
		data, err := f.fileBytes(off, size, "dynamic relocation table")
		if err != nil {
			return nil, err
		}
		rels, err := f.decodeRelocations(data, int(ent), false, "dynamic relocation table")
		if err != nil {
			return nil, err
		}
		return &DynamicTable{Rels: rels}, nil
	}

	return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("dynamic relocation table at %#x is not in any segment", addr))
}
