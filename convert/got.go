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
	"slices"

	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// gotTable records the GOT slots referenced by the image. every slot is
// written and given a base relocation exactly once, no matter how many
// references there are to it.
type gotTable struct {
	// index of the section containing the GOT. zero if no GOT reference has
	// been seen
	section int

	// slot RVA to the value the slot should hold
	slots map[uint32]uint64

	emitted bool
}

func newGOTTable() gotTable {
	return gotTable{
		slots: make(map[uint32]uint64),
	}
}

// slotRVA returns the output RVA of the GOT slot at the ELF address. The
// first call decides which section is the GOT. A slot in any other section
// is an error.
func (ctx *Context) slotRVA(addr uint64) (uint32, error) {
	g := &ctx.got

	if g.section == 0 {
		for i, sec := range ctx.elf.Sections {
			if sec.Flags&elf.SHF_ALLOC == 0 {
				continue
			}
			if addr >= sec.Addr && addr-sec.Addr < sec.Size {
				g.section = i
				ctx.logf("got", "GOT is in %s", sec.Name)
				break // for loop
			}
		}
		if g.section == 0 {
			return 0, curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("GOT slot at %#x is not in any section", addr))
		}
	}

	sec := ctx.elf.Sections[g.section]
	if addr < sec.Addr || addr-sec.Addr+8 > sec.Size {
		return 0, curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("GOT slot at %#x is not in the GOT (%s)", addr, sec.Name))
	}

	rva, err := ctx.addressOf(g.section, addr)
	if err != nil {
		return 0, err
	}
	return uint32(rva), nil
}

// recordSlot notes the value of a GOT slot. returns true if the slot has not
// been seen before.
func (ctx *Context) recordSlot(rva uint32, value uint64) bool {
	if _, ok := ctx.got.slots[rva]; ok {
		return false
	}
	ctx.got.slots[rva] = value
	ctx.logf("got", "slot at %#x holds %#x", rva, value)
	return true
}

// emitGOT writes the value of every GOT slot and adds a DIR64 base relocation
// for each, in order of RVA. only the first call has any effect.
func (ctx *Context) emitGOT() error {
	if ctx.got.emitted {
		return nil
	}
	ctx.got.emitted = true

	rvas := make([]uint32, 0, len(ctx.got.slots))
	for rva := range ctx.got.slots {
		rvas = append(rvas, rva)
	}
	slices.Sort(rvas)

	for _, rva := range rvas {
		if err := ctx.out.PutUint64(int(rva), ctx.got.slots[rva]); err != nil {
			return err
		}
		ctx.addFixupAt(rva, coff.RelBasedDir64)
	}

	return nil
}
