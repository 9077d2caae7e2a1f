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

	"github.com/jetsetilly/genfw/arena"
	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// the name of the section containing the HII resource directory.
const hiiSectionName = ".hii"

// section alignment limits.
const (
	minAlignment = 0x20
	maxAlignment = 0x10000
)

// class is the destination of an ELF section in the output image.
type class int

// list of valid class values.
const (
	classExcluded class = iota
	classText
	classData
	classResource
)

func (c class) String() string {
	switch c {
	case classText:
		return "text"
	case classData:
		return "data"
	case classResource:
		return "resource"
	}
	return "excluded"
}

// classify an ELF section. read-only allocated sections are merged into the
// text region.
func classify(sec *elf.Section) class {
	if sec.Name == hiiSectionName {
		return classResource
	}
	if sec.Flags&elf.SHF_ALLOC == 0 {
		return classExcluded
	}
	if sec.Flags&elf.SHF_EXECINSTR == elf.SHF_EXECINSTR || sec.Flags&elf.SHF_WRITE == 0 {
		return classText
	}
	return classData
}

// Layout is the plan of the output image. All offsets are file offsets, which
// are also RVAs because the file and memory layouts of the image are the
// same.
type Layout struct {
	// section and file alignment of the image
	Alignment uint32

	// offset of the NT headers and the section table
	NTOffset    uint32
	TableOffset uint32

	// start of each region. a region ends where the next one starts
	Text     uint32
	Data     uint32
	Resource uint32
	Export   uint32
	Reloc    uint32

	// the debug directory is inside the data region or, if there are no data
	// sections, at the end of the text region
	Debug uint32

	// entry point of the image
	Entry      uint32
	EntryFound bool

	class     []class
	placement []uint32
}

// Placement returns the output offset of the ELF section. It is an error to
// ask for the placement of a section that is not in the output image.
func (l *Layout) Placement(idx int) (uint32, error) {
	if idx <= 0 || idx >= len(l.class) {
		return 0, curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("no placement for section index %d", idx))
	}
	if l.class[idx] == classExcluded {
		return 0, curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("section %d is not in the output image", idx))
	}
	return l.placement[idx], nil
}

// Class returns the class of the ELF section.
func (l *Layout) Class(idx int) class {
	if idx <= 0 || idx >= len(l.class) {
		return classExcluded
	}
	return l.class[idx]
}

// the number of section table entries to reserve.
func (ctx *Context) reservedSections() int {
	if ctx.opts.Export {
		return 5
	}
	return 4
}

func align(v uint64, a uint64) uint64 {
	if a <= 1 {
		return v
	}
	return (v + a - 1) &^ (a - 1)
}

// plan the layout of the output image, allocate the output arena and write
// the headers.
func (ctx *Context) plan() error {
	f := ctx.elf

	l := &Layout{
		Alignment: minAlignment,
		class:     make([]class, len(f.Sections)),
		placement: make([]uint32, len(f.Sections)),
	}

	alignment := uint64(minAlignment)
	for i, sec := range f.Sections {
		if i == 0 {
			continue
		}
		l.class[i] = classify(sec)
		if l.class[i] != classExcluded && sec.Addralign > alignment {
			alignment = sec.Addralign
		}
	}
	if alignment > maxAlignment {
		return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("section alignment of %#x is too large", alignment))
	}
	l.Alignment = uint32(alignment)

	// headers. the NT headers and section table are moved so that they end
	// on the first alignment boundary
	offset := uint64(coff.NTOffset)
	l.NTOffset = uint32(offset)
	offset += uint64(coff.NTHeaderSize(f.Is64()))
	l.TableOffset = uint32(offset)
	offset += uint64(ctx.reservedSections() * coff.SectionHeaderSize)
	if alignment > offset {
		shift := alignment - offset
		l.NTOffset += uint32(shift)
		l.TableOffset += uint32(shift)
		offset = alignment
	}

	place := func(idx int, sec *elf.Section) error {
		if sec.Addralign > 1 {
			if sec.Addr&(sec.Addralign-1) != 0 {
				return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("%s address %#x is not aligned to its own alignment of %#x", sec.Name, sec.Addr, sec.Addralign))
			}
			offset = align(offset, sec.Addralign)
		}
		l.placement[idx] = uint32(offset)

		if !l.EntryFound && f.Entry >= sec.Addr && f.Entry-sec.Addr < sec.Size {
			l.Entry = uint32(offset + f.Entry - sec.Addr)
			l.EntryFound = true
		}

		ctx.logf("layout", "%s (%v) placed at %#x (%#x bytes)", sec.Name, l.class[idx], offset, sec.Size)
		offset += sec.Size
		if offset > arena.MaxSize {
			return curated.Errorf(faults.Resource, fmt.Sprintf("output image is too large (%#x bytes)", offset))
		}
		return nil
	}

	// text
	var found bool
	l.Text = uint32(offset)
	for i, sec := range f.Sections {
		if l.class[i] != classText {
			continue
		}
		if err := place(i, sec); err != nil {
			return err
		}
		if !found {
			l.Text = l.placement[i]
			found = true
		}
	}
	if !found {
		return curated.Errorf(faults.LayoutInvariant, "no text section")
	}

	debug := align(offset, 4)
	offset = align(offset, alignment)

	// data. the debug directory is placed at the end of the data
	found = false
	l.Data = uint32(offset)
	for i, sec := range f.Sections {
		if l.class[i] != classData {
			continue
		}
		if err := place(i, sec); err != nil {
			return err
		}
		if !found {
			l.Data = l.placement[i]
			found = true
		}
	}
	if found {
		debug = align(offset, 4)
	}
	l.Debug = uint32(debug)
	offset = align(debug+uint64(coff.DebugSize(ctx.opts.Name)), alignment)
	if !found {
		l.Data = uint32(offset)
	}

	// resource. only the first resource section is used
	l.Resource = uint32(offset)
	for i, sec := range f.Sections {
		if l.class[i] != classResource {
			continue
		}
		if sec.Size == 0 {
			l.class[i] = classExcluded
			break // for loop
		}
		if err := place(i, sec); err != nil {
			return err
		}
		l.Resource = l.placement[i]
		offset = align(offset, alignment)
		break // for loop
	}

	// any other resource sections are not in the output
	for i := range l.class {
		if l.class[i] == classResource && l.placement[i] == 0 {
			l.class[i] = classExcluded
		}
	}

	// the export table refers to the placement of the handler symbols
	ctx.layout = l

	// export
	l.Export = uint32(offset)
	if ctx.opts.Export {
		exports, err := ctx.collectExports()
		if err != nil {
			return err
		}
		ctx.exports = exports
		offset = align(offset+uint64(exports.size()), alignment)
	}

	l.Reloc = uint32(offset)
	if offset > arena.MaxSize {
		return curated.Errorf(faults.Resource, fmt.Sprintf("output image is too large (%#x bytes)", offset))
	}

	if !l.EntryFound {
		ctx.logf("layout", "entry point %#x is not in any section of the output image", f.Entry)
	}

	var err error
	ctx.out, err = arena.New(int(l.Reloc))
	if err != nil {
		return err
	}

	return ctx.writeHeaders()
}
