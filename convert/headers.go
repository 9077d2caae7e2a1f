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
	"debug/pe"
	"fmt"

	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// writeHeaders writes the DOS header, NT headers and the section table
// entries for the regions planned by the layout. The .reloc section header is
// added when the relocations have been built.
func (ctx *Context) writeHeaders() error {
	l := ctx.layout
	is64 := ctx.elf.Is64()

	if err := ctx.out.Copy(0, coff.DOSHeader(l.NTOffset)); err != nil {
		return err
	}

	nt := int(l.NTOffset)
	if err := ctx.out.PutUint32(nt, coff.PESignature); err != nil {
		return err
	}

	fh := pe.FileHeader{
		Machine:         ctx.tr.Machine(),
		Characteristics: coff.FileCharacteristics,
	}
	if is64 {
		fh.SizeOfOptionalHeader = coff.OptionalHeader64Size
		fh.Characteristics |= pe.IMAGE_FILE_LARGE_ADDRESS_AWARE
	} else {
		fh.SizeOfOptionalHeader = coff.OptionalHeader32Size
		fh.Characteristics |= pe.IMAGE_FILE_32BIT_MACHINE
	}
	if err := ctx.out.Write(nt+coff.SignatureSize, fh); err != nil {
		return err
	}

	var oh any
	if is64 {
		oh = pe.OptionalHeader64{
			Magic:                 coff.MagicPE32Plus,
			SizeOfCode:            l.Data - l.Text,
			SizeOfInitializedData: l.Reloc - l.Data,
			AddressOfEntryPoint:   l.Entry,
			BaseOfCode:            l.Text,
			SectionAlignment:      l.Alignment,
			FileAlignment:         l.Alignment,
			SizeOfHeaders:         l.Text,
			NumberOfRvaAndSizes:   coff.NumberOfDirectoryEntries,
		}
	} else {
		oh = pe.OptionalHeader32{
			Magic:                 coff.MagicPE32,
			SizeOfCode:            l.Data - l.Text,
			SizeOfInitializedData: l.Reloc - l.Data,
			AddressOfEntryPoint:   l.Entry,
			BaseOfCode:            l.Text,
			BaseOfData:            l.Data,
			SectionAlignment:      l.Alignment,
			FileAlignment:         l.Alignment,
			SizeOfHeaders:         l.Text,
			NumberOfRvaAndSizes:   coff.NumberOfDirectoryEntries,
		}
	}
	if err := ctx.out.Write(nt+coff.OptionalHeaderOffset, oh); err != nil {
		return err
	}

	if err := ctx.addSection(".text", l.Text, l.Data-l.Text, coff.TextCharacteristics); err != nil {
		return err
	}
	if err := ctx.addSection(".data", l.Data, l.Resource-l.Data, coff.DataCharacteristics); err != nil {
		return err
	}
	if l.Export > l.Resource {
		if err := ctx.addSection(".rsrc", l.Resource, l.Export-l.Resource, coff.ResourceCharacteristics); err != nil {
			return err
		}
		if err := ctx.setDirectory(pe.IMAGE_DIRECTORY_ENTRY_RESOURCE, l.Resource, l.Export-l.Resource); err != nil {
			return err
		}
	}
	if l.Reloc > l.Export {
		if err := ctx.addSection(".edata", l.Export, l.Reloc-l.Export, coff.ExportCharacteristics); err != nil {
			return err
		}
	}

	return nil
}

// addSection adds an entry to the section table and updates the number of
// sections in the file header. Empty sections are not added.
func (ctx *Context) addSection(name string, offset uint32, size uint32, characteristics uint32) error {
	if size == 0 {
		ctx.logf("layout", "%s is empty and has no section header", name)
		return nil
	}
	if ctx.numSections >= ctx.reservedSections() {
		return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("no room in section table for %s", name))
	}

	off := int(ctx.layout.TableOffset) + ctx.numSections*coff.SectionHeaderSize
	if err := ctx.out.Write(off, coff.SectionHeader(name, offset, size, characteristics)); err != nil {
		return err
	}
	ctx.numSections++

	return ctx.out.PutUint16(int(ctx.layout.NTOffset)+coff.FileHeaderNumberOfSections, uint16(ctx.numSections))
}

// setDirectory sets an entry in the data directory of the optional header.
func (ctx *Context) setDirectory(idx int, rva uint32, size uint32) error {
	off := int(ctx.layout.NTOffset) + coff.OptionalHeaderOffset + coff.DataDirectoryOffset(ctx.elf.Is64()) + idx*8
	return ctx.out.Write(off, pe.DataDirectory{VirtualAddress: rva, Size: size})
}

// finalise records the size of the image in the optional header.
func (ctx *Context) finalise() error {
	off := int(ctx.layout.NTOffset) + coff.OptionalHeaderOffset + coff.OptionalHeaderSizeOfImage
	return ctx.out.PutUint32(off, uint32(ctx.out.Len()))
}
