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

package coff

import (
	"encoding/binary"
	"fmt"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// base relocation types. several types share a value and are distinguished by
// the machine type of the image.
const (
	RelBasedAbsolute          = 0
	RelBasedHighLow           = 3
	RelBasedARMMov32          = 5
	RelBasedRISCVHi20         = 5
	RelBasedThumbMov32        = 7
	RelBasedRISCVLow12I       = 7
	RelBasedRISCVLow12S       = 8
	RelBasedLoongArch64MarkLA = 8
	RelBasedDir64             = 10
)

// the size of the header of a base relocation block.
const baseRelocBlockHeader = 8

// BaseRelocs accumulates base relocation entries and encodes them as a list
// of blocks, one block for each run of entries on the same 4KB page.
//
// A new block is started whenever an entry falls on a page different to the
// current block. Before a new block is started the current block is closed
// with a zero entry and, if necessary, a second zero entry so that the next
// block header is 4 byte aligned.
type BaseRelocs struct {
	buf []byte

	// offset of the current block header in buf. negative if there is no
	// current block
	block int
	page  uint32

	entries int
}

// NewBaseRelocs is the preferred method of initialisation for the BaseRelocs
// type.
func NewBaseRelocs() *BaseRelocs {
	return &BaseRelocs{block: -1}
}

func (b *BaseRelocs) entry(v uint16) {
	b.buf = binary.LittleEndian.AppendUint16(b.buf, v)
	size := binary.LittleEndian.Uint32(b.buf[b.block+4:])
	binary.LittleEndian.PutUint32(b.buf[b.block+4:], size+2)
}

// Add an entry for the RVA with the relocation type.
func (b *BaseRelocs) Add(rva uint32, typ uint16) {
	page := rva &^ 0xfff
	if b.block < 0 || page != b.page {
		if b.block >= 0 {
			b.entry(0)
			if len(b.buf)%4 != 0 {
				b.entry(0)
			}
		}
		b.block = len(b.buf)
		b.page = page
		b.buf = binary.LittleEndian.AppendUint32(b.buf, page)
		b.buf = binary.LittleEndian.AppendUint32(b.buf, baseRelocBlockHeader)
	}
	b.entry(typ<<12 | uint16(rva&0xfff))
	b.entries++
}

// Entries returns the number of entries added with Add(). Terminators and
// padding are not counted.
func (b *BaseRelocs) Entries() int {
	return b.entries
}

// Len returns the current encoded length.
func (b *BaseRelocs) Len() int {
	return len(b.buf)
}

// Finish pads the last block with zero entries until the length is a multiple
// of alignment and returns the encoded directory. An empty directory is not
// padded.
func (b *BaseRelocs) Finish(alignment int) []byte {
	if b.block >= 0 && alignment > 1 {
		for len(b.buf)%alignment != 0 {
			b.entry(0)
		}
	}
	return b.buf
}

// Block is a decoded base relocation block.
type Block struct {
	Page    uint32
	Size    uint32
	Entries []uint16
}

// Type returns the relocation type of entry i.
func (b Block) Type(i int) uint16 {
	return b.Entries[i] >> 12
}

// RVA returns the address that entry i applies to.
func (b Block) RVA(i int) uint32 {
	return b.Page + uint32(b.Entries[i]&0xfff)
}

// ParseBaseRelocs decodes a base relocation directory.
func ParseBaseRelocs(data []byte) ([]Block, error) {
	var blocks []Block
	for off := 0; off < len(data); {
		if len(data)-off < baseRelocBlockHeader {
			return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("truncated base relocation block header at %#x", off))
		}
		page := binary.LittleEndian.Uint32(data[off:])
		size := binary.LittleEndian.Uint32(data[off+4:])
		if size < baseRelocBlockHeader || size%2 != 0 || int(size) > len(data)-off {
			return nil, curated.Errorf(faults.Bounds, fmt.Sprintf("invalid base relocation block size %#x at %#x", size, off))
		}
		blk := Block{Page: page, Size: size}
		for i := off + baseRelocBlockHeader; i < off+int(size); i += 2 {
			blk.Entries = append(blk.Entries, binary.LittleEndian.Uint16(data[i:]))
		}
		blocks = append(blocks, blk)
		off += int(size)
	}
	return blocks, nil
}
