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

package convert_test

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"testing"

	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/convert"
	"github.com/jetsetilly/genfw/logger"
	"github.com/jetsetilly/genfw/test"
	"github.com/jetsetilly/genfw/test/elfimage"
)

// options used by tests that don't need to see the log.
var quiet = convert.Options{Log: logger.Deny}

func mustConvert(t *testing.T, b *elfimage.Builder, opts convert.Options) *convert.Result {
	t.Helper()
	res, err := convert.Convert(b.Bytes(), opts)
	test.DemandSuccess(t, err)
	return res
}

// placements returns the output offset of every ELF section that is in the
// output image, keyed by name.
func placements(t *testing.T, b *elfimage.Builder) map[string]uint32 {
	t.Helper()
	rep, err := convert.Inspect(b.Bytes(), quiet)
	test.DemandSuccess(t, err)
	m := make(map[string]uint32)
	for _, s := range rep.Sections {
		if s.Class != "excluded" {
			m[s.Name] = s.Offset
		}
	}
	return m
}

func peFile(t *testing.T, img []byte) *pe.File {
	t.Helper()
	f, err := pe.NewFile(bytes.NewReader(img))
	test.DemandSuccess(t, err)
	return f
}

// directory reads an entry of the data directory array from the image. the
// headers are read directly because debug/pe does not recognise every
// machine type that can be converted.
func directory(t *testing.T, img []byte, idx int) pe.DataDirectory {
	t.Helper()
	test.DemandSuccess(t, len(img) >= coff.DOSHeaderSize)
	nt := binary.LittleEndian.Uint32(img[0x3c:])
	test.DemandEquality(t, u32(img, nt), uint32(coff.PESignature))

	opt := nt + coff.OptionalHeaderOffset
	var is64 bool
	switch u16(img, opt) {
	case coff.MagicPE32Plus:
		is64 = true
	case coff.MagicPE32:
	default:
		t.Fatalf("unrecognised optional header magic %#x", u16(img, opt))
	}

	off := opt + uint32(coff.DataDirectoryOffset(is64)+idx*8)
	return pe.DataDirectory{
		VirtualAddress: u32(img, off),
		Size:           u32(img, off+4),
	}
}

type fixup struct {
	rva uint32
	typ uint16
}

func baseRelocBlocks(t *testing.T, img []byte) []coff.Block {
	t.Helper()
	dir := directory(t, img, pe.IMAGE_DIRECTORY_ENTRY_BASERELOC)
	if dir.Size == 0 {
		return nil
	}
	blocks, err := coff.ParseBaseRelocs(img[dir.VirtualAddress : dir.VirtualAddress+dir.Size])
	test.DemandSuccess(t, err)
	return blocks
}

// fixups returns the base relocations of the image in the order they appear,
// without the padding entries.
func fixups(t *testing.T, img []byte) []fixup {
	t.Helper()
	var f []fixup
	for _, b := range baseRelocBlocks(t, img) {
		for i := range b.Entries {
			if b.Type(i) == coff.RelBasedAbsolute {
				continue
			}
			f = append(f, fixup{rva: b.RVA(i), typ: b.Type(i)})
		}
	}
	return f
}

func u16(img []byte, off uint32) uint16 {
	return binary.LittleEndian.Uint16(img[off:])
}

func u32(img []byte, off uint32) uint32 {
	return binary.LittleEndian.Uint32(img[off:])
}

func u64(img []byte, off uint32) uint64 {
	return binary.LittleEndian.Uint64(img[off:])
}

// words encodes 32bit values, usually instructions, as little-endian bytes.
func words(v ...uint32) []byte {
	b := make([]byte, 0, len(v)*4)
	for _, w := range v {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

// cstring returns the NUL terminated string at the offset.
func cstring(img []byte, off uint32) string {
	s := img[off:]
	if i := bytes.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return string(s)
}
