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
	"debug/pe"
	"encoding/binary"
)

// sizes of the fixed parts of a PE image.
const (
	DOSHeaderSize        = 64
	DOSStubSize          = 0x40
	SignatureSize        = 4
	FileHeaderSize       = 20
	OptionalHeader32Size = 224
	OptionalHeader64Size = 240
	SectionHeaderSize    = 40
)

// NTOffset is the offset of the NT headers before any adjustment for section
// alignment.
const NTOffset = DOSHeaderSize + DOSStubSize

// NumberOfDirectoryEntries in the optional header.
const NumberOfDirectoryEntries = 16

// optional header magic values.
const (
	MagicPE32     = 0x10b
	MagicPE32Plus = 0x20b
)

// PESignature is the "PE\0\0" signature at the start of the NT headers.
const PESignature = 0x00004550

// NTHeaderSize returns the size of the signature, file header and optional
// header for PE32 or PE32+.
func NTHeaderSize(is64 bool) int {
	if is64 {
		return SignatureSize + FileHeaderSize + OptionalHeader64Size
	}
	return SignatureSize + FileHeaderSize + OptionalHeader32Size
}

// DOSHeader returns the DOS header with the e_lfanew field pointing to the NT
// headers. The stub area that follows the header is left to the caller and is
// normally zero.
func DOSHeader(lfanew uint32) []byte {
	b := make([]byte, DOSHeaderSize)
	b[0] = 'M'
	b[1] = 'Z'
	binary.LittleEndian.PutUint32(b[0x3c:], lfanew)
	return b
}

// section characteristics for the logical sections of a converted image.
const (
	TextCharacteristics     = pe.IMAGE_SCN_CNT_CODE | pe.IMAGE_SCN_MEM_EXECUTE | pe.IMAGE_SCN_MEM_READ
	DataCharacteristics     = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ | pe.IMAGE_SCN_MEM_WRITE
	ResourceCharacteristics = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ
	ExportCharacteristics   = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_READ
	RelocCharacteristics    = pe.IMAGE_SCN_CNT_INITIALIZED_DATA | pe.IMAGE_SCN_MEM_DISCARDABLE | pe.IMAGE_SCN_MEM_READ
)

// file header characteristics common to every converted image. One of
// pe.IMAGE_FILE_32BIT_MACHINE or pe.IMAGE_FILE_LARGE_ADDRESS_AWARE is added
// depending on the image width.
const FileCharacteristics = pe.IMAGE_FILE_EXECUTABLE_IMAGE | pe.IMAGE_FILE_LINE_NUMS_STRIPPED | pe.IMAGE_FILE_LOCAL_SYMS_STRIPPED

// SectionHeader returns a section header where the file and memory layouts
// are identical, which is always true of a converted image.
func SectionHeader(name string, offset uint32, size uint32, characteristics uint32) pe.SectionHeader32 {
	var s pe.SectionHeader32
	copy(s.Name[:], name)
	s.VirtualSize = size
	s.VirtualAddress = offset
	s.SizeOfRawData = size
	s.PointerToRawData = offset
	s.Characteristics = characteristics
	return s
}

// offsets of fields in the optional header that are patched after the
// headers have been written. the offsets are from the start of the optional
// header and are the same for PE32 and PE32+.
const OptionalHeaderSizeOfImage = 56

// OptionalHeaderOffset is the offset of the optional header from the start of
// the NT headers.
const OptionalHeaderOffset = SignatureSize + FileHeaderSize

// DataDirectoryOffset returns the offset of the data directory array from the
// start of the optional header.
func DataDirectoryOffset(is64 bool) int {
	if is64 {
		return 112
	}
	return 96
}

// FileHeaderNumberOfSections is the offset of the NumberOfSections field from
// the start of the NT headers.
const FileHeaderNumberOfSections = SignatureSize + 2
