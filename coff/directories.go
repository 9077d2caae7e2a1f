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

// DebugDirectoryEntry is an IMAGE_DEBUG_DIRECTORY_ENTRY.
type DebugDirectoryEntry struct {
	Characteristics uint32
	TimeDateStamp   uint32
	MajorVersion    uint16
	MinorVersion    uint16
	Type            uint32
	SizeOfData      uint32
	RVA             uint32
	FileOffset      uint32
}

// DebugDirectoryEntrySize is the encoded size of DebugDirectoryEntry.
const DebugDirectoryEntrySize = 28

// DebugTypeCodeView is the Type value of a CodeView debug entry.
const DebugTypeCodeView = 2

// CodeViewNB10 is the record pointed to by a CodeView debug entry. The
// NUL terminated name of the image follows the record.
type CodeViewNB10 struct {
	Signature uint32
	Unknown   uint32
	Unknown2  uint32
	Unknown3  uint32
}

// CodeViewNB10Size is the encoded size of CodeViewNB10.
const CodeViewNB10Size = 16

// CodeViewNB10Signature is the string "NB10" read as a little-endian value.
const CodeViewNB10Signature = 0x3031424e

// DebugSize returns the number of bytes required for a debug directory entry
// and the CodeView record for the named image.
func DebugSize(name string) int {
	return DebugDirectoryEntrySize + CodeViewNB10Size + len(name) + 1
}

// ExportDirectory is an IMAGE_EXPORT_DIRECTORY.
type ExportDirectory struct {
	Characteristics       uint32
	TimeDateStamp         uint32
	MajorVersion          uint16
	MinorVersion          uint16
	Name                  uint32
	Base                  uint32
	NumberOfFunctions     uint32
	NumberOfNames         uint32
	AddressOfFunctions    uint32
	AddressOfNames        uint32
	AddressOfNameOrdinals uint32
}

// ExportDirectorySize is the encoded size of ExportDirectory.
const ExportDirectorySize = 40

// the resource directory structures are accessed by offset in the
// resource section rather than through Go types.
const (
	// IMAGE_RESOURCE_DIRECTORY
	ResourceDirectorySize         = 16
	ResourceDirectoryNamedEntries = 12
	ResourceDirectoryIDEntries    = 14
	ResourceDirectoryEntrySize    = 8
	ResourceDataEntrySize         = 16
	ResourceNameIsString          = 0x80000000
	ResourceDataIsDirectory       = 0x80000000
	ResourceOffsetMask            = 0x7fffffff
)
