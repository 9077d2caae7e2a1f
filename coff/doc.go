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

// Package coff contains the definitions of the PE/COFF container that are
// not provided by the debug/pe package of the standard library, along with
// helpers to encode the headers and the base relocation directory.
//
// Structures that are in debug/pe (FileHeader, OptionalHeader32,
// OptionalHeader64, SectionHeader32, DataDirectory) are used as they are and
// encoded with encoding/binary in little-endian order.
package coff
