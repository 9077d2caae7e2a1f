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

// Package convert turns a fully linked ELF image into a PE32 or PE32+ image
// suitable for a UEFI PE/COFF loader.
//
// A conversion is a fixed sequence of phases. The layout of the output image
// is planned first and the headers written. The text, data and resource
// sections are then copied into place and the relocations that apply to them
// are resolved in place. A second walk over the relocations decides which of
// them must survive as PE base relocations. Finally the debug directory and,
// if requested, the export directory are written and the image size recorded
// in the optional header.
//
// All state for a conversion is held by a Context which is created by
// Convert() and discarded when the conversion is complete. Concurrent calls
// to Convert() are safe.
//
// Relocation handling differs for each instruction set and is implemented by
// the Translator interface. There is one Translator for each of x86, x64, ARM,
// AArch64, RISC-V and LoongArch.
//
// Errors are curated errors using the patterns in the faults package.
package convert
