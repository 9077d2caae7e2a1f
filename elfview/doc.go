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

// Package elfview is a read-only view of an ELF image held in memory. It
// wraps the debug/elf package of the standard library and adds the things
// that debug/elf does not provide: strict checks of the identification bytes
// before any parsing is attempted, decoding of raw REL and RELA entries with
// the entry size stated by the section header, and decoding of the dynamic
// relocation table found through the PT_DYNAMIC segment.
//
// The bytes given to Parse() are never modified.
//
// Errors are curated errors with one of the patterns from the faults package.
package elfview
