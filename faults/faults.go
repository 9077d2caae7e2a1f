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

// Package faults lists the curated error patterns that classify why a
// conversion failed. Every error returned by the convert package has exactly
// one of these patterns somewhere in its chain, which can be tested for with
// curated.Has():
//
//	if curated.Has(err, faults.LayoutInvariant) {
//		...
//	}
//
// None of the faults are recoverable. The conversion stops at the first fault
// and no output image is returned.
package faults

const (
	// the input is not an ELF image that can be converted. detected before any
	// output is produced
	Format = "format error: %v"

	// a section, symbol, program header or file offset lies outside of its
	// table or outside of the data. indicates a corrupt input
	Bounds = "bounds error: %v"

	// relocation type not recognised for the architecture, or a relocation
	// against a symbol that can not be resolved to a section
	UnsupportedRelocation = "unsupported relocation: %v"

	// section alignment or relative section offsets were not preserved by the
	// layout. continuing would corrupt position dependent code
	LayoutInvariant = "layout invariant: %v"

	// the output image could not be allocated
	Resource = "resource error: %v"
)
