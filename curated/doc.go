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

// Package curated is a helper package for the plain Go language error type.
// Curated errors implement the error interface and are created with the
// Errorf() function. Errorf() takes a formatting pattern and placeholder
// values, in the same way as fmt.Errorf().
//
// The pattern is remembered and can be tested for with the Is() and Has()
// functions. Is() checks the outermost pattern only. Has() checks the entire
// chain of wrapped curated errors:
//
//	e := curated.Errorf("section %d out of range", 10)
//	f := curated.Errorf("convert: %v", e)
//
//	curated.Is(f, "convert: %v")              // true
//	curated.Is(f, "section %d out of range")  // false
//	curated.Has(f, "section %d out of range") // true
//
// Patterns that are used for testing should be stored as a const string. The
// faults package is an example of that.
//
// The Error() function normalises the error chain. The chain is made up of
// parts separated by the sub-string ": ", and adjacent duplicate parts are
// removed. This means that a function can wrap an error with a prefix without
// worrying whether the function it called has already used the same prefix:
//
//	convert: convert: bad magic
//
// is printed as:
//
//	convert: bad magic
package curated
