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

// Package test contains helper functions to remove common boilerplate to make
// testing easier.
//
// The ExpectEquality() is the most basic and probably the most useful
// function. It compares like-typed variables for equality and returns true if
// they match.
//
// The ExpectSuccess() and ExpectFailure() functions test for "success" values.
// A success value is a bool that is true or an error that is nil. A failure
// value is the opposite of those.
//
// The Expect*() functions all report failures with t.Errorf() and the test
// continues. The Demand*() functions are the same but they use t.Fatalf() and
// the test ends immediately. Demand*() should be used when the rest of the
// test depends on the value being tested.
//
// All functions take optional tags which are prepended to the failure message.
// This is useful when the test is being made inside a loop.
//
// The CompareWriter type is an io.Writer that records everything written to it
// so that the output of a function can be compared to an expected string.
//
// The elfimage sub-package builds small ELF files for use as test fixtures.
package test
