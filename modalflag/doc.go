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

// Package modalflag wraps the flag package of the standard library so that a
// command line can be divided into modes, each mode with its own set of
// flags.
//
// Arguments are given to the Modes type with NewArgs() and then processed
// with Parse(). The first Parse() handles the flags that apply to every mode
// and, if sub-modes were added with AddSubModes(), selects the mode. The
// program then calls NewMode(), adds the flags for the selected mode and
// calls Parse() again:
//
//	md := modalflag.Modes{Output: os.Stdout}
//	md.NewArgs(os.Args[1:])
//	md.AddSubModes("CONVERT", "INFO")
//	p, err := md.Parse()
//	switch p {
//	case modalflag.ParseHelp:
//		return
//	case modalflag.ParseError:
//		return err
//	}
//
//	switch md.Mode() {
//	case "CONVERT":
//		md.NewMode()
//		output := md.AddString("o", "", "output file")
//		...
//	}
//
// The first sub-mode is the default mode and is selected if the first
// non-flag argument is not a sub-mode name. Mode names are compared without
// regard to case.
//
// After a call to Parse(), any arguments that are neither flags nor a mode
// name are available through RemainingArgs() and GetArg().
package modalflag
