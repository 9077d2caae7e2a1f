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

// Package logger is the central log for the conversion. Log entries are made
// with a tag, which should be short and say which part of the program made
// the entry, and a detail:
//
//	logger.Logf(logger.Allow, "layout", "text section alignment is %#x", align)
//
// Every log request includes a Permission. Permission implementations decide
// whether an entry is to be made. The Allow value is a good default when an
// entry should always be made. The convert package uses the Permission found
// in the Options it is given, which means that a caller can silence a
// conversion without silencing the rest of the program.
//
// Identical entries are not repeated. Instead the earlier entry is marked as
// having been repeated and the repeat count is shown when the log is written.
//
// There is one central log for the program but additional, independent
// logs can be created with NewLogger(). These are useful for testing.
package logger
