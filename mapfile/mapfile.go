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

// Package mapfile opens an input file as a read-only byte slice. On unix
// platforms the file is memory mapped. On other platforms the file is read
// into memory.
//
// The data of a mapped file must not be used after Close() has been called.
package mapfile

import (
	"github.com/jetsetilly/genfw/curated"
)

// Error pattern for all mapfile errors.
const Error = "mapfile: %v"

// File is an opened, read-only file.
type File struct {
	// the contents of the file
	Data []byte

	// the filename given to Open()
	Filename string

	release func() error
}

// Close releases the resources held by the File. It is safe to call Close()
// more than once.
func (f *File) Close() error {
	if f.release == nil {
		return nil
	}
	err := f.release()
	f.release = nil
	f.Data = nil
	if err != nil {
		return curated.Errorf(Error, err)
	}
	return nil
}
