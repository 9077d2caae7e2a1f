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

//go:build unix

package mapfile

import (
	"os"

	"github.com/jetsetilly/genfw/curated"
	"golang.org/x/sys/unix"
)

// Open maps the named file into memory.
func Open(filename string) (*File, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, curated.Errorf(Error, err)
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return nil, curated.Errorf(Error, err)
	}
	if !st.Mode().IsRegular() {
		return nil, curated.Errorf(Error, "not a regular file")
	}

	// a zero length mapping is an error for mmap() so an empty file is
	// returned as an empty slice without mapping
	if st.Size() == 0 {
		return &File{Data: []byte{}, Filename: filename, release: func() error { return nil }}, nil
	}

	if int64(int(st.Size())) != st.Size() {
		return nil, curated.Errorf(Error, "file too large")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(st.Size()), unix.PROT_READ, unix.MAP_PRIVATE)
	if err != nil {
		return nil, curated.Errorf(Error, err)
	}

	return &File{
		Data:     data,
		Filename: filename,
		release: func() error {
			return unix.Munmap(data)
		},
	}, nil
}
