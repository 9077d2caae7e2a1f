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

// Package arena is the output buffer of a conversion. The buffer only ever
// grows and all access is through byte offsets, never through pointers or
// slices kept across a call to Grow(). Every accessor is bounds checked and
// returns a curated error with the faults.Bounds pattern if the access would
// fall outside the buffer.
//
// All multi-byte values are little-endian.
package arena

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// MaxSize is the largest buffer that can be allocated. PE images are limited
// by the 32bit SizeOfImage field.
const MaxSize = 0x7fffffff

// Arena is a growable byte buffer.
type Arena struct {
	data []byte
}

// New allocates a zero filled arena of the specified size.
func New(size int) (*Arena, error) {
	if size < 0 || size > MaxSize {
		return nil, curated.Errorf(faults.Resource, fmt.Sprintf("cannot allocate arena of %d bytes", size))
	}
	return &Arena{data: make([]byte, size)}, nil
}

// Len returns the current length of the arena.
func (a *Arena) Len() int {
	return len(a.data)
}

// Bytes returns the contents of the arena. The slice is invalidated by the
// next call to Grow().
func (a *Arena) Bytes() []byte {
	return a.data
}

// Grow extends the arena by n zero bytes and returns the offset of the first
// new byte.
func (a *Arena) Grow(n int) (int, error) {
	if n < 0 || len(a.data)+n > MaxSize {
		return 0, curated.Errorf(faults.Resource, fmt.Sprintf("cannot grow arena of %d bytes by %d bytes", len(a.data), n))
	}
	off := len(a.data)
	a.data = append(a.data, make([]byte, n)...)
	return off, nil
}

// Append the bytes to the end of the arena and return the offset at which
// they were placed.
func (a *Arena) Append(p []byte) (int, error) {
	off, err := a.Grow(len(p))
	if err != nil {
		return 0, err
	}
	copy(a.data[off:], p)
	return off, nil
}

func (a *Arena) check(off int, n int) error {
	if off < 0 || n < 0 || off > len(a.data) || n > len(a.data)-off {
		return curated.Errorf(faults.Bounds, fmt.Sprintf("arena access of %d bytes at %#x outside of %#x bytes", n, off, len(a.data)))
	}
	return nil
}

// Slice returns a view of n bytes at offset. The slice is invalidated by the
// next call to Grow().
func (a *Arena) Slice(off int, n int) ([]byte, error) {
	if err := a.check(off, n); err != nil {
		return nil, err
	}
	return a.data[off : off+n : off+n], nil
}

// Copy src into the arena at offset.
func (a *Arena) Copy(off int, src []byte) error {
	if err := a.check(off, len(src)); err != nil {
		return err
	}
	copy(a.data[off:], src)
	return nil
}

// Zero n bytes at offset.
func (a *Arena) Zero(off int, n int) error {
	if err := a.check(off, n); err != nil {
		return err
	}
	clear(a.data[off : off+n])
	return nil
}

// Write the binary encoding of v at offset. The value must be a fixed size
// value suitable for binary.Write().
func (a *Arena) Write(off int, v any) error {
	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, v); err != nil {
		return curated.Errorf(faults.Bounds, err)
	}
	return a.Copy(off, b.Bytes())
}

// Uint8 returns the byte at offset.
func (a *Arena) Uint8(off int) (uint8, error) {
	if err := a.check(off, 1); err != nil {
		return 0, err
	}
	return a.data[off], nil
}

// Uint16 returns the 16bit value at offset.
func (a *Arena) Uint16(off int) (uint16, error) {
	if err := a.check(off, 2); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(a.data[off:]), nil
}

// Uint32 returns the 32bit value at offset.
func (a *Arena) Uint32(off int) (uint32, error) {
	if err := a.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(a.data[off:]), nil
}

// Uint64 returns the 64bit value at offset.
func (a *Arena) Uint64(off int) (uint64, error) {
	if err := a.check(off, 8); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(a.data[off:]), nil
}

// PutUint8 sets the byte at offset.
func (a *Arena) PutUint8(off int, v uint8) error {
	if err := a.check(off, 1); err != nil {
		return err
	}
	a.data[off] = v
	return nil
}

// PutUint16 sets the 16bit value at offset.
func (a *Arena) PutUint16(off int, v uint16) error {
	if err := a.check(off, 2); err != nil {
		return err
	}
	binary.LittleEndian.PutUint16(a.data[off:], v)
	return nil
}

// PutUint32 sets the 32bit value at offset.
func (a *Arena) PutUint32(off int, v uint32) error {
	if err := a.check(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(a.data[off:], v)
	return nil
}

// PutUint64 sets the 64bit value at offset.
func (a *Arena) PutUint64(off int, v uint64) error {
	if err := a.check(off, 8); err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(a.data[off:], v)
	return nil
}
