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

package convert

import (
	"debug/pe"

	"github.com/jetsetilly/genfw/coff"
)

// writeDebug writes the CodeView debug directory entry and the NB10 record
// naming the image into the space reserved by the layout.
func (ctx *Context) writeDebug() error {
	off := ctx.layout.Debug
	name := ctx.opts.Name

	entry := coff.DebugDirectoryEntry{
		Type:       coff.DebugTypeCodeView,
		SizeOfData: uint32(coff.CodeViewNB10Size + len(name) + 1),
		RVA:        off + coff.DebugDirectoryEntrySize,
		FileOffset: off + coff.DebugDirectoryEntrySize,
	}
	if err := ctx.out.Write(int(off), entry); err != nil {
		return err
	}

	nb10 := coff.CodeViewNB10{
		Signature: coff.CodeViewNB10Signature,
	}
	if err := ctx.out.Write(int(entry.RVA), nb10); err != nil {
		return err
	}

	if err := ctx.out.Copy(int(entry.RVA)+coff.CodeViewNB10Size, append([]byte(name), 0)); err != nil {
		return err
	}

	ctx.logf("debug", "CodeView entry for %q at %#x", name, off)

	return ctx.setDirectory(pe.IMAGE_DIRECTORY_ENTRY_DEBUG, off, coff.DebugDirectoryEntrySize)
}
