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
	"github.com/jetsetilly/genfw/arena"
	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/elfview"
	"github.com/jetsetilly/genfw/logger"
)

// DefaultName is the image name used in the debug directory when no name is
// specified in the Options.
const DefaultName = "image.efi"

// Options for a conversion.
type Options struct {
	// the image name recorded in the CodeView debug entry. also used as the
	// module name in the export directory
	Name string

	// produce an export directory for the PRM handlers of the image. only
	// supported for 64bit images
	Export bool

	// permission for the conversion to write to the central log. a nil value
	// is the same as logger.Allow
	Log logger.Permission
}

// Result of a successful conversion.
type Result struct {
	Image   []byte
	Machine uint16
	Is64    bool

	// the number of base relocation entries in the image, not including
	// padding entries
	Fixups int

	// the number of distinct GOT slots found
	GOTSlots int

	// the number of high instruction relocations that were discarded because
	// no matching low instruction relocation followed them
	UnpairedHigh int
}

// Context holds the state of a single conversion.
type Context struct {
	opts Options

	elf *elfview.File
	tr  Translator

	out    *arena.Arena
	layout *Layout

	// number of section headers written to the section table
	numSections int

	fixups *coff.BaseRelocs
	got    gotTable

	pending      pending
	unpairedHigh int

	// true while the relocations are being walked by the classify functions
	// of the translator
	classifying bool

	exports *exportTable
}

func newContext(data []byte, opts Options) (*Context, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if opts.Log == nil {
		opts.Log = logger.Allow
	}

	f, err := elfview.Parse(data)
	if err != nil {
		return nil, err
	}

	tr, err := selectTranslator(f)
	if err != nil {
		return nil, err
	}

	ctx := &Context{
		opts:   opts,
		elf:    f,
		tr:     tr,
		fixups: coff.NewBaseRelocs(),
		got:    newGOTTable(),
	}

	return ctx, nil
}

func (ctx *Context) result() *Result {
	return &Result{
		Image:        ctx.out.Bytes(),
		Machine:      ctx.tr.Machine(),
		Is64:         ctx.elf.Is64(),
		Fixups:       ctx.fixups.Entries(),
		GOTSlots:     len(ctx.got.slots),
		UnpairedHigh: ctx.unpairedHigh,
	}
}

func (ctx *Context) logf(tag string, pattern string, args ...any) {
	logger.Logf(ctx.opts.Log, tag, pattern, args...)
}
