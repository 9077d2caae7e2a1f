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
	"debug/elf"
	"fmt"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// Error pattern for errors returned by Convert() and Inspect().
const Error = "convert: %v"

// Convert the ELF image to a PE image. The data is not modified.
func Convert(data []byte, opts Options) (*Result, error) {
	res, err := convert(data, opts)
	if err != nil {
		return nil, curated.Errorf(Error, err)
	}
	return res, nil
}

func convert(data []byte, opts Options) (*Result, error) {
	ctx, err := newContext(data, opts)
	if err != nil {
		return nil, err
	}

	if ctx.opts.Export && !ctx.elf.Is64() {
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("export directory is not supported for %v images", elf.ELFCLASS32))
	}

	ctx.logf("genfw", "converting %v %v image", ctx.elf.Class, ctx.elf.Machine)

	if err := ctx.plan(); err != nil {
		return nil, err
	}
	if err := ctx.copySections(classText); err != nil {
		return nil, err
	}
	if err := ctx.copySections(classData); err != nil {
		return nil, err
	}
	if err := ctx.copySections(classResource); err != nil {
		return nil, err
	}
	if err := ctx.patchResource(); err != nil {
		return nil, err
	}
	if err := ctx.buildRelocations(); err != nil {
		return nil, err
	}
	if err := ctx.writeDebug(); err != nil {
		return nil, err
	}
	if err := ctx.writeExports(); err != nil {
		return nil, err
	}
	if err := ctx.finalise(); err != nil {
		return nil, err
	}

	res := ctx.result()

	ctx.logf("genfw", "image is %#x bytes with %d base relocations", len(res.Image), res.Fixups)
	if res.UnpairedHigh > 0 {
		ctx.logf("genfw", "%d unpaired high part relocations were dropped", res.UnpairedHigh)
	}

	return res, nil
}
