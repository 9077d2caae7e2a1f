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
	"bytes"
	"debug/elf"
	"debug/pe"
	"encoding/binary"
	"fmt"
	"slices"
	"strings"

	"github.com/jetsetilly/genfw/coff"
	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// the PRM module export descriptor. the descriptor is found by symbol name and
// lists the handlers exported by the module.
const (
	prmDescriptorSymbol    = "PrmModuleExportDescriptor"
	prmDescriptorSignature = "PRM_MEDT"

	prmDescriptorNumHandlers = 10
	prmDescriptorHandlers    = 44

	prmHandlerGUIDSize = 16
	prmHandlerNameSize = 128
	prmHandlerSize     = prmHandlerGUIDSize + prmHandlerNameSize

	prmMaxHandlers = 127
)

// export is a single exported symbol.
type export struct {
	name string
	rva  uint32
}

// exportTable is the list of exports, sorted by name.
type exportTable struct {
	module  string
	exports []export
}

// size of the export directory and the tables that follow it.
func (t *exportTable) size() int {
	n := coff.ExportDirectorySize + len(t.module) + 1
	for _, e := range t.exports {
		n += 4 + 4 + 2 + len(e.name) + 1
	}
	return n
}

// exportAddress finds the named symbol and returns its output address.
func (ctx *Context) exportAddress(name string) (elf.Symbol, uint32, error) {
	sym, ok := ctx.elf.LookupSymbol(name)
	if !ok {
		return sym, 0, curated.Errorf(faults.Format, fmt.Sprintf("export symbol %q not found", name))
	}
	if sym.Section == elf.SHN_UNDEF || int(sym.Section) >= len(ctx.elf.Sections) {
		return sym, 0, curated.Errorf(faults.Format, fmt.Sprintf("export symbol %q has no section", name))
	}
	addr, err := ctx.addressOf(int(sym.Section), sym.Value)
	if err != nil {
		return sym, 0, err
	}
	return sym, uint32(addr), nil
}

// collectExports reads the PRM module export descriptor and resolves the
// address of every handler it names.
func (ctx *Context) collectExports() (*exportTable, error) {
	sym, rva, err := ctx.exportAddress(prmDescriptorSymbol)
	if err != nil {
		return nil, err
	}

	hdr, err := ctx.elf.Bytes(int(sym.Section), sym.Value, prmDescriptorHandlers)
	if err != nil {
		return nil, err
	}
	if string(hdr[:len(prmDescriptorSignature)]) != prmDescriptorSignature {
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("%s does not have the %s signature", prmDescriptorSymbol, prmDescriptorSignature))
	}

	n := int(binary.LittleEndian.Uint16(hdr[prmDescriptorNumHandlers:]))
	if n > prmMaxHandlers {
		return nil, curated.Errorf(faults.Format, fmt.Sprintf("too many PRM handlers (%d)", n))
	}

	t := &exportTable{
		module:  ctx.opts.Name,
		exports: []export{{name: prmDescriptorSymbol, rva: rva}},
	}

	if n > 0 {
		handlers, err := ctx.elf.Bytes(int(sym.Section), sym.Value+prmDescriptorHandlers, uint64(n*prmHandlerSize))
		if err != nil {
			return nil, err
		}

		for i := 0; i < n; i++ {
			h := handlers[i*prmHandlerSize : (i+1)*prmHandlerSize]
			name := h[prmHandlerGUIDSize:]
			if z := bytes.IndexByte(name, 0); z >= 0 {
				name = name[:z]
			}
			if len(name) == 0 {
				return nil, curated.Errorf(faults.Format, fmt.Sprintf("PRM handler %d has no name", i))
			}

			_, rva, err := ctx.exportAddress(string(name))
			if err != nil {
				return nil, err
			}
			t.exports = append(t.exports, export{name: string(name), rva: rva})
		}
	}

	slices.SortFunc(t.exports, func(a, b export) int {
		return strings.Compare(a.name, b.name)
	})

	for _, e := range t.exports {
		ctx.logf("export", "%s at %#x", e.name, e.rva)
	}

	return t, nil
}

// writeExports writes the export directory into the space reserved by the
// layout.
func (ctx *Context) writeExports() error {
	t := ctx.exports
	if t == nil {
		return nil
	}

	base := ctx.layout.Export
	n := uint32(len(t.exports))

	functions := base + coff.ExportDirectorySize
	names := functions + n*4
	ordinals := names + n*4
	module := ordinals + n*2

	dir := coff.ExportDirectory{
		Name:                  module,
		Base:                  1,
		NumberOfFunctions:     n,
		NumberOfNames:         n,
		AddressOfFunctions:    functions,
		AddressOfNames:        names,
		AddressOfNameOrdinals: ordinals,
	}
	if err := ctx.out.Write(int(base), dir); err != nil {
		return err
	}

	if err := ctx.out.Copy(int(module), append([]byte(t.module), 0)); err != nil {
		return err
	}

	str := module + uint32(len(t.module)) + 1
	for i, e := range t.exports {
		if err := ctx.out.PutUint32(int(functions)+i*4, e.rva); err != nil {
			return err
		}
		if err := ctx.out.PutUint32(int(names)+i*4, str); err != nil {
			return err
		}
		if err := ctx.out.PutUint16(int(ordinals)+i*2, uint16(i)); err != nil {
			return err
		}
		if err := ctx.out.Copy(int(str), append([]byte(e.name), 0)); err != nil {
			return err
		}
		str += uint32(len(e.name)) + 1
	}

	return ctx.setDirectory(pe.IMAGE_DIRECTORY_ENTRY_EXPORT, base, uint32(t.size()))
}
