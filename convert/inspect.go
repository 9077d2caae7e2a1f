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
	"io"
	"sort"
	"strings"

	"github.com/jetsetilly/genfw/curated"
)

// SectionReport describes an ELF section and where it is placed in the
// output image.
type SectionReport struct {
	Index  int
	Name   string
	Class  string
	Addr   uint64
	Size   uint64
	Align  uint64
	Offset uint32
}

// RelocationReport summarises a relocation section.
type RelocationReport struct {
	Index  int
	Name   string
	Target string
	Count  int

	// number of relocations of each type
	Types map[string]int
}

// Report is the result of Inspect().
type Report struct {
	Machine   elf.Machine
	PEMachine uint16
	Class     elf.Class
	Type      elf.Type
	Entry     uint64

	// planned layout
	Alignment uint32
	EntryRVA  uint32
	Text      uint32
	Data      uint32
	Resource  uint32
	Export    uint32
	Reloc     uint32
	Debug     uint32

	Sections    []SectionReport
	Relocations []RelocationReport
}

// Inspect plans the conversion of the ELF image without converting it. The
// Export field of the options is ignored.
func Inspect(data []byte, opts Options) (*Report, error) {
	opts.Export = false

	ctx, err := newContext(data, opts)
	if err != nil {
		return nil, curated.Errorf(Error, err)
	}
	if err := ctx.plan(); err != nil {
		return nil, curated.Errorf(Error, err)
	}

	f := ctx.elf
	l := ctx.layout

	rep := &Report{
		Machine:   f.Machine,
		PEMachine: ctx.tr.Machine(),
		Class:     f.Class,
		Type:      f.Type,
		Entry:     f.Entry,
		Alignment: l.Alignment,
		EntryRVA:  l.Entry,
		Text:      l.Text,
		Data:      l.Data,
		Resource:  l.Resource,
		Export:    l.Export,
		Reloc:     l.Reloc,
		Debug:     l.Debug,
	}

	for i, sec := range f.Sections {
		if i == 0 {
			continue
		}
		s := SectionReport{
			Index: i,
			Name:  sec.Name,
			Class: l.Class(i).String(),
			Addr:  sec.Addr,
			Size:  sec.Size,
			Align: sec.Addralign,
		}
		if off, err := l.Placement(i); err == nil {
			s.Offset = off
		}
		rep.Sections = append(rep.Sections, s)

		if sec.Type != elf.SHT_REL && sec.Type != elf.SHT_RELA {
			continue
		}

		rels, err := f.Relocations(i)
		if err != nil {
			return nil, curated.Errorf(Error, err)
		}

		r := RelocationReport{
			Index: i,
			Name:  sec.Name,
			Count: len(rels),
			Types: make(map[string]int),
		}
		if target, err := f.Section(int(sec.Info)); err == nil && sec.Info != 0 {
			r.Target = target.Name
		}
		for _, rel := range rels {
			r.Types[ctx.tr.TypeName(rel.Type)]++
		}
		rep.Relocations = append(rep.Relocations, r)
	}

	return rep, nil
}

// Write the report in a human readable form.
func (rep *Report) Write(w io.Writer) {
	fmt.Fprintf(w, "%v %v %v (PE machine %#04x)\n", rep.Class, rep.Type, rep.Machine, rep.PEMachine)
	fmt.Fprintf(w, "entry %#x -> %#x\n", rep.Entry, rep.EntryRVA)
	fmt.Fprintf(w, "alignment %#x\n", rep.Alignment)
	fmt.Fprintf(w, "text %#x, data %#x, resource %#x, export %#x, reloc %#x, debug %#x\n",
		rep.Text, rep.Data, rep.Resource, rep.Export, rep.Reloc, rep.Debug)

	fmt.Fprintln(w)
	fmt.Fprintf(w, "%3s %-20s %-9s %10s %10s %6s %10s\n", "idx", "name", "class", "addr", "size", "align", "offset")
	for _, s := range rep.Sections {
		off := "-"
		if s.Class != classExcluded.String() {
			off = fmt.Sprintf("%#x", s.Offset)
		}
		fmt.Fprintf(w, "%3d %-20s %-9s %#10x %#10x %#6x %10s\n", s.Index, s.Name, s.Class, s.Addr, s.Size, s.Align, off)
	}

	if len(rep.Relocations) == 0 {
		return
	}

	fmt.Fprintln(w)
	for _, r := range rep.Relocations {
		target := r.Target
		if target == "" {
			target = "(none)"
		}
		fmt.Fprintf(w, "%s -> %s: %d relocations\n", r.Name, target, r.Count)

		types := make([]string, 0, len(r.Types))
		for t := range r.Types {
			types = append(types, t)
		}
		sort.Strings(types)
		for _, t := range types {
			fmt.Fprintf(w, "  %-28s %d\n", t, r.Types[t])
		}
	}
}

// String implements the fmt.Stringer interface.
func (rep *Report) String() string {
	var b strings.Builder
	rep.Write(&b)
	return b.String()
}
