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
	"fmt"

	"github.com/jetsetilly/genfw/curated"
	"github.com/jetsetilly/genfw/faults"
)

// pendingKind is the type of instruction held by the pending state.
type pendingKind int

// list of valid pendingKind values.
const (
	pendingNone pendingKind = iota

	// the high part of an absolute address
	pendingAbsolute

	// the high part of a PC relative address
	pendingPCRel

	// the high part of a PC relative reference to a GOT slot
	pendingGOT

	// the MOVW of a MOVW/MOVT pair (ARM and Thumb-2)
	pendingMovw
	pendingThumbMovw
)

func (k pendingKind) String() string {
	switch k {
	case pendingAbsolute:
		return "absolute"
	case pendingPCRel:
		return "pc relative"
	case pendingGOT:
		return "got"
	case pendingMovw:
		return "movw"
	case pendingThumbMovw:
		return "thumb movw"
	}
	return "none"
}

// pending is the state for instruction sets that split an address across two
// or more instructions. the high instruction is held until the matching low
// instruction is found.
type pending struct {
	kind pendingKind
	site Site

	// the original immediate of the high instruction
	high uint32

	// the value written to the high instruction by the first matching low
	// instruction
	rewritten uint32

	// LoongArch absolute addresses can be split across four instructions.
	// low is the original lower 32 bits of the address and upper the
	// original bits 32 to 51
	low   uint32
	upper uint32
	stage int

	// a matching low instruction has been seen
	consumed bool

	// the sequence is not complete even though a low instruction has been
	// seen
	partial bool

	// dropping the state before it is complete is an error
	strict bool
}

// holdHigh sets the pending state. any existing state is dropped.
func (ctx *Context) holdHigh(kind pendingKind, s *Site, high uint32, strict bool) error {
	if err := ctx.dropHigh(fmt.Sprintf("replaced by %s at %#x", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset)); err != nil {
		return err
	}
	ctx.pending = pending{
		kind:   kind,
		site:   *s,
		high:   high,
		strict: strict,
	}
	return nil
}

// matchHigh returns the pending state if it satisfies the match function. if
// it does not then the pending state is dropped and nil is returned.
func (ctx *Context) matchHigh(s *Site, match func(p *pending) bool) (*pending, error) {
	if ctx.pending.kind != pendingNone && match(&ctx.pending) {
		return &ctx.pending, nil
	}
	if err := ctx.dropHigh(fmt.Sprintf("no match for %s at %#x", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset)); err != nil {
		return nil, err
	}
	if !ctx.classifying {
		ctx.logf("pending", "%s at %#x has no matching high part and is unchanged", ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset)
	}
	return nil, nil
}

// releaseHigh forgets the pending state without any checks.
func (ctx *Context) releaseHigh() {
	ctx.pending = pending{}
}

// dropHigh forgets the pending state. a high instruction that never found its
// partner, or a sequence that was never finished, is counted and logged.
func (ctx *Context) dropHigh(reason string) error {
	p := ctx.pending
	if p.kind == pendingNone {
		return nil
	}
	ctx.pending = pending{}

	if p.strict {
		return curated.Errorf(faults.UnsupportedRelocation, fmt.Sprintf("%s at %#x is incomplete (%s)", ctx.tr.TypeName(p.site.Rel.Type), p.site.Rel.Offset, reason))
	}

	if (!p.consumed || p.partial) && !ctx.classifying {
		ctx.unpairedHigh++
		ctx.logf("pending", "dropping unpaired %s at %#x: %s", ctx.tr.TypeName(p.site.Rel.Type), p.site.Rel.Offset, reason)
	}

	return nil
}

// settleHigh writes the new immediate of the high instruction. the first
// matching low instruction decides the immediate and any later low
// instruction for the same high instruction must agree with it.
func (ctx *Context) settleHigh(p *pending, s *Site, high uint32, write func(uint32) error) error {
	if p.consumed {
		if p.rewritten != high {
			return curated.Errorf(faults.LayoutInvariant, fmt.Sprintf("%s at %#x needs a high part of %#x but %s at %#x has already been given %#x",
				ctx.tr.TypeName(s.Rel.Type), s.Rel.Offset, high, ctx.tr.TypeName(p.site.Rel.Type), p.site.Rel.Offset, p.rewritten))
		}
		return nil
	}
	if err := write(high); err != nil {
		return err
	}
	p.rewritten = high
	p.consumed = true
	return nil
}
