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

// Package disasm produces a short disassembly of code in a converted image.
// It is used by the INFO mode of the driver to show the instructions at the
// entry point and at relocated sites. Only the x86 family and AArch64 are
// supported.
package disasm

import (
	"debug/pe"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/jetsetilly/genfw/curated"
	"golang.org/x/arch/arm64/arm64asm"
	"golang.org/x/arch/x86/x86asm"
)

// Error pattern for all disasm errors.
const Error = "disasm: %v"

// Line is a single disassembled instruction.
type Line struct {
	Address uint64
	Bytes   []byte
	Text    string
}

func (l Line) String() string {
	b := make([]string, len(l.Bytes))
	for i, v := range l.Bytes {
		b[i] = fmt.Sprintf("%02x", v)
	}
	return fmt.Sprintf("%08x  %-24s %s", l.Address, strings.Join(b, " "), l.Text)
}

// Supported returns true if code for the PE machine type can be disassembled.
func Supported(machine uint16) bool {
	switch machine {
	case pe.IMAGE_FILE_MACHINE_I386, pe.IMAGE_FILE_MACHINE_AMD64, pe.IMAGE_FILE_MACHINE_ARM64:
		return true
	}
	return false
}

// Disassemble decodes at most max instructions from code. The address is the
// address of the first byte of code and is used for the calculation of
// branch targets. Bytes that can not be decoded are shown as data.
func Disassemble(machine uint16, code []byte, address uint64, max int) ([]Line, error) {
	var step func([]byte, uint64) (int, string)

	switch machine {
	case pe.IMAGE_FILE_MACHINE_I386:
		step = x86Step(32)
	case pe.IMAGE_FILE_MACHINE_AMD64:
		step = x86Step(64)
	case pe.IMAGE_FILE_MACHINE_ARM64:
		step = arm64Step
	default:
		return nil, curated.Errorf(Error, fmt.Sprintf("unsupported machine %#04x", machine))
	}

	var lines []Line
	for len(code) > 0 && len(lines) < max {
		n, text := step(code, address)
		lines = append(lines, Line{
			Address: address,
			Bytes:   code[:n],
			Text:    text,
		})
		code = code[n:]
		address += uint64(n)
	}

	return lines, nil
}

func x86Step(mode int) func([]byte, uint64) (int, string) {
	return func(code []byte, pc uint64) (int, string) {
		inst, err := x86asm.Decode(code, mode)
		if err != nil || inst.Len == 0 {
			return 1, fmt.Sprintf(".byte 0x%02x", code[0])
		}
		return inst.Len, x86asm.GNUSyntax(inst, pc, nil)
	}
}

func arm64Step(code []byte, _ uint64) (int, string) {
	if len(code) < 4 {
		return len(code), ".byte"
	}
	inst, err := arm64asm.Decode(code)
	if err != nil {
		return 4, fmt.Sprintf(".inst 0x%08x", binary.LittleEndian.Uint32(code))
	}
	return 4, arm64asm.GNUSyntax(inst)
}
