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

package disasm_test

import (
	"debug/pe"
	"strings"
	"testing"

	"github.com/jetsetilly/genfw/disasm"
	"github.com/jetsetilly/genfw/test"
)

func TestX64(t *testing.T) {
	// lea 0x10(%rip),%rax ; ret
	code := []byte{0x48, 0x8d, 0x05, 0x10, 0x00, 0x00, 0x00, 0xc3}
	lines, err := disasm.Disassemble(pe.IMAGE_FILE_MACHINE_AMD64, code, 0x1000, 10)
	test.DemandSuccess(t, err)
	test.DemandEquality(t, len(lines), 2)
	test.ExpectEquality(t, lines[0].Address, uint64(0x1000))
	test.ExpectEquality(t, len(lines[0].Bytes), 7)
	test.ExpectSuccess(t, strings.HasPrefix(lines[0].Text, "lea"))
	test.ExpectEquality(t, lines[1].Address, uint64(0x1007))
	test.ExpectSuccess(t, strings.HasPrefix(lines[1].Text, "ret"))
	test.ExpectSuccess(t, strings.Contains(lines[1].String(), "c3"))
}

func TestMaximum(t *testing.T) {
	code := []byte{0x90, 0x90, 0x90, 0x90}
	lines, err := disasm.Disassemble(pe.IMAGE_FILE_MACHINE_I386, code, 0, 2)
	test.DemandSuccess(t, err)
	test.ExpectEquality(t, len(lines), 2)
}

func TestARM64(t *testing.T) {
	// ret
	code := []byte{0xc0, 0x03, 0x5f, 0xd6}
	lines, err := disasm.Disassemble(pe.IMAGE_FILE_MACHINE_ARM64, code, 0, 10)
	test.DemandSuccess(t, err)
	test.DemandEquality(t, len(lines), 1)
	test.ExpectSuccess(t, strings.HasPrefix(lines[0].Text, "ret"))
}

func TestUnsupported(t *testing.T) {
	test.ExpectFailure(t, disasm.Supported(0x5064))
	_, err := disasm.Disassemble(0x5064, []byte{0x13, 0, 0, 0}, 0, 1)
	test.ExpectFailure(t, err)
}
