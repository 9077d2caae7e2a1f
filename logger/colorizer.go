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

package logger

import "fmt"

// ansi pens for the tag part of an entry. tags not in the table are shown in
// the default pen
var pens = map[string]string{
	"genfw":   "\033[1;37m",
	"layout":  "\033[36m",
	"copy":    "\033[32m",
	"reloc":   "\033[33m",
	"got":     "\033[35m",
	"pending": "\033[31m",
	"hii":     "\033[34m",
	"export":  "\033[34m",
	"debug":   "\033[34m",
}

const normalPen = "\033[0m"
const dimPen = "\033[2m"

func colourise(e *Entry) string {
	pen, ok := pens[e.Tag]
	if !ok {
		pen = normalPen
	}
	s := fmt.Sprintf("%s%s%s: %s", pen, e.Tag, normalPen, e.Detail)
	if e.repeated > 0 {
		s = fmt.Sprintf("%s %s(repeat x%d)%s", s, dimPen, e.repeated+1, normalPen)
	}
	return s + "\n"
}
