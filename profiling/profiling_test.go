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

package profiling_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/jetsetilly/genfw/profiling"
	"github.com/jetsetilly/genfw/test"
)

func TestNoProfile(t *testing.T) {
	var ran bool
	p := profiling.Profile{}
	test.ExpectFailure(t, p.Active())
	err := profiling.RunProfiler(p, func() error {
		ran = true
		return nil
	})
	test.ExpectSuccess(t, err)
	test.ExpectSuccess(t, ran)
}

func TestMemProfile(t *testing.T) {
	p := profiling.Profile{Mem: filepath.Join(t.TempDir(), "mem.profile")}
	test.ExpectSuccess(t, p.Active())
	err := profiling.RunProfiler(p, func() error {
		return nil
	})
	test.ExpectSuccess(t, err)

	st, err := os.Stat(p.Mem)
	test.DemandSuccess(t, err)
	test.ExpectSuccess(t, st.Size() > 0)
}

func TestRunError(t *testing.T) {
	p := profiling.Profile{Mem: filepath.Join(t.TempDir(), "mem.profile")}
	e := errors.New("run failed")
	err := profiling.RunProfiler(p, func() error {
		return e
	})
	test.ExpectSuccess(t, errors.Is(err, e))

	// no memory profile if the run failed
	_, err = os.Stat(p.Mem)
	test.ExpectFailure(t, err)
}
