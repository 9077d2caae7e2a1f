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

// Package profiling wraps a function with the CPU and memory profilers from
// the runtime/pprof package. The profiles are written to the named files and
// can be examined with "go tool pprof".
package profiling

import (
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/jetsetilly/genfw/curated"
)

// Error pattern for all profiling errors.
const Error = "profiling: %v"

// Profile names the files that profiles are written to. An empty name means
// that the corresponding profile is not taken.
type Profile struct {
	CPU string
	Mem string
}

// Active returns true if any profile has been requested.
func (p Profile) Active() bool {
	return p.CPU != "" || p.Mem != ""
}

// RunProfiler runs the supplied function with the profiles requested. The
// memory profile is written after the function has returned.
func RunProfiler(p Profile, run func() error) (rerr error) {
	if p.CPU != "" {
		f, err := os.Create(p.CPU)
		if err != nil {
			return curated.Errorf(Error, err)
		}
		defer func() {
			if err := f.Close(); err != nil && rerr == nil {
				rerr = curated.Errorf(Error, err)
			}
		}()

		err = pprof.StartCPUProfile(f)
		if err != nil {
			return curated.Errorf(Error, err)
		}
		defer pprof.StopCPUProfile()
	}

	err := run()
	if err != nil {
		return err
	}

	return memProfile(p.Mem)
}

func memProfile(outFile string) error {
	if outFile == "" {
		return nil
	}

	f, err := os.Create(outFile)
	if err != nil {
		return curated.Errorf(Error, err)
	}
	defer f.Close()

	runtime.GC()
	err = pprof.WriteHeapProfile(f)
	if err != nil {
		return curated.Errorf(Error, err)
	}

	return nil
}
