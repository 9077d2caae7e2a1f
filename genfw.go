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

package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/bradleyjkemp/memviz"
	"github.com/jetsetilly/genfw/convert"
	"github.com/jetsetilly/genfw/disasm"
	"github.com/jetsetilly/genfw/easyterm"
	"github.com/jetsetilly/genfw/logger"
	"github.com/jetsetilly/genfw/mapfile"
	"github.com/jetsetilly/genfw/modalflag"
	"github.com/jetsetilly/genfw/profiling"
	"github.com/jetsetilly/genfw/statsview"
	"github.com/jetsetilly/genfw/version"
	"github.com/xyproto/env/v2"
)

// number of log entries to show when a mode fails and the log is not being
// echoed.
const tailOnError = 20

// number of instructions shown at the entry point by the INFO mode.
const entryInstructions = 8

func main() {
	os.Exit(launch(os.Args[1:], os.Stdout))
}

// launch runs the mode selected by the arguments and returns the exit value
// for the process.
func launch(args []string, output io.Writer) int {
	md := &modalflag.Modes{Output: output}
	md.NewArgs(args)
	md.NewMode()
	md.AddSubModes("CONVERT", "INFO", "VERSION")

	p, err := md.Parse()
	switch p {
	case modalflag.ParseHelp:
		return 0

	case modalflag.ParseError:
		fmt.Fprintf(output, "* error: %v\n", err)
		return 10
	}

	var echo bool

	switch md.Mode() {
	case "CONVERT":
		echo, err = convertMode(md)

	case "INFO":
		echo, err = info(md)

	case "VERSION":
		fmt.Fprintln(md.Output, version.String())
	}

	if err != nil {
		fmt.Fprintf(output, "* error in %s mode: %s\n", md.String(), err)
		if !echo {
			logger.Tail(output, tailOnError)
		}
		return 20
	}

	return 0
}

// setEcho starts echoing the log to stdout if requested. returns the value
// of the request.
func setEcho(echo bool) bool {
	if echo {
		logger.SetEcho(os.Stdout, easyterm.IsTerminal(os.Stdout))
	} else {
		logger.SetEcho(nil, false)
	}
	return echo
}

func convertMode(md *modalflag.Modes) (bool, error) {
	md.NewMode()

	output := md.AddString("o", "", "output file (default is the input file with the .efi extension)")
	name := md.AddString("name", env.Str("GENFW_NAME"), "image name for the debug directory (default is the input filename) [GENFW_NAME]")
	export := md.AddBool("export", env.Bool("GENFW_EXPORT"), "add an export directory for the PRM handlers [GENFW_EXPORT]")
	log := md.AddBool("log", env.Bool("GENFW_LOG"), "echo log to stdout [GENFW_LOG]")
	cpuProfile := md.AddString("cpuprofile", "", "write cpu profile to file")
	memProfile := md.AddString("memprofile", "", "write memory profile to file")
	stats := md.AddBool("statsview", false, "launch the statsview server")

	p, err := md.Parse()
	if err != nil || p != modalflag.ParseContinue {
		return false, err
	}

	echo := setEcho(*log)

	if *stats {
		if statsview.Available() {
			statsview.Launch(md.Output, "")
		} else {
			fmt.Fprintln(md.Output, "! statsview not available in this build")
		}
	}

	switch len(md.RemainingArgs()) {
	case 0:
		return echo, fmt.Errorf("ELF file required for %s mode", md)
	case 1:
	default:
		return echo, fmt.Errorf("too many arguments for %s mode", md)
	}

	input := md.GetArg(0)
	if *output == "" {
		*output = strings.TrimSuffix(input, filepath.Ext(input)) + ".efi"
	}
	if *name == "" {
		*name = filepath.Base(input)
	}

	opts := convert.Options{
		Name:   *name,
		Export: *export,
	}

	prof := profiling.Profile{
		CPU: *cpuProfile,
		Mem: *memProfile,
	}

	return echo, profiling.RunProfiler(prof, func() error {
		f, err := mapfile.Open(input)
		if err != nil {
			return err
		}
		defer f.Close()

		res, err := convert.Convert(f.Data, opts)
		if err != nil {
			return err
		}

		err = writeAtomic(*output, res.Image)
		if err != nil {
			return err
		}

		logger.Logf(logger.Allow, "genfw", "written %s (%d bytes)", *output, len(res.Image))
		return nil
	})
}

// writeAtomic writes data to a temporary file in the same directory as the
// named file and then renames it. the named file is never partially written.
func writeAtomic(filename string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(filename), filepath.Base(filename)+".*")
	if err != nil {
		return err
	}

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), filename)
	}

	if err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}

	return nil
}

func info(md *modalflag.Modes) (bool, error) {
	md.NewMode()

	log := md.AddBool("log", env.Bool("GENFW_LOG"), "echo log to stdout [GENFW_LOG]")
	viz := md.AddString("memviz", "", "write a graphviz representation of the report to file")
	entry := md.AddBool("entry", true, "disassemble the instructions at the entry point")

	p, err := md.Parse()
	if err != nil || p != modalflag.ParseContinue {
		return false, err
	}

	echo := setEcho(*log)

	switch len(md.RemainingArgs()) {
	case 0:
		return echo, fmt.Errorf("ELF file required for %s mode", md)
	case 1:
	default:
		return echo, fmt.Errorf("too many arguments for %s mode", md)
	}

	f, err := mapfile.Open(md.GetArg(0))
	if err != nil {
		return echo, err
	}
	defer f.Close()

	opts := convert.Options{Name: filepath.Base(f.Filename)}

	rep, err := convert.Inspect(f.Data, opts)
	if err != nil {
		return echo, err
	}
	rep.Write(md.Output)

	if *viz != "" {
		vf, err := os.Create(*viz)
		if err != nil {
			return echo, err
		}
		memviz.Map(vf, rep)
		if err := vf.Close(); err != nil {
			return echo, err
		}
	}

	// an entry RVA of zero means that the entry point is not in the image
	if *entry && rep.EntryRVA != 0 && disasm.Supported(rep.PEMachine) {
		res, err := convert.Convert(f.Data, opts)
		if err != nil {
			return echo, err
		}

		lines, err := disasm.Disassemble(rep.PEMachine, res.Image[rep.EntryRVA:], uint64(rep.EntryRVA), entryInstructions)
		if err != nil {
			return echo, err
		}

		fmt.Fprintln(md.Output)
		fmt.Fprintf(md.Output, "entry point %#x\n", rep.EntryRVA)
		for _, l := range lines {
			fmt.Fprintln(md.Output, l)
		}
	}

	return echo, nil
}
