// tapec compiles stack bytecode for the tape machine and runs the result.
package main

import (
	"errors"
	"flag"
	"fmt"
	"os"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/tapec/manifest"
	"github.com/chazu/tapec/vm"
)

var log = commonlog.GetLogger("tapec")

type command struct {
	name  string
	usage string
	run   func(env *env, args []string) error
}

var commands = []command{
	{"build", "build [-o out.tape] [-dump] [file.tbc]", cmdBuild},
	{"run", "run [-trace] [-step] [-capacity n] [-max-steps n] [-eof mode] [file]", cmdRun},
	{"disasm", "disasm [file]", cmdDisasm},
	{"dump", "dump [file.tbc]", cmdDump},
	{"cache", "cache [-clear]", cmdCache},
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: tapec [-C dir] [-v n] <command> [options] [file]\n\n")
	fmt.Fprintf(os.Stderr, "Commands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  tapec %s\n", c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nFiles ending in .tbc are bytecode text, .tape files are built images,\n")
	fmt.Fprintf(os.Stderr, "anything else is run as raw tape code. Without a file the entry from\n")
	fmt.Fprintf(os.Stderr, "%s is used.\n\nOptions:\n", manifest.FileName)
	flag.PrintDefaults()
}

func main() {
	dir := flag.String("C", ".", "Project directory")
	verbosity := flag.Int("v", 0, "Log verbosity (overrides the manifest when nonzero)")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		os.Exit(2)
	}

	m, err := manifest.FindAndLoad(*dir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if m == nil {
		m = manifest.Default(*dir)
	}

	level := m.Log.Verbosity
	if *verbosity != 0 {
		level = *verbosity
	}
	commonlog.Configure(level, m.LogFile())

	name, args := flag.Arg(0), flag.Args()[1:]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(&env{manifest: m}, args); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			if f, ok := vm.IsFault(err); ok {
				log.Debugf("fault state: ip %d pointer %d", f.IP, f.Pointer)
			}
			if errors.Is(err, vm.ErrAborted) {
				os.Exit(130)
			}
			os.Exit(1)
		}
		return
	}
	fmt.Fprintf(os.Stderr, "Unknown command %q\n\n", name)
	usage()
	os.Exit(2)
}
