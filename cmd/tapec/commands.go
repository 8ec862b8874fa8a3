package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/chazu/tapec/compiler"
	"github.com/chazu/tapec/pkg/bytecode"
	"github.com/chazu/tapec/pkg/codegen"
	"github.com/chazu/tapec/pkg/image"
	"github.com/chazu/tapec/store"
	"github.com/chazu/tapec/vm"
)

func cmdBuild(e *env, args []string) error {
	fs := flag.NewFlagSet("build", flag.ContinueOnError)
	out := fs.String("o", e.manifest.OutputPath(), "Output image path")
	dump := fs.Bool("dump", e.manifest.Build.Dump, "Print the generated source tree")
	if err := fs.Parse(args); err != nil {
		return err
	}

	p, err := e.load(fs.Arg(0), !*dump)
	if err != nil {
		return err
	}
	if *dump && p.out != nil {
		codegen.Dump(os.Stdout, p.out.Nodes...)
	}

	if err := os.MkdirAll(filepath.Dir(*out), 0o755); err != nil {
		return err
	}
	if err := image.WriteFile(*out, p.image); err != nil {
		return err
	}
	info, err := os.Stat(*out)
	if err != nil {
		return err
	}

	from := "built"
	if p.cached {
		from = "cached"
	}
	fmt.Printf("%s %s: %s, %s instructions, %d cells (%s)\n",
		from, *out, humanize.Bytes(uint64(info.Size())),
		humanize.Comma(int64(len(p.image.Code))), p.image.Extent, p.image.ID()[:12])
	return nil
}

func cmdRun(e *env, args []string) error {
	mc := e.manifest.Machine
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	trace := fs.Bool("trace", false, "Dump machine state before every instruction")
	step := fs.Bool("step", false, "Pause after every instruction")
	capacity := fs.Int("capacity", mc.Capacity, "Tape size in cells")
	maxSteps := fs.Uint64("max-steps", mc.MaxSteps, "Stop after this many instructions (0 = unlimited)")
	eof := fs.String("eof", mc.EOF, "Value stored on end of input: unchanged, zero or max")
	if err := fs.Parse(args); err != nil {
		return err
	}

	mode, err := vm.ParseEOFMode(*eof)
	if err != nil {
		return err
	}
	p, err := e.load(fs.Arg(0), true)
	if err != nil {
		return err
	}
	if p.image.Extent > *capacity {
		return fmt.Errorf("%s needs %d cells, tape has %d", p.path, p.image.Extent, *capacity)
	}

	out := bufio.NewWriter(os.Stdout)
	defer out.Flush()
	opts := vm.Options{
		Capacity: *capacity,
		Input:    bufio.NewReader(os.Stdin),
		Output:   out,
		MaxSteps: *maxSteps,
		EOF:      mode,
	}
	if *trace {
		opts.Trace = os.Stderr
	}
	if *step {
		s := newStepper(os.Stderr, p.image.Code)
		defer s.Close()
		opts.Stepper = s
		// Output must be visible between steps.
		opts.Output = os.Stdout
	}

	m := vm.New(opts)
	err = m.Run(p.image.Code)
	log.Infof("%s: halted after %s steps", p.image.Name, humanize.Comma(int64(m.Steps())))
	return err
}

func cmdDisasm(e *env, args []string) error {
	fs := flag.NewFlagSet("disasm", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := e.load(fs.Arg(0), false)
	if err != nil {
		return err
	}

	if p.code != nil {
		fmt.Println("; bytecode")
		fmt.Print(bytecode.Format(p.code))
		if compiler.HasControl(p.code) {
			prog, err := bytecode.BuildProgram(p.code, bytecode.NewLabeler("block"))
			if err != nil {
				return err
			}
			fmt.Println()
			fmt.Print(prog.DisassembleWithName(p.image.Name))
		}
		fmt.Println()
	}

	img := p.image
	fmt.Printf("; image %s %s\n", img.Name, img.ID())
	if len(img.Frame) > 0 {
		slots := make([]string, len(img.Frame))
		for i, s := range img.Frame {
			slots[i] = fmt.Sprintf("%s: %d", s.Name, s.Size)
		}
		fmt.Printf("; frame {%s}\n", strings.Join(slots, ", "))
	}
	if img.Extent > 0 {
		fmt.Printf("; extent %d cells\n", img.Extent)
	}
	for i, op := range img.Ops {
		fmt.Printf("%04d  %s\n", i, op)
	}
	fmt.Printf("; code (%s instructions)\n%s\n", humanize.Comma(int64(len(img.Code))), img.Code)
	return nil
}

func cmdDump(e *env, args []string) error {
	fs := flag.NewFlagSet("dump", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	p, err := e.load(fs.Arg(0), false)
	if err != nil {
		return err
	}
	if p.out == nil {
		return fmt.Errorf("%s: dump needs bytecode input", p.path)
	}
	codegen.Dump(os.Stdout, p.out.Nodes...)
	return nil
}

func cmdCache(e *env, args []string) error {
	fs := flag.NewFlagSet("cache", flag.ContinueOnError)
	clearAll := fs.Bool("clear", false, "Remove every cached build")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := e.manifest.CachePath()
	if path == "" {
		return fmt.Errorf("build cache is disabled")
	}
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer st.Close()

	entries, err := st.List()
	if err != nil {
		return err
	}
	var total int64
	for _, en := range entries {
		if *clearAll {
			if err := st.Delete(en.Key); err != nil {
				return err
			}
			continue
		}
		total += en.Size
		fmt.Printf("%s  %-20s %8s  %s\n", en.Key[:12], en.Name, humanize.Bytes(uint64(en.Size)), humanize.Time(en.Created))
	}
	if *clearAll {
		fmt.Printf("removed %d builds from %s\n", len(entries), path)
		return nil
	}
	fmt.Printf("%d builds, %s in %s\n", len(entries), humanize.Bytes(uint64(total)), path)
	return nil
}
