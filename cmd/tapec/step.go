package main

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/peterh/liner"

	"github.com/chazu/tapec/vm"
)

// stepper pauses the machine after every instruction and waits for the user.
type stepper struct {
	ln      *liner.State
	out     io.Writer
	code    string
	running bool
}

func newStepper(out io.Writer, code string) *stepper {
	ln := liner.NewLiner()
	ln.SetCtrlCAborts(true)
	return &stepper{ln: ln, out: out, code: code}
}

func (s *stepper) Step(m *vm.Machine, ip int) error {
	if s.running {
		return nil
	}
	fmt.Fprintf(s.out, "%d: %q  pointer %d  steps %d\n", ip, s.code[ip], m.Pointer(), m.Steps())
	m.DumpCells(s.out, max(m.Farthest(), m.Pointer()))

	for {
		line, err := s.ln.Prompt("step> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return vm.ErrAborted
		}
		if err != nil {
			return err
		}
		switch strings.TrimSpace(line) {
		case "", "s":
			return nil
		case "c":
			s.running = true
			return nil
		case "q":
			return vm.ErrAborted
		default:
			fmt.Fprintln(s.out, "enter or s: step, c: continue, q: quit")
		}
	}
}

func (s *stepper) Close() error {
	return s.ln.Close()
}
