// Package trace provides an interactive text console for driving and
// observing an execution harness: load a block of encoded words,
// execute it, and inspect the register file and decoded instruction
// stream that resulted.
package trace

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/jmercer/isaforge/semantics"
)

// Console holds the state a trace session accumulates: the harness
// being driven, the space instructions decode against, and the history
// of commands and execution results for display.
type Console struct {
	Harness *semantics.Harness
	Space   string

	LastCommand string
	History     []string

	LastExecuted []semantics.InstructionExecution
	LastError    error

	Output strings.Builder
}

// NewConsole creates a console bound to harness, decoding instructions
// from the named space.
func NewConsole(harness *semantics.Harness, space string) *Console {
	return &Console{Harness: harness, Space: space}
}

// Printf writes formatted output to the console's output buffer.
func (c *Console) Printf(format string, args ...any) {
	fmt.Fprintf(&c.Output, format, args...)
}

// Println writes a line to the console's output buffer.
func (c *Console) Println(args ...any) {
	fmt.Fprintln(&c.Output, args...)
}

// GetOutput returns and clears the output buffer.
func (c *Console) GetOutput() string {
	out := c.Output.String()
	c.Output.Reset()
	return out
}

// ExecuteCommand parses and runs one command line, appending to history
// and repeating the last command on empty input.
func (c *Console) ExecuteCommand(line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		line = c.LastCommand
	}
	if line != "" {
		c.History = append(c.History, line)
		c.LastCommand = line
	}

	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}
	return c.dispatch(strings.ToLower(parts[0]), parts[1:])
}

func (c *Console) dispatch(cmd string, args []string) error {
	switch cmd {
	case "run", "r":
		return c.cmdRun(args)
	case "reg", "register":
		return c.cmdReg(args)
	case "registers", "regs":
		return c.cmdRegisters(args)
	case "disasm", "disassemble":
		return c.cmdDisasm(args)
	case "space":
		return c.cmdSpace(args)
	case "help", "h", "?":
		return c.cmdHelp(args)
	default:
		return fmt.Errorf("unknown command: %s (type 'help' for available commands)", cmd)
	}
}

// cmdRun decodes and executes a block of hex-encoded bytes against the
// console's current space, starting at an optional base address
// (defaults to 0).
func (c *Console) cmdRun(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: run <hex-bytes> [base-address]")
	}
	rom, err := parseHexBytes(args[0])
	if err != nil {
		return fmt.Errorf("invalid rom bytes: %w", err)
	}
	var base uint64
	if len(args) > 1 {
		base, err = strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("invalid base address: %w", err)
		}
	}

	results, err := c.Harness.ExecuteBlock(c.Space, rom, base)
	c.LastExecuted = results
	c.LastError = err
	if err != nil {
		c.Printf("execution stopped: %v\n", err)
		return err
	}
	c.Printf("executed %d instruction(s)\n", len(results))
	for _, r := range results {
		c.Printf("  0x%08X: %s\n", r.Address, r.Mnemonic)
	}
	return nil
}

// cmdReg reads or writes a register by its "space::name[::subfield]"
// reference: with one argument it reads, with two it writes.
func (c *Console) cmdReg(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: reg <space::name[::subfield]> [value]")
	}
	if len(args) == 1 {
		value, err := c.Harness.Read(args[0])
		if err != nil {
			return err
		}
		c.Printf("%s = 0x%X\n", args[0], value)
		return nil
	}
	value, err := strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
	if err != nil {
		return fmt.Errorf("invalid value: %w", err)
	}
	if err := c.Harness.Write(args[0], value); err != nil {
		return err
	}
	c.Printf("%s <- 0x%X\n", args[0], value)
	return nil
}

// cmdRegisters lists every register field across the machine's register
// spaces and their current values; redirect alias fields are skipped.
func (c *Console) cmdRegisters(args []string) error {
	for _, ref := range c.registerRefs() {
		value, err := c.Harness.Read(ref)
		if err != nil {
			c.Printf("%-20s <error: %v>\n", ref, err)
			continue
		}
		c.Printf("%-20s 0x%X\n", ref, value)
	}
	return nil
}

func (c *Console) registerRefs() []string {
	desc := c.Harness.Machine
	var refs []string
	for _, spaceName := range desc.SpaceOrder {
		space := desc.Spaces[spaceName]
		names := make([]string, 0, len(space.Fields))
		for name, field := range space.Fields {
			if field.RedirectsTo != nil {
				continue
			}
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			refs = append(refs, space.Name+"::"+name)
		}
	}
	return refs
}

// cmdDisasm disassembles a block of hex-encoded bytes without executing
// it.
func (c *Console) cmdDisasm(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: disasm <hex-bytes> [base-address]")
	}
	rom, err := parseHexBytes(args[0])
	if err != nil {
		return fmt.Errorf("invalid rom bytes: %w", err)
	}
	var base uint64
	if len(args) > 1 {
		base, err = strconv.ParseUint(strings.TrimPrefix(args[1], "0x"), 16, 64)
		if err != nil {
			return fmt.Errorf("invalid base address: %w", err)
		}
	}

	decoded, err := c.Harness.Machine.DecodeBlock(c.Space, rom, base)
	if err != nil {
		return err
	}
	for _, d := range c.Harness.Machine.Disassemble(decoded) {
		if len(d.Operands) > 0 {
			c.Printf("0x%08X: %-8s %s\n", d.Address, d.Mnemonic, strings.Join(d.Operands, " "))
		} else {
			c.Printf("0x%08X: %s\n", d.Address, orDefault(d.Mnemonic, d.Display))
		}
	}
	return nil
}

func orDefault(mnemonic, display string) string {
	if mnemonic != "" && mnemonic != "?" {
		return mnemonic
	}
	return display
}

// cmdSpace switches the space instructions decode against, or reports
// the current one with no arguments.
func (c *Console) cmdSpace(args []string) error {
	if len(args) == 0 {
		c.Printf("current space: %s\n", c.Space)
		return nil
	}
	name := args[0]
	if _, ok := c.Harness.Machine.Spaces[name]; !ok {
		return fmt.Errorf("unknown space: %s", name)
	}
	c.Space = name
	return nil
}

func (c *Console) cmdHelp(args []string) error {
	c.Println("run <hex-bytes> [base]        decode and execute a block of instructions")
	c.Println("disasm <hex-bytes> [base]     decode a block without executing it")
	c.Println("reg <ref> [value]             read or write a register")
	c.Println("registers                     list every register's current value")
	c.Println("space [name]                  show or switch the active decode space")
	c.Println("help                          show this message")
	return nil
}

func parseHexBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if len(s)%2 != 0 {
		return nil, fmt.Errorf("odd-length hex string")
	}
	out := make([]byte, len(s)/2)
	for i := range out {
		v, err := strconv.ParseUint(s[i*2:i*2+2], 16, 8)
		if err != nil {
			return nil, err
		}
		out[i] = byte(v)
	}
	return out, nil
}
