package trace

import (
	"fmt"
	"strings"
	"testing"

	"github.com/jmercer/isaforge/core"
	"github.com/jmercer/isaforge/isa"
	"github.com/jmercer/isaforge/machine"
	"github.com/jmercer/isaforge/semantics"
)

type memFS map[string]string

func (m memFS) ReadFile(path string) (string, error) {
	src, ok := m[path]
	if !ok {
		return "", fmt.Errorf("no such file: %s", path)
	}
	return src, nil
}

const demoISA = `:space reg addr=32 word=32 type=register
:reg RD offset=0 size=32
:reg RA offset=8 size=32
:reg RB offset=16 size=32
:space code addr=32 word=32 type=logic endian=big
:form code add_form subfields={ OPCODE @(0-7) | RDI @(8-11) | RAI @(12-15) | RBI @(16-19) }
:code add form=add_form mask={ OPCODE=0x10 } operands=(RDI,RAI,RBI) semantics={ reg::RD = reg::RA + reg::RB; }
`

func newTestConsole(t *testing.T) *Console {
	t.Helper()
	comp, bag := isa.NewLoader(memFS{
		"/c.coredef": `:include "base.isa"`,
		"/base.isa":  demoISA,
	}).LoadCoredef("/c.coredef")
	if bag.HasErrors() {
		t.Fatalf("load: %v", bag.Errors())
	}
	if vbag := isa.Validate(comp); vbag.HasErrors() {
		t.Fatalf("validate: %v", vbag.Errors())
	}
	desc, mbag := machine.Compile(comp)
	if mbag.HasErrors() {
		t.Fatalf("compile: %v", mbag.Errors())
	}
	h, err := semantics.NewHarness(desc, core.SoftwareHost{})
	if err != nil {
		t.Fatalf("new harness: %v", err)
	}
	return NewConsole(h, "code")
}

func TestConsoleRegWriteAndRead(t *testing.T) {
	c := newTestConsole(t)
	if err := c.ExecuteCommand("reg reg::RA 0xa"); err != nil {
		t.Fatalf("write RA: %v", err)
	}
	c.GetOutput()
	if err := c.ExecuteCommand("reg reg::RA"); err != nil {
		t.Fatalf("read RA: %v", err)
	}
	out := c.GetOutput()
	if !strings.Contains(out, "0xA") {
		t.Fatalf("expected read output to show 0xA, got %q", out)
	}
}

func TestConsoleRunExecutesAndUpdatesRegister(t *testing.T) {
	c := newTestConsole(t)
	if err := c.ExecuteCommand("reg reg::RA 0xa"); err != nil {
		t.Fatalf("write RA: %v", err)
	}
	c.GetOutput()
	if err := c.ExecuteCommand("reg reg::RB 0x20"); err != nil {
		t.Fatalf("write RB: %v", err)
	}
	c.GetOutput()

	bits := uint32(0x10)<<24 | uint32(1)<<20 | uint32(2)<<16 | uint32(3)<<12
	rom := fmt.Sprintf("%08X", bits)
	if err := c.ExecuteCommand("run " + rom); err != nil {
		t.Fatalf("run: %v", err)
	}
	out := c.GetOutput()
	if !strings.Contains(out, "executed 1 instruction") {
		t.Fatalf("expected execution summary, got %q", out)
	}
	if len(c.LastExecuted) != 1 || c.LastExecuted[0].Mnemonic != "add" {
		t.Fatalf("expected one add execution, got %+v", c.LastExecuted)
	}

	value, err := c.Harness.Read("reg::RD")
	if err != nil {
		t.Fatalf("read RD: %v", err)
	}
	if value != 42 {
		t.Fatalf("expected RD=42, got %d", value)
	}
}

func TestConsoleRegistersListsEveryField(t *testing.T) {
	c := newTestConsole(t)
	if err := c.ExecuteCommand("registers"); err != nil {
		t.Fatalf("registers: %v", err)
	}
	out := c.GetOutput()
	for _, name := range []string{"reg::RD", "reg::RA", "reg::RB"} {
		if !strings.Contains(out, name) {
			t.Fatalf("expected output to list %s, got %q", name, out)
		}
	}
}

func TestConsoleSpaceSwitchesAndRejectsUnknown(t *testing.T) {
	c := newTestConsole(t)
	if err := c.ExecuteCommand("space nosuch"); err == nil {
		t.Fatal("expected an error for an unknown space")
	}
	c.GetOutput()
	if err := c.ExecuteCommand("space reg"); err != nil {
		t.Fatalf("space reg: %v", err)
	}
	if c.Space != "reg" {
		t.Fatalf("expected space to switch to reg, got %s", c.Space)
	}
}

func TestConsoleEmptyCommandRepeatsLast(t *testing.T) {
	c := newTestConsole(t)
	if err := c.ExecuteCommand("reg reg::RA 0x5"); err != nil {
		t.Fatalf("write RA: %v", err)
	}
	c.GetOutput()
	if err := c.ExecuteCommand(""); err != nil {
		t.Fatalf("repeat: %v", err)
	}
	out := c.GetOutput()
	if !strings.Contains(out, "0x5") {
		t.Fatalf("expected repeated write output, got %q", out)
	}
}

func TestParseHexBytesRejectsOddLength(t *testing.T) {
	if _, err := parseHexBytes("abc"); err == nil {
		t.Fatal("expected an error for odd-length hex")
	}
}
