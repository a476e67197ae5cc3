package semantics

import (
	"fmt"

	"github.com/jmercer/isaforge/core"
	"github.com/jmercer/isaforge/isa"
	"github.com/jmercer/isaforge/machine"
)

// InstructionExecution is the outcome of running one decoded
// instruction's semantic program.
type InstructionExecution struct {
	Address     uint64
	Mnemonic    string
	Bits        uint64
	ReturnValue *Value
}

// Harness ties a compiled machine description, a register file, and host
// arithmetic services together to execute instruction semantics. It owns
// parsed-program caching: each instruction's Semantics text is parsed
// once, on first execution, and reused afterward.
type Harness struct {
	Machine  *machine.Description
	State    *core.State
	Host     core.HostServices
	resolver *HostResolver
	programs map[*machine.Instruction][]Statement
	tracer   Tracer
}

// EnableTracer attaches sink as the harness's trace receiver: every
// subsequent Fetch, register access, and host call emits an event to it.
func (h *Harness) EnableTracer(sink Tracer) {
	h.tracer = sink
	h.resolver.Registers.Tracer = sink
	h.resolver.Tracer = sink
}

// DisableTracer detaches the current trace sink, if any.
func (h *Harness) DisableTracer() {
	h.tracer = nil
	h.resolver.Registers.Tracer = nil
	h.resolver.Tracer = nil
}

// NewHarness builds a register file sized and laid out from desc's
// compiled registers, then wires it to host and the description.
func NewHarness(desc *machine.Description, host core.HostServices) (*Harness, error) {
	layouts := map[string]core.RegisterLayout{}
	var maxEnd uint64
	bigEndian := false
	for _, spaceName := range desc.SpaceOrder {
		space := desc.Spaces[spaceName]
		if space.Kind != isa.SpaceRegister {
			continue
		}
		bigEndian = space.Endian == isa.BigEndian
		for name, field := range space.Fields {
			if len(field.Elements) > 0 {
				for _, elem := range field.Elements {
					layouts[space.Name+"::"+elem.Label] = elem.Layout
					if end := elem.Layout.ByteOffset + 8; end > maxEnd {
						maxEnd = end
					}
				}
				continue
			}
			key := space.Name + "::" + name
			layouts[key] = field.Layout
			end := field.Layout.ByteOffset + 8
			if end > maxEnd {
				maxEnd = end
			}
		}
	}

	state := core.NewState(int(maxEnd), bigEndian, layouts)
	access := &RegisterAccess{Description: desc, State: state}
	resolver := &HostResolver{Registers: access, Host: host}

	return &Harness{
		Machine:  desc,
		State:    state,
		Host:     host,
		resolver: resolver,
		programs: map[*machine.Instruction][]Statement{},
	}, nil
}

// Read reads a register by its "space::name[::subfield]" string
// reference, the same addressing scheme semantics programs use.
func (h *Harness) Read(register string) (uint64, error) {
	ref, err := core.ParseRegisterReference(register)
	if err != nil {
		return 0, err
	}
	v, err := h.resolver.ReadRegister(Register{Space: ref.Space, Name: ref.Name, Subfield: ref.Subfield})
	if err != nil {
		return 0, err
	}
	i, err := v.AsInt()
	return uint64(i), err
}

// Write writes a register by its "space::name[::subfield]" string
// reference.
func (h *Harness) Write(register string, value uint64) error {
	ref, err := core.ParseRegisterReference(register)
	if err != nil {
		return err
	}
	return h.resolver.WriteRegister(Register{Space: ref.Space, Name: ref.Name, Subfield: ref.Subfield}, IntValue(int64(value)))
}

// ExecuteBlock decodes rom as a sequence of instructions in space
// (starting at baseAddress) and runs each matched instruction's
// semantics in order, binding its decoded operand fields as parameters.
func (h *Harness) ExecuteBlock(space string, rom []byte, baseAddress uint64) ([]InstructionExecution, error) {
	decoded, err := h.Machine.DecodeBlock(space, rom, baseAddress)
	if err != nil {
		return nil, err
	}

	var results []InstructionExecution
	for _, entry := range decoded {
		if entry.Instruction == nil {
			continue
		}
		result, err := h.executeOne(entry.Address, entry.Bits, entry.Instruction)
		if err != nil {
			return results, fmt.Errorf("execute %s at 0x%x: %w", entry.Instruction.Name, entry.Address, err)
		}
		results = append(results, result)
	}
	return results, nil
}

func (h *Harness) executeOne(address, bits uint64, insn *machine.Instruction) (InstructionExecution, error) {
	program, err := h.compiledProgram(insn)
	if err != nil {
		return InstructionExecution{}, err
	}
	if h.tracer != nil {
		h.tracer.TraceFetch(address, bits, insn.Name)
	}

	params := bindParameters(h.Machine, insn, bits)
	evaluator := NewEvaluator(params, h.resolver)
	value, returned, err := evaluator.Run(program)
	if err != nil {
		return InstructionExecution{}, err
	}

	exec := InstructionExecution{Address: address, Mnemonic: insn.Name, Bits: bits}
	if returned {
		exec.ReturnValue = &value
	}
	return exec, nil
}

func (h *Harness) compiledProgram(insn *machine.Instruction) ([]Statement, error) {
	if program, ok := h.programs[insn]; ok {
		return program, nil
	}
	program, err := Parse(insn.Semantics)
	if err != nil {
		return nil, fmt.Errorf("instruction %q: %w", insn.Name, err)
	}
	h.programs[insn] = program
	return program, nil
}

// bindParameters reads each of an instruction's declared operand names
// out of its encoding (via the owning form's subfield specs) and binds
// them as Parameter values for one execution.
func bindParameters(desc *machine.Description, insn *machine.Instruction, bits uint64) map[string]Value {
	params := map[string]Value{}
	space, ok := desc.Spaces[insn.Space]
	if !ok {
		return params
	}
	form, ok := space.Forms[insn.Form]
	if !ok {
		return params
	}
	for _, name := range insn.Operands {
		spec, ok := form.Subfields[name]
		if !ok {
			continue
		}
		value, _ := spec.ReadBits(bits)
		params[name] = IntValue(int64(value))
	}
	return params
}
