package machine

import (
	"fmt"

	"github.com/jmercer/isaforge/isa"
)

// Decoded is one instruction matched against a concrete encoding.
type Decoded struct {
	Address     uint64
	Bits        uint64
	Instruction *Instruction
}

// Decode finds the first instruction (by Description.Instructions order,
// which is declaration order) whose masks all match bits.
func (d *Description) Decode(bits uint64) (*Instruction, bool) {
	for _, insn := range d.Instructions {
		if insn.matches(bits) {
			return insn, true
		}
	}
	return nil, false
}

func (insn *Instruction) matches(bits uint64) bool {
	for _, mask := range insn.Masks {
		value, _ := mask.Spec.ReadBits(bits)
		if value != mask.Value {
			return false
		}
	}
	return true
}

// DecodeBlock decodes a flat byte stream as a sequence of fixed-size
// words (wordBits wide, the space's native word size), starting at
// baseAddress.
func (d *Description) DecodeBlock(space string, rom []byte, baseAddress uint64) ([]Decoded, error) {
	sp, ok := d.Spaces[space]
	if !ok {
		return nil, fmt.Errorf("machine: unknown space %q", space)
	}
	wordBytes := int((sp.WordBits + 7) / 8)
	if wordBytes == 0 {
		return nil, fmt.Errorf("machine: space %q has zero word width", space)
	}

	var out []Decoded
	for offset := 0; offset+wordBytes <= len(rom); offset += wordBytes {
		bits := readWord(rom[offset:offset+wordBytes], sp.Endian)
		insn, ok := d.Decode(bits)
		address := baseAddress + uint64(offset)
		if !ok {
			out = append(out, Decoded{Address: address, Bits: bits})
			continue
		}
		out = append(out, Decoded{Address: address, Bits: bits, Instruction: insn})
	}
	return out, nil
}

func readWord(buf []byte, endian isa.Endianness) uint64 {
	var value uint64
	for i, b := range buf {
		shift := i * 8
		if endian == isa.BigEndian {
			shift = (len(buf) - 1 - i) * 8
		}
		value |= uint64(b) << shift
	}
	return value
}

// Disassembly is a human-readable rendering of one decoded word.
type Disassembly struct {
	Address  uint64
	Mnemonic string
	Operands []string
	Display  string
}

// Disassemble renders decoded entries using each instruction's declared
// operand order. The instruction's display template is not applied;
// Display is only set for unmatched words (".word 0x...").
func (d *Description) Disassemble(decoded []Decoded) []Disassembly {
	out := make([]Disassembly, 0, len(decoded))
	for _, entry := range decoded {
		if entry.Instruction == nil {
			out = append(out, Disassembly{Address: entry.Address, Mnemonic: "?", Display: fmt.Sprintf(".word 0x%x", entry.Bits)})
			continue
		}
		insn := entry.Instruction
		var operands []string
		if form, ok := d.Spaces[insn.Space].Forms[insn.Form]; ok {
			for _, name := range insn.Operands {
				if spec, ok := form.Subfields[name]; ok {
					value, _ := spec.ReadBits(entry.Bits)
					operands = append(operands, fmt.Sprintf("%s=0x%x", name, value))
				}
			}
		}
		out = append(out, Disassembly{Address: entry.Address, Mnemonic: insn.Name, Operands: operands})
	}
	return out
}
