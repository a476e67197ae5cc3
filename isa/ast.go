package isa

// SpaceKind enumerates the five address space flavors an ISA file may
// declare.
type SpaceKind int

const (
	SpaceReadWrite SpaceKind = iota
	SpaceReadOnly
	SpaceMemoryMappedIO
	SpaceRegister
	SpaceLogic
)

func (k SpaceKind) String() string {
	switch k {
	case SpaceReadWrite:
		return "rw"
	case SpaceReadOnly:
		return "ro"
	case SpaceMemoryMappedIO:
		return "memio"
	case SpaceRegister:
		return "register"
	case SpaceLogic:
		return "logic"
	default:
		return "unknown"
	}
}

// Endianness is little or big.
type Endianness int

const (
	LittleEndian Endianness = iota
	BigEndian
)

// Item is any top-level declaration an ISA source file may contain.
type Item interface{ isItem() }

// ParameterDecl declares a global parameter visible to every semantic
// program compiled against this composition.
type ParameterDecl struct {
	Name  string
	Value string
}

func (ParameterDecl) isItem() {}

// FilesetDecl names an auxiliary input file group; carried through
// unevaluated since concrete fileset resolution is a loader/tooling
// concern outside this engine's scope.
type FilesetDecl struct {
	Name  string
	Value string
}

func (FilesetDecl) isItem() {}

// SpaceDecl introduces an address space.
type SpaceDecl struct {
	Name        string
	Kind        SpaceKind
	AddressBits uint
	WordBits    uint
	Alignment   uint // 0 means unspecified
	Endian      Endianness
	Enable      string // raw expression text, empty if absent
}

func (SpaceDecl) isItem() {}

// FieldIndexRange is an inclusive [start..end] range for a ranged
// register field.
type FieldIndexRange struct {
	Start uint32
	End   uint32
}

// ContextReference is a `::`-joined chain such as `GPR1` or `reg::GPR1`.
type ContextReference struct {
	Segments []string
}

// SubFieldOp tags a subfield with a role such as "target" or
// "immediate.signed".
type SubFieldOp struct {
	Kind    string
	Subtype string
}

// SubFieldDecl is a named bit range within a field or form.
type SubFieldDecl struct {
	Name        string
	BitSpecRaw  string
	Operations  []SubFieldOp
	Description string
}

// FieldDecl declares a register (or ranged register array) within a
// register space.
type FieldDecl struct {
	Space       string
	Name        string
	Range       *FieldIndexRange
	Offset      *uint64
	Size        *uint64
	Reset       *uint64
	Description string
	Redirect    *ContextReference
	Subfields   []SubFieldDecl
}

// FormDecl declares a bit-field layout that instructions in a logic space
// may adopt.
type FormDecl struct {
	Space     string
	Name      string
	Inherits  string // empty if none
	Subfields []SubFieldDecl
}

// MaskField pairs a selector (a named form subfield, or a raw bit-spec
// string when no subfield name applies) with the constant value an
// instruction's encoding must match there.
type MaskField struct {
	SubfieldName string // non-empty when selector names a form subfield
	RawSpec      string // non-empty when selector is a raw @(...) spec
	Value        uint64
}

// InstructionDecl declares one decodable instruction within a logic
// space.
type InstructionDecl struct {
	Space     string
	Form      string // empty if the instruction declares no form
	Name      string
	Operands  []string // explicit operand order; nil means "derive from form"
	Masks     []MaskField
	Semantics string // raw semantic program source, empty if none
	Display   string
}

// SpaceMember is the sum type of things that can be declared inside a
// space context (`:<space-name> ...`).
type SpaceMember interface{ isSpaceMember() }

func (FieldDecl) isSpaceMember()       {}
func (FormDecl) isSpaceMember()        {}
func (InstructionDecl) isSpaceMember() {}

// SpaceMemberDecl wraps a SpaceMember with its owning space name so the
// loader/validator can group members by space without re-deriving it.
type SpaceMemberDecl struct {
	Space  string
	Member SpaceMember
}

func (SpaceMemberDecl) isItem() {}

// MacroDecl is a named, parameterized semantic fragment.
type MacroDecl struct {
	Name      string
	Params    []string
	Semantics string
}

func (MacroDecl) isItem() {}

// IncludeDecl names a dependency file, legal only in `.coredef` sources.
type IncludeDecl struct {
	Path string
}

func (IncludeDecl) isItem() {}

// HintEntry is one `space <- bitexpr comparator number` clause inside a
// `:hint` block.
type HintEntry struct {
	Space      string
	BitExprRaw string
	Comparator string // "==" or "!="
	Value      uint64
}

// HintBlock groups hint entries; hints are consumed by tooling (display
// heuristics) rather than by execution semantics, but are still parsed
// and validated so a hint referencing an unknown space is caught early.
type HintBlock struct {
	Entries []HintEntry
}

func (HintBlock) isItem() {}

// Document is the parsed form of a single source file of any of the
// three kinds (.isa, .isaext, .coredef).
type Document struct {
	Path    string
	Kind    FileKind
	Items   []Item
	Extends []string
}

// FileKind distinguishes the three file extensions' grammars.
type FileKind int

const (
	KindISA FileKind = iota
	KindISAExt
	KindCoredef
)

func FileKindFromPath(path string) FileKind {
	switch {
	case hasSuffix(path, ".isaext"):
		return KindISAExt
	case hasSuffix(path, ".coredef"):
		return KindCoredef
	default:
		return KindISA
	}
}

func hasSuffix(s, suffix string) bool {
	if len(s) < len(suffix) {
		return false
	}
	return s[len(s)-len(suffix):] == suffix
}
