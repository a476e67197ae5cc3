package core

import (
	"fmt"
	"strings"
)

// RegisterReference is a parsed "space::name[::subfield]" string, the
// same addressing scheme instruction semantics use for register access.
type RegisterReference struct {
	Space    string
	Name     string
	Subfield string
}

// ParseRegisterReference splits a register reference string on "::",
// requiring at least a space and a name and rejecting more than three
// segments (space, name, subfield).
func ParseRegisterReference(register string) (RegisterReference, error) {
	segments := strings.Split(register, "::")
	switch len(segments) {
	case 2, 3:
		for _, seg := range segments {
			if seg == "" {
				return RegisterReference{}, fmt.Errorf("core: register reference %q has an empty segment", register)
			}
		}
		ref := RegisterReference{Space: segments[0], Name: segments[1]}
		if len(segments) == 3 {
			ref.Subfield = segments[2]
		}
		return ref, nil
	default:
		return RegisterReference{}, fmt.Errorf("core: register reference %q must have 2 or 3 ':'-separated segments", register)
	}
}

// StateName is the key a register's RegisterReference is stored under in
// a State's layout table (space-qualified to avoid collisions between
// same-named registers in different spaces).
func (r RegisterReference) StateName() string { return r.Space + "::" + r.Name }
