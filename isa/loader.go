package isa

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jmercer/isaforge/diag"
)

// FileSystem abstracts reading source files so the loader can be tested
// against an in-memory fixture instead of the real filesystem.
type FileSystem interface {
	ReadFile(path string) (string, error)
}

// OSFileSystem reads files from disk.
type OSFileSystem struct{}

func (OSFileSystem) ReadFile(path string) (string, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Composition is the ordered set of documents resolved from a coredef's
// include graph: exactly one base .isa first, then zero or more .isaext
// extensions in include order.
type Composition struct {
	Documents []*Document
}

// Loader performs depth-first include/extends resolution starting from a
// root .coredef file, enforcing: each resolved path visited at most once,
// include cycles rejected with the full chain, and coredef composition
// rules (exactly one base .isa, any number of .isaext after it).
type Loader struct {
	fs          FileSystem
	visited     map[string]bool
	stack       []string
	knownSpaces map[string]SpaceKind
	bag         diag.Bag
	resolved    []*Document
}

// NewLoader constructs a loader over fs. A nil fs uses the real
// filesystem.
func NewLoader(fs FileSystem) *Loader {
	if fs == nil {
		fs = OSFileSystem{}
	}
	return &Loader{fs: fs, visited: map[string]bool{}, knownSpaces: map[string]SpaceKind{}}
}

// LoadCoredef resolves path (a .coredef file) into a Composition. Errors
// (including parser diagnostics from every visited file) accumulate in
// the returned bag; Composition is nil only when the root file itself
// could not be read or was not recognized as a valid .coredef.
func (l *Loader) LoadCoredef(path string) (*Composition, *diag.Bag) {
	if FileKindFromPath(path) != KindCoredef {
		l.bag.AddError(diag.PhaseValidation, "loader.not-coredef", fmt.Sprintf("%s is not a .coredef file", path))
		return nil, &l.bag
	}

	doc, ok := l.loadOne(path)
	if !ok {
		return nil, &l.bag
	}

	var includePaths []string
	for _, item := range doc.Items {
		if inc, ok := item.(IncludeDecl); ok {
			includePaths = append(includePaths, resolveRelative(path, inc.Path))
		}
	}

	if len(includePaths) == 0 {
		l.bag.AddError(diag.PhaseValidation, "loader.no-base", "coredef must include at least one base .isa file")
		return nil, &l.bag
	}

	var composition Composition
	baseCount := 0
	seenExt := false
	for _, incPath := range includePaths {
		kind := FileKindFromPath(incPath)
		switch kind {
		case KindISA:
			if seenExt {
				l.bag.AddError(diag.PhaseValidation, "loader.bad-order", fmt.Sprintf("base .isa include %q must precede all .isaext includes", incPath))
				continue
			}
			if baseCount > 0 {
				l.bag.AddError(diag.PhaseValidation, "loader.multiple-base", fmt.Sprintf("coredef includes more than one base .isa (%q)", incPath))
				continue
			}
			baseCount++
		case KindISAExt:
			seenExt = true
		default:
			l.bag.AddError(diag.PhaseValidation, "loader.bad-include-kind", fmt.Sprintf("coredef include %q has unsupported extension", incPath))
			continue
		}

		if _, err := l.load(incPath, kind); err != nil {
			l.bag.AddError(diag.PhaseValidation, "loader.include-error", err.Error())
			continue
		}
	}

	if baseCount == 0 {
		l.bag.AddError(diag.PhaseValidation, "loader.no-base", "coredef must include exactly one base .isa file")
	}

	composition.Documents = l.resolved
	return &composition, &l.bag
}

// load is the DFS entry point for a non-root file, handling cycle
// detection and the isaext extends chain.
func (l *Loader) load(path string, kind FileKind) (*Document, error) {
	canon := canonicalize(path)
	for _, active := range l.stack {
		if active == canon {
			return nil, fmt.Errorf("include-loop: %s -> %s", strings.Join(l.stack, " -> "), canon)
		}
	}
	if l.visited[canon] {
		return nil, nil // already loaded elsewhere in the composition; not an error
	}

	l.stack = append(l.stack, canon)
	defer func() { l.stack = l.stack[:len(l.stack)-1] }()

	doc, ok := l.loadOne(path)
	if !ok {
		return nil, fmt.Errorf("failed to load %s", path)
	}
	l.visited[canon] = true
	l.resolved = append(l.resolved, doc)

	if kind == KindISAExt {
		for _, extPath := range doc.Extends {
			resolved := resolveRelative(path, extPath)
			extKind := FileKindFromPath(resolved)
			if extKind == KindCoredef {
				return nil, fmt.Errorf(":extends target %q must not be a .coredef file", resolved)
			}
			if _, err := l.load(resolved, extKind); err != nil {
				return nil, err
			}
		}
	}

	return doc, nil
}

// loadOne reads and parses a single file without touching the include
// graph, threading the loader's accumulated known-spaces table through
// and recording the file's own diagnostics.
func (l *Loader) loadOne(path string) (*Document, bool) {
	source, err := l.fs.ReadFile(path)
	if err != nil {
		l.bag.AddError(diag.PhaseValidation, "loader.read-error", fmt.Sprintf("reading %s: %v", path, err))
		return nil, false
	}
	kind := FileKindFromPath(path)
	doc, knownSpaces, diags := ParseSource(source, path, kind, l.knownSpaces)
	l.knownSpaces = knownSpaces
	l.bag.Merge(diags)
	return doc, true
}

func resolveRelative(fromFile, target string) string {
	if filepath.IsAbs(target) {
		return target
	}
	return filepath.Join(filepath.Dir(fromFile), target)
}

func canonicalize(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}
