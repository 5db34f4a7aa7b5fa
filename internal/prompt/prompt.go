// Package prompt loads prompt records from a prompts directory: one
// subdirectory per prompt, each holding the task content, the target
// function name, the reference assembly, and a pointer to the compiled
// target object file.
package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"sort"
	"strings"
)

// ErrEmpty indicates a prompt directory exists but its content file is
// empty.
var ErrEmpty = errors.New("prompt: empty prompt content")

// Record is one unit of benchmark work: a decompilation task together
// with its ground-truth assembly and compiled target object.
type Record struct {
	Path             string // prompt directory path, used as the stable ID
	Content          string
	FunctionName     string
	TargetObjectPath string
	Asm              string
}

const (
	contentFile = "prompt.txt"
	funcFile    = "function.txt"
	objFile     = "target.o"
	asmFile     = "reference.s"
)

// Loader reads Prompt records from a filesystem.
type Loader struct {
	fsys fs.FS
	root string
}

// NewLoader creates a Loader that reads prompt directories from fsys,
// rooted at root (root is passed separately from fsys so TargetObjectPath
// can be returned as an absolute-ish path usable by the compiler
// collaborator, which runs outside of fsys).
func NewLoader(fsys fs.FS, root string) *Loader {
	return &Loader{fsys: fsys, root: root}
}

// LoadAll walks the prompts directory and returns one Record per immediate
// subdirectory containing a prompt.txt file, sorted by path for
// deterministic benchmark ordering.
func (l *Loader) LoadAll() ([]Record, error) {
	entries, err := fs.ReadDir(l.fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("prompt: listing prompts directory: %w", err)
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	records := make([]Record, 0, len(names))
	for _, name := range names {
		record, ok, err := l.load(name)
		if err != nil {
			return nil, err
		}
		if ok {
			records = append(records, record)
		}
	}
	return records, nil
}

// load reads one prompt subdirectory's record. ok is false if the
// directory has no prompt.txt (not a prompt directory).
func (l *Loader) load(name string) (Record, bool, error) {
	if strings.ContainsAny(name, `/\`) {
		return Record{}, false, fmt.Errorf("prompt: invalid prompt directory name %q", name)
	}

	content, err := fs.ReadFile(l.fsys, filepath.Join(name, contentFile))
	if errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("prompt: reading %s: %w", name, err)
	}
	if len(content) == 0 {
		return Record{}, false, fmt.Errorf("%w: %s", ErrEmpty, name)
	}

	functionName, err := fs.ReadFile(l.fsys, filepath.Join(name, funcFile))
	if err != nil {
		return Record{}, false, fmt.Errorf("prompt: reading %s/%s: %w", name, funcFile, err)
	}

	var asm string
	if data, err := fs.ReadFile(l.fsys, filepath.Join(name, asmFile)); err == nil {
		asm = string(data)
	} else if !errors.Is(err, fs.ErrNotExist) {
		return Record{}, false, fmt.Errorf("prompt: reading %s/%s: %w", name, asmFile, err)
	}

	return Record{
		Path:             name,
		Content:          string(content),
		FunctionName:     strings.TrimSpace(string(functionName)),
		TargetObjectPath: filepath.Join(l.root, name, objFile),
		Asm:              asm,
	}, true, nil
}
