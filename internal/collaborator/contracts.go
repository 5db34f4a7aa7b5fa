// Package collaborator defines the engine-facing contracts for the
// external tools the pipeline drives but does not implement: the C
// compiler wrapper, the object-diff scorer, the algorithmic decompiler,
// and the mutation searcher. Only the surface the engine consumes is
// specified here. One concrete, subprocess-based Compiler adapter is
// supplied so the module is runnable end-to-end; the others are expected
// to be provided by the deployment.
package collaborator

import "context"

// CompileResult is the outcome of one compile attempt.
type CompileResult struct {
	Success           bool
	ObjPath           string
	CompilationErrors []string
	ErrorMessage      string
}

// Compiler is the engine-facing compiler contract.
type Compiler interface {
	Compile(ctx context.Context, functionName, cSource, contextContentOrPath string, flags []string) (CompileResult, error)
}

// ParsedObject is an opaque handle returned by a Scorer's ParseObjectFile,
// passed back into RunDiff/GetAssemblyFromSymbol.
type ParsedObject interface{}

// Symbol is an opaque handle for a located symbol within a ParsedObject.
type Symbol interface{}

// DiffResult is the outcome of comparing two parsed objects.
type DiffResult struct {
	Left            string
	Right           string
	DifferenceCount int
}

// Scorer is the engine-facing object-diff scorer contract.
type Scorer interface {
	ParseObjectFile(ctx context.Context, path, label string) (ParsedObject, error)
	RunDiff(ctx context.Context, parsed ParsedObject) (DiffResult, error)
	FindSymbol(ctx context.Context, parsed ParsedObject, name string) (Symbol, bool, error)
	GetAssemblyFromSymbol(ctx context.Context, parsed ParsedObject, name string) (string, error)
}

// Decompiler is the engine-facing algorithmic decompiler contract: a
// one-shot, non-LLM translation of asm into C source, driven by the
// programmatic-flow.
type Decompiler interface {
	Decompile(ctx context.Context, functionName, asm string) (code string, ok bool, err error)
}

// MutationResult is one mutation-search task's outcome.
type MutationResult struct {
	Matched bool
	Code    string
}

// MutationSearcher is the engine-facing code-mutation search contract,
// driven as a background task. It runs to completion or cancellation from
// a fixed starting candidate.
type MutationSearcher interface {
	Search(ctx context.Context, functionName, seedCode, targetObjectPath string) (MutationResult, error)
}
