// Package feedback renders the retry-feedback messages the agentic main
// plugin appends during PrepareRetry: the stall-recovery notice and the
// best-attempt reminder. Both are pure functions of the previous attempts
// plus small trigger bookkeeping owned by the Builder instance.
package feedback

import (
	"bytes"
	"fmt"
	"io/fs"
	"text/template"

	"github.com/vela-forge/pipelinerunner/internal/plugin"
)

// ObjDiffData is the objdiff scorer's structured result payload, as
// stashed in a plugin.Result's Data field by the objdiff collaborator
// adapter.
type ObjDiffData struct {
	DifferenceCount int
	Code            string
}

const (
	stallTemplateFile       = "stall_notice.tmpl"
	bestAttemptTemplateFile = "best_attempt_reminder.tmpl"
)

var (
	defaultStallTmpl       = template.Must(template.ParseFS(Assets, stallTemplateFile))
	defaultBestAttemptTmpl = template.Must(template.ParseFS(Assets, bestAttemptTemplateFile))
)

// Builder accumulates stall-detection bookkeeping across a single
// pipeline run's retries. A fresh Builder must be used per prompt.
type Builder struct {
	stallThreshold   int
	triggeredAtCount int
	stallTmpl        *template.Template
	bestAttemptTmpl  *template.Template
}

// NewBuilder returns a Builder with the given stall-detection window size,
// rendering the embedded templates.
func NewBuilder(stallThreshold int) *Builder {
	return &Builder{
		stallThreshold:  stallThreshold,
		stallTmpl:       defaultStallTmpl,
		bestAttemptTmpl: defaultBestAttemptTmpl,
	}
}

// NewBuilderFS is NewBuilder with templates parsed from fsys instead of
// the embedded assets. Pass OverlayFS(dir, Assets) to let a template
// edited on disk override the built-in wording without a rebuild; the
// parse happens here, so a caller constructing a fresh Builder per prompt
// picks up edits between prompts.
func NewBuilderFS(stallThreshold int, fsys fs.FS) (*Builder, error) {
	stall, err := template.ParseFS(fsys, stallTemplateFile)
	if err != nil {
		return nil, fmt.Errorf("feedback: parsing %s: %w", stallTemplateFile, err)
	}
	best, err := template.ParseFS(fsys, bestAttemptTemplateFile)
	if err != nil {
		return nil, fmt.Errorf("feedback: parsing %s: %w", bestAttemptTemplateFile, err)
	}
	return &Builder{
		stallThreshold:  stallThreshold,
		stallTmpl:       stall,
		bestAttemptTmpl: best,
	}, nil
}

type qualifyingAttempt struct {
	differenceCount int
	code            string
}

// qualifying extracts, in order, every previous attempt that produced a
// numeric difference count; attempts whose objdiff result is absent
// (i.e. the compile step failed first) do not count toward the window.
func qualifying(previousAttempts []map[string]plugin.Result) []qualifyingAttempt {
	var out []qualifyingAttempt
	for _, attempt := range previousAttempts {
		result, ok := attempt["objdiff"]
		if !ok {
			continue
		}
		data, ok := result.Data.(ObjDiffData)
		if !ok {
			continue
		}
		out = append(out, qualifyingAttempt{differenceCount: data.DifferenceCount, code: data.Code})
	}
	return out
}

// Build returns the retry-feedback text to append to the next attempt's
// prompt: a stall-recovery notice if this call crosses the stall
// threshold, and/or a best-attempt reminder if the most recent compiled
// attempt regressed relative to the best prior one. Either, both, or
// neither may be produced.
func (b *Builder) Build(previousAttempts []map[string]plugin.Result) (string, error) {
	qa := qualifying(previousAttempts)

	var out bytes.Buffer

	if stall, err := b.renderStall(qa); err != nil {
		return "", err
	} else if stall != "" {
		out.WriteString(stall)
		out.WriteString("\n\n")
	}

	reminder, err := b.renderBestAttempt(qa)
	if err != nil {
		return "", err
	}
	out.WriteString(reminder)

	return out.String(), nil
}

func (b *Builder) renderStall(qa []qualifyingAttempt) (string, error) {
	if b.triggeredAtCount > len(qa) {
		b.triggeredAtCount = len(qa)
	}
	newSinceTrigger := qa[b.triggeredAtCount:]
	if len(newSinceTrigger) < b.stallThreshold {
		return "", nil
	}

	window := newSinceTrigger[len(newSinceTrigger)-b.stallThreshold:]
	first, last := window[0], window[len(window)-1]
	if last.differenceCount < first.differenceCount {
		return "", nil
	}

	b.triggeredAtCount = len(qa)

	var buf bytes.Buffer
	err := b.stallTmpl.Execute(&buf, map[string]any{
		"Count":           b.stallThreshold,
		"FirstDifference": first.differenceCount,
		"LastDifference":  last.differenceCount,
	})
	return buf.String(), err
}

func (b *Builder) renderBestAttempt(qa []qualifyingAttempt) (string, error) {
	if len(qa) == 0 {
		return "", nil
	}
	last := qa[len(qa)-1]
	prior := qa[:len(qa)-1]
	if len(prior) == 0 {
		return "", nil
	}

	best := prior[0]
	for _, a := range prior[1:] {
		if a.differenceCount < best.differenceCount {
			best = a
		}
	}

	if last.differenceCount <= best.differenceCount {
		return "", nil
	}

	var buf bytes.Buffer
	err := b.bestAttemptTmpl.Execute(&buf, map[string]any{
		"LastDifference": last.differenceCount,
		"BestDifference": best.differenceCount,
		"BestCode":       best.code,
	})
	return buf.String(), err
}
