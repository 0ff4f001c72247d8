package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/boxlang/boxvm/vm"
	"github.com/fatih/color"
)

// tracer prints execution events as the machine runs.
type tracer struct {
	w     io.Writer
	lines bool
	call  func(a ...interface{}) string
	ret   func(a ...interface{}) string
}

func newTracer(w io.Writer, lines bool) *tracer {
	return &tracer{
		w:     w,
		lines: lines,
		call:  color.New(color.FgCyan).SprintFunc(),
		ret:   color.New(color.Faint).SprintFunc(),
	}
}

func (t *tracer) Config() vm.ObserverConfig {
	if t.lines {
		return vm.NewObserverConfig(vm.StepOnLine)
	}
	return vm.NewObserverConfig(vm.StepAll)
}

func (t *tracer) indent(depth int) string {
	if depth < 1 {
		return ""
	}
	return strings.Repeat("  ", depth-1)
}

func (t *tracer) OnStep(e vm.StepEvent) bool {
	if t.lines {
		fmt.Fprintf(t.w, "%s%s line %d\n", t.indent(e.FrameDepth), e.Procedure, e.Line)
		return true
	}
	fmt.Fprintf(t.w, "%s%s+%d\t%s\n", t.indent(e.FrameDepth), e.Procedure, e.Offset, e.Text)
	return true
}

func (t *tracer) OnCall(e vm.CallEvent) bool {
	kind := ""
	if e.Native {
		kind = " (native)"
	}
	fmt.Fprintf(t.w, "%s%s\n", t.indent(e.FrameDepth), t.call("-> "+e.Procedure+kind))
	return true
}

func (t *tracer) OnReturn(e vm.ReturnEvent) bool {
	fmt.Fprintf(t.w, "%s%s\n", t.indent(e.FrameDepth), t.ret("<- "+e.Procedure))
	return true
}
