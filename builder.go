// Typed pipeline composition. A Pipe accumulates launch segments while
// its type parameter tracks the shape between stages; mismatched
// chains fail at compile time, so the only runtime composition error
// left is the engine rejecting free-form launch text.
package gstkit

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
)

// ErrDescriptorConsumed is returned when a descriptor is launched a
// second time.
var ErrDescriptorConsumed = errors.New("pipeline descriptor already launched")

// SourceStage produces data of shape Out. A pipe starts from exactly
// one source.
type SourceStage[Out Shape] struct {
	out     Out
	segment string
}

// Source wraps a launch segment as a typed source stage.
func Source[Out Shape](out Out, description string) SourceStage[Out] {
	return SourceStage[Out]{out: out, segment: description}
}

// ConvertStage consumes shape In and produces shape Out. Appending it
// to a pipe whose shape is not In does not compile.
type ConvertStage[In, Out Shape] struct {
	out     Out
	segment string
}

// Convert wraps a launch segment as a typed conversion stage. In is
// given explicitly, Out is inferred from the argument:
//
//	Convert[Video[I420]](H264{}, "x264enc")
func Convert[In, Out Shape](out Out, description string) ConvertStage[In, Out] {
	return ConvertStage[In, Out]{out: out, segment: description}
}

// FormatStage accepts any input shape and produces shape Out. It marks
// a format negotiation boundary, such as a decoder.
type FormatStage[Out Shape] struct {
	out     Out
	segment string
}

// Format wraps a launch segment as a format boundary stage.
func Format[Out Shape](out Out, description string) FormatStage[Out] {
	return FormatStage[Out]{out: out, segment: description}
}

// SinkStage consumes shape In and terminates a pipe.
type SinkStage[In Shape] struct {
	segment  string
	sinkName string
}

// Sink wraps a launch segment as a typed sink stage.
func Sink[In Shape](description string) SinkStage[In] {
	return SinkStage[In]{segment: description}
}

// Pipe is a partially composed pipeline whose type parameter is the
// shape of the data leaving its last stage. Pipes are immutable
// values: every composition returns a new pipe, so a prefix can be
// extended along several build paths independently.
type Pipe[S Shape] struct {
	shape    S
	segs     []string
	lastCaps string
}

// Shape returns the accumulated layout.
func (p Pipe[S]) Shape() S { return p.shape }

// Caps returns the accumulated layout as engine caps.
func (p Pipe[S]) Caps() Caps { return p.shape.Caps() }

// From starts a pipe at a source stage.
func From[S Shape](src SourceStage[S]) Pipe[S] {
	p := Pipe[S]{shape: src.out, segs: []string{src.segment}}
	return publishCaps(p, src.out.Caps())
}

// Append extends the pipe with a conversion stage. The stage's input
// shape must match the pipe's accumulated shape.
func Append[In, Out Shape](p Pipe[In], st ConvertStage[In, Out]) Pipe[Out] {
	out := Pipe[Out]{shape: st.out, segs: appendSegment(p.segs, st.segment), lastCaps: p.lastCaps}
	return publishCaps(out, st.out.Caps())
}

// Reformat extends the pipe across a format negotiation boundary; any
// accumulated shape is accepted and the stage's output shape is taken
// over.
func Reformat[In, Out Shape](p Pipe[In], st FormatStage[Out]) Pipe[Out] {
	out := Pipe[Out]{shape: st.out, segs: appendSegment(p.segs, st.segment), lastCaps: p.lastCaps}
	return publishCaps(out, st.out.Caps())
}

// AppendRaw splices free-form launch text into the pipe. It is always
// legal and downgrades shape tracking to RawMedia from here on; the
// spliced text is validated by the engine at launch, not before.
func AppendRaw[In Shape](p Pipe[In], description string) Pipe[RawMedia] {
	return Pipe[RawMedia]{shape: RawMedia{}, segs: appendSegment(p.segs, description)}
}

// Finish terminates the pipe with a sink stage and returns the
// launchable descriptor. A finished pipe offers no further
// composition.
func Finish[S Shape](p Pipe[S], sink SinkStage[S]) *Descriptor {
	return &Descriptor{
		launch:   strings.Join(appendSegment(p.segs, sink.segment), " ! "),
		caps:     p.shape.Caps(),
		sinkName: sink.sinkName,
	}
}

// passthrough appends a segment that leaves the shape unchanged.
func passthrough[S Shape](p Pipe[S], segment string) Pipe[S] {
	return Pipe[S]{shape: p.shape, segs: appendSegment(p.segs, segment), lastCaps: p.lastCaps}
}

// appendSegment copies the accumulated segments before appending, so
// pipes sharing a prefix never alias each other's slices.
func appendSegment(segs []string, segment string) []string {
	out := make([]string, len(segs), len(segs)+2)
	copy(out, segs)
	return append(out, segment)
}

// publishCaps appends the stage's resolved caps as a negotiation
// constraint, skipping layouts that resolve to nothing and constraints
// identical to the one already in force.
func publishCaps[S Shape](p Pipe[S], c Caps) Pipe[S] {
	s := resolveLayout(c).String()
	if s == "" || s == p.lastCaps {
		return p
	}
	p.segs = append(p.segs, s)
	p.lastCaps = s
	return p
}

// resolveLayout narrows a stage's layout to the constraint published
// downstream. The rules apply in order and the first match wins:
//
//  1. exact: raw caps carrying a format and a complete geometry
//     (width+height, or rate+channels), and any non-raw caps, publish
//     every field.
//  2. format: raw caps carrying a format but an incomplete geometry
//     publish the media type and format only.
//  3. generic: caps with a media type publish just the media type.
//  4. unconstrained: empty caps publish nothing.
//
// A layout that satisfies a rule only partially falls through to the
// more generic rule below it, so ties always resolve toward the
// generic end.
func resolveLayout(c Caps) Caps {
	switch {
	case layoutComplete(c):
		return c
	case isRawCaps(c) && c.Has("format"):
		format, _ := c.Get("format")
		out := NewCaps(c.Name()).With("format", format)
		if layout, ok := c.Get("layout"); ok {
			out = out.With("layout", layout)
		}
		return out
	case !c.IsEmpty():
		return NewCaps(c.Name())
	}
	return Caps{}
}

func isRawCaps(c Caps) bool {
	return c.Name() == "video/x-raw" || c.Name() == "audio/x-raw"
}

func layoutComplete(c Caps) bool {
	if c.IsEmpty() {
		return false
	}
	if !isRawCaps(c) {
		return true
	}
	if !c.Has("format") {
		return false
	}
	if c.Name() == "audio/x-raw" {
		return c.Has("rate") && c.Has("channels")
	}
	return c.Has("width") && c.Has("height")
}

// Prop is one element property in a launch segment.
type Prop struct {
	Name  string
	Value any
}

// formatSegment renders a factory name plus properties as launch text.
func formatSegment(factory string, props []Prop) string {
	var b strings.Builder
	b.WriteString(factory)
	for _, p := range props {
		b.WriteByte(' ')
		b.WriteString(p.Name)
		b.WriteByte('=')
		b.WriteString(formatPropValue(p.Value))
	}
	return b.String()
}

func formatPropValue(v any) string {
	switch x := v.(type) {
	case string:
		if strings.ContainsAny(x, " !,=") {
			return strconv.Quote(x)
		}
		return x
	case bool:
		if x {
			return "true"
		}
		return "false"
	case int:
		return strconv.Itoa(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case Fraction:
		return x.String()
	default:
		return fmt.Sprint(x)
	}
}

var sinkSeq atomic.Uint64

func nextSinkName() string {
	return fmt.Sprintf("appsink%d", sinkSeq.Add(1))
}

// Descriptor is a fully composed pipeline awaiting launch. Descriptors
// are consumed: Launch succeeds exactly once, so a launched graph can
// never be accidentally reused or extended.
type Descriptor struct {
	launch   string
	caps     Caps
	sinkName string
	consumed atomic.Bool
}

// String returns the serialized launch description.
func (d *Descriptor) String() string { return d.launch }

// Caps returns the shape caps at the descriptor's terminal.
func (d *Descriptor) Caps() Caps { return d.caps }

// SinkName returns the name of the descriptor's app sink element, or
// "" when the terminal is not an app sink.
func (d *Descriptor) SinkName() string { return d.sinkName }

// Launch hands the descriptor to the engine and returns the live
// pipeline. The descriptor is consumed even if the engine rejects it;
// a second call returns ErrDescriptorConsumed.
func (d *Descriptor) Launch(eng Engine) (*Pipeline, error) {
	if d.consumed.Swap(true) {
		return nil, ErrDescriptorConsumed
	}
	return launchPipeline(eng, d.launch, d.caps, d.sinkName)
}
