// Package compiler lowers human-readable policy rule syntax into the flat,
// stack-free instruction sets executed by the on-chain rule interpreter.
//
// A condition or effect string passes through four stages: reference
// extraction (FC:/TR:/TRU:/GV: and bracket sub-expressions become synthetic
// component tokens), expression tree building (AND/OR/NOT and parentheses
// become a nested tree), instruction lowering (a depth-first walk emits
// opcodes and memory-slot operands into an accumulator), and placeholder /
// raw-data building (runtime bindings and embedded literals are lifted into
// side tables).
//
// All compilation state is scoped to a single invocation; compiling rules of
// one policy, or several policies, concurrently is safe.
package compiler

import (
	"strings"

	"github.com/rulelang/rulec/core/rule"
)

// Arg is a declared argument of a rule's calling function.
type Arg struct {
	Name string         `json:"name"`
	Type rule.ValueType `json:"type"`
}

// CallingFunction describes the function a rule is attached to. Its argument
// names classify bare leaf tokens as function-argument placeholders.
type CallingFunction struct {
	Name string `json:"name"`
	Args []Arg  `json:"args"`
}

// ForeignCall maps a foreign-call name to its on-chain id.
type ForeignCall struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

// Tracker maps a tracker name to its on-chain id and declared value type.
type Tracker struct {
	Name   string         `json:"name"`
	ID     int            `json:"id"`
	Type   rule.ValueType `json:"type"`
	Mapped bool           `json:"mapped,omitempty"`
}

// Result is the complete output of one compilation: either all three parts
// are internally consistent or compilation failed - never a partial result.
type Result struct {
	Instructions []rule.Token
	Placeholders []rule.Placeholder
	Raw          *rule.RawData
}

// compilation threads all per-invocation state through the pipeline:
// component tables, bracket/group side tables, the operator delimiter list,
// and the lowering accumulator. Nothing here outlives a single compile, so
// independent compilations never contaminate each other.
type compilation struct {
	foreignCalls map[string]ForeignCall
	trackers     map[string]Tracker

	comps   []*rule.Component
	byKey   map[string]*rule.Component
	byToken map[string]*rule.Component

	subExprs   map[string]string // sub:<n> -> bracket content
	groups     map[string]string // grp:<n> -> parenthesized content
	groupCount int
	delims     []string // PLA ordinal -> original operator keyword

	// lowering accumulator
	instr        []rule.Token
	mem          []int
	iterator     int
	placeholders []rule.Placeholder
	pending      *pendingUpdate
}

// CompileCondition compiles a rule condition string against the resolved
// component tables.
func CompileCondition(syntax string, fn CallingFunction, fcs []ForeignCall, trs []Tracker) (*Result, error) {
	return compile(syntax, fn, fcs, trs, nil)
}

// CompileEffect compiles a single effect string. Effect compilation reuses
// the condition side's placeholder numbering context: seed is the condition
// result's placeholder list and already-present entries keep their ordinals.
func CompileEffect(syntax string, fn CallingFunction, fcs []ForeignCall, trs []Tracker, seed []rule.Placeholder) (*Result, error) {
	return compile(syntax, fn, fcs, trs, seed)
}

func compile(syntax string, fn CallingFunction, fcs []ForeignCall, trs []Tracker, seed []rule.Placeholder) (*Result, error) {
	c := newCompilation(fn, fcs, trs, seed)

	normalized, err := c.extract(syntax)
	if err != nil {
		return nil, err
	}

	tree, err := c.buildTree(normalized)
	if err != nil {
		return nil, err
	}

	if err := c.lower(tree); err != nil {
		return nil, err
	}
	c.restoreDelimiters()

	return &Result{
		Instructions: c.instr,
		Placeholders: c.placeholders,
		Raw:          buildRawData(c.instr),
	}, nil
}

func newCompilation(fn CallingFunction, fcs []ForeignCall, trs []Tracker, seed []rule.Placeholder) *compilation {
	c := &compilation{
		foreignCalls: make(map[string]ForeignCall, len(fcs)),
		trackers:     make(map[string]Tracker, len(trs)),
		byKey:        make(map[string]*rule.Component),
		byToken:      make(map[string]*rule.Component),
		subExprs:     make(map[string]string),
		groups:       make(map[string]string),
		placeholders: append([]rule.Placeholder(nil), seed...),
	}
	for _, fc := range fcs {
		c.foreignCalls[fc.Name] = fc
	}
	for _, tr := range trs {
		c.trackers[tr.Name] = tr
	}

	// Function arguments are matched verbatim by name, so their components
	// carry the bare name as token. TIndex is the argument position.
	for i, a := range fn.Args {
		comp := &rule.Component{
			Kind:   rule.ComponentFunctionArg,
			Name:   a.Name,
			Token:  a.Name,
			TIndex: i,
			Flags:  rule.FlagFunctionArg,
		}
		c.comps = append(c.comps, comp)
		c.byToken[a.Name] = comp
	}
	return c
}

// ForeignCallNames returns the foreign-call names referenced in a syntax
// string, first-seen order, de-duplicated. Used by policy assembly to
// resolve dependency order before compilation.
func ForeignCallNames(syntax string) []string {
	return scanNames(syntax, prefixForeignCall)
}

// TrackerNames returns the tracker names referenced in a syntax string,
// covering both TR: reads and TRU: updates.
func TrackerNames(syntax string) []string {
	names := scanNames(syntax, prefixTrackerUpdate)
	for _, n := range scanNames(syntax, prefixTracker) {
		if !contains(names, n) {
			names = append(names, n)
		}
	}
	return names
}

func scanNames(s, prefix string) []string {
	var names []string
	for i := 0; i+len(prefix) <= len(s); i++ {
		if i > 0 && isIdentChar(s[i-1]) {
			continue
		}
		if !strings.HasPrefix(s[i:], prefix) {
			continue
		}
		// TR: must not shadow TRU: occurrences.
		if prefix == prefixTracker && strings.HasPrefix(s[i:], prefixTrackerUpdate) {
			continue
		}
		name := leadingIdent(s[i+len(prefix):])
		if name != "" && !contains(names, name) {
			names = append(names, name)
		}
		i += len(prefix) + len(name) - 1
	}
	return names
}

func contains(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
