// Package policy loads JSON policy documents and compiles every rule in
// them into a rulefmt artifact. It is interface-boundary scaffolding around
// the compiler core: no schema validation, chain interaction, or ABI
// encoding happens here.
package policy

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rulelang/rulec/compiler"
	"github.com/rulelang/rulec/core/rulefmt"
)

// Rule is one rule of a policy document: a condition, its effect strings,
// and the resolved component tables the compiler consumes.
type Rule struct {
	Name            string                   `json:"name"`
	Condition       string                   `json:"condition"`
	Effects         []string                 `json:"effects,omitempty"`
	CallingFunction compiler.CallingFunction `json:"callingFunction"`
	ForeignCalls    []compiler.ForeignCall   `json:"foreignCalls,omitempty"`
	Trackers        []compiler.Tracker       `json:"trackers,omitempty"`
}

// Document is a policy: a named set of independently compiled rules.
type Document struct {
	Name  string `json:"name"`
	Rules []Rule `json:"rules"`
}

// Load reads and unmarshals a policy document from path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading policy document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parsing policy document %s: %w", path, err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("policy document %s contains no rules", path)
	}
	return &doc, nil
}

// Compile compiles every rule of the document. Rules compile independently
// and share no state; any rule failing aborts the whole document so an
// artifact is never partial.
func (d *Document) Compile() (*rulefmt.Artifact, error) {
	artifact := &rulefmt.Artifact{
		Compiler: rulefmt.CompilerVersion,
		Policy:   d.Name,
	}

	for _, r := range d.Rules {
		compiled, err := compileRule(r)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", r.Name, err)
		}
		artifact.Rules = append(artifact.Rules, compiled)
	}
	return artifact, nil
}

func compileRule(r Rule) (rulefmt.Rule, error) {
	cond, err := compiler.CompileCondition(r.Condition, r.CallingFunction, r.ForeignCalls, r.Trackers)
	if err != nil {
		return rulefmt.Rule{}, fmt.Errorf("condition: %w", err)
	}
	condExpr, err := rulefmt.NewExpr(cond.Instructions, cond.Placeholders, cond.Raw)
	if err != nil {
		return rulefmt.Rule{}, fmt.Errorf("condition: %w", err)
	}

	out := rulefmt.Rule{Name: r.Name, Condition: condExpr}

	// Effects reuse the condition's placeholder numbering context.
	seed := cond.Placeholders
	for i, effect := range r.Effects {
		res, err := compiler.CompileEffect(effect, r.CallingFunction, r.ForeignCalls, r.Trackers, seed)
		if err != nil {
			return rulefmt.Rule{}, fmt.Errorf("effect %d: %w", i, err)
		}
		expr, err := rulefmt.NewExpr(res.Instructions, res.Placeholders, res.Raw)
		if err != nil {
			return rulefmt.Rule{}, fmt.Errorf("effect %d: %w", i, err)
		}
		out.Effects = append(out.Effects, expr)
		seed = res.Placeholders
	}
	return out, nil
}

// Dependency lists the on-chain components a rule references, used to
// resolve deployment order before compilation.
type Dependency struct {
	Rule         string   `json:"rule"`
	ForeignCalls []string `json:"foreignCalls,omitempty"`
	Trackers     []string `json:"trackers,omitempty"`
}

// Dependencies extracts the referenced foreign-call and tracker names per
// rule, scanning conditions and effects without compiling them.
func (d *Document) Dependencies() []Dependency {
	deps := make([]Dependency, 0, len(d.Rules))
	for _, r := range d.Rules {
		dep := Dependency{Rule: r.Name}
		texts := append([]string{r.Condition}, r.Effects...)
		for _, text := range texts {
			for _, name := range compiler.ForeignCallNames(text) {
				if !containsName(dep.ForeignCalls, name) {
					dep.ForeignCalls = append(dep.ForeignCalls, name)
				}
			}
			for _, name := range compiler.TrackerNames(text) {
				if !containsName(dep.Trackers, name) {
					dep.Trackers = append(dep.Trackers, name)
				}
			}
		}
		deps = append(deps, dep)
	}
	return deps
}

func containsName(names []string, name string) bool {
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}
