package compiler

import (
	"fmt"
	"strings"

	"github.com/rulelang/rulec/core/rule"
)

// Reference prefixes recognized in rule syntax.
const (
	prefixForeignCall   = "FC:"
	prefixTracker       = "TR:"
	prefixTrackerUpdate = "TRU:"
	prefixGlobalVar     = "GV:"
)

// extract normalizes a raw condition/effect string: bracket sub-expressions
// are lifted into a side table innermost-first, then every domain reference
// is replaced with a unique synthetic token and recorded as a component.
// The returned string contains no ambiguity between reference classes and
// plain identifiers.
func (c *compilation) extract(syntax string) (string, error) {
	s, err := c.extractBrackets(syntax)
	if err != nil {
		return "", err
	}
	return c.extractRefs(s)
}

// extractBrackets replaces every [...] sub-expression with a sub:<n> token.
// The last '[' is matched to the first ']' after it, so innermost brackets
// are processed first and an outer bracket's stored content already carries
// the tokens of its inner brackets.
func (c *compilation) extractBrackets(s string) (string, error) {
	for {
		open := strings.LastIndexByte(s, '[')
		if open == -1 {
			break
		}
		rel := strings.IndexByte(s[open:], ']')
		if rel == -1 {
			return "", syntaxErrorf("unbalanced '[' in expression %q", s)
		}
		tok := fmt.Sprintf("sub:%d", len(c.subExprs))
		c.subExprs[tok] = strings.TrimSpace(s[open+1 : open+rel])
		s = s[:open] + " " + tok + " " + s[open+rel+1:]
	}
	if strings.ContainsRune(s, ']') {
		return "", syntaxErrorf("unbalanced ']' in expression %q", s)
	}
	return s, nil
}

// extractRefs scans left to right for reference prefixes and substitutes
// synthetic component tokens. Extraction is order-preserving: components are
// registered in the order their references appear.
func (c *compilation) extractRefs(s string) (string, error) {
	var b strings.Builder
	i := 0
	for i < len(s) {
		// A prefix only starts a reference at an identifier boundary.
		if i > 0 && isIdentChar(s[i-1]) {
			b.WriteByte(s[i])
			i++
			continue
		}

		rest := s[i:]
		var (
			consumed int
			token    string
			err      error
		)
		switch {
		case strings.HasPrefix(rest, prefixTrackerUpdate):
			consumed, token, err = c.refTrackerUpdate(rest)
		case strings.HasPrefix(rest, prefixTracker):
			consumed, token, err = c.refTracker(rest)
		case strings.HasPrefix(rest, prefixForeignCall):
			consumed, token, err = c.refForeignCall(rest)
		case strings.HasPrefix(rest, prefixGlobalVar):
			consumed, token, err = c.refGlobalVar(rest)
		default:
			b.WriteByte(s[i])
			i++
			continue
		}
		if err != nil {
			return "", err
		}
		b.WriteString(" " + token + " ")
		i += consumed
	}
	return b.String(), nil
}

func (c *compilation) refForeignCall(rest string) (int, string, error) {
	name := leadingIdent(rest[len(prefixForeignCall):])
	if name == "" {
		return 0, "", syntaxErrorf("foreign call reference is missing a name")
	}
	n := len(prefixForeignCall) + len(name)

	argExpr := ""
	if n < len(rest) && rest[n] == '(' {
		end, err := matchParen(rest, n)
		if err != nil {
			return 0, "", err
		}
		argExpr = rest[n+1 : end]
		n = end + 1
	}

	fc, ok := c.foreignCalls[name]
	if !ok {
		return 0, "", unknownReferenceError("foreign call", name, c.foreignCallNames())
	}
	if referencesForeignCall(argExpr, name) {
		return 0, "", selfReferenceError(name)
	}

	comp := c.component(rule.ComponentForeignCall, name, func() *rule.Component {
		return &rule.Component{
			Kind:    rule.ComponentForeignCall,
			Name:    name,
			TIndex:  fc.ID,
			Flags:   rule.FlagForeignCall,
			ArgExpr: argExpr,
		}
	})
	return n, comp.Token, nil
}

func (c *compilation) refTracker(rest string) (int, string, error) {
	name := leadingIdent(rest[len(prefixTracker):])
	if name == "" {
		return 0, "", syntaxErrorf("tracker reference is missing a name")
	}
	n := len(prefixTracker) + len(name)

	tr, ok := c.trackers[name]
	if !ok {
		return 0, "", unknownReferenceError("tracker", name, c.trackerNames())
	}

	comp := c.component(rule.ComponentTracker, name, func() *rule.Component {
		return &rule.Component{
			Kind:      rule.ComponentTracker,
			Name:      name,
			TIndex:    tr.ID,
			Flags:     rule.FlagTrackerRef,
			ValueType: tr.Type,
		}
	})
	return n, comp.Token, nil
}

func (c *compilation) refTrackerUpdate(rest string) (int, string, error) {
	name := leadingIdent(rest[len(prefixTrackerUpdate):])
	if name == "" {
		return 0, "", syntaxErrorf("tracker update reference is missing a name")
	}
	n := len(prefixTrackerUpdate) + len(name)

	key := ""
	mapped := false
	if n < len(rest) && rest[n] == '(' {
		end, err := matchParen(rest, n)
		if err != nil {
			return 0, "", err
		}
		// The key may itself be a reference; resolve it now so lowering
		// sees a single resolvable token.
		normalized, err := c.extractRefs(strings.TrimSpace(rest[n+1 : end]))
		if err != nil {
			return 0, "", err
		}
		key = strings.TrimSpace(normalized)
		mapped = true
		n = end + 1
	}

	tr, ok := c.trackers[name]
	if !ok {
		return 0, "", unknownReferenceError("tracker", name, c.trackerNames())
	}
	if tr.Mapped && !mapped {
		return 0, "", syntaxErrorf("mapped tracker %q update requires a key", name)
	}

	// The "|" separator is the mapped-key signal consumed at lowering time.
	ref := name
	if mapped {
		ref = name + "|" + key
	}

	comp := c.component(rule.ComponentTrackerUpdate, ref, func() *rule.Component {
		return &rule.Component{
			Kind:      rule.ComponentTrackerUpdate,
			Name:      name,
			TIndex:    tr.ID,
			Flags:     rule.FlagTrackerRef,
			Ref:       ref,
			Mapped:    mapped,
			KeyExpr:   key,
			ValueType: tr.Type,
		}
	})
	return n, comp.Token, nil
}

func (c *compilation) refGlobalVar(rest string) (int, string, error) {
	name := leadingIdent(rest[len(prefixGlobalVar):])
	if name == "" {
		return 0, "", syntaxErrorf("global variable reference is missing a name")
	}
	n := len(prefixGlobalVar) + len(name)

	flag, ok := rule.GlobalVariables[name]
	if !ok {
		return 0, "", unknownReferenceError("global variable", name, globalVarNames())
	}

	comp := c.component(rule.ComponentGlobalVar, name, func() *rule.Component {
		return &rule.Component{
			Kind:   rule.ComponentGlobalVar,
			Name:   name,
			TIndex: 0,
			Flags:  flag,
		}
	})
	return n, comp.Token, nil
}

// component returns the component registered for (kind, key), creating it
// with a fresh synthetic token on first sight. Re-referencing the same
// component reuses its token, so extraction stays order-preserving without
// duplicating table entries.
func (c *compilation) component(kind rule.ComponentKind, key string, build func() *rule.Component) *rule.Component {
	mapKey := fmt.Sprintf("%d/%s", kind, key)
	if comp, ok := c.byKey[mapKey]; ok {
		return comp
	}

	comp := build()
	comp.Token = fmt.Sprintf("%s:%d", tokenPrefix(kind), len(c.comps))
	c.comps = append(c.comps, comp)
	c.byKey[mapKey] = comp
	c.byToken[comp.Token] = comp
	return comp
}

func tokenPrefix(kind rule.ComponentKind) string {
	switch kind {
	case rule.ComponentForeignCall:
		return "fc"
	case rule.ComponentTracker:
		return "tr"
	case rule.ComponentTrackerUpdate:
		return "tru"
	case rule.ComponentGlobalVar:
		return "gv"
	default:
		return "arg"
	}
}

// referencesForeignCall reports whether argExpr contains an FC: reference to
// exactly name. Both sides of the match are checked for identifier
// boundaries, so a call named with a longer identifier sharing the same
// prefix does not count.
func referencesForeignCall(argExpr, name string) bool {
	target := prefixForeignCall + name
	for i := 0; i+len(target) <= len(argExpr); i++ {
		if i > 0 && isIdentChar(argExpr[i-1]) {
			continue
		}
		if !strings.HasPrefix(argExpr[i:], target) {
			continue
		}
		rest := argExpr[i+len(target):]
		if rest == "" || !isIdentChar(rest[0]) {
			return true
		}
	}
	return false
}

// matchParen returns the index of the ')' balancing the '(' at open.
func matchParen(s string, open int) (int, error) {
	depth := 0
	for i := open; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return i, nil
			}
		}
	}
	return 0, syntaxErrorf("unbalanced '(' in reference %q", s)
}

func isIdentChar(ch byte) bool {
	return ch == '_' ||
		(ch >= 'a' && ch <= 'z') ||
		(ch >= 'A' && ch <= 'Z') ||
		(ch >= '0' && ch <= '9')
}

// leadingIdent returns the identifier at the start of s.
func leadingIdent(s string) string {
	i := 0
	for i < len(s) && isIdentChar(s[i]) {
		i++
	}
	return s[:i]
}

func (c *compilation) foreignCallNames() []string {
	names := make([]string, 0, len(c.foreignCalls))
	for name := range c.foreignCalls {
		names = append(names, name)
	}
	return names
}

func (c *compilation) trackerNames() []string {
	names := make([]string, 0, len(c.trackers))
	for name := range c.trackers {
		names = append(names, name)
	}
	return names
}

func globalVarNames() []string {
	names := make([]string, 0, len(rule.GlobalVariables))
	for name := range rule.GlobalVariables {
		names = append(names, name)
	}
	return names
}
