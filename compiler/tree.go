package compiler

import (
	"fmt"
	"strconv"
	"strings"
)

// exprNode is the intermediate tree produced by the expression tree builder.
// A node is either a leaf token or a nested expression list. Binary operator
// nodes have the shape {operator, left, right}; NOT nodes are unary:
// {operator, operand}.
type exprNode interface {
	expr()
}

type leaf string

type expr []exprNode

func (leaf) expr() {}
func (expr) expr() {}

// buildTree converts a normalized (reference-extracted) string with AND/OR/
// NOT connectives and explicit parentheses into an expression tree.
//
// Operator keywords are first replaced with positional PLA<n> tokens recorded
// in the compilation's delimiter list, so operator text can never be confused
// with operand text during splitting and the Nth token always maps back to
// the Nth operator occurrence left to right. Parenthesized groups are then
// lifted innermost-first into a side table and re-substituted depth-first
// while splitting.
func (c *compilation) buildTree(s string) (exprNode, error) {
	s = c.replaceOperators(s)
	s, err := c.extractGroups(s)
	if err != nil {
		return nil, err
	}
	return c.splitExpr(s)
}

// replaceOperators substitutes every AND/OR/NOT keyword with a PLA<n>
// bookkeeping token, appending the original keyword to the delimiter list.
func (c *compilation) replaceOperators(s string) string {
	fields := strings.Fields(padParens(s))
	for i, f := range fields {
		switch f {
		case "AND", "OR", "NOT":
			fields[i] = fmt.Sprintf("PLA%d", len(c.delims))
			c.delims = append(c.delims, f)
		}
	}
	return strings.Join(fields, " ")
}

// extractGroups replaces every parenthesized group with a grp:<n> token.
// The last unmatched '(' is resolved first (rightmost-innermost), so a
// stored group's content already carries the tokens of its inner groups and
// re-substitution during splitting resolves depth-first.
func (c *compilation) extractGroups(s string) (string, error) {
	for {
		open := strings.LastIndexByte(s, '(')
		if open == -1 {
			break
		}
		rel := strings.IndexByte(s[open:], ')')
		if rel == -1 {
			return "", syntaxErrorf("unbalanced '(' in expression %q", s)
		}
		tok := fmt.Sprintf("grp:%d", c.groupCount)
		c.groupCount++
		c.groups[tok] = strings.TrimSpace(s[open+1 : open+rel])
		s = s[:open] + " " + tok + " " + s[open+rel+1:]
	}
	if strings.ContainsRune(s, ')') {
		return "", syntaxErrorf("unbalanced ')' in expression %q", s)
	}
	return s, nil
}

// splitExpr splits a placeholder-normalized string on its PLA delimiters and
// folds the segments into {operator, left, right} nodes left to right. NOT
// delimiters produce unary nodes wrapping the operand to their right.
func (c *compilation) splitExpr(s string) (exprNode, error) {
	fields := strings.Fields(s)

	var (
		operands []exprNode
		delims   []int // delimiter ordinals, in order of appearance
		segment  []string
	)
	flush := func() error {
		op, err := c.resolveSegment(segment)
		if err != nil {
			return err
		}
		operands = append(operands, op)
		segment = nil
		return nil
	}
	for _, f := range fields {
		if n, ok := plaOrdinal(f); ok && n < len(c.delims) {
			if err := flush(); err != nil {
				return nil, err
			}
			delims = append(delims, n)
			continue
		}
		segment = append(segment, f)
	}
	if err := flush(); err != nil {
		return nil, err
	}

	// Wrap NOT operands right to left so a NOT directly to the right of a
	// binary operator binds before the binary fold below.
	for i := len(delims) - 1; i >= 0; i-- {
		n := delims[i]
		if c.delims[n] != "NOT" {
			continue
		}
		if operands[i+1] == nil {
			return nil, syntaxErrorf("NOT is missing its operand")
		}
		if operands[i] != nil {
			return nil, syntaxErrorf("unexpected operand before NOT")
		}
		operands[i] = expr{leaf(plaToken(n)), operands[i+1]}
		operands = append(operands[:i+1], operands[i+2:]...)
		delims = append(delims[:i], delims[i+1:]...)
	}

	if operands[0] == nil && len(delims) == 0 {
		return nil, syntaxErrorf("empty expression")
	}

	// Left-to-right fold: no operator precedence, evaluation order follows
	// source order unless parenthesized.
	acc := operands[0]
	for i, n := range delims {
		right := operands[i+1]
		if acc == nil || right == nil {
			return nil, syntaxErrorf("operator %s is missing an operand", c.delims[n])
		}
		acc = expr{leaf(plaToken(n)), acc, right}
	}
	return acc, nil
}

// resolveSegment turns the fields between two delimiters into an expression
// node, re-substituting grp:<n> and sub:<n> tokens back into their stored
// content. Returns nil for an empty segment (the left side of a NOT).
func (c *compilation) resolveSegment(segment []string) (exprNode, error) {
	if len(segment) == 0 {
		return nil, nil
	}
	items := make(expr, 0, len(segment))
	for _, f := range segment {
		switch {
		case strings.HasPrefix(f, "grp:"):
			content, ok := c.groups[f]
			if !ok {
				return nil, syntaxErrorf("unknown group token %q", f)
			}
			node, err := c.splitExpr(content)
			if err != nil {
				return nil, err
			}
			items = append(items, node)
		case strings.HasPrefix(f, "sub:"):
			content, ok := c.subExprs[f]
			if !ok {
				return nil, syntaxErrorf("unknown sub-expression token %q", f)
			}
			// A bracket sub-expression is its own mini-expression: references
			// nested inside it are resolved here, not at the outer level.
			normalized, err := c.extractRefs(content)
			if err != nil {
				return nil, err
			}
			node, err := c.buildTree(normalized)
			if err != nil {
				return nil, err
			}
			items = append(items, node)
		default:
			items = append(items, leaf(f))
		}
	}
	if len(items) == 1 {
		return items[0], nil
	}
	return items, nil
}

// plaOrdinal reports whether tok is a PLA<n> bookkeeping token.
func plaOrdinal(tok string) (int, bool) {
	if !strings.HasPrefix(tok, "PLA") {
		return 0, false
	}
	n, err := strconv.Atoi(tok[3:])
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}

func plaToken(n int) string {
	return fmt.Sprintf("PLA%d", n)
}

// padParens spaces out parentheses so they split into their own fields.
func padParens(s string) string {
	s = strings.ReplaceAll(s, "(", " ( ")
	return strings.ReplaceAll(s, ")", " ) ")
}
