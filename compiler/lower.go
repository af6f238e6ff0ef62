package compiler

import (
	"math/big"

	"github.com/holiman/uint256"

	"github.com/rulelang/rulec/core/invariant"
	"github.com/rulelang/rulec/core/rule"
)

// opKind classifies operator tokens during lowering.
type opKind uint8

const (
	opBinary opKind = iota // comparison, arithmetic, AND/OR
	opNot                  // unary negation
	opMutate               // tracker mutation: += -= */= =
)

// pendingUpdate remembers the most recently lowered tracker operand so a
// following mutation operator can emit its TRU/TRUM trailer. Call-scoped on
// the compilation, never shared across invocations.
type pendingUpdate struct {
	trackerID int
	mapped    bool
	keySlot   int
	valueType rule.ValueType
}

// lower walks the expression tree depth-first, emitting into the
// compilation's instruction accumulator.
func (c *compilation) lower(tree exprNode) error {
	switch n := tree.(type) {
	case leaf:
		return c.lowerList(expr{n})
	case expr:
		return c.lowerList(n)
	}
	return syntaxErrorf("empty expression")
}

// lowerList dispatches on the head of the current expression list.
func (c *compilation) lowerList(items expr) error {
	if len(items) == 0 {
		return nil
	}

	switch head := items[0].(type) {
	case expr:
		// A nested list is a parenthesized sub-group: lower it first so its
		// result slot is available to the remainder.
		if err := c.lowerList(head); err != nil {
			return err
		}
		return c.lowerList(items[1:])

	case leaf:
		tok := string(head)

		if comp, ok := c.byToken[tok]; ok {
			if err := c.emitComponent(comp); err != nil {
				return err
			}
			return c.lowerList(items[1:])
		}

		if kind, ok := c.operatorKind(tok); ok {
			// Post-order: operands before the operator.
			if err := c.lowerList(items[1:]); err != nil {
				return err
			}
			return c.emitOperator(tok, kind)
		}

		// Neither component nor operator: permissively lower as a literal
		// so forward references surface downstream instead of aborting the
		// walk. Numeric range violations are still hard errors.
		if err := c.emitLiteral(tok); err != nil {
			return err
		}
		return c.lowerList(items[1:])
	}
	return nil
}

// operatorKind resolves an operator mnemonic or PLA<n> bookkeeping token.
func (c *compilation) operatorKind(tok string) (opKind, bool) {
	if n, ok := plaOrdinal(tok); ok && n < len(c.delims) {
		if c.delims[n] == "NOT" {
			return opNot, true
		}
		return opBinary, true
	}
	switch tok {
	case "+", "-", "*", "/", "%", "<", ">", ">=", "<=", "==", "!=":
		return opBinary, true
	case "+=", "-=", "*=", "/=", "=":
		return opMutate, true
	}
	return 0, false
}

func (c *compilation) emitComponent(comp *rule.Component) error {
	switch comp.Kind {
	case rule.ComponentForeignCall:
		// Foreign calls have a single placeholder slot; no flag
		// disambiguation needed.
		ord := c.placeholderOrdinal(rule.Placeholder{TypeSpecificIndex: comp.TIndex, Flags: rule.FlagForeignCall})
		c.emit(rule.Op("PLH"), rule.Slot(ord))
		c.pushResult()

	case rule.ComponentFunctionArg, rule.ComponentGlobalVar:
		ord := c.placeholderOrdinal(rule.Placeholder{TypeSpecificIndex: comp.TIndex, Flags: comp.Flags})
		c.emit(rule.Op("PLH"), rule.Slot(ord))
		c.pushResult()

	case rule.ComponentTracker:
		ord := c.placeholderOrdinal(rule.Placeholder{TypeSpecificIndex: comp.TIndex, Flags: rule.FlagTrackerRef})
		c.emit(rule.Op("PLH"), rule.Slot(ord))
		c.pushResult()
		// A tracker read followed by a mutation operator is an update.
		c.pending = &pendingUpdate{trackerID: comp.TIndex, valueType: comp.ValueType}

	case rule.ComponentTrackerUpdate:
		if comp.Mapped {
			// The key lowers first, so its placeholder must also bind
			// first: ordinal allocation follows emission order.
			keySlot, err := c.lowerKey(comp.KeyExpr)
			if err != nil {
				return err
			}
			ord := c.placeholderOrdinal(rule.Placeholder{TypeSpecificIndex: comp.TIndex, Flags: rule.FlagTrackerRef})
			c.emit(rule.Op("PLHM"), rule.Slot(ord), rule.Slot(keySlot))
			c.pushResult()
			c.pending = &pendingUpdate{
				trackerID: comp.TIndex,
				mapped:    true,
				keySlot:   keySlot,
				valueType: comp.ValueType,
			}
		} else {
			ord := c.placeholderOrdinal(rule.Placeholder{TypeSpecificIndex: comp.TIndex, Flags: rule.FlagTrackerRef})
			c.emit(rule.Op("PLH"), rule.Slot(ord))
			c.pushResult()
			c.pending = &pendingUpdate{trackerID: comp.TIndex, valueType: comp.ValueType}
		}
	}
	return nil
}

// lowerKey lowers a mapped tracker update's key expression and returns its
// slot. The key slot is consumed by the PLHM emission rather than left for
// operator consumption.
func (c *compilation) lowerKey(key string) (int, error) {
	if key == "" {
		return 0, syntaxErrorf("mapped tracker update has an empty key")
	}
	if comp, ok := c.byToken[key]; ok {
		if err := c.emitComponent(comp); err != nil {
			return 0, err
		}
	} else if err := c.emitLiteral(key); err != nil {
		return 0, err
	}
	return c.popSlot(), nil
}

func (c *compilation) emitOperator(tok string, kind opKind) error {
	switch kind {
	case opNot:
		if len(c.mem) < 1 {
			return syntaxErrorf("NOT is missing its operand")
		}
		operand := c.popSlot()
		c.emit(rule.Op(tok), rule.Slot(operand))
		c.pushResult()

	case opBinary:
		if len(c.mem) < 2 {
			return syntaxErrorf("operator %q requires two operands", c.operatorName(tok))
		}
		left, right := c.popSlots()
		c.emit(rule.Op(tok), rule.Slot(left), rule.Slot(right))
		c.pushResult()

	case opMutate:
		pu := c.pending
		if pu == nil {
			return syntaxErrorf("tracker assignment %q without a tracker operand", tok)
		}
		c.pending = nil

		var dest int
		if tok == "=" {
			// Plain assignment: no arithmetic opcode, the destination is
			// the right-hand side's slot.
			if len(c.mem) < 2 {
				return syntaxErrorf("assignment requires a value")
			}
			_, dest = c.popSlots()
			c.mem = append(c.mem, dest)
		} else {
			if len(c.mem) < 2 {
				return syntaxErrorf("operator %q requires two operands", tok)
			}
			left, right := c.popSlots()
			c.emit(rule.Op(tok[:1]), rule.Slot(left), rule.Slot(right))
			c.pushResult()
			dest = c.iterator - 1
		}

		flag := valueKindFlag(pu.valueType)
		if pu.mapped {
			c.emit(rule.Op("TRUM"), rule.Slot(pu.trackerID), rule.Slot(dest), rule.Slot(pu.keySlot), rule.Slot(flag))
		} else {
			c.emit(rule.Op("TRU"), rule.Slot(pu.trackerID), rule.Slot(dest), rule.Slot(flag))
		}
	}
	return nil
}

func (c *compilation) emitLiteral(tok string) error {
	lit, err := parseLiteral(tok)
	if err != nil {
		return err
	}
	c.emit(rule.Op("N"), lit)
	c.pushResult()
	return nil
}

// parseLiteral parses a leaf token as a literal value. Decimal and hex
// literals must fit an unsigned 256-bit integer; anything else falls through
// as a raw token for downstream validation.
func parseLiteral(tok string) (rule.Token, error) {
	switch tok {
	case "true":
		return rule.Num{Value: uint256.NewInt(1), IsBool: true}, nil
	case "false":
		return rule.Num{Value: uint256.NewInt(0), IsBool: true}, nil
	}

	if isDecimal(tok) {
		v, err := uint256.FromDecimal(tok)
		if err != nil {
			return nil, numericRangeError(tok)
		}
		return rule.NewNum(v), nil
	}

	if isHex(tok) {
		// Parse through big.Int: leading zeros are legitimate in addresses.
		b, ok := new(big.Int).SetString(tok[2:], 16)
		if !ok {
			return rule.Raw(tok), nil
		}
		v, overflow := uint256.FromBig(b)
		if overflow {
			return nil, numericRangeError(tok)
		}
		return rule.Num{Value: v, IsAddress: len(tok) == 42}, nil
	}

	return rule.Raw(tok), nil
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func isHex(s string) bool {
	if len(s) < 3 || s[0] != '0' || (s[1] != 'x' && s[1] != 'X') {
		return false
	}
	for i := 2; i < len(s); i++ {
		ch := s[i]
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') && (ch < 'A' || ch > 'F') {
			return false
		}
	}
	return true
}

// valueKindFlag picks the TRU/TRUM trailer flag from a tracker's declared
// value type: 0 = numeric memory tracker, 1 = string/bytes placeholder
// tracker, 4 = type not found (treated as void).
func valueKindFlag(t rule.ValueType) int {
	switch t {
	case rule.TypeString, rule.TypeBytes:
		return 1
	case rule.TypeUint256, rule.TypeAddress, rule.TypeBool:
		return 0
	default:
		return 4
	}
}

func (c *compilation) emit(tokens ...rule.Token) {
	c.instr = append(c.instr, tokens...)
}

// pushResult records the slot written by the instruction just emitted and
// advances the slot counter.
func (c *compilation) pushResult() {
	c.mem = append(c.mem, c.iterator)
	c.iterator++
}

func (c *compilation) popSlot() int {
	invariant.Precondition(len(c.mem) >= 1, "slot stack must not be empty")
	slot := c.mem[len(c.mem)-1]
	c.mem = c.mem[:len(c.mem)-1]
	return slot
}

// popSlots removes the last two slots, returning them in emission order.
func (c *compilation) popSlots() (int, int) {
	invariant.Precondition(len(c.mem) >= 2, "binary operator needs two slots")
	left := c.mem[len(c.mem)-2]
	right := c.mem[len(c.mem)-1]
	c.mem = c.mem[:len(c.mem)-2]
	return left, right
}

// operatorName maps a PLA bookkeeping token back to its keyword for error
// messages; other operators name themselves.
func (c *compilation) operatorName(tok string) string {
	if n, ok := plaOrdinal(tok); ok && n < len(c.delims) {
		return c.delims[n]
	}
	return tok
}

// restoreDelimiters replaces residual PLA<n> tokens in the instruction
// stream with the original operator keyword, looked up by ordinal from the
// delimiter list recorded during tree building.
func (c *compilation) restoreDelimiters() {
	for i, t := range c.instr {
		op, ok := t.(rule.Op)
		if !ok {
			continue
		}
		if n, ok := plaOrdinal(string(op)); ok {
			invariant.Invariant(n < len(c.delims), "delimiter %d out of range", n)
			c.instr[i] = rule.Op(c.delims[n])
		}
	}
}
