// Package rulefmt defines the serialized form of compiled rules: the frozen
// opcode numbering contract shared with the on-chain interpreter, the
// numeric instruction encoding, and the binary artifact container.
package rulefmt

import (
	"fmt"

	"github.com/holiman/uint256"

	"github.com/rulelang/rulec/core/rule"
)

// Opcodes maps instruction mnemonics to their numeric encoding. This table
// is a versioned contract with the on-chain interpreter: entries must not be
// renumbered without a corresponding interpreter version bump.
var Opcodes = map[string]uint16{
	"N":    0,
	"+":    1,
	"-":    2,
	"*":    3,
	"/":    4,
	"<":    5,
	">":    6,
	"==":   7,
	"AND":  8,
	"OR":   9,
	"NOT":  10,
	"PLH":  11,
	"TRU":  12,
	">=":   13,
	"<=":   14,
	"!=":   15,
	"PLHM": 16,
	"%":    17,
	"TRUM": 18,
}

// MapMnemonics replaces every opcode mnemonic in the token stream with its
// numeric encoding, leaving all other tokens untouched. Applying it to an
// already-mapped stream changes nothing: slot indices and literals pass
// through unchanged.
func MapMnemonics(tokens []rule.Token) []rule.Token {
	out := make([]rule.Token, len(tokens))
	for i, t := range tokens {
		if op, ok := t.(rule.Op); ok {
			if code, known := Opcodes[string(op)]; known {
				out[i] = rule.Slot(int(code))
				continue
			}
		}
		out[i] = t
	}
	return out
}

// ToNumeric encodes a finished instruction stream as the flat numeric array
// the on-chain interpreter consumes. Unknown mnemonics and raw tokens that
// fell through the compiler's permissive literal path are hard validation
// errors here, not silent pass-throughs.
func ToNumeric(tokens []rule.Token) ([]*uint256.Int, error) {
	out := make([]*uint256.Int, len(tokens))
	for i, t := range tokens {
		switch v := t.(type) {
		case rule.Op:
			code, known := Opcodes[string(v)]
			if !known {
				return nil, fmt.Errorf("unknown instruction mnemonic %q at position %d", v, i)
			}
			out[i] = uint256.NewInt(uint64(code))
		case rule.Slot:
			if v < 0 {
				return nil, fmt.Errorf("negative operand %d at position %d", v, i)
			}
			out[i] = uint256.NewInt(uint64(v))
		case rule.Num:
			out[i] = v.Value
		case rule.Raw:
			return nil, fmt.Errorf("unresolved token %q at position %d: not a known component, operator, or literal", v, i)
		default:
			return nil, fmt.Errorf("unsupported token %T at position %d", t, i)
		}
	}
	return out, nil
}
