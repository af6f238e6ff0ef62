package rule

import (
	"strconv"

	"github.com/holiman/uint256"
)

// Token is one entry of a compiled instruction set. The stream mixes three
// token kinds: opcode mnemonics, integer operands (memory slots, placeholder
// ordinals, tracker ids, flags), and literal values. Modeling the stream as
// a closed union keeps emission and consumption exhaustive instead of
// switching on an untyped array.
type Token interface {
	isToken()
	String() string
}

// Op is an opcode mnemonic ("N", "PLH", "PLHM", "TRU", "TRUM", comparison,
// arithmetic and logic symbols) or, transiently during lowering, a PLA<n>
// operator bookkeeping token.
type Op string

// Slot is an integer operand: a memory-slot index, a placeholder ordinal, a
// tracker id, or a trailer flag.
type Slot int

// Num is a literal numeric value, at most 256 bits unsigned. IsAddress marks
// values written as 0x-prefixed 20-byte addresses so raw-data extraction can
// type them.
type Num struct {
	Value     *uint256.Int
	IsAddress bool
	IsBool    bool
}

// Raw is an unresolved identifier that fell through the permissive literal
// path. It survives compilation but is rejected by the numeric encoder.
type Raw string

func (Op) isToken()   {}
func (Slot) isToken() {}
func (Num) isToken()  {}
func (Raw) isToken()  {}

func (o Op) String() string   { return string(o) }
func (s Slot) String() string { return strconv.Itoa(int(s)) }
func (r Raw) String() string  { return string(r) }

func (n Num) String() string {
	if n.Value == nil {
		return "0"
	}
	return n.Value.Dec()
}

// NewNum wraps a uint256 value as a literal token.
func NewNum(v *uint256.Int) Num { return Num{Value: v} }

// Type reports the inferred argument type of a literal token.
func (n Num) Type() ValueType {
	switch {
	case n.IsAddress:
		return TypeAddress
	case n.IsBool:
		return TypeBool
	default:
		return TypeUint256
	}
}
