// Package rule defines the shared data model of the rule compiler: the
// component table built from a rule's syntax string, the placeholder entries
// that bind runtime arguments positionally, and the tagged-union instruction
// token that makes up a compiled instruction set.
package rule

// ComponentKind classifies a domain reference found in a rule's syntax.
type ComponentKind uint8

const (
	ComponentFunctionArg   ComponentKind = iota // declared calling-function argument
	ComponentForeignCall                        // FC: external contract call result
	ComponentTracker                            // TR: tracker read
	ComponentTrackerUpdate                      // TRU: tracker write
	ComponentGlobalVar                          // GV: ambient execution context
)

// ValueType is the declared type of a tracker value, function argument, or
// extracted literal.
type ValueType string

const (
	TypeUint256 ValueType = "uint256"
	TypeAddress ValueType = "address"
	TypeBool    ValueType = "bool"
	TypeString  ValueType = "string"
	TypeBytes   ValueType = "bytes"
	TypeVoid    ValueType = "void"
)

// Placeholder flag bytes. The flag classifies the binding kind of a
// placeholder entry; values are part of the on-chain interpreter contract.
const (
	FlagFunctionArg    byte = 0x00 // function argument copy
	FlagForeignCall    byte = 0x01 // foreign-call result
	FlagTrackerRef     byte = 0x02 // tracker reference
	FlagMsgSender      byte = 0x04
	FlagBlockTimestamp byte = 0x08
	FlagMsgData        byte = 0x0c
	FlagBlockNumber    byte = 0x10
	FlagTxOrigin       byte = 0x14
)

// GlobalVariables is the fixed set of GV: names and their placeholder flags.
var GlobalVariables = map[string]byte{
	"MSG_SENDER":      FlagMsgSender,
	"BLOCK_TIMESTAMP": FlagBlockTimestamp,
	"MSG_DATA":        FlagMsgData,
	"BLOCK_NUMBER":    FlagBlockNumber,
	"TX_ORIGIN":       FlagTxOrigin,
}

// Component is a named domain reference extracted from a syntax string.
// Components are created once per compilation pass and are immutable during
// lowering.
type Component struct {
	Kind  ComponentKind
	Name  string // bare reference name (argument, foreign call, tracker, global)
	Token string // synthetic token substituted into the normalized syntax
	// TIndex disambiguates same-named placeholders: argument position for
	// function arguments, the on-chain id for foreign calls and trackers.
	TIndex int
	Flags  byte // placeholder category this component binds with

	// Tracker-update fields. Ref is the normalized update reference; a "|"
	// separates the tracker name from the key expression of a mapped update.
	Ref     string
	Mapped  bool
	KeyExpr string

	// ArgExpr is the raw argument text of a foreign-call reference, kept for
	// self-reference detection.
	ArgExpr string

	// ValueType is the declared value type of a tracker, used to pick the
	// TRU/TRUM value-kind flag at emission time.
	ValueType ValueType
}

// Placeholder describes one runtime binding slot. Instruction operands
// reference placeholders by ordinal position within the list, so ordering
// and stable de-duplication are significant.
type Placeholder struct {
	TypeSpecificIndex int  `json:"typeSpecificIndex" cbor:"1,keyasint"`
	Flags             byte `json:"flags" cbor:"2,keyasint"`
}

// RawData lifts embedded literal values out of an instruction stream.
// InstructionSetIndex entries are strictly increasing positions into the
// original instruction array so the two representations recombine
// unambiguously.
type RawData struct {
	InstructionSetIndex []int
	DataValues          []Token
	ArgumentTypes       []ValueType
}
