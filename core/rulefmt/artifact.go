package rulefmt

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"

	"github.com/fxamacker/cbor/v2"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/mod/semver"

	"github.com/rulelang/rulec/core/invariant"
	"github.com/rulelang/rulec/core/rule"
)

const (
	// Magic is the artifact file magic number (4 bytes).
	Magic = "RLBC"

	// Version is the artifact format version (uint16, little-endian).
	// Breaking changes increment major, additions increment minor.
	Version uint16 = 0x0001

	// CompilerVersion is stamped into artifacts. Readers reject artifacts
	// whose recorded compiler differs in semver major, since the opcode
	// contract may have moved.
	CompilerVersion = "v1.0.0"
)

// Expr is one compiled condition or effect in serialized form: the numeric
// instruction array (decimal uint256 strings for exact round-tripping), the
// positional placeholder list, and the raw-data side table.
type Expr struct {
	Instructions []string           `cbor:"1,keyasint"`
	Placeholders []rule.Placeholder `cbor:"2,keyasint"`
	RawIndex     []int              `cbor:"3,keyasint,omitempty"`
	RawValues    []string           `cbor:"4,keyasint,omitempty"`
	RawTypes     []string           `cbor:"5,keyasint,omitempty"`
}

// Rule is one compiled rule: a condition and its effects.
type Rule struct {
	Name      string `cbor:"1,keyasint"`
	Condition Expr   `cbor:"2,keyasint"`
	Effects   []Expr `cbor:"3,keyasint,omitempty"`
}

// Artifact is the persistable output of compiling a policy document.
type Artifact struct {
	Compiler string `cbor:"1,keyasint"`
	Policy   string `cbor:"2,keyasint,omitempty"`
	Rules    []Rule `cbor:"3,keyasint"`
}

// NewExpr serializes one compilation output. The instruction stream is
// numerically encoded here, so tokens that fell through the permissive
// literal path surface as errors before anything is persisted.
func NewExpr(instr []rule.Token, placeholders []rule.Placeholder, raw *rule.RawData) (Expr, error) {
	numeric, err := ToNumeric(instr)
	if err != nil {
		return Expr{}, err
	}

	e := Expr{
		Instructions: make([]string, len(numeric)),
		Placeholders: placeholders,
	}
	for i, v := range numeric {
		e.Instructions[i] = v.Dec()
	}
	if raw != nil {
		invariant.Invariant(len(raw.InstructionSetIndex) == len(raw.DataValues) &&
			len(raw.DataValues) == len(raw.ArgumentTypes),
			"raw-data arrays must be parallel")
		e.RawIndex = raw.InstructionSetIndex
		for i, v := range raw.DataValues {
			e.RawValues = append(e.RawValues, v.String())
			e.RawTypes = append(e.RawTypes, string(raw.ArgumentTypes[i]))
		}
	}
	return e, nil
}

// Write writes an artifact to w and returns the BLAKE2b-256 hash of the
// body. Layout: MAGIC(4) | VERSION(2, LE) | BODY_LEN(4, LE) | BODY(CBOR).
// Encoding is canonical CBOR, so equal artifacts hash equally.
func Write(w io.Writer, a *Artifact) ([32]byte, error) {
	invariant.NotNil(a, "artifact")
	if a.Compiler == "" {
		a.Compiler = CompilerVersion
	}

	opts, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		return [32]byte{}, fmt.Errorf("cbor encoder: %w", err)
	}
	body, err := opts.Marshal(a)
	if err != nil {
		return [32]byte{}, fmt.Errorf("encoding artifact body: %w", err)
	}
	if len(body) > math.MaxUint32 {
		return [32]byte{}, fmt.Errorf("artifact body %d bytes exceeds maximum", len(body))
	}

	var buf bytes.Buffer
	buf.WriteString(Magic)
	var preamble [6]byte
	binary.LittleEndian.PutUint16(preamble[0:2], Version)
	binary.LittleEndian.PutUint32(preamble[2:6], uint32(len(body)))
	buf.Write(preamble[:])
	buf.Write(body)

	if _, err := w.Write(buf.Bytes()); err != nil {
		return [32]byte{}, fmt.Errorf("writing artifact: %w", err)
	}
	return blake2b.Sum256(body), nil
}

// Read parses an artifact, verifying magic, format version, and compiler
// compatibility. It returns the artifact and the BLAKE2b-256 body hash.
func Read(r io.Reader) (*Artifact, [32]byte, error) {
	var header [10]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, [32]byte{}, fmt.Errorf("reading artifact header: %w", err)
	}
	if string(header[:4]) != Magic {
		return nil, [32]byte{}, fmt.Errorf("not a rule artifact: bad magic %q", header[:4])
	}
	if v := binary.LittleEndian.Uint16(header[4:6]); v != Version {
		return nil, [32]byte{}, fmt.Errorf("unsupported artifact format version 0x%04x (supported: 0x%04x)", v, Version)
	}

	bodyLen := binary.LittleEndian.Uint32(header[6:10])
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, [32]byte{}, fmt.Errorf("reading artifact body: %w", err)
	}

	var a Artifact
	if err := cbor.Unmarshal(body, &a); err != nil {
		return nil, [32]byte{}, fmt.Errorf("decoding artifact body: %w", err)
	}

	if !semver.IsValid(a.Compiler) {
		return nil, [32]byte{}, fmt.Errorf("artifact has invalid compiler version %q", a.Compiler)
	}
	if semver.Major(a.Compiler) != semver.Major(CompilerVersion) {
		return nil, [32]byte{}, fmt.Errorf("artifact compiled by %s is incompatible with compiler %s", a.Compiler, CompilerVersion)
	}

	return &a, blake2b.Sum256(body), nil
}
