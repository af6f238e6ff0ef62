package rulefmt

import (
	"bytes"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"

	"github.com/rulelang/rulec/core/rule"
)

func sampleArtifact() *Artifact {
	return &Artifact{
		Compiler: CompilerVersion,
		Policy:   "transfer-limits",
		Rules: []Rule{
			{
				Name: "max-transfer",
				Condition: Expr{
					Instructions: []string{"11", "0", "0", "500", "6", "0", "1"},
					Placeholders: []rule.Placeholder{{TypeSpecificIndex: 0, Flags: rule.FlagFunctionArg}},
					RawIndex:     []int{3},
					RawValues:    []string{"500"},
					RawTypes:     []string{"uint256"},
				},
			},
		},
	}
}

func TestNewExpr(t *testing.T) {
	instr := []rule.Token{
		rule.Op("PLH"), rule.Slot(0),
		rule.Op("N"), rule.NewNum(uint256.NewInt(500)),
		rule.Op(">"), rule.Slot(0), rule.Slot(1),
	}
	raw := &rule.RawData{
		InstructionSetIndex: []int{3},
		DataValues:          []rule.Token{rule.NewNum(uint256.NewInt(500))},
		ArgumentTypes:       []rule.ValueType{rule.TypeUint256},
	}

	expr, err := NewExpr(instr, []rule.Placeholder{{TypeSpecificIndex: 0}}, raw)
	require.NoError(t, err)

	require.Equal(t, []string{"11", "0", "0", "500", "6", "0", "1"}, expr.Instructions)
	require.Equal(t, []int{3}, expr.RawIndex)
	require.Equal(t, []string{"500"}, expr.RawValues)
	require.Equal(t, []string{"uint256"}, expr.RawTypes)
}

func TestNewExprRejectsUnresolvedTokens(t *testing.T) {
	_, err := NewExpr([]rule.Token{rule.Op("N"), rule.Raw("mystery")}, nil, nil)
	require.Error(t, err)
}

func TestArtifactRoundTrip(t *testing.T) {
	a := sampleArtifact()

	var buf bytes.Buffer
	writeDigest, err := Write(&buf, a)
	require.NoError(t, err)

	got, readDigest, err := Read(&buf)
	require.NoError(t, err)

	require.Equal(t, writeDigest, readDigest)
	if diff := cmp.Diff(a, got); diff != "" {
		t.Errorf("artifact mismatch (-want +got):\n%s", diff)
	}
}

// TestArtifactDigestStable verifies canonical encoding: equal artifacts
// serialize to equal bytes and therefore equal digests.
func TestArtifactDigestStable(t *testing.T) {
	var first, second bytes.Buffer

	d1, err := Write(&first, sampleArtifact())
	require.NoError(t, err)
	d2, err := Write(&second, sampleArtifact())
	require.NoError(t, err)

	require.Equal(t, d1, d2)
	require.Equal(t, first.Bytes(), second.Bytes())
}

func TestReadRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, sampleArtifact())
	require.NoError(t, err)

	data := buf.Bytes()
	data[0] = 'X'

	_, _, err = Read(bytes.NewReader(data))
	require.Error(t, err)
	require.Contains(t, err.Error(), "bad magic")
}

func TestReadRejectsUnsupportedVersion(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, sampleArtifact())
	require.NoError(t, err)

	data := buf.Bytes()
	data[4] = 0xFF // format version, little-endian low byte

	_, _, err = Read(bytes.NewReader(data))
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported artifact format version")
}

func TestReadRejectsIncompatibleCompilerMajor(t *testing.T) {
	a := sampleArtifact()
	a.Compiler = "v2.0.0"

	var buf bytes.Buffer
	_, err := Write(&buf, a)
	require.NoError(t, err)

	_, _, err = Read(&buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "incompatible")
}

func TestReadRejectsInvalidCompilerVersion(t *testing.T) {
	a := sampleArtifact()
	a.Compiler = "not-semver"

	var buf bytes.Buffer
	_, err := Write(&buf, a)
	require.NoError(t, err)

	_, _, err = Read(&buf)
	require.Error(t, err)
	require.Contains(t, err.Error(), "invalid compiler version")
}

func TestReadTruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	_, err := Write(&buf, sampleArtifact())
	require.NoError(t, err)

	data := buf.Bytes()
	_, _, err = Read(bytes.NewReader(data[:len(data)-4]))
	require.Error(t, err)
}
