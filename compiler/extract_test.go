package compiler

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/rulelang/rulec/core/rule"
)

func TestExtractBracketsNested(t *testing.T) {
	c := newTestCompilation()

	s, err := c.extractBrackets("[[1 + 2] * 3] > 5")
	require.NoError(t, err)

	require.Equal(t, []string{"sub:1", ">", "5"}, strings.Fields(s))
	require.Equal(t, []string{"1", "+", "2"}, strings.Fields(c.subExprs["sub:0"]))
	require.Equal(t, []string{"sub:0", "*", "3"}, strings.Fields(c.subExprs["sub:1"]))
}

func TestExtractRefs(t *testing.T) {
	fcs := []ForeignCall{{Name: "getRisk", ID: 5}}
	trs := []Tracker{{Name: "counter", ID: 7, Type: rule.TypeUint256}}
	c := newCompilation(CallingFunction{}, fcs, trs, nil)

	s, err := c.extractRefs("TR:counter > 5 AND FC:getRisk(addr) == GV:MSG_SENDER")
	require.NoError(t, err)

	require.Equal(t,
		[]string{"tr:0", ">", "5", "AND", "fc:1", "==", "gv:2"},
		strings.Fields(s))

	require.Len(t, c.comps, 3)
	require.Equal(t, rule.ComponentTracker, c.comps[0].Kind)
	require.Equal(t, 7, c.comps[0].TIndex)
	require.Equal(t, rule.ComponentForeignCall, c.comps[1].Kind)
	require.Equal(t, "addr", c.comps[1].ArgExpr)
	require.Equal(t, rule.ComponentGlobalVar, c.comps[2].Kind)
	require.Equal(t, rule.FlagMsgSender, c.comps[2].Flags)
}

func TestExtractRefsReusesComponentToken(t *testing.T) {
	trs := []Tracker{{Name: "counter", ID: 7, Type: rule.TypeUint256}}
	c := newCompilation(CallingFunction{}, nil, trs, nil)

	s, err := c.extractRefs("TR:counter > 0 AND TR:counter < 10")
	require.NoError(t, err)

	require.Equal(t, []string{"tr:0", ">", "0", "AND", "tr:0", "<", "10"}, strings.Fields(s))
	require.Len(t, c.comps, 1)
}

func TestExtractRefsIdentifierBoundary(t *testing.T) {
	// A prefix embedded in a longer identifier is not a reference.
	c := newTestCompilation()

	s, err := c.extractRefs("XTR:counter > 5")
	require.NoError(t, err)
	require.Equal(t, "XTR:counter > 5", s)
	require.Empty(t, c.comps)
}

func TestExtractMappedUpdateNormalizesKey(t *testing.T) {
	trs := []Tracker{{Name: "balances", ID: 3, Type: rule.TypeUint256, Mapped: true}}
	c := newCompilation(CallingFunction{}, nil, trs, nil)

	s, err := c.extractRefs("TRU:balances(GV:MSG_SENDER) += 1")
	require.NoError(t, err)

	// The key reference resolves first, so the update component carries the
	// key's synthetic token.
	require.Equal(t, []string{"tru:1", "+=", "1"}, strings.Fields(s))

	comp := c.byToken["tru:1"]
	require.NotNil(t, comp)
	require.True(t, comp.Mapped)
	require.Equal(t, "gv:0", comp.KeyExpr)
	require.Equal(t, "balances|gv:0", comp.Ref)
}

func TestExtractMappedTrackerRequiresKey(t *testing.T) {
	trs := []Tracker{{Name: "balances", ID: 3, Type: rule.TypeUint256, Mapped: true}}
	c := newCompilation(CallingFunction{}, nil, trs, nil)

	_, err := c.extractRefs("TRU:balances += 1")
	require.Error(t, err)

	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, ErrSyntax, cerr.Kind)
}

func TestReferencesForeignCall(t *testing.T) {
	require.True(t, referencesForeignCall("FC:getRisk(addr)", "getRisk"))
	require.True(t, referencesForeignCall("1 + FC:getRisk", "getRisk"))

	// Identifier boundaries on both sides of the match.
	require.False(t, referencesForeignCall("FC:getRiskScore(addr)", "getRisk"))
	require.False(t, referencesForeignCall("XFC:getRisk(addr)", "getRisk"))
}

func TestExtractUnknownGlobalVariableSuggestion(t *testing.T) {
	c := newTestCompilation()

	_, err := c.extractRefs("GV:MSG_SENDR == 5")
	require.Error(t, err)

	var cerr *CompileError
	require.True(t, errors.As(err, &cerr))
	require.Equal(t, ErrUnknownReference, cerr.Kind)
	require.Equal(t, "MSG_SENDER", cerr.Suggestion)
}
