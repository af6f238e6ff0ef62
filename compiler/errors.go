package compiler

import (
	"fmt"
	"sort"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// ErrorKind categorizes compilation errors.
type ErrorKind int

const (
	// ErrSyntax covers structural parse errors: unbalanced parentheses or
	// brackets, operators missing operands, malformed references.
	ErrSyntax ErrorKind = iota

	// ErrUnknownReference is a FC:/TR:/TRU:/GV: prefix with no matching
	// table entry.
	ErrUnknownReference

	// ErrNumericRange is a literal exceeding the unsigned 256-bit maximum.
	ErrNumericRange

	// ErrSelfReference is a foreign call whose argument list names itself.
	ErrSelfReference
)

// CompileError is a structured compilation error with the offending token
// and, for unknown references, a closest-match suggestion.
type CompileError struct {
	Kind       ErrorKind
	Message    string
	Token      string // offending token, if any
	Suggestion string // possible fix
}

func (e *CompileError) Error() string {
	if e.Suggestion != "" {
		return fmt.Sprintf("%s (did you mean %q?)", e.Message, e.Suggestion)
	}
	return e.Message
}

func syntaxErrorf(format string, args ...interface{}) *CompileError {
	return &CompileError{Kind: ErrSyntax, Message: fmt.Sprintf(format, args...)}
}

func numericRangeError(token string) *CompileError {
	return &CompileError{
		Kind:    ErrNumericRange,
		Token:   token,
		Message: fmt.Sprintf("literal %q exceeds the unsigned 256-bit range", token),
	}
}

func unknownReferenceError(label, name string, known []string) *CompileError {
	return &CompileError{
		Kind:       ErrUnknownReference,
		Token:      name,
		Message:    fmt.Sprintf("unknown %s %q", label, name),
		Suggestion: findClosestMatch(name, known),
	}
}

func selfReferenceError(name string) *CompileError {
	return &CompileError{
		Kind:    ErrSelfReference,
		Token:   name,
		Message: fmt.Sprintf("foreign call %q references itself in its argument list", name),
	}
}

// findClosestMatch returns the known name nearest to the unknown reference,
// or "" when nothing plausibly matches.
func findClosestMatch(name string, known []string) string {
	ranks := fuzzy.RankFindFold(name, known)
	if len(ranks) == 0 {
		return ""
	}
	sort.Sort(ranks)
	return ranks[0].Target
}
