package invariant_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rulelang/rulec/core/invariant"
)

// TestPreconditionPass verifies Precondition does not panic when condition is true
func TestPreconditionPass(t *testing.T) {
	mem := []int{0, 1}
	invariant.Precondition(true, "this should pass")
	invariant.Precondition(len(mem) >= 2, "binary operator needs two slots")
}

// TestPreconditionFail verifies Precondition panics with correct message
func TestPreconditionFail(t *testing.T) {
	defer expectViolation(t, "PRECONDITION VIOLATION", "slot stack must not be empty")
	invariant.Precondition(false, "slot stack must not be empty")
}

func TestPostconditionFail(t *testing.T) {
	defer expectViolation(t, "POSTCONDITION VIOLATION", "iterator must advance")
	invariant.Postcondition(false, "iterator must advance")
}

func TestInvariantFail(t *testing.T) {
	defer expectViolation(t, "INVARIANT VIOLATION", "delimiter 3 out of range")
	invariant.Invariant(false, "delimiter %d out of range", 3)
}

func TestNotNil(t *testing.T) {
	invariant.NotNil("value", "value") // should not panic

	defer expectViolation(t, "PRECONDITION VIOLATION", "accumulator must not be nil")
	var acc *struct{ n int }
	invariant.NotNil(acc, "accumulator") // typed nil must be caught
}

func TestInRange(t *testing.T) {
	invariant.InRange(2, 0, 4, "ordinal") // should not panic

	defer expectViolation(t, "PRECONDITION VIOLATION", "ordinal must be in range [0, 4], got 5")
	invariant.InRange(5, 0, 4, "ordinal")
}

// expectViolation asserts the deferred recover carries the violation kind,
// the message, and a file:line stack frame.
func expectViolation(t *testing.T, kind, message string) {
	t.Helper()
	r := recover()
	if r == nil {
		t.Fatalf("expected panic containing %q", kind)
	}
	msg := fmt.Sprintf("%v", r)
	if !strings.Contains(msg, kind) {
		t.Errorf("expected %s, got: %s", kind, msg)
	}
	if !strings.Contains(msg, message) {
		t.Errorf("expected message %q, got: %s", message, msg)
	}
	if !strings.Contains(msg, "at ") {
		t.Errorf("expected stack trace context, got: %s", msg)
	}
}
