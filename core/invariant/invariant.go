// Package invariant provides contract assertions for the rule compiler.
//
// Assertions are a force multiplier for discovering bugs: use Precondition
// and Postcondition to express function contracts, and Invariant for internal
// consistency checks such as slot-counter monotonicity and operand-stack
// arity.
//
// All functions panic on violation - these are programming errors in the
// compiler, never user errors. Malformed rule syntax is reported through
// ordinary error returns, not through this package.
package invariant

import (
	"fmt"
	"reflect"
	"runtime"
)

// Precondition checks an input contract at function entry.
// Panics with PRECONDITION VIOLATION if condition is false.
//
// Example:
//
//	func lowerOperands(mem []int) {
//	    invariant.Precondition(len(mem) >= 2, "binary operator needs two slots")
//	    // ... work ...
//	}
func Precondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("PRECONDITION", format, args...)
	}
}

// Postcondition checks an output contract before function return.
// Panics with POSTCONDITION VIOLATION if condition is false.
//
// Example:
//
//	func nextSlot() int {
//	    slot := allocate()
//	    invariant.Postcondition(slot >= 0, "slot index must not be negative")
//	    return slot
//	}
func Postcondition(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("POSTCONDITION", format, args...)
	}
}

// Invariant checks an internal invariant during function execution.
// Panics with INVARIANT VIOLATION if condition is false.
//
// Use this for loop progress checks and state consistency, e.g. verifying
// that the slot iterator only ever advances during a tree walk.
func Invariant(condition bool, format string, args ...interface{}) {
	if !condition {
		fail("INVARIANT", format, args...)
	}
}

// NotNil panics if value is nil, including typed nils such as (*T)(nil).
func NotNil(value interface{}, name string) {
	if value == nil || isNilValue(value) {
		fail("PRECONDITION", "%s must not be nil", name)
	}
}

// isNilValue checks if a value is a typed nil using reflection
func isNilValue(value interface{}) bool {
	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Ptr, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return v.IsNil()
	default:
		return false
	}
}

// InRange panics if value is outside [min, max].
//
// Example:
//
//	func placeholderAt(ordinal int, phs []rule.Placeholder) rule.Placeholder {
//	    invariant.InRange(ordinal, 0, len(phs)-1, "placeholder ordinal")
//	    return phs[ordinal]
//	}
func InRange(value, minVal, maxVal int, name string) {
	if value < minVal || value > maxVal {
		fail("PRECONDITION", "%s must be in range [%d, %d], got %d",
			name, minVal, maxVal, value)
	}
}

// fail panics with a formatted message including call stack context.
func fail(kind, format string, args ...interface{}) {
	// Skip fail() and the wrapper assertion function
	pc := make([]uintptr, 10)
	n := runtime.Callers(3, pc)
	frames := runtime.CallersFrames(pc[:n])

	msg := fmt.Sprintf("%s VIOLATION: "+format, append([]interface{}{kind}, args...)...)

	if frame, ok := frames.Next(); ok {
		msg += fmt.Sprintf("\n  at %s:%d", frame.File, frame.Line)
	}

	panic(msg)
}
