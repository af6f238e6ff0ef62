package compiler

import (
	"github.com/rulelang/rulec/core/rule"
)

// placeholderOrdinal returns the ordinal of p within the placeholder list,
// appending it on first sight. De-duplication is stable: first-seen order is
// preserved because instruction operands bind placeholders positionally.
func (c *compilation) placeholderOrdinal(p rule.Placeholder) int {
	for i, existing := range c.placeholders {
		if existing == p {
			return i
		}
	}
	c.placeholders = append(c.placeholders, p)
	return len(c.placeholders) - 1
}

// buildRawData lifts every embedded literal out of the instruction stream
// into parallel index/value/type arrays. Indices are positions into the
// original instruction array, strictly increasing, so the compact stream and
// the literal table recombine unambiguously.
func buildRawData(instr []rule.Token) *rule.RawData {
	raw := &rule.RawData{}
	for i, t := range instr {
		switch v := t.(type) {
		case rule.Num:
			raw.InstructionSetIndex = append(raw.InstructionSetIndex, i)
			raw.DataValues = append(raw.DataValues, v)
			raw.ArgumentTypes = append(raw.ArgumentTypes, v.Type())
		case rule.Raw:
			raw.InstructionSetIndex = append(raw.InstructionSetIndex, i)
			raw.DataValues = append(raw.DataValues, v)
			raw.ArgumentTypes = append(raw.ArgumentTypes, rule.TypeString)
		}
	}
	return raw
}
