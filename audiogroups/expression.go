// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audiogroups

import (
	"fmt"
	"strings"
)

// Direction classifies which way audio flows through a stream. Playback
// streams are outputs, capture streams are inputs.
type Direction int

const (
	DirectionUnknown Direction = iota
	DirectionInput
	DirectionOutput
)

func (d Direction) String() string {
	switch d {
	case DirectionInput:
		return "input"
	case DirectionOutput:
		return "output"
	}
	return "unknown"
}

// Candidate is the read-only view of a stream being classified.
type Candidate interface {
	Direction() Direction
	// Property returns the value of a property-list entry and whether the
	// entry exists.
	Property(name string) (string, bool)
}

// Literal is a single predicate: either a direction test or an exact
// property-equality test. Exactly one of the two forms is populated.
// Negation is recorded from the rule text but does not take part in
// matching; see Matches.
type Literal struct {
	PropertyName  string
	PropertyValue string
	Direction     Direction
	Negation      bool
}

// Matches reports whether the literal holds for cand. The Negation flag is
// intentionally not consulted, matching the long-standing behavior of the
// rule language.
func (l *Literal) Matches(cand Candidate) bool {
	if l.Direction != DirectionUnknown {
		return cand.Direction() == l.Direction
	}
	if l.PropertyName != "" {
		value, ok := cand.Property(l.PropertyName)
		return ok && value == l.PropertyValue
	}
	return false
}

func (l *Literal) String() string {
	var sb strings.Builder
	if l.Negation {
		sb.WriteString("NEG ")
	}
	if l.Direction != DirectionUnknown {
		fmt.Fprintf(&sb, "stream direction %s", l.Direction)
	} else {
		fmt.Fprintf(&sb, "property %s == %s", l.PropertyName, l.PropertyValue)
	}
	return sb.String()
}

// Conjunction is an AND of literals: it matches only when every literal
// matches.
type Conjunction []Literal

func (c Conjunction) Matches(cand Candidate) bool {
	for i := range c {
		if !c[i].Matches(cand) {
			return false
		}
	}
	return true
}

// Expression is a formula in disjunctive normal form: an OR of
// conjunctions. It matches when any conjunction matches.
type Expression []Conjunction

func (e Expression) Matches(cand Candidate) bool {
	for _, c := range e {
		if c.Matches(cand) {
			return true
		}
	}
	return false
}

// String renders the expression one literal per line for debug logs.
func (e Expression) String() string {
	var sb strings.Builder
	sb.WriteString("disjunction for conjunctions:")
	for _, c := range e {
		sb.WriteString("\n  conjunction for literals:")
		for i := range c {
			sb.WriteString("\n    ")
			sb.WriteString(c[i].String())
		}
	}
	return sb.String()
}
