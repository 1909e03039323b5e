// SPDX-FileCopyrightText: 2023 - 2024 Lumosound Project Contributors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package audiogroups

import (
	"fmt"
	"strings"
)

// The match rule language:
//
//	OPER        := "AND" | "OR"
//	EXPR        := "(" EXPR OPER EXPR ")" | VAR
//	VAR         := LIT | "NEG" LIT
//	LIT         := "direction" ("input" | "output") | "property" NAME "=" VALUE
//
// Expressions must be in disjunctive normal form: once an AND has been
// entered, no OR may appear in its operands. Spaces are allowed anywhere
// and stripped before parsing.
//
// Examples:
//
//	(property application.process.binary=paplay)
//	(property media.role=music AND direction input)
//	(property foo=bar OR (direction input OR direction output))

// ParseError describes a rejected rule. Input is the substring that failed,
// which for nested expressions may be narrower than the whole rule.
type ParseError struct {
	Input  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse rule %q: %s", e.Input, e.Reason)
}

type logicOp int

const (
	opNone logicOp = iota
	opAnd
	opOr
)

// exprToken is a node of the raw parse tree, before DNF flattening. Either
// op with left/right is set, or lit is set.
type exprToken struct {
	left  *exprToken
	right *exprToken
	op    logicOp
	lit   *litToken
}

type litToken struct {
	negation bool
	text     string
}

// ParseRule parses rule text into a flat DNF expression.
func ParseRule(rule string) (Expression, error) {
	stripped := strings.ReplaceAll(rule, " ", "")

	token, err := parseNode(stripped, true)
	if err != nil {
		return nil, err
	}

	var expr Expression
	if err := gatherExpression(token, &expr); err != nil {
		return nil, err
	}
	return expr, nil
}

// parseNode scans rule for the operator sitting at brace depth one and
// recurses on the operand substrings. Text without such an operator is a
// literal. disjunctionAllowed goes false inside AND operands and never
// comes back, which is exactly the DNF restriction.
func parseNode(rule string, disjunctionAllowed bool) (*exprToken, error) {
	braceCount := 0
	bracesPresent := false

	for i := 0; i < len(rule); i++ {
		switch rule[i] {
		case '(':
			bracesPresent = true
			braceCount++
		case ')':
			braceCount--
		}

		if braceCount != 1 {
			continue
		}

		if strings.HasPrefix(rule[i:], "AND") {
			left, err := parseNode(rule[1:i], false)
			if err != nil {
				return nil, err
			}
			right, err := parseNode(rule[i+3:len(rule)-1], false)
			if err != nil {
				return nil, err
			}
			return &exprToken{left: left, right: right, op: opAnd}, nil
		}

		if strings.HasPrefix(rule[i:], "OR") {
			if !disjunctionAllowed {
				return nil, &ParseError{Input: rule, Reason: "logic expression not in dnf"}
			}
			left, err := parseNode(rule[1:i], true)
			if err != nil {
				return nil, err
			}
			right, err := parseNode(rule[i+2:len(rule)-1], true)
			if err != nil {
				return nil, err
			}
			return &exprToken{left: left, right: right, op: opOr}, nil
		}
	}

	if braceCount != 0 {
		return nil, &ParseError{Input: rule, Reason: "mismatched braces in logic expression"}
	}

	// no operator at depth one, so this is a literal
	text := rule
	if bracesPresent {
		text = strings.Map(func(r rune) rune {
			if r == '(' || r == ')' {
				return -1
			}
			return r
		}, rule)
	}

	lit := &litToken{}
	if strings.HasPrefix(text, "NEG") {
		lit.negation = true
		text = text[3:]
	}
	lit.text = text

	return &exprToken{lit: lit}, nil
}

// gatherExpression flattens the token tree into the conjunction list,
// left operand before right so the expression keeps source order.
func gatherExpression(et *exprToken, e *Expression) error {
	if et.op == opOr {
		if err := gatherExpression(et.left, e); err != nil {
			return err
		}
		return gatherExpression(et.right, e)
	}

	var c Conjunction
	if err := gatherConjunction(et, &c); err != nil {
		return err
	}
	*e = append(*e, c)
	return nil
}

func gatherConjunction(et *exprToken, c *Conjunction) error {
	if et.op == opAnd {
		if err := gatherConjunction(et.left, c); err != nil {
			return err
		}
		return gatherConjunction(et.right, c)
	}

	lit, err := gatherLiteral(et.lit)
	if err != nil {
		return err
	}
	*c = append(*c, lit)
	return nil
}

const (
	propertyKeyword  = "property"
	directionKeyword = "direction"
)

func gatherLiteral(lt *litToken) (Literal, error) {
	lit := Literal{Negation: lt.negation}
	text := lt.text

	switch {
	case strings.HasPrefix(text, propertyKeyword):
		pair := text[len(propertyKeyword):]
		eq := strings.IndexByte(pair, '=')
		if eq < 0 {
			return lit, &ParseError{
				Input:  text,
				Reason: fmt.Sprintf("property syntax broken for %q", text),
			}
		}
		lit.PropertyName = pair[:eq]
		lit.PropertyValue = pair[eq+1:]

	case strings.HasPrefix(text, directionKeyword):
		switch value := text[len(directionKeyword):]; value {
		case "input":
			lit.Direction = DirectionInput
		case "output":
			lit.Direction = DirectionOutput
		default:
			return lit, &ParseError{
				Input:  text,
				Reason: fmt.Sprintf("unknown direction %q", value),
			}
		}

	default:
		return lit, &ParseError{
			Input:  text,
			Reason: fmt.Sprintf("not able to parse the value %q", text),
		}
	}

	return lit, nil
}
