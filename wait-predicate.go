package navigator

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

type PredicateKind string

const (
	PredicateJS  PredicateKind = "js"
	PredicateCSS PredicateKind = "css"
)

var matchFunction = regexp.MustCompile(`(?s)^\s*(async\s+)?(function\b|\([^)]*\)\s*=>|[A-Za-z_$][\w$]*\s*=>)`)

// Condition polled against the page until it holds.
//
// js: function or expression that must become truthy.
// css: selector that must match at least one element.
type WaitPredicate struct {
	Kind       PredicateKind
	Expression string
}

func JS(expression string) WaitPredicate {
	return WaitPredicate{Kind: PredicateJS, Expression: expression}
}

func CSS(selector string) WaitPredicate {
	return WaitPredicate{Kind: PredicateCSS, Expression: selector}
}

// Predicate that holds once no element matches selector
func SelectorGone(selector string) WaitPredicate {
	return JS(fmt.Sprintf("() => document.querySelectorAll(%s).length === 0", jsString(selector)))
}

// Parse "js:<code>" or "css:<selector>". A string without prefix is a CSS selector
func ParseWaitFor(value string) (WaitPredicate, error) {
	value = strings.TrimSpace(value)

	var predicate WaitPredicate
	switch {
	case strings.HasPrefix(value, "js:"):
		predicate = JS(strings.TrimSpace(strings.TrimPrefix(value, "js:")))
	case strings.HasPrefix(value, "css:"):
		predicate = CSS(strings.TrimSpace(strings.TrimPrefix(value, "css:")))
	default:
		predicate = CSS(value)
	}

	if predicate.Expression == "" {
		return WaitPredicate{}, errors.New("empty wait predicate")
	}
	return predicate, nil
}

func (p WaitPredicate) IsZero() bool {
	return p.Expression == ""
}

func (p WaitPredicate) String() string {
	return string(p.Kind) + ":" + p.Expression
}

// Quote value as JS string literal
func jsString(value string) string {
	quoted, _ := json.Marshal(value)
	return string(quoted)
}

func isFunction(code string) bool {
	return matchFunction.MatchString(code)
}

// Wrap statements into a function, functions are kept as is
func asFunction(code string) string {
	if isFunction(code) {
		return code
	}
	return "() => {\n" + code + "\n}"
}

// Wrap expression into a function returning it
func asPredicateFunction(code string) string {
	if isFunction(code) {
		return code
	}
	return "() => (" + code + ")"
}

// Self invoking expression for engines that evaluate expressions only
func asExpression(code string) string {
	return "(" + asFunction(code) + ")()"
}
