/* Copyright 2020 Comcast Cable Communications Management, LLC
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 * http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package match implements event pattern validation and matching.
//
// A pattern is an object whose properties name event fields.  Each
// pattern property is either a nested pattern, which requires the
// event field to be an object that matches it, or a list of
// alternatives, which requires the event field to satisfy at least
// one of them.  An alternative is a literal or a content filter:
//
//   {"prefix":"B"}
//   {"anything-but":["a","b"]}
//   {"anything-but":{"prefix":"F"}}
//   {"numeric":[">",10,"<=",20]}
//   {"cidr":"10.0.0.0/24"}
//   {"exists":true}
//
// For example, the pattern
//
//   {"source":["orders"],"detail":{"total":[{"numeric":[">=",100]}]}}
//
// matches the event
//
//   {"source":"orders","detail":{"total":250,"currency":"USD"}}
//
// Every property of the pattern must be satisfied.  Properties of the
// event that the pattern doesn't mention don't matter.
package match

import (
	"strings"
)

// Matcher carries the switches that affect validation and matching.
//
// A Matcher is never modified by its methods, so one Matcher can
// serve many goroutines.
type Matcher struct {
	// MaxDepth, when positive, bounds the nesting of patterns and
	// events.  Exceeding the bound results in a *TooDeep error.
	//
	// Recursion follows the input, so callers that accept
	// patterns or events from strangers should set a bound.
	MaxDepth int

	// Revalidate runs Validate on every pattern before matching.
	//
	// Matching assumes a valid pattern.  The matcher will report
	// an *InvalidPatternShape if it encounters a broken part of a
	// pattern, but a match might succeed or fail before reaching
	// that part.  In order to report a bad pattern always, turn on
	// this switch.  Performance will suffer.
	Revalidate bool
}

// DefaultMatcher has no depth bound and doesn't revalidate.
var DefaultMatcher = &Matcher{}

// IsPatternMatch reports whether the event satisfies the pattern.
//
// A false result with a nil error is an ordinary non-match.  An error
// means the pattern or event is malformed (*InvalidPatternShape,
// *UnexpectedEventShape) or too deep (*TooDeep).
func (m *Matcher) IsPatternMatch(event, pattern *Object) (bool, error) {
	if pattern == nil {
		return false, &InvalidPatternShape{}
	}
	if event == nil {
		return false, &UnexpectedEventShape{}
	}
	if m.Revalidate {
		if err := m.validate("", pattern, 0); err != nil {
			if IsRejection(err) {
				return false, &InvalidPatternShape{Pattern: pattern, Cause: err}
			}
			return false, err
		}
	}
	return m.match("", event, pattern, 0)
}

func (m *Matcher) match(path string, event, pattern *Object, depth int) (bool, error) {
	if err := m.deep(path, depth); err != nil {
		return false, err
	}

	for _, k := range pattern.keys {
		at := join(path, k)
		data, present := event.props[k]
		if present && data == nil {
			return false, &UnexpectedEventShape{Path: at}
		}

		switch tt := pattern.props[k].(type) {
		case Array:
			ok, err := m.matchField(at, data, present, tt, depth+1)
			if err != nil || !ok {
				return false, err
			}

		case *Object:
			if tt == nil {
				return false, &InvalidPatternShape{Path: at, Pattern: tt}
			}
			nested, is := data.(*Object)
			if !present || !is {
				return false, nil
			}
			if nested == nil {
				return false, &UnexpectedEventShape{Path: at, Event: data}
			}
			ok, err := m.match(at, nested, tt, depth+1)
			if err != nil || !ok {
				return false, err
			}

		default:
			return false, &InvalidPatternShape{Path: at, Pattern: pattern.props[k]}
		}
	}

	return true, nil
}

// matchField checks one event field against an alternatives list.
// The field matches if any alternative matches.
func (m *Matcher) matchField(path string, data Value, present bool, alts Array, depth int) (bool, error) {
	switch dd := data.(type) {
	case nil:
		// Absent.
	case *Object:
		if dd == nil {
			return false, &UnexpectedEventShape{Path: path, Event: data}
		}
	case Array:
		if err := m.deep(path, depth); err != nil {
			return false, err
		}
	case Null, Bool, Number, String:
	default:
		return false, &UnexpectedEventShape{Path: path, Event: data}
	}

	for i, alt := range alts {
		ok, err := m.matchAlternative(index(path, i), data, present, alt)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

func (m *Matcher) matchAlternative(path string, data Value, present bool, alt Value) (bool, error) {
	// Existence is a property of the field, not the value.
	if f, is := alt.(*Object); is && f != nil {
		if op, operand, ok := f.only(); ok && op == OpExists {
			want, is := operand.(Bool)
			if !is {
				return false, &InvalidPatternShape{Path: join(path, op), Pattern: operand}
			}
			return present == bool(want), nil
		}
	}

	if !present {
		return false, nil
	}

	switch dd := data.(type) {
	case *Object:
		// An object can never satisfy a literal or content filter.
		return false, nil
	case Array:
		for j, x := range dd {
			ok, err := m.isContentMatch(index(path, j), x, alt)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	default:
		return m.isContentMatch(path, data, alt)
	}
}

// isContentMatch checks an event value against a literal or a content
// filter.  Only scalars ever match.
func (m *Matcher) isContentMatch(path string, data Value, term Value) (bool, error) {
	switch data.(type) {
	case Null, Bool, Number, String:
	case Array, *Object:
		return false, nil
	default:
		return false, &UnexpectedEventShape{Path: path, Event: data}
	}

	switch tt := term.(type) {
	case Null, Bool, Number, String:
		return Equal(data, tt), nil
	case *Object:
		if tt == nil {
			return false, &InvalidPatternShape{Path: path, Pattern: term}
		}
		return m.isFilterMatch(path, data, tt)
	default:
		return false, &InvalidPatternShape{Path: path, Pattern: term}
	}
}

func (m *Matcher) isFilterMatch(path string, data Value, f *Object) (bool, error) {
	op, operand, ok := f.only()
	if !ok {
		return false, &InvalidPatternShape{Path: path, Pattern: f}
	}
	at := join(path, op)
	bad := func() (bool, error) {
		return false, &InvalidPatternShape{Path: at, Pattern: operand}
	}

	switch op {
	case OpPrefix:
		prefix, is := operand.(String)
		if !is {
			return bad()
		}
		s, is := data.(String)
		if !is {
			return false, nil
		}
		return strings.HasPrefix(string(s), string(prefix)), nil

	case OpAnythingBut:
		switch vv := operand.(type) {
		case Array:
			for _, disallowed := range vv {
				ok, err := m.isContentMatch(at, data, disallowed)
				if err != nil {
					return false, err
				}
				if ok {
					return false, nil
				}
			}
			return true, nil
		case nil:
			return bad()
		default:
			ok, err := m.isContentMatch(at, data, vv)
			if err != nil {
				return false, err
			}
			return !ok, nil
		}

	case OpNumeric:
		cs, ok := comparisons(operand)
		if !ok {
			return bad()
		}
		n, is := data.(Number)
		if !is {
			return false, nil
		}
		for _, c := range cs {
			holds, _ := compare(c.op, float64(n), c.threshold)
			if !holds {
				return false, nil
			}
		}
		return true, nil

	case OpCIDR:
		s, is := operand.(String)
		if !is {
			return bad()
		}
		p, ok := parseCIDR(string(s))
		if !ok {
			return bad()
		}
		ip, is := data.(String)
		if !is {
			return false, nil
		}
		return inCIDR(string(ip), p), nil

	case OpExists:
		// Only reachable inside anything-but, where the value at
		// hand is certainly present.
		want, is := operand.(Bool)
		if !is {
			return bad()
		}
		return bool(want), nil
	}

	return false, &InvalidPatternShape{Path: path, Pattern: f}
}

// Validate calls DefaultMatcher.Validate.
func Validate(p Value) error {
	return DefaultMatcher.Validate(p)
}

// IsPatternValid calls DefaultMatcher.IsPatternValid.
func IsPatternValid(p *Object) (bool, error) {
	return DefaultMatcher.IsPatternValid(p)
}

// IsPatternMatch calls DefaultMatcher.IsPatternMatch.
func IsPatternMatch(event, pattern *Object) (bool, error) {
	return DefaultMatcher.IsPatternMatch(event, pattern)
}

// ValidatePattern reports whether a document is a valid pattern.  A
// document that isn't an object is not a valid pattern.
func ValidatePattern(doc Value) (bool, error) {
	return verdict(DefaultMatcher.Validate(doc))
}

// Matches reports whether the event document satisfies the pattern
// document.  An event that isn't an object never matches.
func Matches(event, pattern Value) (bool, error) {
	return DefaultMatcher.Matches(event, pattern)
}

// Matches is the Value-level version of IsPatternMatch.
func (m *Matcher) Matches(event, pattern Value) (bool, error) {
	p, is := pattern.(*Object)
	if !is || p == nil {
		return false, &InvalidPatternShape{Pattern: pattern}
	}
	e, is := event.(*Object)
	if !is {
		if event == nil {
			return false, &UnexpectedEventShape{}
		}
		return false, nil
	}
	return m.IsPatternMatch(e, p)
}
