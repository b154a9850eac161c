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

package match

// Validate checks that a pattern is well formed.
//
// The result is nil for a valid pattern.  A *Rejected or
// *MalformedOperand explains why the pattern isn't valid.  An
// *InvalidPatternShape or *TooDeep is a fault: the input isn't a
// proper Value tree (or is too deep), which is a different thing
// from an invalid pattern.
//
// A pattern is an Object with at least one property.  Each property
// is either a nested pattern (an Object) or an alternatives list (an
// Array) of scalar literals and content filters.
func (m *Matcher) Validate(p Value) error {
	switch vv := p.(type) {
	case *Object:
		if vv == nil {
			return &InvalidPatternShape{Pattern: p}
		}
		return m.validate("", vv, 0)
	case Null, Bool, Number, String, Array:
		return &Rejected{Reason: "pattern must be an object"}
	default:
		return &InvalidPatternShape{Pattern: p}
	}
}

// IsPatternValid reports whether the pattern is well formed.  The
// error is only non-nil for a fault (see Validate).
func (m *Matcher) IsPatternValid(p *Object) (bool, error) {
	if p == nil {
		return false, &InvalidPatternShape{Pattern: p}
	}
	return verdict(m.validate("", p, 0))
}

func verdict(err error) (bool, error) {
	if err == nil {
		return true, nil
	}
	if IsRejection(err) {
		return false, nil
	}
	return false, err
}

func (m *Matcher) deep(path string, depth int) error {
	if 0 < m.MaxDepth && m.MaxDepth < depth {
		return &TooDeep{Path: path, Limit: m.MaxDepth}
	}
	return nil
}

func (m *Matcher) validate(path string, p *Object, depth int) error {
	if err := m.deep(path, depth); err != nil {
		return err
	}

	if p.Len() == 0 {
		return &Rejected{Path: path, Reason: "pattern cannot be empty"}
	}

	for _, k := range p.keys {
		at := join(path, k)
		switch vv := p.props[k].(type) {
		case Array:
			for i, x := range vv {
				xat := index(at, i)
				switch xx := x.(type) {
				case Array:
					return &Rejected{Path: xat, Reason: "nested array"}
				case *Object:
					if xx == nil {
						return &InvalidPatternShape{Path: xat, Pattern: x}
					}
					if err := m.validateContent(xat, xx, depth+1, false); err != nil {
						return err
					}
				case Null, Bool, Number, String:
					// Literal.
				default:
					return &InvalidPatternShape{Path: xat, Pattern: x}
				}
			}
		case *Object:
			if vv == nil {
				return &InvalidPatternShape{Path: at, Pattern: vv}
			}
			if err := m.validate(at, vv, depth+1); err != nil {
				return err
			}
		case Null, Bool, Number, String:
			return &Rejected{Path: at, Reason: "value must be an array or an object"}
		default:
			return &InvalidPatternShape{Path: at, Pattern: p.props[k]}
		}
	}

	return nil
}

// validateContent checks a content filter.  A filter nested in an
// anything-but (negated) may not itself negate or test existence.
func (m *Matcher) validateContent(path string, f *Object, depth int, negated bool) error {
	if err := m.deep(path, depth); err != nil {
		return err
	}

	op, operand, ok := f.only()
	if !ok {
		return &Rejected{Path: path, Reason: "content filter must have exactly one property"}
	}
	at := join(path, op)

	malformed := func(reason string) error {
		return &MalformedOperand{Path: at, Operator: op, Reason: reason}
	}

	if operand == nil {
		return &InvalidPatternShape{Path: at}
	}

	switch op {
	case OpPrefix:
		if _, is := operand.(String); !is {
			return malformed("want a string")
		}

	case OpAnythingBut:
		if negated {
			return malformed("anything-but cannot be nested")
		}
		switch vv := operand.(type) {
		case String, Number:
		case Array:
			if len(vv) == 0 {
				return malformed("want at least one value")
			}
			for i, x := range vv {
				switch x.(type) {
				case String, Number:
				case nil:
					return &InvalidPatternShape{Path: index(at, i)}
				default:
					return malformed("want only strings and numbers")
				}
			}
		case *Object:
			if vv == nil {
				return &InvalidPatternShape{Path: at, Pattern: operand}
			}
			return m.validateContent(at, vv, depth+1, true)
		default:
			return malformed("want a string, a number, a list of those, or a content filter")
		}

	case OpNumeric:
		if _, ok := comparisons(operand); !ok {
			return malformed(`want [OP, NUMBER] or [OP, NUMBER, OP, NUMBER] with OP one of <, <=, =, >=, >`)
		}

	case OpCIDR:
		s, is := operand.(String)
		if !is {
			return malformed("want a string")
		}
		if _, ok := parseCIDR(string(s)); !ok {
			return malformed(`want "A.B.C.D/N" with N less than 32`)
		}

	case OpExists:
		if negated {
			return malformed("exists cannot be nested")
		}
		if _, is := operand.(Bool); !is {
			return malformed("want a boolean")
		}

	default:
		return &Rejected{Path: path, Reason: `unknown content filter "` + op + `"`}
	}

	return nil
}
