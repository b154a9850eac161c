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

// Rejected and MalformedOperand explain why a pattern is not valid.
// They are verdicts, not faults: IsPatternValid turns them into
// false.
//
// InvalidPatternShape, UnexpectedEventShape, and TooDeep are faults.
// They mean the input broke the Value contract (or a configured
// bound), and callers should treat the pattern/event pair as
// unusable.

import (
	"errors"
	"fmt"
	"strconv"
)

// Rejected reports a structural problem with a pattern.
type Rejected struct {
	Path   string
	Reason string
}

func (e *Rejected) Error() string {
	return "invalid pattern at " + where(e.Path) + ": " + e.Reason
}

// MalformedOperand reports a content filter whose operand has the
// wrong shape.
type MalformedOperand struct {
	Path     string
	Operator string
	Reason   string
}

func (e *MalformedOperand) Error() string {
	return `malformed "` + e.Operator + `" operand at ` + where(e.Path) + ": " + e.Reason
}

// InvalidPatternShape occurs when a pattern contains something the
// matcher cannot interpret.
type InvalidPatternShape struct {
	Path    string
	Pattern Value

	// Cause is the validator's complaint when the Matcher was asked
	// to revalidate.
	Cause error
}

func (e *InvalidPatternShape) Error() string {
	msg := "invalid pattern shape at " + where(e.Path)
	if e.Cause != nil {
		return msg + ": " + e.Cause.Error()
	}
	return msg + ": " + describe(e.Pattern)
}

func (e *InvalidPatternShape) Unwrap() error {
	return e.Cause
}

// UnexpectedEventShape occurs when an event contains something the
// matcher cannot interpret.
type UnexpectedEventShape struct {
	Path  string
	Event Value
}

func (e *UnexpectedEventShape) Error() string {
	return "unexpected event shape at " + where(e.Path) + ": " + describe(e.Event)
}

// TooDeep occurs when a pattern or event nests deeper than
// Matcher.MaxDepth.
type TooDeep struct {
	Path  string
	Limit int
}

func (e *TooDeep) Error() string {
	return "nesting at " + where(e.Path) + " exceeds " + strconv.Itoa(e.Limit)
}

// IsRejection reports whether the error is a validation verdict
// (rather than a fault).
//
// An *InvalidPatternShape is never a rejection, even when its Cause
// is one.
func IsRejection(err error) bool {
	for err != nil {
		switch err.(type) {
		case *Rejected, *MalformedOperand:
			return true
		case *InvalidPatternShape:
			return false
		}
		err = errors.Unwrap(err)
	}
	return false
}

func where(path string) string {
	if path == "" {
		return "top level"
	}
	return path
}

func describe(v Value) string {
	if v == nil {
		return "nil value"
	}
	if o, is := v.(*Object); is && o == nil {
		return "nil object"
	}
	return fmt.Sprintf("%T", v)
}

// join extends a path with a property name.
func join(path, k string) string {
	if path == "" {
		return k
	}
	return path + "." + k
}

// index extends a path with an array position.
func index(path string, i int) string {
	return path + "[" + strconv.Itoa(i) + "]"
}
