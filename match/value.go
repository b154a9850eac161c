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

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// Kind identifies the variant of a Value.
type Kind int

const (
	NullKind Kind = iota
	BoolKind
	NumberKind
	StringKind
	ArrayKind
	ObjectKind
)

func (k Kind) String() string {
	switch k {
	case NullKind:
		return "null"
	case BoolKind:
		return "bool"
	case NumberKind:
		return "number"
	case StringKind:
		return "string"
	case ArrayKind:
		return "array"
	case ObjectKind:
		return "object"
	}
	return "kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is a JSON-like value: Null, Bool, Number, String, Array, or
// *Object.  Events and patterns are both Values.
//
// The set of implementations is closed.
type Value interface {
	Kind() Kind
	value()
}

// Null is the JSON null.
type Null struct{}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number.  Integers and floats are both represented
// as a float64.
type Number float64

// String is a JSON string.
type String string

// Array is a JSON array.
type Array []Value

func (Null) Kind() Kind    { return NullKind }
func (Bool) Kind() Kind    { return BoolKind }
func (Number) Kind() Kind  { return NumberKind }
func (String) Kind() Kind  { return StringKind }
func (Array) Kind() Kind   { return ArrayKind }
func (*Object) Kind() Kind { return ObjectKind }

func (Null) value()    {}
func (Bool) value()    {}
func (Number) value()  {}
func (String) value()  {}
func (Array) value()   {}
func (*Object) value() {}

// Object is a JSON object that remembers the order of its properties.
//
// Use NewObject and Set to build one.  The matcher never modifies an
// Object.
type Object struct {
	keys  []string
	props map[string]Value
}

// NewObject makes an empty Object.
func NewObject() *Object {
	return &Object{
		props: make(map[string]Value),
	}
}

// Set adds or replaces a property.  A replaced property keeps its
// original position.
func (o *Object) Set(k string, v Value) *Object {
	if o.props == nil {
		o.props = make(map[string]Value)
	}
	if _, have := o.props[k]; !have {
		o.keys = append(o.keys, k)
	}
	o.props[k] = v
	return o
}

// Get returns the value of the given property.
func (o *Object) Get(k string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, have := o.props[k]
	return v, have
}

// Len is the number of properties.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns the property names in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	acc := make([]string, len(o.keys))
	copy(acc, o.keys)
	return acc
}

// only returns the single property of an Object that has exactly one.
func (o *Object) only() (string, Value, bool) {
	if o.Len() != 1 {
		return "", nil, false
	}
	k := o.keys[0]
	return k, o.props[k], true
}

// MarshalJSON renders the Object with its properties in order.
func (o *Object) MarshalJSON() ([]byte, error) {
	return Marshal(o)
}

// IsScalar reports whether the value is Null, Bool, Number, or
// String.
func IsScalar(v Value) bool {
	switch v.(type) {
	case Null, Bool, Number, String:
		return true
	}
	return false
}

// Equal reports literal equality: same variant and same value.  It is
// only meaningful for scalars; arrays and objects are never Equal.
func Equal(a, b Value) bool {
	switch x := a.(type) {
	case Null:
		_, is := b.(Null)
		return is
	case Bool:
		y, is := b.(Bool)
		return is && x == y
	case Number:
		y, is := b.(Number)
		return is && x == y
	case String:
		y, is := b.(String)
		return is && x == y
	}
	return false
}

// UnsupportedType is returned by FromInterface when given a Go value
// that has no Value representation.
type UnsupportedType struct {
	X interface{}
}

func (e *UnsupportedType) Error() string {
	return fmt.Sprintf("unsupported type %T", e.X)
}

// FromInterface converts a value as produced by encoding/json (or a
// YAML decoder) into a Value.
//
// Map keys are sorted since Go maps have no order.
func FromInterface(x interface{}) (Value, error) {
	switch vv := x.(type) {
	case nil:
		return Null{}, nil
	case Value:
		return vv, nil
	case bool:
		return Bool(vv), nil
	case string:
		return String(vv), nil
	case float64:
		return Number(vv), nil
	case float32:
		return Number(vv), nil
	case int:
		return Number(vv), nil
	case int8:
		return Number(vv), nil
	case int16:
		return Number(vv), nil
	case int32:
		return Number(vv), nil
	case int64:
		return Number(vv), nil
	case uint:
		return Number(vv), nil
	case uint8:
		return Number(vv), nil
	case uint16:
		return Number(vv), nil
	case uint32:
		return Number(vv), nil
	case uint64:
		return Number(vv), nil
	case json.Number:
		f, err := vv.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case []interface{}:
		acc := make(Array, 0, len(vv))
		for _, y := range vv {
			v, err := FromInterface(y)
			if err != nil {
				return nil, err
			}
			acc = append(acc, v)
		}
		return acc, nil
	case map[string]interface{}:
		ks := make([]string, 0, len(vv))
		for k := range vv {
			ks = append(ks, k)
		}
		sort.Strings(ks)
		o := NewObject()
		for _, k := range ks {
			v, err := FromInterface(vv[k])
			if err != nil {
				return nil, err
			}
			o.Set(k, v)
		}
		return o, nil
	case map[interface{}]interface{}:
		m := make(map[string]interface{}, len(vv))
		for k, y := range vv {
			s, is := k.(string)
			if !is {
				return nil, &UnsupportedType{k}
			}
			m[s] = y
		}
		return FromInterface(m)
	default:
		return nil, &UnsupportedType{x}
	}
}

// ToInterface converts a Value to the representation that
// encoding/json uses.
func ToInterface(v Value) interface{} {
	switch vv := v.(type) {
	case Bool:
		return bool(vv)
	case Number:
		return float64(vv)
	case String:
		return string(vv)
	case Array:
		acc := make([]interface{}, len(vv))
		for i, x := range vv {
			acc[i] = ToInterface(x)
		}
		return acc
	case *Object:
		if vv == nil {
			return nil
		}
		acc := make(map[string]interface{}, vv.Len())
		for _, k := range vv.keys {
			acc[k] = ToInterface(vv.props[k])
		}
		return acc
	}
	return nil
}

// ParseJSON parses a single JSON document, keeping the order of
// object properties.
func ParseJSON(bs []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(bs))
	dec.UseNumber()
	v, err := parse(dec)
	if err != nil {
		return nil, err
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, errors.New("trailing data after JSON value")
	}
	return v, nil
}

func parse(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}

	switch t := tok.(type) {
	case json.Delim:
		switch t {
		case '{':
			o := NewObject()
			for dec.More() {
				kt, err := dec.Token()
				if err != nil {
					return nil, err
				}
				k, is := kt.(string)
				if !is {
					return nil, fmt.Errorf("object key %v is not a string", kt)
				}
				v, err := parse(dec)
				if err != nil {
					return nil, err
				}
				o.Set(k, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return o, nil
		case '[':
			acc := Array{}
			for dec.More() {
				v, err := parse(dec)
				if err != nil {
					return nil, err
				}
				acc = append(acc, v)
			}
			if _, err := dec.Token(); err != nil {
				return nil, err
			}
			return acc, nil
		}
		return nil, fmt.Errorf("unexpected delimiter %v", t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return nil, err
		}
		return Number(f), nil
	case string:
		return String(t), nil
	case bool:
		return Bool(t), nil
	case nil:
		return Null{}, nil
	}
	return nil, fmt.Errorf("unexpected token %v", tok)
}

// Marshal renders a Value as JSON.  Object properties keep their
// order.
func Marshal(v Value) ([]byte, error) {
	var buf bytes.Buffer
	if err := marshal(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func marshal(buf *bytes.Buffer, v Value) error {
	switch vv := v.(type) {
	case Null:
		buf.WriteString("null")
	case Bool, Number, String:
		if err := scalar(buf, ToInterface(vv)); err != nil {
			return err
		}
	case Array:
		buf.WriteByte('[')
		for i, x := range vv {
			if 0 < i {
				buf.WriteByte(',')
			}
			if err := marshal(buf, x); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case *Object:
		if vv == nil {
			buf.WriteString("null")
			return nil
		}
		buf.WriteByte('{')
		for i, k := range vv.keys {
			if 0 < i {
				buf.WriteByte(',')
			}
			if err := scalar(buf, k); err != nil {
				return err
			}
			buf.WriteByte(':')
			if err := marshal(buf, vv.props[k]); err != nil {
				return err
			}
		}
		buf.WriteByte('}')
	default:
		return &UnsupportedType{v}
	}
	return nil
}

// scalar writes a JSON scalar without escaping "<", ">", and "&",
// which are common in numeric filters.
func scalar(buf *bytes.Buffer, x interface{}) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(x); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}
