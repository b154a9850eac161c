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
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		pattern string
		valid   bool
	}{
		{"literal", `{"a":["b"]}`, true},
		{"mixed literals", `{"a":["b",1,true,null]}`, true},
		{"empty alternatives", `{"a":[]}`, true},
		{"nested", `{"a":{"b":["c"]}}`, true},
		{"empty", `{}`, false},
		{"empty nested", `{"a":{}}`, false},
		{"scalar field", `{"a":"b"}`, false},
		{"number field", `{"a":1}`, false},
		{"null field", `{"a":null}`, false},
		{"nested array", `{"a":[["b"]]}`, false},

		{"prefix", `{"a":[{"prefix":"b"}]}`, true},
		{"prefix number", `{"a":[{"prefix":1}]}`, false},
		{"prefix array", `{"a":[{"prefix":["b"]}]}`, false},

		{"filter with two operators", `{"a":[{"prefix":"b","cidr":"10.0.0.0/8"}]}`, false},
		{"empty filter", `{"a":[{}]}`, false},
		{"unknown operator", `{"a":[{"suffix":"b"}]}`, false},

		{"anything-but string", `{"a":[{"anything-but":"b"}]}`, true},
		{"anything-but number", `{"a":[{"anything-but":3}]}`, true},
		{"anything-but list", `{"a":[{"anything-but":["b",3]}]}`, true},
		{"anything-but empty list", `{"a":[{"anything-but":[]}]}`, false},
		{"anything-but list with bool", `{"a":[{"anything-but":["b",true]}]}`, false},
		{"anything-but list with null", `{"a":[{"anything-but":[null]}]}`, false},
		{"anything-but bool", `{"a":[{"anything-but":true}]}`, false},
		{"anything-but null", `{"a":[{"anything-but":null}]}`, false},
		{"anything-but prefix", `{"a":[{"anything-but":{"prefix":"b"}}]}`, true},
		{"anything-but numeric", `{"a":[{"anything-but":{"numeric":["<",1]}}]}`, true},
		{"anything-but cidr", `{"a":[{"anything-but":{"cidr":"10.0.0.0/8"}}]}`, true},
		{"anything-but bad prefix", `{"a":[{"anything-but":{"prefix":1}}]}`, false},
		{"anything-but anything-but", `{"a":[{"anything-but":{"anything-but":"b"}}]}`, false},
		{"anything-but exists", `{"a":[{"anything-but":{"exists":true}}]}`, false},
		{"anything-but anything-but number", `{"a":[{"anything-but":{"anything-but":3}}]}`, false},
		{"anything-but anything-but list", `{"a":[{"anything-but":{"anything-but":["b",3]}}]}`, false},
		{"anything-but anything-but prefix", `{"a":[{"anything-but":{"anything-but":{"prefix":"b"}}}]}`, false},
		{"anything-but empty filter", `{"a":[{"anything-but":{}}]}`, false},

		{"numeric one comparison", `{"a":[{"numeric":[">",1]}]}`, true},
		{"numeric two comparisons", `{"a":[{"numeric":[">=",1,"<",2.5]}]}`, true},
		{"numeric equality", `{"a":[{"numeric":["=",0]}]}`, true},
		{"numeric one element", `{"a":[{"numeric":[">"]}]}`, false},
		{"numeric three elements", `{"a":[{"numeric":[">",1,"<"]}]}`, false},
		{"numeric six elements", `{"a":[{"numeric":[">",1,"<",5,"=",3]}]}`, false},
		{"numeric unknown operator", `{"a":[{"numeric":["!=",1]}]}`, false},
		{"numeric string threshold", `{"a":[{"numeric":[">","1"]}]}`, false},
		{"numeric swapped", `{"a":[{"numeric":[1,">"]}]}`, false},
		{"numeric not a list", `{"a":[{"numeric":1}]}`, false},

		{"cidr", `{"a":[{"cidr":"10.0.0.0/24"}]}`, true},
		{"cidr /0", `{"a":[{"cidr":"0.0.0.0/0"}]}`, true},
		{"cidr /31", `{"a":[{"cidr":"10.0.0.0/31"}]}`, true},
		{"cidr /32", `{"a":[{"cidr":"10.0.0.1/32"}]}`, false},
		{"cidr /33", `{"a":[{"cidr":"10.0.0.0/33"}]}`, false},
		{"cidr octet too big", `{"a":[{"cidr":"10.0.0.256/8"}]}`, false},
		{"cidr three octets", `{"a":[{"cidr":"10.0.0/8"}]}`, false},
		{"cidr no prefix", `{"a":[{"cidr":"10.0.0.0"}]}`, false},
		{"cidr negative", `{"a":[{"cidr":"10.0.0.0/-1"}]}`, false},
		{"cidr signed octet", `{"a":[{"cidr":"+10.0.0.0/8"}]}`, false},
		{"cidr number", `{"a":[{"cidr":10}]}`, false},
		{"cidr ipv6", `{"a":[{"cidr":"::1/64"}]}`, false},
		{"cidr leading zero octet", `{"a":[{"cidr":"010.000.0.0/8"}]}`, true},
		{"cidr leading zero prefix", `{"a":[{"cidr":"10.0.0.0/024"}]}`, true},
		{"cidr leading zero /32", `{"a":[{"cidr":"10.0.0.0/032"}]}`, false},
		{"cidr leading zero octet too big", `{"a":[{"cidr":"10.0.0.0256/8"}]}`, false},

		{"exists true", `{"a":[{"exists":true}]}`, true},
		{"exists false", `{"a":[{"exists":false}]}`, true},
		{"exists string", `{"a":[{"exists":"true"}]}`, false},

		{"deep", `{"a":{"b":{"c":[{"prefix":"x"},"y"]}},"d":[1]}`, true},
		{"deep invalid", `{"a":{"b":{"c":[{"prefix":2}]}},"d":[1]}`, false},
		{"later field invalid", `{"a":["b"],"c":"d"}`, false},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			v, err := ParseJSON([]byte(test.pattern))
			if err != nil {
				t.Fatal(err)
			}
			err = Validate(v)
			if test.valid {
				if err != nil {
					t.Fatalf("%s: %s", test.pattern, err)
				}
				return
			}
			if err == nil {
				t.Fatalf("%s should be invalid", test.pattern)
			}
			if !IsRejection(err) {
				t.Fatalf("%s: expected a rejection, not %#v", test.pattern, err)
			}
			ok, err := IsPatternValid(v.(*Object))
			if err != nil {
				t.Fatal(err)
			}
			if ok {
				t.Fatal("IsPatternValid disagrees with Validate")
			}
		})
	}
}

func TestValidateNotAnObject(t *testing.T) {
	for _, v := range []Value{Null{}, Bool(true), Number(1), String("a"), Array{}} {
		err := Validate(v)
		if _, is := err.(*Rejected); !is {
			t.Fatalf("%#v: got %#v", v, err)
		}
	}
}

func TestValidateFaults(t *testing.T) {
	for name, p := range map[string]*Object{
		"nil field":        NewObject().Set("a", nil),
		"nil alternative":  NewObject().Set("a", Array{nil}),
		"nil nested":       NewObject().Set("a", (*Object)(nil)),
		"nil operand":      NewObject().Set("a", Array{NewObject().Set("prefix", nil)}),
		"nil but elements": NewObject().Set("a", Array{NewObject().Set("anything-but", Array{nil})}),
	} {
		t.Run(name, func(t *testing.T) {
			_, err := IsPatternValid(p)
			if err == nil {
				t.Fatal("expected a fault")
			}
			if _, is := err.(*InvalidPatternShape); !is {
				t.Fatalf("got %#v", err)
			}
		})
	}
}

func TestValidateErrorPath(t *testing.T) {
	p := obj(t, `{"a":{"b":["x",{"numeric":["<"]}]}}`)
	err := Validate(p)
	mo, is := err.(*MalformedOperand)
	if !is {
		t.Fatalf("got %#v", err)
	}
	if mo.Path != "a.b[1].numeric" {
		t.Fatalf("path %q", mo.Path)
	}
	if mo.Operator != OpNumeric {
		t.Fatalf("operator %q", mo.Operator)
	}
}
