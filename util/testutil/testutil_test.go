package testutil

import (
	"reflect"
	"testing"
)

type Rule struct {
	Name    string
	Pattern interface{}
}

func TestJS(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want string
	}{
		{
			name: "simple struct",
			arg:  Rule{"big", nil},
			want: `{"Name":"big","Pattern":null}`,
		},
		{
			name: "comparison operators survive",
			arg:  map[string]interface{}{"numeric": []interface{}{">=", 100}},
			want: `{"numeric":[">=",100]}`,
		},
		{
			name: "unserializable",
			arg:  func() {},
			want: "(func())",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := JS(tt.arg)
			if tt.name == "unserializable" {
				if got == "" {
					t.Error("JS() returned nothing")
				}
				return
			}
			if got != tt.want {
				t.Errorf("JS() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDwimjs(t *testing.T) {
	tests := []struct {
		name string
		arg  interface{}
		want interface{}
	}{
		{
			name: "JSON string",
			arg:  `{"source":"orders","total":30}`,
			want: map[string]interface{}{"source": "orders", "total": float64(30)},
		},
		{
			name: "JSON bytes",
			arg:  []byte(`["a",1]`),
			want: []interface{}{"a", float64(1)},
		},
		{
			name: "not a string",
			arg:  12345,
			want: 12345,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Dwimjs(tt.arg); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Dwimjs() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCanonical(t *testing.T) {
	a := Canonical(`{"b":[1, 2], "a":{"y":">","x":null}}`)
	b := Canonical(`{"a":{"x":null,"y":">"},"b":[1,2]}`)
	if a != b {
		t.Fatalf("%s != %s", a, b)
	}
	if a != `{"a":{"x":null,"y":">"},"b":[1,2]}` {
		t.Fatal(a)
	}
}
