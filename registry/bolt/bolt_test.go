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

package bolt

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/Comcast/evbus/registry"
	"github.com/Comcast/evbus/registry/registrytest"

	"github.com/rs/zerolog"
)

func TestImpl(t *testing.T) {
	// Just confirm that this code compiles.
	var _ registry.Registry = &Storage{}
}

func open(t testing.TB, filename string) *Storage {
	s := NewStorage(filename, zerolog.Nop())
	if err := s.Open(context.Background()); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestBasics(t *testing.T) {
	s := open(t, filepath.Join(t.TempDir(), "registry.db"))
	defer func() {
		if err := s.Close(context.Background()); err != nil {
			t.Fatal(err)
		}
	}()
	registrytest.Exercise(t, s)
}

func TestReopen(t *testing.T) {
	var (
		ctx      = context.Background()
		filename = filepath.Join(t.TempDir(), "registry.db")
	)

	s := open(t, filename)
	if err := s.PutConnection(ctx, &registry.Connection{Id: "homer", AppId: "springfield"}); err != nil {
		t.Fatal(err)
	}
	f := &registry.Filter{ConnectionId: "homer", Rule: "donuts", Pattern: `{"likes":["donuts"]}`}
	if err := s.PutFilter(ctx, f); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(ctx); err != nil {
		t.Fatal(err)
	}

	s = open(t, filename)
	defer s.Close(ctx)

	c, err := s.GetConnection(ctx, "homer")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil || c.AppId != "springfield" {
		t.Fatalf("%#v", c)
	}
	fs, err := s.GetFilters(ctx, "homer")
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 1 || *fs[0] != *f {
		t.Fatalf("%#v", fs)
	}
}

// BenchmarkBolt is just for fun.  Bolt is slow.
func BenchmarkBolt(b *testing.B) {
	ctx := context.Background()
	s := open(b, filepath.Join(b.TempDir(), "registry.db"))
	defer s.Close(ctx)

	if err := s.PutConnection(ctx, &registry.Connection{Id: "bart"}); err != nil {
		b.Fatal(err)
	}
	f := &registry.Filter{ConnectionId: "bart", Rule: "r", Pattern: `{"a":["b"]}`}

	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		var err error
		if i%2 == 0 {
			err = s.PutFilter(ctx, f)
		} else {
			_, err = s.GetFilters(ctx, "bart")
		}
		if err != nil {
			b.Fatal(err)
		}
	}
}
