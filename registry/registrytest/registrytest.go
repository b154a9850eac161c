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

// Package registrytest exercises Registry implementations.
package registrytest

import (
	"context"
	"testing"
	"time"

	"github.com/Comcast/evbus/registry"

	"github.com/pkg/errors"
)

// Exercise runs an open Registry through its paces.  The Registry
// should be empty.
func Exercise(t *testing.T, r registry.Registry) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	created := time.Date(2020, 3, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"b", "a"} {
		c := &registry.Connection{
			Id:      id,
			AppId:   "app-" + id,
			Created: created,
		}
		if err := r.PutConnection(ctx, c); err != nil {
			t.Fatal(err)
		}
	}

	c, err := r.GetConnection(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if c == nil {
		t.Fatal("lost a")
	}
	if c.AppId != "app-a" || c.Subscribed || !c.Created.Equal(created) {
		t.Fatalf("%#v", c)
	}

	c.Subscribed = true
	if err = r.PutConnection(ctx, c); err != nil {
		t.Fatal(err)
	}
	if c, err = r.GetConnection(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if !c.Subscribed {
		t.Fatal("lost subscription")
	}

	if c, err = r.GetConnection(ctx, "z"); err != nil {
		t.Fatal(err)
	} else if c != nil {
		t.Fatalf("found %#v", c)
	}

	cs, err := r.Connections(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cs) != 2 || cs[0].Id != "a" || cs[1].Id != "b" {
		t.Fatalf("connections %#v", cs)
	}

	for _, f := range []*registry.Filter{
		{ConnectionId: "a", Rule: "r2", Pattern: `{"x":["y"]}`},
		{ConnectionId: "a", Rule: "r1", Pattern: `{"x":["z"]}`},
		{ConnectionId: "b", Rule: "r1", Pattern: `{"b":[1]}`},
		{ConnectionId: "a", Rule: "r2", Pattern: `{"x":["w"]}`},
	} {
		if err = r.PutFilter(ctx, f); err != nil {
			t.Fatal(err)
		}
	}

	err = r.PutFilter(ctx, &registry.Filter{ConnectionId: "z", Rule: "r", Pattern: `{}`})
	if errors.Cause(err) != registry.ErrNoConnection {
		t.Fatalf("got %v", err)
	}

	fs, err := r.GetFilters(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(fs) != 2 {
		t.Fatalf("filters %#v", fs)
	}
	if fs[0].Rule != "r1" || fs[1].Rule != "r2" {
		t.Fatalf("order %s %s", fs[0].Rule, fs[1].Rule)
	}
	if fs[1].Pattern != `{"x":["w"]}` {
		t.Fatalf("not replaced: %s", fs[1].Pattern)
	}
	if fs[0].ConnectionId != "a" {
		t.Fatalf("conn %q", fs[0].ConnectionId)
	}

	if err = r.RemFilter(ctx, "a", "r1"); err != nil {
		t.Fatal(err)
	}
	if err = r.RemFilter(ctx, "a", "r1"); err != nil {
		t.Fatal(err)
	}
	if err = r.RemFilter(ctx, "z", "r1"); err != nil {
		t.Fatal(err)
	}
	if fs, err = r.GetFilters(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if len(fs) != 1 || fs[0].Rule != "r2" {
		t.Fatalf("filters %#v", fs)
	}

	removed, err := r.RemConnection(ctx, "a")
	if err != nil {
		t.Fatal(err)
	}
	if !removed {
		t.Fatal("a not removed")
	}
	if removed, err = r.RemConnection(ctx, "a"); err != nil {
		t.Fatal(err)
	} else if removed {
		t.Fatal("a removed twice")
	}
	if fs, err = r.GetFilters(ctx, "a"); err != nil {
		t.Fatal(err)
	}
	if len(fs) != 0 {
		t.Fatalf("orphans %#v", fs)
	}
	if fs, err = r.GetFilters(ctx, "b"); err != nil {
		t.Fatal(err)
	}
	if len(fs) != 1 {
		t.Fatalf("b's filters %#v", fs)
	}
}
