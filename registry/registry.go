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

// Package registry keeps track of subscriber connections and the named
// filters they have registered.
package registry

import (
	"context"
	"sort"
	"time"

	"github.com/pkg/errors"
)

// Connection is a subscriber connection as stored in a Registry.
type Connection struct {
	// Id is the connection id assigned by the push hub.
	Id string `json:"id"`

	// AppId is the application the subscriber says it belongs to.
	AppId string `json:"app"`

	// Subscribed is set once the subscriber has said hello, and it
	// means the connection should receive broadcast events.
	Subscribed bool `json:"subscribed"`

	Created time.Time `json:"created"`
}

// Filter is a named pattern that a connection has registered.
type Filter struct {
	ConnectionId string `json:"conn"`

	// Rule is the name the subscriber gave the filter.
	Rule string `json:"rule"`

	// Pattern is the JSON text of the pattern, which passed
	// validation when it was stored.
	Pattern string `json:"pattern"`
}

// ErrNoConnection is returned by PutFilter when the connection isn't
// known.
var ErrNoConnection = errors.New("no such connection")

// Registry is a persistence interface for connections and their
// filters.
//
// Implementations are safe for concurrent use.
type Registry interface {
	Open(ctx context.Context) error
	Close(ctx context.Context) error

	// PutConnection creates or replaces a connection.
	PutConnection(ctx context.Context, c *Connection) error

	// GetConnection returns nil if there's no such connection.
	GetConnection(ctx context.Context, id string) (*Connection, error)

	// RemConnection removes the connection and all of its filters.
	// The result reports whether there was a connection to remove.
	RemConnection(ctx context.Context, id string) (bool, error)

	// Connections returns all connections.
	Connections(ctx context.Context) ([]*Connection, error)

	// PutFilter creates or replaces (by rule name) a filter.
	PutFilter(ctx context.Context, f *Filter) error

	// RemFilter removes a filter.  Removing a filter that doesn't
	// exist is not an error.
	RemFilter(ctx context.Context, connId, rule string) error

	// GetFilters returns a connection's filters ordered by rule.
	GetFilters(ctx context.Context, connId string) ([]*Filter, error)
}

// SortFilters orders filters by rule name.
func SortFilters(fs []*Filter) {
	sort.Slice(fs, func(i, j int) bool {
		return fs[i].Rule < fs[j].Rule
	})
}

// SortConnections orders connections by id.
func SortConnections(cs []*Connection) {
	sort.Slice(cs, func(i, j int) bool {
		return cs[i].Id < cs[j].Id
	})
}
