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

package registry

import (
	"context"
	"sync"
)

// Memory is a Registry that lives only in memory.
type Memory struct {
	sync.RWMutex

	conns   map[string]*Connection
	filters map[string]map[string]*Filter
}

func NewMemory() *Memory {
	return &Memory{
		conns:   make(map[string]*Connection),
		filters: make(map[string]map[string]*Filter),
	}
}

func (s *Memory) Open(ctx context.Context) error {
	return nil
}

func (s *Memory) Close(ctx context.Context) error {
	return nil
}

func (s *Memory) PutConnection(ctx context.Context, c *Connection) error {
	s.Lock()
	defer s.Unlock()
	copied := *c
	s.conns[c.Id] = &copied
	return nil
}

func (s *Memory) GetConnection(ctx context.Context, id string) (*Connection, error) {
	s.RLock()
	defer s.RUnlock()
	c, have := s.conns[id]
	if !have {
		return nil, nil
	}
	copied := *c
	return &copied, nil
}

func (s *Memory) RemConnection(ctx context.Context, id string) (bool, error) {
	s.Lock()
	defer s.Unlock()
	_, have := s.conns[id]
	delete(s.conns, id)
	delete(s.filters, id)
	return have, nil
}

func (s *Memory) Connections(ctx context.Context) ([]*Connection, error) {
	s.RLock()
	acc := make([]*Connection, 0, len(s.conns))
	for _, c := range s.conns {
		copied := *c
		acc = append(acc, &copied)
	}
	s.RUnlock()
	SortConnections(acc)
	return acc, nil
}

func (s *Memory) PutFilter(ctx context.Context, f *Filter) error {
	s.Lock()
	defer s.Unlock()
	if _, have := s.conns[f.ConnectionId]; !have {
		return ErrNoConnection
	}
	fs, have := s.filters[f.ConnectionId]
	if !have {
		fs = make(map[string]*Filter)
		s.filters[f.ConnectionId] = fs
	}
	copied := *f
	fs[f.Rule] = &copied
	return nil
}

func (s *Memory) RemFilter(ctx context.Context, connId, rule string) error {
	s.Lock()
	defer s.Unlock()
	if fs, have := s.filters[connId]; have {
		delete(fs, rule)
	}
	return nil
}

func (s *Memory) GetFilters(ctx context.Context, connId string) ([]*Filter, error) {
	s.RLock()
	fs := s.filters[connId]
	acc := make([]*Filter, 0, len(fs))
	for _, f := range fs {
		copied := *f
		acc = append(acc, &copied)
	}
	s.RUnlock()
	SortFilters(acc)
	return acc, nil
}
