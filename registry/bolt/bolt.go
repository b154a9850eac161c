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

// Package bolt is a Registry backed by a BoltDB file.
//
// Each connection gets its own top-level bucket.  The bucket holds the
// connection's JSON at the key "info" and a nested "filters" bucket
// that maps rule names to pattern text.
package bolt

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Comcast/evbus/registry"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	bolt "go.etcd.io/bbolt"
)

var (
	infoKey       = []byte("info")
	filtersBucket = []byte("filters")
)

type Storage struct {
	Log      zerolog.Logger
	filename string
	db       *bolt.DB
}

func NewStorage(filename string, log zerolog.Logger) *Storage {
	return &Storage{
		Log:      log,
		filename: filename,
	}
}

func (s *Storage) Open(ctx context.Context) error {
	opts := &bolt.Options{
		Timeout: time.Second,
	}

	db, err := bolt.Open(s.filename, 0644, opts)
	if err != nil {
		return errors.Wrapf(err, "opening %s", s.filename)
	}
	s.db = db
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) PutConnection(ctx context.Context, c *registry.Connection) error {
	s.Log.Debug().Str("conn", c.Id).Msg("PutConnection")
	js, err := json.Marshal(c)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists([]byte(c.Id))
		if err != nil {
			return errors.Wrapf(err, "bucket for %s", c.Id)
		}
		if _, err = b.CreateBucketIfNotExists(filtersBucket); err != nil {
			return err
		}
		return b.Put(infoKey, js)
	})
}

func readConnection(b *bolt.Bucket) (*registry.Connection, error) {
	js := b.Get(infoKey)
	if js == nil {
		return nil, nil
	}
	var c registry.Connection
	if err := json.Unmarshal(js, &c); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) GetConnection(ctx context.Context, id string) (*registry.Connection, error) {
	var c *registry.Connection
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(id))
		if b == nil {
			return nil
		}
		var err error
		c, err = readConnection(b)
		return err
	})
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", id)
	}
	return c, nil
}

func (s *Storage) RemConnection(ctx context.Context, id string) (bool, error) {
	s.Log.Debug().Str("conn", id).Msg("RemConnection")
	removed := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket([]byte(id)) == nil {
			return nil
		}
		removed = true
		return tx.DeleteBucket([]byte(id))
	})
	return removed, err
}

func (s *Storage) Connections(ctx context.Context) ([]*registry.Connection, error) {
	acc := make([]*registry.Connection, 0, 32)
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.ForEach(func(name []byte, b *bolt.Bucket) error {
			c, err := readConnection(b)
			if err != nil {
				return errors.Wrapf(err, "reading %s", name)
			}
			if c != nil {
				acc = append(acc, c)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	// Buckets are already in key order.
	return acc, nil
}

func (s *Storage) PutFilter(ctx context.Context, f *registry.Filter) error {
	s.Log.Debug().Str("conn", f.ConnectionId).Str("rule", f.Rule).Msg("PutFilter")
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(f.ConnectionId))
		if b == nil {
			return registry.ErrNoConnection
		}
		fs, err := b.CreateBucketIfNotExists(filtersBucket)
		if err != nil {
			return err
		}
		return fs.Put([]byte(f.Rule), []byte(f.Pattern))
	})
}

func (s *Storage) RemFilter(ctx context.Context, connId, rule string) error {
	s.Log.Debug().Str("conn", connId).Str("rule", rule).Msg("RemFilter")
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(connId))
		if b == nil {
			return nil
		}
		fs := b.Bucket(filtersBucket)
		if fs == nil {
			return nil
		}
		return fs.Delete([]byte(rule))
	})
}

func (s *Storage) GetFilters(ctx context.Context, connId string) ([]*registry.Filter, error) {
	acc := make([]*registry.Filter, 0, 8)
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(connId))
		if b == nil {
			return nil
		}
		fs := b.Bucket(filtersBucket)
		if fs == nil {
			return nil
		}
		c := fs.Cursor()
		for rule, pattern := c.First(); rule != nil; rule, pattern = c.Next() {
			acc = append(acc, &registry.Filter{
				ConnectionId: connId,
				Rule:         string(rule),
				Pattern:      string(pattern),
			})
		}
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "filters for %s", connId)
	}
	s.Log.Debug().Str("conn", connId).Int("n", len(acc)).Msg("GetFilters")
	return acc, nil
}
