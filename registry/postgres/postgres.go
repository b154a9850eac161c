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

// Package postgres is a Registry backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/Comcast/evbus/registry"

	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

// Schema creates the tables.  Filters go away with their connection.
var Schema = []string{
	`CREATE TABLE IF NOT EXISTS evbus_connections (
	id         TEXT PRIMARY KEY,
	app_id     TEXT NOT NULL,
	subscribed BOOLEAN NOT NULL DEFAULT FALSE,
	created    TIMESTAMPTZ NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS evbus_filters (
	conn_id TEXT NOT NULL REFERENCES evbus_connections (id) ON DELETE CASCADE,
	rule    TEXT NOT NULL,
	pattern TEXT NOT NULL,
	PRIMARY KEY (conn_id, rule)
)`,
}

const (
	putConnection = `INSERT INTO evbus_connections (id, app_id, subscribed, created) VALUES ($1, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET app_id = EXCLUDED.app_id, subscribed = EXCLUDED.subscribed, created = EXCLUDED.created`
	getConnection = `SELECT id, app_id, subscribed, created FROM evbus_connections WHERE id = $1`
	remConnection = `DELETE FROM evbus_connections WHERE id = $1`
	connections   = `SELECT id, app_id, subscribed, created FROM evbus_connections ORDER BY id COLLATE "C"`
	putFilter     = `INSERT INTO evbus_filters (conn_id, rule, pattern) VALUES ($1, $2, $3)
ON CONFLICT (conn_id, rule) DO UPDATE SET pattern = EXCLUDED.pattern`
	remFilter  = `DELETE FROM evbus_filters WHERE conn_id = $1 AND rule = $2`
	getFilters = `SELECT rule, pattern FROM evbus_filters WHERE conn_id = $1 ORDER BY rule COLLATE "C"`
)

// foreignKeyViolation is the SQLSTATE for a missing referenced row.
const foreignKeyViolation = pq.ErrorCode("23503")

type Storage struct {
	Log zerolog.Logger

	// Migrate, when true, makes Open create the tables.
	Migrate bool

	dsn string
	db  *sql.DB
}

// NewStorage makes a Storage that will connect to the given data
// source (see github.com/lib/pq for the format).
func NewStorage(dsn string, log zerolog.Logger) *Storage {
	return &Storage{
		Log: log,
		dsn: dsn,
	}
}

// NewStorageWithDB uses an existing database handle.  Open will not
// reconnect.
func NewStorageWithDB(db *sql.DB, log zerolog.Logger) *Storage {
	return &Storage{
		Log: log,
		db:  db,
	}
}

func (s *Storage) Open(ctx context.Context) error {
	if s.db == nil {
		db, err := sql.Open("postgres", s.dsn)
		if err != nil {
			return errors.Wrap(err, "opening postgres")
		}
		db.SetMaxOpenConns(10)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(30 * time.Minute)
		s.db = db
	}
	if err := s.db.PingContext(ctx); err != nil {
		return errors.Wrap(err, "pinging postgres")
	}
	if s.Migrate {
		return s.migrate(ctx)
	}
	return nil
}

func (s *Storage) migrate(ctx context.Context) error {
	for _, stmt := range Schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return errors.Wrap(err, "migrating")
		}
	}
	s.Log.Info().Msg("postgres registry schema is ready")
	return nil
}

func (s *Storage) Close(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Storage) PutConnection(ctx context.Context, c *registry.Connection) error {
	_, err := s.db.ExecContext(ctx, putConnection, c.Id, c.AppId, c.Subscribed, c.Created.UTC())
	return errors.Wrapf(err, "PutConnection %s", c.Id)
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanConnection(row scanner) (*registry.Connection, error) {
	var c registry.Connection
	if err := row.Scan(&c.Id, &c.AppId, &c.Subscribed, &c.Created); err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Storage) GetConnection(ctx context.Context, id string) (*registry.Connection, error) {
	c, err := scanConnection(s.db.QueryRowContext(ctx, getConnection, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrapf(err, "GetConnection %s", id)
	}
	return c, nil
}

func (s *Storage) RemConnection(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, remConnection, id)
	if err != nil {
		return false, errors.Wrapf(err, "RemConnection %s", id)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return 0 < n, nil
}

func (s *Storage) Connections(ctx context.Context) ([]*registry.Connection, error) {
	rows, err := s.db.QueryContext(ctx, connections)
	if err != nil {
		return nil, errors.Wrap(err, "Connections")
	}
	defer rows.Close()

	acc := make([]*registry.Connection, 0, 32)
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, err
		}
		acc = append(acc, c)
	}
	return acc, rows.Err()
}

func (s *Storage) PutFilter(ctx context.Context, f *registry.Filter) error {
	_, err := s.db.ExecContext(ctx, putFilter, f.ConnectionId, f.Rule, f.Pattern)
	if pqErr, is := err.(*pq.Error); is && pqErr.Code == foreignKeyViolation {
		return registry.ErrNoConnection
	}
	return errors.Wrapf(err, "PutFilter %s %s", f.ConnectionId, f.Rule)
}

func (s *Storage) RemFilter(ctx context.Context, connId, rule string) error {
	_, err := s.db.ExecContext(ctx, remFilter, connId, rule)
	return errors.Wrapf(err, "RemFilter %s %s", connId, rule)
}

func (s *Storage) GetFilters(ctx context.Context, connId string) ([]*registry.Filter, error) {
	rows, err := s.db.QueryContext(ctx, getFilters, connId)
	if err != nil {
		return nil, errors.Wrapf(err, "GetFilters %s", connId)
	}
	defer rows.Close()

	acc := make([]*registry.Filter, 0, 8)
	for rows.Next() {
		f := &registry.Filter{
			ConnectionId: connId,
		}
		if err := rows.Scan(&f.Rule, &f.Pattern); err != nil {
			return nil, err
		}
		acc = append(acc, f)
	}
	return acc, rows.Err()
}
