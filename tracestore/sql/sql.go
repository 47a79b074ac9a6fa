// Copyright (c) 2026 Timo Savola. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package sql implements a persistent [tracestore.Store].  Supports at least
// SQLite and PostgreSQL.
package sql

import (
	"database/sql"
	"errors"
	"strings"

	"amp.computer/tracestore"

	. "import.name/type/context"
)

type Config struct {
	Driver string
	DSN    string
}

func (c *Config) Enabled() bool {
	return c.Driver != "" && c.DSN != ""
}

const TraceSchema = `
CREATE TABLE IF NOT EXISTS dma_trace (
	name TEXT NOT NULL,
	trace BLOB NOT NULL,

	PRIMARY KEY (name)
) WITHOUT ROWID, STRICT;
`

// Store of traces in a database.
type Store struct {
	db     *sql.DB
	driver string
}

var _ tracestore.Store = (*Store)(nil)

// Open a database and initialize the schema.
func Open(ctx Context, config Config) (*Store, error) {
	db, err := sql.Open(config.Driver, config.DSN)
	if err != nil {
		return nil, err
	}

	if strings.Contains(config.DSN, ":memory:") {
		// Each connection would have its own database.
		db.SetMaxOpenConns(1)
	}

	x := &Store{db, config.Driver}

	if _, err := db.ExecContext(ctx, x.adjustSchema(TraceSchema)); err != nil {
		db.Close()
		return nil, err
	}

	return x, nil
}

func (x *Store) Close() error {
	return x.db.Close()
}

func (x *Store) adjustSchema(s string) string {
	switch x.driver {
	case "sqlite", "sqlite3":

	default:
		s = strings.ReplaceAll(s, " BLOB", " BYTEA")
		s = strings.ReplaceAll(s, " WITHOUT ROWID, STRICT;", ";")
	}

	return s
}

func (x *Store) Put(ctx Context, name string, trace []byte) error {
	if trace == nil {
		trace = []byte{}
	}

	q := "INSERT INTO dma_trace (name, trace) VALUES ($1, $2) ON CONFLICT (name) DO UPDATE SET trace = excluded.trace"
	_, err := x.db.ExecContext(ctx, q, name, trace)
	return err
}

func (x *Store) Get(ctx Context, name string) ([]byte, error) {
	var trace []byte

	q := "SELECT trace FROM dma_trace WHERE name = $1"
	if err := x.db.QueryRowContext(ctx, q, name).Scan(&trace); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, tracestore.ErrNotFound
		}
		return nil, err
	}

	return trace, nil
}

func (x *Store) Erase(ctx Context, name string) error {
	_, err := x.db.ExecContext(ctx, "DELETE FROM dma_trace WHERE name = $1", name)
	return err
}

func (x *Store) Names(ctx Context) ([]string, error) {
	rows, err := x.db.QueryContext(ctx, "SELECT name FROM dma_trace ORDER BY name")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}

	return names, rows.Err()
}
