package sink

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/pkg/errors"
)

// Timescale stores each metric line as a row in a TimescaleDB (or plain
// Postgres) table:
//
//	CREATE TABLE samples (
//	    measurement text        NOT NULL,
//	    tags        jsonb       NOT NULL,
//	    fields      jsonb       NOT NULL,
//	    ts          timestamptz NOT NULL
//	);
type Timescale struct {
	db    *sql.DB
	table string
}

// OpenTimescale opens a connection pool for the given DSN.
func OpenTimescale(dsn, table string) (*Timescale, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open timescale")
	}
	return NewTimescale(db, table), nil
}

// NewTimescale writes to table, which may be schema-qualified.
func NewTimescale(db *sql.DB, table string) *Timescale {
	return &Timescale{db: db, table: quoteTable(table)}
}

func quoteTable(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pq.QuoteIdentifier(p)
	}
	return strings.Join(parts, ".")
}

func (t *Timescale) WriteSample(ctx context.Context, measurement string, tags map[string]string, fields map[string]float64, ts int64) error {
	tj, err := json.Marshal(tags)
	if err != nil {
		return errors.Wrap(err, "marshal tags")
	}
	fj, err := json.Marshal(fields)
	if err != nil {
		return errors.Wrap(err, "marshal fields")
	}
	q := fmt.Sprintf("INSERT INTO %s (measurement, tags, fields, ts) VALUES ($1,$2,$3,$4)", t.table)
	_, err = t.db.ExecContext(ctx, q, measurement, tj, fj, time.Unix(ts, 0).UTC())
	return errors.Wrap(err, "timescale insert")
}

func (t *Timescale) Close() error { return t.db.Close() }
