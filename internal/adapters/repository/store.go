// Package repository provides SQL-backed ledger stores for SQLite and
// PostgreSQL.
package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/okian/crease/internal/domain/ledger"
	"github.com/okian/crease/internal/domain/model"
	"github.com/okian/crease/pkg/logger"
)

//go:embed schema.sql
var schema string

type dialect int

const (
	dialectSQLite dialect = iota
	dialectPostgres
)

func (d dialect) String() string {
	if d == dialectPostgres {
		return "postgres"
	}
	return "sqlite"
}

// Store is a ledger.Store on database/sql. Records are kept as JSON documents
// next to the columns the ledger orders and constrains on.
type Store struct {
	db      *sql.DB
	dialect dialect
	log     logger.Logger

	maxOpen     int
	maxLifetime time.Duration
}

var _ ledger.Store = (*Store)(nil)

// OpenSQLite opens (creating if needed) a SQLite ledger at path.
func OpenSQLite(ctx context.Context, path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, ErrPathRequired
	}
	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// SQLite allows one writer at a time.
	return open(ctx, db, dialectSQLite, append([]Option{WithMaxOpenConns(1)}, opts...)...)
}

// OpenPostgres connects to a PostgreSQL ledger.
func OpenPostgres(ctx context.Context, dsn string, opts ...Option) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres db: %w", err)
	}
	return open(ctx, db, dialectPostgres, opts...)
}

func open(ctx context.Context, db *sql.DB, d dialect, opts ...Option) (*Store, error) {
	s := &Store{db: db, dialect: d, maxOpen: 10, maxLifetime: 30 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	if s.log == nil {
		s.log = logger.Get().Named("repository")
	}
	db.SetMaxOpenConns(s.maxOpen)
	db.SetConnMaxLifetime(s.maxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s db: %w", d, err)
	}
	if err := s.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	s.log.Info(ctx, "ledger store ready", logger.String("dialect", d.String()))
	return s, nil
}

func (s *Store) migrate(ctx context.Context) error {
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders as $N for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.dialect != dialectPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *Store) exec(ctx context.Context, q execer, query string, args ...any) error {
	_, err := q.ExecContext(ctx, s.rebind(query), args...)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SaveMatch upserts a match config.
func (s *Store) SaveMatch(ctx context.Context, cfg model.MatchConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	err = s.exec(ctx, s.db,
		`INSERT INTO matches (match_id, data) VALUES (?, ?)
		 ON CONFLICT (match_id) DO UPDATE SET data = excluded.data`,
		cfg.MatchID, string(data))
	return mapErr("save match "+cfg.MatchID, err)
}

// Match returns a match config.
func (s *Store) Match(ctx context.Context, matchID string) (model.MatchConfig, error) {
	var cfg model.MatchConfig
	err := s.one(ctx, s.db, &cfg, `SELECT data FROM matches WHERE match_id = ?`, matchID)
	if errors.Is(err, sql.ErrNoRows) {
		return cfg, fmt.Errorf("match %s: %w", matchID, ledger.ErrNotFound)
	}
	return cfg, err
}

// SaveInnings upserts innings metadata. A second innings with the same number
// in a match is a conflict.
func (s *Store) SaveInnings(ctx context.Context, inn model.Innings) error {
	data, err := json.Marshal(inn)
	if err != nil {
		return err
	}
	err = s.exec(ctx, s.db,
		`INSERT INTO innings (id, match_id, number, data) VALUES (?, ?, ?, ?)
		 ON CONFLICT (id) DO UPDATE SET data = excluded.data`,
		inn.ID, inn.MatchID, inn.Number, string(data))
	return mapErr("save innings "+inn.ID, err)
}

// Innings returns innings metadata.
func (s *Store) Innings(ctx context.Context, inningsID string) (model.Innings, error) {
	var inn model.Innings
	err := s.one(ctx, s.db, &inn, `SELECT data FROM innings WHERE id = ?`, inningsID)
	if errors.Is(err, sql.ErrNoRows) {
		return inn, fmt.Errorf("innings %s: %w", inningsID, ledger.ErrNotFound)
	}
	return inn, err
}

// MatchInnings returns the innings of a match ordered by number.
func (s *Store) MatchInnings(ctx context.Context, matchID string) ([]model.Innings, error) {
	return list[model.Innings](ctx, s, `SELECT data FROM innings WHERE match_id = ? ORDER BY number`, matchID)
}

// AppendBall stores a ball and its wicket in one transaction.
func (s *Store) AppendBall(ctx context.Context, b model.Ball, w *model.Wicket) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if err := s.claim(ctx, tx, b.InningsID, b.Slot(), b.Sequence, b.ID); err != nil {
			return err
		}
		data, err := json.Marshal(b)
		if err != nil {
			return err
		}
		if err := s.exec(ctx, tx,
			`INSERT INTO balls (id, innings_id, sequence_number, data) VALUES (?, ?, ?, ?)`,
			b.ID, b.InningsID, b.Sequence, string(data)); err != nil {
			return mapErr("append ball "+b.ID, err)
		}
		if w == nil {
			return nil
		}
		wd, err := json.Marshal(w)
		if err != nil {
			return err
		}
		return mapErr("append wicket "+w.ID, s.exec(ctx, tx,
			`INSERT INTO wickets (id, ball_id, innings_id, wicket_number, data) VALUES (?, ?, ?, ?, ?)`,
			w.ID, b.ID, b.InningsID, w.WicketNumber, string(wd)))
	})
}

// AppendGap stores an abandoned slot.
func (s *Store) AppendGap(ctx context.Context, g model.Gap) error {
	return s.tx(ctx, func(tx *sql.Tx) error {
		if err := s.claim(ctx, tx, g.InningsID, g.Slot(), g.Sequence, g.ID); err != nil {
			return err
		}
		data, err := json.Marshal(g)
		if err != nil {
			return err
		}
		return mapErr("append gap "+g.ID, s.exec(ctx, tx,
			`INSERT INTO gaps (id, innings_id, sequence_number, data) VALUES (?, ?, ?, ?)`,
			g.ID, g.InningsID, g.Sequence, string(data)))
	})
}

// claim reserves a slot and sequence number for a ball or gap.
func (s *Store) claim(ctx context.Context, tx *sql.Tx, inningsID string, slot model.Slot, seq int64, recordID string) error {
	var n int
	err := tx.QueryRowContext(ctx, s.rebind(`SELECT COUNT(*) FROM innings WHERE id = ?`), inningsID).Scan(&n)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("innings %s: %w", inningsID, ledger.ErrNotFound)
	}
	return mapErr("slot "+slot.Key(), s.exec(ctx, tx,
		`INSERT INTO ledger_slots (innings_id, over_number, ball_number, sequence_number, record_id) VALUES (?, ?, ?, ?, ?)`,
		inningsID, slot.OverNumber, slot.BallNumber, seq, recordID))
}

// Balls returns the balls of an innings in sequence order.
func (s *Store) Balls(ctx context.Context, inningsID string) ([]model.Ball, error) {
	return list[model.Ball](ctx, s, `SELECT data FROM balls WHERE innings_id = ? ORDER BY sequence_number`, inningsID)
}

// Wickets returns the wickets of an innings in wicket order.
func (s *Store) Wickets(ctx context.Context, inningsID string) ([]model.Wicket, error) {
	return list[model.Wicket](ctx, s, `SELECT data FROM wickets WHERE innings_id = ? ORDER BY wicket_number`, inningsID)
}

// Gaps returns the gaps of an innings in sequence order.
func (s *Store) Gaps(ctx context.Context, inningsID string) ([]model.Gap, error) {
	return list[model.Gap](ctx, s, `SELECT data FROM gaps WHERE innings_id = ? ORDER BY sequence_number`, inningsID)
}

func (s *Store) tx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return mapErr("commit tx", err)
	}
	return nil
}

func (s *Store) one(ctx context.Context, q querier, dst any, query string, args ...any) error {
	var data string
	if err := q.QueryRowContext(ctx, s.rebind(query), args...).Scan(&data); err != nil {
		return err
	}
	return json.Unmarshal([]byte(data), dst)
}

func list[T any](ctx context.Context, s *Store, query string, args ...any) ([]T, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var v T
		if err := json.Unmarshal([]byte(data), &v); err != nil {
			return nil, fmt.Errorf("decode row: %w", err)
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
