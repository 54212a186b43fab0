package db

import (
	"burnbin/pkg/domain"
	"context"
	"database/sql"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/pkg/errors"
)

var ErrCircuitOpen = errors.New("database circuit breaker open")

const (
	circuitClosed   = 0
	circuitOpen     = 1
	circuitHalfOpen = 2
	maxFailures     = 5
	cooldownSeconds = 30
)

const (
	defaultMaxOpenConns = 100
	defaultMaxIdleConns = 10
	defaultQueryTimeout = 5 * time.Second
)

// SQLite keeps pastes in a single table. Every consume runs in an immediate
// transaction, so the write lock is held from the read until the increment.
type SQLite struct {
	db            *sql.DB
	failures      int32
	circuitState  int32
	circuitOpened int64
	queryTimeout  time.Duration
}

func (s *SQLite) DB() *sql.DB {
	return s.db
}
func NewSQLite(path string) (*SQLite, error) {
	return NewSQLiteWithConfig(path, defaultMaxOpenConns, defaultMaxIdleConns, defaultQueryTimeout)
}

func NewSQLiteWithConfig(path string, maxOpenConns, maxIdleConns int, queryTimeout time.Duration) (*SQLite, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, errors.Wrap(err, "failed to open db")
	}
	if path == ":memory:" {
		// each connection would otherwise see its own empty database
		maxOpenConns, maxIdleConns = 1, 1
	}
	db.SetMaxOpenConns(maxOpenConns)
	db.SetMaxIdleConns(maxIdleConns)
	db.SetConnMaxLifetime(1 * time.Hour)
	db.SetConnMaxIdleTime(10 * time.Minute)
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping db")
	}
	if queryTimeout <= 0 {
		queryTimeout = defaultQueryTimeout
	}
	s := &SQLite{
		db:           db,
		queryTimeout: queryTimeout,
	}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "migration failed")
	}
	return s, nil
}

// dsn sets per-connection options through the driver so that every pooled
// connection gets them, not only the one that ran a PRAGMA.
func dsn(path string) string {
	opts := "_busy_timeout=5000&_synchronous=FULL&_txlock=immediate"
	if path != ":memory:" {
		opts += "&_journal_mode=WAL"
	}
	if strings.Contains(path, "?") {
		return path + "&" + opts
	}
	return path + "?" + opts
}
func (s *SQLite) checkCircuit() error {
	state := atomic.LoadInt32(&s.circuitState)
	switch state {
	case circuitClosed:
		return nil
	case circuitOpen:
		opened := atomic.LoadInt64(&s.circuitOpened)
		if time.Now().Unix()-opened >= cooldownSeconds {
			if atomic.CompareAndSwapInt32(&s.circuitState, circuitOpen, circuitHalfOpen) {
				return nil
			}
		}
		return ErrCircuitOpen
	default:
		return nil
	}
}
func (s *SQLite) recordError(err error) {
	if err == nil {
		atomic.StoreInt32(&s.failures, 0)
		atomic.StoreInt32(&s.circuitState, circuitClosed)
		return
	}
	if errors.Is(err, sql.ErrNoRows) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return
	}
	failures := atomic.AddInt32(&s.failures, 1)
	if atomic.LoadInt32(&s.circuitState) == circuitHalfOpen {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
		atomic.StoreInt32(&s.failures, 0)
		return
	}
	if failures >= maxFailures && atomic.LoadInt32(&s.circuitState) == circuitClosed {
		atomic.StoreInt32(&s.circuitState, circuitOpen)
		atomic.StoreInt64(&s.circuitOpened, time.Now().Unix())
	}
}
func (s *SQLite) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS pastes (
		id TEXT PRIMARY KEY,
		content TEXT NOT NULL,
		ttl_seconds INTEGER,
		max_views INTEGER,
		created_at_ms INTEGER NOT NULL,
		views_used INTEGER NOT NULL DEFAULT 0
	);
	`
	_, err := s.db.Exec(query)
	return err
}
func (s *SQLite) Backend() string { return "sqlite" }

func (s *SQLite) CreatePaste(ctx context.Context, p *domain.PasteRecord) error {
	if err := s.checkCircuit(); err != nil {
		return domain.StorageFailure("create paste", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	q := `
	INSERT INTO pastes (id, content, ttl_seconds, max_views, created_at_ms, views_used)
	VALUES (?, ?, ?, ?, ?, 0)
	ON CONFLICT(id) DO NOTHING
	`
	res, err := s.db.ExecContext(queryCtx, q,
		p.ID, p.Content, nullInt(p.TTLSeconds), nullInt(p.MaxViews), p.CreatedAtMs,
	)
	s.recordError(err)
	if err != nil {
		return domain.StorageFailure("create paste", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return domain.StorageFailure("create paste", err)
	}
	if n == 0 {
		return domain.ErrPasteExists
	}
	return nil
}
func (s *SQLite) ConsumeView(ctx context.Context, id string, nowMs int64) (domain.Outcome, error) {
	if err := s.checkCircuit(); err != nil {
		return domain.Outcome{}, domain.StorageFailure("consume view", err)
	}
	queryCtx, cancel := context.WithTimeout(ctx, s.queryTimeout)
	defer cancel()
	out, err := s.consume(queryCtx, id, nowMs)
	s.recordError(err)
	if err != nil {
		return domain.Outcome{}, domain.StorageFailure("consume view", err)
	}
	return out, nil
}
func (s *SQLite) consume(ctx context.Context, id string, nowMs int64) (domain.Outcome, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Outcome{}, errors.Wrap(err, "begin")
	}
	defer tx.Rollback()

	q := `
	SELECT id, content, ttl_seconds, max_views, created_at_ms, views_used
	FROM pastes WHERE id = ?
	`
	var (
		rec           domain.PasteRecord
		ttl, maxViews sql.NullInt64
	)
	err = tx.QueryRowContext(ctx, q, id).Scan(
		&rec.ID, &rec.Content, &ttl, &maxViews, &rec.CreatedAtMs, &rec.ViewsUsed,
	)
	if err == sql.ErrNoRows {
		return domain.Missing(), nil
	}
	if err != nil {
		return domain.Outcome{}, errors.Wrap(err, "select paste")
	}
	rec.TTLSeconds = fromNull(ttl)
	rec.MaxViews = fromNull(maxViews)

	if st := domain.Evaluate(&rec, nowMs); st != domain.StatusOK {
		return domain.Outcome{Status: st}, nil
	}
	if _, err := tx.ExecContext(ctx, `UPDATE pastes SET views_used = views_used + 1 WHERE id = ?`, id); err != nil {
		return domain.Outcome{}, errors.Wrap(err, "incr views")
	}
	if err := tx.Commit(); err != nil {
		return domain.Outcome{}, errors.Wrap(err, "commit")
	}
	rec.ViewsUsed++
	return domain.Consumed(&rec), nil
}
func nullInt(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}
func fromNull(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}
func (s *SQLite) Close() error {
	return s.db.Close()
}
