package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq" // register the postgres driver

	"ddl-cache/internal/domain"
)

// Postgres runs scan and refresh statements against the database that owns
// the cache columns. It implements domain.Querier and domain.Execer.
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects with a lib/pq connection string or URL and checks
// the connection. maxOpen caps the pool (0 keeps the driver default).
func OpenPostgres(ctx context.Context, dsn string, maxOpen int) (*Postgres, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if maxOpen > 0 {
		db.SetMaxOpenConns(maxOpen)
		db.SetMaxIdleConns(maxOpen)
	}
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &Postgres{db: db}, nil
}

// NewPostgres wraps an existing pool.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// DB returns the underlying pool.
func (p *Postgres) DB() *sql.DB { return p.db }

// Close closes the pool.
func (p *Postgres) Close() error { return p.db.Close() }

// Query runs a read statement in its own read-only transaction bounded by
// timeout, both client side and through statement_timeout.
func (p *Postgres) Query(ctx context.Context, query string, timeout time.Duration) ([]domain.Row, error) {
	var out []domain.Row
	err := p.inTx(ctx, timeout, true, func(ctx context.Context, tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, query)
		if err != nil {
			return err
		}
		defer rows.Close()

		out, err = scanRows(rows)
		return err
	})
	return out, err
}

// Exec runs a write statement in its own transaction bounded by timeout and
// returns the number of affected rows.
func (p *Postgres) Exec(ctx context.Context, stmt string, timeout time.Duration) (int64, error) {
	var affected int64
	err := p.inTx(ctx, timeout, false, func(ctx context.Context, tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, stmt)
		if err != nil {
			return err
		}
		affected, err = res.RowsAffected()
		return err
	})
	return affected, err
}

func (p *Postgres) inTx(ctx context.Context, timeout time.Duration, readOnly bool, fn func(context.Context, *sql.Tx) error) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: readOnly})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if timeout > 0 {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf("set local statement_timeout = %d", timeout.Milliseconds())); err != nil {
			return fmt.Errorf("set statement_timeout: %w", err)
		}
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit()
}

// scanRows reads every row into a map. Byte slices (json, jsonb, text from
// some types) are returned as strings.
func scanRows(rows *sql.Rows) ([]domain.Row, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []domain.Row
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		row := make(domain.Row, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
				continue
			}
			row[col] = values[i]
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
