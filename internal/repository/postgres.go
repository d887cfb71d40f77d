package repository

import (
	"context"
	"database/sql"
	"embed"
	"strconv"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/bharathbbg/parcel-hub/internal/apperr"
	"github.com/bharathbbg/parcel-hub/internal/config"
)

//go:embed schema.sql
var schemaFS embed.FS

// Postgres owns the connection pool. Store methods run on the transaction
// carried by ctx when there is one, on the pool otherwise.
type Postgres struct {
	db  *sqlx.DB
	log *zap.Logger
}

func NewPostgres(cfg config.DatabaseConfig, log *zap.Logger) (*Postgres, error) {
	db, err := sqlx.Open("postgres", cfg.DSN())
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, err
	}

	return &Postgres{db: db, log: log.Named("postgres")}, nil
}

// NewPostgresFromDB wraps an already opened pool.
func NewPostgresFromDB(db *sql.DB, log *zap.Logger) *Postgres {
	return &Postgres{db: sqlx.NewDb(db, "postgres"), log: log.Named("postgres")}
}

func (p *Postgres) Close() error {
	return p.db.Close()
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// Migrate applies the embedded schema. Every statement is idempotent.
func (p *Postgres) Migrate(ctx context.Context) error {
	schema, err := schemaFS.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	if _, err := p.db.ExecContext(ctx, string(schema)); err != nil {
		return errors.Wrap(err, "error applying schema")
	}
	p.log.Info("schema applied")
	return nil
}

type txKey struct{}

// WithinTx runs fn in a transaction. A ctx that already carries one is
// reused, so nested calls commit or roll back with the outermost.
func (p *Postgres) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return fn(ctx)
	}

	tx, err := p.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "error starting transaction")
	}
	defer tx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "error committing transaction")
	}
	return nil
}

func (p *Postgres) conn(ctx context.Context) sqlx.ExtContext {
	if tx, ok := ctx.Value(txKey{}).(*sqlx.Tx); ok {
		return tx
	}
	return p.db
}

func inTx(ctx context.Context) bool {
	_, ok := ctx.Value(txKey{}).(*sqlx.Tx)
	return ok
}

const uniqueViolation = "23505"

// translate maps driver errors onto the application taxonomy. A missing row
// becomes NotFound with the given description.
func translate(err error, what string, args ...interface{}) error {
	if err == nil || apperr.KindOf(err) != apperr.KindInternal {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperr.NotFound(what+" not found", args...)
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
		return apperr.Conflict(what+" already exists", args...)
	}
	return errors.Wrapf(err, "error querying "+what, args...)
}

func requireAffected(res sql.Result, what string, args ...interface{}) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperr.NotFound(what+" not found", args...)
	}
	return nil
}

func itoa(n int) string {
	return strconv.Itoa(n)
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
