package repository

import (
	"context"
	"database/sql"

	"github.com/jmoiron/sqlx"

	"github.com/mozila9822/website-VOY-sub000/internal/common/tracing"
)

// DB はリポジトリ共通のDBハンドルです。クエリごとにX-Rayのサブセグメントを記録します
type DB struct {
	*sqlx.DB
}

// NewDB は接続済みのsqlx.DBをラップします
func NewDB(conn *sqlx.DB) *DB {
	return &DB{DB: conn}
}

// BeginTx starts a new transaction
func (db *DB) BeginTx(ctx context.Context) (*sqlx.Tx, error) {
	ctx, span := tracing.Start(ctx, "DB.BeginTx")
	tx, err := db.DB.BeginTxx(ctx, nil)
	span.End(err)
	return tx, err
}

// GetContext wraps sqlx.DB.GetContext with X-Ray tracing
func (db *DB) GetContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, span := tracing.Start(ctx, "DB.Get")
	span.AddMetadata("query", query)
	err := db.DB.GetContext(ctx, dest, query, args...)
	if err == sql.ErrNoRows {
		span.End(nil)
		return err
	}
	span.End(err)
	return err
}

// SelectContext wraps sqlx.DB.SelectContext with X-Ray tracing
func (db *DB) SelectContext(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	ctx, span := tracing.Start(ctx, "DB.Select")
	span.AddMetadata("query", query)
	err := db.DB.SelectContext(ctx, dest, query, args...)
	span.End(err)
	return err
}

// ExecContext wraps sqlx.DB.ExecContext with X-Ray tracing
func (db *DB) ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	ctx, span := tracing.Start(ctx, "DB.Exec")
	span.AddMetadata("query", query)
	result, err := db.DB.ExecContext(ctx, query, args...)
	span.End(err)
	return result, err
}

// Rollback はエラー発生時にトランザクションをロールバックします
// ロールバック自体の失敗は元のエラーを優先して返します
func Rollback(tx *sqlx.Tx, err error) error {
	if rbErr := tx.Rollback(); rbErr != nil && rbErr != sql.ErrTxDone {
		return &rollbackError{err: err, rbErr: rbErr}
	}
	return err
}

type rollbackError struct {
	err   error
	rbErr error
}

func (e *rollbackError) Error() string {
	if e.err == nil {
		return "rollback failed: " + e.rbErr.Error()
	}
	return "rollback failed: " + e.rbErr.Error() + ", original error: " + e.err.Error()
}

func (e *rollbackError) Unwrap() []error {
	return []error{e.err, e.rbErr}
}
