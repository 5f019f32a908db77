// Package repotest はサービス層のテストで使うトランザクションを提供します
package repotest

import (
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
)

// TxSource はテスト用にsqlmockのトランザクションを払い出します
// Commit と Rollback のどちらが呼ばれても失敗しません
type TxSource struct {
	db   *sqlx.DB
	mock sqlmock.Sqlmock
}

// NewTxSource は TxSource を作成します
func NewTxSource(t *testing.T) *TxSource {
	t.Helper()
	conn, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create sqlmock: %v", err)
	}
	mock.MatchExpectationsInOrder(false)
	t.Cleanup(func() { conn.Close() })
	return &TxSource{db: sqlx.NewDb(conn, "postgres"), mock: mock}
}

// Begin はトランザクションを開始します
func (s *TxSource) Begin(t *testing.T) *sqlx.Tx {
	t.Helper()
	s.mock.ExpectBegin()
	s.mock.ExpectCommit().WillReturnError(nil)
	s.mock.ExpectRollback().WillReturnError(nil)
	tx, err := s.db.Beginx()
	if err != nil {
		t.Fatalf("failed to begin mock transaction: %v", err)
	}
	return tx
}
