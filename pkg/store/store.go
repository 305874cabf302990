package store

import (
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Store テナントデータ（在庫・売上・寄付・予測・気象キャッシュ）のSQLiteストア
type Store struct {
	db *sql.DB
}

// Open データベースファイルを開き、スキーマを適用します。
// パスに":memory:"を渡すとインメモリDBになる（テスト用途）。
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", "file:"+dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)")
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("スキーマの適用に失敗: %w", err)
	}

	return &Store{db: db}, nil
}

// Close データベース接続を閉じます。
func (s *Store) Close() error {
	return s.db.Close()
}
