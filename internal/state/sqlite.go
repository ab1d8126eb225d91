package state

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	_ "modernc.org/sqlite"
)

// SQLite persists the KV store so execution history and stats survive
// restarts. Expiry is lazy on read plus a periodic sweep.
type SQLite struct {
	db *sql.DB
}

func OpenSQLite(path string) (*SQLite, error) {
	// modernc sqlite DSN: file:foo.db?_pragma=busy_timeout(5000)
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1) // sqlite wants a single writer
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS kv (
  key TEXT PRIMARY KEY,
  value BLOB NOT NULL,
  expires_at INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_kv_expires ON kv(expires_at);
`); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &SQLite{db: db}, nil
}

func (s *SQLite) Close() error { return s.db.Close() }

func (s *SQLite) Get(key string) ([]byte, bool) {
	var val []byte
	var exp int64
	err := s.db.QueryRow(`SELECT value, expires_at FROM kv WHERE key = ?;`, key).Scan(&val, &exp)
	if err != nil {
		return nil, false
	}
	if exp != 0 && time.Now().Unix() >= exp {
		_, _ = s.db.Exec(`DELETE FROM kv WHERE key = ?;`, key)
		return nil, false
	}
	return val, true
}

func (s *SQLite) Put(key string, val []byte, ttl time.Duration) {
	var exp int64
	if ttl > 0 {
		exp = time.Now().Add(ttl).Unix()
	}
	if _, err := s.db.Exec(`
INSERT INTO kv(key, value, expires_at) VALUES(?,?,?)
ON CONFLICT(key) DO UPDATE SET value=excluded.value, expires_at=excluded.expires_at;`,
		key, val, exp); err != nil {
		log.Printf("[state] put %q: %v", key, err)
	}
}

func (s *SQLite) Forget(key string) {
	_, _ = s.db.Exec(`DELETE FROM kv WHERE key = ?;`, key)
}

// Sweep deletes expired rows. Call it on a ticker.
func (s *SQLite) Sweep() {
	res, err := s.db.Exec(`DELETE FROM kv WHERE expires_at != 0 AND expires_at < ?;`, time.Now().Unix())
	if err != nil {
		log.Printf("[state] sweep: %v", err)
		return
	}
	if n, _ := res.RowsAffected(); n > 0 {
		log.Printf("[state] sweep removed %d expired keys", n)
	}
}
