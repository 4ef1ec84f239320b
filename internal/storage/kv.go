package storage

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// ErrNotFound is returned when a key or row does not exist.
var ErrNotFound = errors.New("storage: not found")

// KV is one key/value pair written by KVSetMany.
type KV struct {
	Key   string
	Value string
}

// KVSet 设置键值，ttl 为 0 表示永不过期
func (db *DB) KVSet(ctx context.Context, key, value string, ttl time.Duration) error {
	_, err := db.ExecContext(ctx,
		"INSERT OR REPLACE INTO kv_store (key, value, expires_at) VALUES (?, ?, ?)",
		key, value, expiry(ttl),
	)
	return err
}

// KVSetMany writes all pairs in a single transaction: either every pair is
// stored or none is.
func (db *DB) KVSetMany(ctx context.Context, pairs []KV) error {
	return db.WithTx(ctx, func(tx *Tx) error {
		stmt, err := tx.PrepareContext(ctx,
			"INSERT OR REPLACE INTO kv_store (key, value, expires_at) VALUES (?, ?, NULL)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range pairs {
			if _, err := stmt.ExecContext(ctx, p.Key, p.Value); err != nil {
				return err
			}
		}
		return nil
	})
}

// KVGet 获取键值
func (db *DB) KVGet(ctx context.Context, key string) (string, error) {
	var value string
	var expiresAt sql.NullTime

	err := db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM kv_store WHERE key = ?",
		key,
	).Scan(&value, &expiresAt)

	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}

	if expiresAt.Valid && expiresAt.Time.Before(time.Now()) {
		_, _ = db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
		return "", ErrNotFound
	}

	return value, nil
}

// KVDelete 删除键值
func (db *DB) KVDelete(ctx context.Context, key string) error {
	result, err := db.ExecContext(ctx, "DELETE FROM kv_store WHERE key = ?", key)
	if err != nil {
		return err
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// KVKeys lists live keys starting with prefix, in key order.
func (db *DB) KVKeys(ctx context.Context, prefix string) ([]string, error) {
	rows, err := db.QueryContext(ctx,
		"SELECT key, expires_at FROM kv_store WHERE substr(key, 1, ?) = ? ORDER BY key",
		len(prefix), prefix,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	now := time.Now()
	var keys []string
	for rows.Next() {
		var key string
		var expiresAt sql.NullTime
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, err
		}
		if expiresAt.Valid && expiresAt.Time.Before(now) {
			continue
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

// KVCleanExpired 清理过期的键值对
func (db *DB) KVCleanExpired(ctx context.Context) (int64, error) {
	result, err := db.ExecContext(ctx,
		"DELETE FROM kv_store WHERE expires_at IS NOT NULL AND expires_at < ?",
		time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

func expiry(ttl time.Duration) *time.Time {
	if ttl <= 0 {
		return nil
	}
	t := time.Now().Add(ttl)
	return &t
}
