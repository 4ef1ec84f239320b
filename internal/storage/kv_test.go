package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestKVSet(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	if err := db.KVSet(ctx, "key1", "value1", 0); err != nil {
		t.Fatalf("KVSet failed: %v", err)
	}
	value, err := db.KVGet(ctx, "key1")
	if err != nil || value != "value1" {
		t.Errorf("KVGet = %q, %v; want value1", value, err)
	}
}

func TestKVSet_Overwrite(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "key1", "value1", 0)
	_ = db.KVSet(ctx, "key1", "value2", 0)
	value, _ := db.KVGet(ctx, "key1")
	if value != "value2" {
		t.Errorf("value = %q, want value2", value)
	}
}

func TestKVGet_NotFound(t *testing.T) {
	db := openTestDB(t)

	_, err := db.KVGet(context.Background(), "nonexistent")
	if err != ErrNotFound {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestKVGet_Expired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "expired", "value", time.Nanosecond)
	time.Sleep(time.Millisecond)
	if _, err := db.KVGet(ctx, "expired"); err != ErrNotFound {
		t.Errorf("expired key: err = %v, want ErrNotFound", err)
	}
}

func TestKVSetMany(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.KVSetMany(ctx, []KV{
		{Key: "conv/a/history/1", Value: `{"epoch":1}`},
		{Key: "conv/a/epoch", Value: `{"epoch":1}`},
	})
	if err != nil {
		t.Fatalf("KVSetMany failed: %v", err)
	}

	for _, key := range []string{"conv/a/history/1", "conv/a/epoch"} {
		if v, err := db.KVGet(ctx, key); err != nil || v != `{"epoch":1}` {
			t.Errorf("KVGet(%s) = %q, %v", key, v, err)
		}
	}
}

func TestKVSetMany_CanceledWritesNothing(t *testing.T) {
	db := openTestDB(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := db.KVSetMany(ctx, []KV{{Key: "k", Value: "v"}}); err == nil {
		t.Fatal("expected error for canceled context")
	}
	if _, err := db.KVGet(context.Background(), "k"); err != ErrNotFound {
		t.Errorf("partial write visible: err = %v", err)
	}
}

func TestKVDelete(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "del_key", "value", 0)
	if err := db.KVDelete(ctx, "del_key"); err != nil {
		t.Fatalf("KVDelete failed: %v", err)
	}
	if err := db.KVDelete(ctx, "del_key"); err != ErrNotFound {
		t.Errorf("second delete err = %v, want ErrNotFound", err)
	}
}

func TestKVKeys(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "conv/a/history/0", "x", 0)
	_ = db.KVSet(ctx, "conv/a/history/1", "x", 0)
	_ = db.KVSet(ctx, "conv/b/history/0", "x", 0)
	_ = db.KVSet(ctx, "conv/a%/history/0", "x", 0)

	keys, err := db.KVKeys(ctx, "conv/a/history/")
	if err != nil {
		t.Fatalf("KVKeys failed: %v", err)
	}
	if len(keys) != 2 || keys[0] != "conv/a/history/0" || keys[1] != "conv/a/history/1" {
		t.Errorf("keys = %v", keys)
	}
}

func TestKVCleanExpired(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_ = db.KVSet(ctx, "keep", "v", 0)
	_ = db.KVSet(ctx, "gone", "v", time.Nanosecond)
	time.Sleep(time.Millisecond)

	n, err := db.KVCleanExpired(ctx)
	if err != nil {
		t.Fatalf("KVCleanExpired failed: %v", err)
	}
	if n != 1 {
		t.Errorf("cleaned = %d, want 1", n)
	}
	if _, err := db.KVGet(ctx, "keep"); err != nil {
		t.Errorf("non-expiring key removed: %v", err)
	}
}
